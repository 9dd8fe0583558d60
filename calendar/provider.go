/*
Package calendar supplies the non-working days leave durations are net of.

PURPOSE:
  Provider turns stored holidays and blocked periods into the per-year
  lists the leave service consumes. Holidays are either a single date or
  an RRULE anchored on their date, e.g.

	FREQ=YEARLY;BYMONTH=12;BYMONTHDAY=25   Christmas, every year
	FREQ=YEARLY;BYMONTH=5;BYDAY=-1MO       last Monday of May

  Blocked periods are company-wide ranges in which leave cannot be taken.

SEE ALSO:
  - leave/duration.go: WorkingDays and the blocked-period check
*/
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

type Provider struct {
	Source leave.CalendarStore
}

func NewProvider(source leave.CalendarStore) *Provider {
	return &Provider{Source: source}
}

// Holidays returns every holiday date falling in year, recurring ones expanded.
func (p *Provider) Holidays(ctx context.Context, year int) ([]time.Time, error) {
	holidays, err := p.Source.ListHolidays(ctx)
	if err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}

	start, end := generic.StartOfYear(year), generic.EndOfYear(year)
	seen := map[time.Time]bool{}
	var days []time.Time

	add := func(d time.Time) {
		d = generic.TruncateDay(d)
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}

	for _, h := range holidays {
		if h.Recurrence == "" {
			if h.Date.Year() == year {
				add(h.Date)
			}
			continue
		}
		set, err := ruleSet(h)
		if err != nil {
			return nil, err
		}
		for _, d := range set.Between(start, end, true) {
			add(d)
		}
	}
	return days, nil
}

// BlockedPeriods returns the blocked periods intersecting year.
func (p *Provider) BlockedPeriods(ctx context.Context, year int) ([]generic.Period, error) {
	blocked, err := p.Source.ListBlockedPeriods(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blocked periods: %w", err)
	}

	yearPeriod := generic.NewPeriod(generic.StartOfYear(year), generic.EndOfYear(year))
	var out []generic.Period
	for _, b := range blocked {
		if b.Period().Overlaps(yearPeriod) {
			out = append(out, b.Period())
		}
	}
	return out, nil
}

// WorkingDays counts the days of period that are neither weekends,
// holidays nor blocked.
func (p *Provider) WorkingDays(ctx context.Context, period generic.Period) (int, error) {
	var holidays []time.Time
	var blocked []generic.Period
	for year := period.Start.Year(); year <= period.End.Year(); year++ {
		h, err := p.Holidays(ctx, year)
		if err != nil {
			return 0, err
		}
		b, err := p.BlockedPeriods(ctx, year)
		if err != nil {
			return 0, err
		}
		holidays = append(holidays, h...)
		blocked = append(blocked, b...)
	}
	return leave.WorkingDays(period, holidays, blocked), nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// AddHoliday validates the recurrence rule before storing.
func (p *Provider) AddHoliday(ctx context.Context, h *leave.Holiday) error {
	if strings.TrimSpace(h.Name) == "" {
		return generic.NewValidationError("name", "is required")
	}
	if h.Date.IsZero() {
		return generic.NewValidationError("date", "is required")
	}
	h.Date = generic.TruncateDay(h.Date)
	if h.Recurrence != "" {
		if _, err := ruleSet(*h); err != nil {
			return err
		}
	}
	if h.ID == "" {
		h.ID = generic.NewID()
	}
	return p.Source.SaveHoliday(ctx, h)
}

func (p *Provider) ListHolidays(ctx context.Context) ([]leave.Holiday, error) {
	return p.Source.ListHolidays(ctx)
}

func (p *Provider) DeleteHoliday(ctx context.Context, id string) error {
	return p.Source.DeleteHoliday(ctx, id)
}

func (p *Provider) AddBlockedPeriod(ctx context.Context, b *leave.BlockedPeriod) error {
	if strings.TrimSpace(b.Name) == "" {
		return generic.NewValidationError("name", "is required")
	}
	period := generic.NewPeriod(b.From, b.To)
	if b.From.IsZero() || b.To.IsZero() || !period.Valid() {
		return generic.NewValidationError("to", "must not be before from")
	}
	b.From, b.To = period.Start, period.End
	if b.ID == "" {
		b.ID = generic.NewID()
	}
	return p.Source.SaveBlockedPeriod(ctx, b)
}

func (p *Provider) ListBlockedPeriods(ctx context.Context) ([]leave.BlockedPeriod, error) {
	return p.Source.ListBlockedPeriods(ctx)
}

func (p *Provider) DeleteBlockedPeriod(ctx context.Context, id string) error {
	return p.Source.DeleteBlockedPeriod(ctx, id)
}

func ruleSet(h leave.Holiday) (*rrule.Set, error) {
	opt, err := rrule.StrToROption(h.Recurrence)
	if err != nil {
		return nil, generic.NewValidationError("recurrence", "invalid rule %q: %v", h.Recurrence, err)
	}
	opt.Dtstart = generic.TruncateDay(h.Date)

	rr, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, generic.NewValidationError("recurrence", "invalid rule %q: %v", h.Recurrence, err)
	}
	set := &rrule.Set{}
	set.RRule(rr)
	return set, nil
}

var _ leave.Calendar = (*Provider)(nil)
