package generic

import "time"

// =============================================================================
// PERIOD - Inclusive day range
// =============================================================================

// Period is an inclusive [Start, End] range of days.
//
// Examples:
//   - A leave request: Mar 10 - Mar 14
//   - A blocked company period: Dec 24 - Jan 1
//   - An anniversary year: hire date + 1 year - 1 day
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod truncates both ends to days.
func NewPeriod(start, end time.Time) Period {
	return Period{Start: TruncateDay(start), End: TruncateDay(end)}
}

// Valid reports whether End is not before Start.
func (p Period) Valid() bool {
	return !p.End.Before(p.Start)
}

// Contains returns true if t falls on a day within [Start, End].
func (p Period) Contains(t time.Time) bool {
	d := TruncateDay(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Overlaps returns true if the two inclusive ranges share at least one day.
func (p Period) Overlaps(o Period) bool {
	return !p.Start.After(o.End) && !o.Start.After(p.End)
}

// Days returns every day in the period.
func (p Period) Days() []time.Time {
	var days []time.Time
	for d := p.Start; !d.After(p.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Intersect returns the shared days of p and o, and false when they are disjoint.
func (p Period) Intersect(o Period) (Period, bool) {
	if !p.Overlaps(o) {
		return Period{}, false
	}
	start, end := p.Start, p.End
	if o.Start.After(start) {
		start = o.Start
	}
	if o.End.Before(end) {
		end = o.End
	}
	return Period{Start: start, End: end}, true
}

func (p Period) String() string {
	return "[" + p.Start.Format(DateLayout) + ", " + p.End.Format(DateLayout) + "]"
}

// PeriodType defines how periods are calculated
type PeriodType string

const (
	PeriodCalendarYear PeriodType = "calendar_year" // Jan 1 - Dec 31
	PeriodAnniversary  PeriodType = "anniversary"   // Based on an anchor date (hire, contract, first vacation)
	PeriodRolling      PeriodType = "rolling"       // Rolling N years ending on the date
)

// PeriodConfig defines how to calculate the period a date falls into.
type PeriodConfig struct {
	Type PeriodType

	// For anniversary: the anchor date (e.g., hire date)
	AnchorDate *time.Time

	// For rolling: window length in years (default 1)
	Years int
}

// =============================================================================
// PERIOD CALCULATOR - Determines which period a date falls into
// =============================================================================

// PeriodFor returns the period that contains the given date
func (pc PeriodConfig) PeriodFor(date time.Time) Period {
	date = TruncateDay(date)
	switch pc.Type {
	case PeriodAnniversary:
		if pc.AnchorDate == nil {
			return Period{Start: StartOfYear(date.Year()), End: EndOfYear(date.Year())}
		}
		return pc.anniversaryPeriod(date)

	case PeriodRolling:
		years := pc.Years
		if years <= 0 {
			years = 1
		}
		return Period{Start: date.AddDate(-years, 0, 1), End: date}

	default:
		return Period{Start: StartOfYear(date.Year()), End: EndOfYear(date.Year())}
	}
}

func (pc PeriodConfig) anniversaryPeriod(date time.Time) Period {
	start := AnniversaryIn(*pc.AnchorDate, date.Year())

	// Before this year's anniversary we are still in last year's period
	if date.Before(start) {
		start = AnniversaryIn(*pc.AnchorDate, date.Year()-1)
	}

	next := AnniversaryIn(*pc.AnchorDate, start.Year()+1)
	return Period{Start: start, End: next.AddDate(0, 0, -1)}
}
