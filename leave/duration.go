package leave

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// DURATION - Working days net of weekends, holidays and blocked periods
// =============================================================================

// WorkingDays counts the days of p that are not weekends, holidays or
// inside a blocked period.
func WorkingDays(p generic.Period, holidays []time.Time, blocked []generic.Period) int {
	off := make(map[time.Time]bool, len(holidays))
	for _, h := range holidays {
		off[generic.TruncateDay(h)] = true
	}

	n := 0
	for _, d := range p.Days() {
		if generic.IsWeekend(d) || off[d] {
			continue
		}
		if inAny(d, blocked) {
			continue
		}
		n++
	}
	return n
}

func inAny(d time.Time, periods []generic.Period) bool {
	for _, b := range periods {
		if b.Contains(d) {
			return true
		}
	}
	return false
}

// calendarFor collects holidays and blocked periods for every year p spans.
// Without a Calendar only weekends are excluded.
func (s *Service) calendarFor(ctx context.Context, p generic.Period) ([]time.Time, []generic.Period, error) {
	if s.Calendar == nil {
		return nil, nil, nil
	}
	var holidays []time.Time
	var blocked []generic.Period
	for year := p.Start.Year(); year <= p.End.Year(); year++ {
		h, err := s.Calendar.Holidays(ctx, year)
		if err != nil {
			return nil, nil, fmt.Errorf("load holidays %d: %w", year, err)
		}
		b, err := s.Calendar.BlockedPeriods(ctx, year)
		if err != nil {
			return nil, nil, fmt.Errorf("load blocked periods %d: %w", year, err)
		}
		holidays = append(holidays, h...)
		blocked = append(blocked, b...)
	}
	return holidays, blocked, nil
}

// resolveDuration returns provided when set, otherwise the working days of p.
func (s *Service) resolveDuration(ctx context.Context, p generic.Period, provided *decimal.Decimal) (decimal.Decimal, error) {
	if provided != nil {
		if !provided.IsPositive() {
			return decimal.Zero, generic.NewValidationError("duration_days", "must be positive")
		}
		if provided.GreaterThan(decimal.NewFromInt(int64(len(p.Days())))) {
			return decimal.Zero, generic.NewValidationError("duration_days", "exceeds the %d days of the range", len(p.Days()))
		}
		return *provided, nil
	}

	holidays, blocked, err := s.calendarFor(ctx, p)
	if err != nil {
		return decimal.Zero, err
	}
	days := WorkingDays(p, holidays, blocked)
	if days == 0 {
		return decimal.Zero, generic.NewValidationError("to", "range %s contains no working days", p)
	}
	return decimal.NewFromInt(int64(days)), nil
}

// =============================================================================
// RANGE CHECKS
// =============================================================================

func (s *Service) checkBlocked(ctx context.Context, empID generic.EntityID, p generic.Period) error {
	_, blocked, err := s.calendarFor(ctx, p)
	if err != nil {
		return err
	}
	for _, b := range blocked {
		if b.Overlaps(p) {
			return &generic.EligibilityError{
				EmployeeID: empID,
				Violations: []string{fmt.Sprintf("range %s intersects blocked period %s", p, b)},
			}
		}
	}
	return nil
}

// checkOverlap rejects p when it intersects a PENDING or APPROVED request of
// the same employee. excludeID skips the request being edited.
func (s *Service) checkOverlap(ctx context.Context, empID generic.EntityID, p generic.Period, excludeID string) error {
	existing, err := s.Store.ListRequests(ctx, RequestFilter{
		EmployeeID:  string(empID),
		Statuses:    []RequestStatus{StatusPending, StatusApproved},
		Overlapping: &p,
	})
	if err != nil {
		return fmt.Errorf("list overlapping requests: %w", err)
	}
	for _, r := range existing {
		if r.ID == excludeID || !r.Period().Overlaps(p) {
			continue
		}
		return &generic.OverlapError{EmployeeID: empID, ExistingRequestID: r.ID, From: r.From, To: r.To}
	}
	return nil
}

// isSickLeave matches the sick category and types named as sick leave.
func isSickLeave(lt *LeaveType) bool {
	return lt.Category == CategorySick || strings.Contains(strings.ToLower(lt.Name), "sick")
}

// checkNotice enforces the policy's minimum notice. Sick leave is exempt.
func checkNotice(emp *Employee, lt *LeaveType, from, today time.Time) error {
	if lt.Policy.MinNoticeDays <= 0 || isSickLeave(lt) {
		return nil
	}
	if notice := generic.DaysBetween(today, from); notice < lt.Policy.MinNoticeDays {
		return &generic.EligibilityError{
			EmployeeID: generic.EntityID(emp.ID),
			Violations: []string{fmt.Sprintf("%s requires %d days notice, got %d", lt.Name, lt.Policy.MinNoticeDays, notice)},
		}
	}
	return nil
}
