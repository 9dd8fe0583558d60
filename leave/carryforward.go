/*
carryforward.go - Period-end carry-forward and anniversary reset

CARRY-FORWARD:
  carryForward is set to min(remaining, policy.maxCarryForward) and
  remaining is recomputed canonically. The job is meant to run right
  before the reset, which then keeps carryForward and zeroes everything else.

    remaining 15, max 5  =>  carryForward 5, remaining 10

RESET:
  Each employee's period is anchored on a date chosen by ResetCriterion.
  Once the current anniversary has passed and the entitlement has not been
  reset in this cycle (nextResetDate not after today), accrued, taken and
  pending go to zero, carryForward survives only if the policy allows it,
  and nextResetDate moves to the following anniversary.

  First-year employees (anniversary not after the anchor) and employees
  without the anchor date are skipped.
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
)

const (
	batchCarryForward = "carry_forward"
	batchReset        = "reset"
)

// ResetCriterion picks the employee date that anchors the leave year.
type ResetCriterion string

const (
	ResetHireDate          ResetCriterion = "HIRE_DATE"
	ResetFirstVacationDate ResetCriterion = "FIRST_VACATION_DATE"
	ResetContractStartDate ResetCriterion = "CONTRACT_START_DATE"
)

func ParseResetCriterion(s string) (ResetCriterion, error) {
	switch c := ResetCriterion(s); c {
	case ResetHireDate, ResetFirstVacationDate, ResetContractStartDate:
		return c, nil
	case "":
		return ResetHireDate, nil
	default:
		return "", generic.NewValidationError("criterion", "unknown reset criterion %q", s)
	}
}

// Anchor returns the employee date for c, or nil when the employee has none.
func (c ResetCriterion) Anchor(emp *Employee) *time.Time {
	switch c {
	case ResetFirstVacationDate:
		return emp.FirstVacationDate
	case ResetContractStartDate:
		return emp.ContractStartDate
	default:
		if emp.HireDate.IsZero() {
			return nil
		}
		hire := emp.HireDate
		return &hire
	}
}

// nextAnniversary is the first anniversary of anchor strictly after day.
func nextAnniversary(anchor, day time.Time) time.Time {
	year := day.Year()
	if anchor.Year() > year {
		year = anchor.Year()
	}
	next := generic.AnniversaryIn(anchor, year)
	for !next.After(day) || !next.After(anchor) {
		year++
		next = generic.AnniversaryIn(anchor, year)
	}
	return next
}

// =============================================================================
// CARRY-FORWARD
// =============================================================================

type CarryForwardRun struct {
	LeaveTypeID string
	EmployeeID  string     // optional
	AsOf        *time.Time // optional, defaults to today
	Actor       string
}

// RunCarryForward caps and transfers remaining balance into carryForward.
func (s *Service) RunCarryForward(ctx context.Context, run CarryForwardRun) (*generic.BatchResult, error) {
	lt, err := s.Store.GetLeaveType(ctx, run.LeaveTypeID)
	if err != nil {
		return nil, err
	}
	ents, err := s.Store.ListEntitlements(ctx, EntitlementFilter{
		EmployeeID:  run.EmployeeID,
		LeaveTypeID: run.LeaveTypeID,
	})
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}

	asOf := s.today()
	if run.AsOf != nil {
		asOf = generic.TruncateDay(*run.AsOf)
	}
	reason := "carry-forward as of " + asOf.Format(generic.DateLayout)

	result := generic.NewBatchResult(batchCarryForward, s.now())
	for i := range ents {
		ent := &ents[i]
		if !lt.Policy.AllowCarryForward {
			result.Skip(ent.EmployeeID, ent.ID, "policy does not allow carry-forward")
			continue
		}

		ent.Recompute(lt.Policy.RoundingRule)
		amount := decimal.Min(ent.Remaining, lt.Policy.MaxCarryForward)
		if !amount.IsPositive() {
			result.Skip(ent.EmployeeID, ent.ID, "nothing to carry forward")
			continue
		}

		previous := ent.Remaining
		updated, err := s.apply(ctx, ent.ID, lt,
			EntitlementDelta{CarryForward: amount.Sub(ent.CarryForward)},
			movement{Type: generic.TxCarryForward, Reason: reason, Actor: run.Actor},
			nil,
		)
		if err != nil {
			result.Fail(ent.EmployeeID, ent.ID, err)
			continue
		}
		result.Succeed(ent.EmployeeID, ent.ID, previous, updated.Remaining)
	}
	result.CompletedAt = s.now()

	s.logBatch(result)
	return result, result.Err()
}

// =============================================================================
// RESET
// =============================================================================

// ResetForNewYear resets every entitlement whose anniversary has passed.
// Per-entitlement failures are recorded and logged; the run itself only
// fails when the entitlements cannot be listed.
func (s *Service) ResetForNewYear(ctx context.Context, criterion ResetCriterion, actor string) (*generic.BatchResult, error) {
	if _, err := ParseResetCriterion(string(criterion)); err != nil {
		return nil, err
	}
	ents, err := s.Store.ListEntitlements(ctx, EntitlementFilter{})
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}

	today := s.today()
	types := map[generic.PolicyID]*LeaveType{}
	result := generic.NewBatchResult(batchReset, s.now())

	for i := range ents {
		ent := &ents[i]
		lt, ok := types[ent.LeaveTypeID]
		if !ok {
			lt, err = s.Store.GetLeaveType(ctx, string(ent.LeaveTypeID))
			if err != nil {
				result.Fail(ent.EmployeeID, ent.ID, err)
				continue
			}
			types[ent.LeaveTypeID] = lt
		}
		emp, err := s.Store.GetEmployee(ctx, string(ent.EmployeeID))
		if err != nil {
			result.Fail(ent.EmployeeID, ent.ID, err)
			continue
		}

		if err := s.resetOne(ctx, ent, lt, emp, criterion, today, actor, result); err != nil {
			result.Fail(ent.EmployeeID, ent.ID, err)
		}
	}
	result.CompletedAt = s.now()

	s.logBatch(result)
	return result, nil
}

func (s *Service) resetOne(ctx context.Context, ent *Entitlement, lt *LeaveType, emp *Employee, criterion ResetCriterion, today time.Time, actor string, result *generic.BatchResult) error {
	anchor := criterion.Anchor(emp)
	if anchor == nil {
		result.Skip(ent.EmployeeID, ent.ID, fmt.Sprintf("employee has no %s", criterion))
		return nil
	}
	first := generic.TruncateDay(*anchor)

	cycle := generic.PeriodConfig{Type: generic.PeriodAnniversary, AnchorDate: &first}.PeriodFor(today)
	resetDate := cycle.Start
	if !resetDate.After(first) {
		result.Skip(ent.EmployeeID, ent.ID, "first year of service")
		return nil
	}
	if ent.NextResetDate != nil && ent.NextResetDate.After(today) {
		result.Skip(ent.EmployeeID, ent.ID, "already reset this cycle")
		return nil
	}

	ent.Recompute(lt.Policy.RoundingRule)
	previous := ent.Remaining

	delta := EntitlementDelta{
		AccruedActual: ent.AccruedActual.Neg(),
		Taken:         ent.Taken.Neg(),
		Pending:       ent.Pending.Neg(),
	}
	if !lt.Policy.AllowCarryForward {
		delta.CarryForward = ent.CarryForward.Neg()
	}
	next := cycle.End.AddDate(0, 0, 1)

	updated, err := s.apply(ctx, ent.ID, lt, delta,
		movement{
			Type:   generic.TxReset,
			Reason: "reset on " + resetDate.Format(generic.DateLayout),
			Actor:  actor,
		},
		func(e *Entitlement) { e.NextResetDate = &next },
	)
	if err != nil {
		return err
	}

	s.Logger.Debug("entitlement reset",
		zap.String("entitlement_id", ent.ID),
		zap.Time("reset_date", resetDate),
		zap.Time("next_reset_date", next),
	)
	result.Succeed(ent.EmployeeID, ent.ID, previous, updated.Remaining)
	return nil
}
