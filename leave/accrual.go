/*
accrual.go - Periodic accrual into entitlements

PURPOSE:
  Adds the policy rate (or an explicit amount) to accruedActual. The usable
  balance only moves by whole steps when the leave type rounds, because
  accruedRounded is recomputed from the cumulative raw amount every time.

SKIP RULES:
  An entitlement is skipped, not failed, when its employee:
    - is SUSPENDED, ON_LEAVE or TERMINATED
    - has an APPROVED request covering today

BATCH:
  AccrueAll walks every entitlement of a leave type (optionally one
  department) sequentially. Each entity lands in the BatchResult as
  success, skipped or failed; only an empty success set is an error.
*/
package leave

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
)

const batchAccrual = "accrual"

// AccrualAmount is the amount one accrual run adds under this policy.
func (p Policy) AccrualAmount() decimal.Decimal {
	switch p.AccrualMethod {
	case AccrualMonthly:
		return p.MonthlyRate
	case AccrualYearly:
		return p.YearlyRate
	default:
		return decimal.Zero
	}
}

// AccrualRun selects the entitlements of one batch accrual.
type AccrualRun struct {
	LeaveTypeID  string
	DepartmentID string           // optional
	Amount       *decimal.Decimal // nil = policy rate
	Actor        string
}

// Accrue adds amount to one entitlement. A zero amount means the policy
// rate. A skipped entitlement returns a skipped outcome and no error.
func (s *Service) Accrue(ctx context.Context, entitlementID string, amount decimal.Decimal, actor string) (generic.Outcome, error) {
	if amount.IsNegative() {
		return generic.Outcome{}, generic.NewValidationError("amount", "must not be negative")
	}
	ent, err := s.Store.GetEntitlement(ctx, entitlementID)
	if err != nil {
		return generic.Outcome{}, err
	}
	lt, err := s.Store.GetLeaveType(ctx, string(ent.LeaveTypeID))
	if err != nil {
		return generic.Outcome{}, err
	}
	emp, err := s.Store.GetEmployee(ctx, string(ent.EmployeeID))
	if err != nil {
		return generic.Outcome{}, err
	}
	if amount.IsZero() {
		amount = lt.Policy.AccrualAmount()
	}
	return s.accrueOne(ctx, ent, lt, emp, amount, actor)
}

// AccrueAll runs one accrual over every matching entitlement.
func (s *Service) AccrueAll(ctx context.Context, run AccrualRun) (*generic.BatchResult, error) {
	if run.Amount != nil && run.Amount.IsNegative() {
		return nil, generic.NewValidationError("amount", "must not be negative")
	}
	lt, err := s.Store.GetLeaveType(ctx, run.LeaveTypeID)
	if err != nil {
		return nil, err
	}
	ents, err := s.Store.ListEntitlements(ctx, EntitlementFilter{LeaveTypeID: run.LeaveTypeID})
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}

	amount := lt.Policy.AccrualAmount()
	if run.Amount != nil {
		amount = *run.Amount
	}

	result := generic.NewBatchResult(batchAccrual, s.now())
	for i := range ents {
		ent := &ents[i]
		emp, err := s.Store.GetEmployee(ctx, string(ent.EmployeeID))
		if err != nil {
			result.Fail(ent.EmployeeID, ent.ID, err)
			continue
		}
		if run.DepartmentID != "" && emp.DepartmentID != run.DepartmentID {
			continue
		}

		outcome, err := s.accrueOne(ctx, ent, lt, emp, amount, run.Actor)
		if err != nil {
			result.Fail(ent.EmployeeID, ent.ID, err)
			continue
		}
		result.Add(outcome)
	}
	result.CompletedAt = s.now()

	s.logBatch(result)
	return result, result.Err()
}

func (s *Service) accrueOne(ctx context.Context, ent *Entitlement, lt *LeaveType, emp *Employee, amount decimal.Decimal, actor string) (generic.Outcome, error) {
	skip := generic.Outcome{EntityID: ent.EmployeeID, TargetID: ent.ID, Status: generic.OutcomeSkipped}

	if !amount.IsPositive() {
		skip.Reason = "nothing to accrue"
		return skip, nil
	}
	reason, err := s.accrualBlocker(ctx, emp)
	if err != nil {
		return generic.Outcome{}, err
	}
	if reason != "" {
		skip.Reason = reason
		return skip, nil
	}

	ent.Recompute(lt.Policy.RoundingRule)
	previous := ent.Remaining

	today := s.today()
	updated, err := s.apply(ctx, ent.ID, lt,
		EntitlementDelta{AccruedActual: amount},
		movement{Type: generic.TxAccrual, Reason: "accrual", Actor: actor},
		func(e *Entitlement) { e.LastAccrualDate = &today },
	)
	if err != nil {
		return generic.Outcome{}, err
	}

	return generic.Outcome{
		EntityID: ent.EmployeeID,
		TargetID: ent.ID,
		Status:   generic.OutcomeSuccess,
		Previous: previous,
		Current:  updated.Remaining,
	}, nil
}

// accrualBlocker returns why emp must not accrue today, or "".
func (s *Service) accrualBlocker(ctx context.Context, emp *Employee) (string, error) {
	switch emp.Status {
	case EmployeeSuspended:
		return "employee is suspended", nil
	case EmployeeOnLeave:
		return "employee is on leave", nil
	case EmployeeTerminated:
		return "employee is terminated", nil
	}

	today := generic.NewPeriod(s.today(), s.today())
	active, err := s.Store.ListRequests(ctx, RequestFilter{
		EmployeeID:  emp.ID,
		Statuses:    []RequestStatus{StatusApproved},
		Overlapping: &today,
	})
	if err != nil {
		return "", fmt.Errorf("list approved requests: %w", err)
	}
	if len(active) > 0 {
		return "employee is on approved leave today", nil
	}
	return "", nil
}

// logBatch writes one line per skipped or failed entity and a summary.
func (s *Service) logBatch(r *generic.BatchResult) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case generic.OutcomeSkipped:
			s.Logger.Info("batch entity skipped",
				zap.String("run", r.Kind),
				zap.String("employee_id", string(o.EntityID)),
				zap.String("entitlement_id", o.TargetID),
				zap.String("reason", o.Reason),
			)
		case generic.OutcomeFailed:
			s.Logger.Error("batch entity failed",
				zap.String("run", r.Kind),
				zap.String("employee_id", string(o.EntityID)),
				zap.String("entitlement_id", o.TargetID),
				zap.String("reason", o.Reason),
			)
		}
	}
	s.Logger.Info("batch run finished",
		zap.String("run", r.Kind),
		zap.String("run_id", r.RunID),
		zap.Int("succeeded", r.Succeeded()),
		zap.Int("skipped", r.Skipped()),
		zap.Int("failed", r.Failed()),
	)
}
