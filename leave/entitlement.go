package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// DERIVED FIELDS
// =============================================================================

// Recompute is the only writer of AccruedRounded and Remaining. It also
// clamps Pending at zero, which makes over-releases harmless.
func (e *Entitlement) Recompute(rule generic.RoundingRule) {
	e.Pending = generic.ClampZero(e.Pending)
	e.AccruedRounded = generic.ApplyRounding(e.AccruedActual, rule)
	e.Remaining = e.AccruedRounded.Add(e.CarryForward).Sub(e.Taken).Sub(e.Pending)
}

// Available is what a new request may reserve: remaining - pending.
func (e *Entitlement) Available() decimal.Decimal {
	return e.Remaining.Sub(e.Pending)
}

// availableExcluding is Available with days of one existing reservation
// handed back, used when a pending request is edited.
func (e Entitlement) availableExcluding(reserved decimal.Decimal, rule generic.RoundingRule) decimal.Decimal {
	e.Pending = e.Pending.Sub(reserved)
	e.Recompute(rule)
	return e.Available()
}

// =============================================================================
// ENTITLEMENT OPERATIONS
// =============================================================================

// EnsureEntitlement returns the entitlement for (employee, leave type),
// creating an empty one when none exists. The first reset is scheduled on
// the next hire-date anniversary.
func (s *Service) EnsureEntitlement(ctx context.Context, employeeID, leaveTypeID string, yearly decimal.Decimal) (*Entitlement, error) {
	if err := generic.ParseID("employee_id", employeeID); err != nil {
		return nil, err
	}
	if err := generic.ParseID("leave_type_id", leaveTypeID); err != nil {
		return nil, err
	}
	if yearly.IsNegative() {
		return nil, generic.NewValidationError("yearly_entitlement", "must not be negative")
	}

	existing, err := s.Store.FindEntitlement(ctx, employeeID, leaveTypeID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, generic.ErrNotFound) {
		return nil, err
	}

	emp, err := s.Store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Store.GetLeaveType(ctx, leaveTypeID); err != nil {
		return nil, err
	}

	now := s.now()
	ent := &Entitlement{
		ID:                generic.NewID(),
		EmployeeID:        generic.EntityID(employeeID),
		LeaveTypeID:       generic.PolicyID(leaveTypeID),
		YearlyEntitlement: yearly,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if !emp.HireDate.IsZero() {
		next := nextAnniversary(emp.HireDate, s.today())
		ent.NextResetDate = &next
	}
	ent.Recompute(generic.RoundNone)

	if err := s.Store.CreateEntitlement(ctx, ent); err != nil {
		return nil, fmt.Errorf("create entitlement: %w", err)
	}
	return ent, nil
}

// GetEntitlement reads an entitlement and recomputes its derived fields
// against the current policy, so a changed rounding rule shows on read.
func (s *Service) GetEntitlement(ctx context.Context, id string) (*Entitlement, error) {
	ent, err := s.Store.GetEntitlement(ctx, id)
	if err != nil {
		return nil, err
	}
	lt, err := s.Store.GetLeaveType(ctx, string(ent.LeaveTypeID))
	if err != nil {
		return nil, err
	}
	ent.Recompute(lt.Policy.RoundingRule)
	return ent, nil
}

// ListEntitlements returns an employee's entitlements, recomputed.
func (s *Service) ListEntitlements(ctx context.Context, employeeID string) ([]Entitlement, error) {
	ents, err := s.Store.ListEntitlements(ctx, EntitlementFilter{EmployeeID: employeeID})
	if err != nil {
		return nil, err
	}
	types := map[generic.PolicyID]*LeaveType{}
	for i := range ents {
		lt, ok := types[ents[i].LeaveTypeID]
		if !ok {
			lt, err = s.Store.GetLeaveType(ctx, string(ents[i].LeaveTypeID))
			if err != nil {
				return nil, err
			}
			types[ents[i].LeaveTypeID] = lt
		}
		ents[i].Recompute(lt.Policy.RoundingRule)
	}
	return ents, nil
}

// RecomputeForLeaveType eagerly rewrites the derived fields of every
// entitlement of a leave type, after its policy changed.
func (s *Service) RecomputeForLeaveType(ctx context.Context, leaveTypeID string) (int, error) {
	lt, err := s.Store.GetLeaveType(ctx, leaveTypeID)
	if err != nil {
		return 0, err
	}
	ents, err := s.Store.ListEntitlements(ctx, EntitlementFilter{LeaveTypeID: leaveTypeID})
	if err != nil {
		return 0, err
	}

	updated := 0
	for i := range ents {
		ent := &ents[i]
		before := ent.Remaining
		beforeRounded := ent.AccruedRounded
		ent.Recompute(lt.Policy.RoundingRule)
		if ent.Remaining.Equal(before) && ent.AccruedRounded.Equal(beforeRounded) {
			continue
		}
		err := s.Store.SetEntitlementDerived(ctx, ent.ID, DerivedFields{
			AccruedRounded: ent.AccruedRounded,
			Remaining:      ent.Remaining,
			UpdatedAt:      s.now(),
		})
		if err != nil {
			return updated, fmt.Errorf("recompute entitlement %s: %w", ent.ID, err)
		}
		updated++
	}
	return updated, nil
}

// History returns the movements recorded for an entitlement.
func (s *Service) History(ctx context.Context, entitlementID string) ([]generic.Transaction, error) {
	ent, err := s.Store.GetEntitlement(ctx, entitlementID)
	if err != nil {
		return nil, err
	}
	if s.Ledger == nil {
		return nil, nil
	}
	txs, err := s.Ledger.Transactions(ctx, ent.EmployeeID, ent.LeaveTypeID)
	if err != nil {
		return nil, fmt.Errorf("load movements: %w", err)
	}
	return txs, nil
}

// HistoryBetween returns the movements recorded on the days of p.
func (s *Service) HistoryBetween(ctx context.Context, entitlementID string, p generic.Period) ([]generic.Transaction, error) {
	ent, err := s.Store.GetEntitlement(ctx, entitlementID)
	if err != nil {
		return nil, err
	}
	if s.Ledger == nil {
		return nil, nil
	}
	end := p.End.AddDate(0, 0, 1).Add(-time.Nanosecond)
	txs, err := s.Ledger.TransactionsInRange(ctx, ent.EmployeeID, ent.LeaveTypeID, p.Start, end)
	if err != nil {
		return nil, fmt.Errorf("load movements: %w", err)
	}
	return txs, nil
}
