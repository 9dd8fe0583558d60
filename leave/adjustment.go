package leave

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// MANUAL ADJUSTMENTS
// =============================================================================
// An adjustment is the only way accruedActual goes down outside a reset.
// The entitlement mutation and the audit record are written together: if
// the record cannot be saved the mutation is reversed.

type AdjustInput struct {
	EntitlementID string
	Type          AdjustmentType
	Amount        decimal.Decimal
	Reason        string
	Actor         string
}

func (in AdjustInput) validate() error {
	switch in.Type {
	case AdjustmentAdd, AdjustmentDeduct, AdjustmentEncashment:
	default:
		return generic.NewValidationError("type", "unknown adjustment type %q", in.Type)
	}
	if !in.Amount.IsPositive() {
		return generic.NewValidationError("amount", "must be positive")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return generic.NewValidationError("reason", "is required")
	}
	return nil
}

// Adjust applies a manual add, deduct or encashment to an entitlement.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (*Adjustment, *Entitlement, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}
	ent, err := s.Store.GetEntitlement(ctx, in.EntitlementID)
	if err != nil {
		return nil, nil, err
	}
	lt, err := s.Store.GetLeaveType(ctx, string(ent.LeaveTypeID))
	if err != nil {
		return nil, nil, err
	}

	delta := EntitlementDelta{AccruedActual: in.Amount}
	if in.Type != AdjustmentAdd {
		ent.Recompute(lt.Policy.RoundingRule)
		if in.Amount.GreaterThan(ent.Remaining) {
			return nil, nil, generic.NewBalanceError(ent.EmployeeID, ent.LeaveTypeID, ent.Remaining, in.Amount)
		}
		delta.AccruedActual = in.Amount.Neg()
	}

	adj := &Adjustment{
		ID:            generic.NewID(),
		EntitlementID: ent.ID,
		EmployeeID:    ent.EmployeeID,
		LeaveTypeID:   ent.LeaveTypeID,
		Type:          in.Type,
		Amount:        in.Amount,
		Reason:        in.Reason,
		CreatedBy:     in.Actor,
		CreatedAt:     s.now(),
	}
	mv := movement{
		Type:        generic.TxAdjustment,
		ReferenceID: adj.ID,
		Reason:      string(in.Type) + ": " + in.Reason,
		Actor:       in.Actor,
	}

	updated, err := s.apply(ctx, ent.ID, lt, delta, mv, nil)
	if err != nil {
		return nil, nil, err
	}

	if err := s.Store.SaveAdjustment(ctx, adj); err != nil {
		mv.Reason = "rollback: " + mv.Reason
		if _, rerr := s.apply(ctx, ent.ID, lt, delta.Neg(), mv, nil); rerr != nil {
			s.Logger.Error("failed to reverse adjustment",
				zap.String("entitlement_id", ent.ID),
				zap.Error(rerr),
			)
		}
		return nil, nil, fmt.Errorf("save adjustment: %w", err)
	}
	return adj, updated, nil
}

func (s *Service) ListAdjustments(ctx context.Context, entitlementID string) ([]Adjustment, error) {
	if _, err := s.Store.GetEntitlement(ctx, entitlementID); err != nil {
		return nil, err
	}
	return s.Store.ListAdjustments(ctx, entitlementID)
}
