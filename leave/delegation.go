package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// DELEGATION - Persisted approval authority
// =============================================================================
// A delegation lets DelegateID approve and reject on behalf of ManagerID
// for every day of [From, To]. Records survive restarts; the active set is
// always queried at decision time.

type CreateDelegationInput struct {
	ManagerID  string
	DelegateID string
	From       time.Time
	To         time.Time
}

func (s *Service) CreateDelegation(ctx context.Context, in CreateDelegationInput) (*Delegation, error) {
	if in.ManagerID == "" {
		return nil, generic.NewValidationError("manager_id", "is required")
	}
	if in.DelegateID == "" {
		return nil, generic.NewValidationError("delegate_id", "is required")
	}
	if in.ManagerID == in.DelegateID {
		return nil, generic.NewValidationError("delegate_id", "must differ from the manager")
	}
	period := generic.NewPeriod(in.From, in.To)
	if !period.Valid() {
		return nil, generic.NewValidationError("to", "must not be before from")
	}
	if _, err := s.Store.GetEmployee(ctx, in.ManagerID); err != nil {
		return nil, err
	}
	if _, err := s.Store.GetEmployee(ctx, in.DelegateID); err != nil {
		return nil, err
	}

	existing, err := s.Store.ListDelegations(ctx, DelegationFilter{ManagerID: in.ManagerID, DelegateID: in.DelegateID})
	if err != nil {
		return nil, fmt.Errorf("list delegations: %w", err)
	}
	for _, d := range existing {
		if d.Period().Overlaps(period) {
			return nil, generic.NewValidationError("from", "delegation %s already covers %s", d.ID, d.Period())
		}
	}

	d := &Delegation{
		ID:         generic.NewID(),
		ManagerID:  in.ManagerID,
		DelegateID: in.DelegateID,
		From:       period.Start,
		To:         period.End,
		CreatedAt:  s.now(),
	}
	if err := s.Store.SaveDelegation(ctx, d); err != nil {
		return nil, fmt.Errorf("save delegation: %w", err)
	}
	return d, nil
}

// ActiveDelegates returns the delegations of managerID covering at.
func (s *Service) ActiveDelegates(ctx context.Context, managerID string, at time.Time) ([]Delegation, error) {
	day := generic.TruncateDay(at)
	return s.Store.ListDelegations(ctx, DelegationFilter{ManagerID: managerID, ActiveAt: &day})
}

func (s *Service) ListDelegations(ctx context.Context, filter DelegationFilter) ([]Delegation, error) {
	return s.Store.ListDelegations(ctx, filter)
}

func (s *Service) RevokeDelegation(ctx context.Context, id string) error {
	return s.Store.DeleteDelegation(ctx, id)
}

// canDecide allows the employee's manager or one of the manager's active
// delegates. An employee without a manager can be decided by anyone.
func (s *Service) canDecide(ctx context.Context, emp *Employee, actor string) error {
	if actor == "" {
		return generic.NewValidationError("actor", "is required")
	}
	if emp.ManagerID == "" || actor == emp.ManagerID {
		return nil
	}

	delegates, err := s.ActiveDelegates(ctx, emp.ManagerID, s.now())
	if err != nil {
		return fmt.Errorf("list active delegates: %w", err)
	}
	for _, d := range delegates {
		if d.DelegateID == actor {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not decide requests of employee %s", generic.ErrForbidden, actor, emp.ID)
}
