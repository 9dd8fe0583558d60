package leave

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

// Validate checks a leave type before it is stored.
func (lt *LeaveType) Validate() error {
	if strings.TrimSpace(lt.Name) == "" {
		return generic.NewValidationError("name", "is required")
	}
	switch lt.Category {
	case CategoryAnnual, CategorySick, CategoryUnpaid, CategoryOther:
	default:
		return generic.NewValidationError("category", "unknown category %q", lt.Category)
	}
	if lt.Attachments.MaxBytes < 0 {
		return generic.NewValidationError("attachments.max_bytes", "must not be negative")
	}
	if lt.Limits.MaxDaysPerYear.IsNegative() || lt.Limits.MaxDaysPerWindow.IsNegative() || lt.Limits.WindowYears < 0 {
		return generic.NewValidationError("limits", "must not be negative")
	}
	return lt.Policy.Validate()
}

func (p Policy) Validate() error {
	switch p.AccrualMethod {
	case AccrualMonthly, AccrualYearly, AccrualNone:
	default:
		return generic.NewValidationError("policy.accrual_method", "unknown accrual method %q", p.AccrualMethod)
	}
	if _, err := generic.ParseRoundingRule(string(p.RoundingRule)); err != nil {
		return err
	}
	if p.MonthlyRate.IsNegative() || p.YearlyRate.IsNegative() {
		return generic.NewValidationError("policy.rate", "must not be negative")
	}
	if p.MaxCarryForward.IsNegative() {
		return generic.NewValidationError("policy.max_carry_forward", "must not be negative")
	}
	if p.MinNoticeDays < 0 {
		return generic.NewValidationError("policy.min_notice_days", "must not be negative")
	}
	return p.Eligibility.Validate()
}

func (s *Service) CreateLeaveType(ctx context.Context, lt *LeaveType) error {
	if lt.Policy.RoundingRule == "" {
		lt.Policy.RoundingRule = generic.RoundNone
	}
	if err := lt.Validate(); err != nil {
		return err
	}
	now := s.now()
	lt.ID = generic.NewID()
	lt.CreatedAt, lt.UpdatedAt = now, now
	if err := s.Store.SaveLeaveType(ctx, lt); err != nil {
		return fmt.Errorf("save leave type: %w", err)
	}
	return nil
}

// UpdateLeaveType replaces a leave type's definition and recomputes the
// derived fields of its entitlements against the new policy.
func (s *Service) UpdateLeaveType(ctx context.Context, lt *LeaveType) error {
	existing, err := s.Store.GetLeaveType(ctx, lt.ID)
	if err != nil {
		return err
	}
	if lt.Policy.RoundingRule == "" {
		lt.Policy.RoundingRule = generic.RoundNone
	}
	if err := lt.Validate(); err != nil {
		return err
	}
	lt.CreatedAt = existing.CreatedAt
	lt.UpdatedAt = s.now()
	if err := s.Store.SaveLeaveType(ctx, lt); err != nil {
		return fmt.Errorf("save leave type: %w", err)
	}

	n, err := s.RecomputeForLeaveType(ctx, lt.ID)
	if err != nil {
		return err
	}
	s.Logger.Info("leave type updated", zap.String("leave_type_id", lt.ID), zap.Int("recomputed", n))
	return nil
}

func (s *Service) ListLeaveTypes(ctx context.Context) ([]LeaveType, error) {
	return s.Store.ListLeaveTypes(ctx)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (e *Employee) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return generic.NewValidationError("name", "is required")
	}
	switch e.Status {
	case EmployeeActive, EmployeeSuspended, EmployeeOnLeave, EmployeeTerminated:
	default:
		return generic.NewValidationError("status", "unknown status %q", e.Status)
	}
	if e.HireDate.IsZero() {
		return generic.NewValidationError("hire_date", "is required")
	}
	return nil
}

// SaveEmployee creates or replaces an employee record. A blank id is assigned.
func (s *Service) SaveEmployee(ctx context.Context, e *Employee) error {
	if e.Status == "" {
		e.Status = EmployeeActive
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = generic.NewID()
	} else if err := generic.ParseID("id", e.ID); err != nil {
		return err
	}
	if err := s.Store.SaveEmployee(ctx, e); err != nil {
		return fmt.Errorf("save employee: %w", err)
	}
	return nil
}

func (s *Service) ListEmployees(ctx context.Context, filter EmployeeFilter) ([]Employee, error) {
	return s.Store.ListEmployees(ctx, filter)
}
