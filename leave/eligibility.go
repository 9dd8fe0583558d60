package leave

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// ELIGIBILITY - Named optional constraints, checked without short-circuit
// =============================================================================

// Validate is run when a policy is created or replaced.
func (e Eligibility) Validate() error {
	if e.MinTenureMonths < 0 {
		return generic.NewValidationError("eligibility.min_tenure_months", "must not be negative")
	}
	if err := validateAllowList("eligibility.allowed_positions", e.AllowedPositions); err != nil {
		return err
	}
	return validateAllowList("eligibility.allowed_contract_types", e.AllowedContractTypes)
}

func validateAllowList(field string, values []string) error {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			return generic.NewValidationError(field, "must not contain empty values")
		}
		if seen[key] {
			return generic.NewValidationError(field, "duplicate value %q", v)
		}
		seen[key] = true
	}
	return nil
}

// Check returns every constraint emp violates on asOf. An empty slice
// means eligible.
func (e Eligibility) Check(emp *Employee, asOf time.Time) []string {
	var violations []string

	if e.MinTenureMonths > 0 {
		if emp.HireDate.IsZero() {
			violations = append(violations, "hire date is unknown")
		} else if months := generic.MonthsBetween(emp.HireDate, asOf); months < e.MinTenureMonths {
			violations = append(violations,
				fmt.Sprintf("tenure of %d months is below the required %d", months, e.MinTenureMonths))
		}
	}
	if len(e.AllowedPositions) > 0 && !containsFold(e.AllowedPositions, emp.Position) {
		violations = append(violations,
			fmt.Sprintf("position %q is not in %s", emp.Position, strings.Join(e.AllowedPositions, ", ")))
	}
	if len(e.AllowedContractTypes) > 0 && !containsFold(e.AllowedContractTypes, emp.ContractType) {
		violations = append(violations,
			fmt.Sprintf("contract type %q is not in %s", emp.ContractType, strings.Join(e.AllowedContractTypes, ", ")))
	}
	return violations
}

func containsFold(list []string, v string) bool {
	return slices.ContainsFunc(list, func(s string) bool { return strings.EqualFold(s, v) })
}

// CheckEligibility returns an EligibilityError listing every violation, or nil.
func (s *Service) CheckEligibility(ctx context.Context, employeeID, leaveTypeID string) error {
	emp, err := s.Store.GetEmployee(ctx, employeeID)
	if err != nil {
		return err
	}
	lt, err := s.Store.GetLeaveType(ctx, leaveTypeID)
	if err != nil {
		return err
	}
	return checkEligibility(emp, lt, s.today())
}

func checkEligibility(emp *Employee, lt *LeaveType, asOf time.Time) error {
	if v := lt.Policy.Eligibility.Check(emp, asOf); len(v) > 0 {
		return &generic.EligibilityError{EmployeeID: generic.EntityID(emp.ID), Violations: v}
	}
	return nil
}
