/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every structured error unwraps to a sentinel so callers can branch
  with errors.Is and still read the details with errors.As.

ERROR CATEGORIES:
  1. ValidationError  - Bad input shape, rejected before any mutation
  2. EligibilityError - Aggregated business-rule violations
  3. StateError       - Illegal lifecycle transition
  4. NotFoundError    - Unknown id
  5. BalanceError     - Not enough remaining balance
  6. OverlapError     - Date range collides with an active request
  7. BatchError       - A batch run where nothing succeeded

USAGE:
    if errors.Is(err, generic.ErrInsufficientBalance) {
        var be *generic.BalanceError
        errors.As(err, &be)
        log.Printf("short by %s days", be.Shortfall)
    }

SEE ALSO:
  - api/handlers.go: Maps these errors to HTTP status codes
  - batch.go: Produces BatchError
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrEligibility is returned when an employee does not meet a policy's eligibility rules.
	ErrEligibility = errors.New("eligibility check failed")

	// ErrInvalidState is returned for a transition the lifecycle does not allow.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientBalance is returned when a request exceeds available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrOverlap is returned when a date range intersects an active request.
	ErrOverlap = errors.New("overlapping leave request")

	// ErrForbidden is returned when the actor has no authority for the action.
	ErrForbidden = errors.New("not authorized")

	// ErrDuplicateIdempotencyKey is returned when a movement with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrBatchFailed is returned when no entity in a batch run succeeded.
	ErrBatchFailed = errors.New("batch failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes one bad input field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// EligibilityError aggregates every violated eligibility constraint.
// It is never fail-fast: all reasons are collected before it is returned.
type EligibilityError struct {
	EmployeeID EntityID
	Violations []string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("employee %s is not eligible: %s", e.EmployeeID, strings.Join(e.Violations, "; "))
}

func (e *EligibilityError) Unwrap() error { return ErrEligibility }

// StateError reports an action attempted from a status that does not allow it.
type StateError struct {
	Kind    string // e.g. "leave request"
	ID      string
	Current string
	Action  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s: current status %s", e.Action, e.Kind, e.ID, e.Current)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// NotFoundError names the kind and id that could not be resolved.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// BalanceError provides details about a balance shortage.
type BalanceError struct {
	EmployeeID  EntityID
	LeaveTypeID PolicyID
	Available   decimal.Decimal
	Requested   decimal.Decimal
	Shortfall   decimal.Decimal
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s, shortfall %s",
		e.Available, e.Requested, e.Shortfall)
}

func (e *BalanceError) Unwrap() error { return ErrInsufficientBalance }

// NewBalanceError fills in the shortfall.
func NewBalanceError(employeeID EntityID, leaveTypeID PolicyID, available, requested decimal.Decimal) *BalanceError {
	return &BalanceError{
		EmployeeID:  employeeID,
		LeaveTypeID: leaveTypeID,
		Available:   available,
		Requested:   requested,
		Shortfall:   requested.Sub(available),
	}
}

// OverlapError identifies the active request a new range collides with.
type OverlapError struct {
	EmployeeID        EntityID
	ExistingRequestID string
	From              time.Time
	To                time.Time
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("requested range overlaps request %s (%s to %s)",
		e.ExistingRequestID, e.From.Format(DateLayout), e.To.Format(DateLayout))
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// BatchError is the hard failure of a batch run where no entity succeeded.
type BatchError struct {
	Kind    string
	Skipped int
	Failed  int
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s run had no successful entity (skipped %d, failed %d)", e.Kind, e.Skipped, e.Failed)
}

func (e *BatchError) Unwrap() error { return ErrBatchFailed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input or
// a business rule, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrEligibility) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrOverlap) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
