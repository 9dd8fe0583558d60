package leave

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// REPOSITORIES - Explicit lookups, no implicit joins
// =============================================================================
// Getters return *generic.NotFoundError for unknown ids.

type EmployeeFilter struct {
	DepartmentID string
	Status       EmployeeStatus
}

// EmployeeDirectory resolves employees for eligibility, authority and reset anchors.
type EmployeeDirectory interface {
	GetEmployee(ctx context.Context, id string) (*Employee, error)
}

type EmployeeStore interface {
	EmployeeDirectory
	SaveEmployee(ctx context.Context, e *Employee) error
	ListEmployees(ctx context.Context, filter EmployeeFilter) ([]Employee, error)
}

type LeaveTypeStore interface {
	SaveLeaveType(ctx context.Context, lt *LeaveType) error
	GetLeaveType(ctx context.Context, id string) (*LeaveType, error)
	ListLeaveTypes(ctx context.Context) ([]LeaveType, error)
}

type EntitlementFilter struct {
	EmployeeID  string
	LeaveTypeID string
}

type EntitlementStore interface {
	CreateEntitlement(ctx context.Context, e *Entitlement) error
	GetEntitlement(ctx context.Context, id string) (*Entitlement, error)
	FindEntitlement(ctx context.Context, employeeID, leaveTypeID string) (*Entitlement, error)
	ListEntitlements(ctx context.Context, filter EntitlementFilter) ([]Entitlement, error)

	// IncrementEntitlement atomically adds delta to the four counters and
	// returns the record as stored afterwards. Derived fields are untouched.
	IncrementEntitlement(ctx context.Context, id string, delta EntitlementDelta, at time.Time) (*Entitlement, error)

	// SetEntitlementDerived writes f without touching the counters, except
	// that a negative pending is raised to zero in the same statement.
	SetEntitlementDerived(ctx context.Context, id string, f DerivedFields) error

	// UpdateEntitlement overwrites every field of the record, counters
	// included. Only for imports and seeding; a concurrent increment is lost.
	UpdateEntitlement(ctx context.Context, e *Entitlement) error
}

// DerivedFields are the non-counter entitlement fields. Nil dates are left
// as stored.
type DerivedFields struct {
	AccruedRounded  decimal.Decimal
	Remaining       decimal.Decimal
	LastAccrualDate *time.Time
	NextResetDate   *time.Time
	UpdatedAt       time.Time
}

type RequestFilter struct {
	EmployeeID    string
	LeaveTypeID   string
	Statuses      []RequestStatus
	Overlapping   *generic.Period
	CreatedBefore *time.Time
}

type RequestStore interface {
	CreateRequest(ctx context.Context, r *LeaveRequest) error
	GetRequest(ctx context.Context, id string) (*LeaveRequest, error)
	UpdateRequest(ctx context.Context, r *LeaveRequest) error
	ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error)
}

type AdjustmentStore interface {
	SaveAdjustment(ctx context.Context, a *Adjustment) error
	ListAdjustments(ctx context.Context, entitlementID string) ([]Adjustment, error)
}

type DelegationFilter struct {
	ManagerID  string
	DelegateID string
	ActiveAt   *time.Time
}

type DelegationStore interface {
	SaveDelegation(ctx context.Context, d *Delegation) error
	ListDelegations(ctx context.Context, filter DelegationFilter) ([]Delegation, error)
	DeleteDelegation(ctx context.Context, id string) error
}

// CalendarStore persists holidays and blocked periods. calendar.Provider
// turns it into the Calendar the ledger consumes.
type CalendarStore interface {
	SaveHoliday(ctx context.Context, h *Holiday) error
	ListHolidays(ctx context.Context) ([]Holiday, error)
	DeleteHoliday(ctx context.Context, id string) error
	SaveBlockedPeriod(ctx context.Context, b *BlockedPeriod) error
	ListBlockedPeriods(ctx context.Context) ([]BlockedPeriod, error)
	DeleteBlockedPeriod(ctx context.Context, id string) error
}

// Store is everything the ledger persists.
type Store interface {
	EmployeeStore
	LeaveTypeStore
	EntitlementStore
	RequestStore
	AdjustmentStore
	DelegationStore
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Calendar supplies non-working days for duration computation.
type Calendar interface {
	Holidays(ctx context.Context, year int) ([]time.Time, error)
	BlockedPeriods(ctx context.Context, year int) ([]generic.Period, error)
}

// AttachmentStore exposes attachment metadata only.
type AttachmentStore interface {
	GetAttachment(ctx context.Context, id string) (*Attachment, error)
}

// Notifier delivers lifecycle events. Errors never reach the caller of a
// ledger operation.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}
