// Package leave implements the leave entitlement ledger: balances, accrual,
// carry-forward and reset, and the request lifecycle that mutates them.
// It uses the generic engine for rounding, dates, movements and errors.
package leave

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// EMPLOYEE - Resolved from the employee directory
// =============================================================================

type EmployeeStatus string

const (
	EmployeeActive     EmployeeStatus = "ACTIVE"
	EmployeeSuspended  EmployeeStatus = "SUSPENDED"
	EmployeeOnLeave    EmployeeStatus = "ON_LEAVE"
	EmployeeTerminated EmployeeStatus = "TERMINATED"
)

type Employee struct {
	ID                string
	Name              string
	Email             string
	DepartmentID      string
	ManagerID         string
	Position          string
	ContractType      string
	Status            EmployeeStatus
	HireDate          time.Time
	ContractStartDate *time.Time
	FirstVacationDate *time.Time
}

// =============================================================================
// LEAVE TYPE AND POLICY
// =============================================================================

type Category string

const (
	CategoryAnnual Category = "annual"
	CategorySick   Category = "sick"
	CategoryUnpaid Category = "unpaid"
	CategoryOther  Category = "other"
)

type AccrualMethod string

const (
	AccrualMonthly AccrualMethod = "monthly"
	AccrualYearly  AccrualMethod = "yearly"
	AccrualNone    AccrualMethod = "none"
)

// LeaveType is one kind of leave together with the policy governing it.
type LeaveType struct {
	ID                 string
	Code               string
	Name               string
	Category           Category
	Deductible         bool // requests reserve and consume balance
	RequiresAttachment bool
	Attachments        AttachmentRules
	Limits             CumulativeLimits
	Policy             Policy
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Policy holds the accrual, rounding and carry-forward rules of a leave type.
type Policy struct {
	AccrualMethod     AccrualMethod
	MonthlyRate       decimal.Decimal
	YearlyRate        decimal.Decimal
	RoundingRule      generic.RoundingRule
	MaxCarryForward   decimal.Decimal
	AllowCarryForward bool
	MinNoticeDays     int
	Eligibility       Eligibility
}

// Eligibility is the set of optional constraints an employee must satisfy.
// Zero values mean "no constraint".
type Eligibility struct {
	MinTenureMonths      int
	AllowedPositions     []string
	AllowedContractTypes []string
}

type AttachmentRules struct {
	MaxBytes     int64    // 0 = DefaultMaxAttachmentBytes
	AllowedTypes []string // empty = DefaultAttachmentTypes
}

// CumulativeLimits caps finalized days per calendar year and per rolling window.
type CumulativeLimits struct {
	MaxDaysPerYear   decimal.Decimal
	MaxDaysPerWindow decimal.Decimal
	WindowYears      int
}

// =============================================================================
// ENTITLEMENT - One balance record per (employee, leave type)
// =============================================================================

// Entitlement is the live balance. Remaining is derived:
//
//	remaining = accruedRounded + carryForward - taken - pending
//
// and AccruedRounded = ApplyRounding(AccruedActual, policy rule). Both are
// only ever written by Recompute.
type Entitlement struct {
	ID                string
	EmployeeID        generic.EntityID
	LeaveTypeID       generic.PolicyID
	YearlyEntitlement decimal.Decimal
	AccruedActual     decimal.Decimal
	AccruedRounded    decimal.Decimal
	CarryForward      decimal.Decimal
	Taken             decimal.Decimal
	Pending           decimal.Decimal
	Remaining         decimal.Decimal
	LastAccrualDate   *time.Time
	NextResetDate     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EntitlementDelta is applied with atomic increments by the store.
type EntitlementDelta struct {
	AccruedActual decimal.Decimal
	CarryForward  decimal.Decimal
	Taken         decimal.Decimal
	Pending       decimal.Decimal
}

func (d EntitlementDelta) IsZero() bool {
	return d.AccruedActual.IsZero() && d.CarryForward.IsZero() && d.Taken.IsZero() && d.Pending.IsZero()
}

// Neg returns the delta that undoes d.
func (d EntitlementDelta) Neg() EntitlementDelta {
	return EntitlementDelta{
		AccruedActual: d.AccruedActual.Neg(),
		CarryForward:  d.CarryForward.Neg(),
		Taken:         d.Taken.Neg(),
		Pending:       d.Pending.Neg(),
	}
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusApproved  RequestStatus = "APPROVED"
	StatusRejected  RequestStatus = "REJECTED"
	StatusCancelled RequestStatus = "CANCELLED"
)

type Role string

const (
	RoleManager        Role = "Manager"
	RoleDepartmentHead Role = "Department Head"
	RoleHR             Role = "HR"
)

type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepApproved StepStatus = "APPROVED"
	StepRejected StepStatus = "REJECTED"
)

type ApprovalStep struct {
	Role      Role
	Status    StepStatus
	DecidedBy string
	DecidedAt *time.Time
	Comment   string
}

type LeaveRequest struct {
	ID                   string
	EmployeeID           generic.EntityID
	LeaveTypeID          generic.PolicyID
	From                 time.Time
	To                   time.Time
	DurationDays         decimal.Decimal
	Status               RequestStatus
	ApprovalFlow         []ApprovalStep
	AttachmentID         string
	Reason               string
	IrregularPatternFlag bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (r *LeaveRequest) Period() generic.Period {
	return generic.NewPeriod(r.From, r.To)
}

// IsFinalized reports whether HR has signed the request off.
func (r *LeaveRequest) IsFinalized() bool {
	if r.Status != StatusApproved {
		return false
	}
	for _, step := range r.ApprovalFlow {
		if step.Role == RoleHR && step.Status == StepApproved {
			return true
		}
	}
	return false
}

// ReservesPending reports whether the request currently holds days in pending.
func (r *LeaveRequest) ReservesPending() bool {
	return r.Status == StatusPending || (r.Status == StatusApproved && !r.IsFinalized())
}

// hasDepartmentApproval reports an approved Manager or Department Head step.
func (r *LeaveRequest) hasDepartmentApproval() bool {
	for _, step := range r.ApprovalFlow {
		if step.Status == StepApproved && (step.Role == RoleManager || step.Role == RoleDepartmentHead) {
			return true
		}
	}
	return false
}

// =============================================================================
// ADJUSTMENT - Audit record paired with a manual entitlement mutation
// =============================================================================

type AdjustmentType string

const (
	AdjustmentAdd        AdjustmentType = "add"
	AdjustmentDeduct     AdjustmentType = "deduct"
	AdjustmentEncashment AdjustmentType = "encashment"
)

type Adjustment struct {
	ID            string
	EntitlementID string
	EmployeeID    generic.EntityID
	LeaveTypeID   generic.PolicyID
	Type          AdjustmentType
	Amount        decimal.Decimal
	Reason        string
	CreatedBy     string
	CreatedAt     time.Time
}

// =============================================================================
// DELEGATION - Persisted approval authority, keyed by manager, delegate and range
// =============================================================================

type Delegation struct {
	ID         string
	ManagerID  string
	DelegateID string
	From       time.Time
	To         time.Time
	CreatedAt  time.Time
}

func (d Delegation) Period() generic.Period { return generic.NewPeriod(d.From, d.To) }

// =============================================================================
// CALENDAR AND ATTACHMENTS
// =============================================================================

// Holiday is a non-working day. Recurrence holds an RRULE for repeating
// holidays; empty means the single Date.
type Holiday struct {
	ID         string
	Name       string
	Date       time.Time
	Recurrence string
}

// BlockedPeriod is a company-wide range in which leave cannot be taken.
type BlockedPeriod struct {
	ID     string
	Name   string
	From   time.Time
	To     time.Time
	Reason string
}

func (b BlockedPeriod) Period() generic.Period { return generic.NewPeriod(b.From, b.To) }

type Attachment struct {
	ID       string
	Size     int64
	MimeType string
}

// =============================================================================
// NOTIFICATION EVENTS
// =============================================================================

type EventType string

const (
	EventRequestCreated       EventType = "request.created"
	EventRequestStatusChanged EventType = "request.status_changed"
	EventRequestFinalized     EventType = "request.finalized"
	EventRequestReminder      EventType = "request.reminder"
)

type Event struct {
	ID         string
	Type       EventType
	RequestID  string
	EmployeeID string
	ManagerID  string
	Details    map[string]string
	OccurredAt time.Time
}
