/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  - Dates are "YYYY-MM-DD" strings, timestamps RFC 3339.
  - Day amounts are decimal strings ("1.75"). Request bodies accept either
    a JSON number or a string.

VALIDATION:
  Request types carry validator tags and are checked by decode() before a
  handler runs. Business rules stay in the leave package.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: LeaveTypeJSON, the leave type body
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Email             string  `json:"email,omitempty"`
	DepartmentID      string  `json:"department_id,omitempty"`
	ManagerID         string  `json:"manager_id,omitempty"`
	Position          string  `json:"position,omitempty"`
	ContractType      string  `json:"contract_type,omitempty"`
	Status            string  `json:"status"`
	HireDate          string  `json:"hire_date"`
	ContractStartDate *string `json:"contract_start_date,omitempty"`
	FirstVacationDate *string `json:"first_vacation_date,omitempty"`
}

// SaveEmployeeRequest creates or replaces an employee. A blank status
// defaults to ACTIVE.
type SaveEmployeeRequest struct {
	Name              string `json:"name" validate:"required,max=200"`
	Email             string `json:"email,omitempty" validate:"omitempty,email"`
	DepartmentID      string `json:"department_id,omitempty"`
	ManagerID         string `json:"manager_id,omitempty" validate:"omitempty,len=24,hexadecimal"`
	Position          string `json:"position,omitempty"`
	ContractType      string `json:"contract_type,omitempty"`
	Status            string `json:"status,omitempty" validate:"omitempty,oneof=ACTIVE SUSPENDED ON_LEAVE TERMINATED"`
	HireDate          string `json:"hire_date" validate:"required,datetime=2006-01-02"`
	ContractStartDate string `json:"contract_start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	FirstVacationDate string `json:"first_vacation_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

func (req SaveEmployeeRequest) toEmployee(id string) *leave.Employee {
	return &leave.Employee{
		ID:                id,
		Name:              req.Name,
		Email:             req.Email,
		DepartmentID:      req.DepartmentID,
		ManagerID:         req.ManagerID,
		Position:          req.Position,
		ContractType:      req.ContractType,
		Status:            leave.EmployeeStatus(req.Status),
		HireDate:          validatedDate(req.HireDate),
		ContractStartDate: parseOptionalDate(req.ContractStartDate),
		FirstVacationDate: parseOptionalDate(req.FirstVacationDate),
	}
}

func toEmployeeDTO(e *leave.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:                e.ID,
		Name:              e.Name,
		Email:             e.Email,
		DepartmentID:      e.DepartmentID,
		ManagerID:         e.ManagerID,
		Position:          e.Position,
		ContractType:      e.ContractType,
		Status:            string(e.Status),
		HireDate:          formatDate(e.HireDate),
		ContractStartDate: formatOptionalDate(e.ContractStartDate),
		FirstVacationDate: formatOptionalDate(e.FirstVacationDate),
	}
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

// LeaveTypeDTO is the factory JSON definition plus audit timestamps.
type LeaveTypeDTO struct {
	factory.LeaveTypeJSON
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func toLeaveTypeDTO(lt *leave.LeaveType) LeaveTypeDTO {
	return LeaveTypeDTO{
		LeaveTypeJSON: factory.ToJSON(lt),
		CreatedAt:     formatTimestamp(lt.CreatedAt),
		UpdatedAt:     formatTimestamp(lt.UpdatedAt),
	}
}

// =============================================================================
// ENTITLEMENTS
// =============================================================================

type EntitlementDTO struct {
	ID                string          `json:"id"`
	EmployeeID        string          `json:"employee_id"`
	LeaveTypeID       string          `json:"leave_type_id"`
	YearlyEntitlement decimal.Decimal `json:"yearly_entitlement"`
	AccruedActual     decimal.Decimal `json:"accrued_actual"`
	AccruedRounded    decimal.Decimal `json:"accrued_rounded"`
	CarryForward      decimal.Decimal `json:"carry_forward"`
	Taken             decimal.Decimal `json:"taken"`
	Pending           decimal.Decimal `json:"pending"`
	Remaining         decimal.Decimal `json:"remaining"`
	Available         decimal.Decimal `json:"available"`
	LastAccrualDate   *string         `json:"last_accrual_date,omitempty"`
	NextResetDate     *string         `json:"next_reset_date,omitempty"`
	UpdatedAt         string          `json:"updated_at"`
}

type EnsureEntitlementRequest struct {
	EmployeeID        string          `json:"employee_id" validate:"required,len=24,hexadecimal"`
	LeaveTypeID       string          `json:"leave_type_id" validate:"required,len=24,hexadecimal"`
	YearlyEntitlement decimal.Decimal `json:"yearly_entitlement"`
}

type AccrueRequest struct {
	Amount decimal.Decimal `json:"amount"` // zero = policy rate
	Actor  string          `json:"actor,omitempty"`
}

func toEntitlementDTO(e *leave.Entitlement) EntitlementDTO {
	return EntitlementDTO{
		ID:                e.ID,
		EmployeeID:        string(e.EmployeeID),
		LeaveTypeID:       string(e.LeaveTypeID),
		YearlyEntitlement: e.YearlyEntitlement,
		AccruedActual:     e.AccruedActual,
		AccruedRounded:    e.AccruedRounded,
		CarryForward:      e.CarryForward,
		Taken:             e.Taken,
		Pending:           e.Pending,
		Remaining:         e.Remaining,
		Available:         e.Available(),
		LastAccrualDate:   formatOptionalDate(e.LastAccrualDate),
		NextResetDate:     formatOptionalDate(e.NextResetDate),
		UpdatedAt:         formatTimestamp(e.UpdatedAt),
	}
}

// TransactionDTO is one ledger movement in an entitlement's history.
type TransactionDTO struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Field       string          `json:"field"`
	Delta       decimal.Decimal `json:"delta"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   string          `json:"created_at"`
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          string(tx.ID),
		Type:        string(tx.Type),
		Field:       string(tx.Field),
		Delta:       tx.Delta,
		ReferenceID: tx.ReferenceID,
		Reason:      tx.Reason,
		CreatedBy:   tx.CreatedBy,
		CreatedAt:   formatTimestamp(tx.CreatedAt),
	}
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

type AdjustmentDTO struct {
	ID            string          `json:"id"`
	EntitlementID string          `json:"entitlement_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     string          `json:"created_at"`
}

type AdjustmentRequest struct {
	Type   string          `json:"type" validate:"required,oneof=add deduct encashment"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required,max=500"`
	Actor  string          `json:"actor" validate:"required"`
}

type AdjustmentResponse struct {
	Adjustment  AdjustmentDTO  `json:"adjustment"`
	Entitlement EntitlementDTO `json:"entitlement"`
}

func toAdjustmentDTO(a *leave.Adjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:            a.ID,
		EntitlementID: a.EntitlementID,
		Type:          string(a.Type),
		Amount:        a.Amount,
		Reason:        a.Reason,
		CreatedBy:     a.CreatedBy,
		CreatedAt:     formatTimestamp(a.CreatedAt),
	}
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

type ApprovalStepDTO struct {
	Role      string  `json:"role"`
	Status    string  `json:"status"`
	DecidedBy string  `json:"decided_by,omitempty"`
	DecidedAt *string `json:"decided_at,omitempty"`
	Comment   string  `json:"comment,omitempty"`
}

type RequestDTO struct {
	ID                   string            `json:"id"`
	EmployeeID           string            `json:"employee_id"`
	LeaveTypeID          string            `json:"leave_type_id"`
	From                 string            `json:"from"`
	To                   string            `json:"to"`
	DurationDays         decimal.Decimal   `json:"duration_days"`
	Status               string            `json:"status"`
	Finalized            bool              `json:"finalized"`
	ApprovalFlow         []ApprovalStepDTO `json:"approval_flow"`
	AttachmentID         string            `json:"attachment_id,omitempty"`
	Reason               string            `json:"reason,omitempty"`
	IrregularPatternFlag bool              `json:"irregular_pattern_flag"`
	CreatedAt            string            `json:"created_at"`
	UpdatedAt            string            `json:"updated_at"`
}

// CreateLeaveRequestRequest submits a leave request. A missing
// duration_days is computed from the calendar.
type CreateLeaveRequestRequest struct {
	EmployeeID   string           `json:"employee_id" validate:"required,len=24,hexadecimal"`
	LeaveTypeID  string           `json:"leave_type_id" validate:"required,len=24,hexadecimal"`
	From         string           `json:"from" validate:"required,datetime=2006-01-02"`
	To           string           `json:"to" validate:"required,datetime=2006-01-02"`
	DurationDays *decimal.Decimal `json:"duration_days,omitempty"`
	AttachmentID string           `json:"attachment_id,omitempty"`
	Reason       string           `json:"reason,omitempty" validate:"max=500"`
}

// UpdateLeaveRequestRequest edits a PENDING request. Absent fields are kept.
type UpdateLeaveRequestRequest struct {
	From         *string          `json:"from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	To           *string          `json:"to,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DurationDays *decimal.Decimal `json:"duration_days,omitempty"`
	AttachmentID *string          `json:"attachment_id,omitempty"`
	Reason       *string          `json:"reason,omitempty" validate:"omitempty,max=500"`
	Actor        string           `json:"actor" validate:"required"`
}

// DecisionRequest carries the actor of a cancel, approve, reject, finalize
// or flag transition.
type DecisionRequest struct {
	Actor   string `json:"actor" validate:"required"`
	Comment string `json:"comment,omitempty" validate:"max=500"`
}

type OverrideRequest struct {
	Actor    string `json:"actor" validate:"required"`
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

type EligibilityDTO struct {
	EmployeeID  string   `json:"employee_id"`
	LeaveTypeID string   `json:"leave_type_id"`
	Eligible    bool     `json:"eligible"`
	Violations  []string `json:"violations,omitempty"`
}

func toRequestDTO(r *leave.LeaveRequest) RequestDTO {
	steps := make([]ApprovalStepDTO, len(r.ApprovalFlow))
	for i, s := range r.ApprovalFlow {
		steps[i] = ApprovalStepDTO{
			Role:      string(s.Role),
			Status:    string(s.Status),
			DecidedBy: s.DecidedBy,
			DecidedAt: formatOptionalTimestamp(s.DecidedAt),
			Comment:   s.Comment,
		}
	}
	return RequestDTO{
		ID:                   r.ID,
		EmployeeID:           string(r.EmployeeID),
		LeaveTypeID:          string(r.LeaveTypeID),
		From:                 formatDate(r.From),
		To:                   formatDate(r.To),
		DurationDays:         r.DurationDays,
		Status:               string(r.Status),
		Finalized:            r.IsFinalized(),
		ApprovalFlow:         steps,
		AttachmentID:         r.AttachmentID,
		Reason:               r.Reason,
		IrregularPatternFlag: r.IrregularPatternFlag,
		CreatedAt:            formatTimestamp(r.CreatedAt),
		UpdatedAt:            formatTimestamp(r.UpdatedAt),
	}
}

// =============================================================================
// DELEGATIONS
// =============================================================================

type DelegationDTO struct {
	ID         string `json:"id"`
	ManagerID  string `json:"manager_id"`
	DelegateID string `json:"delegate_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	CreatedAt  string `json:"created_at"`
}

type CreateDelegationRequest struct {
	ManagerID  string `json:"manager_id" validate:"required"`
	DelegateID string `json:"delegate_id" validate:"required"`
	From       string `json:"from" validate:"required,datetime=2006-01-02"`
	To         string `json:"to" validate:"required,datetime=2006-01-02"`
}

func toDelegationDTO(d *leave.Delegation) DelegationDTO {
	return DelegationDTO{
		ID:         d.ID,
		ManagerID:  d.ManagerID,
		DelegateID: d.DelegateID,
		From:       formatDate(d.From),
		To:         formatDate(d.To),
		CreatedAt:  formatTimestamp(d.CreatedAt),
	}
}

// =============================================================================
// CALENDAR
// =============================================================================

type HolidayDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	Recurrence string `json:"recurrence,omitempty"`
}

// CreateHolidayRequest adds a holiday. recurrence is an RRULE such as
// "FREQ=YEARLY;BYMONTH=12;BYMONTHDAY=25", anchored on date.
type CreateHolidayRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	Recurrence string `json:"recurrence,omitempty"`
}

type BlockedPeriodDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

type CreateBlockedPeriodRequest struct {
	Name   string `json:"name" validate:"required,max=100"`
	From   string `json:"from" validate:"required,datetime=2006-01-02"`
	To     string `json:"to" validate:"required,datetime=2006-01-02"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// =============================================================================
// BATCH JOBS
// =============================================================================

type AccrueAllRequest struct {
	LeaveTypeID  string           `json:"leave_type_id" validate:"required,len=24,hexadecimal"`
	DepartmentID string           `json:"department_id,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Actor        string           `json:"actor,omitempty"`
}

type CarryForwardRequest struct {
	LeaveTypeID string `json:"leave_type_id" validate:"required,len=24,hexadecimal"`
	EmployeeID  string `json:"employee_id,omitempty" validate:"omitempty,len=24,hexadecimal"`
	AsOf        string `json:"as_of,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Actor       string `json:"actor,omitempty"`
}

type ResetRequest struct {
	Criterion string `json:"criterion,omitempty" validate:"omitempty,oneof=HIRE_DATE FIRST_VACATION_DATE CONTRACT_START_DATE"`
	Actor     string `json:"actor,omitempty"`
}

type RemindRequest struct {
	OlderThanHours int `json:"older_than_hours,omitempty" validate:"gte=0"`
}

type OutcomeDTO struct {
	EmployeeID    string          `json:"employee_id"`
	EntitlementID string          `json:"entitlement_id"`
	Status        string          `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	Previous      decimal.Decimal `json:"previous"`
	Current       decimal.Decimal `json:"current"`
}

type BatchResultDTO struct {
	RunID       string       `json:"run_id"`
	Kind        string       `json:"kind"`
	StartedAt   string       `json:"started_at"`
	CompletedAt string       `json:"completed_at"`
	Succeeded   int          `json:"succeeded"`
	Skipped     int          `json:"skipped"`
	Failed      int          `json:"failed"`
	Outcomes    []OutcomeDTO `json:"outcomes"`
}

type BatchRunDTO struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"`
	LeaveTypeID string  `json:"leave_type_id,omitempty"`
	Status      string  `json:"status"`
	Succeeded   int     `json:"succeeded"`
	Skipped     int     `json:"skipped"`
	Failed      int     `json:"failed"`
	Error       string  `json:"error,omitempty"`
	StartedAt   string  `json:"started_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

func toOutcomeDTO(o generic.Outcome) OutcomeDTO {
	return OutcomeDTO{
		EmployeeID:    string(o.EntityID),
		EntitlementID: o.TargetID,
		Status:        string(o.Status),
		Reason:        o.Reason,
		Previous:      o.Previous,
		Current:       o.Current,
	}
}

func toBatchResultDTO(r *generic.BatchResult) BatchResultDTO {
	outcomes := make([]OutcomeDTO, len(r.Outcomes))
	for i, o := range r.Outcomes {
		outcomes[i] = toOutcomeDTO(o)
	}
	return BatchResultDTO{
		RunID:       r.RunID,
		Kind:        r.Kind,
		StartedAt:   formatTimestamp(r.StartedAt),
		CompletedAt: formatTimestamp(r.CompletedAt),
		Succeeded:   r.Succeeded(),
		Skipped:     r.Skipped(),
		Failed:      r.Failed(),
		Outcomes:    outcomes,
	}
}

func toBatchRunDTO(run generic.BatchRun) BatchRunDTO {
	return BatchRunDTO{
		ID:          run.ID,
		Kind:        run.Kind,
		LeaveTypeID: run.LeaveTypeID,
		Status:      string(run.Status),
		Succeeded:   run.Succeeded,
		Skipped:     run.Skipped,
		Failed:      run.Failed,
		Error:       run.Error,
		StartedAt:   formatTimestamp(run.StartedAt),
		CompletedAt: formatOptionalTimestamp(run.CompletedAt),
	}
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error      string   `json:"error"`
	Details    string   `json:"details,omitempty"`
	Field      string   `json:"field,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

// =============================================================================
// FORMATTING
// =============================================================================

func formatDate(t time.Time) string { return t.Format(generic.DateLayout) }

func formatOptionalDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatDate(*t)
	return &s
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTimestamp(*t)
	return &s
}

// parseOptionalDate expects input already checked by the datetime tag.
func parseOptionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := generic.ParseDate(s)
	if err != nil {
		return nil
	}
	return &t
}

// validatedDate parses a date already checked by the datetime tag.
func validatedDate(s string) time.Time {
	t, _ := generic.ParseDate(s)
	return t
}
