/*
handlers.go - HTTP API handlers for the leave ledger

PURPOSE:
  Exposes the leave service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the leave package.

ENDPOINTS:
  Employees:
    GET    /api/employees                         List (?department_id, ?status)
    POST   /api/employees                         Create employee
    GET    /api/employees/{id}                    Get employee
    PUT    /api/employees/{id}                    Replace employee
    GET    /api/employees/{id}/entitlements       Balances of one employee
    GET    /api/employees/{id}/eligibility/{ltID} Eligibility for a leave type

  Leave types:
    GET    /api/leave-types                       List
    POST   /api/leave-types                       Create from factory JSON
    GET    /api/leave-types/{id}                  Get
    PUT    /api/leave-types/{id}                  Replace, recomputes balances

  Entitlements:
    POST   /api/entitlements                      Ensure (idempotent create)
    GET    /api/entitlements/{id}                 Get balance
    GET    /api/entitlements/{id}/history         Ledger movements
    POST   /api/entitlements/{id}/accrue          Accrue one entitlement
    GET    /api/entitlements/{id}/adjustments     List adjustments
    POST   /api/entitlements/{id}/adjustments     Manual add/deduct/encashment

  Requests, delegations:       see requests.go
  Calendar, batch jobs, runs:  see admin.go
  Scenarios:                   see scenarios.go

REQUEST FLOW:
  1. Parse HTTP request (decode validates the DTO)
  2. Call the leave service
  3. Serialize response
  4. Map errors with statusFor

ERROR HANDLING:
  Errors are returned as JSON with an HTTP status chosen from the generic
  error taxonomy:
  - 400: Validation errors, malformed input
  - 403: Actor has no authority
  - 404: Record not found
  - 409: Illegal transition, overlap, duplicate idempotency key
  - 422: Eligibility or balance rules
  - 500: Batch run with no success, infrastructure errors

SECURITY NOTE:
  No authentication. Actors are taken from request bodies as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - generic/errors.go: The error taxonomy
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/logging"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *leave.Service
	Calendar *calendar.Provider
	Jobs     *Jobs
	Logger   *zap.Logger

	// RemindAfter is the default age for the reminder job.
	RemindAfter time.Duration
}

func NewHandler(svc *leave.Service, cal *calendar.Provider, jobs *Jobs, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:     svc,
		Calendar:    cal,
		Jobs:        jobs,
		Logger:      logger,
		RemindAfter: 72 * time.Hour,
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	employees, err := h.Service.ListEmployees(r.Context(), leave.EmployeeFilter{
		DepartmentID: q.Get("department_id"),
		Status:       leave.EmployeeStatus(strings.ToUpper(q.Get("status"))),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i := range employees {
		dtos[i] = toEmployeeDTO(&employees[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Service.GetEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	h.saveEmployee(w, r, "", http.StatusCreated)
}

func (h *Handler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Service.GetEmployee(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.saveEmployee(w, r, id, http.StatusOK)
}

func (h *Handler) saveEmployee(w http.ResponseWriter, r *http.Request, id string, status int) {
	var req SaveEmployeeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	emp := req.toEmployee(id)
	if err := h.Service.SaveEmployee(r.Context(), emp); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, toEmployeeDTO(emp))
}

func (h *Handler) ListEmployeeEntitlements(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Service.GetEmployee(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	ents, err := h.Service.ListEntitlements(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	dtos := make([]EntitlementDTO, len(ents))
	for i := range ents {
		dtos[i] = toEntitlementDTO(&ents[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CheckEligibility answers 200 either way; only lookups fail the request.
func (h *Handler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	empID, ltID := chi.URLParam(r, "id"), chi.URLParam(r, "leaveTypeID")
	dto := EligibilityDTO{EmployeeID: empID, LeaveTypeID: ltID, Eligible: true}

	err := h.Service.CheckEligibility(r.Context(), empID, ltID)
	var eligErr *generic.EligibilityError
	switch {
	case err == nil:
	case errors.As(err, &eligErr):
		dto.Eligible = false
		dto.Violations = eligErr.Violations
	default:
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// LEAVE TYPE HANDLERS
// =============================================================================

func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Service.ListLeaveTypes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	dtos := make([]LeaveTypeDTO, len(types))
	for i := range types {
		dtos[i] = toLeaveTypeDTO(&types[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetLeaveType(w http.ResponseWriter, r *http.Request) {
	lt, err := h.Service.GetLeaveType(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveTypeDTO(lt))
}

// CreateLeaveType accepts the factory JSON schema.
func (h *Handler) CreateLeaveType(w http.ResponseWriter, r *http.Request) {
	var body factory.LeaveTypeJSON
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	body.ID = ""

	lt, err := factory.FromJSON(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Service.CreateLeaveType(r.Context(), lt); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveTypeDTO(lt))
}

func (h *Handler) UpdateLeaveType(w http.ResponseWriter, r *http.Request) {
	var body factory.LeaveTypeJSON
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	body.ID = chi.URLParam(r, "id")

	lt, err := factory.FromJSON(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Service.UpdateLeaveType(r.Context(), lt); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveTypeDTO(lt))
}

// =============================================================================
// ENTITLEMENT HANDLERS
// =============================================================================

func (h *Handler) EnsureEntitlement(w http.ResponseWriter, r *http.Request) {
	var req EnsureEntitlementRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ent, err := h.Service.EnsureEntitlement(r.Context(), req.EmployeeID, req.LeaveTypeID, req.YearlyEntitlement)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntitlementDTO(ent))
}

func (h *Handler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	ent, err := h.Service.GetEntitlement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntitlementDTO(ent))
}

// GetHistory returns the ledger movements of an entitlement, oldest first.
// ?from&to narrows it to movements recorded on those days.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	period, err := periodQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	var txs []generic.Transaction
	if period != nil {
		txs, err = h.Service.HistoryBetween(r.Context(), id, *period)
	} else {
		txs, err = h.Service.History(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": dtos})
}

func (h *Handler) Accrue(w http.ResponseWriter, r *http.Request) {
	var req AccrueRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	outcome, err := h.Service.Accrue(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeDTO(outcome))
}

func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Service.GetEntitlement(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	adjs, err := h.Service.ListAdjustments(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	dtos := make([]AdjustmentDTO, len(adjs))
	for i := range adjs {
		dtos[i] = toAdjustmentDTO(&adjs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	adj, ent, err := h.Service.Adjust(r.Context(), leave.AdjustInput{
		EntitlementID: chi.URLParam(r, "id"),
		Type:          leave.AdjustmentType(req.Type),
		Amount:        req.Amount,
		Reason:        req.Reason,
		Actor:         req.Actor,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AdjustmentResponse{
		Adjustment:  toAdjustmentDTO(adj),
		Entitlement: toEntitlementDTO(ent),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a JSON body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return generic.NewValidationError("", "malformed JSON body: %v", err)
	}
	return nil
}

// decode reads a JSON body and runs the DTO's validator tags.
func decode(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	return factory.ValidateStruct(dst)
}

// statusFor maps the generic error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, generic.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrInvalidState),
		errors.Is(err, generic.ErrOverlap),
		errors.Is(err, generic.ErrDuplicateIdempotencyKey):
		return http.StatusConflict
	case errors.Is(err, generic.ErrEligibility),
		errors.Is(err, generic.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Server errors are logged on the request logger.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Details: err.Error()}

	var verr *generic.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	var eerr *generic.EligibilityError
	if errors.As(err, &eerr) {
		resp.Violations = eerr.Violations
	}

	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, resp)
}
