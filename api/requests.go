package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// LEAVE REQUEST HANDLERS
// =============================================================================
//
//   GET    /api/requests                 List (?employee_id, ?leave_type_id, ?status, ?from&to)
//   POST   /api/requests                 Submit
//   GET    /api/requests/{id}            Get
//   PUT    /api/requests/{id}            Edit while PENDING
//   POST   /api/requests/{id}/cancel     Cancel
//   POST   /api/requests/{id}/approve    Manager or delegate approval
//   POST   /api/requests/{id}/reject     Manager or delegate rejection
//   POST   /api/requests/{id}/finalize   HR sign-off, consumes the balance
//   POST   /api/requests/{id}/override   HR override from any open state
//   POST   /api/requests/{id}/flag       Mark an irregular pattern

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	filter, err := requestFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reqs, err := h.Service.ListRequests(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	dtos := make([]RequestDTO, len(reqs))
	for i := range reqs {
		dtos[i] = toRequestDTO(&reqs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// requestFilter reads the list query. status may repeat; from and to
// select requests overlapping the range.
func requestFilter(r *http.Request) (leave.RequestFilter, error) {
	q := r.URL.Query()
	filter := leave.RequestFilter{
		EmployeeID:  q.Get("employee_id"),
		LeaveTypeID: q.Get("leave_type_id"),
	}

	for _, raw := range q["status"] {
		status := leave.RequestStatus(strings.ToUpper(raw))
		switch status {
		case leave.StatusPending, leave.StatusApproved, leave.StatusRejected, leave.StatusCancelled:
			filter.Statuses = append(filter.Statuses, status)
		default:
			return filter, generic.NewValidationError("status", "unknown request status %q", raw)
		}
	}

	period, err := periodQuery(q)
	if err != nil {
		return filter, err
	}
	filter.Overlapping = period
	return filter, nil
}

// periodQuery reads an optional from/to pair. Both or neither must be set.
func periodQuery(q url.Values) (*generic.Period, error) {
	from, to := q.Get("from"), q.Get("to")
	if from == "" && to == "" {
		return nil, nil
	}
	start, err := generic.ParseDate(from)
	if err != nil {
		return nil, generic.NewValidationError("from", "must be a date in the form %s", generic.DateLayout)
	}
	end, err := generic.ParseDate(to)
	if err != nil {
		return nil, generic.NewValidationError("to", "must be a date in the form %s", generic.DateLayout)
	}
	period := generic.NewPeriod(start, end)
	if !period.Valid() {
		return nil, generic.NewValidationError("to", "must not be before from")
	}
	return &period, nil
}

func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Service.GetEmployee(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	q.Set("employee_id", id)
	r.URL.RawQuery = q.Encode()
	h.ListRequests(w, r)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body CreateLeaveRequestRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	req, err := h.Service.CreateRequest(r.Context(), leave.CreateRequestInput{
		EmployeeID:   body.EmployeeID,
		LeaveTypeID:  body.LeaveTypeID,
		From:         validatedDate(body.From),
		To:           validatedDate(body.To),
		DurationDays: body.DurationDays,
		AttachmentID: body.AttachmentID,
		Reason:       body.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(req))
}

func (h *Handler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	var body UpdateLeaveRequestRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	in := leave.UpdateRequestInput{
		DurationDays: body.DurationDays,
		AttachmentID: body.AttachmentID,
		Reason:       body.Reason,
		Actor:        body.Actor,
	}
	if body.From != nil {
		from := validatedDate(*body.From)
		in.From = &from
	}
	if body.To != nil {
		to := validatedDate(*body.To)
		in.To = &to
	}

	req, err := h.Service.UpdateRequest(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// transitionFunc is one of the service's single-actor request transitions.
type transitionFunc func(r *http.Request, id string, body DecisionRequest) (*leave.LeaveRequest, error)

// transition decodes a DecisionRequest and runs fn on the {id} request.
func (h *Handler) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body DecisionRequest
		if err := decode(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		req, err := fn(r, chi.URLParam(r, "id"), body)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestDTO(req))
	}
}

func (h *Handler) CancelRequest() http.HandlerFunc {
	return h.transition(func(r *http.Request, id string, body DecisionRequest) (*leave.LeaveRequest, error) {
		return h.Service.CancelRequest(r.Context(), id, body.Actor)
	})
}

func (h *Handler) ApproveRequest() http.HandlerFunc {
	return h.transition(func(r *http.Request, id string, body DecisionRequest) (*leave.LeaveRequest, error) {
		return h.Service.Approve(r.Context(), id, body.Actor, body.Comment)
	})
}

func (h *Handler) RejectRequest() http.HandlerFunc {
	return h.transition(func(r *http.Request, id string, body DecisionRequest) (*leave.LeaveRequest, error) {
		return h.Service.Reject(r.Context(), id, body.Actor, body.Comment)
	})
}

func (h *Handler) FinalizeRequest() http.HandlerFunc {
	return h.transition(func(r *http.Request, id string, body DecisionRequest) (*leave.LeaveRequest, error) {
		return h.Service.Finalize(r.Context(), id, body.Actor)
	})
}

func (h *Handler) FlagRequest() http.HandlerFunc {
	return h.transition(func(r *http.Request, id string, body DecisionRequest) (*leave.LeaveRequest, error) {
		return h.Service.FlagIrregularPattern(r.Context(), id, body.Actor)
	})
}

func (h *Handler) OverrideRequest(w http.ResponseWriter, r *http.Request) {
	var body OverrideRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	req, err := h.Service.HROverride(r.Context(), leave.HROverrideInput{
		RequestID: chi.URLParam(r, "id"),
		Actor:     body.Actor,
		Approve:   body.Decision == "approve",
		Reason:    body.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// =============================================================================
// DELEGATION HANDLERS
// =============================================================================

// ListDelegations filters by ?manager_id, ?delegate_id and ?active_at (a date).
func (h *Handler) ListDelegations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := leave.DelegationFilter{
		ManagerID:  q.Get("manager_id"),
		DelegateID: q.Get("delegate_id"),
	}
	if raw := q.Get("active_at"); raw != "" {
		at, err := generic.ParseDate(raw)
		if err != nil {
			writeError(w, r, generic.NewValidationError("active_at", "must be a date in the form %s", generic.DateLayout))
			return
		}
		filter.ActiveAt = &at
	}

	delegations, err := h.Service.ListDelegations(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]DelegationDTO, len(delegations))
	for i := range delegations {
		dtos[i] = toDelegationDTO(&delegations[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateDelegation(w http.ResponseWriter, r *http.Request) {
	var body CreateDelegationRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	d, err := h.Service.CreateDelegation(r.Context(), leave.CreateDelegationInput{
		ManagerID:  body.ManagerID,
		DelegateID: body.DelegateID,
		From:       validatedDate(body.From),
		To:         validatedDate(body.To),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDelegationDTO(d))
}

func (h *Handler) RevokeDelegation(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.RevokeDelegation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
