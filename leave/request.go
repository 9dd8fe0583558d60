/*
request.go - Leave request lifecycle

STATE MACHINE:

	PENDING --approve--> APPROVED --finalize--> APPROVED + HR step (finalized)
	PENDING --reject---> REJECTED
	PENDING --cancel---> CANCELLED
	any but CANCELLED/finalized --HR override--> APPROVED (finalized) | REJECTED

BALANCE COUPLING (deductible leave types only):

	create         pending += d
	update         pending += d' - d
	reject/cancel  pending -= d
	finalize       pending -= d, taken += d
	override       as finalize, or taken += d when coming from REJECTED

Every reservation has exactly one matching release or consumption. The
balance is moved first and the request written second; when the request
write fails, the balance movement is reversed.

Notifications are sent after the request is written and never fail the call.
*/
package leave

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
)

const requestKind = "leave request"

type CreateRequestInput struct {
	EmployeeID   string
	LeaveTypeID  string
	From         time.Time
	To           time.Time
	DurationDays *decimal.Decimal // nil = computed from the calendar
	AttachmentID string
	Reason       string
}

type UpdateRequestInput struct {
	From         *time.Time
	To           *time.Time
	DurationDays *decimal.Decimal
	AttachmentID *string
	Reason       *string
	Actor        string
}

type HROverrideInput struct {
	RequestID string
	Actor     string
	Approve   bool
	Reason    string
}

func stateError(req *LeaveRequest, action string) *generic.StateError {
	current := string(req.Status)
	if req.IsFinalized() {
		current = "FINALIZED"
	}
	return &generic.StateError{Kind: requestKind, ID: req.ID, Current: current, Action: action}
}

// =============================================================================
// CREATE
// =============================================================================

// CreateRequest validates and reserves a new request. Checks run in order:
// input shape, eligibility, notice, duration, attachment, blocked periods,
// balance, overlap.
func (s *Service) CreateRequest(ctx context.Context, in CreateRequestInput) (*LeaveRequest, error) {
	if err := generic.ParseID("employee_id", in.EmployeeID); err != nil {
		return nil, err
	}
	if err := generic.ParseID("leave_type_id", in.LeaveTypeID); err != nil {
		return nil, err
	}
	if in.From.IsZero() || in.To.IsZero() {
		return nil, generic.NewValidationError("from", "from and to are required")
	}
	period := generic.NewPeriod(in.From, in.To)
	if !period.Valid() {
		return nil, generic.NewValidationError("to", "must not be before from")
	}

	emp, err := s.Store.GetEmployee(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	lt, err := s.Store.GetLeaveType(ctx, in.LeaveTypeID)
	if err != nil {
		return nil, err
	}

	today := s.today()
	if err := checkEligibility(emp, lt, today); err != nil {
		return nil, err
	}
	if err := checkNotice(emp, lt, period.Start, today); err != nil {
		return nil, err
	}
	duration, err := s.resolveDuration(ctx, period, in.DurationDays)
	if err != nil {
		return nil, err
	}
	if err := s.checkAttachmentPresent(ctx, lt, in.AttachmentID, duration); err != nil {
		return nil, err
	}
	if err := s.checkBlocked(ctx, generic.EntityID(emp.ID), period); err != nil {
		return nil, err
	}
	if lt.Deductible {
		if err := s.checkAvailable(ctx, emp.ID, lt, duration, decimal.Zero); err != nil {
			return nil, err
		}
	}
	if err := s.checkOverlap(ctx, generic.EntityID(emp.ID), period, ""); err != nil {
		return nil, err
	}

	now := s.now()
	req := &LeaveRequest{
		ID:           generic.NewID(),
		EmployeeID:   generic.EntityID(emp.ID),
		LeaveTypeID:  generic.PolicyID(lt.ID),
		From:         period.Start,
		To:           period.End,
		DurationDays: duration,
		Status:       StatusPending,
		ApprovalFlow: []ApprovalStep{{Role: RoleManager, Status: StepPending}},
		AttachmentID: in.AttachmentID,
		Reason:       in.Reason,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.transition(ctx, req, lt,
		EntitlementDelta{Pending: duration},
		movement{Type: generic.TxReservation, Reason: "request created", Actor: emp.ID},
		func() error { return s.Store.CreateRequest(ctx, req) },
	)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, EventRequestCreated, req, emp.ManagerID, map[string]string{
		"leave_type": lt.Name,
		"from":       req.From.Format(generic.DateLayout),
		"to":         req.To.Format(generic.DateLayout),
		"days":       duration.String(),
	})
	return req, nil
}

// checkAvailable rejects duration when it exceeds available balance.
// reserved is handed back first, for a request that already holds days.
func (s *Service) checkAvailable(ctx context.Context, employeeID string, lt *LeaveType, duration, reserved decimal.Decimal) error {
	ent, err := s.Store.FindEntitlement(ctx, employeeID, lt.ID)
	if err != nil {
		return err
	}
	available := ent.availableExcluding(reserved, lt.Policy.RoundingRule)
	if available.LessThan(duration) {
		return generic.NewBalanceError(ent.EmployeeID, ent.LeaveTypeID, available, duration)
	}
	return nil
}

// =============================================================================
// UPDATE / CANCEL
// =============================================================================

// UpdateRequest edits a PENDING request, re-validating balance and overlap
// with its own reservation excluded.
func (s *Service) UpdateRequest(ctx context.Context, id string, in UpdateRequestInput) (*LeaveRequest, error) {
	req, emp, lt, err := s.loadRequestContext(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, stateError(req, "update")
	}

	from, to := req.From, req.To
	if in.From != nil {
		from = *in.From
	}
	if in.To != nil {
		to = *in.To
	}
	period := generic.NewPeriod(from, to)
	if !period.Valid() {
		return nil, generic.NewValidationError("to", "must not be before from")
	}
	rangeChanged := !period.Start.Equal(req.From) || !period.End.Equal(req.To)

	duration := req.DurationDays
	if in.DurationDays != nil || rangeChanged {
		duration, err = s.resolveDuration(ctx, period, in.DurationDays)
		if err != nil {
			return nil, err
		}
	}
	attachmentID := req.AttachmentID
	if in.AttachmentID != nil {
		attachmentID = *in.AttachmentID
	}

	if rangeChanged {
		if err := checkNotice(emp, lt, period.Start, s.today()); err != nil {
			return nil, err
		}
	}
	if err := s.checkAttachmentPresent(ctx, lt, attachmentID, duration); err != nil {
		return nil, err
	}
	if rangeChanged {
		if err := s.checkBlocked(ctx, req.EmployeeID, period); err != nil {
			return nil, err
		}
	}
	if lt.Deductible && !duration.Equal(req.DurationDays) {
		if err := s.checkAvailable(ctx, emp.ID, lt, duration, req.DurationDays); err != nil {
			return nil, err
		}
	}
	if err := s.checkOverlap(ctx, req.EmployeeID, period, req.ID); err != nil {
		return nil, err
	}

	change := duration.Sub(req.DurationDays)
	mv := movement{Type: generic.TxReservation, Reason: "request updated", Actor: in.Actor}
	if change.IsNegative() {
		mv.Type = generic.TxRelease
	}

	updated := *req
	updated.From, updated.To = period.Start, period.End
	updated.DurationDays = duration
	updated.AttachmentID = attachmentID
	if in.Reason != nil {
		updated.Reason = *in.Reason
	}
	updated.UpdatedAt = s.now()

	err = s.transition(ctx, &updated, lt, EntitlementDelta{Pending: change}, mv,
		func() error { return s.Store.UpdateRequest(ctx, &updated) },
	)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// CancelRequest withdraws a PENDING request and releases its reservation.
func (s *Service) CancelRequest(ctx context.Context, id, actor string) (*LeaveRequest, error) {
	req, emp, lt, err := s.loadRequestContext(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, stateError(req, "cancel")
	}

	req.Status = StatusCancelled
	req.UpdatedAt = s.now()

	err = s.transition(ctx, req, lt,
		EntitlementDelta{Pending: req.DurationDays.Neg()},
		movement{Type: generic.TxRelease, Reason: "request cancelled", Actor: actor},
		func() error { return s.Store.UpdateRequest(ctx, req) },
	)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, EventRequestStatusChanged, req, emp.ManagerID, map[string]string{
		"status": string(req.Status),
		"by":     actor,
	})
	return req, nil
}

// =============================================================================
// MANAGER DECISION
// =============================================================================

// Approve records the manager's approval. Days stay in pending until HR
// finalizes the request. The decision fills in the open Manager step that
// CreateRequest added instead of appending a second entry, so the flow
// keeps one entry per role; HR sign-off is appended by Finalize.
func (s *Service) Approve(ctx context.Context, id, actor, comment string) (*LeaveRequest, error) {
	return s.decide(ctx, id, actor, comment, true)
}

// Reject records the manager's rejection in the open Manager step, as
// Approve does, and releases the reservation.
func (s *Service) Reject(ctx context.Context, id, actor, comment string) (*LeaveRequest, error) {
	return s.decide(ctx, id, actor, comment, false)
}

func (s *Service) decide(ctx context.Context, id, actor, comment string, approve bool) (*LeaveRequest, error) {
	action := "reject"
	if approve {
		action = "approve"
	}

	req, emp, lt, err := s.loadRequestContext(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, stateError(req, action)
	}
	if err := s.canDecide(ctx, emp, actor); err != nil {
		return nil, err
	}

	now := s.now()
	var delta EntitlementDelta
	if approve {
		req.Status = StatusApproved
		resolveStep(req, RoleManager, StepApproved, actor, comment, now)
	} else {
		req.Status = StatusRejected
		resolveStep(req, RoleManager, StepRejected, actor, comment, now)
		delta.Pending = req.DurationDays.Neg()
	}
	req.UpdatedAt = now

	err = s.transition(ctx, req, lt, delta,
		movement{Type: generic.TxRelease, Reason: "request rejected", Actor: actor},
		func() error { return s.Store.UpdateRequest(ctx, req) },
	)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, EventRequestStatusChanged, req, emp.ManagerID, map[string]string{
		"status": string(req.Status),
		"by":     actor,
	})
	return req, nil
}

// resolveStep decides the open step for role, or appends one when the flow
// has none.
func resolveStep(req *LeaveRequest, role Role, status StepStatus, actor, comment string, at time.Time) {
	for i := range req.ApprovalFlow {
		step := &req.ApprovalFlow[i]
		if step.Role == role && step.Status == StepPending {
			step.Status = status
			step.DecidedBy = actor
			step.DecidedAt = &at
			step.Comment = comment
			return
		}
	}
	req.ApprovalFlow = append(req.ApprovalFlow, ApprovalStep{
		Role:      role,
		Status:    status,
		DecidedBy: actor,
		DecidedAt: &at,
		Comment:   comment,
	})
}

// =============================================================================
// HR
// =============================================================================

// Finalize converts an approved request's reservation into taken days.
func (s *Service) Finalize(ctx context.Context, id, hrUserID string) (*LeaveRequest, error) {
	if hrUserID == "" {
		return nil, generic.NewValidationError("actor", "is required")
	}
	req, emp, lt, err := s.loadRequestContext(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusApproved || req.IsFinalized() {
		return nil, stateError(req, "finalize")
	}
	if !req.hasDepartmentApproval() {
		return nil, &generic.StateError{Kind: requestKind, ID: req.ID, Current: "APPROVED without department approval", Action: "finalize"}
	}
	if err := s.validateAttachment(ctx, lt, req); err != nil {
		return nil, err
	}
	if err := s.checkCumulativeLimits(ctx, lt, req); err != nil {
		return nil, err
	}

	now := s.now()
	resolveStep(req, RoleHR, StepApproved, hrUserID, "", now)
	req.UpdatedAt = now

	err = s.transition(ctx, req, lt,
		EntitlementDelta{Pending: req.DurationDays.Neg(), Taken: req.DurationDays},
		movement{Type: generic.TxConsumption, Reason: "request finalized", Actor: hrUserID},
		func() error { return s.Store.UpdateRequest(ctx, req) },
	)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, EventRequestFinalized, req, emp.ManagerID, map[string]string{
		"by":   hrUserID,
		"days": req.DurationDays.String(),
	})
	return req, nil
}

// HROverride approves or rejects a request from any state except CANCELLED
// and finalized. Approval finalizes in the same step.
func (s *Service) HROverride(ctx context.Context, in HROverrideInput) (*LeaveRequest, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, generic.NewValidationError("reason", "is required for an HR override")
	}
	if in.Actor == "" {
		return nil, generic.NewValidationError("actor", "is required")
	}

	req, emp, lt, err := s.loadRequestContext(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status == StatusCancelled || req.IsFinalized() {
		return nil, stateError(req, "override")
	}

	var delta EntitlementDelta
	mv := movement{Reason: "HR override: " + reason, Actor: in.Actor}
	now := s.now()

	if in.Approve {
		// A rejected request gave up its days; another request may hold them now.
		if req.Status == StatusRejected {
			if err := s.checkOverlap(ctx, req.EmployeeID, req.Period(), req.ID); err != nil {
				return nil, err
			}
		}
		mv.Type = generic.TxConsumption
		switch {
		case req.ReservesPending():
			delta = EntitlementDelta{Pending: req.DurationDays.Neg(), Taken: req.DurationDays}
		case lt.Deductible:
			// Rejected: the reservation is gone, so the days must be available again.
			if err := s.checkAvailable(ctx, emp.ID, lt, req.DurationDays, decimal.Zero); err != nil {
				return nil, err
			}
			delta = EntitlementDelta{Taken: req.DurationDays}
		}
		req.Status = StatusApproved
		req.ApprovalFlow = append(req.ApprovalFlow, ApprovalStep{Role: RoleHR, Status: StepApproved, DecidedBy: in.Actor, DecidedAt: &now, Comment: reason})
	} else {
		if req.Status == StatusRejected {
			return nil, stateError(req, "override")
		}
		mv.Type = generic.TxRelease
		delta = EntitlementDelta{Pending: req.DurationDays.Neg()}
		req.Status = StatusRejected
		req.ApprovalFlow = append(req.ApprovalFlow, ApprovalStep{Role: RoleHR, Status: StepRejected, DecidedBy: in.Actor, DecidedAt: &now, Comment: reason})
	}
	req.UpdatedAt = now

	err = s.transition(ctx, req, lt, delta, mv, func() error { return s.Store.UpdateRequest(ctx, req) })
	if err != nil {
		return nil, err
	}

	s.Logger.Info("HR override applied",
		zap.String("request_id", req.ID),
		zap.String("status", string(req.Status)),
		zap.String("actor", in.Actor),
	)
	s.notify(ctx, EventRequestStatusChanged, req, emp.ManagerID, map[string]string{
		"status": string(req.Status),
		"by":     in.Actor,
		"reason": reason,
	})
	return req, nil
}

// FlagIrregularPattern marks a request for review.
func (s *Service) FlagIrregularPattern(ctx context.Context, id, actor string) (*LeaveRequest, error) {
	req, err := s.Store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.IrregularPatternFlag {
		return req, nil
	}
	req.IrregularPatternFlag = true
	req.UpdatedAt = s.now()
	if err := s.Store.UpdateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("update request %s: %w", id, err)
	}
	s.Logger.Info("request flagged for irregular pattern", zap.String("request_id", id), zap.String("actor", actor))
	return req, nil
}

// =============================================================================
// QUERIES AND REMINDERS
// =============================================================================

func (s *Service) GetRequest(ctx context.Context, id string) (*LeaveRequest, error) {
	return s.Store.GetRequest(ctx, id)
}

func (s *Service) ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error) {
	return s.Store.ListRequests(ctx, filter)
}

// RemindStalePending notifies managers of requests left PENDING for longer
// than olderThan and returns how many reminders were sent.
func (s *Service) RemindStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	stale, err := s.Store.ListRequests(ctx, RequestFilter{
		Statuses:      []RequestStatus{StatusPending},
		CreatedBefore: &cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("list stale requests: %w", err)
	}

	sent := 0
	for i := range stale {
		req := &stale[i]
		emp, err := s.Store.GetEmployee(ctx, string(req.EmployeeID))
		if err != nil {
			s.Logger.Warn("skipping reminder", zap.String("request_id", req.ID), zap.Error(err))
			continue
		}
		s.notify(ctx, EventRequestReminder, req, emp.ManagerID, map[string]string{
			"pending_since": req.CreatedAt.Format(time.RFC3339),
		})
		sent++
	}
	return sent, nil
}

// =============================================================================
// BALANCE COUPLING
// =============================================================================

// transition moves the balance by delta, then runs persist. When persist
// fails the balance movement is reversed. Non-deductible leave types and
// zero deltas skip the balance entirely.
func (s *Service) transition(ctx context.Context, req *LeaveRequest, lt *LeaveType, delta EntitlementDelta, mv movement, persist func() error) error {
	if !lt.Deductible || delta.IsZero() {
		return persist()
	}

	ent, err := s.Store.FindEntitlement(ctx, string(req.EmployeeID), lt.ID)
	if err != nil {
		return err
	}
	mv.ReferenceID = req.ID
	if _, err := s.apply(ctx, ent.ID, lt, delta, mv, nil); err != nil {
		return err
	}

	if err := persist(); err != nil {
		undo := mv
		undo.Reason = "rollback: " + mv.Reason
		undo.IdempotencyKey = ""
		if _, rerr := s.apply(ctx, ent.ID, lt, delta.Neg(), undo, nil); rerr != nil {
			s.Logger.Error("failed to reverse balance movement",
				zap.String("request_id", req.ID),
				zap.String("entitlement_id", ent.ID),
				zap.Error(rerr),
			)
		}
		return fmt.Errorf("save request %s: %w", req.ID, err)
	}
	return nil
}
