/*
service.go - Ledger service wiring and the single mutation path

PURPOSE:
  Service is the entry point for every ledger operation. All changes to an
  entitlement's counters go through apply(), which:
    1. Increments the counters atomically in the store
    2. Recomputes the derived fields (accruedRounded, remaining)
    3. Writes only the derived fields back, clamping a negative pending
    4. Appends one movement per touched counter to the ledger

  Counters are only ever changed by increments, so they never lose an
  update. Steps 2-3 have no optimistic lock: two concurrent mutations of
  one entitlement can leave remaining computed from the earlier counters
  until the next mutation recomputes it.

COLLABORATORS:
  Store       required
  Ledger      optional, movement history
  Calendar    optional, weekends only when absent
  Attachments optional, presence-only checks when absent
  Notifier    optional, failures are logged and swallowed

SEE ALSO:
  - ports.go: Interfaces consumed here
  - request.go: Request lifecycle
  - accrual.go, carryforward.go, adjustment.go: Batch and manual mutations
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
)

type Service struct {
	Store       Store
	Ledger      generic.Ledger
	Calendar    Calendar
	Attachments AttachmentStore
	Notifier    Notifier
	Logger      *zap.Logger

	// Fallback attachment rules for leave types that set none.
	maxAttachmentBytes int64
	attachmentTypes    []string

	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLedger(l generic.Ledger) Option { return func(s *Service) { s.Ledger = l } }
func WithCalendar(c Calendar) Option { return func(s *Service) { s.Calendar = c } }
func WithAttachments(a AttachmentStore) Option { return func(s *Service) { s.Attachments = a } }
func WithNotifier(n Notifier) Option { return func(s *Service) { s.Notifier = n } }
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.Logger = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithAttachmentDefaults replaces DefaultMaxAttachmentBytes and
// DefaultAttachmentTypes. Zero values keep the package defaults.
func WithAttachmentDefaults(maxBytes int64, types []string) Option {
	return func(s *Service) {
		if maxBytes > 0 {
			s.maxAttachmentBytes = maxBytes
		}
		if len(types) > 0 {
			s.attachmentTypes = types
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		Store:              store,
		Logger:             zap.NewNop(),
		maxAttachmentBytes: DefaultMaxAttachmentBytes,
		attachmentTypes:    DefaultAttachmentTypes,
		now:                func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() time.Time { return generic.TruncateDay(s.now()) }

// =============================================================================
// MUTATION PATH
// =============================================================================

// movement describes why apply() is changing an entitlement.
type movement struct {
	Type        generic.TransactionType
	ReferenceID string
	Reason      string
	Actor       string
	// IdempotencyKey prefixes each per-field key; empty gets a random one.
	IdempotencyKey string
}

// apply increments the counters of entitlement id by delta, recomputes the
// derived fields with the leave type's rounding rule, and records movements.
// touch, when non-nil, may set LastAccrualDate or NextResetDate; counter
// edits made there are not persisted.
func (s *Service) apply(ctx context.Context, id string, lt *LeaveType, delta EntitlementDelta, mv movement, touch func(*Entitlement)) (*Entitlement, error) {
	now := s.now()

	updated, err := s.Store.IncrementEntitlement(ctx, id, delta, now)
	if err != nil {
		return nil, fmt.Errorf("increment entitlement %s: %w", id, err)
	}

	var dates Entitlement
	if touch != nil {
		touch(&dates)
		if dates.LastAccrualDate != nil {
			updated.LastAccrualDate = dates.LastAccrualDate
		}
		if dates.NextResetDate != nil {
			updated.NextResetDate = dates.NextResetDate
		}
	}
	updated.Recompute(lt.Policy.RoundingRule)
	updated.UpdatedAt = now

	err = s.Store.SetEntitlementDerived(ctx, id, DerivedFields{
		AccruedRounded:  updated.AccruedRounded,
		Remaining:       updated.Remaining,
		LastAccrualDate: dates.LastAccrualDate,
		NextResetDate:   dates.NextResetDate,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("recompute entitlement %s: %w", id, err)
	}

	s.record(ctx, updated, delta, mv, now)
	return updated, nil
}

// record appends one movement per non-zero counter in delta. The
// entitlement is already committed, so ledger failures are logged only.
func (s *Service) record(ctx context.Context, ent *Entitlement, delta EntitlementDelta, mv movement, at time.Time) {
	if s.Ledger == nil || delta.IsZero() {
		return
	}

	key := mv.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	actor := mv.Actor
	if actor == "" {
		actor = "system"
	}

	fields := []struct {
		field generic.Field
		value decimal.Decimal
	}{
		{generic.FieldAccruedActual, delta.AccruedActual},
		{generic.FieldCarryForward, delta.CarryForward},
		{generic.FieldTaken, delta.Taken},
		{generic.FieldPending, delta.Pending},
	}

	var txs []generic.Transaction
	for _, f := range fields {
		if f.value.IsZero() {
			continue
		}
		txs = append(txs, generic.Transaction{
			ID:             generic.TransactionID(generic.NewID()),
			EntityID:       ent.EmployeeID,
			PolicyID:       ent.LeaveTypeID,
			EntitlementID:  ent.ID,
			Type:           mv.Type,
			Field:          f.field,
			Delta:          f.value,
			ReferenceID:    mv.ReferenceID,
			Reason:         mv.Reason,
			IdempotencyKey: fmt.Sprintf("%s:%s", key, f.field),
			CreatedBy:      actor,
			CreatedAt:      at,
		})
	}

	if err := s.Ledger.AppendBatch(ctx, txs); err != nil {
		s.Logger.Error("failed to record ledger movements",
			zap.String("entitlement_id", ent.ID),
			zap.String("type", string(mv.Type)),
			zap.Error(err),
		)
	}
}

// =============================================================================
// NOTIFICATIONS - Fire-and-forget
// =============================================================================

// notify never fails the calling operation: the state transition it
// reports is already committed.
func (s *Service) notify(ctx context.Context, typ EventType, req *LeaveRequest, managerID string, details map[string]string) {
	if s.Notifier == nil {
		return
	}

	ev := Event{
		ID:         uuid.NewString(),
		Type:       typ,
		RequestID:  req.ID,
		EmployeeID: string(req.EmployeeID),
		ManagerID:  managerID,
		Details:    details,
		OccurredAt: s.now(),
	}

	defer func() {
		if r := recover(); r != nil {
			s.Logger.Warn("notifier panicked", zap.String("event", string(typ)), zap.Any("panic", r))
		}
	}()

	if err := s.Notifier.Notify(ctx, ev); err != nil {
		s.Logger.Warn("notification failed",
			zap.String("event", string(typ)),
			zap.String("request_id", req.ID),
			zap.Error(err),
		)
	}
}

// =============================================================================
// LOOKUPS
// =============================================================================

func (s *Service) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	return s.Store.GetEmployee(ctx, id)
}

func (s *Service) GetLeaveType(ctx context.Context, id string) (*LeaveType, error) {
	return s.Store.GetLeaveType(ctx, id)
}

// loadRequestContext resolves the records a request transition needs.
func (s *Service) loadRequestContext(ctx context.Context, id string) (*LeaveRequest, *Employee, *LeaveType, error) {
	req, err := s.Store.GetRequest(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	emp, err := s.Store.GetEmployee(ctx, string(req.EmployeeID))
	if err != nil {
		return nil, nil, nil, err
	}
	lt, err := s.Store.GetLeaveType(ctx, string(req.LeaveTypeID))
	if err != nil {
		return nil, nil, nil, err
	}
	return req, emp, lt, nil
}
