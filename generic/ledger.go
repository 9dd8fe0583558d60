/*
ledger.go - Append-only movement log

PURPOSE:
  The entitlement record holds the live balance; the Ledger holds the story
  of how it got there. Every accrual, reservation, release, consumption,
  carry-forward, reset and adjustment appends one movement here.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IMMUTABLE: Once written, movements cannot be modified
  3. IDEMPOTENT: Same idempotency key = same movement (no duplicates)

CORRECTIONS:
  A mistake is corrected by a new movement with the opposite delta. Both
  remain in the ledger so the history endpoint can explain any balance.

EXAMPLE FLOW:
  1. Monthly accrual: accrual accrued_actual +1.75
  2. Request created: reservation pending +3
  3. Request finalized: consumption pending -3, consumption taken +3

SEE ALSO:
  - store.go: Low-level persistence interface
  - leave/service.go: Records movements for entitlement mutations
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// LEDGER - Append-only movement log
// =============================================================================

// Ledger records balance movements.
//
// INVARIANTS:
//   - Append-only: No Update, No Delete.
//   - Auditable: Every balance change is traceable.
type Ledger interface {
	// Append adds a movement. Fails if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple movements atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Transactions returns all movements for employee+leave type, chronologically.
	Transactions(ctx context.Context, entityID EntityID, policyID PolicyID) ([]Transaction, error)

	// TransactionsInRange returns movements created in [from, to].
	TransactionsInRange(ctx context.Context, entityID EntityID, policyID PolicyID, from, to time.Time) ([]Transaction, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if seen[tx.IdempotencyKey] {
			return ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true

		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) Transactions(ctx context.Context, entityID EntityID, policyID PolicyID) ([]Transaction, error) {
	return l.Store.Load(ctx, entityID, policyID)
}

func (l *DefaultLedger) TransactionsInRange(ctx context.Context, entityID EntityID, policyID PolicyID, from, to time.Time) ([]Transaction, error) {
	return l.Store.LoadRange(ctx, entityID, policyID, from, to)
}
