/*
store.go - Persistence interface for ledger movements

PURPOSE:
  Defines the interface between the Ledger and the database. Different
  implementations use SQLite, MongoDB, or in-memory storage.

APPEND-ONLY CONTRACT:
  - Append(): Single movement write
  - AppendBatch(): Atomic multi-movement write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  A write carrying an idempotency key that already exists is rejected
  with ErrDuplicateIdempotencyKey.

IMPLEMENTATIONS:
  - store/sqlite: SQLite
  - store/mongodb: MongoDB
  - store/memory: In-memory for tests and local runs

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package generic

import (
	"context"
	"time"
)

// Store handles persistence of movements. Append-only.
type Store interface {
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple movements atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all movements for employee+leave type, ordered by CreatedAt.
	Load(ctx context.Context, entityID EntityID, policyID PolicyID) ([]Transaction, error)

	// LoadRange returns movements with CreatedAt in [from, to].
	LoadRange(ctx context.Context, entityID EntityID, policyID PolicyID, from, to time.Time) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}
