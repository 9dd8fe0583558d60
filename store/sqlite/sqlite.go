/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

INTERFACES IMPLEMENTED:
  leave.Store:          employees, leave types, entitlements, requests,
                        adjustments, delegations
  leave.CalendarStore:  holidays and blocked periods
  generic.Store:        ledger movements
  generic.RunStore:     batch run records

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the transactions table
  - No DELETE statements on the transactions table
  - Corrections via opposite movements only

ATOMIC INCREMENTS:
  IncrementEntitlement reads and writes the four counters inside one SQL
  transaction. Decimals are stored as TEXT so the sum is done in Go, not
  in SQLite floating point. SetEntitlementDerived never writes the
  counters; it only raises a negative pending to zero.

CONCURRENCY:
  The pool is capped at one connection, so SQL transactions serialize
  writers. The RWMutex keeps readers off a connection a writer holds.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MIGRATIONS:
  Versioned with golang-migrate from the embedded migrations/ directory,
  applied on Open.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - leave/ports.go: Interface definitions
  - store/memory: In-memory implementation for tests
  - store/mongodb: Document store implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout sorts lexicographically for UTC timestamps.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens the database at dbPath and applies migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store, err := Open(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Open wraps an existing handle and applies migrations.
func Open(db *sql.DB) (*Store, error) {
	// :memory: databases exist per connection.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTION STORE (generic.Store interface)
// =============================================================================

func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTx(ctx, s.db, tx)
}

func appendTx(ctx context.Context, q querier, tx generic.Transaction) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions
		(id, entity_id, policy_id, entitlement_id, tx_type, field, delta,
		 reference_id, reason, idempotency_key, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.EntityID,
		tx.PolicyID,
		tx.EntitlementID,
		tx.Type,
		tx.Field,
		tx.Delta.String(),
		nullString(tx.ReferenceID),
		nullString(tx.Reason),
		nullString(tx.IdempotencyKey),
		tx.CreatedBy,
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// AppendBatch adds multiple movements atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			if keys[tx.IdempotencyKey] {
				return generic.ErrDuplicateIdempotencyKey
			}
			keys[tx.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := appendTx(ctx, sqlTx, tx); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

const transactionColumns = `id, entity_id, policy_id, entitlement_id, tx_type, field, delta,
	reference_id, reason, idempotency_key, created_by, created_at`

func (s *Store) Load(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE entity_id = ? AND policy_id = ?
		ORDER BY created_at ASC, rowid ASC`, entityID, policyID)
}

func (s *Store) LoadRange(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID, from, to time.Time) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE entity_id = ? AND policy_id = ?
		  AND created_at >= ? AND created_at <= ?
		ORDER BY created_at ASC, rowid ASC`, entityID, policyID, formatTime(from), formatTime(to))
}

func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?", idempotencyKey,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return count > 0, nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var result []generic.Transaction
	for rows.Next() {
		var tx generic.Transaction
		var delta, createdAt string
		var referenceID, reason, idemKey sql.NullString
		if err := rows.Scan(&tx.ID, &tx.EntityID, &tx.PolicyID, &tx.EntitlementID, &tx.Type, &tx.Field,
			&delta, &referenceID, &reason, &idemKey, &tx.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if tx.Delta, err = decimal.NewFromString(delta); err != nil {
			return nil, fmt.Errorf("transaction %s delta: %w", tx.ID, err)
		}
		if tx.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("transaction %s created_at: %w", tx.ID, err)
		}
		tx.ReferenceID = referenceID.String
		tx.Reason = reason.String
		tx.IdempotencyKey = idemKey.String
		result = append(result, tx)
	}
	return result, rows.Err()
}

// =============================================================================
// BATCH RUNS (generic.RunStore interface)
// =============================================================================

// SaveRun inserts or replaces a run by id.
func (s *Store) SaveRun(ctx context.Context, run generic.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completedAt sql.NullString
	if run.CompletedAt != nil {
		completedAt = sql.NullString{String: formatTime(*run.CompletedAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_runs (id, kind, leave_type_id, status, succeeded, skipped, failed, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			succeeded = excluded.succeeded,
			skipped = excluded.skipped,
			failed = excluded.failed,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		run.ID, run.Kind, nullString(run.LeaveTypeID), run.Status,
		run.Succeeded, run.Skipped, run.Failed, nullString(run.Error),
		formatTime(run.StartedAt), completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs first. An empty kind matches all.
func (s *Store) ListRuns(ctx context.Context, kind string, limit int) ([]generic.BatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, kind, leave_type_id, status, succeeded, skipped, failed, error, started_at, completed_at
		FROM batch_runs WHERE (? = '' OR kind = ?) ORDER BY started_at DESC, rowid DESC`
	args := []any{kind, kind}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var result []generic.BatchRun
	for rows.Next() {
		var run generic.BatchRun
		var startedAt string
		var leaveTypeID, errText, completedAt sql.NullString
		if err := rows.Scan(&run.ID, &run.Kind, &leaveTypeID, &run.Status, &run.Succeeded, &run.Skipped,
			&run.Failed, &errText, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.LeaveTypeID = leaveTypeID.String
		run.Error = errText.String
		if run.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t, err := parseTime(completedAt.String)
			if err != nil {
				return nil, err
			}
			run.CompletedAt = &t
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

func formatDate(t time.Time) string { return t.Format(generic.DateLayout) }

func parseDate(s string) (time.Time, error) { return generic.ParseDate(s) }

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*t), Valid: true}
}

func scanNullDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// decimalColumn pairs a scanned TEXT column with its destination.
type decimalColumn struct {
	name string
	raw  string
	dst  *decimal.Decimal
}

func parseDecimals(cols ...decimalColumn) error {
	for _, c := range cols {
		d, err := decimal.NewFromString(c.raw)
		if err != nil {
			return fmt.Errorf("column %s: %w", c.name, err)
		}
		*c.dst = d
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func notFound(kind, id string) error { return &generic.NotFoundError{Kind: kind, ID: id} }

// Compile-time interface checks.
var (
	_ leave.Store         = (*Store)(nil)
	_ leave.CalendarStore = (*Store)(nil)
	_ generic.Store       = (*Store)(nil)
	_ generic.RunStore    = (*Store)(nil)
)
