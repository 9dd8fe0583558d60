// Package memory provides an in-memory implementation of every store the
// leave engine uses (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================
// One mutex guards everything, so IncrementEntitlement is atomic and every
// read returns a copy that callers may mutate freely.

type Store struct {
	mu sync.RWMutex

	transactions map[key][]generic.Transaction
	idempotency  map[string]bool

	employees    map[string]leave.Employee
	leaveTypes   map[string]leave.LeaveType
	entitlements map[string]leave.Entitlement
	requests     map[string]leave.LeaveRequest
	adjustments  map[string][]leave.Adjustment
	delegations  map[string]leave.Delegation
	holidays     map[string]leave.Holiday
	blocked      map[string]leave.BlockedPeriod
	runs         []generic.BatchRun
}

type key struct {
	EntityID generic.EntityID
	PolicyID generic.PolicyID
}

func New() *Store {
	return &Store{
		transactions: make(map[key][]generic.Transaction),
		idempotency:  make(map[string]bool),
		employees:    make(map[string]leave.Employee),
		leaveTypes:   make(map[string]leave.LeaveType),
		entitlements: make(map[string]leave.Entitlement),
		requests:     make(map[string]leave.LeaveRequest),
		adjustments:  make(map[string][]leave.Adjustment),
		delegations:  make(map[string]leave.Delegation),
		holidays:     make(map[string]leave.Holiday),
		blocked:      make(map[string]leave.BlockedPeriod),
	}
}

// =============================================================================
// LEDGER MOVEMENTS - generic.Store
// =============================================================================

// Append adds a single movement. Append-only.
func (m *Store) Append(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	m.appendLocked(tx)
	return nil
}

// AppendBatch adds multiple movements atomically.
func (m *Store) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all idempotency keys first (atomic check)
	for _, tx := range txs {
		if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
	}
	for _, tx := range txs {
		m.appendLocked(tx)
	}
	return nil
}

func (m *Store) appendLocked(tx generic.Transaction) {
	k := key{EntityID: tx.EntityID, PolicyID: tx.PolicyID}
	txs := m.transactions[k]

	// Keep CreatedAt order; equal timestamps keep insertion order
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].CreatedAt.After(tx.CreatedAt)
	})
	txs = append(txs, generic.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[k] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
}

func (m *Store) Load(_ context.Context, entityID generic.EntityID, policyID generic.PolicyID) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := key{EntityID: entityID, PolicyID: policyID}
	result := make([]generic.Transaction, len(m.transactions[k]))
	copy(result, m.transactions[k])
	return result, nil
}

func (m *Store) LoadRange(_ context.Context, entityID generic.EntityID, policyID generic.PolicyID, from, to time.Time) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := key{EntityID: entityID, PolicyID: policyID}
	var result []generic.Transaction
	for _, tx := range m.transactions[k] {
		if !tx.CreatedAt.Before(from) && !tx.CreatedAt.After(to) {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *Store) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// BATCH RUNS - generic.RunStore
// =============================================================================

// SaveRun inserts or replaces a run by id.
func (m *Store) SaveRun(_ context.Context, run generic.BatchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

// ListRuns returns the newest runs first. An empty kind matches all.
func (m *Store) ListRuns(_ context.Context, kind string, limit int) ([]generic.BatchRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.BatchRun
	for i := len(m.runs) - 1; i >= 0; i-- {
		if kind != "" && m.runs[i].Kind != kind {
			continue
		}
		result = append(result, m.runs[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}
