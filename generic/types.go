/*
Package generic provides the domain-agnostic core of the leave engine.

PURPOSE:
  This package contains the building blocks every leave component shares:
  identifiers, day arithmetic, rounding, the movement ledger, batch outcome
  bookkeeping and the error taxonomy. Nothing here knows what a leave type,
  a request or an approval is.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: 24-hex document ids shared by every store
  - Transaction: An immutable movement recorded for every balance change
  - TransactionType: Which balance bucket a movement touched and why

DESIGN PRINCIPLES:
  1. Precision: Day quantities are decimal.Decimal, never float64
  2. Immutability: Movements are appended, never edited
  3. Type Safety: Employee and leave type ids are distinct types
  4. Auditability: Every movement has actor, reason, reference and idempotency key

USAGE:
  tx := generic.Transaction{
      EntityID: "65f1c0a2b3d4e5f6a7b8c9d0",
      PolicyID: "65f1c0a2b3d4e5f6a7b8c9d1",
      Field:    generic.FieldPending,
      Delta:    decimal.NewFromInt(3),
      Type:     generic.TxReservation,
  }

SEE ALSO:
  - rounding.go: Rounding rules applied to cumulative accrual
  - ledger.go: Movement persistence interface
  - errors.go: Error taxonomy
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string      // employee
type PolicyID string      // leave type
type TransactionID string // ledger movement

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// TRANSACTION - Movement on one balance bucket
// =============================================================================

type TransactionType string

const (
	TxAccrual      TransactionType = "accrual"       // Periodic accrual run
	TxReservation  TransactionType = "reservation"   // Pending reserved by a request
	TxRelease      TransactionType = "release"       // Pending released (reject, cancel, shrink)
	TxConsumption  TransactionType = "consumption"   // Pending converted to taken on finalize
	TxCarryForward TransactionType = "carry_forward" // Carry-forward run
	TxReset        TransactionType = "reset"         // Anniversary reset
	TxAdjustment   TransactionType = "adjustment"    // Manual add, deduct or encashment
)

// Field names the entitlement bucket a movement changed.
type Field string

const (
	FieldAccruedActual Field = "accrued_actual"
	FieldCarryForward  Field = "carry_forward"
	FieldTaken         Field = "taken"
	FieldPending       Field = "pending"
	FieldRemaining     Field = "remaining"
)

type Transaction struct {
	ID             TransactionID
	EntityID       EntityID
	PolicyID       PolicyID
	EntitlementID  string
	Type           TransactionType
	Field          Field
	Delta          decimal.Decimal
	ReferenceID    string // request, adjustment or batch run
	Reason         string
	IdempotencyKey string

	// Audit fields
	CreatedBy string // Actor id, or "system" for batch jobs
	CreatedAt time.Time
}
