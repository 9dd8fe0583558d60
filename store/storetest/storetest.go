// Package storetest is the behavioural contract every leave store passes.
// Store packages call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Store is the full persistence surface of the service.
type Store interface {
	leave.Store
	leave.CalendarStore
	generic.Store
	generic.RunStore
}

var base = time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

// Run exercises s through every port. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("Employees", func(t *testing.T) { testEmployees(t, newStore(t)) })
	t.Run("LeaveTypes", func(t *testing.T) { testLeaveTypes(t, newStore(t)) })
	t.Run("Entitlements", func(t *testing.T) { testEntitlements(t, newStore(t)) })
	t.Run("Requests", func(t *testing.T) { testRequests(t, newStore(t)) })
	t.Run("AdjustmentsAndDelegations", func(t *testing.T) { testAdjustmentsAndDelegations(t, newStore(t)) })
	t.Run("Calendar", func(t *testing.T) { testCalendar(t, newStore(t)) })
	t.Run("Ledger", func(t *testing.T) { testLedger(t, newStore(t)) })
	t.Run("Runs", func(t *testing.T) { testRuns(t, newStore(t)) })
}

func testEmployees(t *testing.T, s Store) {
	ctx := context.Background()
	emp := &leave.Employee{
		ID:                generic.NewID(),
		Name:              "Ada",
		DepartmentID:      "eng",
		Status:            leave.EmployeeActive,
		HireDate:          generic.Date(2020, time.March, 15),
		FirstVacationDate: ptr(generic.Date(2020, time.August, 1)),
	}
	require.NoError(t, s.SaveEmployee(ctx, emp))
	require.NoError(t, s.SaveEmployee(ctx, &leave.Employee{
		ID:       generic.NewID(), Name: "Bob", DepartmentID: "ops", Status: leave.EmployeeSuspended,
		HireDate: generic.Date(2021, time.January, 4),
	}))

	got, err := s.GetEmployee(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)
	assert.True(t, got.HireDate.Equal(emp.HireDate))
	require.NotNil(t, got.FirstVacationDate)
	assert.True(t, got.FirstVacationDate.Equal(*emp.FirstVacationDate))
	assert.Nil(t, got.ContractStartDate)

	emp.Status = leave.EmployeeTerminated
	require.NoError(t, s.SaveEmployee(ctx, emp))
	got, err = s.GetEmployee(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.EmployeeTerminated, got.Status)

	eng, err := s.ListEmployees(ctx, leave.EmployeeFilter{DepartmentID: "eng"})
	require.NoError(t, err)
	assert.Len(t, eng, 1)
	suspended, err := s.ListEmployees(ctx, leave.EmployeeFilter{Status: leave.EmployeeSuspended})
	require.NoError(t, err)
	assert.Len(t, suspended, 1)

	_, err = s.GetEmployee(ctx, generic.NewID())
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func testLeaveTypes(t *testing.T, s Store) {
	ctx := context.Background()
	lt := &leave.LeaveType{
		ID:         generic.NewID(),
		Code:       "SL",
		Name:       "Sick Leave",
		Category:   leave.CategorySick,
		Deductible: false,
		Limits: leave.CumulativeLimits{
			MaxDaysPerYear: dec("30"), MaxDaysPerWindow: dec("360"), WindowYears: 3,
		},
		Attachments: leave.AttachmentRules{MaxBytes: 1024, AllowedTypes: []string{"application/pdf"}},
		Policy: leave.Policy{
			AccrualMethod: leave.AccrualNone,
			RoundingRule:  generic.RoundNone,
			Eligibility:   leave.Eligibility{MinTenureMonths: 3, AllowedContractTypes: []string{"permanent"}},
		},
		CreatedAt: base,
		UpdatedAt: base,
	}
	require.NoError(t, s.SaveLeaveType(ctx, lt))

	got, err := s.GetLeaveType(ctx, lt.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.CategorySick, got.Category)
	assert.True(t, got.Limits.MaxDaysPerWindow.Equal(dec("360")))
	assert.Equal(t, []string{"permanent"}, got.Policy.Eligibility.AllowedContractTypes)
	assert.Equal(t, []string{"application/pdf"}, got.Attachments.AllowedTypes)
	assert.Equal(t, 3, got.Policy.Eligibility.MinTenureMonths)

	all, err := s.ListLeaveTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = s.GetLeaveType(ctx, generic.NewID())
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func newEntitlement(employeeID, leaveTypeID string) *leave.Entitlement {
	return &leave.Entitlement{
		ID:                generic.NewID(),
		EmployeeID:        generic.EntityID(employeeID),
		LeaveTypeID:       generic.PolicyID(leaveTypeID),
		YearlyEntitlement: dec("21"),
		NextResetDate:     ptr(generic.Date(2026, time.March, 15)),
		CreatedAt:         base,
		UpdatedAt:         base,
	}
}

func testEntitlements(t *testing.T, s Store) {
	ctx := context.Background()
	empID, ltID := generic.NewID(), generic.NewID()
	ent := newEntitlement(empID, ltID)
	require.NoError(t, s.CreateEntitlement(ctx, ent))

	// GIVEN: An existing (employee, leave type) pair
	// WHEN: Creating a second entitlement for it
	// THEN: ValidationError
	err := s.CreateEntitlement(ctx, newEntitlement(empID, ltID))
	assert.ErrorIs(t, err, generic.ErrValidation)

	updated, err := s.IncrementEntitlement(ctx, ent.ID, leave.EntitlementDelta{
		AccruedActual: dec("1.75"), Pending: dec("3"),
	}, base.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, updated.AccruedActual.Equal(dec("1.75")))
	assert.True(t, updated.Pending.Equal(dec("3")))

	updated, err = s.IncrementEntitlement(ctx, ent.ID, leave.EntitlementDelta{
		AccruedActual: dec("1.75"), Pending: dec("-3"), Taken: dec("3"),
	}, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, updated.AccruedActual.Equal(dec("3.5")))
	assert.True(t, updated.Pending.IsZero())
	assert.True(t, updated.Taken.Equal(dec("3")))

	updated.AccruedRounded = dec("3")
	updated.Remaining = dec("0")
	updated.LastAccrualDate = ptr(generic.Date(2025, time.June, 2))
	require.NoError(t, s.UpdateEntitlement(ctx, updated))

	got, err := s.GetEntitlement(ctx, ent.ID)
	require.NoError(t, err)
	assert.True(t, got.AccruedRounded.Equal(dec("3")))
	require.NotNil(t, got.LastAccrualDate)
	assert.True(t, got.LastAccrualDate.Equal(generic.Date(2025, time.June, 2)))
	require.NotNil(t, got.NextResetDate)

	// GIVEN: An over-release left pending negative
	// WHEN: Writing the derived fields
	// THEN: Counters keep their increments and only pending is clamped
	_, err = s.IncrementEntitlement(ctx, ent.ID, leave.EntitlementDelta{Pending: dec("-1")}, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.SetEntitlementDerived(ctx, ent.ID, leave.DerivedFields{
		AccruedRounded: dec("3"),
		Remaining:      dec("0.5"),
		UpdatedAt:      base.Add(3 * time.Hour),
	}))
	got, err = s.GetEntitlement(ctx, ent.ID)
	require.NoError(t, err)
	assert.True(t, got.Pending.IsZero(), got.Pending.String())
	assert.True(t, got.AccruedActual.Equal(dec("3.5")))
	assert.True(t, got.Taken.Equal(dec("3")))
	assert.True(t, got.Remaining.Equal(dec("0.5")))
	require.NotNil(t, got.LastAccrualDate, "nil dates keep the stored value")
	assert.True(t, got.LastAccrualDate.Equal(generic.Date(2025, time.June, 2)))
	assert.ErrorIs(t, s.SetEntitlementDerived(ctx, generic.NewID(), leave.DerivedFields{}), generic.ErrNotFound)

	found, err := s.FindEntitlement(ctx, empID, ltID)
	require.NoError(t, err)
	assert.Equal(t, ent.ID, found.ID)

	byType, err := s.ListEntitlements(ctx, leave.EntitlementFilter{LeaveTypeID: ltID})
	require.NoError(t, err)
	assert.Len(t, byType, 1)

	_, err = s.IncrementEntitlement(ctx, generic.NewID(), leave.EntitlementDelta{Taken: dec("1")}, base)
	assert.ErrorIs(t, err, generic.ErrNotFound)
	assert.ErrorIs(t, s.UpdateEntitlement(ctx, newEntitlement(empID, ltID)), generic.ErrNotFound)
	_, err = s.FindEntitlement(ctx, empID, generic.NewID())
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func testRequests(t *testing.T, s Store) {
	ctx := context.Background()
	empID, ltID := generic.NewID(), generic.NewID()
	decided := base.Add(time.Hour)

	june := &leave.LeaveRequest{
		ID:           generic.NewID(), EmployeeID: generic.EntityID(empID), LeaveTypeID: generic.PolicyID(ltID),
		From:         generic.Date(2025, time.June, 9), To: generic.Date(2025, time.June, 11),
		DurationDays: dec("3"), Status: leave.StatusPending,
		ApprovalFlow: []leave.ApprovalStep{{Role: leave.RoleManager, Status: leave.StepPending}},
		CreatedAt:    base, UpdatedAt: base,
	}
	july := &leave.LeaveRequest{
		ID:           generic.NewID(), EmployeeID: generic.EntityID(empID), LeaveTypeID: generic.PolicyID(ltID),
		From:         generic.Date(2025, time.July, 1), To: generic.Date(2025, time.July, 2),
		DurationDays: dec("2"), Status: leave.StatusApproved,
		CreatedAt:    base.Add(48 * time.Hour), UpdatedAt: base.Add(48 * time.Hour),
	}
	require.NoError(t, s.CreateRequest(ctx, june))
	require.NoError(t, s.CreateRequest(ctx, july))

	june.Status = leave.StatusApproved
	june.ApprovalFlow[0] = leave.ApprovalStep{Role: leave.RoleManager, Status: leave.StepApproved, DecidedBy: "mgr", DecidedAt: &decided}
	june.IrregularPatternFlag = true
	require.NoError(t, s.UpdateRequest(ctx, june))

	got, err := s.GetRequest(ctx, june.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
	assert.True(t, got.IrregularPatternFlag)
	require.Len(t, got.ApprovalFlow, 1)
	assert.Equal(t, "mgr", got.ApprovalFlow[0].DecidedBy)
	require.NotNil(t, got.ApprovalFlow[0].DecidedAt)
	assert.True(t, got.ApprovalFlow[0].DecidedAt.Equal(decided))
	assert.True(t, got.DurationDays.Equal(dec("3")))

	overlap := generic.NewPeriod(generic.Date(2025, time.June, 11), generic.Date(2025, time.June, 20))
	hits, err := s.ListRequests(ctx, leave.RequestFilter{EmployeeID: empID, Overlapping: &overlap})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, june.ID, hits[0].ID)

	cutoff := base.Add(time.Hour)
	stale, err := s.ListRequests(ctx, leave.RequestFilter{CreatedBefore: &cutoff})
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, june.ID, stale[0].ID)

	both, err := s.ListRequests(ctx, leave.RequestFilter{Statuses: []leave.RequestStatus{leave.StatusApproved, leave.StatusCancelled}})
	require.NoError(t, err)
	require.Len(t, both, 2)
	assert.Equal(t, june.ID, both[0].ID, "ordered by start date")

	none, err := s.ListRequests(ctx, leave.RequestFilter{LeaveTypeID: generic.NewID()})
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.ErrorIs(t, s.UpdateRequest(ctx, &leave.LeaveRequest{ID: generic.NewID()}), generic.ErrNotFound)
}

func testAdjustmentsAndDelegations(t *testing.T, s Store) {
	ctx := context.Background()
	entID := generic.NewID()
	for i, amount := range []string{"2", "1.5"} {
		require.NoError(t, s.SaveAdjustment(ctx, &leave.Adjustment{
			ID:        generic.NewID(), EntitlementID: entID, EmployeeID: "e", LeaveTypeID: "l",
			Type:      leave.AdjustmentAdd, Amount: dec(amount), Reason: "correction", CreatedBy: "hr",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	adjs, err := s.ListAdjustments(ctx, entID)
	require.NoError(t, err)
	require.Len(t, adjs, 2)
	assert.True(t, adjs[1].Amount.Equal(dec("1.5")))

	d := &leave.Delegation{
		ID:   generic.NewID(), ManagerID: "mgr", DelegateID: "dep",
		From: generic.Date(2025, time.June, 1), To: generic.Date(2025, time.June, 14), CreatedAt: base,
	}
	require.NoError(t, s.SaveDelegation(ctx, d))

	inside := base.Add(72 * time.Hour)
	active, err := s.ListDelegations(ctx, leave.DelegationFilter{ManagerID: "mgr", ActiveAt: &inside})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	lastDay := time.Date(2025, time.June, 14, 23, 0, 0, 0, time.UTC)
	active, err = s.ListDelegations(ctx, leave.DelegationFilter{DelegateID: "dep", ActiveAt: &lastDay})
	require.NoError(t, err)
	assert.Len(t, active, 1, "last day is inclusive")

	after := generic.Date(2025, time.June, 15)
	active, err = s.ListDelegations(ctx, leave.DelegationFilter{ManagerID: "mgr", ActiveAt: &after})
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, s.DeleteDelegation(ctx, d.ID))
	assert.ErrorIs(t, s.DeleteDelegation(ctx, d.ID), generic.ErrNotFound)
}

func testCalendar(t *testing.T, s Store) {
	ctx := context.Background()
	h := &leave.Holiday{ID: generic.NewID(), Name: "Christmas", Date: generic.Date(2020, time.December, 25), Recurrence: "FREQ=YEARLY"}
	require.NoError(t, s.SaveHoliday(ctx, h))
	b := &leave.BlockedPeriod{ID: generic.NewID(), Name: "Freeze", From: generic.Date(2025, time.December, 20), To: generic.Date(2026, time.January, 5)}
	require.NoError(t, s.SaveBlockedPeriod(ctx, b))

	holidays, err := s.ListHolidays(ctx)
	require.NoError(t, err)
	require.Len(t, holidays, 1)
	assert.Equal(t, "FREQ=YEARLY", holidays[0].Recurrence)
	assert.True(t, holidays[0].Date.Equal(h.Date))

	blocked, err := s.ListBlockedPeriods(ctx)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.True(t, blocked[0].To.Equal(b.To))

	require.NoError(t, s.DeleteHoliday(ctx, h.ID))
	require.NoError(t, s.DeleteBlockedPeriod(ctx, b.ID))
	assert.ErrorIs(t, s.DeleteHoliday(ctx, h.ID), generic.ErrNotFound)
	assert.ErrorIs(t, s.DeleteBlockedPeriod(ctx, b.ID), generic.ErrNotFound)
}

func movement(key string, at time.Time, delta string) generic.Transaction {
	return generic.Transaction{
		ID:             generic.TransactionID(generic.NewID()), EntityID: "emp", PolicyID: "annual", EntitlementID: "ent",
		Type:           generic.TxAccrual, Field: generic.FieldAccruedActual, Delta: dec(delta),
		IdempotencyKey: key, CreatedBy: "system", CreatedAt: at,
	}
}

func testLedger(t *testing.T, s Store) {
	ctx := context.Background()
	ledger := generic.NewLedger(s)

	require.NoError(t, ledger.Append(ctx, movement("k1", base, "1.75")))
	require.NoError(t, ledger.AppendBatch(ctx, []generic.Transaction{
		movement("k2", base.Add(time.Hour), "1.75"),
		movement("k3", base.Add(2*time.Hour), "-0.5"),
	}))

	// GIVEN: A movement already recorded under k1
	// WHEN: Appending k1 again
	// THEN: ErrDuplicateIdempotencyKey, nothing written
	assert.ErrorIs(t, ledger.Append(ctx, movement("k1", base, "9")), generic.ErrDuplicateIdempotencyKey)
	assert.ErrorIs(t, ledger.AppendBatch(ctx, []generic.Transaction{
		movement("k4", base, "1"), movement("k4", base, "1"),
	}), generic.ErrDuplicateIdempotencyKey)

	all, err := ledger.Transactions(ctx, "emp", "annual")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[2].Delta.Equal(dec("-0.5")))
	assert.Equal(t, "k1", all[0].IdempotencyKey)

	ranged, err := ledger.TransactionsInRange(ctx, "emp", "annual", base.Add(30*time.Minute), base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "k2", ranged[0].IdempotencyKey)

	exists, err := s.Exists(ctx, "k4")
	require.NoError(t, err)
	assert.False(t, exists)
}

func testRuns(t *testing.T, s Store) {
	ctx := context.Background()
	first := generic.BatchRun{ID: "r1", Kind: "reset", Status: generic.RunRunning, StartedAt: base}
	second := generic.BatchRun{ID: "r2", Kind: "reminder", Status: generic.RunRunning, StartedAt: base.Add(time.Minute)}
	require.NoError(t, s.SaveRun(ctx, first))
	require.NoError(t, s.SaveRun(ctx, second))

	done := base.Add(2 * time.Minute)
	first.Status, first.Succeeded, first.CompletedAt = generic.RunCompleted, 4, &done
	require.NoError(t, s.SaveRun(ctx, first))

	runs, err := s.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID, "newest first")

	resets, err := s.ListRuns(ctx, "reset", 10)
	require.NoError(t, err)
	require.Len(t, resets, 1)
	assert.Equal(t, generic.RunCompleted, resets[0].Status)
	assert.Equal(t, 4, resets[0].Succeeded)
	require.NotNil(t, resets[0].CompletedAt)
}
