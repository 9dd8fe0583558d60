/*
sqlite_test.go - SQLite store against the shared contract and the service

Every test opens a fresh in-memory database, so migrations run each time.
*/
package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/store/storetest"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return newStore(t) })
}

func TestNew_ReopenFile_MigrationsIdempotent(t *testing.T) {
	// GIVEN: A database file that was already migrated
	// WHEN: Opening it again
	// THEN: No error, data still there

	path := filepath.Join(t.TempDir(), "leave.db")
	s, err := sqlite.New(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.SaveEmployee(ctx, &leave.Employee{
		ID: generic.NewID(), Name: "Ada", Status: leave.EmployeeActive, HireDate: generic.Date(2020, time.March, 15),
	}))
	require.NoError(t, s.Close())

	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()
	all, err := s.ListEmployees(ctx, leave.EmployeeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// =============================================================================
// SERVICE OVER SQLITE
// =============================================================================

func TestService_RequestLifecycle_PersistsBalancesAndHistory(t *testing.T) {
	// GIVEN: An employee with 10 accrued days and a holiday on Thu 12 June
	// WHEN: Requesting Wed 11 - Fri 13 June, approving and finalizing
	// THEN: 2 days taken, remaining 8, every movement in the history

	ctx := context.Background()
	s := newStore(t)
	now := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	cal := calendar.NewProvider(s)
	svc := leave.NewService(s,
		leave.WithLedger(generic.NewLedger(s)),
		leave.WithCalendar(cal),
		leave.WithClock(func() time.Time { return now }),
	)

	require.NoError(t, cal.AddHoliday(ctx, &leave.Holiday{Name: "Founders Day", Date: generic.Date(2025, time.June, 12)}))

	manager := &leave.Employee{Name: "Grace", Status: leave.EmployeeActive, HireDate: generic.Date(2018, time.January, 8)}
	require.NoError(t, svc.SaveEmployee(ctx, manager))
	employee := &leave.Employee{
		Name:   "Ada", ManagerID: manager.ID, Position: "Engineer", ContractType: "permanent",
		Status: leave.EmployeeActive, HireDate: generic.Date(2020, time.March, 15),
	}
	require.NoError(t, svc.SaveEmployee(ctx, employee))

	annual := &leave.LeaveType{
		Name: "Annual Leave", Code: "AL", Category: leave.CategoryAnnual, Deductible: true,
		Policy: leave.Policy{
			AccrualMethod: leave.AccrualMonthly, MonthlyRate: dec("1.75"), YearlyRate: dec("21"),
			RoundingRule:  generic.RoundDown, AllowCarryForward: true, MaxCarryForward: dec("5"),
		},
	}
	require.NoError(t, svc.CreateLeaveType(ctx, annual))

	ent, err := svc.EnsureEntitlement(ctx, employee.ID, annual.ID, dec("21"))
	require.NoError(t, err)
	_, err = svc.Accrue(ctx, ent.ID, dec("10.5"), "system")
	require.NoError(t, err)

	req, err := svc.CreateRequest(ctx, leave.CreateRequestInput{
		EmployeeID: employee.ID, LeaveTypeID: annual.ID,
		From:       generic.Date(2025, time.June, 11), To: generic.Date(2025, time.June, 13),
	})
	require.NoError(t, err)
	assert.True(t, req.DurationDays.Equal(dec("2")))

	_, err = svc.Approve(ctx, req.ID, manager.ID, "enjoy")
	require.NoError(t, err)
	finalized, err := svc.Finalize(ctx, req.ID, "hr-1")
	require.NoError(t, err)
	assert.True(t, finalized.IsFinalized())

	stored, err := s.GetEntitlement(ctx, ent.ID)
	require.NoError(t, err)
	assert.True(t, stored.AccruedActual.Equal(dec("10.5")))
	assert.True(t, stored.AccruedRounded.Equal(dec("10")))
	assert.True(t, stored.Taken.Equal(dec("2")))
	assert.True(t, stored.Pending.IsZero())
	assert.True(t, stored.Remaining.Equal(dec("8")), "remaining %s", stored.Remaining)

	history, err := svc.History(ctx, ent.ID)
	require.NoError(t, err)
	var types []generic.TransactionType
	for _, tx := range history {
		types = append(types, tx.Type)
	}
	assert.Contains(t, types, generic.TxAccrual)
	assert.Contains(t, types, generic.TxReservation)
	assert.Contains(t, types, generic.TxConsumption)

	reloaded, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.ApprovalFlow, 2)
	assert.Equal(t, "enjoy", reloaded.ApprovalFlow[0].Comment)
	assert.Equal(t, leave.RoleHR, reloaded.ApprovalFlow[1].Role)
}

func TestIncrementEntitlement_Concurrent_NoLostUpdates(t *testing.T) {
	// GIVEN: One entitlement
	// WHEN: 20 goroutines each add 0.5 accrued
	// THEN: accrued is exactly 10

	ctx := context.Background()
	s := newStore(t)
	ent := &leave.Entitlement{
		ID:        generic.NewID(), EmployeeID: "emp", LeaveTypeID: "annual",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateEntitlement(ctx, ent))

	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			_, err := s.IncrementEntitlement(ctx, ent.ID, leave.EntitlementDelta{AccruedActual: dec("0.5")}, time.Now().UTC())
			errs <- err
		}()
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, <-errs)
	}

	got, err := s.GetEntitlement(ctx, ent.ID)
	require.NoError(t, err)
	assert.True(t, got.AccruedActual.Equal(dec("10")), "accrued %s", got.AccruedActual)
}
