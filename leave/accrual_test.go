package leave_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// SINGLE ACCRUAL
// =============================================================================

func TestAccrue_MonthlyRateRoundDown_UsableBalanceMovesInWholeDays(t *testing.T) {
	// GIVEN: Annual leave accruing 1.75/month with ROUND_DOWN
	// WHEN: Accruing twice at the policy rate
	// THEN: accruedActual is 3.5, accruedRounded 3, lastAccrualDate today

	f := newFixture(t)

	first, err := f.svc.Accrue(f.ctx, f.ent.ID, dec("0"), "")
	require.NoError(t, err)
	assert.Equal(t, generic.OutcomeSuccess, first.Status)
	requireDecimal(t, "0", first.Previous, "previous")
	requireDecimal(t, "1", first.Current, "current")

	second, err := f.svc.Accrue(f.ctx, f.ent.ID, dec("0"), "")
	require.NoError(t, err)
	requireDecimal(t, "3", second.Current, "current")

	stored := f.reload(f.ent)
	requireDecimal(t, "3.5", stored.AccruedActual, "accruedActual")
	requireDecimal(t, "3", stored.AccruedRounded, "accruedRounded")
	requireInvariant(t, stored, generic.RoundDown)
	require.NotNil(t, stored.LastAccrualDate)
	assert.Equal(t, generic.TruncateDay(testNow), *stored.LastAccrualDate)
}

func TestAccrue_SecondAccrualMidApply_BothCounted(t *testing.T) {
	// GIVEN: A second accrual lands between the first one's increment
	//        and its derived-field write
	// WHEN: Both complete
	// THEN: accruedActual holds both days

	var store *interleavingStore
	f := newFixture(t, withInterleaving(&store))
	store.between = func() {
		_, err := f.svc.Accrue(f.ctx, f.ent.ID, dec("1"), "payroll")
		require.NoError(t, err)
	}

	_, err := f.svc.Accrue(f.ctx, f.ent.ID, dec("1"), "payroll")
	require.NoError(t, err)

	requireDecimal(t, "2", f.reload(f.ent).AccruedActual, "accruedActual")
	got, err := f.svc.GetEntitlement(f.ctx, f.ent.ID)
	require.NoError(t, err)
	requireDecimal(t, "2", got.Remaining, "remaining")
	requireInvariant(t, got, generic.RoundDown)
}

func TestAccrue_SuspendedEmployee_Skipped(t *testing.T) {
	f := newFixture(t)
	f.employee.Status = leave.EmployeeSuspended
	require.NoError(t, f.svc.SaveEmployee(f.ctx, f.employee))

	outcome, err := f.svc.Accrue(f.ctx, f.ent.ID, dec("2"), "")
	require.NoError(t, err)
	assert.Equal(t, generic.OutcomeSkipped, outcome.Status)
	assert.Contains(t, outcome.Reason, "suspended")
	requireDecimal(t, "0", f.reload(f.ent).AccruedActual, "accruedActual")
}

func TestAccrue_ApprovedLeaveCoversToday_Skipped(t *testing.T) {
	// GIVEN: An approved request running over today
	// WHEN: Accruing
	// THEN: The entitlement is skipped because the employee is on leave

	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")

	req, err := f.create(day(6, 2), day(6, 4))
	require.NoError(t, err)
	_, err = f.svc.Approve(f.ctx, req.ID, f.manager.ID, "")
	require.NoError(t, err)

	outcome, err := f.svc.Accrue(f.ctx, f.ent.ID, dec("1"), "")
	require.NoError(t, err)
	assert.Equal(t, generic.OutcomeSkipped, outcome.Status)
	assert.Contains(t, outcome.Reason, "approved leave")
}

func TestAccrue_NegativeAmount_ValidationError(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Accrue(f.ctx, f.ent.ID, dec("-1"), "")
	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// BATCH ACCRUAL
// =============================================================================

func TestAccrueAll_OneSuspended_OthersStillAccrue(t *testing.T) {
	// GIVEN: Two entitlements, one belonging to a suspended employee
	// WHEN: Running a batch accrual
	// THEN: One success, one skip, and the batch itself succeeds

	f := newFixture(t)
	other := f.addEmployee("Linus Suspended", f.manager.ID, func(e *leave.Employee) {
		e.Status = leave.EmployeeSuspended
	})
	_, err := f.svc.EnsureEntitlement(f.ctx, other.ID, f.annual.ID, dec("21"))
	require.NoError(t, err)

	result, err := f.svc.AccrueAll(f.ctx, leave.AccrualRun{LeaveTypeID: f.annual.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded())
	assert.Equal(t, 1, result.Skipped())
	assert.Equal(t, 0, result.Failed())
	assert.NotEmpty(t, result.RunID)

	requireDecimal(t, "1.75", f.reload(f.ent).AccruedActual, "accruedActual")
}

func TestAccrueAll_NothingSucceeds_BatchError(t *testing.T) {
	f := newFixture(t)
	f.employee.Status = leave.EmployeeOnLeave
	require.NoError(t, f.svc.SaveEmployee(f.ctx, f.employee))

	result, err := f.svc.AccrueAll(f.ctx, leave.AccrualRun{LeaveTypeID: f.annual.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrBatchFailed)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Skipped())
}

func TestAccrueAll_DepartmentFilter_OnlyThatDepartment(t *testing.T) {
	// GIVEN: An engineering and a sales employee with entitlements
	// WHEN: Accruing 2 days for sales only
	// THEN: Only the sales entitlement moves

	f := newFixture(t)
	sales := f.addEmployee("Sam Sales", f.manager.ID, func(e *leave.Employee) { e.DepartmentID = "sales" })
	salesEnt, err := f.svc.EnsureEntitlement(f.ctx, sales.ID, f.annual.ID, dec("21"))
	require.NoError(t, err)

	amount := dec("2")
	result, err := f.svc.AccrueAll(f.ctx, leave.AccrualRun{LeaveTypeID: f.annual.ID, DepartmentID: "sales", Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded())

	requireDecimal(t, "2", f.reload(salesEnt).AccruedActual, "sales accruedActual")
	requireDecimal(t, "0", f.reload(f.ent).AccruedActual, "engineering accruedActual")
}

func TestPolicy_AccrualAmount_ByMethod(t *testing.T) {
	p := leave.Policy{MonthlyRate: dec("1.5"), YearlyRate: dec("18")}

	p.AccrualMethod = leave.AccrualMonthly
	requireDecimal(t, "1.5", p.AccrualAmount(), "monthly")
	p.AccrualMethod = leave.AccrualYearly
	requireDecimal(t, "18", p.AccrualAmount(), "yearly")
	p.AccrualMethod = leave.AccrualNone
	requireDecimal(t, "0", p.AccrualAmount(), "none")
}
