package leave_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

func TestAdjust_Add_AccruedIncreasedAndRecorded(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "4", "0", "0", "0")

	adj, ent, err := f.svc.Adjust(f.ctx, leave.AdjustInput{
		EntitlementID: f.ent.ID,
		Type:          leave.AdjustmentAdd,
		Amount:        dec("2.5"),
		Reason:        "overtime compensation",
		Actor:         "hr-1",
	})
	require.NoError(t, err)

	requireDecimal(t, "6.5", ent.AccruedActual, "accruedActual")
	requireDecimal(t, "6", ent.Remaining, "remaining")
	requireInvariant(t, ent, generic.RoundDown)

	list, err := f.svc.ListAdjustments(f.ctx, f.ent.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, adj.ID, list[0].ID)
	assert.Equal(t, "hr-1", list[0].CreatedBy)
}

func TestAdjust_EncashmentOverRemaining_BalanceError(t *testing.T) {
	// GIVEN: remaining 4
	// WHEN: Encashing 5 days
	// THEN: BalanceError and no adjustment recorded

	f := newFixture(t)
	f.seed(f.ent, "4", "0", "0", "0")

	_, _, err := f.svc.Adjust(f.ctx, leave.AdjustInput{
		EntitlementID: f.ent.ID,
		Type:          leave.AdjustmentEncashment,
		Amount:        dec("5"),
		Reason:        "year-end payout",
	})
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)

	list, err := f.svc.ListAdjustments(f.ctx, f.ent.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAdjust_Deduct_AccruedDecreased(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")

	_, ent, err := f.svc.Adjust(f.ctx, leave.AdjustInput{
		EntitlementID: f.ent.ID, Type: leave.AdjustmentDeduct, Amount: dec("3"), Reason: "correction",
	})
	require.NoError(t, err)
	requireDecimal(t, "7", ent.AccruedActual, "accruedActual")
	requireDecimal(t, "7", ent.Remaining, "remaining")
}

func TestAdjust_RecordWriteFails_MutationReversed(t *testing.T) {
	fs := &failingStore{}
	f := newFixture(t, withStore(func(m *memory.Store) leave.Store {
		fs.Store = m
		return fs
	}))
	f.seed(f.ent, "4", "0", "0", "0")
	fs.failAdjustment = true

	_, _, err := f.svc.Adjust(f.ctx, leave.AdjustInput{
		EntitlementID: f.ent.ID, Type: leave.AdjustmentAdd, Amount: dec("2"), Reason: "bonus",
	})
	assert.ErrorIs(t, err, errStoreDown)
	requireDecimal(t, "4", f.reload(f.ent).AccruedActual, "accruedActual")
}

func TestAdjust_InvalidInput_ValidationError(t *testing.T) {
	f := newFixture(t)

	cases := []leave.AdjustInput{
		{EntitlementID: f.ent.ID, Type: "gift", Amount: dec("1"), Reason: "x"},
		{EntitlementID: f.ent.ID, Type: leave.AdjustmentAdd, Amount: dec("0"), Reason: "x"},
		{EntitlementID: f.ent.ID, Type: leave.AdjustmentAdd, Amount: dec("1"), Reason: ""},
	}
	for _, in := range cases {
		_, _, err := f.svc.Adjust(f.ctx, in)
		assert.ErrorIs(t, err, generic.ErrValidation, "input %+v", in)
	}
}
