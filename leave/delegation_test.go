package leave_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func TestCreateDelegation_OverlappingDuplicate_ValidationError(t *testing.T) {
	// GIVEN: manager -> peer for 1-15 June
	// WHEN: Adding manager -> peer for 10-20 June
	// THEN: Rejected; a non-overlapping range is fine

	f := newFixture(t)
	peer := f.addEmployee("Peer", "", func(e *leave.Employee) {})
	in := leave.CreateDelegationInput{ManagerID: f.manager.ID, DelegateID: peer.ID, From: day(6, 1), To: day(6, 15)}
	_, err := f.svc.CreateDelegation(f.ctx, in)
	require.NoError(t, err)

	in.From, in.To = day(6, 10), day(6, 20)
	_, err = f.svc.CreateDelegation(f.ctx, in)
	assert.ErrorIs(t, err, generic.ErrValidation)

	in.From, in.To = day(6, 16), day(6, 30)
	_, err = f.svc.CreateDelegation(f.ctx, in)
	assert.NoError(t, err)
}

func TestCreateDelegation_SelfDelegation_ValidationError(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateDelegation(f.ctx, leave.CreateDelegationInput{
		ManagerID: f.manager.ID, DelegateID: f.manager.ID, From: day(6, 1), To: day(6, 2),
	})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestActiveDelegates_OnlyCoveringDate(t *testing.T) {
	f := newFixture(t)
	june := f.addEmployee("June Peer", "", func(e *leave.Employee) {})
	july := f.addEmployee("July Peer", "", func(e *leave.Employee) {})
	_, err := f.svc.CreateDelegation(f.ctx, leave.CreateDelegationInput{ManagerID: f.manager.ID, DelegateID: june.ID, From: day(6, 1), To: day(6, 30)})
	require.NoError(t, err)
	_, err = f.svc.CreateDelegation(f.ctx, leave.CreateDelegationInput{ManagerID: f.manager.ID, DelegateID: july.ID, From: day(7, 1), To: day(7, 31)})
	require.NoError(t, err)

	active, err := f.svc.ActiveDelegates(f.ctx, f.manager.ID, day(6, 15))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, june.ID, active[0].DelegateID)
}

func TestRevokeDelegation_DelegateLosesAuthority(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	peer := f.addEmployee("Peer", "", func(e *leave.Employee) {})
	d, err := f.svc.CreateDelegation(f.ctx, leave.CreateDelegationInput{ManagerID: f.manager.ID, DelegateID: peer.ID, From: day(6, 1), To: day(6, 30)})
	require.NoError(t, err)

	require.NoError(t, f.svc.RevokeDelegation(f.ctx, d.ID))

	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)
	_, err = f.svc.Approve(f.ctx, req.ID, peer.ID, "")
	assert.ErrorIs(t, err, generic.ErrForbidden)

	assert.ErrorIs(t, f.svc.RevokeDelegation(f.ctx, d.ID), generic.ErrNotFound)
}
