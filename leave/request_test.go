/*
request_test.go - Tests for the leave request lifecycle

These tests verify:
  - Reservation and release are symmetric (create/cancel, create/reject)
  - Finalize moves exactly durationDays from pending to taken
  - Overlap, balance, notice, attachment and blocked-period rejections
  - Approval authority (manager, delegate, others)
  - HR override from every reachable state
  - Notification failures never fail the transition
*/
package leave_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// CREATE
// =============================================================================

func TestCreateRequest_ThreeWorkingDays_ReservesPending(t *testing.T) {
	// GIVEN: remaining 10
	// WHEN: Requesting Wed 11 - Fri 13 June
	// THEN: durationDays 3, pending 3, one open Manager step, creation notified

	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")

	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)

	requireDecimal(t, "3", req.DurationDays, "durationDays")
	assert.Equal(t, leave.StatusPending, req.Status)
	require.Len(t, req.ApprovalFlow, 1)
	assert.Equal(t, leave.RoleManager, req.ApprovalFlow[0].Role)
	assert.Equal(t, leave.StepPending, req.ApprovalFlow[0].Status)
	assert.Len(t, req.ID, 24)

	stored := f.reload(f.ent)
	requireDecimal(t, "3", stored.Pending, "pending")
	requireDecimal(t, "7", stored.Remaining, "remaining")
	requireInvariant(t, stored, generic.RoundDown)

	assert.Equal(t, []leave.EventType{leave.EventRequestCreated}, f.notifier.types())
	assert.Equal(t, f.manager.ID, f.notifier.events[0].ManagerID)
}

func TestCreateRequest_SpansWeekendAndHoliday_CountsWorkingDaysOnly(t *testing.T) {
	// GIVEN: Thursday 12 June is a holiday
	// WHEN: Requesting Wed 11 - Mon 16 June
	// THEN: Wed, Fri and Mon count: 3 days

	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	f.calendar.holidays = []time.Time{day(6, 12)}

	req, err := f.create(day(6, 11), day(6, 16))
	require.NoError(t, err)
	requireDecimal(t, "3", req.DurationDays, "durationDays")
}

func TestCreateRequest_ExplicitDuration_UsedAsIs(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	half := dec("0.5")

	req, err := f.svc.CreateRequest(f.ctx, leave.CreateRequestInput{
		EmployeeID:   f.employee.ID,
		LeaveTypeID:  f.annual.ID,
		From:         day(6, 11),
		To:           day(6, 11),
		DurationDays: &half,
	})
	require.NoError(t, err)
	requireDecimal(t, "0.5", req.DurationDays, "durationDays")
	requireDecimal(t, "0.5", f.reload(f.ent).Pending, "pending")
}

func TestCreateRequest_AvailableBelowDuration_BalanceErrorAndUnchanged(t *testing.T) {
	// GIVEN: remaining 3 with pending 1, so available = 3 - 1 = 2
	// WHEN: Requesting 3 working days
	// THEN: BalanceError, entitlement unchanged

	f := newFixture(t)
	f.seed(f.ent, "4", "0", "0", "1")
	before := f.reload(f.ent)

	_, err := f.create(day(6, 11), day(6, 13))
	require.Error(t, err)

	var be *generic.BalanceError
	require.True(t, errors.As(err, &be))
	requireDecimal(t, "2", be.Available, "available")
	requireDecimal(t, "1", be.Shortfall, "shortfall")

	after := f.reload(f.ent)
	assert.Equal(t, before.Pending.String(), after.Pending.String())
	assert.Equal(t, before.Remaining.String(), after.Remaining.String())
	assert.Empty(t, f.notifier.events)
}

func TestCreateRequest_OverlapsPending_OverlapError(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "20", "0", "0", "0")

	first, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)

	_, err = f.create(day(6, 13), day(6, 17))
	var oe *generic.OverlapError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, first.ID, oe.ExistingRequestID)
}

func TestCreateRequest_OverlapsCancelled_Allowed(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "20", "0", "0", "0")

	first, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)
	_, err = f.svc.CancelRequest(f.ctx, first.ID, f.employee.ID)
	require.NoError(t, err)

	_, err = f.create(day(6, 11), day(6, 13))
	assert.NoError(t, err)
}

func TestCreateRequest_EligibilityViolations_AllReported(t *testing.T) {
	// GIVEN: A policy requiring 120 months tenure and managers on fixed-term contracts
	// WHEN: An engineer on a permanent contract with ~62 months requests leave
	// THEN: One EligibilityError carries all three violations

	f := newFixture(t)
	strict := f.addLeaveType(&leave.LeaveType{
		Name:     "Sabbatical",
		Category: leave.CategoryOther,
		Policy: leave.Policy{
			AccrualMethod: leave.AccrualNone,
			Eligibility: leave.Eligibility{
				MinTenureMonths:      120,
				AllowedPositions:     []string{"Manager"},
				AllowedContractTypes: []string{"fixed-term"},
			},
		},
	})

	_, err := f.svc.CreateRequest(f.ctx, leave.CreateRequestInput{
		EmployeeID: f.employee.ID, LeaveTypeID: strict.ID, From: day(7, 1), To: day(7, 4),
	})
	var ee *generic.EligibilityError
	require.True(t, errors.As(err, &ee))
	assert.Len(t, ee.Violations, 3)
	assert.ErrorIs(t, err, generic.ErrEligibility)
}

func TestCreateRequest_ShortNotice_EligibilityErrorButSickExempt(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	withNotice := *f.annual
	withNotice.Policy.MinNoticeDays = 14
	require.NoError(t, f.svc.UpdateLeaveType(f.ctx, &withNotice))

	_, err := f.create(day(6, 4), day(6, 4))
	assert.ErrorIs(t, err, generic.ErrEligibility)

	sick := f.addLeaveType(&leave.LeaveType{
		Name:     "Sick Leave",
		Category: leave.CategorySick,
		Policy:   leave.Policy{AccrualMethod: leave.AccrualNone, MinNoticeDays: 14},
	})
	_, err = f.svc.CreateRequest(f.ctx, leave.CreateRequestInput{
		EmployeeID: f.employee.ID, LeaveTypeID: sick.ID, From: day(6, 3), To: day(6, 3),
	})
	assert.NoError(t, err)
}

func TestCreateRequest_SickLeaveOverOneDayWithoutAttachment_ValidationError(t *testing.T) {
	f := newFixture(t)
	sick := f.addLeaveType(&leave.LeaveType{
		Name:     "Sick Leave",
		Category: leave.CategorySick,
		Policy:   leave.Policy{AccrualMethod: leave.AccrualNone},
	})

	_, err := f.svc.CreateRequest(f.ctx, leave.CreateRequestInput{
		EmployeeID: f.employee.ID, LeaveTypeID: sick.ID, From: day(6, 3), To: day(6, 4),
	})
	var ve *generic.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "attachment_id", ve.Field)
}

func TestCreateRequest_IntersectsBlockedPeriod_Rejected(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	f.calendar.blocked = []generic.Period{generic.NewPeriod(day(6, 16), day(6, 20))}

	_, err := f.create(day(6, 12), day(6, 17))
	assert.ErrorIs(t, err, generic.ErrEligibility)
	requireDecimal(t, "0", f.reload(f.ent).Pending, "pending")
}

func TestCreateRequest_ToBeforeFrom_ValidationError(t *testing.T) {
	f := newFixture(t)

	_, err := f.create(day(6, 13), day(6, 11))
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestCreateRequest_StoreFailsAfterReservation_ReservationReleased(t *testing.T) {
	// GIVEN: A store whose request insert fails
	// WHEN: Creating a request
	// THEN: The error surfaces and pending is back to 0

	fs := &failingStore{}
	f := newFixture(t, withStore(func(m *memory.Store) leave.Store {
		fs.Store = m
		return fs
	}))
	f.seed(f.ent, "10", "0", "0", "0")
	fs.failCreateRequest = true

	_, err := f.create(day(6, 11), day(6, 13))
	assert.ErrorIs(t, err, errStoreDown)

	stored := f.reload(f.ent)
	requireDecimal(t, "0", stored.Pending, "pending")
	requireDecimal(t, "10", stored.Remaining, "remaining")
}

// =============================================================================
// UPDATE / CANCEL
// =============================================================================

func TestCancelRequest_AfterCreate_PendingRestored(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "2")
	before := f.reload(f.ent)

	req, err := f.create(day(6, 11), day(6, 11))
	require.NoError(t, err)
	cancelled, err := f.svc.CancelRequest(f.ctx, req.ID, f.employee.ID)
	require.NoError(t, err)

	assert.Equal(t, leave.StatusCancelled, cancelled.Status)
	after := f.reload(f.ent)
	assert.True(t, before.Pending.Equal(after.Pending))
	assert.True(t, before.Remaining.Equal(after.Remaining))
}

func TestCancelRequest_ReservationLandsMidRelease_BothKept(t *testing.T) {
	// GIVEN: A reserves 3 days; B reserves 2 while A's release sits between
	//        its increment and its derived-field write
	// WHEN: Cancelling A
	// THEN: pending holds exactly B's 2 days

	var store *interleavingStore
	f := newFixture(t, withInterleaving(&store))
	f.seed(f.ent, "10", "0", "0", "0")
	a, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)

	store.between = func() {
		_, err := f.create(day(6, 23), day(6, 24))
		require.NoError(t, err)
	}
	_, err = f.svc.CancelRequest(f.ctx, a.ID, f.employee.ID)
	require.NoError(t, err)

	requireDecimal(t, "2", f.reload(f.ent).Pending, "pending")
	got, err := f.svc.GetEntitlement(f.ctx, f.ent.ID)
	require.NoError(t, err)
	requireDecimal(t, "8", got.Remaining, "remaining")
}

func TestCancelRequest_NotPending_StateError(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 11))
	require.NoError(t, err)
	_, err = f.svc.Approve(f.ctx, req.ID, f.manager.ID, "")
	require.NoError(t, err)

	_, err = f.svc.CancelRequest(f.ctx, req.ID, f.employee.ID)
	assert.ErrorIs(t, err, generic.ErrInvalidState)
}

func TestUpdateRequest_ShrinkRange_PendingReducedByDelta(t *testing.T) {
	// GIVEN: A pending 3-day request
	// WHEN: Shortening it to Wed-Thu
	// THEN: pending drops from 3 to 2

	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)

	to := day(6, 12)
	updated, err := f.svc.UpdateRequest(f.ctx, req.ID, leave.UpdateRequestInput{To: &to, Actor: f.employee.ID})
	require.NoError(t, err)

	requireDecimal(t, "2", updated.DurationDays, "durationDays")
	requireDecimal(t, "2", f.reload(f.ent).Pending, "pending")
}

func TestUpdateRequest_GrowWithinOwnReservation_Allowed(t *testing.T) {
	// GIVEN: remaining 6 and a pending 3-day request (remaining 3, available 0)
	// WHEN: Extending to 4 days
	// THEN: The request's own 3 days are handed back first, so 4 fits

	f := newFixture(t)
	f.seed(f.ent, "6", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)

	to := day(6, 16)
	_, err = f.svc.UpdateRequest(f.ctx, req.ID, leave.UpdateRequestInput{To: &to})
	require.NoError(t, err)
	requireDecimal(t, "4", f.reload(f.ent).Pending, "pending")
}

func TestUpdateRequest_OverlapOnlyWithSelf_Allowed(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)

	reason := "family trip"
	updated, err := f.svc.UpdateRequest(f.ctx, req.ID, leave.UpdateRequestInput{Reason: &reason})
	require.NoError(t, err)
	assert.Equal(t, "family trip", updated.Reason)
	requireDecimal(t, "3", f.reload(f.ent).Pending, "pending")
}

// =============================================================================
// APPROVE / REJECT
// =============================================================================

func TestApprove_ByManager_StepResolvedPendingKept(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)

	approved, err := f.svc.Approve(f.ctx, req.ID, f.manager.ID, "enjoy")
	require.NoError(t, err)

	assert.Equal(t, leave.StatusApproved, approved.Status)
	require.Len(t, approved.ApprovalFlow, 1)
	assert.Equal(t, leave.StepApproved, approved.ApprovalFlow[0].Status)
	assert.Equal(t, f.manager.ID, approved.ApprovalFlow[0].DecidedBy)
	require.NotNil(t, approved.ApprovalFlow[0].DecidedAt)
	assert.False(t, approved.IsFinalized())
	requireDecimal(t, "3", f.reload(f.ent).Pending, "pending")
	assert.Contains(t, f.notifier.types(), leave.EventRequestStatusChanged)
}

func TestReject_ByManager_PendingReleased(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)

	rejected, err := f.svc.Reject(f.ctx, req.ID, f.manager.ID, "team offsite")
	require.NoError(t, err)

	assert.Equal(t, leave.StatusRejected, rejected.Status)
	assert.Equal(t, leave.StepRejected, rejected.ApprovalFlow[0].Status)
	stored := f.reload(f.ent)
	requireDecimal(t, "0", stored.Pending, "pending")
	requireDecimal(t, "10", stored.Remaining, "remaining")
}

func TestApprove_AlreadyApproved_StateError(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)
	_, err = f.svc.Approve(f.ctx, req.ID, f.manager.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Approve(f.ctx, req.ID, f.manager.ID, "")
	var se *generic.StateError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "APPROVED", se.Current)
}

func TestApprove_UnrelatedActor_Forbidden(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)

	_, err = f.svc.Approve(f.ctx, req.ID, generic.NewID(), "")
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

func TestApprove_ActiveDelegate_Allowed(t *testing.T) {
	// GIVEN: The manager delegated approvals to a peer for June
	// WHEN: The peer approves on 2 June
	// THEN: The approval is accepted and recorded under the peer

	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	peer := f.addEmployee("Peer Manager", "", func(e *leave.Employee) {})
	_, err := f.svc.CreateDelegation(f.ctx, leave.CreateDelegationInput{
		ManagerID: f.manager.ID, DelegateID: peer.ID, From: day(6, 1), To: day(6, 30),
	})
	require.NoError(t, err)

	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)
	approved, err := f.svc.Approve(f.ctx, req.ID, peer.ID, "")
	require.NoError(t, err)
	assert.Equal(t, peer.ID, approved.ApprovalFlow[0].DecidedBy)
}

func TestApprove_ExpiredDelegate_Forbidden(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	peer := f.addEmployee("Peer Manager", "", func(e *leave.Employee) {})
	_, err := f.svc.CreateDelegation(f.ctx, leave.CreateDelegationInput{
		ManagerID: f.manager.ID, DelegateID: peer.ID, From: day(5, 1), To: day(5, 31),
	})
	require.NoError(t, err)

	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)
	_, err = f.svc.Approve(f.ctx, req.ID, peer.ID, "")
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

// =============================================================================
// FINALIZE
// =============================================================================

func TestFinalize_AfterApproval_PendingMovesToTakenRemainingUnchanged(t *testing.T) {
	// GIVEN: An approved 3-day request (pending 3, remaining 7)
	// WHEN: HR finalizes it
	// THEN: pending 0, taken 3, remaining still 7, HR step appended

	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)
	_, err = f.svc.Approve(f.ctx, req.ID, f.manager.ID, "")
	require.NoError(t, err)
	before := f.reload(f.ent)

	finalized, err := f.svc.Finalize(f.ctx, req.ID, "hr-1")
	require.NoError(t, err)

	assert.True(t, finalized.IsFinalized())
	assert.Equal(t, leave.StatusApproved, finalized.Status)
	last := finalized.ApprovalFlow[len(finalized.ApprovalFlow)-1]
	assert.Equal(t, leave.RoleHR, last.Role)
	assert.Equal(t, "hr-1", last.DecidedBy)

	after := f.reload(f.ent)
	requireDecimal(t, "0", after.Pending, "pending")
	requireDecimal(t, "3", after.Taken, "taken")
	assert.True(t, before.Remaining.Equal(after.Remaining))
	requireInvariant(t, after, generic.RoundDown)
	assert.Contains(t, f.notifier.types(), leave.EventRequestFinalized)
}

func TestFinalize_Twice_StateError(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)
	_, err = f.svc.Approve(f.ctx, req.ID, f.manager.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Finalize(f.ctx, req.ID, "hr-1")
	require.NoError(t, err)

	_, err = f.svc.Finalize(f.ctx, req.ID, "hr-1")
	assert.ErrorIs(t, err, generic.ErrInvalidState)
	requireDecimal(t, "3", f.reload(f.ent).Taken, "taken")
}

func TestFinalize_Pending_StateError(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)

	_, err = f.svc.Finalize(f.ctx, req.ID, "hr-1")
	assert.ErrorIs(t, err, generic.ErrInvalidState)
}

func TestFinalize_AttachmentTooLarge_ValidationError(t *testing.T) {
	f := newFixture(t)
	f.svc.Attachments = staticAttachments{
		"att-big": {ID: "att-big", Size: leave.DefaultMaxAttachmentBytes + 1, MimeType: "application/pdf"},
	}
	f.seed(f.ent, "10", "0", "0", "0")

	req, err := f.svc.CreateRequest(f.ctx, leave.CreateRequestInput{
		EmployeeID: f.employee.ID, LeaveTypeID: f.annual.ID, From: day(6, 11), To: day(6, 11), AttachmentID: "att-big",
	})
	require.NoError(t, err)
	_, err = f.svc.Approve(f.ctx, req.ID, f.manager.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Finalize(f.ctx, req.ID, "hr-1")
	assert.ErrorIs(t, err, generic.ErrValidation)
	requireDecimal(t, "1", f.reload(f.ent).Pending, "pending")
}

func TestFinalize_ConfiguredAttachmentDefaults_Applied(t *testing.T) {
	// GIVEN: Server-wide defaults of 1 KiB and PNG only
	f := newFixture(t, withOption(leave.WithAttachmentDefaults(1024, []string{"image/png"})))
	f.svc.Attachments = staticAttachments{
		"scan": {ID: "scan", Size: 512, MimeType: "application/pdf"},
	}
	f.seed(f.ent, "10", "0", "0", "0")

	req, err := f.svc.CreateRequest(f.ctx, leave.CreateRequestInput{
		EmployeeID: f.employee.ID, LeaveTypeID: f.annual.ID, From: day(6, 11), To: day(6, 11), AttachmentID: "scan",
	})
	require.NoError(t, err)
	_, err = f.svc.Approve(f.ctx, req.ID, f.manager.ID, "")
	require.NoError(t, err)

	// WHEN: Finalizing with a PDF
	_, err = f.svc.Finalize(f.ctx, req.ID, "hr-1")

	// THEN: The configured type list rejects it
	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "attachment_id", verr.Field)
}

func TestFinalize_SickLeaveOverYearlyLimit_EligibilityError(t *testing.T) {
	// GIVEN: Sick leave capped at 3 days per year, 2 days already finalized
	// WHEN: Finalizing another 2 days
	// THEN: The cumulative limit rejects it

	f := newFixture(t)
	f.svc.Attachments = staticAttachments{
		"note": {ID: "note", Size: 1024, MimeType: "application/pdf"},
	}
	sick := f.addLeaveType(&leave.LeaveType{
		Name:     "Sick Leave",
		Category: leave.CategorySick,
		Limits:   leave.CumulativeLimits{MaxDaysPerYear: dec("3"), MaxDaysPerWindow: dec("360"), WindowYears: 3},
		Policy:   leave.Policy{AccrualMethod: leave.AccrualNone},
	})

	finalizeSick := func(from, to time.Time) error {
		req, err := f.svc.CreateRequest(f.ctx, leave.CreateRequestInput{
			EmployeeID: f.employee.ID, LeaveTypeID: sick.ID, From: from, To: to, AttachmentID: "note",
		})
		require.NoError(t, err)
		_, err = f.svc.Approve(f.ctx, req.ID, f.manager.ID, "")
		require.NoError(t, err)
		_, err = f.svc.Finalize(f.ctx, req.ID, "hr-1")
		return err
	}

	require.NoError(t, finalizeSick(day(6, 3), day(6, 4)))
	err := finalizeSick(day(6, 10), day(6, 11))
	assert.ErrorIs(t, err, generic.ErrEligibility)
}

// addFinalized stores an already finalized request of lt for the fixture employee.
func (f *fixture) addFinalized(lt *leave.LeaveType, from, to time.Time, days string) {
	f.t.Helper()
	decided := from
	require.NoError(f.t, f.store.CreateRequest(f.ctx, &leave.LeaveRequest{
		ID:           generic.NewID(),
		EmployeeID:   generic.EntityID(f.employee.ID),
		LeaveTypeID:  generic.PolicyID(lt.ID),
		From:         from,
		To:           to,
		DurationDays: dec(days),
		Status:       leave.StatusApproved,
		ApprovalFlow: []leave.ApprovalStep{
			{Role: leave.RoleManager, Status: leave.StepApproved, DecidedBy: f.manager.ID, DecidedAt: &decided},
			{Role: leave.RoleHR, Status: leave.StepApproved, DecidedBy: "hr-1", DecidedAt: &decided},
		},
		CreatedAt: from,
		UpdatedAt: from,
	}))
}

func TestFinalize_SickLeaveRollingWindow(t *testing.T) {
	// GIVEN: Sick leave capped at 10 days a year and 15 days in 3 years,
	//        and a 2-day request for 10-11 June 2025, whose window is
	//        12 June 2022 to 11 June 2025
	// WHEN: Finalizing it against earlier finalized sick leave
	// THEN: Only leave inside the window counts towards the 15 days

	cases := []struct {
		name    string
		edge    generic.Period
		wantErr bool
	}{
		{name: "day before window start is ignored", edge: generic.NewPeriod(generic.Date(2022, 6, 2), generic.Date(2022, 6, 11))},
		{name: "window start day counts", edge: generic.NewPeriod(generic.Date(2022, 6, 12), generic.Date(2022, 6, 21)), wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.svc.Attachments = staticAttachments{
				"note": {ID: "note", Size: 1024, MimeType: "application/pdf"},
			}
			sick := f.addLeaveType(&leave.LeaveType{
				Name:     "Sick Leave",
				Category: leave.CategorySick,
				Limits:   leave.CumulativeLimits{MaxDaysPerYear: dec("10"), MaxDaysPerWindow: dec("15"), WindowYears: 3},
				Policy:   leave.Policy{AccrualMethod: leave.AccrualNone},
			})
			// 8 + 6 + 2 = 16 with the edge request, 8 without it; every year stays under 10.
			f.addFinalized(sick, tc.edge.Start, tc.edge.End, "8")
			f.addFinalized(sick, generic.Date(2024, 3, 4), generic.Date(2024, 3, 11), "6")

			req, err := f.svc.CreateRequest(f.ctx, leave.CreateRequestInput{
				EmployeeID: f.employee.ID, LeaveTypeID: sick.ID, From: day(6, 10), To: day(6, 11), AttachmentID: "note",
			})
			require.NoError(t, err)
			_, err = f.svc.Approve(f.ctx, req.ID, f.manager.ID, "")
			require.NoError(t, err)

			_, err = f.svc.Finalize(f.ctx, req.ID, "hr-1")

			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			var elig *generic.EligibilityError
			require.ErrorAs(t, err, &elig)
			require.Len(t, elig.Violations, 1)
			assert.Contains(t, elig.Violations[0], "16 days")
			assert.Contains(t, elig.Violations[0], "limit is 15")
		})
	}
}

// =============================================================================
// HR OVERRIDE
// =============================================================================

func TestHROverride_EmptyReason_ValidationError(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)

	_, err = f.svc.HROverride(f.ctx, leave.HROverrideInput{RequestID: req.ID, Actor: "hr-1", Approve: true, Reason: "  "})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestHROverride_ApproveRejected_TakenWithoutPending(t *testing.T) {
	// GIVEN: A rejected 3-day request (pending already released)
	// WHEN: HR overrides to approved
	// THEN: taken 3, pending 0, request approved and finalized

	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)
	_, err = f.svc.Reject(f.ctx, req.ID, f.manager.ID, "")
	require.NoError(t, err)

	overridden, err := f.svc.HROverride(f.ctx, leave.HROverrideInput{
		RequestID: req.ID, Actor: "hr-1", Approve: true, Reason: "medical appointment",
	})
	require.NoError(t, err)

	assert.Equal(t, leave.StatusApproved, overridden.Status)
	assert.True(t, overridden.IsFinalized())
	stored := f.reload(f.ent)
	requireDecimal(t, "3", stored.Taken, "taken")
	requireDecimal(t, "0", stored.Pending, "pending")
	requireDecimal(t, "7", stored.Remaining, "remaining")
}

func TestHROverride_ApproveRejected_DaysRebooked_OverlapError(t *testing.T) {
	// GIVEN: A is rejected and B is then filed for the same days
	// WHEN: HR overrides A to approved
	// THEN: OverlapError; A stays rejected and only B's reservation exists

	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	a, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)
	_, err = f.svc.Reject(f.ctx, a.ID, f.manager.ID, "")
	require.NoError(t, err)
	b, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)

	_, err = f.svc.HROverride(f.ctx, leave.HROverrideInput{
		RequestID: a.ID, Actor: "hr-1", Approve: true, Reason: "manager unavailable",
	})

	var overlap *generic.OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, b.ID, overlap.ExistingRequestID)
	stillRejected, err := f.svc.GetRequest(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, stillRejected.Status)
	stored := f.reload(f.ent)
	requireDecimal(t, "0", stored.Taken, "taken")
	requireDecimal(t, "3", stored.Pending, "pending")
}

func TestHROverride_ApprovePending_ConvertsReservation(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)

	_, err = f.svc.HROverride(f.ctx, leave.HROverrideInput{RequestID: req.ID, Actor: "hr-1", Approve: true, Reason: "urgent"})
	require.NoError(t, err)

	stored := f.reload(f.ent)
	requireDecimal(t, "3", stored.Taken, "taken")
	requireDecimal(t, "0", stored.Pending, "pending")
}

func TestHROverride_RejectApproved_PendingReleased(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)
	_, err = f.svc.Approve(f.ctx, req.ID, f.manager.ID, "")
	require.NoError(t, err)

	rejected, err := f.svc.HROverride(f.ctx, leave.HROverrideInput{RequestID: req.ID, Actor: "hr-1", Reason: "coverage"})
	require.NoError(t, err)

	assert.Equal(t, leave.StatusRejected, rejected.Status)
	requireDecimal(t, "0", f.reload(f.ent).Pending, "pending")
}

func TestHROverride_Cancelled_StateError(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)
	_, err = f.svc.CancelRequest(f.ctx, req.ID, f.employee.ID)
	require.NoError(t, err)

	_, err = f.svc.HROverride(f.ctx, leave.HROverrideInput{RequestID: req.ID, Actor: "hr-1", Approve: true, Reason: "x"})
	assert.ErrorIs(t, err, generic.ErrInvalidState)
}

// =============================================================================
// FLAGS, REMINDERS, NOTIFICATIONS
// =============================================================================

func TestFlagIrregularPattern_SetsFlag(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	req, err := f.create(day(6, 13), day(6, 16))
	require.NoError(t, err)

	flagged, err := f.svc.FlagIrregularPattern(f.ctx, req.ID, "hr-1")
	require.NoError(t, err)
	assert.True(t, flagged.IrregularPatternFlag)

	stored, err := f.svc.GetRequest(f.ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, stored.IrregularPatternFlag)
}

func TestRemindStalePending_OldRequest_ManagerReminded(t *testing.T) {
	f := newFixture(t)
	f.seed(f.ent, "10", "0", "0", "0")
	_, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)

	// Created "now"; a negative threshold makes it stale.
	sent, err := f.svc.RemindStalePending(f.ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, leave.EventRequestReminder, f.notifier.events[len(f.notifier.events)-1].Type)

	sent, err = f.svc.RemindStalePending(f.ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestNotify_NotifierFails_TransitionSucceedsAndWarns(t *testing.T) {
	// GIVEN: A notifier that always errors
	// WHEN: Creating a request
	// THEN: The request exists and a warning is logged

	core, logs := observer.New(zapcore.WarnLevel)
	f := newFixture(t, withLogger(zap.New(core)))
	f.notifier.err = errors.New("smtp down")
	f.seed(f.ent, "10", "0", "0", "0")

	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, req.Status)
	assert.Equal(t, 1, logs.FilterMessage("notification failed").Len())
}

func TestNotify_NotifierPanics_TransitionSucceeds(t *testing.T) {
	f := newFixture(t)
	f.notifier.panics = true
	f.seed(f.ent, "10", "0", "0", "0")

	req, err := f.create(day(6, 11), day(6, 13))
	require.NoError(t, err)
	requireDecimal(t, "3", f.reload(f.ent).Pending, "pending")
	assert.NotEmpty(t, req.ID)
}
