package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
)

func TestScheduler_RunOnce_RecordsResetAndReminder(t *testing.T) {
	// GIVEN: One entitlement whose first reset is a year away
	f := newAPIFixture(t)
	s := NewScheduler(NewJobs(f.svc, f.store, nil), nil)

	// WHEN: Running one maintenance pass
	s.RunOnce(context.Background())

	// THEN: Both jobs left a completed run record
	resets, err := f.store.ListRuns(f.ctx, KindReset, 0)
	require.NoError(t, err)
	require.Len(t, resets, 1)
	assert.Equal(t, "completed", string(resets[0].Status))
	assert.Equal(t, 0, resets[0].Succeeded)

	reminders, err := f.store.ListRuns(f.ctx, KindReminder, 0)
	require.NoError(t, err)
	assert.Len(t, reminders, 1)
}

func TestScheduler_BadCriterion_ResetRunFailed(t *testing.T) {
	f := newAPIFixture(t)
	s := NewScheduler(NewJobs(f.svc, f.store, nil), nil)
	s.Criterion = leave.ResetCriterion("PAYDAY")

	s.RunOnce(context.Background())

	resets, err := f.store.ListRuns(f.ctx, KindReset, 0)
	require.NoError(t, err)
	require.Len(t, resets, 1)
	assert.Equal(t, "failed", string(resets[0].Status))
	assert.NotEmpty(t, resets[0].Error)

	// The reminder scan still ran.
	reminders, err := f.store.ListRuns(f.ctx, KindReminder, 0)
	require.NoError(t, err)
	assert.Len(t, reminders, 1)
}

func TestScheduler_StartStop_RunsImmediately(t *testing.T) {
	f := newAPIFixture(t)
	s := NewScheduler(NewJobs(f.svc, f.store, nil), nil)
	s.Interval = time.Hour

	s.Start()
	s.Start() // no-op
	require.Eventually(t, func() bool {
		runs, _ := f.store.ListRuns(f.ctx, KindReminder, 0)
		return len(runs) == 1 && runs[0].CompletedAt != nil
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()
	s.Stop() // no-op

	runs, err := f.store.ListRuns(f.ctx, KindReset, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestScheduler_Disabled_DoesNotStart(t *testing.T) {
	f := newAPIFixture(t)
	s := NewScheduler(NewJobs(f.svc, f.store, nil), nil)
	s.Enabled = false

	s.Start()
	s.Stop()

	runs, err := f.store.ListRuns(f.ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
