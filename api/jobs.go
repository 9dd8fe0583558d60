package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Batch run kinds as recorded in the run store.
const (
	KindAccrual      = "accrual"
	KindCarryForward = "carry_forward"
	KindReset        = "reset"
	KindReminder     = "reminder"
)

// Jobs runs the ledger's batch operations and records each run, first as
// running and then as completed or failed with its counts. Both the admin
// endpoints and the Scheduler go through it.
type Jobs struct {
	Service *leave.Service
	Runs    generic.RunStore // optional
	Logger  *zap.Logger

	now func() time.Time
}

func NewJobs(svc *leave.Service, runs generic.RunStore, logger *zap.Logger) *Jobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{
		Service: svc,
		Runs:    runs,
		Logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (j *Jobs) AccrueAll(ctx context.Context, run leave.AccrualRun) (*generic.BatchResult, error) {
	rec := j.start(ctx, KindAccrual, run.LeaveTypeID)
	result, err := j.Service.AccrueAll(ctx, run)
	j.finish(ctx, &rec, result, err)
	return result, err
}

func (j *Jobs) CarryForward(ctx context.Context, run leave.CarryForwardRun) (*generic.BatchResult, error) {
	rec := j.start(ctx, KindCarryForward, run.LeaveTypeID)
	result, err := j.Service.RunCarryForward(ctx, run)
	j.finish(ctx, &rec, result, err)
	return result, err
}

func (j *Jobs) Reset(ctx context.Context, criterion leave.ResetCriterion, actor string) (*generic.BatchResult, error) {
	rec := j.start(ctx, KindReset, "")
	result, err := j.Service.ResetForNewYear(ctx, criterion, actor)
	j.finish(ctx, &rec, result, err)
	return result, err
}

// Remind sends reminders for requests pending longer than olderThan. The
// run records the number sent as its success count.
func (j *Jobs) Remind(ctx context.Context, olderThan time.Duration) (int, error) {
	rec := j.start(ctx, KindReminder, "")
	sent, err := j.Service.RemindStalePending(ctx, olderThan)
	rec.Succeeded = sent
	j.finish(ctx, &rec, nil, err)
	return sent, err
}

// ListRuns returns recorded runs, newest first.
func (j *Jobs) ListRuns(ctx context.Context, kind string, limit int) ([]generic.BatchRun, error) {
	if j.Runs == nil {
		return nil, nil
	}
	return j.Runs.ListRuns(ctx, kind, limit)
}

func (j *Jobs) start(ctx context.Context, kind, leaveTypeID string) generic.BatchRun {
	run := generic.BatchRun{
		ID:          uuid.NewString(),
		Kind:        kind,
		LeaveTypeID: leaveTypeID,
		Status:      generic.RunRunning,
		StartedAt:   j.now(),
	}
	j.save(ctx, run)
	return run
}

// finish completes run from result when there is one, else from err alone.
func (j *Jobs) finish(ctx context.Context, run *generic.BatchRun, result *generic.BatchResult, err error) {
	at := j.now()
	if result != nil {
		run.Complete(result, at, err)
	} else {
		run.CompletedAt = &at
		run.Status = generic.RunCompleted
		if err != nil {
			run.Status = generic.RunFailed
			run.Error = err.Error()
		}
	}
	j.save(ctx, *run)

	j.Logger.Info("batch run finished",
		zap.String("run_id", run.ID),
		zap.String("kind", run.Kind),
		zap.String("status", string(run.Status)),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("skipped", run.Skipped),
		zap.Int("failed", run.Failed),
	)
}

// save never fails the job: the ledger work is already committed.
func (j *Jobs) save(ctx context.Context, run generic.BatchRun) {
	if j.Runs == nil {
		return
	}
	if err := j.Runs.SaveRun(ctx, run); err != nil {
		j.Logger.Warn("failed to record batch run",
			zap.String("run_id", run.ID),
			zap.String("kind", run.Kind),
			zap.Error(err),
		)
	}
}
