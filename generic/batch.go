package generic

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// BATCH OUTCOMES - Per-entity isolation for accrual, carry-forward and reset
// =============================================================================

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome is one entity's result inside a batch run.
type Outcome struct {
	EntityID EntityID
	TargetID string // entitlement id
	Status   OutcomeStatus
	Reason   string
	Previous decimal.Decimal // remaining before
	Current  decimal.Decimal // remaining after
}

// BatchResult aggregates the outcomes of one run. One entity's failure
// never aborts the run; it is recorded here and the loop continues.
type BatchResult struct {
	RunID       string
	Kind        string
	StartedAt   time.Time
	CompletedAt time.Time
	Outcomes    []Outcome
}

func NewBatchResult(kind string, now time.Time) *BatchResult {
	return &BatchResult{RunID: uuid.NewString(), Kind: kind, StartedAt: now}
}

func (b *BatchResult) Add(o Outcome) { b.Outcomes = append(b.Outcomes, o) }

func (b *BatchResult) Succeed(entityID EntityID, targetID string, previous, current decimal.Decimal) {
	b.Add(Outcome{EntityID: entityID, TargetID: targetID, Status: OutcomeSuccess, Previous: previous, Current: current})
}

func (b *BatchResult) Skip(entityID EntityID, targetID, reason string) {
	b.Add(Outcome{EntityID: entityID, TargetID: targetID, Status: OutcomeSkipped, Reason: reason})
}

func (b *BatchResult) Fail(entityID EntityID, targetID string, err error) {
	b.Add(Outcome{EntityID: entityID, TargetID: targetID, Status: OutcomeFailed, Reason: err.Error()})
}

func (b *BatchResult) count(s OutcomeStatus) int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

func (b *BatchResult) Succeeded() int { return b.count(OutcomeSuccess) }
func (b *BatchResult) Skipped() int   { return b.count(OutcomeSkipped) }
func (b *BatchResult) Failed() int    { return b.count(OutcomeFailed) }

// Err is nil unless the success set is empty.
func (b *BatchResult) Err() error {
	if b.Succeeded() > 0 {
		return nil
	}
	return &BatchError{Kind: b.Kind, Skipped: b.Skipped(), Failed: b.Failed()}
}

// =============================================================================
// BATCH RUN RECORDS - Persisted by the scheduler and the admin endpoints
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

type BatchRun struct {
	ID          string
	Kind        string
	LeaveTypeID string
	Status      RunStatus
	Succeeded   int
	Skipped     int
	Failed      int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Complete copies the counts of r into the run record.
func (run *BatchRun) Complete(r *BatchResult, at time.Time, err error) {
	run.Succeeded, run.Skipped, run.Failed = r.Succeeded(), r.Skipped(), r.Failed()
	run.CompletedAt = &at
	run.Status = RunCompleted
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
	}
}

// RunStore persists batch run records.
type RunStore interface {
	SaveRun(ctx context.Context, run BatchRun) error
	ListRuns(ctx context.Context, kind string, limit int) ([]BatchRun, error)
}
