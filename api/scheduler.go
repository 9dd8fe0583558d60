/*
scheduler.go - Daily ledger maintenance

PURPOSE:
  Periodically runs the two jobs nobody triggers by hand:
  - ResetForNewYear with the configured criterion. Reset is idempotent
    within a cycle (nextResetDate), so running it daily only touches the
    entitlements whose anniversary has passed.
  - The stale-pending reminder scan.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs once immediately on Start
  - Each job is recorded as a BatchRun through Jobs

CONFIGURATION:
  - Interval:    How often to run (default: 24 hours)
  - Criterion:   Reset anchor (default: HIRE_DATE)
  - RemindAfter: Age of a PENDING request before a reminder (default: 72h)
  - Enabled:     Whether the scheduler starts at all

USAGE:
  scheduler := NewScheduler(jobs, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - jobs.go: Run recording
  - admin.go: The same jobs triggered over HTTP
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

type Scheduler struct {
	Jobs        *Jobs
	Interval    time.Duration
	Criterion   leave.ResetCriterion
	RemindAfter time.Duration
	Enabled     bool
	Logger      *zap.Logger

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewScheduler(jobs *Jobs, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Jobs:        jobs,
		Interval:    24 * time.Hour,
		Criterion:   leave.ResetHireDate,
		RemindAfter: 72 * time.Hour,
		Enabled:     true,
		Logger:      logger.Named("scheduler"),
	}
}

// Start begins the scheduler. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)

	go s.run(ctx)

	s.Logger.Info("scheduler started",
		zap.Duration("interval", s.Interval),
		zap.String("criterion", string(s.Criterion)),
	)
}

// Stop halts the ticker, cancels a run in flight and waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.cancel()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.RunOnce(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.RunOnce(ctx)
		case <-s.stop:
			return
		}
	}
}

// RunOnce runs the reset then the reminder scan. A failing job is logged
// and does not prevent the other.
func (s *Scheduler) RunOnce(ctx context.Context) {
	result, err := s.Jobs.Reset(ctx, s.Criterion, "scheduler")
	if err != nil {
		s.Logger.Error("reset run failed", zap.Error(err))
	} else {
		s.Logger.Info("reset run completed",
			zap.String("run_id", result.RunID),
			zap.Int("succeeded", result.Succeeded()),
			zap.Int("skipped", result.Skipped()),
			zap.Int("failed", result.Failed()),
		)
	}

	sent, err := s.Jobs.Remind(ctx, s.RemindAfter)
	if err != nil {
		s.Logger.Error("reminder run failed", zap.Error(err))
		return
	}
	if sent > 0 {
		s.Logger.Info("reminders sent", zap.Int("count", sent))
	}
}
