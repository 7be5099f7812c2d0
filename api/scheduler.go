/*
scheduler.go - Periodic recomputation of pending runs

PURPOSE:
  Keeps pending runs current while attendance and salary values are still
  being entered. Every tick, each pending run is recomputed in place;
  recomputation is idempotent, so a run that did not change produces the
  same entry set.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Only pending runs are touched; approved and created runs are locked
  - A run approved between listing and computing reports
    ErrPayrollLocked, which is skipped silently
  - One failing run never stops the others

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRecomputeScheduler(store, runner, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ComputeRun endpoint (manual computation)
  - payroll/runner.go: Compute
*/
package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/payroll-engine/payroll"
)

// RecomputeScheduler recomputes pending payroll runs on an interval.
type RecomputeScheduler struct {
	Runs          payroll.RunStore
	Runner        *payroll.Runner
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// CheckResult summarizes one pass over the pending runs.
type CheckResult struct {
	Computed int
	Locked   int
	Failed   int
}

// NewRecomputeScheduler creates a new scheduler.
func NewRecomputeScheduler(runs payroll.RunStore, runner *payroll.Runner, logger *slog.Logger) *RecomputeScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecomputeScheduler{
		Runs:          runs,
		Runner:        runner,
		Logger:        logger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (rs *RecomputeScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan bool)
	rs.wg.Add(1)

	go rs.run()

	rs.Logger.Info("scheduler started", "interval", rs.CheckInterval.String())
}

// Stop stops the scheduler and waits for an in-flight check to finish.
func (rs *RecomputeScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Logger.Info("scheduler stopped")
	}
}

func (rs *RecomputeScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndProcess(context.Background())

	for {
		select {
		case <-rs.ticker.C:
			rs.checkAndProcess(context.Background())
		case <-rs.stop:
			return
		}
	}
}

func (rs *RecomputeScheduler) checkAndProcess(ctx context.Context) CheckResult {
	var res CheckResult

	runs, err := rs.Runs.ListRuns(ctx, "")
	if err != nil {
		rs.Logger.Error("scheduler could not list runs", "error", err)
		return res
	}

	for _, run := range runs {
		if run.Status != payroll.RunPending {
			continue
		}
		out, err := rs.Runner.Compute(ctx, run.ID)
		switch {
		case errors.Is(err, payroll.ErrPayrollLocked):
			res.Locked++
		case err != nil:
			res.Failed++
			rs.Logger.Error("scheduled recompute failed",
				"run_id", run.ID, "error", err, "retryable", payroll.IsRetryable(err))
		default:
			res.Computed++
			rs.Logger.Debug("scheduled recompute done",
				"run_id", run.ID, "faults", len(out.Faults), "total_net", out.Run.TotalNetAmount.String())
		}
	}

	if res.Computed > 0 || res.Failed > 0 {
		rs.Logger.Info("scheduler pass completed",
			"computed", res.Computed, "locked", res.Locked, "failed", res.Failed)
	}
	return res
}

// RunNow triggers an immediate check (for testing/admin).
func (rs *RecomputeScheduler) RunNow(ctx context.Context) CheckResult {
	return rs.checkAndProcess(ctx)
}

// GetNextRunTime returns when the next scheduled check will occur.
func (rs *RecomputeScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(rs.CheckInterval)
}
