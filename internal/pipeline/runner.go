// Package pipeline schedules the enrichment stages: batch jobs that sweep the
// fill store on tickers, and queue consumers that process fee conversion and
// token resolution messages.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/fillscope/internal/domain"
)

// Job is one batch enrichment stage. Run processes at most one batch and
// returns; the runner handles scheduling and retries.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// ExhaustionFunc is called when a job has burned through its retry budget
// within a single tick. The runner goes idle until the next tick afterwards;
// the hook exists for alerting, not control flow.
type ExhaustionFunc func(ctx context.Context, jobName string, err error)

// JobRunner runs a Job on a fixed interval. Each tick is fenced by a
// distributed lock so the job executes on at most one replica. A failed
// invocation is retried within the tick, spaced by retryDelay, up to
// maxRetries attempts; when the budget is exhausted the runner reports and
// gives up until the next tick.
type JobRunner struct {
	job        Job
	interval   time.Duration
	maxRetries int
	retryDelay time.Duration
	locks      domain.LockManager
	onExhaust  ExhaustionFunc
	logger     *slog.Logger
}

// NewJobRunner creates a runner for the given job. onExhaust may be nil.
func NewJobRunner(job Job, interval time.Duration, maxRetries int, retryDelay time.Duration, locks domain.LockManager, onExhaust ExhaustionFunc, logger *slog.Logger) *JobRunner {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &JobRunner{
		job:        job,
		interval:   interval,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		locks:      locks,
		onExhaust:  onExhaust,
		logger:     logger.With(slog.String("job", job.Name())),
	}
}

// Run ticks until ctx is cancelled. The first tick fires immediately.
func (r *JobRunner) Run(ctx context.Context) error {
	r.logger.Info("job runner starting", slog.Duration("interval", r.interval))

	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopped")
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick acquires the job lock and runs the job, retrying transient failures
// until the attempt budget is spent.
func (r *JobRunner) tick(ctx context.Context) {
	unlock, err := r.locks.Acquire(ctx, "job:"+r.job.Name(), r.interval)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			r.logger.Debug("tick skipped, lock held elsewhere")
			return
		}
		r.logger.Error("lock acquisition failed", slog.String("error", err.Error()))
		return
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		lastErr = r.job.Run(ctx)
		if lastErr == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("job attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", r.maxRetries),
			slog.String("error", lastErr.Error()),
		)
		if attempt < r.maxRetries && !r.sleep(ctx, r.retryDelay) {
			return
		}
	}

	r.logger.Error("job retries exhausted, idling until next tick",
		slog.Int("attempts", r.maxRetries),
		slog.String("error", lastErr.Error()),
	)
	if r.onExhaust != nil {
		r.onExhaust(ctx, r.job.Name(), lastErr)
	}
}

// sleep waits for d, returning false if ctx was cancelled first.
func (r *JobRunner) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
