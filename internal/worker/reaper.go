package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
)

const staleRunReason = "worker stopped sending heartbeats"

// StaleRunStore reclaims runs whose worker stopped heartbeating
type StaleRunStore interface {
	ReclaimStaleRuns(ctx context.Context, staleBefore time.Time, reason string) ([]domain.Run, error)
}

// RunDispatcher announces a run again, satisfied by *dispatch.Queue
type RunDispatcher interface {
	Dispatch(ctx context.Context, run *domain.Run) error
}

// ReaperConfig holds reaper configuration
type ReaperConfig struct {
	Logger     *slog.Logger
	Store      StaleRunStore
	Dispatcher RunDispatcher
	Interval   time.Duration
	StaleAfter time.Duration
}

// Reaper periodically puts RUNNING runs with an expired heartbeat back in
// the queue. The broker drops the original delivery once a crashed worker's
// claim fails on redelivery, so without it those runs stay RUNNING.
type Reaper struct {
	logger     *slog.Logger
	store      StaleRunStore
	dispatcher RunDispatcher
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

// NewReaper creates a new Reaper instance
func NewReaper(cfg *ReaperConfig) *Reaper {
	r := &Reaper{
		logger:     cfg.Logger,
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		now:        time.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.interval <= 0 {
		r.interval = defaultHeartbeatInterval
	}
	if r.staleAfter <= 0 {
		r.staleAfter = 4 * r.interval
	}
	return r
}

// Run reaps once per interval until ctx is canceled
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Reap(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Failed to reclaim stale runs", slog.Any("error", err))
			}
		}
	}
}

// Reap reclaims stale runs and re-announces those that went back to
// PENDING. It returns how many runs were re-announced.
func (r *Reaper) Reap(ctx context.Context) (int, error) {
	runs, err := r.store.ReclaimStaleRuns(ctx, r.now().Add(-r.staleAfter), staleRunReason)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for i := range runs {
		run := &runs[i]
		if run.Status != domain.RunStatusPending {
			r.logger.Warn("Stale run exceeded max retries",
				slog.String("run_id", run.RunID),
				slog.Int("retry_count", run.RetryCount),
			)
			continue
		}

		// A failed dispatch leaves the run PENDING without a message
		if err := r.dispatcher.Dispatch(ctx, run); err != nil {
			r.logger.Error("Failed to re-announce stale run",
				slog.String("run_id", run.RunID),
				slog.Any("error", err),
			)
			continue
		}
		dispatched++
	}

	if len(runs) > 0 {
		r.logger.Info("Stale runs reclaimed",
			slog.Int("reclaimed", len(runs)),
			slog.Int("dispatched", dispatched),
		)
	}
	return dispatched, nil
}
