package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
	"github.com/cuongbtq/tracker-enrich/internal/worker"
)

const defaultRetryDelay = 5 * time.Second

// Local runs deferred coordinate phases on goroutines of the current
// process. Runs are detached from the dispatching request and end with the
// base context given to NewLocal.
type Local struct {
	base       context.Context
	processor  worker.RunProcessor
	logger     *slog.Logger
	retryDelay time.Duration
	wg         sync.WaitGroup
}

// LocalOption configures a Local dispatcher
type LocalOption func(*Local)

// WithRetryDelay sets the pause before a released run is processed again
func WithRetryDelay(d time.Duration) LocalOption {
	return func(l *Local) {
		l.retryDelay = d
	}
}

// NewLocal creates an in-process dispatcher whose runs live under base
func NewLocal(base context.Context, processor worker.RunProcessor, logger *slog.Logger, opts ...LocalOption) *Local {
	l := &Local{
		base:       base,
		processor:  processor,
		logger:     logger,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dispatch starts the run and returns immediately
func (l *Local) Dispatch(_ context.Context, run *domain.Run) error {
	if err := l.base.Err(); err != nil {
		return err
	}

	l.wg.Add(1)
	go func(runID string) {
		defer l.wg.Done()
		l.execute(runID)
	}(run.RunID)

	l.logger.Debug("Run dispatched to local goroutine", slog.String("run_id", run.RunID))
	return nil
}

func (l *Local) execute(runID string) {
	for {
		err := l.processor.Process(l.base, runID)
		if err == nil {
			return
		}

		var retryable *domain.RetryableError
		if !errors.As(err, &retryable) {
			l.logger.Error("Background run failed",
				slog.String("run_id", runID),
				slog.Any("error", err),
			)
			return
		}

		l.logger.Warn("Background run released, retrying",
			slog.String("run_id", runID),
			slog.Duration("retry_after", l.retryDelay),
			slog.Any("error", err),
		)
		select {
		case <-l.base.Done():
			return
		case <-time.After(l.retryDelay):
		}
	}
}

// Wait blocks until every dispatched run has returned
func (l *Local) Wait() {
	l.wg.Wait()
}
