package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
	"github.com/cuongbtq/tracker-enrich/internal/enrich/pipeline"
)

const (
	defaultRunTimeout        = 30 * time.Minute
	defaultHeartbeatInterval = 30 * time.Second
	finalizeTimeout          = 10 * time.Second
)

// RunStore is the subset of the run store the processor drives
type RunStore interface {
	ClaimRun(ctx context.Context, runID, workerID string) (*domain.Run, error)
	UpdateRunHeartbeat(ctx context.Context, runID string) error
	CompleteRun(ctx context.Context, runID string, result domain.RunResult) error
	FailRun(ctx context.Context, runID, errorMsg string) error
	ReleaseRunForRetry(ctx context.Context, runID, errorMsg string) error
}

// CoordinatesRunner executes the deferred coordinates phase
type CoordinatesRunner interface {
	RunBackgroundCoordinates(ctx context.Context, parsedPath string) (*pipeline.Summary, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Logger            *slog.Logger
	Store             RunStore
	Runner            CoordinatesRunner
	WorkerID          string
	RunTimeout        time.Duration
	HeartbeatInterval time.Duration
}

// Processor claims a run and executes its coordinates phase with a timeout
// and a heartbeat
type Processor struct {
	logger            *slog.Logger
	store             RunStore
	runner            CoordinatesRunner
	workerID          string
	runTimeout        time.Duration
	heartbeatInterval time.Duration
}

// NewProcessor creates a new Processor instance
func NewProcessor(cfg *ProcessorConfig) *Processor {
	p := &Processor{
		logger:            cfg.Logger,
		store:             cfg.Store,
		runner:            cfg.Runner,
		workerID:          cfg.WorkerID,
		runTimeout:        cfg.RunTimeout,
		heartbeatInterval: cfg.HeartbeatInterval,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.runTimeout <= 0 {
		p.runTimeout = defaultRunTimeout
	}
	if p.heartbeatInterval <= 0 {
		p.heartbeatInterval = defaultHeartbeatInterval
	}
	return p
}

// Process runs one claimed run to a terminal state, or releases it for a
// retry. The returned error tells the caller whether to redeliver:
// RetryableError means the run is PENDING again.
func (p *Processor) Process(ctx context.Context, runID string) error {
	p.logger.Info("Processing run",
		slog.String("run_id", runID),
		slog.String("worker_id", p.workerID),
	)

	// Step 1: Claim run (PENDING → RUNNING)
	run, err := p.store.ClaimRun(ctx, runID, p.workerID)
	if err != nil {
		if errors.Is(err, domain.ErrRunAlreadyClaimed) {
			p.logger.Warn("Run already claimed, skipping",
				slog.String("run_id", runID),
			)
			return fmt.Errorf("run already claimed: %w", err)
		}
		p.logger.Error("Failed to claim run",
			slog.String("run_id", runID),
			slog.Any("error", err),
		)
		return domain.NewRetryableError(fmt.Errorf("failed to claim run: %w", err))
	}

	// Step 2: Execute under the run timeout with a heartbeat
	runCtx, cancel := context.WithTimeout(ctx, p.runTimeout)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go p.sendHeartbeat(runCtx, run.RunID, heartbeatDone)

	summary, err := p.runner.RunBackgroundCoordinates(runCtx, run.ParsedPath)
	close(heartbeatDone)

	// Step 3: Record the outcome. Store updates must land even when the
	// worker is shutting down.
	finalCtx, finalCancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer finalCancel()

	if err != nil {
		return p.handleFailure(finalCtx, run, err)
	}

	result := domain.RunResult{
		Records:  summary.Records,
		Resolved: summary.Coordinates.Resolved,
		Failed:   summary.Coordinates.Failed,
	}
	if updateErr := p.store.CompleteRun(finalCtx, run.RunID, result); updateErr != nil {
		// Parsed file is already written; redelivering would only repeat it
		p.logger.Error("Failed to update run status to COMPLETED",
			slog.String("run_id", run.RunID),
			slog.Any("error", updateErr),
		)
	}

	p.logger.Info("Run completed successfully",
		slog.String("run_id", run.RunID),
		slog.Int("records", result.Records),
		slog.Int("resolved", result.Resolved),
		slog.Int("failed", result.Failed),
	)
	return nil
}

func (p *Processor) handleFailure(ctx context.Context, run *domain.Run, err error) error {
	p.logger.Error("Run execution failed",
		slog.String("run_id", run.RunID),
		slog.Any("error", err),
	)

	// Bad input fails the same way on every attempt
	if errors.Is(err, domain.ErrContractViolation) {
		p.fail(ctx, run.RunID, err)
		return fmt.Errorf("run failed: %w", err)
	}

	if run.RetryCount < run.MaxRetries {
		p.logger.Info("Run will be retried",
			slog.String("run_id", run.RunID),
			slog.Int("retry_count", run.RetryCount),
			slog.Int("max_retries", run.MaxRetries),
		)
		if releaseErr := p.store.ReleaseRunForRetry(ctx, run.RunID, err.Error()); releaseErr != nil {
			p.logger.Error("Failed to release run for retry",
				slog.String("run_id", run.RunID),
				slog.Any("error", releaseErr),
			)
			p.fail(ctx, run.RunID, err)
			return fmt.Errorf("run failed: %w", err)
		}
		return domain.NewRetryableError(fmt.Errorf("run execution failed: %w", err))
	}

	p.logger.Warn("Run exceeded max retries",
		slog.String("run_id", run.RunID),
		slog.Int("retry_count", run.RetryCount),
		slog.Int("max_retries", run.MaxRetries),
	)
	p.fail(ctx, run.RunID, err)
	return fmt.Errorf("%w: %v", domain.ErrMaxRetriesExceeded, err)
}

func (p *Processor) fail(ctx context.Context, runID string, cause error) {
	if err := p.store.FailRun(ctx, runID, cause.Error()); err != nil {
		p.logger.Error("Failed to update run status to FAILED",
			slog.String("run_id", runID),
			slog.Any("error", err),
		)
	}
}

// sendHeartbeat periodically updates the run's heartbeat timestamp
func (p *Processor) sendHeartbeat(ctx context.Context, runID string, done <-chan struct{}) {
	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.store.UpdateRunHeartbeat(ctx, runID); err != nil {
				p.logger.Warn("Failed to update run heartbeat",
					slog.String("run_id", runID),
					slog.Any("error", err),
				)
			} else {
				p.logger.Debug("Run heartbeat updated", slog.String("run_id", runID))
			}
		}
	}
}

// ShouldRequeue decides whether a failed delivery goes back on the queue
func ShouldRequeue(err error) bool {
	if errors.Is(err, domain.ErrRunAlreadyClaimed) {
		return false
	}
	if errors.Is(err, domain.ErrMaxRetriesExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrInvalidMessage) {
		return false
	}
	if errors.Is(err, domain.ErrContractViolation) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
