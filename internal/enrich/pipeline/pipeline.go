package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
	"github.com/cuongbtq/tracker-enrich/internal/enrich/location"
	"github.com/cuongbtq/tracker-enrich/internal/enrich/salary"
	"github.com/cuongbtq/tracker-enrich/internal/enrich/status"
	"github.com/cuongbtq/tracker-enrich/shared/jsonstore"
	"github.com/google/uuid"
)

// CoordinateResolver is the location pass
type CoordinateResolver interface {
	Resolve(ctx context.Context, records []domain.Record) (location.Stats, error)
}

// RunStore records the lifecycle of deferred coordinates phases
type RunStore interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
}

// Dispatcher hands a PENDING run to a background executor. It must not wait
// for the run to finish.
type Dispatcher interface {
	Dispatch(ctx context.Context, run *domain.Run) error
}

// Config holds pipeline dependencies
type Config struct {
	Logger   *slog.Logger
	Resolver CoordinateResolver
	// Runs and Dispatcher are only required by RunSplit
	Runs       RunStore
	Dispatcher Dispatcher
	// MaxRetries is stored on every run created by RunSplit
	MaxRetries int
}

// Summary describes one pipeline invocation
type Summary struct {
	Records     int            `json:"records"`
	Coordinates location.Stats `json:"coordinates"`
	Elapsed     time.Duration  `json:"elapsed"`
}

// Pipeline sequences the enrichment passes over one record file
type Pipeline struct {
	logger     *slog.Logger
	resolver   CoordinateResolver
	runs       RunStore
	dispatcher Dispatcher
	maxRetries int
	now        func() time.Time
}

// New creates a Pipeline. Runs and Dispatcher are only needed by RunSplit.
func New(cfg *Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:     logger,
		resolver:   cfg.Resolver,
		runs:       cfg.Runs,
		dispatcher: cfg.Dispatcher,
		maxRetries: cfg.MaxRetries,
		now:        time.Now,
	}
}

// RunFull loads rawPath, resolves locations, normalizes statuses and
// salaries, and writes the result to parsedPath.
func (p *Pipeline) RunFull(ctx context.Context, rawPath, parsedPath string) (*Summary, error) {
	start := p.now()

	records, err := p.load(rawPath)
	if err != nil {
		return nil, err
	}

	stats, err := p.resolve(ctx, records)
	if err != nil {
		return nil, err
	}
	if err := p.normalize(records); err != nil {
		return nil, err
	}
	if err := p.save(parsedPath, records); err != nil {
		return nil, err
	}

	summary := &Summary{Records: len(records), Coordinates: stats, Elapsed: time.Since(start)}
	p.logger.Info("Full pipeline finished",
		slog.String("raw_path", rawPath),
		slog.String("parsed_path", parsedPath),
		slog.Int("records", summary.Records),
		slog.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// RunFastPath is the synchronous half of the split pipeline: statuses and
// salaries only, with empty coordinates.
func (p *Pipeline) RunFastPath(ctx context.Context, rawPath, parsedPath string) (*Summary, error) {
	start := p.now()

	records, err := p.load(rawPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		records[i].Coordinates = []domain.LocationPoint{}
	}
	if err := p.normalize(records); err != nil {
		return nil, err
	}
	if err := p.save(parsedPath, records); err != nil {
		return nil, err
	}

	summary := &Summary{Records: len(records), Elapsed: time.Since(start)}
	p.logger.Info("Fast path finished",
		slog.String("raw_path", rawPath),
		slog.String("parsed_path", parsedPath),
		slog.Int("records", summary.Records),
		slog.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// RunBackgroundCoordinates reloads parsedPath, resolves locations only and
// writes the records back to the same path.
func (p *Pipeline) RunBackgroundCoordinates(ctx context.Context, parsedPath string) (*Summary, error) {
	start := p.now()
	p.logger.Info("Starting coordinate fetching", slog.String("parsed_path", parsedPath))

	summary, err := p.runCoordinates(ctx, parsedPath)
	if err != nil {
		p.logger.Error("Error adding coordinates",
			slog.String("parsed_path", parsedPath),
			slog.Any("error", err),
		)
		return nil, err
	}

	summary.Elapsed = time.Since(start)
	p.logger.Info("Finished adding coordinates",
		slog.String("parsed_path", parsedPath),
		slog.Int("records", summary.Records),
		slog.Int("resolved", summary.Coordinates.Resolved),
		slog.Int("failed", summary.Coordinates.Failed),
		slog.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

func (p *Pipeline) runCoordinates(ctx context.Context, parsedPath string) (*Summary, error) {
	records, err := p.load(parsedPath)
	if err != nil {
		return nil, err
	}
	stats, err := p.resolve(ctx, records)
	if err != nil {
		return nil, err
	}
	if err := p.save(parsedPath, records); err != nil {
		return nil, err
	}
	return &Summary{Records: len(records), Coordinates: stats}, nil
}

// RunSplit runs the fast path, registers a PENDING run for the coordinates
// phase and dispatches it. It returns as soon as the run is dispatched; the
// run's progress is observable through the run store.
func (p *Pipeline) RunSplit(ctx context.Context, owner, rawPath, parsedPath string) (*domain.Run, *Summary, error) {
	if p.runs == nil || p.dispatcher == nil {
		return nil, nil, errors.New("split pipeline requires a run store and a dispatcher")
	}

	summary, err := p.RunFastPath(ctx, rawPath, parsedPath)
	if err != nil {
		return nil, nil, err
	}

	now := p.now().UTC()
	run := &domain.Run{
		RunID:      uuid.New().String(),
		Owner:      owner,
		ParsedPath: parsedPath,
		Status:     domain.RunStatusPending,
		MaxRetries: p.maxRetries,
		Records:    summary.Records,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := p.runs.CreateRun(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("failed to create run: %w", err)
	}
	if err := p.dispatcher.Dispatch(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("failed to dispatch run: %w", err)
	}

	p.logger.Info("Started background task to add coordinates",
		slog.String("run_id", run.RunID),
		slog.String("owner", owner),
		slog.String("parsed_path", parsedPath),
	)
	return run, summary, nil
}

func (p *Pipeline) resolve(ctx context.Context, records []domain.Record) (location.Stats, error) {
	if p.resolver == nil {
		return location.Stats{}, errors.New("pipeline has no coordinate resolver")
	}
	stats, err := p.resolver.Resolve(ctx, records)
	if err != nil {
		return stats, fmt.Errorf("failed to resolve coordinates: %w", err)
	}
	return stats, nil
}

func (p *Pipeline) normalize(records []domain.Record) error {
	if err := status.Normalize(records); err != nil {
		return fmt.Errorf("failed to normalize statuses: %w", err)
	}
	if err := salary.Normalize(records, p.logger); err != nil {
		return fmt.Errorf("failed to normalize salaries: %w", err)
	}
	return nil
}

func (p *Pipeline) load(path string) ([]domain.Record, error) {
	records, err := jsonstore.New(path, []domain.Record{}, p.logger).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	return records, nil
}

func (p *Pipeline) save(path string, records []domain.Record) error {
	if records == nil {
		records = []domain.Record{}
	}
	if err := jsonstore.New(path, []domain.Record{}, p.logger).Save(records); err != nil {
		return fmt.Errorf("failed to save records: %w", err)
	}
	return nil
}
