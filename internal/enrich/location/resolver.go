package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
	"github.com/cuongbtq/tracker-enrich/internal/enrich/geocode"
)

const (
	// DefaultCourtesyDelay is the pause before every live geocoder call
	DefaultCourtesyDelay = 1 * time.Second
	// DefaultLookupTimeout bounds a single geocoder call
	DefaultLookupTimeout = 10 * time.Second
)

// Geocoder resolves a free-text query to a point
type Geocoder interface {
	Geocode(ctx context.Context, query string) (geocode.Result, error)
}

// Options configures a Resolver
type Options struct {
	Logger *slog.Logger
	// CourtesyDelay is slept before each live lookup. Negative disables it.
	CourtesyDelay time.Duration
	// LookupTimeout bounds each lookup; a timeout counts as a failed candidate
	LookupTimeout time.Duration
}

// Stats summarises a Resolve pass
type Stats struct {
	Records    int `json:"records"`
	Candidates int `json:"candidates"`
	Resolved   int `json:"resolved"`
	Failed     int `json:"failed"`
	CacheHits  int `json:"cache_hits"`
	Lookups    int `json:"lookups"`
}

// Resolver annotates records with coordinates, cache first
type Resolver struct {
	geocoder Geocoder
	cache    *Cache
	logger   *slog.Logger
	delay    time.Duration
	timeout  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewResolver creates a resolver backed by geocoder and the shared cache
func NewResolver(geocoder Geocoder, cache *Cache, opts Options) *Resolver {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CourtesyDelay == 0 {
		opts.CourtesyDelay = DefaultCourtesyDelay
	}
	if opts.CourtesyDelay < 0 {
		opts.CourtesyDelay = 0
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = DefaultLookupTimeout
	}
	return &Resolver{
		geocoder: geocoder,
		cache:    cache,
		logger:   opts.Logger,
		delay:    opts.CourtesyDelay,
		timeout:  opts.LookupTimeout,
		sleep:    sleepContext,
	}
}

// Resolve sets Coordinates on every record. Candidates that cannot be
// resolved are logged and left out; they never fail the batch. The cache is
// reloaded before the pass and saved after it, including when ctx is
// canceled midway.
func (r *Resolver) Resolve(ctx context.Context, records []domain.Record) (Stats, error) {
	var stats Stats

	if err := r.cache.Reload(); err != nil {
		return stats, err
	}

	runErr := r.resolveAll(ctx, records, &stats)

	if err := r.cache.Save(); err != nil {
		return stats, errors.Join(runErr, err)
	}

	r.logger.Info("Coordinates resolved",
		slog.Int("records", stats.Records),
		slog.Int("candidates", stats.Candidates),
		slog.Int("resolved", stats.Resolved),
		slog.Int("failed", stats.Failed),
		slog.Int("cache_hits", stats.CacheHits),
		slog.Int("lookups", stats.Lookups),
	)
	return stats, runErr
}

func (r *Resolver) resolveAll(ctx context.Context, records []domain.Record, stats *Stats) error {
	for i := range records {
		record := &records[i]
		candidates := SplitCandidates(record.JobPostingLocation)

		record.Coordinates = make([]domain.LocationPoint, 0, len(candidates))
		stats.Records++

		for _, candidate := range candidates {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("coordinates pass interrupted: %w", err)
			}
			stats.Candidates++

			point, err := r.resolveCandidate(ctx, candidate, stats)
			if err != nil {
				if ctx.Err() != nil {
					return fmt.Errorf("coordinates pass interrupted: %w", ctx.Err())
				}
				stats.Failed++
				r.logger.Error("Failed to add coordinates",
					slog.String("record_id", record.ID),
					slog.String("candidate", candidate),
					slog.Any("error", err),
				)
				continue
			}

			stats.Resolved++
			record.Coordinates = append(record.Coordinates, point)
		}
	}
	return nil
}

func (r *Resolver) resolveCandidate(ctx context.Context, candidate string, stats *Stats) (domain.LocationPoint, error) {
	key := strings.TrimSpace(candidate)

	if IsRemote(key) {
		r.cache.Put(key, domain.RemotePoint)
		return domain.RemotePoint, nil
	}

	if point, ok := r.cache.Get(key); ok {
		stats.CacheHits++
		return point, nil
	}

	r.logger.Debug("Geocoder lookup", slog.String("candidate", key))
	stats.Lookups++

	if r.delay > 0 {
		if err := r.sleep(ctx, r.delay); err != nil {
			return domain.LocationPoint{}, err
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.geocoder.Geocode(lookupCtx, key)
	if err != nil {
		return domain.LocationPoint{}, &domain.LocationError{Candidate: key, Err: err}
	}
	if !result.Found {
		return domain.LocationPoint{}, &domain.LocationError{Candidate: key, Err: domain.ErrLocationNotFound}
	}

	point := domain.LocationPoint{
		Latitude:  result.Latitude,
		Longitude: result.Longitude,
		Address:   result.Address,
	}
	r.cache.Put(key, point)
	return point, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
