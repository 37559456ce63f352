package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
	"github.com/jmoiron/sqlx"
)

const runColumns = `
	run_id, owner, parsed_path, status,
	COALESCE(worker_id, '') AS worker_id,
	COALESCE(error_message, '') AS error_message,
	retry_count, max_retries, records, resolved, failed,
	created_at, updated_at, started_at, completed_at, last_heartbeat_at
`

// PostgresStore persists runs in the enrichment_runs table
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// CreateRun inserts a new run
func (s *PostgresStore) CreateRun(ctx context.Context, run *domain.Run) error {
	query := `
		INSERT INTO enrichment_runs (
			run_id, owner, parsed_path, status, retry_count, max_retries,
			records, resolved, failed, created_at, updated_at
		) VALUES (
			:run_id, :owner, :parsed_path, :status, :retry_count, :max_retries,
			:records, :resolved, :failed, :created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	s.logger.Info("Run created",
		slog.String("run_id", run.RunID),
		slog.String("owner", run.Owner),
	)
	return nil
}

// GetRun retrieves a run by its ID
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM enrichment_runs WHERE run_id = $1`

	var run domain.Run
	if err := s.db.GetContext(ctx, &run, query, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ClaimRun moves a PENDING run to RUNNING using optimistic locking
// Returns the claimed run, or ErrRunAlreadyClaimed if the run is not PENDING
func (s *PostgresStore) ClaimRun(ctx context.Context, runID, workerID string) (*domain.Run, error) {
	query := `
		UPDATE enrichment_runs
		SET status = $1,
		    worker_id = $2,
		    error_message = NULL,
		    started_at = NOW(),
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE run_id = $3
		  AND status = $4
		RETURNING ` + runColumns

	var run domain.Run
	err := s.db.GetContext(ctx, &run, query, domain.RunStatusRunning, workerID, runID, domain.RunStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim run - already claimed or not found",
				slog.String("run_id", runID),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrRunAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim run: %w", err)
	}

	s.logger.Info("Run claimed successfully",
		slog.String("run_id", runID),
		slog.String("worker_id", workerID),
	)
	return &run, nil
}

// UpdateRunHeartbeat updates the last_heartbeat_at timestamp for a running run
func (s *PostgresStore) UpdateRunHeartbeat(ctx context.Context, runID string) error {
	query := `
		UPDATE enrichment_runs
		SET last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE run_id = $1 AND status = $2
	`

	result, err := s.db.ExecContext(ctx, query, runID, domain.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update run heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Run heartbeat update - no rows affected (run may not be running)",
			slog.String("run_id", runID),
		)
	}
	return nil
}

// CompleteRun marks a run COMPLETED and stores its counters
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result domain.RunResult) error {
	return s.finish(ctx, runID, domain.RunStatusCompleted, "", result)
}

// FailRun marks a run FAILED with the given error message
func (s *PostgresStore) FailRun(ctx context.Context, runID, errorMsg string) error {
	return s.finish(ctx, runID, domain.RunStatusFailed, errorMsg, domain.RunResult{})
}

func (s *PostgresStore) finish(ctx context.Context, runID, status, errorMsg string, result domain.RunResult) error {
	query := `
		UPDATE enrichment_runs
		SET status = $1,
		    error_message = NULLIF($2, ''),
		    records = CASE WHEN $3 > 0 THEN $3 ELSE records END,
		    resolved = $4,
		    failed = $5,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE run_id = $6
	`

	res, err := s.db.ExecContext(ctx, query, status, errorMsg, result.Records, result.Resolved, result.Failed, runID)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrRunNotFound
	}

	s.logger.Info("Run status updated",
		slog.String("run_id", runID),
		slog.String("status", status),
	)
	return nil
}

// ReleaseRunForRetry puts a RUNNING run back to PENDING and counts the attempt
func (s *PostgresStore) ReleaseRunForRetry(ctx context.Context, runID, errorMsg string) error {
	query := `
		UPDATE enrichment_runs
		SET status = $1,
		    worker_id = NULL,
		    error_message = NULLIF($2, ''),
		    retry_count = retry_count + 1,
		    updated_at = NOW()
		WHERE run_id = $3 AND status = $4
	`

	res, err := s.db.ExecContext(ctx, query, domain.RunStatusPending, errorMsg, runID, domain.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to release run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrRunAlreadyClaimed
	}

	s.logger.Info("Run released for retry", slog.String("run_id", runID))
	return nil
}

// ReclaimStaleRuns takes back RUNNING runs whose last heartbeat is older than
// staleBefore. A run with retries left goes back to PENDING with its
// retry_count bumped, the others are FAILED. The updated runs are returned.
func (s *PostgresStore) ReclaimStaleRuns(ctx context.Context, staleBefore time.Time, reason string) ([]domain.Run, error) {
	query := `
		UPDATE enrichment_runs
		SET status = CASE WHEN retry_count < max_retries THEN $1 ELSE $2 END,
		    retry_count = CASE WHEN retry_count < max_retries THEN retry_count + 1 ELSE retry_count END,
		    completed_at = CASE WHEN retry_count < max_retries THEN NULL ELSE NOW() END,
		    worker_id = NULL,
		    error_message = NULLIF($3, ''),
		    updated_at = NOW()
		WHERE status = $4
		  AND last_heartbeat_at < $5
		RETURNING ` + runColumns

	runs := []domain.Run{}
	err := s.db.SelectContext(ctx, &runs, query,
		domain.RunStatusPending, domain.RunStatusFailed, reason, domain.RunStatusRunning, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to reclaim stale runs: %w", err)
	}

	for _, run := range runs {
		s.logger.Warn("Stale run reclaimed",
			slog.String("run_id", run.RunID),
			slog.String("status", run.Status),
			slog.Int("retry_count", run.RetryCount),
		)
	}
	return runs, nil
}

// ListRuns returns runs matching filter, newest first, fetching one extra
// row to signal a next page
func (s *PostgresStore) ListRuns(ctx context.Context, filter domain.RunFilter) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM enrichment_runs WHERE owner = $1`
	args := []interface{}{filter.Owner}
	argIdx := 2

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, run_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.RunID)
		argIdx += 2
	}

	// Order by created_at DESC, run_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, run_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	runs := []domain.Run{}
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}
