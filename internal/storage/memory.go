package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
)

// MemoryStore keeps runs in process memory. It backs the local background
// mode, where run status only needs to outlive the request, not the process.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*domain.Run
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]*domain.Run),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.RunID]; ok {
		return fmt.Errorf("failed to insert run: duplicate run_id %s", run.RunID)
	}
	stored := *run
	s.runs[run.RunID] = &stored
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	out := *run
	return &out, nil
}

func (s *MemoryStore) ClaimRun(_ context.Context, runID, workerID string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok || run.Status != domain.RunStatusPending {
		return nil, domain.ErrRunAlreadyClaimed
	}

	now := s.now()
	run.Status = domain.RunStatusRunning
	run.WorkerID = workerID
	run.ErrorMessage = ""
	run.StartedAt = &now
	run.LastHeartbeatAt = &now
	run.UpdatedAt = now

	out := *run
	return &out, nil
}

func (s *MemoryStore) UpdateRunHeartbeat(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok || run.Status != domain.RunStatusRunning {
		return nil
	}
	now := s.now()
	run.LastHeartbeatAt = &now
	run.UpdatedAt = now
	return nil
}

func (s *MemoryStore) CompleteRun(_ context.Context, runID string, result domain.RunResult) error {
	return s.finish(runID, domain.RunStatusCompleted, "", result)
}

func (s *MemoryStore) FailRun(_ context.Context, runID, errorMsg string) error {
	return s.finish(runID, domain.RunStatusFailed, errorMsg, domain.RunResult{})
}

func (s *MemoryStore) finish(runID, status, errorMsg string, result domain.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return domain.ErrRunNotFound
	}

	now := s.now()
	run.Status = status
	run.ErrorMessage = errorMsg
	if result.Records > 0 {
		run.Records = result.Records
	}
	run.Resolved = result.Resolved
	run.Failed = result.Failed
	run.CompletedAt = &now
	run.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ReleaseRunForRetry(_ context.Context, runID, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok || run.Status != domain.RunStatusRunning {
		return domain.ErrRunAlreadyClaimed
	}
	run.Status = domain.RunStatusPending
	run.WorkerID = ""
	run.ErrorMessage = errorMsg
	run.RetryCount++
	run.UpdatedAt = s.now()
	return nil
}

// ReclaimStaleRuns mirrors PostgresStore.ReclaimStaleRuns
func (s *MemoryStore) ReclaimStaleRuns(_ context.Context, staleBefore time.Time, reason string) ([]domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	runs := []domain.Run{}
	for _, run := range s.runs {
		if run.Status != domain.RunStatusRunning || run.LastHeartbeatAt == nil || !run.LastHeartbeatAt.Before(staleBefore) {
			continue
		}
		if run.RetryCount < run.MaxRetries {
			run.Status = domain.RunStatusPending
			run.RetryCount++
		} else {
			run.Status = domain.RunStatusFailed
			run.CompletedAt = &now
		}
		run.WorkerID = ""
		run.ErrorMessage = reason
		run.UpdatedAt = now
		runs = append(runs, *run)
	}
	return runs, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, filter domain.RunFilter) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := []domain.Run{}
	for _, run := range s.runs {
		if run.Owner != filter.Owner {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if filter.Cursor != nil && !before(run, filter.Cursor) {
			continue
		}
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].RunID > runs[j].RunID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit := filter.PageSize + 1; len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// before reports whether run sorts after the cursor in newest-first order
func before(run *domain.Run, cursor *domain.RunCursor) bool {
	if run.CreatedAt.Equal(cursor.CreatedAt) {
		return run.RunID < cursor.RunID
	}
	return run.CreatedAt.Before(cursor.CreatedAt)
}
