package dto

import (
	"time"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
)

type RefreshResponse struct {
	Message    string `json:"message"`
	ItemsCount int    `json:"items_count"`
	RunID      string `json:"run_id"`
}

type ProcessResponse struct {
	Message     string         `json:"message"`
	ItemsCount  int            `json:"items_count"`
	Coordinates CoordinatesDTO `json:"coordinates"`
	ElapsedMS   int64          `json:"elapsed_ms"`
}

type CoordinatesDTO struct {
	Candidates int `json:"candidates"`
	Resolved   int `json:"resolved"`
	Failed     int `json:"failed"`
	CacheHits  int `json:"cache_hits"`
	Lookups    int `json:"lookups"`
}

type ListRunsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListRunsResponse struct {
	Runs       []RunDTO `json:"runs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type RunDTO struct {
	RunID           string `json:"run_id"`
	Owner           string `json:"owner"`
	Status          string `json:"status"`
	ErrorMessage    string `json:"error_message,omitempty"`
	WorkerID        string `json:"worker_id,omitempty"`
	RetryCount      int    `json:"retry_count"`
	MaxRetries      int    `json:"max_retries"`
	Records         int    `json:"records"`
	Resolved        int    `json:"resolved"`
	Failed          int    `json:"failed"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
	StartedAt       string `json:"started_at,omitempty"`
	CompletedAt     string `json:"completed_at,omitempty"`
	LastHeartbeatAt string `json:"last_heartbeat_at,omitempty"`
}

// NewRunDTO converts a run for the API; the parsed file path stays internal
func NewRunDTO(run *domain.Run) RunDTO {
	return RunDTO{
		RunID:           run.RunID,
		Owner:           run.Owner,
		Status:          run.Status,
		ErrorMessage:    run.ErrorMessage,
		WorkerID:        run.WorkerID,
		RetryCount:      run.RetryCount,
		MaxRetries:      run.MaxRetries,
		Records:         run.Records,
		Resolved:        run.Resolved,
		Failed:          run.Failed,
		CreatedAt:       run.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       run.UpdatedAt.Format(time.RFC3339),
		StartedAt:       formatOptional(run.StartedAt),
		CompletedAt:     formatOptional(run.CompletedAt),
		LastHeartbeatAt: formatOptional(run.LastHeartbeatAt),
	}
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
