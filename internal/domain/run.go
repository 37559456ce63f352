package domain

import "time"

// Run status constants
const (
	RunStatusPending   = "PENDING"
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// Run tracks the deferred coordinates phase of a split pipeline invocation
type Run struct {
	RunID           string     `db:"run_id" json:"run_id"`
	Owner           string     `db:"owner" json:"owner"`
	ParsedPath      string     `db:"parsed_path" json:"parsed_path"`
	Status          string     `db:"status" json:"status"`
	WorkerID        string     `db:"worker_id" json:"worker_id,omitempty"`
	ErrorMessage    string     `db:"error_message" json:"error_message,omitempty"`
	RetryCount      int        `db:"retry_count" json:"retry_count"`
	MaxRetries      int        `db:"max_retries" json:"max_retries"`
	Records         int        `db:"records" json:"records"`
	Resolved        int        `db:"resolved" json:"resolved"`
	Failed          int        `db:"failed" json:"failed"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
	StartedAt       *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	LastHeartbeatAt *time.Time `db:"last_heartbeat_at" json:"last_heartbeat_at,omitempty"`
}

// Terminal reports whether the run reached COMPLETED or FAILED
func (r *Run) Terminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// RunResult carries the outcome counters of a finished run
type RunResult struct {
	Records  int
	Resolved int
	Failed   int
}

// RunMessage is the queue message announcing a run to the worker service
type RunMessage struct {
	RunID       string `json:"run_id"`
	DeliveryTag uint64 `json:"-"`
}

// RunFilter selects runs for listing. Results are ordered newest first and
// hold up to PageSize+1 rows so callers can tell whether a next page exists.
type RunFilter struct {
	Owner    string
	Status   string
	PageSize int
	Cursor   *RunCursor
}

// RunCursor is the keyset position of the last run of a page
type RunCursor struct {
	CreatedAt time.Time
	RunID     string
}
