package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuongbtq/tracker-enrich/internal/api/dto"
	"github.com/cuongbtq/tracker-enrich/internal/api/handler"
	"github.com/cuongbtq/tracker-enrich/internal/domain"
	"github.com/cuongbtq/tracker-enrich/internal/enrich/location"
	"github.com/cuongbtq/tracker-enrich/internal/enrich/pipeline"
	"github.com/cuongbtq/tracker-enrich/internal/storage"
	"github.com/cuongbtq/tracker-enrich/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type remoteResolver struct{}

func (remoteResolver) Resolve(_ context.Context, records []domain.Record) (location.Stats, error) {
	for i := range records {
		records[i].Coordinates = []domain.LocationPoint{domain.RemotePoint}
	}
	return location.Stats{Records: len(records), Resolved: len(records)}, nil
}

// noopDispatcher leaves runs PENDING
type noopDispatcher struct {
	dispatched []string
}

func (d *noopDispatcher) Dispatch(_ context.Context, run *domain.Run) error {
	d.dispatched = append(d.dispatched, run.RunID)
	return nil
}

type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error { return errors.New("connection refused") }

type testEnv struct {
	engine     *gin.Engine
	dataDir    string
	runs       *storage.MemoryStore
	dispatcher *noopDispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewDiscard().Logger
	dataDir := t.TempDir()
	runs := storage.NewMemoryStore()
	dispatcher := &noopDispatcher{}

	p := pipeline.New(&pipeline.Config{
		Logger:     log,
		Resolver:   remoteResolver{},
		Runs:       runs,
		Dispatcher: dispatcher,
		MaxRetries: 1,
	})

	engine := SetupRouter(&handler.Dependencies{
		Logger:   log,
		Pipeline: p,
		Runs:     runs,
		DataDir:  dataDir,
	})
	return &testEnv{engine: engine, dataDir: dataDir, runs: runs, dispatcher: dispatcher}
}

func (e *testEnv) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

const rawRecords = `[
	{"id": 1, "company": "Acme", "job_posting_location": "Remote", "status_events": [{"status": 2}], "salary_low": 90000, "salary_high": 110000, "salary_period": 1},
	{"id": 2, "company": "Initech", "job_posting_location": "Austin", "status_events": [{"status": 99}], "salary_low": null, "salary_high": 50, "salary_period": 2}
]`

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealth_UnhealthyDependency(t *testing.T) {
	engine := SetupRouter(&handler.Dependencies{
		Logger: logger.NewDiscard().Logger,
		Checks: map[string]handler.HealthChecker{"postgresql": failingCheck{}},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tracker/alice/refresh", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRefresh_FastPathThenRunStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/tracker/alice/refresh", []byte(rawRecords))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp dto.RefreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.ItemsCount)
	assert.Equal(t, []string{resp.RunID}, env.dispatcher.dispatched)

	// raw snapshot stored verbatim
	raw, err := os.ReadFile(filepath.Join(env.dataDir, "alice", "raw.json"))
	require.NoError(t, err)
	assert.JSONEq(t, rawRecords, string(raw))

	rec = env.do(http.MethodGet, "/api/v1/tracker/alice/parsed", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var parsed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	require.Len(t, parsed, 2)
	assert.Equal(t, "Acme", parsed[0]["company"])
	assert.Equal(t, 1.0, parsed[0]["id"])
	assert.Equal(t, []any{}, parsed[0]["coordinates"])
	assert.Equal(t, 100000.0, parsed[0]["salary"])
	assert.Equal(t, []any{map[string]any{"status": 99.0}}, parsed[1]["status_events"])
	assert.Equal(t, 1.0, parsed[1]["salary"])

	rec = env.do(http.MethodGet, "/api/v1/runs/"+resp.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var run dto.RunDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, domain.RunStatusPending, run.Status)
	assert.Equal(t, "alice", run.Owner)
	assert.Equal(t, 2, run.Records)
}

func TestRefresh_RejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/tracker/alice/refresh", []byte(`{"not": "an array"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/tracker/a%20b/refresh", []byte(`[]`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/tracker/.hidden/refresh", []byte(`[]`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh_ContractViolationIs422(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/tracker/bob/refresh", []byte(`[{"id": "x", "job_posting_location": "Remote", "salary_period": 1}]`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "status_events")
	assert.Empty(t, env.dispatcher.dispatched)
}

func TestProcess_FullPass(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(env.dataDir, "carol"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.dataDir, "carol", "raw.json"), []byte(rawRecords), 0o644))

	rec := env.do(http.MethodPost, "/api/v1/tracker/carol/process", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp dto.ProcessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.ItemsCount)
	assert.Equal(t, 2, resp.Coordinates.Resolved)

	rec = env.do(http.MethodGet, "/api/v1/tracker/carol/parsed", nil)
	var parsed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	assert.Equal(t, []any{[]any{"remote", "remote", "remote"}}, parsed[1]["coordinates"])
	assert.Equal(t, []any{map[string]any{"status": "applied"}}, parsed[0]["status_events"])
}

func TestGetParsed_CreatesEmptyFile(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/tracker/dave/parsed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.FileExists(t, filepath.Join(env.dataDir, "dave", "parsed.json"))
}

func TestGetRun_Errors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/runs/6a1f0c2e-7b8d-4e4f-9a83-2f6b1c0d9e11", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns_Pagination(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ids := []string{
		"00000000-0000-4000-8000-000000000001",
		"00000000-0000-4000-8000-000000000002",
		"00000000-0000-4000-8000-000000000003",
	}
	for i, id := range ids {
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, env.runs.CreateRun(context.Background(), &domain.Run{
			RunID: id, Owner: "erin", Status: domain.RunStatusPending, CreatedAt: at, UpdatedAt: at,
		}))
	}

	rec := env.do(http.MethodGet, "/api/v1/tracker/erin/runs?page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page dto.ListRunsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Runs, 2)
	assert.Equal(t, ids[2], page.Runs[0].RunID)
	assert.Equal(t, ids[1], page.Runs[1].RunID)
	require.NotEmpty(t, page.NextCursor)

	rec = env.do(http.MethodGet, "/api/v1/tracker/erin/runs?page_size=2&cursor="+page.NextCursor, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var next dto.ListRunsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	require.Len(t, next.Runs, 1)
	assert.Equal(t, ids[0], next.Runs[0].RunID)
	assert.Empty(t, next.NextCursor)

	rec = env.do(http.MethodGet, "/api/v1/tracker/erin/runs?cursor=bm90LWEtY3Vyc29y", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/tracker/erin/runs?status=DONE", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
