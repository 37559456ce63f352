package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
	"github.com/cuongbtq/tracker-enrich/internal/enrich/pipeline"
	"github.com/gin-gonic/gin"
)

const (
	rawFileName    = "raw.json"
	parsedFileName = "parsed.json"
)

// Enricher runs the enrichment pipeline over an owner's files
type Enricher interface {
	RunFull(ctx context.Context, rawPath, parsedPath string) (*pipeline.Summary, error)
	RunSplit(ctx context.Context, owner, rawPath, parsedPath string) (*domain.Run, *pipeline.Summary, error)
}

// RunReader exposes run status to the API
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, filter domain.RunFilter) ([]domain.Run, error)
}

// HealthChecker reports the health of a backing service
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Pipeline Enricher
	Runs     RunReader
	// DataDir holds one directory per owner
	DataDir string
	// Checks are probed by the health endpoint, keyed by service name
	Checks map[string]HealthChecker
}

var ownerPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

var errInvalidOwner = errors.New("owner must be 1-64 letters, digits, '.', '_' or '-'")

// ownerPaths returns the raw and parsed record files of an owner
func ownerPaths(dataDir, owner string) (string, string, error) {
	if !ownerPattern.MatchString(owner) {
		return "", "", errInvalidOwner
	}
	dir := filepath.Join(dataDir, owner)
	return filepath.Join(dir, rawFileName), filepath.Join(dir, parsedFileName), nil
}

// statusFor maps pipeline errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrContractViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	status := statusFor(err)
	logger.Error(msg,
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", status),
		slog.Any("error", err),
	)

	body := gin.H{"error": msg}
	if status == http.StatusUnprocessableEntity {
		body["details"] = err.Error()
	}
	c.JSON(status, body)
}

// HealthHandler serves GET /health
type HealthHandler struct {
	service string
	checks  map[string]HealthChecker
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(service string, deps *Dependencies) *HealthHandler {
	return &HealthHandler{service: service, checks: deps.Checks}
}

// Health reports service status and checks each configured dependency
func (h *HealthHandler) Health(c *gin.Context) {
	status := http.StatusOK
	services := gin.H{}
	for name, check := range h.checks {
		if err := check.HealthCheck(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			services[name] = fmt.Sprintf("unhealthy: %v", err)
			continue
		}
		services[name] = "healthy"
	}

	body := gin.H{
		"status":  "healthy",
		"service": h.service,
	}
	if status != http.StatusOK {
		body["status"] = "unhealthy"
	}
	if len(services) > 0 {
		body["dependencies"] = services
	}
	c.JSON(status, body)
}
