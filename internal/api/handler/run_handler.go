package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/tracker-enrich/internal/api/dto"
	"github.com/cuongbtq/tracker-enrich/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// RunHandler exposes the status of deferred coordinate runs
type RunHandler struct {
	logger *slog.Logger
	runs   RunReader
}

// NewRunHandler creates a new RunHandler instance
func NewRunHandler(deps *Dependencies) *RunHandler {
	return &RunHandler{
		logger: deps.Logger,
		runs:   deps.Runs,
	}
}

// GetRun handles GET /api/v1/runs/:run_id
func (h *RunHandler) GetRun(c *gin.Context) {
	runID := c.Param("run_id")
	if _, err := uuid.Parse(runID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "run_id must be a valid UUID",
		})
		return
	}

	run, err := h.runs.GetRun(c.Request.Context(), runID)
	if err != nil {
		abortWithError(c, h.logger, "Failed to get run", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewRunDTO(run))
}

// ListRuns handles GET /api/v1/tracker/:owner/runs
// Lists an owner's runs newest first with cursor pagination
func (h *RunHandler) ListRuns(c *gin.Context) {
	owner := c.Param("owner")
	if _, _, err := ownerPaths("", owner); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req dto.ListRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	switch req.Status {
	case "", domain.RunStatusPending, domain.RunStatusRunning, domain.RunStatusCompleted, domain.RunStatusFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status filter",
		})
		return
	}

	cursor, err := DecodeRunCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), domain.RunFilter{
		Owner:    owner,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		abortWithError(c, h.logger, "Failed to list runs", err)
		return
	}

	hasMore := len(runs) > req.PageSize
	if hasMore {
		runs = runs[:req.PageSize]
	}

	resp := dto.ListRunsResponse{Runs: make([]dto.RunDTO, len(runs))}
	for i := range runs {
		resp.Runs[i] = dto.NewRunDTO(&runs[i])
	}
	if hasMore {
		last := runs[len(runs)-1]
		resp.NextCursor = EncodeRunCursor(&domain.RunCursor{CreatedAt: last.CreatedAt, RunID: last.RunID})
	}

	c.JSON(http.StatusOK, resp)
}
