package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/tracker-enrich/internal/api/dto"
	"github.com/cuongbtq/tracker-enrich/internal/enrich/pipeline"
	"github.com/cuongbtq/tracker-enrich/shared/jsonstore"
	"github.com/gin-gonic/gin"
)

// TrackerHandler handles the owner-scoped record endpoints
type TrackerHandler struct {
	logger   *slog.Logger
	pipeline Enricher
	dataDir  string
}

// NewTrackerHandler creates a new TrackerHandler instance
func NewTrackerHandler(deps *Dependencies) *TrackerHandler {
	return &TrackerHandler{
		logger:   deps.Logger,
		pipeline: deps.Pipeline,
		dataDir:  deps.DataDir,
	}
}

// Refresh handles POST /api/v1/tracker/:owner/refresh
// Stores the posted raw records, runs the fast path and defers coordinates
func (h *TrackerHandler) Refresh(c *gin.Context) {
	owner := c.Param("owner")
	rawPath, parsedPath, err := ownerPaths(h.dataDir, owner)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var records []json.RawMessage
	if err := c.ShouldBindJSON(&records); err != nil {
		h.logger.Error("Invalid request body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Request body must be a JSON array of records",
		})
		return
	}
	if records == nil {
		records = []json.RawMessage{}
	}

	raw := jsonstore.New(rawPath, []json.RawMessage{}, h.logger)
	if err := raw.Save(records); err != nil {
		abortWithError(c, h.logger, "Failed to store raw records", err)
		return
	}

	run, _, err := h.pipeline.RunSplit(c.Request.Context(), owner, rawPath, parsedPath)
	if err != nil {
		abortWithError(c, h.logger, "Failed to process records", err)
		return
	}

	h.logger.Info("Tracker refreshed",
		slog.String("owner", owner),
		slog.Int("items_count", len(records)),
		slog.String("run_id", run.RunID),
	)

	c.JSON(http.StatusAccepted, dto.RefreshResponse{
		Message:    "Records saved, coordinates are being added in the background",
		ItemsCount: len(records),
		RunID:      run.RunID,
	})
}

// Process handles POST /api/v1/tracker/:owner/process
// Runs the full pipeline over the stored raw records and waits for it
func (h *TrackerHandler) Process(c *gin.Context) {
	owner := c.Param("owner")
	rawPath, parsedPath, err := ownerPaths(h.dataDir, owner)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.pipeline.RunFull(c.Request.Context(), rawPath, parsedPath)
	if err != nil {
		abortWithError(c, h.logger, "Failed to process records", err)
		return
	}

	c.JSON(http.StatusOK, processResponse(summary))
}

// GetParsed handles GET /api/v1/tracker/:owner/parsed
// Returns the parsed records, creating an empty file when none exist yet
func (h *TrackerHandler) GetParsed(c *gin.Context) {
	owner := c.Param("owner")
	_, parsedPath, err := ownerPaths(h.dataDir, owner)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := jsonstore.New(parsedPath, []json.RawMessage{}, h.logger).Load()
	if err != nil {
		abortWithError(c, h.logger, "Failed to read parsed records", err)
		return
	}

	c.JSON(http.StatusOK, records)
}

func processResponse(summary *pipeline.Summary) dto.ProcessResponse {
	stats := summary.Coordinates
	return dto.ProcessResponse{
		Message:    "Records processed",
		ItemsCount: summary.Records,
		Coordinates: dto.CoordinatesDTO{
			Candidates: stats.Candidates,
			Resolved:   stats.Resolved,
			Failed:     stats.Failed,
			CacheHits:  stats.CacheHits,
			Lookups:    stats.Lookups,
		},
		ElapsedMS: summary.Elapsed.Milliseconds(),
	}
}
