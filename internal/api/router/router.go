package router

import (
	"github.com/cuongbtq/tracker-enrich/internal/api/handler"
	"github.com/gin-gonic/gin"
)

const serviceName = "tracker-enrich-api"

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", handler.NewHealthHandler(serviceName, deps).Health)

	trackerHandler := handler.NewTrackerHandler(deps)
	runHandler := handler.NewRunHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		tracker := v1.Group("/tracker/:owner")
		{
			// POST /api/v1/tracker/:owner/refresh - Store raw records, fast path, defer coordinates
			tracker.POST("/refresh", trackerHandler.Refresh)

			// POST /api/v1/tracker/:owner/process - Full synchronous pass
			tracker.POST("/process", trackerHandler.Process)

			// GET /api/v1/tracker/:owner/parsed - Parsed records
			tracker.GET("/parsed", trackerHandler.GetParsed)

			// GET /api/v1/tracker/:owner/runs - Runs of the owner, newest first
			tracker.GET("/runs", runHandler.ListRuns)
		}

		// GET /api/v1/runs/:run_id - Run status
		v1.GET("/runs/:run_id", runHandler.GetRun)
	}

	return r
}
