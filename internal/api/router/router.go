package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/applyflow/applyflow-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "applyflow-api",
		})
	})

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	pipelineHandler := handler.NewPipelineHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/searches - Queue an on-demand job search (202)
		v1.POST("/searches", pipelineHandler.TriggerSearch)

		// GET /api/v1/discoveries - List scored discoveries for a user
		v1.GET("/discoveries", pipelineHandler.ListDiscoveries)

		// GET /api/v1/applications - List applications for a user
		v1.GET("/applications", pipelineHandler.ListApplications)

		// GET /api/v1/queues/:name/stats - Approximate queue depth
		v1.GET("/queues/:name/stats", pipelineHandler.GetQueueStats)
	}

	return r
}
