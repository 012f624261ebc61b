package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/applyflow/applyflow-be/internal/api/dto"
	"github.com/applyflow/applyflow-be/internal/domain"
	"github.com/applyflow/applyflow-be/internal/storage"
)

// Queues exposed by the stats endpoint.
var statQueues = map[string]bool{
	domain.QueueSearchJobs:          true,
	domain.QueueProcessApplications: true,
	domain.QueueFollowUpReminders:   true,
	domain.QueueAutomationLogs:      true,
}

// TriggerSearch handles POST /api/v1/searches
// Queues a search and acknowledges with 202; discovery results arrive
// asynchronously via the pipeline.
func (h *PipelineHandler) TriggerSearch(c *gin.Context) {
	var req dto.TriggerSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	requestID, err := h.trigger.TriggerSearch(c.Request.Context(), req.UserID, req.Filters, req.Immediate)
	if err != nil {
		h.logger.Error("Failed to trigger search",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
		})
		return
	}

	h.logger.Info("Search triggered",
		slog.String("user_id", req.UserID),
		slog.String("request_id", requestID),
		slog.Bool("immediate", req.Immediate),
	)

	c.JSON(http.StatusAccepted, dto.TriggerSearchResponse{
		RequestID: requestID,
		Status:    "accepted",
	})
}

// ListDiscoveries handles GET /api/v1/discoveries
// Lists a user's scored discoveries newest-first with cursor pagination.
func (h *PipelineHandler) ListDiscoveries(c *gin.Context) {
	var req dto.ListDiscoveriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}
	req.PageSize = clampPageSize(req.PageSize)

	cursor, err := DecodeCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	records, err := h.store.ListDiscoveries(c.Request.Context(), req.UserID, req.PageSize, cursor)
	if err != nil {
		h.logger.Error("Failed to list discoveries", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list discoveries",
		})
		return
	}

	hasMore := len(records) > req.PageSize
	if hasMore {
		records = records[:req.PageSize]
	}

	discoveries := make([]dto.DiscoveryDTO, len(records))
	for i, rec := range records {
		discoveries[i] = dto.DiscoveryDTO{
			Job:          rec.Listing,
			DiscoveredAt: rec.DiscoveredAt.Format(time.RFC3339),
		}
	}

	var nextCursor string
	if hasMore {
		last := records[len(records)-1]
		nextCursor = EncodeCursor(&storage.Cursor{
			At: last.DiscoveredAt,
			ID: last.Listing.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListDiscoveriesResponse{
		Discoveries: discoveries,
		NextCursor:  nextCursor,
	})
}

// ListApplications handles GET /api/v1/applications
// Lists a user's applications newest-first with cursor pagination.
func (h *PipelineHandler) ListApplications(c *gin.Context) {
	var req dto.ListApplicationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}
	req.PageSize = clampPageSize(req.PageSize)

	cursor, err := DecodeCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	apps, err := h.store.ListApplications(c.Request.Context(), req.UserID, req.PageSize, cursor)
	if err != nil {
		h.logger.Error("Failed to list applications", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list applications",
		})
		return
	}

	hasMore := len(apps) > req.PageSize
	if hasMore {
		apps = apps[:req.PageSize]
	}

	response := make([]dto.ApplicationDTO, len(apps))
	for i, app := range apps {
		response[i] = dto.ApplicationDTO{
			ID:              app.ID,
			UserID:          app.UserID,
			JobID:           app.JobID,
			Status:          app.Status,
			AppliedAt:       app.AppliedAt.Format(time.RFC3339),
			RelevancyScore:  app.RelevancyScore,
			CoverLetterUsed: app.CoverLetterUsed,
			ResumeTailored:  app.ResumeTailored,
			Portal:          app.Portal,
		}
	}

	var nextCursor string
	if hasMore {
		last := apps[len(apps)-1]
		nextCursor = EncodeCursor(&storage.Cursor{
			At: last.AppliedAt,
			ID: last.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListApplicationsResponse{
		Applications: response,
		NextCursor:   nextCursor,
	})
}

// GetQueueStats handles GET /api/v1/queues/:name/stats
// Reports the approximate depth of one pipeline queue.
func (h *PipelineHandler) GetQueueStats(c *gin.Context) {
	name := c.Param("name")
	if !statQueues[name] {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "unknown queue",
		})
		return
	}

	depth, err := h.queues.Length(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("Failed to read queue depth",
			slog.String("queue", name),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read queue depth",
		})
		return
	}

	c.JSON(http.StatusOK, dto.QueueStatsResponse{
		Queue: name,
		Depth: depth,
	})
}

func clampPageSize(pageSize int) int {
	if pageSize <= 0 {
		return 20
	}
	if pageSize > 100 {
		return 100
	}
	return pageSize
}
