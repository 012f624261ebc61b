package handler

import (
	"context"
	"log/slog"

	"github.com/applyflow/applyflow-be/internal/domain"
	"github.com/applyflow/applyflow-be/internal/storage"
)

// SearchTrigger queues an on-demand search and returns its request id.
type SearchTrigger interface {
	TriggerSearch(ctx context.Context, userID string, filters *domain.SearchFilters, immediate bool) (string, error)
}

// Lister is the read side of the document store the API exposes.
type Lister interface {
	ListDiscoveries(ctx context.Context, userID string, pageSize int, cursor *storage.Cursor) ([]storage.DiscoveryRecord, error)
	ListApplications(ctx context.Context, userID string, pageSize int, cursor *storage.Cursor) ([]domain.Application, error)
}

// QueueInspector reports queue depths for the stats endpoint.
type QueueInspector interface {
	Length(ctx context.Context, queue string) (int64, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Trigger SearchTrigger
	Store   Lister
	Queues  QueueInspector
}

// PipelineHandler handles the pipeline's HTTP requests.
type PipelineHandler struct {
	logger  *slog.Logger
	trigger SearchTrigger
	store   Lister
	queues  QueueInspector
}

// NewPipelineHandler creates a new PipelineHandler instance
func NewPipelineHandler(deps *Dependencies) *PipelineHandler {
	return &PipelineHandler{
		logger:  deps.Logger,
		trigger: deps.Trigger,
		store:   deps.Store,
		queues:  deps.Queues,
	}
}
