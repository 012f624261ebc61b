package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/applyflow/applyflow-be/internal/domain"
	"github.com/applyflow/applyflow-be/internal/queue"
)

// Auditor records automation events for the out-of-scope audit worker.
// Entries age out if nothing consumes them.
type Auditor struct {
	queues queue.Service
	logger *slog.Logger
	ttl    time.Duration
}

// NewAuditor creates an Auditor writing to the automation-logs queue.
func NewAuditor(queues queue.Service, logger *slog.Logger) *Auditor {
	return &Auditor{
		queues: queues,
		logger: logger,
		ttl:    7 * 24 * time.Hour,
	}
}

// Record enqueues an audit entry. Best-effort: failures are logged and
// swallowed so auditing never affects the primary workflow.
func (a *Auditor) Record(ctx context.Context, entry domain.AuditEntry) {
	body, err := json.Marshal(entry)
	if err != nil {
		a.logger.Warn("Failed to encode audit entry", slog.Any("error", err))
		return
	}
	if _, err := a.queues.Enqueue(ctx, domain.QueueAutomationLogs, body, queue.EnqueueOptions{TTL: a.ttl}); err != nil {
		a.logger.Warn("Failed to enqueue audit entry",
			slog.String("event", entry.Event),
			slog.Any("error", err),
		)
	}
}
