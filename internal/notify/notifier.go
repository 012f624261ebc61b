// Package notify emits user-facing notification events. Delivery transport
// (mail, push) is out of scope; events are published to the RabbitMQ topic
// exchange and consumed by the notification service.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/applyflow/applyflow-be/internal/domain"
	"github.com/applyflow/applyflow-be/shared/rabbitmq"
)

// Routing keys on the events exchange.
const (
	RoutingKeyJobsDiscovered       = "jobs.discovered"
	RoutingKeyApplicationSubmitted = "application.submitted"
)

// Notifier is the best-effort notification boundary. Errors are for the
// caller to log; they must never fail the primary workflow.
type Notifier interface {
	NotifyJobsDiscovered(ctx context.Context, userID string, jobs []domain.JobListing) error
	NotifyApplicationSubmitted(ctx context.Context, userID string, app domain.Application) error
}

type jobsDiscoveredEvent struct {
	UserID     string              `json:"user_id"`
	Count      int                 `json:"count"`
	TopJobs    []domain.JobListing `json:"top_jobs"`
	OccurredAt time.Time           `json:"occurred_at"`
}

type applicationSubmittedEvent struct {
	UserID      string             `json:"user_id"`
	Application domain.Application `json:"application"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// AMQPNotifier publishes notification events to RabbitMQ.
type AMQPNotifier struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewAMQPNotifier creates a notifier on the given event bus client.
func NewAMQPNotifier(client *rabbitmq.Client, logger *slog.Logger) *AMQPNotifier {
	return &AMQPNotifier{client: client, logger: logger}
}

// NotifyJobsDiscovered publishes a jobs.discovered event with the top
// listings, capped so events stay small.
func (n *AMQPNotifier) NotifyJobsDiscovered(ctx context.Context, userID string, jobs []domain.JobListing) error {
	top := jobs
	if len(top) > 5 {
		top = top[:5]
	}
	body, err := json.Marshal(jobsDiscoveredEvent{
		UserID:     userID,
		Count:      len(jobs),
		TopJobs:    top,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode jobs.discovered event: %w", err)
	}
	return n.client.PublishWithRetry(ctx, RoutingKeyJobsDiscovered, body)
}

// NotifyApplicationSubmitted publishes an application.submitted event.
func (n *AMQPNotifier) NotifyApplicationSubmitted(ctx context.Context, userID string, app domain.Application) error {
	body, err := json.Marshal(applicationSubmittedEvent{
		UserID:      userID,
		Application: app,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode application.submitted event: %w", err)
	}
	return n.client.PublishWithRetry(ctx, RoutingKeyApplicationSubmitted, body)
}
