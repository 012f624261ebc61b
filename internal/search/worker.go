// Package search implements the consumer of the search-jobs queue: it
// queries job sources, filters and scores the results, persists discoveries
// and fans out auto-apply requests.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/applyflow/applyflow-be/internal/domain"
	"github.com/applyflow/applyflow-be/internal/metrics"
	"github.com/applyflow/applyflow-be/internal/notify"
	"github.com/applyflow/applyflow-be/internal/provider"
	"github.com/applyflow/applyflow-be/internal/queue"
	"github.com/applyflow/applyflow-be/internal/scorer"
)

// Fan-out delays spread apply submissions so a burst of discoveries does not
// hit portals as a burst of applications.
const (
	fanOutDelayMin = 30 * time.Second
	fanOutDelayMax = 150 * time.Second
)

// Store is the slice of the document store the search worker needs.
type Store interface {
	GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	UpsertDiscoveries(ctx context.Context, userID string, jobs []domain.JobListing) error
	CountTodayApplications(ctx context.Context, userID string) (int, error)
}

// Scorer assigns a relevancy score in [0,100] to a listing for a profile.
type Scorer interface {
	Score(ctx context.Context, job domain.JobListing, profile domain.UserProfile) int
}

// Recorder captures audit events, best-effort.
type Recorder interface {
	Record(ctx context.Context, entry domain.AuditEntry)
}

// Handler consumes search requests. Processing is idempotent: discoveries
// are upserted by (user, job) and the apply worker re-checks quota, so a
// redelivered request converges instead of duplicating.
type Handler struct {
	sources  []provider.Source
	fallback provider.Source
	scorer   Scorer
	store    Store
	queues   queue.Service
	notifier notify.Notifier
	auditor  Recorder
	logger   *slog.Logger
	now      func() time.Time
	delayFn  func() time.Duration
}

// NewHandler creates the search-jobs consumer. Sources are queried in the
// order given; fallback is used when every source fails or returns nothing.
func NewHandler(
	sources []provider.Source,
	fallback provider.Source,
	sc Scorer,
	store Store,
	queues queue.Service,
	notifier notify.Notifier,
	auditor Recorder,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		sources:  sources,
		fallback: fallback,
		scorer:   sc,
		store:    store,
		queues:   queues,
		notifier: notifier,
		auditor:  auditor,
		logger:   logger,
		now:      time.Now,
		delayFn: func() time.Duration {
			return fanOutDelayMin + time.Duration(rand.Int63n(int64(fanOutDelayMax-fanOutDelayMin)))
		},
	}
}

// Name identifies the worker in logs and metrics.
func (h *Handler) Name() string { return "search" }

// Handle runs one search request end to end.
func (h *Handler) Handle(ctx context.Context, msg queue.Message) error {
	var req domain.SearchRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		metrics.SearchRequestsProcessed.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if req.UserID == "" {
		metrics.SearchRequestsProcessed.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: missing user_id", domain.ErrInvalidPayload)
	}

	logger := h.logger.With(
		slog.String("user_id", req.UserID),
		slog.String("request_id", req.RequestID),
	)

	profile, err := h.store.GetUserProfile(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			metrics.SearchRequestsProcessed.WithLabelValues("profile-missing").Inc()
		}
		return err
	}

	listings := h.collectListings(ctx, req.Filters, logger)

	relevant := h.scoreAndFilter(ctx, listings, req.Filters, *profile)
	if len(relevant) == 0 {
		logger.Info("No relevant jobs found")
		metrics.SearchRequestsProcessed.WithLabelValues("empty").Inc()
		h.auditor.Record(ctx, domain.AuditEntry{
			Event:     "search.completed",
			UserID:    req.UserID,
			RequestID: req.RequestID,
			Detail:    "no relevant jobs",
		})
		return nil
	}

	if err := h.store.UpsertDiscoveries(ctx, req.UserID, relevant); err != nil {
		return domain.NewRetryableError(err)
	}
	for _, job := range relevant {
		source := "live"
		if job.SourcedFrom == provider.SourcedFromFallback {
			source = provider.SourcedFromFallback
		}
		metrics.JobsDiscovered.WithLabelValues(source).Inc()
	}

	fanned := 0
	if req.AutoApply {
		fanned, err = h.fanOut(ctx, req, relevant, logger)
		if err != nil {
			return err
		}
	}

	if err := h.notifier.NotifyJobsDiscovered(ctx, req.UserID, relevant); err != nil {
		logger.Warn("Failed to publish discovery notification", slog.Any("error", err))
	}
	h.auditor.Record(ctx, domain.AuditEntry{
		Event:     "search.completed",
		UserID:    req.UserID,
		RequestID: req.RequestID,
		Detail:    fmt.Sprintf("discovered=%d fanned_out=%d", len(relevant), fanned),
	})

	metrics.SearchRequestsProcessed.WithLabelValues("completed").Inc()
	logger.Info("Search completed",
		slog.Int("discovered", len(relevant)),
		slog.Int("fanned_out", fanned),
	)
	return nil
}

// collectListings queries every source in priority order. A failing source
// is logged and skipped; when all sources fail or none returns listings, the
// fallback source supplies canned results so the pipeline stays exercisable.
func (h *Handler) collectListings(ctx context.Context, filters domain.SearchFilters, logger *slog.Logger) []domain.JobListing {
	var listings []domain.JobListing
	for _, src := range h.sources {
		found, err := src.Search(ctx, filters)
		if err != nil {
			logger.Warn("Job source failed, continuing with remaining sources",
				slog.String("source", src.Name()),
				slog.Any("error", err),
			)
			continue
		}
		listings = append(listings, found...)
	}

	if len(listings) == 0 && h.fallback != nil {
		fallback, err := h.fallback.Search(ctx, filters)
		if err != nil {
			logger.Warn("Fallback source failed", slog.Any("error", err))
			return nil
		}
		logger.Info("All sources empty or failing, using fallback listings",
			slog.Int("count", len(fallback)),
		)
		return fallback
	}
	return listings
}

// scoreAndFilter keeps listings passing the filters, scores them, drops
// those under the minimum relevancy score and sorts the rest highest-first.
func (h *Handler) scoreAndFilter(ctx context.Context, listings []domain.JobListing, filters domain.SearchFilters, profile domain.UserProfile) []domain.JobListing {
	now := h.now()
	seen := make(map[string]struct{}, len(listings))
	relevant := make([]domain.JobListing, 0, len(listings))

	for _, job := range listings {
		if _, dup := seen[job.ID]; dup {
			continue
		}
		seen[job.ID] = struct{}{}

		if !MatchesFilters(job, filters, now) {
			continue
		}

		job.RelevancyScore = h.scorer.Score(ctx, job, profile)
		job.MatchedSkills, job.MissingSkills = scorer.MatchSkills(profile.Skills, job)

		if job.RelevancyScore < filters.MinimumRelevancyScore {
			continue
		}
		relevant = append(relevant, job)
	}

	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].RelevancyScore > relevant[j].RelevancyScore
	})
	return relevant
}

// fanOut enqueues apply requests for the highest-scoring jobs at or above
// the auto-apply threshold, capped by the user's remaining daily quota.
// Enqueue failures are retryable: re-running fan-out is safe because the
// apply worker skips jobs that already have an application.
func (h *Handler) fanOut(ctx context.Context, req domain.SearchRequest, jobs []domain.JobListing, logger *slog.Logger) (int, error) {
	todayCount, err := h.store.CountTodayApplications(ctx, req.UserID)
	if err != nil {
		return 0, domain.NewRetryableError(err)
	}

	remaining := req.DailyLimit - todayCount
	if remaining <= 0 {
		logger.Info("Daily application quota exhausted, skipping fan-out",
			slog.Int("daily_limit", req.DailyLimit),
		)
		return 0, nil
	}

	fanned := 0
	for _, job := range jobs {
		if fanned >= remaining {
			break
		}
		if job.RelevancyScore < req.AutoApplyThreshold {
			// Jobs are sorted highest-first, nothing below qualifies.
			break
		}

		apply := domain.ApplyRequest{
			UserID:     req.UserID,
			JobID:      job.ID,
			JobListing: job,
			RequestID:  req.RequestID,
			AutoApply:  true,
			QueuedAt:   h.now().UTC(),
		}
		body, err := json.Marshal(apply)
		if err != nil {
			return fanned, fmt.Errorf("failed to encode apply request for %s: %w", job.ID, err)
		}

		if _, err := h.queues.Enqueue(ctx, domain.QueueProcessApplications, body, queue.EnqueueOptions{
			Delay: h.delayFn(),
		}); err != nil {
			return fanned, domain.NewRetryableError(fmt.Errorf("failed to enqueue apply request: %w", err))
		}

		metrics.ApplyRequestsFannedOut.Inc()
		fanned++
	}
	return fanned, nil
}
