// Package scheduler wires up the cron loop that decides, per user, whether
// a new job search should be enqueued, and serves on-demand triggers.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/applyflow/applyflow-be/internal/domain"
	"github.com/applyflow/applyflow-be/internal/metrics"
	"github.com/applyflow/applyflow-be/internal/queue"
)

// Decision reasons, recorded in logs and metrics.
const (
	ReasonDisabled       = "disabled"
	ReasonCadenceElapsed = "cadence-elapsed"
	ReasonQuotaExhausted = "quota-exhausted"
	ReasonBackpressure   = "backpressure"
	ReasonNotDue         = "not-due"
	ReasonOnDemand       = "on-demand"
)

// SettingsStore is the slice of the document store the scheduler needs.
type SettingsStore interface {
	ListActiveSettings(ctx context.Context) ([]domain.AutoApplySettings, error)
	GetAutoApplySettings(ctx context.Context, userID string) (domain.AutoApplySettings, error)
	CountTodayApplications(ctx context.Context, userID string) (int, error)
	UpdateLastSearchAt(ctx context.Context, userID string, at time.Time) error
}

// Config holds scheduler tuning.
type Config struct {
	TickInterval          time.Duration
	Cadence               time.Duration
	BackpressureThreshold int64
	JitterMax             time.Duration
}

// Scheduler runs the periodic sweep and the on-demand entry point.
type Scheduler struct {
	cfg    Config
	store  SettingsStore
	queues queue.Service
	logger *slog.Logger
	cron   *cron.Cron
	rng    *rand.Rand
	now    func() time.Time
}

// New creates a Scheduler.
func New(cfg Config, store SettingsStore, queues queue.Service, logger *slog.Logger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 15 * time.Minute
	}
	if cfg.Cadence <= 0 {
		cfg.Cadence = 4 * time.Hour
	}
	if cfg.JitterMax <= 0 {
		cfg.JitterMax = 3 * time.Minute
	}
	return &Scheduler{
		cfg:    cfg,
		store:  store,
		queues: queues,
		logger: logger,
		cron:   cron.New(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
}

// Start registers the tick and starts the cron loop. One sweep runs
// immediately so a restart does not wait a full interval.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.cfg.TickInterval)
	_, err := s.cron.AddFunc(spec, func() {
		s.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to register scheduler tick: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Search scheduler started",
		slog.Duration("tick_interval", s.cfg.TickInterval),
		slog.Duration("cadence", s.cfg.Cadence),
	)

	go s.Tick(ctx)
	return nil
}

// Stop shuts the cron loop down and waits for a running tick.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("Search scheduler stopped")
}

// Tick evaluates every active user once. A failure for one user never
// aborts the sweep; it is logged, counted and the loop continues.
func (s *Scheduler) Tick(ctx context.Context) {
	start := s.now()

	settings, err := s.store.ListActiveSettings(ctx)
	if err != nil {
		s.logger.Error("Failed to load active settings, skipping tick",
			slog.Any("error", err),
		)
		metrics.SchedulerErrors.Inc()
		return
	}

	depth, err := s.queues.Length(ctx, domain.QueueSearchJobs)
	if err != nil {
		s.logger.Error("Failed to measure search queue, skipping tick",
			slog.Any("error", err),
		)
		metrics.SchedulerErrors.Inc()
		return
	}
	metrics.QueueDepth.WithLabelValues(domain.QueueSearchJobs).Set(float64(depth))

	var scheduled, failed int
	for _, st := range settings {
		ok, err := s.scheduleUser(ctx, st, depth)
		if err != nil {
			failed++
			metrics.SchedulerErrors.Inc()
			s.logger.Error("Failed to schedule user search",
				slog.String("user_id", st.UserID),
				slog.Any("error", err),
			)
			continue
		}
		if ok {
			scheduled++
		}
	}

	s.logger.Info("Scheduler tick complete",
		slog.Int("users", len(settings)),
		slog.Int("scheduled", scheduled),
		slog.Int("failed", failed),
		slog.Duration("elapsed", s.now().Sub(start)),
	)
}

func (s *Scheduler) scheduleUser(ctx context.Context, settings domain.AutoApplySettings, queueDepth int64) (bool, error) {
	todayCount, err := s.store.CountTodayApplications(ctx, settings.UserID)
	if err != nil {
		return false, fmt.Errorf("failed to count today's applications: %w", err)
	}

	schedule, reason := Decide(settings, todayCount, queueDepth, s.cfg, s.now())
	metrics.SearchesScheduled.WithLabelValues(reason).Inc()

	if !schedule {
		s.logger.Debug("Search not scheduled",
			slog.String("user_id", settings.UserID),
			slog.String("reason", reason),
		)
		return false, nil
	}

	delay := time.Duration(s.rng.Int63n(int64(s.cfg.JitterMax)))
	if _, err := s.enqueueSearch(ctx, settings, settings.Filters, delay); err != nil {
		return false, err
	}

	s.logger.Info("Search scheduled",
		slog.String("user_id", settings.UserID),
		slog.Duration("delay", delay),
	)
	return true, nil
}

// Decide applies the per-user scheduling rules. An elapsed cadence wins
// outright; quota and backpressure only shape the reason reported for users
// whose cadence has not elapsed yet.
func Decide(settings domain.AutoApplySettings, todayCount int, queueDepth int64, cfg Config, now time.Time) (bool, string) {
	if !settings.IsEnabled {
		return false, ReasonDisabled
	}
	if settings.LastSearchAt.IsZero() || now.Sub(settings.LastSearchAt) >= cfg.Cadence {
		return true, ReasonCadenceElapsed
	}
	if todayCount >= settings.DailyApplicationLimit {
		return false, ReasonQuotaExhausted
	}
	if queueDepth > cfg.BackpressureThreshold {
		return false, ReasonBackpressure
	}
	return false, ReasonNotDue
}

// TriggerSearch is the on-demand entry point. With immediate=true the
// cadence, quota and backpressure checks are bypassed and the request is
// enqueued with zero delay; otherwise the periodic rules apply. The returned
// request id is an acknowledgment only; results arrive asynchronously.
func (s *Scheduler) TriggerSearch(ctx context.Context, userID string, filters *domain.SearchFilters, immediate bool) (string, error) {
	settings, err := s.store.GetAutoApplySettings(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load settings for %s: %w", userID, err)
	}

	effectiveFilters := settings.Filters
	if filters != nil {
		effectiveFilters = *filters
	}

	if !immediate {
		todayCount, err := s.store.CountTodayApplications(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("failed to count today's applications: %w", err)
		}
		depth, err := s.queues.Length(ctx, domain.QueueSearchJobs)
		if err != nil {
			return "", fmt.Errorf("failed to measure search queue: %w", err)
		}
		schedule, reason := Decide(settings, todayCount, depth, s.cfg, s.now())
		metrics.SearchesScheduled.WithLabelValues(reason).Inc()
		if !schedule {
			return "", fmt.Errorf("search not scheduled: %s", reason)
		}
		delay := time.Duration(s.rng.Int63n(int64(s.cfg.JitterMax)))
		return s.enqueueSearch(ctx, settings, effectiveFilters, delay)
	}

	metrics.SearchesScheduled.WithLabelValues(ReasonOnDemand).Inc()
	return s.enqueueSearch(ctx, settings, effectiveFilters, 0)
}

func (s *Scheduler) enqueueSearch(ctx context.Context, settings domain.AutoApplySettings, filters domain.SearchFilters, delay time.Duration) (string, error) {
	req := domain.SearchRequest{
		UserID:             settings.UserID,
		Filters:            filters,
		RequestID:          uuid.New().String(),
		RequestedAt:        s.now().UTC(),
		AutoApply:          settings.IsEnabled,
		AutoApplyThreshold: settings.AutoApplyThreshold,
		DailyLimit:         settings.DailyApplicationLimit,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode search request: %w", err)
	}

	if _, err := s.queues.Enqueue(ctx, domain.QueueSearchJobs, body, queue.EnqueueOptions{Delay: delay}); err != nil {
		return "", fmt.Errorf("failed to enqueue search request: %w", err)
	}

	if err := s.store.UpdateLastSearchAt(ctx, settings.UserID, s.now().UTC()); err != nil {
		// The request is already queued; the cadence check just becomes
		// eager for this user. Log, don't fail the acknowledgment.
		s.logger.Warn("Failed to update last_search_at",
			slog.String("user_id", settings.UserID),
			slog.Any("error", err),
		)
	}

	return req.RequestID, nil
}
