// Package apply implements the consumer of the process-applications queue:
// it revalidates each request against current settings and quota, prepares
// application materials, submits to the portal and records the outcome.
package apply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/applyflow/applyflow-be/internal/ai"
	"github.com/applyflow/applyflow-be/internal/domain"
	"github.com/applyflow/applyflow-be/internal/metrics"
	"github.com/applyflow/applyflow-be/internal/notify"
	"github.com/applyflow/applyflow-be/internal/provider"
	"github.com/applyflow/applyflow-be/internal/queue"
)

// Skip reasons reported when a request completes without a submission.
const (
	SkipDuplicate      = "duplicate"
	SkipQuotaExhausted = "quota-exhausted"
	SkipBelowThreshold = "below-threshold"
	SkipDisabled       = "auto-apply-disabled"
)

const defaultFollowUpDays = 3

// Store is the slice of the document store the apply worker needs.
type Store interface {
	GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	GetAutoApplySettings(ctx context.Context, userID string) (domain.AutoApplySettings, error)
	CountTodayApplications(ctx context.Context, userID string) (int, error)
	FindApplication(ctx context.Context, userID, jobID string) (*domain.Application, error)
	CreateApplication(ctx context.Context, app *domain.Application) error
}

// Scorer recomputes relevancy when a request arrives without a score.
type Scorer interface {
	Score(ctx context.Context, job domain.JobListing, profile domain.UserProfile) int
}

// Recorder captures audit events, best-effort.
type Recorder interface {
	Record(ctx context.Context, entry domain.AuditEntry)
}

// Handler consumes apply requests. The existing-application check makes
// redeliveries converge: a duplicate delivery after a successful submission
// skips instead of applying twice.
type Handler struct {
	store     Store
	scorer    Scorer
	gen       ai.TextGenerator
	submitter provider.Submitter
	queues    queue.Service
	notifier  notify.Notifier
	auditor   Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler creates the process-applications consumer. gen may be nil, in
// which case template materials are used.
func NewHandler(
	store Store,
	sc Scorer,
	gen ai.TextGenerator,
	submitter provider.Submitter,
	queues queue.Service,
	notifier notify.Notifier,
	auditor Recorder,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		store:     store,
		scorer:    sc,
		gen:       gen,
		submitter: submitter,
		queues:    queues,
		notifier:  notifier,
		auditor:   auditor,
		logger:    logger,
		now:       time.Now,
	}
}

// Name identifies the worker in logs and metrics.
func (h *Handler) Name() string { return "apply" }

// Handle processes one apply request end to end.
func (h *Handler) Handle(ctx context.Context, msg queue.Message) error {
	var req domain.ApplyRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if req.UserID == "" || req.JobID == "" {
		return fmt.Errorf("%w: missing user_id or job_id", domain.ErrInvalidPayload)
	}

	logger := h.logger.With(
		slog.String("user_id", req.UserID),
		slog.String("job_id", req.JobID),
		slog.String("request_id", req.RequestID),
	)

	existing, err := h.store.FindApplication(ctx, req.UserID, req.JobID)
	if err != nil {
		return domain.NewRetryableError(err)
	}
	if existing != nil && existing.Status != domain.ApplicationStatusFailed {
		logger.Info("Application already exists, skipping",
			slog.String("application_id", existing.ID),
			slog.String("status", existing.Status),
		)
		metrics.ApplySkips.WithLabelValues(SkipDuplicate).Inc()
		return nil
	}

	profile, err := h.store.GetUserProfile(ctx, req.UserID)
	if err != nil {
		return err
	}

	job := req.JobListing
	if job.RelevancyScore == 0 {
		job.RelevancyScore = h.scorer.Score(ctx, job, *profile)
		job.MatchedSkills, job.MissingSkills = nil, nil
	}

	if req.AutoApply {
		if skip, reason, err := h.revalidate(ctx, req, job); err != nil {
			return err
		} else if skip {
			logger.Info("Auto-apply revalidation skipped request", slog.String("reason", reason))
			metrics.ApplySkips.WithLabelValues(reason).Inc()
			return nil
		}
	}

	coverLetter := h.generateCoverLetter(ctx, job, *profile)
	resumeText, tailored := h.tailorResume(ctx, job, *profile)

	result, err := h.submitter.Submit(ctx, provider.Submission{
		UserID:      req.UserID,
		Job:         job,
		Profile:     *profile,
		CoverLetter: coverLetter,
		ResumeText:  resumeText,
	})
	if err != nil {
		if errors.Is(err, domain.ErrSubmissionRejected) {
			// Terminal verdict from the portal. Record the failure so the
			// history is queryable, then complete the message.
			return h.recordFailure(ctx, req, job, tailored, result.Reason, logger)
		}
		return err
	}

	app := domain.Application{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		JobID:           req.JobID,
		Status:          domain.ApplicationStatusSubmitted,
		AppliedAt:       h.now().UTC(),
		RelevancyScore:  job.RelevancyScore,
		CoverLetterUsed: coverLetter != "",
		ResumeTailored:  tailored,
		Portal:          job.SourcePortal,
	}
	if err := h.store.CreateApplication(ctx, &app); err != nil {
		// Portal accepted but the record did not land. Redelivery finds no
		// application and submits again; at-least-once trades a possible
		// duplicate submission for never losing the record.
		return domain.NewRetryableError(err)
	}
	metrics.ApplicationsSubmitted.WithLabelValues("submitted").Inc()

	h.scheduleFollowUp(ctx, req.UserID, app, logger)

	if err := h.notifier.NotifyApplicationSubmitted(ctx, req.UserID, app); err != nil {
		logger.Warn("Failed to publish submission notification", slog.Any("error", err))
	}
	h.auditor.Record(ctx, domain.AuditEntry{
		Event:     "application.submitted",
		UserID:    req.UserID,
		RequestID: req.RequestID,
		Detail:    fmt.Sprintf("job=%s confirmation=%s", req.JobID, result.ConfirmantID),
	})

	logger.Info("Application submitted",
		slog.String("application_id", app.ID),
		slog.String("confirmation", result.ConfirmantID),
		slog.Int("relevancy_score", app.RelevancyScore),
	)
	return nil
}

// revalidate re-checks the auto-apply gates at processing time. The request
// may have sat in the queue; settings and quota reflect submission time, not
// fan-out time.
func (h *Handler) revalidate(ctx context.Context, req domain.ApplyRequest, job domain.JobListing) (bool, string, error) {
	settings, err := h.store.GetAutoApplySettings(ctx, req.UserID)
	if err != nil {
		return false, "", domain.NewRetryableError(err)
	}
	if !settings.IsEnabled {
		return true, SkipDisabled, nil
	}
	if job.RelevancyScore < settings.AutoApplyThreshold {
		return true, SkipBelowThreshold, nil
	}

	todayCount, err := h.store.CountTodayApplications(ctx, req.UserID)
	if err != nil {
		return false, "", domain.NewRetryableError(err)
	}
	if todayCount >= settings.DailyApplicationLimit {
		return true, SkipQuotaExhausted, nil
	}
	return false, "", nil
}

func (h *Handler) recordFailure(ctx context.Context, req domain.ApplyRequest, job domain.JobListing, tailored bool, reason string, logger *slog.Logger) error {
	app := domain.Application{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		JobID:          req.JobID,
		Status:         domain.ApplicationStatusFailed,
		AppliedAt:      h.now().UTC(),
		RelevancyScore: job.RelevancyScore,
		ResumeTailored: tailored,
		Portal:         job.SourcePortal,
	}
	if err := h.store.CreateApplication(ctx, &app); err != nil {
		return domain.NewRetryableError(err)
	}
	metrics.ApplicationsSubmitted.WithLabelValues("rejected").Inc()

	h.auditor.Record(ctx, domain.AuditEntry{
		Event:     "application.rejected",
		UserID:    req.UserID,
		RequestID: req.RequestID,
		Detail:    fmt.Sprintf("job=%s reason=%s", req.JobID, reason),
	})
	logger.Warn("Portal rejected application",
		slog.String("reason", reason),
	)
	return nil
}

// scheduleFollowUp enqueues a delayed reminder. Best-effort: a lost reminder
// is not worth failing a submitted application over.
func (h *Handler) scheduleFollowUp(ctx context.Context, userID string, app domain.Application, logger *slog.Logger) {
	days := defaultFollowUpDays
	if settings, err := h.store.GetAutoApplySettings(ctx, userID); err == nil && settings.FollowUpSchedule.InitialDays > 0 {
		days = settings.FollowUpSchedule.InitialDays
	}

	delay := time.Duration(days) * 24 * time.Hour
	reminder := domain.FollowUpReminder{
		UserID:        userID,
		ApplicationID: app.ID,
		Type:          domain.FollowUpTypeInitial,
		ScheduledDate: h.now().UTC().Add(delay),
	}
	body, err := json.Marshal(reminder)
	if err != nil {
		logger.Warn("Failed to encode follow-up reminder", slog.Any("error", err))
		return
	}
	if _, err := h.queues.Enqueue(ctx, domain.QueueFollowUpReminders, body, queue.EnqueueOptions{Delay: delay}); err != nil {
		logger.Warn("Failed to enqueue follow-up reminder", slog.Any("error", err))
	}
}
