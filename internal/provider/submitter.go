package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/applyflow/applyflow-be/internal/domain"
)

// Submission carries everything a portal needs to file an application.
type Submission struct {
	UserID      string             `json:"user_id"`
	Job         domain.JobListing  `json:"job"`
	Profile     domain.UserProfile `json:"profile"`
	CoverLetter string             `json:"cover_letter,omitempty"`
	ResumeText  string             `json:"resume_text"`
}

// SubmissionResult reports the portal's verdict.
type SubmissionResult struct {
	Accepted     bool
	ConfirmantID string
	Reason       string
}

// Submitter files an application with the target portal. Transport errors
// should be wrapped retryable; a rejection is terminal and must be returned
// as domain.ErrSubmissionRejected.
type Submitter interface {
	Submit(ctx context.Context, sub Submission) (SubmissionResult, error)
}

// HTTPSubmitterConfig configures the portal submission endpoint.
type HTTPSubmitterConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// HTTPSubmitter posts applications to a portal webhook.
type HTTPSubmitter struct {
	cfg    HTTPSubmitterConfig
	client *resty.Client
	logger *slog.Logger
}

// NewHTTPSubmitter creates a submitter with a shared HTTP client.
func NewHTTPSubmitter(cfg HTTPSubmitterConfig, logger *slog.Logger) *HTTPSubmitter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSubmitter{
		cfg:    cfg,
		client: resty.New().SetTimeout(timeout),
		logger: logger,
	}
}

// Submit files the application. 4xx responses are terminal rejections; 5xx
// and transport failures are transient.
func (s *HTTPSubmitter) Submit(ctx context.Context, sub Submission) (SubmissionResult, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+s.cfg.APIKey).
		SetBody(sub).
		Post(s.cfg.Endpoint)
	if err != nil {
		return SubmissionResult{}, domain.NewRetryableError(fmt.Errorf("submission request failed: %w", err))
	}

	switch {
	case resp.StatusCode() >= 200 && resp.StatusCode() < 300:
		return SubmissionResult{
			Accepted:     true,
			ConfirmantID: gjson.Get(resp.String(), "confirmation_id").String(),
		}, nil
	case resp.StatusCode() >= 400 && resp.StatusCode() < 500:
		reason := gjson.Get(resp.String(), "reason").String()
		if reason == "" {
			reason = resp.Status()
		}
		s.logger.Warn("Portal rejected application",
			slog.String("user_id", sub.UserID),
			slog.String("job_id", sub.Job.ID),
			slog.String("reason", reason),
		)
		return SubmissionResult{Accepted: false, Reason: reason},
			fmt.Errorf("%w: %s", domain.ErrSubmissionRejected, reason)
	default:
		return SubmissionResult{}, domain.NewRetryableError(
			fmt.Errorf("portal returned %d", resp.StatusCode()))
	}
}

// SimulatedSubmitter accepts every application deterministically. It stands
// in for real portal integrations in local and test environments.
type SimulatedSubmitter struct{}

// Submit always succeeds with a synthetic confirmation id.
func (SimulatedSubmitter) Submit(ctx context.Context, sub Submission) (SubmissionResult, error) {
	return SubmissionResult{
		Accepted:     true,
		ConfirmantID: fmt.Sprintf("sim-%s-%s", sub.UserID, sub.Job.ID),
	}, nil
}
