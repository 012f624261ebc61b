package apply

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applyflow/applyflow-be/internal/ai"
	"github.com/applyflow/applyflow-be/internal/domain"
	"github.com/applyflow/applyflow-be/internal/provider"
	"github.com/applyflow/applyflow-be/internal/queue"
)

type fakeStore struct {
	profile      *domain.UserProfile
	profileErr   error
	settings     domain.AutoApplySettings
	todayCount   int
	applications []domain.Application
	createErr    error
}

func (f *fakeStore) GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func (f *fakeStore) GetAutoApplySettings(ctx context.Context, userID string) (domain.AutoApplySettings, error) {
	return f.settings, nil
}

func (f *fakeStore) CountTodayApplications(ctx context.Context, userID string) (int, error) {
	return f.todayCount, nil
}

func (f *fakeStore) FindApplication(ctx context.Context, userID, jobID string) (*domain.Application, error) {
	for i := len(f.applications) - 1; i >= 0; i-- {
		app := f.applications[i]
		if app.UserID == userID && app.JobID == jobID {
			return &app, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateApplication(ctx context.Context, app *domain.Application) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.applications = append(f.applications, *app)
	return nil
}

type fakeScorer struct{ score int }

func (f *fakeScorer) Score(ctx context.Context, job domain.JobListing, profile domain.UserProfile) int {
	return f.score
}

type fakeGenerator struct {
	response string
	err      error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error) {
	return f.response, f.err
}

type fakeSubmitter struct {
	result      provider.SubmissionResult
	err         error
	submissions []provider.Submission
}

func (f *fakeSubmitter) Submit(ctx context.Context, sub provider.Submission) (provider.SubmissionResult, error) {
	f.submissions = append(f.submissions, sub)
	if f.err != nil {
		return f.result, f.err
	}
	return f.result, nil
}

type fakeNotifier struct {
	submitted []domain.Application
}

func (f *fakeNotifier) NotifyJobsDiscovered(ctx context.Context, userID string, jobs []domain.JobListing) error {
	return nil
}

func (f *fakeNotifier) NotifyApplicationSubmitted(ctx context.Context, userID string, app domain.Application) error {
	f.submitted = append(f.submitted, app)
	return nil
}

type fakeAuditor struct {
	entries []domain.AuditEntry
}

func (f *fakeAuditor) Record(ctx context.Context, entry domain.AuditEntry) {
	f.entries = append(f.entries, entry)
}

type fixture struct {
	store     *fakeStore
	submitter *fakeSubmitter
	notifier  *fakeNotifier
	auditor   *fakeAuditor
	queues    *queue.MemoryService
	handler   *Handler
}

func newFixture(gen ai.TextGenerator) *fixture {
	store := &fakeStore{
		profile: &domain.UserProfile{
			UserID:          "user-1",
			FullName:        "Dana Smith",
			Title:           "Backend Engineer",
			Skills:          []string{"Go", "PostgreSQL"},
			YearsExperience: 6,
			ResumeText:      "original resume",
		},
		settings: domain.AutoApplySettings{
			UserID:                "user-1",
			IsEnabled:             true,
			DailyApplicationLimit: 5,
			AutoApplyThreshold:    75,
			FollowUpSchedule:      domain.FollowUpSchedule{InitialDays: 3},
		},
	}
	submitter := &fakeSubmitter{result: provider.SubmissionResult{Accepted: true, ConfirmantID: "conf-1"}}
	notifier := &fakeNotifier{}
	auditor := &fakeAuditor{}
	q := queue.NewMemoryService(5)

	h := NewHandler(store, &fakeScorer{score: 80}, gen, submitter, q, notifier, auditor, slog.New(slog.DiscardHandler))
	return &fixture{store: store, submitter: submitter, notifier: notifier, auditor: auditor, queues: q, handler: h}
}

func applyMessage(t *testing.T, req domain.ApplyRequest) queue.Message {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return queue.Message{ID: "m1", Payload: body, Receipt: "r1", Attempts: 1}
}

func baseRequest() domain.ApplyRequest {
	return domain.ApplyRequest{
		UserID:    "user-1",
		JobID:     "adzuna:42",
		RequestID: "req-1",
		AutoApply: true,
		JobListing: domain.JobListing{
			ID:             "adzuna:42",
			Title:          "Senior Go Engineer",
			Company:        "Acme",
			SourcePortal:   "adzuna",
			RelevancyScore: 88,
		},
	}
}

func TestHandleSubmitsAndRecordsApplication(t *testing.T) {
	f := newFixture(&fakeGenerator{response: "Generated letter"})

	err := f.handler.Handle(context.Background(), applyMessage(t, baseRequest()))
	require.NoError(t, err)

	require.Len(t, f.store.applications, 1)
	app := f.store.applications[0]
	assert.Equal(t, domain.ApplicationStatusSubmitted, app.Status)
	assert.Equal(t, 88, app.RelevancyScore)
	assert.True(t, app.CoverLetterUsed)
	assert.True(t, app.ResumeTailored)
	assert.Equal(t, "adzuna", app.Portal)

	require.Len(t, f.submitter.submissions, 1)
	assert.Equal(t, "Generated letter", f.submitter.submissions[0].CoverLetter)

	require.Len(t, f.notifier.submitted, 1)

	// A follow-up reminder is queued with a delay, so it counts in the
	// queue length but is not yet receivable.
	length, err := f.queues.Length(context.Background(), domain.QueueFollowUpReminders)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
	msgs, err := f.queues.Receive(context.Background(), domain.QueueFollowUpReminders, queue.ReceiveOptions{MaxMessages: 1, VisibilityTimeout: time.Minute})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHandleDuplicateDeliverySkips(t *testing.T) {
	f := newFixture(&fakeGenerator{response: "letter"})
	req := baseRequest()

	require.NoError(t, f.handler.Handle(context.Background(), applyMessage(t, req)))
	require.Len(t, f.store.applications, 1)

	// Same message delivered again: no second submission, no second row.
	require.NoError(t, f.handler.Handle(context.Background(), applyMessage(t, req)))
	assert.Len(t, f.store.applications, 1)
	assert.Len(t, f.submitter.submissions, 1)
}

func TestHandleRetriesAfterFailedApplication(t *testing.T) {
	f := newFixture(&fakeGenerator{response: "letter"})
	f.store.applications = append(f.store.applications, domain.Application{
		ID:     "old",
		UserID: "user-1",
		JobID:  "adzuna:42",
		Status: domain.ApplicationStatusFailed,
	})

	require.NoError(t, f.handler.Handle(context.Background(), applyMessage(t, baseRequest())))
	assert.Len(t, f.submitter.submissions, 1, "failed applications do not block a retry")
	assert.Len(t, f.store.applications, 2)
}

func TestHandleRevalidationSkips(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fixture, *domain.ApplyRequest)
	}{
		{
			name: "auto-apply disabled since fan-out",
			mutate: func(f *fixture, req *domain.ApplyRequest) {
				f.store.settings.IsEnabled = false
			},
		},
		{
			name: "score below current threshold",
			mutate: func(f *fixture, req *domain.ApplyRequest) {
				f.store.settings.AutoApplyThreshold = 95
			},
		},
		{
			name: "quota filled while queued",
			mutate: func(f *fixture, req *domain.ApplyRequest) {
				f.store.todayCount = 5
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(&fakeGenerator{response: "letter"})
			req := baseRequest()
			tt.mutate(f, &req)

			require.NoError(t, f.handler.Handle(context.Background(), applyMessage(t, req)))
			assert.Empty(t, f.submitter.submissions)
			assert.Empty(t, f.store.applications)
		})
	}
}

func TestHandleManualRequestBypassesRevalidation(t *testing.T) {
	f := newFixture(&fakeGenerator{response: "letter"})
	f.store.settings.IsEnabled = false

	req := baseRequest()
	req.AutoApply = false

	require.NoError(t, f.handler.Handle(context.Background(), applyMessage(t, req)))
	assert.Len(t, f.submitter.submissions, 1)
}

func TestHandleRecomputesMissingScore(t *testing.T) {
	f := newFixture(&fakeGenerator{response: "letter"})

	req := baseRequest()
	req.JobListing.RelevancyScore = 0

	require.NoError(t, f.handler.Handle(context.Background(), applyMessage(t, req)))
	require.Len(t, f.store.applications, 1)
	assert.Equal(t, 80, f.store.applications[0].RelevancyScore)
}

func TestHandleRejectionRecordsFailureAndCompletes(t *testing.T) {
	f := newFixture(&fakeGenerator{response: "letter"})
	f.submitter.err = domain.ErrSubmissionRejected
	f.submitter.result = provider.SubmissionResult{Reason: "position filled"}

	err := f.handler.Handle(context.Background(), applyMessage(t, baseRequest()))
	require.NoError(t, err, "terminal rejections complete the message")

	require.Len(t, f.store.applications, 1)
	assert.Equal(t, domain.ApplicationStatusFailed, f.store.applications[0].Status)
	assert.Empty(t, f.notifier.submitted)
}

func TestHandleTransientSubmitErrorPropagates(t *testing.T) {
	f := newFixture(&fakeGenerator{response: "letter"})
	f.submitter.err = domain.NewRetryableError(errors.New("portal 503"))

	err := f.handler.Handle(context.Background(), applyMessage(t, baseRequest()))
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.Empty(t, f.store.applications, "nothing recorded until the portal answers")
}

func TestHandleAIFailureFallsBackToTemplate(t *testing.T) {
	f := newFixture(&fakeGenerator{err: domain.ErrAIUnavailable})

	require.NoError(t, f.handler.Handle(context.Background(), applyMessage(t, baseRequest())))
	require.Len(t, f.store.applications, 1)
	app := f.store.applications[0]
	assert.True(t, app.CoverLetterUsed, "template letter still attached")
	assert.False(t, app.ResumeTailored)

	require.Len(t, f.submitter.submissions, 1)
	assert.Contains(t, f.submitter.submissions[0].CoverLetter, "Dana Smith")
	assert.Equal(t, "original resume", f.submitter.submissions[0].ResumeText)
}

func TestHandleInvalidPayloadIsFatal(t *testing.T) {
	f := newFixture(nil)

	err := f.handler.Handle(context.Background(), queue.Message{Payload: []byte("{")})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	err = f.handler.Handle(context.Background(), applyMessage(t, domain.ApplyRequest{UserID: "user-1"}))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}
