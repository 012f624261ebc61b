package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applyflow/applyflow-be/internal/domain"
	"github.com/applyflow/applyflow-be/internal/provider"
	"github.com/applyflow/applyflow-be/internal/queue"
)

type fakeSource struct {
	name     string
	listings []domain.JobListing
	err      error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Search(ctx context.Context, filters domain.SearchFilters) ([]domain.JobListing, error) {
	return f.listings, f.err
}

type fakeStore struct {
	profile    *domain.UserProfile
	profileErr error
	todayCount int
	upserted   []domain.JobListing
}

func (f *fakeStore) GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func (f *fakeStore) UpsertDiscoveries(ctx context.Context, userID string, jobs []domain.JobListing) error {
	f.upserted = append(f.upserted, jobs...)
	return nil
}

func (f *fakeStore) CountTodayApplications(ctx context.Context, userID string) (int, error) {
	return f.todayCount, nil
}

// fakeScorer scores by a fixed map, defaulting to 50.
type fakeScorer struct {
	scores map[string]int
}

func (f *fakeScorer) Score(ctx context.Context, job domain.JobListing, profile domain.UserProfile) int {
	if score, ok := f.scores[job.ID]; ok {
		return score
	}
	return 50
}

type fakeNotifier struct {
	discovered [][]domain.JobListing
	submitted  []domain.Application
}

func (f *fakeNotifier) NotifyJobsDiscovered(ctx context.Context, userID string, jobs []domain.JobListing) error {
	f.discovered = append(f.discovered, jobs)
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

func listing(id string, title string) domain.JobListing {
	return domain.JobListing{
		ID:           id,
		Title:        title,
		Company:      "Acme",
		Location:     "Remote",
		JobType:      "full-time",
		Description:  "Go services",
		Requirements: []string{"Go"},
		PostedDate:   time.Now().Add(-2 * time.Hour),
		SourcePortal: "adzuna",
	}
}

func profile() *domain.UserProfile {
	return &domain.UserProfile{
		UserID:     "user-1",
		FullName:   "Dana Smith",
		Title:      "Backend Engineer",
		Skills:     []string{"Go"},
		ResumeText: "resume",
	}
}

func searchMessage(t *testing.T, req domain.SearchRequest) queue.Message {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return queue.Message{ID: "m1", Payload: body, Receipt: "r1", Attempts: 1}
}

func newHandler(sources []provider.Source, fallback provider.Source, sc Scorer, store *fakeStore, q queue.Service) (*Handler, *fakeNotifier, *fakeAuditor) {
	notifier := &fakeNotifier{}
	auditor := &fakeAuditor{}
	h := NewHandler(sources, fallback, sc, store, q, notifier, auditor, slog.New(slog.DiscardHandler))
	h.delayFn = func() time.Duration { return 0 }
	return h, notifier, auditor
}

func TestHandleInvalidPayloadIsFatal(t *testing.T) {
	store := &fakeStore{profile: profile()}
	h, _, _ := newHandler(nil, nil, &fakeScorer{}, store, queue.NewMemoryService(5))

	err := h.Handle(context.Background(), queue.Message{Payload: []byte("not json")})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestHandleMissingProfileIsFatal(t *testing.T) {
	store := &fakeStore{profileErr: domain.ErrProfileNotFound}
	h, _, _ := newHandler(nil, nil, &fakeScorer{}, store, queue.NewMemoryService(5))

	err := h.Handle(context.Background(), searchMessage(t, domain.SearchRequest{
		UserID:    "user-1",
		RequestID: "req-1",
	}))
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestHandleFailingSourceSkippedFallbackUsed(t *testing.T) {
	store := &fakeStore{profile: profile()}
	q := queue.NewMemoryService(5)

	broken := &fakeSource{name: "adzuna", err: errors.New("upstream 500")}
	fallback := provider.NewStaticSource([]domain.JobListing{listing("static:1", "Go Engineer")})

	h, notifier, _ := newHandler([]provider.Source{broken}, fallback, &fakeScorer{}, store, q)

	err := h.Handle(context.Background(), searchMessage(t, domain.SearchRequest{
		UserID:    "user-1",
		RequestID: "req-1",
	}))
	require.NoError(t, err)

	require.Len(t, store.upserted, 1)
	assert.Equal(t, provider.SourcedFromFallback, store.upserted[0].SourcedFrom)
	require.Len(t, notifier.discovered, 1)
}

func TestHandleScoresFiltersAndSorts(t *testing.T) {
	store := &fakeStore{profile: profile()}
	q := queue.NewMemoryService(5)

	src := &fakeSource{name: "adzuna", listings: []domain.JobListing{
		listing("j-low", "Go Engineer"),
		listing("j-high", "Senior Go Engineer"),
		listing("j-cut", "Go Intern"),
	}}
	sc := &fakeScorer{scores: map[string]int{"j-low": 60, "j-high": 90, "j-cut": 20}}

	h, _, _ := newHandler([]provider.Source{src}, nil, sc, store, q)

	err := h.Handle(context.Background(), searchMessage(t, domain.SearchRequest{
		UserID:    "user-1",
		RequestID: "req-1",
		Filters:   domain.SearchFilters{MinimumRelevancyScore: 40},
	}))
	require.NoError(t, err)

	require.Len(t, store.upserted, 2, "below-minimum listing is dropped")
	assert.Equal(t, "j-high", store.upserted[0].ID, "sorted highest score first")
	assert.Equal(t, "j-low", store.upserted[1].ID)
	assert.Equal(t, []string{"Go"}, store.upserted[0].MatchedSkills)
}

func TestHandleFanOutCappedByRemainingQuota(t *testing.T) {
	store := &fakeStore{profile: profile(), todayCount: 3}
	q := queue.NewMemoryService(5)

	var listings []domain.JobListing
	scores := map[string]int{}
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("j-%d", i)
		listings = append(listings, listing(id, "Go Engineer"))
		scores[id] = 80 + i // all above threshold, j-5 highest
	}
	src := &fakeSource{name: "adzuna", listings: listings}

	h, _, _ := newHandler([]provider.Source{src}, nil, &fakeScorer{scores: scores}, store, q)

	// Daily limit 5, 3 already submitted today: only 2 slots remain.
	err := h.Handle(context.Background(), searchMessage(t, domain.SearchRequest{
		UserID:             "user-1",
		RequestID:          "req-1",
		AutoApply:          true,
		AutoApplyThreshold: 75,
		DailyLimit:         5,
	}))
	require.NoError(t, err)

	msgs, err := q.Receive(context.Background(), domain.QueueProcessApplications, queue.ReceiveOptions{
		MaxMessages:       10,
		VisibilityTimeout: time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2, "fan-out must not exceed remaining quota")

	var got []string
	for _, msg := range msgs {
		var apply domain.ApplyRequest
		require.NoError(t, json.Unmarshal(msg.Payload, &apply))
		assert.True(t, apply.AutoApply)
		got = append(got, apply.JobID)
	}
	assert.ElementsMatch(t, []string{"j-5", "j-4"}, got, "highest scores first")
}

func TestHandleNoFanOutBelowThreshold(t *testing.T) {
	store := &fakeStore{profile: profile()}
	q := queue.NewMemoryService(5)

	src := &fakeSource{name: "adzuna", listings: []domain.JobListing{listing("j-1", "Go Engineer")}}
	h, _, auditor := newHandler([]provider.Source{src}, nil, &fakeScorer{scores: map[string]int{"j-1": 60}}, store, q)

	err := h.Handle(context.Background(), searchMessage(t, domain.SearchRequest{
		UserID:             "user-1",
		RequestID:          "req-1",
		AutoApply:          true,
		AutoApplyThreshold: 75,
		DailyLimit:         5,
	}))
	require.NoError(t, err)

	length, err := q.Length(context.Background(), domain.QueueProcessApplications)
	require.NoError(t, err)
	assert.Zero(t, length)
	require.NotEmpty(t, auditor.entries)
	assert.Equal(t, "search.completed", auditor.entries[0].Event)
}
