package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applyflow/applyflow-be/internal/domain"
	"github.com/applyflow/applyflow-be/internal/queue"
)

type fakeStore struct {
	settings    map[string]domain.AutoApplySettings
	todayCounts map[string]int
	updatedAt   map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		settings:    make(map[string]domain.AutoApplySettings),
		todayCounts: make(map[string]int),
		updatedAt:   make(map[string]time.Time),
	}
}

func (f *fakeStore) ListActiveSettings(ctx context.Context) ([]domain.AutoApplySettings, error) {
	var out []domain.AutoApplySettings
	for _, st := range f.settings {
		if st.IsEnabled {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAutoApplySettings(ctx context.Context, userID string) (domain.AutoApplySettings, error) {
	return f.settings[userID], nil
}

func (f *fakeStore) CountTodayApplications(ctx context.Context, userID string) (int, error) {
	return f.todayCounts[userID], nil
}

func (f *fakeStore) UpdateLastSearchAt(ctx context.Context, userID string, at time.Time) error {
	f.updatedAt[userID] = at
	return nil
}

func TestDecide(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cfg := Config{Cadence: 4 * time.Hour, BackpressureThreshold: 100}

	base := domain.AutoApplySettings{
		UserID:                "user-1",
		IsEnabled:             true,
		DailyApplicationLimit: 10,
		LastSearchAt:          now.Add(-1 * time.Hour),
	}

	tests := []struct {
		name       string
		mutate     func(*domain.AutoApplySettings)
		todayCount int
		queueDepth int64
		want       bool
		wantReason string
	}{
		{
			name:       "disabled user never scheduled",
			mutate:     func(s *domain.AutoApplySettings) { s.IsEnabled = false },
			want:       false,
			wantReason: ReasonDisabled,
		},
		{
			name:       "never searched before",
			mutate:     func(s *domain.AutoApplySettings) { s.LastSearchAt = time.Time{} },
			want:       true,
			wantReason: ReasonCadenceElapsed,
		},
		{
			name:       "cadence elapsed",
			mutate:     func(s *domain.AutoApplySettings) { s.LastSearchAt = now.Add(-5 * time.Hour) },
			want:       true,
			wantReason: ReasonCadenceElapsed,
		},
		{
			name: "cadence elapsed wins over exhausted quota",
			mutate: func(s *domain.AutoApplySettings) {
				s.LastSearchAt = now.Add(-5 * time.Hour)
			},
			todayCount: 10,
			want:       true,
			wantReason: ReasonCadenceElapsed,
		},
		{
			name:       "quota exhausted before next cadence",
			todayCount: 10,
			want:       false,
			wantReason: ReasonQuotaExhausted,
		},
		{
			name:       "backpressure",
			queueDepth: 101,
			want:       false,
			wantReason: ReasonBackpressure,
		},
		{
			name:       "not due yet",
			queueDepth: 100,
			want:       false,
			wantReason: ReasonNotDue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := base
			if tt.mutate != nil {
				tt.mutate(&settings)
			}
			got, reason := Decide(settings, tt.todayCount, tt.queueDepth, cfg, now)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestTickSchedulesDueUsersOnly(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	store := newFakeStore()
	store.settings["due"] = domain.AutoApplySettings{
		UserID:                "due",
		IsEnabled:             true,
		DailyApplicationLimit: 5,
		AutoApplyThreshold:    80,
		LastSearchAt:          now.Add(-6 * time.Hour),
		Filters:               domain.SearchFilters{Keywords: []string{"golang"}},
	}
	store.settings["recent"] = domain.AutoApplySettings{
		UserID:                "recent",
		IsEnabled:             true,
		DailyApplicationLimit: 5,
		LastSearchAt:          now.Add(-10 * time.Minute),
	}

	q := queue.NewMemoryService(5)
	s := New(Config{
		TickInterval:          time.Minute,
		Cadence:               4 * time.Hour,
		BackpressureThreshold: 100,
		JitterMax:             time.Millisecond,
	}, store, q, slog.New(slog.DiscardHandler))
	s.now = func() time.Time { return now }

	s.Tick(ctx)

	length, err := q.Length(ctx, domain.QueueSearchJobs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length, "only the due user gets a search")

	_, ok := store.updatedAt["due"]
	assert.True(t, ok, "last_search_at should advance for the scheduled user")
	_, ok = store.updatedAt["recent"]
	assert.False(t, ok)
}

func TestTriggerSearchImmediate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	store := newFakeStore()
	store.settings["user-1"] = domain.AutoApplySettings{
		UserID:                "user-1",
		IsEnabled:             true,
		DailyApplicationLimit: 5,
		AutoApplyThreshold:    75,
		LastSearchAt:          now.Add(-time.Minute), // cadence not elapsed
	}
	store.todayCounts["user-1"] = 5 // quota exhausted too

	q := queue.NewMemoryService(5)
	s := New(Config{Cadence: 4 * time.Hour, JitterMax: time.Minute}, store, q, slog.New(slog.DiscardHandler))
	s.now = func() time.Time { return now }

	filters := &domain.SearchFilters{Keywords: []string{"platform engineer"}}
	requestID, err := s.TriggerSearch(ctx, "user-1", filters, true)
	require.NoError(t, err, "immediate triggers bypass cadence, quota and backpressure")
	require.NotEmpty(t, requestID)

	msgs, err := q.Receive(ctx, domain.QueueSearchJobs, queue.ReceiveOptions{MaxMessages: 1, VisibilityTimeout: time.Minute})
	require.NoError(t, err)
	require.Len(t, msgs, 1, "immediate trigger enqueues with zero delay")

	var req domain.SearchRequest
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &req))
	assert.Equal(t, requestID, req.RequestID)
	assert.Equal(t, "user-1", req.UserID)
	assert.Equal(t, []string{"platform engineer"}, req.Filters.Keywords)
	assert.Equal(t, 75, req.AutoApplyThreshold)
}

func TestTriggerSearchRespectsRulesWhenNotImmediate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	store := newFakeStore()
	store.settings["user-1"] = domain.AutoApplySettings{
		UserID:                "user-1",
		IsEnabled:             true,
		DailyApplicationLimit: 5,
		LastSearchAt:          now.Add(-time.Minute),
	}
	store.todayCounts["user-1"] = 5

	q := queue.NewMemoryService(5)
	s := New(Config{Cadence: 4 * time.Hour, JitterMax: time.Minute}, store, q, slog.New(slog.DiscardHandler))
	s.now = func() time.Time { return now }

	_, err := s.TriggerSearch(ctx, "user-1", nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ReasonQuotaExhausted)
}
