package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/applyflow/applyflow-be/internal/domain"
)

func sampleJob() domain.JobListing {
	return domain.JobListing{
		ID:              "adzuna:123",
		Title:           "Senior Backend Engineer",
		Company:         "Acme",
		Location:        "Berlin, Germany",
		JobType:         "full-time",
		WorkArrangement: "hybrid",
		Description:     "Build Go services on Kubernetes",
		Requirements:    []string{"Go", "PostgreSQL", "5+ years experience"},
		PostedDate:      time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC),
	}
}

func TestMatchesFilters(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		filters domain.SearchFilters
		mutate  func(*domain.JobListing)
		want    bool
	}{
		{
			name: "empty filters pass everything",
			want: true,
		},
		{
			name:    "keyword in title",
			filters: domain.SearchFilters{Keywords: []string{"backend"}},
			want:    true,
		},
		{
			name:    "keyword in requirements",
			filters: domain.SearchFilters{Keywords: []string{"postgresql"}},
			want:    true,
		},
		{
			name:    "keywords are OR: one hit suffices",
			filters: domain.SearchFilters{Keywords: []string{"haskell", "kubernetes"}},
			want:    true,
		},
		{
			name:    "no keyword hit",
			filters: domain.SearchFilters{Keywords: []string{"haskell", "cobol"}},
			want:    false,
		},
		{
			name:    "location substring match",
			filters: domain.SearchFilters{Location: "berlin"},
			want:    true,
		},
		{
			name:    "location mismatch",
			filters: domain.SearchFilters{Location: "london"},
			want:    false,
		},
		{
			name:    "remote filter accepts remote arrangement anywhere",
			filters: domain.SearchFilters{Location: "remote"},
			mutate:  func(j *domain.JobListing) { j.WorkArrangement = "remote" },
			want:    true,
		},
		{
			name:    "remote filter rejects on-site elsewhere",
			filters: domain.SearchFilters{Location: "remote"},
			mutate:  func(j *domain.JobListing) { j.WorkArrangement = "on-site" },
			want:    false,
		},
		{
			name:    "job type exact match",
			filters: domain.SearchFilters{JobType: "full-time"},
			want:    true,
		},
		{
			name:    "job type mismatch",
			filters: domain.SearchFilters{JobType: "contract"},
			want:    false,
		},
		{
			name:    "work arrangement mismatch",
			filters: domain.SearchFilters{WorkArrangement: "remote"},
			want:    false,
		},
		{
			name:    "posted within 24 hours fails for day-old posting",
			filters: domain.SearchFilters{PostedWithin: PostedPast24Hours},
			want:    false,
		},
		{
			name:    "posted within week passes",
			filters: domain.SearchFilters{PostedWithin: PostedPastWeek},
			want:    true,
		},
		{
			name:    "unknown window passes",
			filters: domain.SearchFilters{PostedWithin: "past-decade"},
			want:    true,
		},
		{
			name:    "missing posted date passes window filter",
			filters: domain.SearchFilters{PostedWithin: PostedPast24Hours},
			mutate:  func(j *domain.JobListing) { j.PostedDate = time.Time{} },
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := sampleJob()
			if tt.mutate != nil {
				tt.mutate(&job)
			}
			assert.Equal(t, tt.want, MatchesFilters(job, tt.filters, now))
		})
	}
}

// Filters may only narrow: whatever passes a populated filter set must also
// pass the empty one.
func TestFiltersOnlyNarrow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	job := sampleJob()

	filters := domain.SearchFilters{
		Keywords:     []string{"backend"},
		Location:     "berlin",
		JobType:      "full-time",
		PostedWithin: PostedPastWeek,
	}
	if MatchesFilters(job, filters, now) {
		assert.True(t, MatchesFilters(job, domain.SearchFilters{}, now))
	}
}
