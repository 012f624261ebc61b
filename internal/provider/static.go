package provider

import (
	"context"
	"time"

	"github.com/applyflow/applyflow-be/internal/domain"
)

// SourcedFromFallback tags listings produced by the static provider so
// downstream consumers can tell degraded output from real discoveries.
const SourcedFromFallback = "fallback"

// StaticSource serves a fixed set of listings. It is the availability
// fallback used when every configured portal fails or returns nothing.
type StaticSource struct {
	listings []domain.JobListing
}

// NewStaticSource creates the fallback source. When no listings are given a
// small built-in set is served.
func NewStaticSource(listings []domain.JobListing) *StaticSource {
	if len(listings) == 0 {
		listings = defaultListings()
	}
	tagged := make([]domain.JobListing, len(listings))
	for i, l := range listings {
		l.SourcedFrom = SourcedFromFallback
		if l.SourcePortal == "" {
			l.SourcePortal = "static"
		}
		tagged[i] = l
	}
	return &StaticSource{listings: tagged}
}

// Name returns the portal identifier.
func (s *StaticSource) Name() string {
	return "static"
}

// Search returns the full static set; filtering happens downstream like for
// any other source.
func (s *StaticSource) Search(ctx context.Context, filters domain.SearchFilters) ([]domain.JobListing, error) {
	out := make([]domain.JobListing, len(s.listings))
	copy(out, s.listings)
	return out, nil
}

func defaultListings() []domain.JobListing {
	now := time.Now().UTC()
	return []domain.JobListing{
		{
			ID:              "static:backend-go-1",
			Title:           "Backend Engineer (Go)",
			Company:         "Northwind Labs",
			Location:        "Berlin, Germany",
			SalaryRange:     "70000-90000",
			JobType:         "full-time",
			WorkArrangement: "remote",
			Description:     "Build and operate Go microservices. Experience with PostgreSQL, Redis and message queues required.",
			Requirements:    []string{"Go", "PostgreSQL", "Redis"},
			PostedDate:      now.Add(-12 * time.Hour),
			SourcePortal:    "static",
		},
		{
			ID:              "static:platform-eng-1",
			Title:           "Platform Engineer",
			Company:         "Harbor Systems",
			Location:        "Amsterdam, Netherlands",
			SalaryRange:     "65000-85000",
			JobType:         "full-time",
			WorkArrangement: "hybrid",
			Description:     "Kubernetes, Terraform and CI/CD pipelines. On-call rotation, strong Linux fundamentals required.",
			Requirements:    []string{"Kubernetes", "Terraform", "Linux"},
			PostedDate:      now.Add(-3 * 24 * time.Hour),
			SourcePortal:    "static",
		},
		{
			ID:              "static:fullstack-1",
			Title:           "Full Stack Developer",
			Company:         "Quartz Digital",
			Location:        "London, UK",
			JobType:         "contract",
			WorkArrangement: "onsite",
			Description:     "React frontend with a Node.js API layer. TypeScript experience required.",
			Requirements:    []string{"React", "Node.js", "TypeScript"},
			PostedDate:      now.Add(-10 * 24 * time.Hour),
			SourcePortal:    "static",
		},
	}
}
