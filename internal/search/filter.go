package search

import (
	"strings"
	"time"

	"github.com/applyflow/applyflow-be/internal/domain"
)

// Posted-within windows accepted in search filters.
const (
	PostedPast24Hours = "past-24-hours"
	PostedPastWeek    = "past-week"
	PostedPastMonth   = "past-month"
)

// MatchesFilters reports whether a listing passes every populated filter.
// Empty filter fields always pass, so filters only ever narrow the result
// set: adding a field can remove listings but never add them.
func MatchesFilters(job domain.JobListing, filters domain.SearchFilters, now time.Time) bool {
	return matchesKeywords(job, filters.Keywords) &&
		matchesLocation(job, filters.Location) &&
		matchesExact(job.JobType, filters.JobType) &&
		matchesExact(job.WorkArrangement, filters.WorkArrangement) &&
		matchesPostedWithin(job, filters.PostedWithin, now)
}

// matchesKeywords passes when any keyword appears in the title, description
// or requirements (OR semantics, case-insensitive).
func matchesKeywords(job domain.JobListing, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}

	var b strings.Builder
	b.WriteString(job.Title)
	b.WriteString(" ")
	b.WriteString(job.Description)
	for _, req := range job.Requirements {
		b.WriteString(" ")
		b.WriteString(req)
	}
	haystack := strings.ToLower(b.String())

	for _, kw := range keywords {
		kw = strings.TrimSpace(strings.ToLower(kw))
		if kw != "" && strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// matchesLocation passes on a substring match against the job location. The
// literal filter "remote" additionally accepts any job whose work
// arrangement is remote, regardless of the office it is nominally tied to.
func matchesLocation(job domain.JobListing, location string) bool {
	location = strings.TrimSpace(strings.ToLower(location))
	if location == "" {
		return true
	}
	if location == "remote" && strings.EqualFold(job.WorkArrangement, "remote") {
		return true
	}
	return strings.Contains(strings.ToLower(job.Location), location)
}

func matchesExact(got, want string) bool {
	if want == "" {
		return true
	}
	return strings.EqualFold(got, want)
}

// matchesPostedWithin passes when the posting date falls inside the window.
// Unknown window names and listings without a posting date pass.
func matchesPostedWithin(job domain.JobListing, window string, now time.Time) bool {
	if window == "" || job.PostedDate.IsZero() {
		return true
	}

	var cutoff time.Duration
	switch window {
	case PostedPast24Hours:
		cutoff = 24 * time.Hour
	case PostedPastWeek:
		cutoff = 7 * 24 * time.Hour
	case PostedPastMonth:
		cutoff = 30 * 24 * time.Hour
	default:
		return true
	}
	return now.Sub(job.PostedDate) <= cutoff
}
