package scorer

import (
	"strings"

	"github.com/applyflow/applyflow-be/internal/domain"
)

// MatchSkills splits the profile's skills into those present in the job
// posting and those missing from it. Matching is case-insensitive substring
// containment against the combined title, description and requirements text.
func MatchSkills(skills []string, job domain.JobListing) (matched, missing []string) {
	var b strings.Builder
	b.WriteString(job.Title)
	b.WriteString(" ")
	b.WriteString(job.Description)
	for _, req := range job.Requirements {
		b.WriteString(" ")
		b.WriteString(req)
	}
	haystack := strings.ToLower(b.String())

	for _, skill := range skills {
		trimmed := strings.TrimSpace(skill)
		if trimmed == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(trimmed)) {
			matched = append(matched, skill)
		} else {
			missing = append(missing, skill)
		}
	}
	return matched, missing
}
