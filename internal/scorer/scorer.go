// Package scorer ranks job listings against a user profile on a 0-100
// scale. The primary path asks the AI service for a weighted score; when the
// service is unavailable the deterministic keyword-overlap fallback runs
// inline with no retry.
package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/applyflow/applyflow-be/internal/ai"
	"github.com/applyflow/applyflow-be/internal/domain"
)

const (
	// DefaultScore is used when the AI answers with something that is not a
	// score.
	DefaultScore = 50

	// FallbackScoreCap bounds the keyword-overlap fallback so a pure
	// substring match never outranks a strong AI-confirmed fit.
	FallbackScoreCap = 90
)

var scorePattern = regexp.MustCompile(`-?\d+`)

// Scorer computes relevancy scores.
type Scorer struct {
	gen    ai.TextGenerator
	logger *slog.Logger
}

// New creates a Scorer. gen may be nil, in which case only the fallback
// path is used.
func New(gen ai.TextGenerator, logger *slog.Logger) *Scorer {
	return &Scorer{gen: gen, logger: logger}
}

// Score returns a relevancy score in [0,100] for the job against the
// profile. It never returns an error: AI failures degrade to the
// deterministic fallback.
func (s *Scorer) Score(ctx context.Context, job domain.JobListing, profile domain.UserProfile) int {
	matched, _ := MatchSkills(profile.Skills, job)

	if s.gen == nil {
		return FallbackScore(len(matched), len(profile.Skills))
	}

	response, err := s.gen.Generate(ctx, buildScorePrompt(job, profile), ai.GenerateOptions{
		MaxTokens:   16,
		Temperature: 0.1,
	})
	if err != nil {
		s.logger.Warn("AI scoring failed, using keyword-overlap fallback",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return FallbackScore(len(matched), len(profile.Skills))
	}

	return parseScore(response)
}

// FallbackScore is the deterministic, side-effect-free score used when the
// AI service cannot be reached: matched/total skills scaled to 0-100 and
// capped at FallbackScoreCap.
func FallbackScore(matchedCount, totalSkills int) int {
	if totalSkills < 1 {
		totalSkills = 1
	}
	score := matchedCount * 100 / totalSkills
	if score > FallbackScoreCap {
		score = FallbackScoreCap
	}
	return clamp(score)
}

// parseScore extracts the first integer from the AI response. Non-numeric
// answers and answers outside [0,100] count as malformed and default to
// DefaultScore.
func parseScore(response string) int {
	raw := scorePattern.FindString(response)
	if raw == "" {
		return DefaultScore
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > 100 {
		return DefaultScore
	}
	return clamp(n)
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func buildScorePrompt(job domain.JobListing, profile domain.UserProfile) string {
	return fmt.Sprintf(`You are evaluating how well a candidate fits a job posting.
Weight the assessment as follows: 40%% skills overlap, 30%% role alignment,
20%% experience level, 10%% requirements match.

Job title: %s
Company: %s
Description: %s
Requirements: %s

Candidate title: %s
Candidate skills: %s
Years of experience: %d
Summary: %s

Respond with a single integer between 0 and 100 and nothing else.`,
		job.Title,
		job.Company,
		job.Description,
		strings.Join(job.Requirements, ", "),
		profile.Title,
		strings.Join(profile.Skills, ", "),
		profile.YearsExperience,
		profile.Summary,
	)
}
