package apply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/applyflow/applyflow-be/internal/ai"
	"github.com/applyflow/applyflow-be/internal/domain"
	"github.com/applyflow/applyflow-be/internal/metrics"
)

// generateCoverLetter asks the model for a short cover letter and falls back
// to a deterministic template when the model is unavailable. The fallback
// keeps submissions flowing; material quality degrades, delivery does not.
func (h *Handler) generateCoverLetter(ctx context.Context, job domain.JobListing, profile domain.UserProfile) string {
	if h.gen != nil {
		letter, err := h.gen.Generate(ctx, buildCoverLetterPrompt(job, profile), ai.GenerateOptions{
			MaxTokens:   512,
			Temperature: 0.7,
		})
		if err == nil && strings.TrimSpace(letter) != "" {
			metrics.AICalls.WithLabelValues("cover-letter", "ok").Inc()
			return strings.TrimSpace(letter)
		}
		metrics.AICalls.WithLabelValues("cover-letter", "fallback").Inc()
		h.logger.Warn("Cover letter generation failed, using template",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}
	return templateCoverLetter(job, profile)
}

// tailorResume rewrites the resume summary toward the job. Returns the
// original resume and false when generation fails.
func (h *Handler) tailorResume(ctx context.Context, job domain.JobListing, profile domain.UserProfile) (string, bool) {
	if h.gen == nil {
		return profile.ResumeText, false
	}

	tailored, err := h.gen.Generate(ctx, buildResumePrompt(job, profile), ai.GenerateOptions{
		MaxTokens:   1024,
		Temperature: 0.4,
	})
	if err != nil || strings.TrimSpace(tailored) == "" {
		metrics.AICalls.WithLabelValues("resume", "fallback").Inc()
		h.logger.Warn("Resume tailoring failed, using original resume",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return profile.ResumeText, false
	}
	metrics.AICalls.WithLabelValues("resume", "ok").Inc()
	return strings.TrimSpace(tailored), true
}

func buildCoverLetterPrompt(job domain.JobListing, profile domain.UserProfile) string {
	var b strings.Builder
	b.WriteString("Write a concise, professional cover letter (max 250 words) for this application.\n\n")
	fmt.Fprintf(&b, "Position: %s at %s\n", job.Title, job.Company)
	fmt.Fprintf(&b, "Job description: %s\n", job.Description)
	if len(job.Requirements) > 0 {
		fmt.Fprintf(&b, "Requirements: %s\n", strings.Join(job.Requirements, "; "))
	}
	b.WriteString("\nCandidate:\n")
	fmt.Fprintf(&b, "Name: %s\n", profile.FullName)
	fmt.Fprintf(&b, "Current title: %s\n", profile.Title)
	fmt.Fprintf(&b, "Skills: %s\n", strings.Join(profile.Skills, ", "))
	fmt.Fprintf(&b, "Experience: %d years\n", profile.YearsExperience)
	fmt.Fprintf(&b, "Summary: %s\n", profile.Summary)
	b.WriteString("\nReturn only the letter body, no subject line or placeholders.")
	return b.String()
}

func buildResumePrompt(job domain.JobListing, profile domain.UserProfile) string {
	var b strings.Builder
	b.WriteString("Rewrite the resume below so the most relevant experience for the target role comes first. ")
	b.WriteString("Do not invent skills or positions.\n\n")
	fmt.Fprintf(&b, "Target role: %s at %s\n", job.Title, job.Company)
	if len(job.Requirements) > 0 {
		fmt.Fprintf(&b, "Role requirements: %s\n", strings.Join(job.Requirements, "; "))
	}
	b.WriteString("\nResume:\n")
	b.WriteString(profile.ResumeText)
	b.WriteString("\n\nReturn only the rewritten resume text.")
	return b.String()
}

func templateCoverLetter(job domain.JobListing, profile domain.UserProfile) string {
	skills := strings.Join(profile.Skills, ", ")
	return fmt.Sprintf(
		"Dear Hiring Team at %s,\n\n"+
			"I am writing to apply for the %s position. With %d years of experience as a %s "+
			"and a background in %s, I believe I would be a strong addition to your team.\n\n"+
			"I would welcome the opportunity to discuss how my experience aligns with your needs.\n\n"+
			"Kind regards,\n%s",
		job.Company, job.Title, profile.YearsExperience, profile.Title, skills, profile.FullName,
	)
}
