// Package storage is the pipeline's boundary to the document store. It only
// exposes the reads and writes the pipeline needs; schema ownership lives
// with the profile service.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/applyflow/applyflow-be/internal/domain"
	"github.com/applyflow/applyflow-be/shared/postgresql"
)

// Storage handles all database operations for the pipeline.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New creates a Storage instance.
func New(pg *postgresql.Client, logger *slog.Logger) *Storage {
	return &Storage{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// GetUserProfile loads a user's profile. Returns domain.ErrProfileNotFound
// when the user does not exist.
func (s *Storage) GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	query := `
		SELECT user_id, full_name, email, title, skills, years_experience, summary, resume_text
		FROM user_profiles
		WHERE user_id = $1
	`

	var profile domain.UserProfile
	var skills pq.StringArray

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.FullName,
		&profile.Email,
		&profile.Title,
		&skills,
		&profile.YearsExperience,
		&profile.Summary,
		&profile.ResumeText,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	profile.Skills = []string(skills)
	return &profile, nil
}

type settingsRow struct {
	UserID                string       `db:"user_id"`
	IsEnabled             bool         `db:"is_enabled"`
	Filters               []byte       `db:"filters"`
	DailyApplicationLimit int          `db:"daily_application_limit"`
	AutoApplyThreshold    int          `db:"auto_apply_threshold"`
	FollowUpInitialDays   int          `db:"follow_up_initial_days"`
	LastSearchAt          sql.NullTime `db:"last_search_at"`
}

func (r settingsRow) toDomain() (domain.AutoApplySettings, error) {
	settings := domain.AutoApplySettings{
		UserID:                r.UserID,
		IsEnabled:             r.IsEnabled,
		DailyApplicationLimit: r.DailyApplicationLimit,
		AutoApplyThreshold:    r.AutoApplyThreshold,
		FollowUpSchedule:      domain.FollowUpSchedule{InitialDays: r.FollowUpInitialDays},
	}
	if r.LastSearchAt.Valid {
		settings.LastSearchAt = r.LastSearchAt.Time
	}
	if len(r.Filters) > 0 {
		if err := json.Unmarshal(r.Filters, &settings.Filters); err != nil {
			return settings, fmt.Errorf("failed to decode settings filters: %w", err)
		}
	}
	return settings, nil
}

// GetAutoApplySettings loads one user's automation settings.
func (s *Storage) GetAutoApplySettings(ctx context.Context, userID string) (domain.AutoApplySettings, error) {
	query := `
		SELECT user_id, is_enabled, filters, daily_application_limit,
		       auto_apply_threshold, follow_up_initial_days, last_search_at
		FROM auto_apply_settings
		WHERE user_id = $1
	`

	var row settingsRow
	if err := s.db.GetContext(ctx, &row, query, userID); err != nil {
		return domain.AutoApplySettings{}, fmt.Errorf("failed to get auto-apply settings: %w", err)
	}
	return row.toDomain()
}

// ListActiveSettings returns the settings of every user with automation
// enabled, for the scheduler's per-tick sweep.
func (s *Storage) ListActiveSettings(ctx context.Context) ([]domain.AutoApplySettings, error) {
	query := `
		SELECT user_id, is_enabled, filters, daily_application_limit,
		       auto_apply_threshold, follow_up_initial_days, last_search_at
		FROM auto_apply_settings
		WHERE is_enabled = true
		ORDER BY user_id
	`

	var rows []settingsRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list active settings: %w", err)
	}

	settings := make([]domain.AutoApplySettings, 0, len(rows))
	for _, row := range rows {
		st, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		settings = append(settings, st)
	}
	return settings, nil
}

// UpdateLastSearchAt advances the user's last scheduled search time.
func (s *Storage) UpdateLastSearchAt(ctx context.Context, userID string, at time.Time) error {
	query := `
		UPDATE auto_apply_settings
		SET last_search_at = $2, updated_at = NOW()
		WHERE user_id = $1
	`

	if _, err := s.db.ExecContext(ctx, query, userID, at); err != nil {
		return fmt.Errorf("failed to update last_search_at: %w", err)
	}
	return nil
}

// CountTodayApplications counts the user's non-failed applications submitted
// in the current UTC calendar day.
func (s *Storage) CountTodayApplications(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM applications
		WHERE user_id = $1
		  AND status <> $2
		  AND applied_at >= date_trunc('day', now() AT TIME ZONE 'utc')
	`

	var count int
	if err := s.db.GetContext(ctx, &count, query, userID, domain.ApplicationStatusFailed); err != nil {
		return 0, fmt.Errorf("failed to count today's applications: %w", err)
	}
	return count, nil
}

// UpsertDiscoveries persists scored listings for a user, keyed by job id.
// Re-delivered search requests overwrite rather than duplicate.
func (s *Storage) UpsertDiscoveries(ctx context.Context, userID string, jobs []domain.JobListing) error {
	if len(jobs) == 0 {
		return nil
	}

	query := `
		INSERT INTO discoveries (user_id, job_id, title, company, relevancy_score, listing, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id, job_id) DO UPDATE
		SET relevancy_score = EXCLUDED.relevancy_score,
		    listing = EXCLUDED.listing
	`

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, job := range jobs {
		listing, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to encode listing %s: %w", job.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query,
			userID, job.ID, job.Title, job.Company, job.RelevancyScore, listing,
		); err != nil {
			return fmt.Errorf("failed to upsert discovery %s: %w", job.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit discoveries: %w", err)
	}

	s.logger.Debug("Discoveries persisted",
		slog.String("user_id", userID),
		slog.Int("count", len(jobs)),
	)
	return nil
}

// CreateApplication inserts a new application record.
func (s *Storage) CreateApplication(ctx context.Context, app *domain.Application) error {
	query := `
		INSERT INTO applications (
			id, user_id, job_id, status, applied_at,
			relevancy_score, cover_letter_used, resume_tailored, portal
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		app.ID,
		app.UserID,
		app.JobID,
		app.Status,
		app.AppliedAt,
		app.RelevancyScore,
		app.CoverLetterUsed,
		app.ResumeTailored,
		app.Portal,
	)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// FindApplication returns the newest application for (user, job), or nil
// when none exists.
func (s *Storage) FindApplication(ctx context.Context, userID, jobID string) (*domain.Application, error) {
	query := `
		SELECT id, user_id, job_id, status, applied_at,
		       relevancy_score, cover_letter_used, resume_tailored, portal
		FROM applications
		WHERE user_id = $1 AND job_id = $2
		ORDER BY applied_at DESC
		LIMIT 1
	`

	var app domain.Application
	err := s.db.QueryRowContext(ctx, query, userID, jobID).Scan(
		&app.ID,
		&app.UserID,
		&app.JobID,
		&app.Status,
		&app.AppliedAt,
		&app.RelevancyScore,
		&app.CoverLetterUsed,
		&app.ResumeTailored,
		&app.Portal,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find application: %w", err)
	}
	return &app, nil
}
