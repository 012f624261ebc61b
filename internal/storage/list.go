package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/applyflow/applyflow-be/internal/domain"
)

// Cursor points past the last row of a page, for keyset pagination.
type Cursor struct {
	At time.Time
	ID string
}

// DiscoveryRecord is a persisted, scored listing.
type DiscoveryRecord struct {
	UserID       string
	Listing      domain.JobListing
	DiscoveredAt time.Time
}

// ListDiscoveries returns a user's discoveries newest-first. Pass a cursor
// from a previous page to continue; one extra row is fetched so callers can
// detect whether more pages exist.
func (s *Storage) ListDiscoveries(ctx context.Context, userID string, pageSize int, cursor *Cursor) ([]DiscoveryRecord, error) {
	query := `
		SELECT user_id, job_id, listing, discovered_at
		FROM discoveries
		WHERE user_id = $1
	`
	args := []interface{}{userID}
	argIdx := 2

	if cursor != nil {
		query += fmt.Sprintf(" AND (discovered_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, cursor.At, cursor.ID)
		argIdx += 2
	}

	query += " ORDER BY discovered_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, pageSize+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list discoveries: %w", err)
	}
	defer rows.Close()

	var records []DiscoveryRecord
	for rows.Next() {
		var rec DiscoveryRecord
		var jobID string
		var listing []byte
		if err := rows.Scan(&rec.UserID, &jobID, &listing, &rec.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan discovery: %w", err)
		}
		if err := json.Unmarshal(listing, &rec.Listing); err != nil {
			return nil, fmt.Errorf("failed to decode listing %s: %w", jobID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListApplications returns a user's applications newest-first with the same
// keyset pagination scheme as ListDiscoveries.
func (s *Storage) ListApplications(ctx context.Context, userID string, pageSize int, cursor *Cursor) ([]domain.Application, error) {
	query := `
		SELECT id, user_id, job_id, status, applied_at,
		       relevancy_score, cover_letter_used, resume_tailored, portal
		FROM applications
		WHERE user_id = $1
	`
	args := []interface{}{userID}
	argIdx := 2

	if cursor != nil {
		query += fmt.Sprintf(" AND (applied_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, cursor.At, cursor.ID)
		argIdx += 2
	}

	query += " ORDER BY applied_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, pageSize+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		var app domain.Application
		if err := rows.Scan(
			&app.ID,
			&app.UserID,
			&app.JobID,
			&app.Status,
			&app.AppliedAt,
			&app.RelevancyScore,
			&app.CoverLetterUsed,
			&app.ResumeTailored,
			&app.Portal,
		); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}
