package domain

import "time"

// SearchFilters narrows which job listings a search considers.
// Every field is optional; a zero value means the predicate passes.
type SearchFilters struct {
	Keywords              []string `json:"keywords,omitempty"`
	Location              string   `json:"location,omitempty"`
	JobType               string   `json:"job_type,omitempty"`
	WorkArrangement       string   `json:"work_arrangement,omitempty"`
	PostedWithin          string   `json:"posted_within,omitempty"` // past-24-hours, past-week, past-month
	MinimumRelevancyScore int      `json:"minimum_relevancy_score,omitempty"`
}

// SearchRequest is the message consumed from the search-jobs queue.
// Delivery is at-least-once; consumers must be idempotent by RequestID.
type SearchRequest struct {
	UserID             string        `json:"user_id"`
	Filters            SearchFilters `json:"filters"`
	RequestID          string        `json:"request_id"`
	RequestedAt        time.Time     `json:"requested_at"`
	Priority           string        `json:"priority,omitempty"`
	AutoApply          bool          `json:"auto_apply,omitempty"`
	AutoApplyThreshold int           `json:"auto_apply_threshold,omitempty"`
	DailyLimit         int           `json:"daily_limit,omitempty"`
}

// JobListing is a job discovered from a source, enriched with a relevancy
// score and skill breakdown by the search worker. Immutable once persisted.
type JobListing struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Company         string    `json:"company"`
	Location        string    `json:"location"`
	SalaryRange     string    `json:"salary_range,omitempty"`
	JobType         string    `json:"job_type"`
	WorkArrangement string    `json:"work_arrangement"`
	Description     string    `json:"description"`
	Requirements    []string  `json:"requirements"`
	PostedDate      time.Time `json:"posted_date"`
	SourcePortal    string    `json:"source_portal"`
	SourcedFrom     string    `json:"sourced_from,omitempty"` // "fallback" when the static provider produced it
	RelevancyScore  int       `json:"relevancy_score,omitempty"`
	MatchedSkills   []string  `json:"matched_skills,omitempty"`
	MissingSkills   []string  `json:"missing_skills,omitempty"`
}

// ApplyRequest is the message consumed from the process-applications queue.
type ApplyRequest struct {
	UserID     string     `json:"user_id"`
	JobID      string     `json:"job_id"`
	JobListing JobListing `json:"job_listing"`
	RequestID  string     `json:"request_id"`
	AutoApply  bool       `json:"auto_apply"`
	QueuedAt   time.Time  `json:"queued_at"`
}

// Application statuses. At most one non-failed application may exist
// per (user, job) pair.
const (
	ApplicationStatusSubmitted = "SUBMITTED"
	ApplicationStatusFailed    = "FAILED"
)

// Application records a submitted application.
type Application struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	JobID           string    `json:"job_id"`
	Status          string    `json:"status"`
	AppliedAt       time.Time `json:"applied_at"`
	RelevancyScore  int       `json:"relevancy_score"`
	CoverLetterUsed bool      `json:"cover_letter_used"`
	ResumeTailored  bool      `json:"resume_tailored"`
	Portal          string    `json:"portal"`
}

// FollowUpSchedule configures when reminders fire after a submission.
type FollowUpSchedule struct {
	InitialDays int `json:"initial_days"`
}

// AutoApplySettings is owned by the user profile and read-only to the
// pipeline, except for LastSearchAt which the scheduler advances.
type AutoApplySettings struct {
	UserID                string           `json:"user_id"`
	IsEnabled             bool             `json:"is_enabled"`
	Filters               SearchFilters    `json:"filters"`
	DailyApplicationLimit int              `json:"daily_application_limit"`
	AutoApplyThreshold    int              `json:"auto_apply_threshold"`
	FollowUpSchedule      FollowUpSchedule `json:"follow_up_schedule"`
	LastSearchAt          time.Time        `json:"last_search_at"`
}

// FollowUpReminder is enqueued with a delay onto follow-up-reminders and
// consumed by an out-of-scope follow-up worker.
type FollowUpReminder struct {
	UserID        string    `json:"user_id"`
	ApplicationID string    `json:"application_id"`
	Type          string    `json:"type"`
	ScheduledDate time.Time `json:"scheduled_date"`
}

// UserProfile carries the candidate data used for scoring and for
// generating application materials.
type UserProfile struct {
	UserID          string   `json:"user_id"`
	FullName        string   `json:"full_name"`
	Email           string   `json:"email"`
	Title           string   `json:"title"`
	Skills          []string `json:"skills"`
	YearsExperience int      `json:"years_experience"`
	Summary         string   `json:"summary"`
	ResumeText      string   `json:"resume_text"`
}
