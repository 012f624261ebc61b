package dto

import "github.com/applyflow/applyflow-be/internal/domain"

type TriggerSearchRequest struct {
	UserID    string                `json:"user_id" binding:"required"`
	Filters   *domain.SearchFilters `json:"filters"`
	Immediate bool                  `json:"immediate"`
}

// TriggerSearchResponse acknowledges that a search was queued. Results
// arrive asynchronously; there is no synchronous search result.
type TriggerSearchResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type ListDiscoveriesRequest struct {
	UserID   string `form:"user_id" binding:"required"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type DiscoveryDTO struct {
	Job          domain.JobListing `json:"job"`
	DiscoveredAt string            `json:"discovered_at"`
}

type ListDiscoveriesResponse struct {
	Discoveries []DiscoveryDTO `json:"discoveries"`
	NextCursor  string         `json:"next_cursor,omitempty"`
}

type ListApplicationsRequest struct {
	UserID   string `form:"user_id" binding:"required"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ApplicationDTO struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	JobID           string `json:"job_id"`
	Status          string `json:"status"`
	AppliedAt       string `json:"applied_at"`
	RelevancyScore  int    `json:"relevancy_score"`
	CoverLetterUsed bool   `json:"cover_letter_used"`
	ResumeTailored  bool   `json:"resume_tailored"`
	Portal          string `json:"portal"`
}

type ListApplicationsResponse struct {
	Applications []ApplicationDTO `json:"applications"`
	NextCursor   string           `json:"next_cursor,omitempty"`
}

type QueueStatsResponse struct {
	Queue string `json:"queue"`
	Depth int64  `json:"depth"`
}
