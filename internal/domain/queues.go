package domain

// Queue names used by the pipeline.
const (
	QueueSearchJobs          = "search-jobs"
	QueueProcessApplications = "process-applications"
	QueueFollowUpReminders   = "follow-up-reminders"
	QueueAutomationLogs      = "automation-logs"
)

// Follow-up reminder types.
const (
	FollowUpTypeInitial = "initial"
)

// AuditEntry is the payload enqueued on the automation-logs queue for every
// notable pipeline event. Consumed by an out-of-scope audit worker.
type AuditEntry struct {
	Event     string `json:"event"`
	UserID    string `json:"user_id"`
	RequestID string `json:"request_id,omitempty"`
	Detail    string `json:"detail,omitempty"`
}
