package domain

import "errors"

var (
	// ErrProfileNotFound is returned when a user profile does not exist.
	// Messages referencing a missing profile are permanently failed.
	ErrProfileNotFound = errors.New("user profile not found")

	// ErrInvalidPayload is returned when a queue message body is malformed
	// or missing required fields.
	ErrInvalidPayload = errors.New("invalid message payload")

	// ErrAIUnavailable is returned when the text-generation service is rate
	// limited or unreachable. Callers switch to their deterministic fallback.
	ErrAIUnavailable = errors.New("ai service unavailable")

	// ErrSubmissionRejected is returned when a portal rejects an application
	// for reasons that will not change on retry.
	ErrSubmissionRejected = errors.New("submission rejected by portal")
)

// RetryableError wraps transient errors that should leave the message on the
// queue for redelivery after an in-process retry budget is exhausted.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error.
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is marked transient.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
