package catalog

import (
	"fmt"
	"time"
)

// ValidationError is returned for missing or malformed request parameters.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "Rate limit exceeded"
}

// RetryAfterSeconds rounds up so callers never retry early.
func (e *RateLimitError) RetryAfterSeconds() int {
	seconds := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		seconds++
	}
	return seconds
}

// UpstreamStatusError reports a non-2xx upstream page that was not retried
// or kept failing after retries.
type UpstreamStatusError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d for %s", e.StatusCode, e.URL)
}
