package enrich

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned when endpoint, key or API version is unset.
	ErrMissingCredentials = errors.New("azure openai endpoint, api key and api version are required")
	// ErrEmptyResponse is returned when the service answers without a payload.
	ErrEmptyResponse = errors.New("empty response from enrichment service")
)

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
