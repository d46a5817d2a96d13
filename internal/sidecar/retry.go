package sidecar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	Enabled     bool
	MaxAttempts int
}

func (r RetryConfig) attempts() int {
	if !r.Enabled || r.MaxAttempts <= 0 {
		return 1
	}
	return r.MaxAttempts
}

// StatusError is returned when the sidecar answers with a non-200 status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// transientError marks failures worth another attempt
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// isRetryable reports whether err may succeed on another attempt.
// Network failures, 429 and 5xx are retryable; malformed responses are not.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	var te *transientError
	return errors.As(err, &te)
}
