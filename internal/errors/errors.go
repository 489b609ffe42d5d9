// Package errors provides domain-specific error types and sentinel errors
// for improved error handling across the application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrSessionNotFound indicates no session exists for the given session ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrMissingContext indicates an action read a conversation context field
	// that no prior action populated.
	ErrMissingContext = errors.New("missing context field")

	// ErrActionUnknown indicates the NLU engine requested an action that is
	// not registered locally.
	ErrActionUnknown = errors.New("unknown action")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrNotConfigured indicates an optional integration is missing its
	// credentials and cannot be used.
	ErrNotConfigured = errors.New("integration not configured")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsMissingContext reports whether err wraps ErrMissingContext.
func IsMissingContext(err error) bool {
	return errors.Is(err, ErrMissingContext)
}

// APIError represents an upstream REST call failure with context.
type APIError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("api error (url=%s, status=%d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("api error (url=%s): %v", e.URL, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError creates a new upstream API error.
func NewAPIError(url string, statusCode int, err error) *APIError {
	return &APIError{
		URL:        url,
		StatusCode: statusCode,
		Err:        err,
	}
}
