package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
	ErrUpstreamStore = errors.New("upstream store unavailable")
)

// RateLimitedError is returned when a repository has exhausted its submission
// budget for the current window.
type RateLimitedError struct {
	RepositoryID string
	Limit        int
	ResetAt      time.Time
}

func (e *RateLimitedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("rate limited: repository %q exceeded %d submissions, resets at %s",
		e.RepositoryID, e.Limit, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// RetryAfter returns the whole number of seconds until the window resets,
// never less than one.
func (e *RateLimitedError) RetryAfter(now time.Time) int {
	if e == nil {
		return 1
	}
	remaining := e.ResetAt.Sub(now)
	seconds := int(remaining / time.Second)
	if remaining%time.Second != 0 {
		seconds++
	}
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
