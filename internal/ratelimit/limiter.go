package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrClosed = errors.New("rate limiter is closed")

// Key scopes a counter to one repository within one limit family.
type Key struct {
	Prefix       string
	RepositoryID string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", strings.TrimSpace(k.Prefix), strings.TrimSpace(k.RepositoryID))
}

func (k Key) Validate() error {
	if strings.TrimSpace(k.Prefix) == "" {
		return fmt.Errorf("rate limit prefix is required")
	}
	if strings.TrimSpace(k.RepositoryID) == "" {
		return fmt.Errorf("repository id is required")
	}
	return nil
}

// Decision is the outcome of one CheckAndIncrement call.
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// NewDecision derives a decision from the post-increment count of a window.
func NewDecision(count int, limit int, windowStart time.Time, window time.Duration) Decision {
	return Decision{
		Allowed:   count <= limit,
		Count:     count,
		Limit:     limit,
		Remaining: max(0, limit-count),
		ResetAt:   windowStart.Add(window),
	}
}

// RateLimiter counts submissions per key inside fixed windows. Implementations
// must serialize updates per key so concurrent callers never share the last
// unit of budget.
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, key Key, limit int, window time.Duration) (Decision, error)
}

func validateArgs(key Key, limit int, window time.Duration) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}
	if window <= 0 {
		return fmt.Errorf("window must be positive")
	}
	return nil
}
