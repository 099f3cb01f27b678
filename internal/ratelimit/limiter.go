// Package ratelimit throttles expensive per-caller operations (uploads,
// batches) with a sliding window counter.
package ratelimit

import (
	"context"
	"time"
)

// Rule bounds a class of requests to Limit per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is zero when Allowed.
	RetryAfter time.Duration
}

// Limiter records a request against key and reports whether it fits the rule.
// Rejected requests are not counted.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (Result, error)
}

func retryAfter(resetAt, now time.Time) time.Duration {
	if d := resetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
