package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a process-local sliding window limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// WithClock replaces the time source. For tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, rule Rule) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stamps := prune(l.windows[key], now.Add(-rule.Window))

	if len(stamps) >= rule.Limit {
		l.windows[key] = stamps
		resetAt := now.Add(rule.Window)
		if len(stamps) > 0 {
			resetAt = stamps[0].Add(rule.Window)
		}
		return Result{
			Limit:      rule.Limit,
			ResetAt:    resetAt,
			RetryAfter: retryAfter(resetAt, now),
		}, nil
	}

	stamps = append(stamps, now)
	l.windows[key] = stamps
	return Result{
		Allowed:   true,
		Limit:     rule.Limit,
		Remaining: rule.Limit - len(stamps),
		ResetAt:   stamps[0].Add(rule.Window),
	}, nil
}

// prune drops timestamps at or before cutoff. Timestamps are appended in order.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	if i == len(stamps) {
		return nil
	}
	return stamps[i:]
}
