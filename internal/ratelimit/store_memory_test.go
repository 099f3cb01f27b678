package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/pkg/testutil"
)

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter().WithClock(func() time.Time { return now })
	rule := Rule{Limit: 2, Window: time.Minute}

	testutil.Given(t, "two requests inside the window", func(t *testing.T) {
		first, err := l.Allow(ctx, "upload:u1", rule)
		require.NoError(t, err)
		assert.True(t, first.Allowed)
		assert.Equal(t, 1, first.Remaining)

		now = now.Add(20 * time.Second)
		second, err := l.Allow(ctx, "upload:u1", rule)
		require.NoError(t, err)
		assert.True(t, second.Allowed)
		assert.Equal(t, 0, second.Remaining)
	})

	testutil.When(t, "a third arrives before the oldest leaves the window", func(t *testing.T) {
		now = now.Add(20 * time.Second)
		res, err := l.Allow(ctx, "upload:u1", rule)
		require.NoError(t, err)

		testutil.Then(t, "it is rejected until the oldest request expires", func(t *testing.T) {
			assert.False(t, res.Allowed)
			assert.Equal(t, 20*time.Second, res.RetryAfter)
		})
	})

	testutil.When(t, "the oldest request leaves the window", func(t *testing.T) {
		now = now.Add(20 * time.Second)
		res, err := l.Allow(ctx, "upload:u1", rule)
		require.NoError(t, err)

		testutil.Then(t, "one slot frees up", func(t *testing.T) {
			assert.True(t, res.Allowed)
			assert.Equal(t, 0, res.Remaining)
		})
	})
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter()
	rule := Rule{Limit: 1, Window: time.Hour}

	res, err := l.Allow(ctx, "upload:u1", rule)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Allow(ctx, "upload:u1", rule)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = l.Allow(ctx, "upload:u2", rule)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestPrune(t *testing.T) {
	base := time.Unix(1000, 0)
	stamps := []time.Time{base, base.Add(time.Second), base.Add(2 * time.Second)}

	assert.Len(t, prune(stamps, base), 2)
	assert.Nil(t, prune(stamps, base.Add(2*time.Second)))
	assert.Len(t, prune(stamps, base.Add(-time.Second)), 3)
}
