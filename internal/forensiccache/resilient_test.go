package forensiccache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/forensiccache"
	"docgate/internal/forensics"
	"docgate/pkg/platform/circuit"
)

// flakyCache wraps a MemoryStore and fails every call while down is set.
type flakyCache struct {
	*forensiccache.MemoryStore
	down bool
}

var errRedisDown = errors.New("dial tcp: connection refused")

func (f *flakyCache) Get(ctx context.Context, hash string) (*forensics.Report, bool, error) {
	if f.down {
		return nil, false, errRedisDown
	}
	return f.MemoryStore.Get(ctx, hash)
}

func (f *flakyCache) Put(ctx context.Context, hash string, r *forensics.Report, ttl time.Duration) error {
	if f.down {
		return errRedisDown
	}
	return f.MemoryStore.Put(ctx, hash, r, ttl)
}

func (f *flakyCache) Stats(ctx context.Context) (forensiccache.Stats, error) {
	if f.down {
		return forensiccache.Stats{}, errRedisDown
	}
	return f.MemoryStore.Stats(ctx)
}

func TestResilient_FallsBackWhilePrimaryIsDown(t *testing.T) {
	ctx := context.Background()
	primary := &flakyCache{MemoryStore: forensiccache.NewMemoryStore()}
	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))
	cache := forensiccache.NewResilient(primary, forensiccache.NewMemoryStore(), forensiccache.WithBreaker(breaker))

	primary.down = true
	require.NoError(t, cache.Put(ctx, "sha", report(86), time.Hour), "a cache outage never fails the caller")

	got, ok, err := cache.Get(ctx, "sha")
	require.NoError(t, err)
	require.True(t, ok, "the report written during the outage is served from the fallback")
	assert.Equal(t, 86, got.OverallScore)
	assert.True(t, breaker.IsOpen())

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Degraded)

	primary.down = false
	_, ok, err = cache.Get(ctx, "other")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, breaker.IsOpen(), "a primary success closes the circuit")
}

func TestResilient_UsesPrimaryWhenHealthy(t *testing.T) {
	ctx := context.Background()
	primary := &flakyCache{MemoryStore: forensiccache.NewMemoryStore()}
	fallback := forensiccache.NewMemoryStore()
	cache := forensiccache.NewResilient(primary, fallback)

	require.NoError(t, cache.Put(ctx, "sha", report(72), time.Hour))
	_, ok, _ := fallback.Get(ctx, "sha")
	assert.False(t, ok, "the fallback is only written during outages")

	got, ok, err := cache.Get(ctx, "sha")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 72, got.OverallScore)

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, stats.Degraded)
	assert.Equal(t, int64(1), stats.Hits)
}
