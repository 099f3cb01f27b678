//go:build integration

package forensiccache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"docgate/internal/forensiccache"
	"docgate/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *forensiccache.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = forensiccache.NewRedisStore(s.redis.Client, "docgate:test:forensic:")
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestRoundTripAndOverwrite() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, "sha", report(64), time.Minute))
	s.Require().NoError(s.store.Put(ctx, "sha", report(93), time.Minute))

	got, ok, err := s.store.Get(ctx, "sha")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(93, got.OverallScore)

	_, ok, err = s.store.Get(ctx, "missing")
	s.Require().NoError(err)
	s.False(ok)

	stats, err := s.store.Stats(ctx)
	s.Require().NoError(err)
	s.Equal(forensiccache.Stats{Size: 1, Hits: 1, Misses: 1, HitRate: 0.5}, stats)
}

func (s *RedisStoreSuite) TestHitCountIsKeptPerEntry() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, "sha", report(77), time.Minute))
	for range 3 {
		_, ok, err := s.store.Get(ctx, "sha")
		s.Require().NoError(err)
		s.Require().True(ok)
	}

	entry, ok, err := s.store.Entry(ctx, "sha")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(int64(3), entry.HitCount)
	s.Equal(77, entry.Report.OverallScore)
	s.WithinDuration(entry.CachedAt.Add(time.Minute), entry.ExpiresAt, time.Millisecond)

	s.Require().NoError(s.store.Put(ctx, "sha", report(78), time.Minute))
	entry, ok, err = s.store.Entry(ctx, "sha")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Zero(entry.HitCount)

	_, ok, err = s.store.Entry(ctx, "missing")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisStoreSuite) TestExpiredEntryIsEvictedOnGet() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, "sha", report(80), time.Second))
	time.Sleep(1500 * time.Millisecond)

	_, ok, err := s.store.Get(ctx, "sha")
	s.Require().NoError(err)
	s.False(ok)

	stats, err := s.store.Stats(ctx)
	s.Require().NoError(err)
	s.Equal(0, stats.Size)
	s.Equal(int64(1), stats.Evictions)
}

func (s *RedisStoreSuite) TestPurgeAndReset() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, "a", report(1), time.Hour))
	s.Require().NoError(s.store.Put(ctx, "b", report(2), time.Hour))
	_, _, _ = s.store.Get(ctx, "a")

	n, err := s.store.Purge(ctx, 0)
	s.Require().NoError(err)
	s.Equal(0, n)

	time.Sleep(10 * time.Millisecond)
	n, err = s.store.Purge(ctx, time.Millisecond)
	s.Require().NoError(err)
	s.Equal(2, n)

	s.Require().NoError(s.store.ResetStats(ctx))
	stats, err := s.store.Stats(ctx)
	s.Require().NoError(err)
	s.Equal(forensiccache.Stats{}, stats)
}
