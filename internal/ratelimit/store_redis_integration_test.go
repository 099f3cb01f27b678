//go:build integration

package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"docgate/internal/ratelimit"
	"docgate/pkg/testutil/containers"
)

type RedisLimiterSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	limiter *ratelimit.RedisLimiter
}

func TestRedisLimiterSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLimiterSuite))
}

func (s *RedisLimiterSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.limiter = ratelimit.NewRedisLimiter(s.redis.Client, "docgate:test:rl:")
}

func (s *RedisLimiterSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLimiterSuite) TestRejectsOverLimitWithoutCounting() {
	ctx := context.Background()
	rule := ratelimit.Rule{Limit: 2, Window: time.Minute}

	for i := range 2 {
		res, err := s.limiter.Allow(ctx, "upload:u1", rule)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(1-i, res.Remaining)
	}

	res, err := s.limiter.Allow(ctx, "upload:u1", rule)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Positive(res.RetryAfter)

	count, err := s.redis.Client.ZCard(ctx, "docgate:test:rl:upload:u1").Result()
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}

func (s *RedisLimiterSuite) TestWindowSlides() {
	ctx := context.Background()
	rule := ratelimit.Rule{Limit: 1, Window: time.Second}

	res, err := s.limiter.Allow(ctx, "batch:u1", rule)
	s.Require().NoError(err)
	s.True(res.Allowed)

	time.Sleep(1100 * time.Millisecond)

	res, err = s.limiter.Allow(ctx, "batch:u1", rule)
	s.Require().NoError(err)
	s.True(res.Allowed)
}
