package forensiccache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"docgate/internal/forensics"
)

// hitScript counts a hit on an existing entry and returns its fields. It
// returns nil without touching anything when the key is gone, so an expired
// entry is never recreated without a TTL.
var hitScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
local hits = redis.call('HINCRBY', KEYS[1], 'hits', 1)
local fields = redis.call('HMGET', KEYS[1], 'report', 'cached_at', 'expires_at')
return {fields[1], fields[2], fields[3], tostring(hits)}
`)

// RedisStore keeps each report in its own hash (report JSON, cached_at,
// expires_at, hits) expiring with PEXPIRE, indexes keys in two sorted sets (by
// expiry and by cached-at) for Size and Purge, and counts hits, misses and
// evictions with INCR.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) entryKey(hash string) string { return s.prefix + "entry:" + hash }
func (s *RedisStore) expiryIndex() string         { return s.prefix + "index:expiry" }
func (s *RedisStore) cachedIndex() string         { return s.prefix + "index:cached" }
func (s *RedisStore) counter(name string) string  { return s.prefix + "stats:" + name }

func (s *RedisStore) Get(ctx context.Context, fileHash string) (*forensics.Report, bool, error) {
	fields, err := hitScript.Run(ctx, s.client, []string{s.entryKey(fileHash)}).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, false, s.recordMiss(ctx, fileHash)
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	entry, ok := decodeEntry(fileHash, fields)
	if !ok {
		_ = s.client.Del(ctx, s.entryKey(fileHash)).Err()
		_ = s.client.Incr(ctx, s.counter("misses")).Err()
		return nil, false, nil
	}
	if err := s.client.Incr(ctx, s.counter("hits")).Err(); err != nil {
		return nil, false, fmt.Errorf("cache hit counter: %w", err)
	}
	return entry.Report, true, nil
}

// recordMiss drops index members left behind by an expired key and counts the
// miss, plus an eviction when there was something to drop.
func (s *RedisStore) recordMiss(ctx context.Context, fileHash string) error {
	pipe := s.client.TxPipeline()
	removed := pipe.ZRem(ctx, s.expiryIndex(), fileHash)
	pipe.ZRem(ctx, s.cachedIndex(), fileHash)
	pipe.Incr(ctx, s.counter("misses"))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache miss bookkeeping: %w", err)
	}
	if removed.Val() > 0 {
		if err := s.client.Incr(ctx, s.counter("evictions")).Err(); err != nil {
			return fmt.Errorf("cache eviction counter: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) Entry(ctx context.Context, fileHash string) (*Entry, bool, error) {
	vals, err := s.client.HMGet(ctx, s.entryKey(fileHash), "report", "cached_at", "expires_at", "hits").Result()
	if err != nil {
		return nil, false, fmt.Errorf("cache entry: %w", err)
	}
	fields := make([]string, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			return nil, false, nil
		}
		fields[i] = str
	}
	entry, ok := decodeEntry(fileHash, fields)
	return entry, ok, nil
}

// decodeEntry parses {report, cached_at, expires_at, hits} as stored by Put.
func decodeEntry(fileHash string, fields []string) (*Entry, bool) {
	if len(fields) != 4 {
		return nil, false
	}
	var report forensics.Report
	if err := json.Unmarshal([]byte(fields[0]), &report); err != nil {
		return nil, false
	}
	cachedAt, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, false
	}
	expiresAt, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, false
	}
	hits, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, false
	}
	return &Entry{
		FileHash:  fileHash,
		Report:    &report,
		CachedAt:  time.UnixMilli(cachedAt).UTC(),
		ExpiresAt: time.UnixMilli(expiresAt).UTC(),
		HitCount:  hits,
	}, true
}

func (s *RedisStore) Put(ctx context.Context, fileHash string, report *forensics.Report, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	now := s.now()
	expires := now.Add(ttl)
	key := s.entryKey(fileHash)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"report", payload,
			"cached_at", now.UnixMilli(),
			"expires_at", expires.UnixMilli(),
			"hits", 0,
		)
		pipe.PExpire(ctx, key, ttl)
		pipe.ZAdd(ctx, s.expiryIndex(), redis.Z{Score: float64(expires.UnixMilli()), Member: fileHash})
		pipe.ZAdd(ctx, s.cachedIndex(), redis.Z{Score: float64(now.UnixMilli()), Member: fileHash})
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	pipe := s.client.Pipeline()
	size := pipe.ZCount(ctx, s.expiryIndex(), "("+strconv.FormatInt(s.now().UnixMilli(), 10), "+inf")
	counters := pipe.MGet(ctx, s.counter("hits"), s.counter("misses"), s.counter("evictions"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}

	vals := make([]int64, 3)
	for i, v := range counters.Val() {
		if str, ok := v.(string); ok {
			vals[i], _ = strconv.ParseInt(str, 10, 64)
		}
	}
	return Stats{
		Size:      int(size.Val()),
		Hits:      vals[0],
		Misses:    vals[1],
		HitRate:   hitRate(vals[0], vals[1]),
		Evictions: vals[2],
	}, nil
}

func (s *RedisStore) ResetStats(ctx context.Context) error {
	if err := s.client.Del(ctx, s.counter("hits"), s.counter("misses"), s.counter("evictions")).Err(); err != nil {
		return fmt.Errorf("cache reset stats: %w", err)
	}
	return nil
}

func (s *RedisStore) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	now := s.now()
	victims := make(map[string]struct{})

	expired, err := s.client.ZRangeByScore(ctx, s.expiryIndex(), &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("cache purge scan: %w", err)
	}
	for _, h := range expired {
		victims[h] = struct{}{}
	}
	if olderThan > 0 {
		stale, err := s.client.ZRangeByScore(ctx, s.cachedIndex(), &redis.ZRangeBy{
			Min: "-inf", Max: strconv.FormatInt(now.Add(-olderThan).UnixMilli(), 10),
		}).Result()
		if err != nil {
			return 0, fmt.Errorf("cache purge scan: %w", err)
		}
		for _, h := range stale {
			victims[h] = struct{}{}
		}
	}
	if len(victims) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(victims))
	members := make([]any, 0, len(victims))
	for h := range victims {
		keys = append(keys, s.entryKey(h))
		members = append(members, h)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, s.expiryIndex(), members...)
		pipe.ZRem(ctx, s.cachedIndex(), members...)
		pipe.IncrBy(ctx, s.counter("evictions"), int64(len(victims)))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return len(victims), nil
}
