// Package kvstore is a small key-value store with per-key TTL, backed by
// process memory or Redis.
package kvstore

import (
	"context"
	"time"
)

// Store holds opaque values that expire after a TTL.
// Get returns sentinel.ErrNotFound for missing or expired keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}
