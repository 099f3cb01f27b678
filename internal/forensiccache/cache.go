// Package forensiccache memoises forensic reports by file hash so a repeated
// upload of identical bytes skips the analysis call. Entries are advisory:
// concurrent writers race and the last Put wins.
package forensiccache

import (
	"context"
	"time"

	"docgate/internal/forensics"
)

// Stats is a point-in-time view of cache effectiveness. Hits, Misses and
// Evictions only grow until ResetStats.
type Stats struct {
	Size      int     `json:"size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hitRate"`
	Evictions int64   `json:"evictions"`
	// Degraded is set when the figures come from the local fallback.
	Degraded bool `json:"degraded,omitempty"`
}

// Entry is a cached report with its bookkeeping. HitCount counts the Get
// calls that returned this entry since it was last Put.
type Entry struct {
	FileHash  string            `json:"fileHash"`
	Report    *forensics.Report `json:"-"`
	CachedAt  time.Time         `json:"cachedAt"`
	ExpiresAt time.Time         `json:"expiresAt"`
	HitCount  int64             `json:"hitCount"`
}

// Cache is implemented by the memory and Redis stores and by the resilient
// wrapper that composes them.
//
// Get treats an expired entry as absent and removes it; a hit increments the
// entry's HitCount. Entry reads an entry without counting a hit. Purge removes
// expired entries plus, when olderThan is positive, entries cached longer ago
// than that.
type Cache interface {
	Get(ctx context.Context, fileHash string) (*forensics.Report, bool, error)
	Entry(ctx context.Context, fileHash string) (*Entry, bool, error)
	Put(ctx context.Context, fileHash string, report *forensics.Report, ttl time.Duration) error
	Stats(ctx context.Context) (Stats, error)
	ResetStats(ctx context.Context) error
	Purge(ctx context.Context, olderThan time.Duration) (int, error)
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
