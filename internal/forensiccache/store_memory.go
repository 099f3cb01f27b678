package forensiccache

import (
	"context"
	"sync"
	"time"

	"docgate/internal/forensics"
)

// MemoryStore is an in-process Cache, used standalone in development and as
// the fallback behind Redis.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*Entry
	hits      int64
	misses    int64
	evictions int64
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry), now: time.Now}
}

// WithClock overrides the clock; tests only.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Get(_ context.Context, fileHash string) (*forensics.Report, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(fileHash)
	if !ok {
		s.misses++
		return nil, false, nil
	}
	s.hits++
	e.HitCount++
	return e.Report.Clone(), true, nil
}

func (s *MemoryStore) Entry(_ context.Context, fileHash string) (*Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(fileHash)
	if !ok {
		return nil, false, nil
	}
	out := *e
	out.Report = e.Report.Clone()
	return &out, true, nil
}

// live returns the unexpired entry for fileHash, evicting it when expired.
// Callers hold mu.
func (s *MemoryStore) live(fileHash string) (*Entry, bool) {
	e, ok := s.entries[fileHash]
	if !ok {
		return nil, false
	}
	if !s.now().Before(e.ExpiresAt) {
		delete(s.entries, fileHash)
		s.evictions++
		return nil, false
	}
	return e, true
}

func (s *MemoryStore) Put(_ context.Context, fileHash string, report *forensics.Report, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.entries[fileHash] = &Entry{FileHash: fileHash, Report: report.Clone(), CachedAt: now, ExpiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	size := 0
	for _, e := range s.entries {
		if now.Before(e.ExpiresAt) {
			size++
		}
	}
	return Stats{
		Size:      size,
		Hits:      s.hits,
		Misses:    s.misses,
		HitRate:   hitRate(s.hits, s.misses),
		Evictions: s.evictions,
	}, nil
}

func (s *MemoryStore) ResetStats(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits, s.misses, s.evictions = 0, 0, 0
	return nil
}

func (s *MemoryStore) Purge(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	purged := 0
	for hash, e := range s.entries {
		expired := !now.Before(e.ExpiresAt)
		stale := olderThan > 0 && !e.CachedAt.After(now.Add(-olderThan))
		if expired || stale {
			delete(s.entries, hash)
			purged++
		}
	}
	s.evictions += int64(purged)
	return purged, nil
}
