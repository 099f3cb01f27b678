package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	id "docgate/pkg/domain"
	audit "docgate/pkg/platform/audit"
	txcontext "docgate/pkg/platform/tx"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[id.DocumentID][]audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[id.DocumentID][]audit.Entry)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[id.DocumentID][]audit.Entry)
}

// Append records the entry, deferring the write when ctx carries a unit of work.
func (s *InMemoryStore) Append(ctx context.Context, entry audit.Entry) error {
	entry.Metadata = maps.Clone(entry.Metadata)
	txcontext.Apply(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.entries[entry.DocumentID] = append(s.entries[entry.DocumentID], entry)
	})
	return nil
}

func (s *InMemoryStore) ListByDocument(_ context.Context, documentID id.DocumentID) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry{}, s.entries[documentID]...), nil
}

// ListAll returns every entry ordered by timestamp.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []audit.Entry
	for _, docEntries := range s.entries {
		all = append(all, docEntries...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all, nil
}
