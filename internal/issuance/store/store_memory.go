package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"docgate/internal/issuance"
	id "docgate/pkg/domain"
	txcontext "docgate/pkg/platform/tx"
)

// InMemoryStore keeps pending issuances in memory. Writes join the caller's
// unit of work when one is active.
type InMemoryStore struct {
	mu      sync.RWMutex
	pending map[id.DocumentID]issuance.Pending
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{pending: make(map[id.DocumentID]issuance.Pending)}
}

func (s *InMemoryStore) Enqueue(ctx context.Context, p *issuance.Pending) error {
	snapshot := *p
	txcontext.Apply(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.pending[snapshot.DocumentID]; ok {
			snapshot.CreatedAt = existing.CreatedAt
		}
		s.pending[snapshot.DocumentID] = snapshot
	})
	return nil
}

func (s *InMemoryStore) Due(_ context.Context, now time.Time, limit int) ([]*issuance.Pending, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*issuance.Pending
	for _, p := range s.pending {
		if p.State == issuance.PendingStateQueued && !p.NextAttemptAt.After(now) {
			cp := p
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *InMemoryStore) Update(ctx context.Context, p *issuance.Pending) error {
	snapshot := *p
	txcontext.Apply(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.pending[snapshot.DocumentID] = snapshot
	})
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, documentID id.DocumentID) error {
	txcontext.Apply(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.pending, documentID)
	})
	return nil
}

func (s *InMemoryStore) CountQueued(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.pending {
		if p.State == issuance.PendingStateQueued {
			n++
		}
	}
	return n, nil
}

// Get returns the record for a document; tests only.
func (s *InMemoryStore) Get(documentID id.DocumentID) (issuance.Pending, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[documentID]
	return p, ok
}
