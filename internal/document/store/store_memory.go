package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"docgate/internal/document/models"
	id "docgate/pkg/domain"
	"docgate/pkg/platform/sentinel"
	txcontext "docgate/pkg/platform/tx"
)

// InMemoryStore keeps documents in memory. Callers receive copies; writes join
// the caller's unit of work when one is active.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]*models.Document
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{docs: make(map[id.DocumentID]*models.Document)}
}

func (s *InMemoryStore) Create(ctx context.Context, doc *models.Document) error {
	s.mu.RLock()
	_, exists := s.docs[doc.ID]
	s.mu.RUnlock()
	if exists {
		return fmt.Errorf("document %s: %w", doc.ID, sentinel.ErrConflict)
	}
	snapshot := doc.Clone()
	txcontext.Apply(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.docs[snapshot.ID] = snapshot
	})
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, documentID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *InMemoryStore) Update(ctx context.Context, doc *models.Document) error {
	s.mu.RLock()
	_, exists := s.docs[doc.ID]
	s.mu.RUnlock()
	if !exists {
		return sentinel.ErrNotFound
	}
	snapshot := doc.Clone()
	txcontext.Apply(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.docs[snapshot.ID] = snapshot
	})
	return nil
}

// ListReviewQueue orders by CreatedAt, then by id for a stable page order.
func (s *InMemoryStore) ListReviewQueue(_ context.Context, skip, take int) ([]*models.Document, int, error) {
	s.mu.RLock()
	var queue []*models.Document
	for _, doc := range s.docs {
		if doc.InReviewQueue() {
			queue = append(queue, doc.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(queue, func(i, j int) bool {
		if !queue[i].CreatedAt.Equal(queue[j].CreatedAt) {
			return queue[i].CreatedAt.Before(queue[j].CreatedAt)
		}
		return queue[i].ID.String() < queue[j].ID.String()
	})

	total := len(queue)
	if skip >= total {
		return []*models.Document{}, total, nil
	}
	end := min(skip+take, total)
	return queue[skip:end], total, nil
}

func (s *InMemoryStore) ListExpiring(_ context.Context, now time.Time, limit int) ([]id.DocumentID, error) {
	s.mu.RLock()
	var due []*models.Document
	for _, doc := range s.docs {
		if doc.IsExpiredAt(now) {
			due = append(due, doc)
		}
	}
	s.mu.RUnlock()

	sort.Slice(due, func(i, j int) bool {
		return due[i].ExpiresAt.Before(*due[j].ExpiresAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]id.DocumentID, 0, len(due))
	for _, doc := range due {
		out = append(out, doc.ID)
	}
	return out, nil
}

func (s *InMemoryStore) ExistingIDs(_ context.Context, ids []id.DocumentID) (map[id.DocumentID]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.DocumentID]bool, len(ids))
	for _, documentID := range ids {
		if _, ok := s.docs[documentID]; ok {
			out[documentID] = true
		}
	}
	return out, nil
}
