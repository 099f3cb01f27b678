package store

import (
	"context"
	"sync"

	"docgate/internal/biometric"
	id "docgate/pkg/domain"
	"docgate/pkg/platform/sentinel"
)

// InMemoryStore keeps identities in process memory with a hash index.
// Writes apply immediately rather than joining a unit of work: the hash claim
// must be visible to concurrent screens of other documents at once.
type InMemoryStore struct {
	mu     sync.RWMutex
	byUser map[id.UserID]*biometric.Identity
	byHash map[string]id.UserID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byUser: make(map[id.UserID]*biometric.Identity),
		byHash: make(map[string]id.UserID),
	}
}

func (s *InMemoryStore) FindByHash(_ context.Context, hash string) (*biometric.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byHash[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	identity := *s.byUser[userID]
	return &identity, nil
}

func (s *InMemoryStore) Save(_ context.Context, identity *biometric.Identity) (biometric.SaveOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.byHash[identity.BiometricHash]; ok && owner != identity.UserID {
		return 0, sentinel.ErrConflict
	}
	if existing, ok := s.byUser[identity.UserID]; ok {
		if existing.BiometricHash != identity.BiometricHash {
			return biometric.SaveUserMismatch, nil
		}
		return biometric.SaveUnchanged, nil
	}
	stored := *identity
	s.byUser[identity.UserID] = &stored
	s.byHash[identity.BiometricHash] = identity.UserID
	return biometric.SaveStored, nil
}
