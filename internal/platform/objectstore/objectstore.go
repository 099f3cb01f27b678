// Package objectstore keeps uploaded document bytes outside the database so
// documents can be reanalysed later.
package objectstore

import (
	"context"
	"sync"

	"docgate/pkg/platform/sentinel"
)

// Store writes and reads opaque objects by key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns sentinel.ErrNotFound for unknown keys.
	Get(ctx context.Context, key string) ([]byte, error)
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}
