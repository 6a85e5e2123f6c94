// Package memory provides an in-process snapshot store used when no durable
// backend is configured and in tests.
package memory

import (
	"context"
	"sync"

	apperrors "github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/errors"
)

// Store implements repository.SnapshotStore with a guarded map.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, apperrors.NotFound("cart snapshot", key)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *Store) Set(_ context.Context, key string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.data[key] = buf
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
