// Package memory provides an in-process collection adapter used by tests and
// ephemeral runs.
package memory

import (
	"context"
	"errors"
	"sync"

	"budgetcore/pkg/domain"
)

var _ domain.CollectionAdapter = (*Store)(nil)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("memory store closed")

// Store keeps each collection payload as an owned byte slice.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]byte
	closed      bool
}

// NewStore returns an empty in-memory adapter.
func NewStore() *Store {
	return &Store{collections: make(map[string][]byte)}
}

// Name implements domain.CollectionAdapter.
func (s *Store) Name() string { return "memory" }

// LoadAll returns a copy of the stored payload.
func (s *Store) LoadAll(_ context.Context, collection string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	payload, ok := s.collections[collection]
	if !ok {
		return nil, domain.ErrCollectionNotFound
	}
	return append([]byte(nil), payload...), nil
}

// SaveAll replaces the stored payload with a copy of payload.
func (s *Store) SaveAll(_ context.Context, collection string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.collections[collection] = append([]byte(nil), payload...)
	return nil
}

// Close implements domain.CollectionAdapter.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Collections returns the names of the stored collections.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	return names
}
