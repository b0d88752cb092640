// Package memory provides in-process adapters for tests, examples and the CLI.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// Store implements ports.SagaStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Saga
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Saga),
	}
}

// Save persists a copy of the record in memory.
func (s *Store) Save(ctx context.Context, saga *domain.Saga) error {
	copied := saga.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[saga.ID] = copied
	return nil
}

// Load retrieves a copy of the record, so callers cannot mutate the store by pointer.
func (s *Store) Load(ctx context.Context, sagaID string) (*domain.Saga, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	saga, ok := s.data[sagaID]
	if !ok {
		return nil, domain.ErrSagaNotFound
	}
	return saga.Clone(), nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, sagaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sagaID)
	return nil
}

// List returns stored saga IDs in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sagas := make([]string, 0, len(s.data))
	for id := range s.data {
		sagas = append(sagas, id)
	}
	sort.Strings(sagas)
	return sagas, nil
}
