package middleware_test

import (
	"context"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

// MockStore is a simple map-based store for testing middleware.
type MockStore struct {
	data  map[string]*domain.Saga
	saves int
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string]*domain.Saga),
	}
}

func (s *MockStore) Save(ctx context.Context, saga *domain.Saga) error {
	s.saves++
	s.data[saga.ID] = saga.Clone()
	return nil
}

func (s *MockStore) Load(ctx context.Context, sagaID string) (*domain.Saga, error) {
	saga, ok := s.data[sagaID]
	if !ok {
		return nil, domain.ErrSagaNotFound
	}
	return saga.Clone(), nil
}

func (s *MockStore) Delete(ctx context.Context, sagaID string) error {
	delete(s.data, sagaID)
	return nil
}

func (s *MockStore) List(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

var _ ports.SagaStore = (*MockStore)(nil)

func newSaga(id string) *domain.Saga {
	return &domain.Saga{
		ID:      id,
		Name:    "order",
		Status:  domain.StatusRunning,
		Current: "start",
		Steps: []domain.StepRecord{
			{Index: 0, Name: "reserve", Outcome: domain.OutcomePending, Compensable: true},
		},
		Context: map[string]any{},
		Version: 1,
	}
}
