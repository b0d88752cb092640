package ports_test

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

// MockStore is an in-memory implementation of SagaStore for testing purposes.
type MockStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string][]byte),
	}
}

func (m *MockStore) Save(ctx context.Context, saga *domain.Saga) error {
	// Serialize to simulate a real backend
	raw, err := json.Marshal(saga)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[saga.ID] = raw
	return nil
}

func (m *MockStore) Load(ctx context.Context, sagaID string) (*domain.Saga, error) {
	m.mu.Lock()
	raw, ok := m.data[sagaID]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrSagaNotFound
	}
	var saga domain.Saga
	if err := json.Unmarshal(raw, &saga); err != nil {
		return nil, err
	}
	return &saga, nil
}

func (m *MockStore) Delete(ctx context.Context, sagaID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, sagaID)
	return nil
}

func (m *MockStore) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func TestSagaStore_Contract(t *testing.T) {
	// The mock itself must satisfy the contract that adapters are held to.
	ports.RunSagaStoreContract(t, NewMockStore())
}

func TestRouterFunc(t *testing.T) {
	var got domain.Envelope
	r := ports.RouterFunc(func(ctx context.Context, env domain.Envelope) error {
		got = env
		return nil
	})

	if err := r.Publish(context.Background(), domain.Envelope{SagaID: "s-1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if got.SagaID != "s-1" {
		t.Errorf("Expected envelope for s-1, got %q", got.SagaID)
	}
}
