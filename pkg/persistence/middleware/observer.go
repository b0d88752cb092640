package middleware

import (
	"context"
	"sync"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

// SaveObserver is called after every successful Save with the previously
// saved record (nil for the first one) and the new one.
type SaveObserver func(ctx context.Context, prev, next *domain.Saga)

type observerMiddleware struct {
	next     ports.SagaStore
	observer SaveObserver

	mu   sync.Mutex
	last map[string]*domain.Saga
}

// NewObserverMiddleware notifies fn of every persisted version.
// Records passed to fn are private copies.
func NewObserverMiddleware(fn SaveObserver) Middleware {
	return func(next ports.SagaStore) ports.SagaStore {
		return &observerMiddleware{
			next:     next,
			observer: fn,
			last:     make(map[string]*domain.Saga),
		}
	}
}

func (m *observerMiddleware) Save(ctx context.Context, saga *domain.Saga) error {
	if err := m.next.Save(ctx, saga); err != nil {
		return err
	}
	snapshot := saga.Clone()

	m.mu.Lock()
	prev := m.last[saga.ID]
	if saga.IsTerminal() {
		delete(m.last, saga.ID)
	} else {
		m.last[saga.ID] = snapshot
	}
	m.mu.Unlock()

	m.observer(ctx, prev, snapshot.Clone())
	return nil
}

func (m *observerMiddleware) Load(ctx context.Context, sagaID string) (*domain.Saga, error) {
	return m.next.Load(ctx, sagaID)
}

func (m *observerMiddleware) Delete(ctx context.Context, sagaID string) error {
	m.mu.Lock()
	delete(m.last, sagaID)
	m.mu.Unlock()
	return m.next.Delete(ctx, sagaID)
}

func (m *observerMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
