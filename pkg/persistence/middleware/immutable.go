package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

type immutableMiddleware struct {
	next ports.SagaStore
}

// NewImmutableMiddleware makes terminal records write-once.
// Saving the exact stored terminal version again is a no-op; any other write
// over a terminal record fails with domain.ErrTerminal.
func NewImmutableMiddleware() Middleware {
	return func(next ports.SagaStore) ports.SagaStore {
		return &immutableMiddleware{next: next}
	}
}

func (m *immutableMiddleware) Save(ctx context.Context, saga *domain.Saga) error {
	existing, err := m.next.Load(ctx, saga.ID)
	switch {
	case errors.Is(err, domain.ErrSagaNotFound):
	case err != nil:
		return err
	case existing.IsTerminal():
		if existing.Version == saga.Version && existing.Status == saga.Status {
			return nil
		}
		return fmt.Errorf("%w: saga %s is already %s", domain.ErrTerminal, saga.ID, existing.Status)
	}
	return m.next.Save(ctx, saga)
}

func (m *immutableMiddleware) Load(ctx context.Context, sagaID string) (*domain.Saga, error) {
	return m.next.Load(ctx, sagaID)
}

func (m *immutableMiddleware) Delete(ctx context.Context, sagaID string) error {
	return m.next.Delete(ctx, sagaID)
}

func (m *immutableMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
