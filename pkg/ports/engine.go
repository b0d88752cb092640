package ports

import (
	"context"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// SagaService is the surface used by the HTTP and MCP adapters.
type SagaService interface {
	// List returns the IDs of known sagas.
	List(ctx context.Context) ([]string, error)

	// Inspect returns the current record of a saga.
	Inspect(ctx context.Context, sagaID string) (*domain.Saga, error)

	// Cancel requests cancellation of a running saga.
	Cancel(ctx context.Context, sagaID string) error
}
