package ports

import (
	"context"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// SagaStore defines the interface for persisting saga records.
// A Save is the acknowledgement the orchestrator waits for before assuming a
// transition happened.
type SagaStore interface {
	// Save persists the record under saga.ID, replacing any previous version.
	Save(ctx context.Context, saga *domain.Saga) error

	// Load retrieves the record for a given saga ID.
	// Returns domain.ErrSagaNotFound if the saga does not exist.
	Load(ctx context.Context, sagaID string) (*domain.Saga, error)

	// Delete removes the record for a given saga ID.
	Delete(ctx context.Context, sagaID string) error

	// List returns the IDs of all stored sagas.
	List(ctx context.Context) ([]string, error)
}

// HistoryRecorder keeps an append-only log of saga versions.
type HistoryRecorder interface {
	Append(ctx context.Context, entry domain.HistoryEntry) error
	History(ctx context.Context, sagaID string) ([]domain.HistoryEntry, error)
}
