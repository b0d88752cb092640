package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// History implements ports.HistoryRecorder in memory.
type History struct {
	mu      sync.RWMutex
	entries map[string][]domain.HistoryEntry
}

// NewHistory creates an empty in-memory history.
func NewHistory() *History {
	return &History{entries: make(map[string][]domain.HistoryEntry)}
}

// Append records entry after the saga's previous entries.
func (h *History) Append(ctx context.Context, entry domain.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[entry.SagaID] = append(h.entries[entry.SagaID], entry)
	return nil
}

// History returns the entries of a saga in append order.
func (h *History) History(ctx context.Context, sagaID string) ([]domain.HistoryEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.entries[sagaID]), nil
}
