package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// StreamManager handles active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // SagaID -> Set of Channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty stream manager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a channel for diffs of sagaID.
func (sm *StreamManager) Subscribe(sagaID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[sagaID]; !ok {
		sm.subscribers[sagaID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sagaID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sagaID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sagaID)
			}
		}
	}
}

// Subscribers returns the number of open streams for sagaID.
func (sm *StreamManager) Subscribers(sagaID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sagaID])
}

// Broadcast sends msg to every subscriber of sagaID, dropping it for slow clients.
func (sm *StreamManager) Broadcast(sagaID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[sagaID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping message", "saga_id", sagaID)
		}
	}
}

// Observe broadcasts the diff between two saved versions of a saga.
// It matches middleware.SaveObserver.
func (sm *StreamManager) Observe(_ context.Context, prev, next *domain.Saga) {
	diff := domain.Diff(prev, next)
	if diff == nil {
		return
	}
	data, err := json.Marshal(diff)
	if err != nil {
		sm.logger.Warn("SSE: failed to encode diff", "saga_id", next.ID, "err", err)
		return
	}
	sm.Broadcast(next.ID, string(data))
}

// SubscribeEvents handles GET /sagas/{id}/events (SSE). The optional
// ?watch= filter keeps only diffs touching status, context, steps or failure.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sagaID := chi.URLParam(r, "id")
	var watchList []string
	if raw := r.URL.Query().Get("watch"); raw != "" {
		watchList = strings.Split(raw, ",")
	}

	ch, cancel := s.Streams.Subscribe(sagaID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watchList) > 0 && !watched(msg, watchList) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func watched(msg string, fields []string) bool {
	var diff domain.SagaDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range fields {
		switch strings.TrimSpace(field) {
		case "status":
			if diff.Status != nil {
				return true
			}
		case "context":
			if len(diff.Context) > 0 {
				return true
			}
		case "steps":
			if len(diff.Steps) > 0 {
				return true
			}
		case "failure":
			if diff.Failure != nil {
				return true
			}
		}
	}
	return false
}
