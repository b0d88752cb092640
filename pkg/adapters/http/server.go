package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/sagaflow/internal/logging"
	"github.com/aretw0/sagaflow/internal/presentation/graph"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// Server exposes saga inspection and cancellation over HTTP.
type Server struct {
	Service     ports.SagaService
	Definitions ports.DefinitionSource
	Streams     *StreamManager
	Metrics     http.Handler
	Version     string
	logger      *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithDefinitions enables GET /sagas/{id}/graph.
func WithDefinitions(defs ports.DefinitionSource) Option {
	return func(s *Server) {
		s.Definitions = defs
	}
}

// WithStreams sets the stream manager feeding GET /sagas/{id}/events.
// Feed it by installing StreamManager.Observe as a store observer.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.Metrics = h
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.Version = v
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for svc.
func NewHandler(svc ports.SagaService, opts ...Option) http.Handler {
	s := &Server{Service: svc, Version: "unknown", logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}
	r.Route("/sagas", func(r chi.Router) {
		r.Get("/", s.ListSagas)
		r.Get("/{id}", s.GetSaga)
		r.Post("/{id}/cancel", s.CancelSaga)
		r.Get("/{id}/events", s.SubscribeEvents)
		r.Get("/{id}/graph", s.GetGraph)
	})
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SagaSummary is one row of GET /sagas.
type SagaSummary struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    domain.Status `json:"status"`
	Current   string        `json:"current"`
	Version   int           `json:"version"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ListSagas handles GET /sagas. The optional ?status= filter takes a comma separated list.
func (s *Server) ListSagas(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Service.List(r.Context())
	if err != nil {
		s.fail(w, "List failed", err)
		return
	}

	var filter map[domain.Status]bool
	if raw := r.URL.Query().Get("status"); raw != "" {
		filter = make(map[domain.Status]bool)
		for _, st := range strings.Split(raw, ",") {
			filter[domain.Status(strings.TrimSpace(st))] = true
		}
	}

	out := make([]SagaSummary, 0, len(ids))
	for _, id := range ids {
		saga, err := s.Service.Inspect(r.Context(), id)
		if errors.Is(err, domain.ErrSagaNotFound) {
			continue // deleted or expired since List
		}
		if err != nil {
			s.fail(w, "Inspect failed", err)
			return
		}
		if filter != nil && !filter[saga.Status] {
			continue
		}
		out = append(out, SagaSummary{
			ID: saga.ID, Name: saga.Name, Status: saga.Status,
			Current: saga.Current, Version: saga.Version, UpdatedAt: saga.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

// GetSaga handles GET /sagas/{id}.
func (s *Server) GetSaga(w http.ResponseWriter, r *http.Request) {
	saga, err := s.Service.Inspect(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "Inspect failed", err)
		return
	}
	writeJSON(w, http.StatusOK, saga)
}

// CancelSaga handles POST /sagas/{id}/cancel.
func (s *Server) CancelSaga(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Service.Cancel(r.Context(), id); err != nil {
		s.fail(w, "Cancel failed", err)
		return
	}
	s.logger.Info("cancel requested over http", "saga_id", id)
	writeJSON(w, http.StatusAccepted, map[string]string{"saga_id": id, "status": "cancel_requested"})
}

// GetGraph handles GET /sagas/{id}/graph, a Mermaid diagram with the saga's progress.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	if s.Definitions == nil {
		http.Error(w, "graph not available", http.StatusNotFound)
		return
	}
	saga, err := s.Service.Inspect(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "Inspect failed", err)
		return
	}
	def, err := s.Definitions.Definition(saga.Name)
	if err != nil {
		s.fail(w, "Definition lookup failed", err)
		return
	}
	out, err := graph.GenerateDefinition(def, graph.OverlayFromSaga(saga))
	if err != nil {
		s.fail(w, "Graph failed", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, out)
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "sagaflow-http",
		"version": strings.TrimSpace(s.Version),
	})
}

// fail maps domain errors to status codes.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSagaNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrTerminal):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrDefinition):
		code = http.StatusUnprocessableEntity
	}
	if code == http.StatusInternalServerError {
		s.logger.Error(msg, "err", err)
	}
	http.Error(w, fmt.Sprintf("%s: %v", msg, err), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
