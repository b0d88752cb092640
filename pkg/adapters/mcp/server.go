package mcp

import (
	"context"
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
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SagaList is the structured result of list_sagas.
type SagaList struct {
	Sagas []SagaSummary `json:"sagas" jsonschema_description:"Known saga instances"`
}

// SagaSummary describes one saga instance.
type SagaSummary struct {
	ID      string        `json:"id" jsonschema_description:"Saga instance ID"`
	Name    string        `json:"name" jsonschema_description:"Definition name"`
	Status  domain.Status `json:"status" jsonschema_description:"Lifecycle status"`
	Current string        `json:"current" jsonschema_description:"Current state of the step machine"`
}

// CancelResult is the structured result of cancel_saga.
type CancelResult struct {
	SagaID    string `json:"saga_id"`
	Requested bool   `json:"requested" jsonschema_description:"True when cancellation was accepted"`
}

// Server exposes a SagaService as an MCP server.
type Server struct {
	service     ports.SagaService
	definitions ports.DefinitionSource
	mcpServer   *server.MCPServer
	logger      *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithDefinitions enables the saga_graph tool.
func WithDefinitions(defs ports.DefinitionSource) Option {
	return func(s *Server) {
		s.definitions = defs
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(svc ports.SagaService, version string, opts ...Option) *Server {
	s := &Server{
		service:   svc,
		mcpServer: server.NewMCPServer("sagaflow-mcp", strings.TrimSpace(version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	listTool := mcp.NewTool("list_sagas",
		mcp.WithDescription("List saga instances, optionally filtered by status."),
		mcp.WithString("status", mcp.Description("Comma separated statuses to keep (optional)")),
		mcp.WithOutputSchema[SagaList](),
	)
	s.mcpServer.AddTool(listTool, mcp.NewStructuredToolHandler(s.handleList))

	inspectTool := mcp.NewTool("inspect_saga",
		mcp.WithDescription("Return the full durable record of a saga: steps, context, failure and transition log."),
		mcp.WithString("saga_id", mcp.Required(), mcp.Description("Saga instance ID")),
	)
	s.mcpServer.AddTool(inspectTool, s.handleInspect)

	cancelTool := mcp.NewTool("cancel_saga",
		mcp.WithDescription("Request cancellation of a non-terminal saga. Completed steps are compensated."),
		mcp.WithString("saga_id", mcp.Required(), mcp.Description("Saga instance ID")),
		mcp.WithOutputSchema[CancelResult](),
	)
	s.mcpServer.AddTool(cancelTool, mcp.NewStructuredToolHandler(s.handleCancel))

	if s.definitions != nil {
		graphTool := mcp.NewTool("saga_graph",
			mcp.WithDescription("Render a saga's step machine as a Mermaid diagram with its progress highlighted."),
			mcp.WithString("saga_id", mcp.Required(), mcp.Description("Saga instance ID")),
		)
		s.mcpServer.AddTool(graphTool, s.handleGraph)
	}
}

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SagaList, error) {
	var filter map[domain.Status]bool
	if raw, _ := args["status"].(string); raw != "" {
		filter = make(map[domain.Status]bool)
		for _, st := range strings.Split(raw, ",") {
			filter[domain.Status(strings.TrimSpace(st))] = true
		}
	}

	ids, err := s.service.List(ctx)
	if err != nil {
		return SagaList{}, fmt.Errorf("list failed: %w", err)
	}
	out := SagaList{Sagas: make([]SagaSummary, 0, len(ids))}
	for _, id := range ids {
		saga, err := s.service.Inspect(ctx, id)
		if errors.Is(err, domain.ErrSagaNotFound) {
			continue
		}
		if err != nil {
			return SagaList{}, fmt.Errorf("inspect %s failed: %w", id, err)
		}
		if filter != nil && !filter[saga.Status] {
			continue
		}
		out.Sagas = append(out.Sagas, SagaSummary{ID: saga.ID, Name: saga.Name, Status: saga.Status, Current: saga.Current})
	}
	sort.Slice(out.Sagas, func(i, j int) bool { return out.Sagas[i].ID < out.Sagas[j].ID })
	return out, nil
}

func (s *Server) handleInspect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := request.GetArguments()["saga_id"].(string)
	saga, err := s.service.Inspect(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(saga)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleCancel(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (CancelResult, error) {
	id, _ := args["saga_id"].(string)
	if id == "" {
		return CancelResult{}, errors.New("saga_id is required")
	}
	if err := s.service.Cancel(ctx, id); err != nil {
		s.logger.Warn("MCP cancel rejected", "saga_id", id, "err", err)
		return CancelResult{SagaID: id}, fmt.Errorf("cancel failed: %w", err)
	}
	return CancelResult{SagaID: id, Requested: true}, nil
}

func (s *Server) handleGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := request.GetArguments()["saga_id"].(string)
	saga, err := s.service.Inspect(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
	}
	def, err := s.definitions.Definition(saga.Name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("definition lookup failed: %v", err)), nil
	}
	out, err := graph.GenerateDefinition(def, graph.OverlayFromSaga(saga))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("graph failed: %v", err)), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("sagaflow://sagas", "Saga instances",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := s.handleList(ctx, mcp.CallToolRequest{}, nil)
		if err != nil {
			return nil, err
		}
		jsonBytes, _ := json.Marshal(list)
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "sagaflow://sagas",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
