package sagaflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// Event is an inbound domain event a ProcessManager may react to.
type Event struct {
	// ID identifies the event; redelivery of the same ID starts no new saga.
	ID      string
	Subject domain.Address
	Payload map[string]any
}

// StartRequest asks for a saga to be started.
type StartRequest struct {
	Saga string
	// SagaID defaults to "<saga>-<event id>".
	SagaID  string
	Context map[string]any
}

// Policy decides whether an event starts a saga.
type Policy func(ctx context.Context, ev Event) (StartRequest, bool)

type policyRoute struct {
	pattern domain.Address
	policy  Policy
}

// ProcessManager starts sagas in reaction to domain events.
// Policies are evaluated in registration order; every match starts a saga.
type ProcessManager struct {
	engine *Engine
	logger *slog.Logger

	mu     sync.RWMutex
	routes []policyRoute
}

// NewProcessManager creates a process manager starting sagas on engine.
func NewProcessManager(engine *Engine) *ProcessManager {
	return &ProcessManager{engine: engine, logger: engine.logger}
}

// On registers policy for events whose subject matches pattern.
func (pm *ProcessManager) On(pattern domain.Address, policy Policy) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.routes = append(pm.routes, policyRoute{pattern: pattern, policy: policy})
}

// Handle evaluates the policies against ev and runs the requested sagas to
// completion. A saga that already exists is resumed instead of started, so a
// redelivered event finishes the work an earlier delivery left behind and is
// a no-op once that saga is terminal. Outcome errors of the sagas are not
// returned; the records carry them.
func (pm *ProcessManager) Handle(ctx context.Context, ev Event) ([]*domain.Saga, error) {
	pm.mu.RLock()
	routes := append([]policyRoute(nil), pm.routes...)
	pm.mu.RUnlock()

	var (
		started []*domain.Saga
		errs    []error
	)
	for _, route := range routes {
		if !ev.Subject.Matches(route.pattern) {
			continue
		}
		req, ok := route.policy(ctx, ev)
		if !ok {
			continue
		}
		if req.SagaID == "" && ev.ID != "" {
			req.SagaID = req.Saga + "-" + ev.ID
		}

		pm.logger.InfoContext(ctx, "starting saga from process policy",
			"saga", req.Saga, "saga_id", req.SagaID, "subject", ev.Subject)
		saga, err := pm.engine.Start(ctx, req.Saga, req.SagaID, req.Context)
		op := "start"
		if errors.Is(err, ErrAlreadyExists) {
			pm.logger.DebugContext(ctx, "saga already started, resuming", "saga_id", req.SagaID)
			op = "resume"
			saga, err = pm.engine.Resume(ctx, req.SagaID)
		}
		var stepErr *StepError
		if err != nil && !errors.As(err, &stepErr) {
			errs = append(errs, fmt.Errorf("%s %s: %w", op, req.Saga, err))
		}
		if saga != nil {
			started = append(started, saga)
		}
	}
	return started, errors.Join(errs...)
}

// HandleEnvelope adapts a routed envelope into an Event, so a ProcessManager
// can subscribe to a router and chain sagas.
func (pm *ProcessManager) HandleEnvelope(ctx context.Context, env domain.Envelope) error {
	_, err := pm.Handle(ctx, Event{
		ID:      env.IdempotencyKey,
		Subject: env.Destination,
		Payload: env.Output.Payload,
	})
	return err
}
