package sagaflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/sagaflow/internal/logging"
	"github.com/aretw0/sagaflow/internal/runtime"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/instance"
	"github.com/aretw0/sagaflow/pkg/ports"
	"github.com/aretw0/sagaflow/pkg/retry"
)

// Errors re-exported from the runtime so callers need not import internal packages.
var (
	ErrPersistence   = runtime.ErrPersistence
	ErrCancelled     = runtime.ErrCancelled
	ErrDenied        = runtime.ErrDenied
	ErrAlreadyExists = instance.ErrAlreadyExists
)

// StepError reports the step that decided a saga's non-committed outcome.
type StepError = runtime.StepError

// Engine is the high-level entry point of the library.
// It wraps the orchestrator and resolves definitions by name.
type Engine struct {
	orch     *runtime.Orchestrator
	registry *Registry
	logger   *slog.Logger
	opts     []runtime.Option
}

// Option configures the Engine.
type Option func(*Engine)

// WithRegistry sets the definitions available to Start and Resume.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithStore sets the saga store. The default is in memory.
func WithStore(store ports.SagaStore) Option {
	return func(e *Engine) {
		e.opts = append(e.opts, runtime.WithStore(store))
	}
}

// WithLocker adds a distributed lock so one process drives a saga at a time.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.opts = append(e.opts, runtime.WithLocker(locker))
	}
}

// WithLockTTL sets the lease of the distributed lock held while driving a saga.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.opts = append(e.opts, runtime.WithLockTTL(ttl))
	}
}

// WithRouter sets where step outputs are delivered.
func WithRouter(router ports.Router) Option {
	return func(e *Engine) {
		e.opts = append(e.opts, runtime.WithRouter(router))
	}
}

// WithRules sets the evaluator consulted before every step.
func WithRules(rules ports.RuleEvaluator) Option {
	return func(e *Engine) {
		e.opts = append(e.opts, runtime.WithRules(rules))
	}
}

// WithHistory records every persisted saga version.
func WithHistory(h ports.HistoryRecorder) Option {
	return func(e *Engine) {
		e.opts = append(e.opts, runtime.WithHistory(h))
	}
}

// WithClock replaces the wall clock, typically with a fake in tests.
func WithClock(c ports.Clock) Option {
	return func(e *Engine) {
		e.opts = append(e.opts, runtime.WithClock(c))
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.opts = append(e.opts, runtime.WithLifecycleHooks(hooks))
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithPersistence sets how many times a failed save is tried, waiting per p.
func WithPersistence(attempts int, p retry.Policy) Option {
	return func(e *Engine) {
		e.opts = append(e.opts, runtime.WithPersistence(attempts, p))
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	e.orch = runtime.New(append([]runtime.Option{runtime.WithLogger(e.logger)}, e.opts...)...)
	return e
}

// Registry returns the engine's definition registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Store returns the saga store.
func (e *Engine) Store() ports.SagaStore {
	return e.orch.Store()
}

// Run creates saga sagaID from def and drives it to a terminal status.
// The error is nil only when the saga committed; see runtime.Orchestrator.Run.
func (e *Engine) Run(ctx context.Context, def *domain.Definition, sagaID string, initial map[string]any) (*domain.Saga, error) {
	return e.orch.Run(ctx, def, sagaID, initial)
}

// Start runs the definition registered under name.
func (e *Engine) Start(ctx context.Context, name, sagaID string, initial map[string]any) (*domain.Saga, error) {
	def, err := e.registry.Definition(name)
	if err != nil {
		return nil, err
	}
	return e.orch.Run(ctx, def, sagaID, initial)
}

// Resume continues a stored saga with the registered definition of the same name.
func (e *Engine) Resume(ctx context.Context, sagaID string) (*domain.Saga, error) {
	saga, err := e.orch.Inspect(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	def, err := e.registry.Definition(saga.Name)
	if err != nil {
		return saga, err
	}
	return e.orch.Resume(ctx, def, sagaID)
}

// ResumeWith continues a stored saga with an explicit definition.
func (e *Engine) ResumeWith(ctx context.Context, def *domain.Definition, sagaID string) (*domain.Saga, error) {
	return e.orch.Resume(ctx, def, sagaID)
}

// ResumeAll resumes every stored saga that has not reached a terminal status
// and whose definition is registered. Outcome errors of individual sagas are
// not reported; infrastructure errors are joined.
func (e *Engine) ResumeAll(ctx context.Context) ([]*domain.Saga, error) {
	ids, err := e.orch.List(ctx)
	if err != nil {
		return nil, err
	}
	var (
		resumed []*domain.Saga
		errs    []error
	)
	for _, id := range ids {
		saga, err := e.orch.Inspect(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("inspect %s: %w", id, err))
			continue
		}
		if saga.IsTerminal() {
			continue
		}
		if _, err := e.registry.Definition(saga.Name); err != nil {
			e.logger.WarnContext(ctx, "skipping saga with unknown definition", "saga_id", id, "saga", saga.Name)
			continue
		}
		saga, err = e.Resume(ctx, id)
		var stepErr *StepError
		if err != nil && !errors.As(err, &stepErr) {
			errs = append(errs, fmt.Errorf("resume %s: %w", id, err))
		}
		if saga != nil {
			resumed = append(resumed, saga)
		}
	}
	return resumed, errors.Join(errs...)
}

// Cancel stops a saga; see runtime.Orchestrator.Cancel.
func (e *Engine) Cancel(ctx context.Context, sagaID string) error {
	return e.orch.Cancel(ctx, sagaID)
}

// Inspect returns the stored record of a saga.
func (e *Engine) Inspect(ctx context.Context, sagaID string) (*domain.Saga, error) {
	return e.orch.Inspect(ctx, sagaID)
}

// List returns the ids of stored sagas.
func (e *Engine) List(ctx context.Context) ([]string, error) {
	return e.orch.List(ctx)
}

// Running reports whether this engine is currently driving sagaID.
func (e *Engine) Running(sagaID string) bool {
	return e.orch.Running(sagaID)
}

// Delete removes a saga record. A saga driven by this engine cannot be deleted.
func (e *Engine) Delete(ctx context.Context, sagaID string) error {
	if e.orch.Running(sagaID) {
		return fmt.Errorf("saga %s is running", sagaID)
	}
	return e.orch.Store().Delete(ctx, sagaID)
}

var _ ports.SagaService = (*Engine)(nil)
