package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/sagaflow/internal/logging"
	"github.com/aretw0/sagaflow/pkg/adapters/memory"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/instance"
	"github.com/aretw0/sagaflow/pkg/ports"
	"github.com/aretw0/sagaflow/pkg/retry"
	"github.com/google/uuid"
)

// DefaultPersistAttempts is how many times a save is tried before giving up.
const DefaultPersistAttempts = 3

// cancelAttempts bounds how often Cancel re-writes a request lost to a racing save.
const cancelAttempts = 5

// Orchestrator drives sagas to a terminal outcome.
// One saga is advanced by one sequential loop; many sagas may run in parallel.
type Orchestrator struct {
	store   ports.SagaStore
	locker  ports.DistributedLocker
	lockTTL time.Duration
	manager *instance.Manager
	router  ports.Router
	rules   ports.RuleEvaluator
	history ports.HistoryRecorder
	clock   ports.Clock
	hooks   domain.LifecycleHooks
	logger  *slog.Logger

	persistAttempts int
	persistPolicy   retry.Policy

	mu sync.Mutex
	// active holds every Run/Resume call in flight per saga; only one of
	// them owns the lock, the others wait for it.
	active map[string][]*run
}

// run is the cancellation handle of a saga driven by this process.
type run struct {
	cancel context.CancelCauseFunc
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithStore sets the saga store. Defaults to an in-memory store.
func WithStore(store ports.SagaStore) Option {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithLocker makes saga ownership exclusive across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(o *Orchestrator) {
		o.locker = locker
	}
}

// WithLockTTL sets the lease of the distributed lock held while driving a saga.
func WithLockTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.lockTTL = ttl
	}
}

// WithRouter sets where step outputs are delivered.
func WithRouter(router ports.Router) Option {
	return func(o *Orchestrator) {
		o.router = router
	}
}

// WithRules sets the rule collaborator consulted before each step.
func WithRules(rules ports.RuleEvaluator) Option {
	return func(o *Orchestrator) {
		o.rules = rules
	}
}

// WithHistory records every persisted version in an append-only log.
func WithHistory(h ports.HistoryRecorder) Option {
	return func(o *Orchestrator) {
		o.history = h
	}
}

// WithClock replaces the wall clock used for timestamps and backoff waits.
func WithClock(c ports.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) {
		o.hooks = hooks
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPersistence configures how failed saves are retried.
func WithPersistence(attempts int, p retry.Policy) Option {
	return func(o *Orchestrator) {
		o.persistAttempts = attempts
		o.persistPolicy = p
	}
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		clock:           realClock{},
		logger:          logging.NewNop(),
		persistAttempts: DefaultPersistAttempts,
		persistPolicy:   retry.DefaultPolicy(),
		active:          make(map[string][]*run),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = memory.NewStore()
	}
	if o.persistAttempts < 1 {
		o.persistAttempts = 1
	}
	mopts := []instance.Option{instance.WithLogger(o.logger)}
	if o.locker != nil {
		mopts = append(mopts, instance.WithLocker(o.locker))
	}
	if o.lockTTL > 0 {
		mopts = append(mopts, instance.WithLockTTL(o.lockTTL))
	}
	o.manager = instance.NewManager(o.store, mopts...)
	return o
}

// Store returns the saga store.
func (o *Orchestrator) Store() ports.SagaStore {
	return o.store
}

// Run creates saga sagaID from def and drives it to a terminal status.
// An empty sagaID is replaced by a random one.
//
// The returned record is the last one persisted. The error is nil when the saga
// committed, a *StepError when it ended otherwise, and wraps ErrPersistence when
// the outcome could not be made durable.
func (o *Orchestrator) Run(ctx context.Context, def *domain.Definition, sagaID string, initial map[string]any) (*domain.Saga, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if err := def.CheckContext(initial); err != nil {
		return nil, err
	}
	table, err := def.Machine()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrDefinition, def.Name, err)
	}
	if sagaID == "" {
		sagaID = uuid.NewString()
	}

	ctx, release := o.track(ctx, sagaID)
	defer release()

	var result *domain.Saga
	err = o.manager.WithLock(ctx, sagaID, func(ctx context.Context) error {
		if _, err := o.store.Load(ctx, sagaID); err == nil {
			return fmt.Errorf("%w: %s", instance.ErrAlreadyExists, sagaID)
		} else if !errors.Is(err, domain.ErrSagaNotFound) {
			return fmt.Errorf("failed to check saga existence: %w", err)
		}

		t := newTracker(domain.NewSaga(sagaID, def, initial, o.clock.Now()), o.clock.Now)
		if err := o.persist(ctx, t, string(domain.EventSagaStarted)); err != nil {
			return err
		}
		o.emit(ctx, t.saga, &domain.SagaEvent{Type: domain.EventSagaStarted})
		o.logger.InfoContext(ctx, "saga started", "saga_id", sagaID, "saga", def.Name, "steps", len(def.Steps))

		saga, err := o.drive(ctx, def, table, t)
		result = saga
		return err
	})
	if err != nil {
		return result, err
	}
	return result, outcomeError(result)
}

// Resume continues saga sagaID from its last durable record.
// A terminal saga is returned unchanged.
func (o *Orchestrator) Resume(ctx context.Context, def *domain.Definition, sagaID string) (*domain.Saga, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	table, err := def.Machine()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrDefinition, def.Name, err)
	}

	ctx, release := o.track(ctx, sagaID)
	defer release()

	var result *domain.Saga
	err = o.manager.WithLock(ctx, sagaID, func(ctx context.Context) error {
		saga, err := o.store.Load(ctx, sagaID)
		if err != nil {
			return err
		}
		if saga.IsTerminal() {
			result = saga
			return nil
		}
		if saga.Name != def.Name || len(saga.Steps) != len(def.Steps) {
			return fmt.Errorf("%w: saga %s was started from %q with %d steps", domain.ErrDefinition, sagaID, saga.Name, len(saga.Steps))
		}
		o.logger.InfoContext(ctx, "saga resumed", "saga_id", sagaID, "status", saga.Status, "active", saga.ActiveIndex)
		result, err = o.drive(ctx, def, table, newTracker(saga, o.clock.Now))
		return err
	})
	if err != nil {
		return result, err
	}
	return result, outcomeError(result)
}

// Cancel stops saga sagaID. A saga driven by this orchestrator is interrupted at
// its next suspension point. Otherwise the request is stored on the record
// without taking the driver's lock; whichever process drives the saga picks it
// up at its next suspension point, or the next Resume does.
func (o *Orchestrator) Cancel(ctx context.Context, sagaID string) error {
	o.mu.Lock()
	runs := slices.Clone(o.active[sagaID])
	o.mu.Unlock()
	if len(runs) > 0 {
		o.logger.InfoContext(ctx, "saga cancellation requested", "saga_id", sagaID)
		for _, r := range runs {
			r.cancel(ErrCancelled)
		}
		return nil
	}

	// A driver may save between our load and save; re-read until the flag sticks.
	written := false
	for range cancelAttempts {
		saga, err := o.store.Load(ctx, sagaID)
		if err != nil {
			return err
		}
		if saga.IsTerminal() {
			if written && saga.CancelRequested {
				return nil
			}
			return fmt.Errorf("%w: saga %s is %s", domain.ErrTerminal, sagaID, saga.Status)
		}
		if saga.CancelRequested {
			return nil
		}
		t := newTracker(saga, o.clock.Now)
		t.saga.CancelRequested = true
		if err := o.persist(ctx, t, "cancel_requested"); err != nil {
			return err
		}
		written = true
	}
	return fmt.Errorf("failed to record cancel request for saga %s: record kept changing", sagaID)
}

// Inspect returns the stored record of sagaID.
func (o *Orchestrator) Inspect(ctx context.Context, sagaID string) (*domain.Saga, error) {
	return o.store.Load(ctx, sagaID)
}

// List returns the ids of stored sagas.
func (o *Orchestrator) List(ctx context.Context) ([]string, error) {
	return o.store.List(ctx)
}

// Running reports whether this orchestrator is currently driving sagaID.
func (o *Orchestrator) Running(sagaID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active[sagaID]) > 0
}

// track registers a cancellable context for sagaID.
func (o *Orchestrator) track(ctx context.Context, sagaID string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	r := &run{cancel: cancel}
	o.mu.Lock()
	o.active[sagaID] = append(o.active[sagaID], r)
	o.mu.Unlock()
	return ctx, func() {
		o.mu.Lock()
		runs := slices.DeleteFunc(o.active[sagaID], func(x *run) bool { return x == r })
		if len(runs) == 0 {
			delete(o.active, sagaID)
		} else {
			o.active[sagaID] = runs
		}
		o.mu.Unlock()
		cancel(nil)
	}
}

var _ ports.SagaService = (*Orchestrator)(nil)
