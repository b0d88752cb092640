package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/sagaflow/internal/logging"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock is held if its owner dies.
const DefaultLockTTL = 30 * time.Second

// ErrAlreadyExists is returned by Create when the saga id is taken.
var ErrAlreadyExists = errors.New("saga already exists")

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serialises access to saga records.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.SagaStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the lease of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager over the given store.
func NewManager(store ports.SagaStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sagaID) after unlocking.
func (m *Manager) acquire(sagaID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sagaID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sagaID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sagaID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sagaID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sagaID)
	}
}

// Load retrieves a saga record from the store.
func (m *Manager) Load(ctx context.Context, sagaID string) (*domain.Saga, error) {
	var saga *domain.Saga
	err := m.WithLock(ctx, sagaID, func(ctx context.Context) error {
		var err error
		saga, err = m.store.Load(ctx, sagaID)
		return err
	})
	return saga, err
}

// Create persists a new record, failing with ErrAlreadyExists if the id is taken.
func (m *Manager) Create(ctx context.Context, saga *domain.Saga) error {
	return m.WithLock(ctx, saga.ID, func(ctx context.Context) error {
		_, err := m.store.Load(ctx, saga.ID)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, saga.ID)
		}
		if !errors.Is(err, domain.ErrSagaNotFound) {
			return fmt.Errorf("failed to check saga existence: %w", err)
		}
		return m.store.Save(ctx, saga)
	})
}

// Save persists the saga record.
func (m *Manager) Save(ctx context.Context, saga *domain.Saga) error {
	return m.WithLock(ctx, saga.ID, func(ctx context.Context) error {
		return m.store.Save(ctx, saga)
	})
}

// Delete removes the saga from the store.
func (m *Manager) Delete(ctx context.Context, sagaID string) error {
	return m.WithLock(ctx, sagaID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sagaID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying saga store.
func (m *Manager) Store() ports.SagaStore {
	return m.store
}

// WithLock executes fn while holding the lock for the saga.
//
// With a distributed locker the lease is renewed every third of its TTL while
// fn runs. When it cannot be kept, fn's context is cancelled with a cause
// wrapping ports.ErrLeaseLost; LeaseLost reports it even on detached contexts.
func (m *Manager) WithLock(ctx context.Context, sagaID string, fn func(context.Context) error) error {
	entry := m.acquire(sagaID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sagaID)
	}()

	if m.locker == nil {
		return fn(ctx)
	}

	lease, err := m.locker.Lock(ctx, sagaID, m.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire distributed lock: %w", err)
	}
	defer func() {
		// The release must happen even if ctx was cancelled mid-saga.
		if err := lease.Unlock(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
				"saga_id", sagaID,
				"err", err,
			)
		}
	}()

	state := &leaseState{}
	ctx, cancel := context.WithCancelCause(context.WithValue(ctx, leaseKey{}, state))
	defer cancel(nil)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.keepAlive(ctx, sagaID, lease, state, cancel, stop)
	}()
	defer func() {
		close(stop)
		<-done
	}()

	return fn(ctx)
}

// keepAlive renews lease until stop is closed. A lease reported lost, or one
// that could not be renewed for a whole TTL, cancels the owner's context.
func (m *Manager) keepAlive(ctx context.Context, sagaID string, lease ports.Lease, state *leaseState, cancel context.CancelCauseFunc, stop <-chan struct{}) {
	interval := m.lockTTL / 3
	if interval <= 0 {
		interval = m.lockTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	renewed := time.Now()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		err := lease.Renew(context.WithoutCancel(ctx), m.lockTTL)
		if err == nil {
			renewed = time.Now()
			continue
		}
		if !errors.Is(err, ports.ErrLeaseLost) && time.Since(renewed) < m.lockTTL {
			m.logger.Warn("Failed to renew distributed lock", "saga_id", sagaID, "err", err)
			continue
		}

		lost := fmt.Errorf("%w: saga %s: %w", ports.ErrLeaseLost, sagaID, err)
		state.lose(lost)
		cancel(lost)
		m.logger.Error("Distributed lock lost", "saga_id", sagaID, "err", err)
		return
	}
}

type leaseKey struct{}

type leaseState struct {
	lost atomic.Pointer[error]
}

func (s *leaseState) lose(err error) {
	s.lost.Store(&err)
}

// LeaseLost returns the error that ended the lease held for ctx, or nil.
// It survives context.WithoutCancel, so detached work can still stop writing.
func LeaseLost(ctx context.Context) error {
	s, ok := ctx.Value(leaseKey{}).(*leaseState)
	if !ok {
		return nil
	}
	if err := s.lost.Load(); err != nil {
		return *err
	}
	return nil
}
