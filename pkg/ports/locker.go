package ports

import (
	"context"
	"errors"
	"time"
)

// ErrLeaseLost is reported once a held lock has expired or been taken over.
var ErrLeaseLost = errors.New("distributed lock lease lost")

// Lease is a held distributed lock.
type Lease interface {
	// Renew extends the lease to ttl from now. It returns ErrLeaseLost when
	// the key is no longer held by this lease.
	Renew(ctx context.Context, ttl time.Duration) error

	// Unlock releases the lock. Releasing a lost lease is a no-op.
	Unlock(ctx context.Context) error
}

// DistributedLocker defines the interface for distributed concurrency control.
// It lets the instance manager make sure only one replica drives a saga at a time.
type DistributedLocker interface {
	// Lock attempts to acquire a distributed lock for the given key (e.g., saga ID).
	// It blocks until the lock is acquired or the context is canceled.
	// The returned Lease expires after ttl unless renewed, and MUST be unlocked.
	Lock(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}
