package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/retry"
)

// ErrDelivery wraps every failure to hand an envelope to its destination.
// It is transient, so the default retry classifier retries it.
var ErrDelivery = fmt.Errorf("delivery failed: %w", retry.ErrTransient)

// ErrNoRoute is returned when no route matches the envelope destination.
var ErrNoRoute = errors.New("no route for destination")

// Router delivers the outputs produced by saga steps to other domains.
type Router interface {
	// Publish hands the envelope to its destination. A delivery failure must wrap ErrDelivery.
	Publish(ctx context.Context, env domain.Envelope) error
}

// RouterFunc adapts a function to Router.
type RouterFunc func(ctx context.Context, env domain.Envelope) error

func (f RouterFunc) Publish(ctx context.Context, env domain.Envelope) error {
	return f(ctx, env)
}
