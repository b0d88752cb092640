// Package log provides a Router that writes envelopes to a structured logger.
// It is the CLI default when no broker is configured.
package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

// Router logs every envelope at the configured level.
type Router struct {
	logger *slog.Logger
	level  slog.Level
}

// NewRouter creates a logging router. A nil logger uses slog.Default.
func NewRouter(logger *slog.Logger, level slog.Level) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger, level: level}
}

func (r *Router) Publish(ctx context.Context, env domain.Envelope) error {
	if env.Destination == "" {
		return fmt.Errorf("%w: saga %s step %s", ports.ErrNoRoute, env.SagaID, env.Step)
	}
	r.logger.Log(ctx, r.level, "envelope published",
		"saga_id", env.SagaID,
		"saga", env.Saga,
		"step", env.Step,
		"destination", env.Destination,
		"event", env.Output.Event,
		"idempotency_key", env.IdempotencyKey,
		"payload", env.Output.Payload,
	)
	return nil
}

var _ ports.Router = (*Router)(nil)
