package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultStreamPrefix namespaces the streams written by Router.
const DefaultStreamPrefix = "sagaflow:stream:"

// Router implements ports.Router on Redis Streams: one stream per destination.
type Router struct {
	client *backend.Client
	prefix string
	maxLen int64
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithStreamPrefix sets the stream key prefix.
func WithStreamPrefix(prefix string) RouterOption {
	return func(r *Router) {
		r.prefix = prefix
	}
}

// WithMaxLen trims each stream to roughly n entries.
func WithMaxLen(n int64) RouterOption {
	return func(r *Router) {
		r.maxLen = n
	}
}

// NewRouter creates a Streams router from an existing client.
func NewRouter(client *backend.Client, opts ...RouterOption) *Router {
	r := &Router{client: client, prefix: DefaultStreamPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stream returns the stream key an envelope for dest is appended to.
func (r *Router) Stream(dest domain.Address) string {
	return r.prefix + string(dest)
}

// Publish appends the envelope to the destination stream.
func (r *Router) Publish(ctx context.Context, env domain.Envelope) error {
	if env.Destination == "" {
		return fmt.Errorf("%w: saga %s step %s", ports.ErrNoRoute, env.SagaID, env.Step)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	args := &backend.XAddArgs{
		Stream: r.Stream(env.Destination),
		Values: map[string]any{
			"event":           env.Output.Event,
			"saga_id":         env.SagaID,
			"idempotency_key": env.IdempotencyKey,
			"data":            string(data),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("%w: xadd %s: %v", ports.ErrDelivery, args.Stream, err)
	}
	return nil
}
