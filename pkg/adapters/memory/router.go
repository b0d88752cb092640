package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

// Handler consumes an envelope delivered by Router.
type Handler func(ctx context.Context, env domain.Envelope) error

type subscription struct {
	pattern domain.Address
	handler Handler
}

// Router implements ports.Router in memory. It records every delivered
// envelope and dispatches it synchronously to subscribers whose pattern matches.
type Router struct {
	mu        sync.Mutex
	published []domain.Envelope
	subs      []subscription
	fail      func(domain.Envelope) error
}

// NewRouter creates an empty in-memory router.
func NewRouter() *Router {
	return &Router{}
}

// Subscribe registers h for destinations matching pattern.
func (r *Router) Subscribe(pattern domain.Address, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, subscription{pattern: pattern, handler: h})
}

// FailWith installs a fault injector consulted before every delivery.
// A non-nil error from fn becomes a delivery failure. Pass nil to remove it.
func (r *Router) FailWith(fn func(domain.Envelope) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fn
}

// Publish records env and hands it to matching subscribers.
func (r *Router) Publish(ctx context.Context, env domain.Envelope) error {
	r.mu.Lock()
	if r.fail != nil {
		if err := r.fail(env); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("%w: %v", ports.ErrDelivery, err)
		}
	}
	r.published = append(r.published, env)
	var handlers []Handler
	for _, s := range r.subs {
		if env.Destination.Matches(s.pattern) {
			handlers = append(handlers, s.handler)
		}
	}
	r.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, env); err != nil {
			return fmt.Errorf("%w: %s: %v", ports.ErrDelivery, env.Destination, err)
		}
	}
	return nil
}

// Published returns the delivered envelopes in order.
func (r *Router) Published() []domain.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.published)
}

// To returns the delivered envelopes whose destination matches pattern.
func (r *Router) To(pattern domain.Address) []domain.Envelope {
	var out []domain.Envelope
	for _, env := range r.Published() {
		if env.Destination.Matches(pattern) {
			out = append(out, env)
		}
	}
	return out
}

var _ ports.Router = (*Router)(nil)
