package definition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/retry"
)

// ErrUnknownAction is returned when an action reference cannot be resolved.
var ErrUnknownAction = errors.New("unknown action")

// Builtin action names, always registered.
const (
	ActionNoop = "noop"
	ActionFail = "fail"
)

// CommandSource exposes allow-listed commands as actions.
// *process.Runner satisfies it.
type CommandSource interface {
	Has(name string) bool
	Action(name string) domain.Action
}

// Registry resolves action references. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	actions  map[string]domain.Action
	commands CommandSource
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCommands lets references fall through to allow-listed commands.
func WithCommands(src CommandSource) RegistryOption {
	return func(r *Registry) {
		r.commands = src
	}
}

// NewRegistry creates a registry holding the builtin actions.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{actions: map[string]domain.Action{
		ActionNoop: func(context.Context, domain.StepContext) (domain.StepResult, error) {
			return domain.StepResult{}, nil
		},
		ActionFail: func(_ context.Context, sc domain.StepContext) (domain.StepResult, error) {
			return domain.StepResult{}, retry.Fatal(fmt.Errorf("step %s failed by definition", sc.Step))
		},
	}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces an in-process action.
func (r *Registry) Register(name string, action domain.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = action
}

// Names returns the registered in-process action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the action ref points at.
func (r *Registry) Resolve(ref ActionRef) (domain.Action, error) {
	if ref.Command != "" {
		if r.commands != nil && r.commands.Has(ref.Command) {
			return r.commands.Action(ref.Command), nil
		}
		return nil, fmt.Errorf("%w: command %q is not allow-listed", ErrUnknownAction, ref.Command)
	}

	r.mu.RLock()
	action, ok := r.actions[ref.Name]
	r.mu.RUnlock()
	if ok {
		return action, nil
	}
	if r.commands != nil && r.commands.Has(ref.Name) {
		return r.commands.Action(ref.Name), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, ref.Name)
}
