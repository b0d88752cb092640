package sagaflow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

// Registry holds saga definitions by name. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*domain.Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*domain.Definition)}
}

// Register validates def, including a dry run through its table, and stores it.
// A definition with the same name is replaced.
func (r *Registry) Register(def *domain.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if _, err := def.DryRun(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(def *domain.Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Definition returns the definition registered under name.
func (r *Registry) Definition(name string) (*domain.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: no saga named %q", domain.ErrDefinition, name)
	}
	return def, nil
}

// Definitions lists the registered names, sorted.
func (r *Registry) Definitions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ ports.DefinitionSource = (*Registry)(nil)
