package ports

import "github.com/aretw0/sagaflow/pkg/domain"

// DefinitionSource resolves saga definitions by name.
type DefinitionSource interface {
	// Definition returns the definition registered under name.
	Definition(name string) (*domain.Definition, error)

	// Definitions lists the registered names, sorted.
	Definitions() []string
}
