package domain

import (
	"errors"

	"github.com/aretw0/sagaflow/pkg/fsm"
)

// ErrSagaNotFound is returned when a saga ID cannot be found in the store.
var ErrSagaNotFound = errors.New("saga not found")

// ErrInvalidTransition is returned when the transition table has no entry for (state, input).
var ErrInvalidTransition = fsm.ErrInvalidTransition

// ErrTerminal is returned when a mutation is attempted on a saga in a terminal status.
var ErrTerminal = errors.New("saga is terminal")

// ErrInvariant is returned when a saga record violates a lifecycle invariant.
var ErrInvariant = errors.New("saga invariant violated")

// ErrDefinition is returned when a saga definition is inconsistent.
var ErrDefinition = errors.New("invalid saga definition")

// ErrInvalidContext is returned when a saga is started with a context that
// does not satisfy its definition's contract.
var ErrInvalidContext = errors.New("invalid saga context")

// ErrInvalidAddress is returned when a destination address is malformed.
var ErrInvalidAddress = errors.New("invalid address")
