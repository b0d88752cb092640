package middleware

import "github.com/aretw0/sagaflow/pkg/ports"

// Middleware allows wrapping a SagaStore to add behavior.
type Middleware func(ports.SagaStore) ports.SagaStore

// Chain applies mws so that the first one is the outermost wrapper.
func Chain(store ports.SagaStore, mws ...Middleware) ports.SagaStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
