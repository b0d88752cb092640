package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImmutableMiddleware(t *testing.T) {
	underlying := NewMockStore()
	store := middleware.NewImmutableMiddleware()(underlying)
	ctx := context.Background()

	saga := newSaga("imm")
	require.NoError(t, store.Save(ctx, saga))

	saga.Version = 2
	saga.Status = domain.StatusCommitted
	require.NoError(t, store.Save(ctx, saga))
	assert.Equal(t, 2, underlying.saves)

	// Re-saving the stored terminal version is absorbed.
	require.NoError(t, store.Save(ctx, saga))
	assert.Equal(t, 2, underlying.saves)

	// Anything else over a terminal record is rejected.
	saga.Version = 3
	saga.Status = domain.StatusCompensating
	err := store.Save(ctx, saga)
	assert.ErrorIs(t, err, domain.ErrTerminal)

	loaded, err := store.Load(ctx, saga.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCommitted, loaded.Status)
	assert.Equal(t, 2, loaded.Version)
}

func TestChain_Order(t *testing.T) {
	underlying := NewMockStore()
	var seen []string
	obs := middleware.NewObserverMiddleware(func(_ context.Context, prev, next *domain.Saga) {
		seen = append(seen, next.Context["user_password"].(string))
	})
	store := middleware.Chain(underlying, obs, middleware.NewPIIMiddleware([]string{"password"}))

	saga := newSaga("chain")
	saga.Context["user_password"] = "hunter2"
	require.NoError(t, store.Save(context.Background(), saga))

	// The observer is outermost and sees the unmasked record.
	assert.Equal(t, []string{"hunter2"}, seen)
	stored, err := underlying.Load(context.Background(), "chain")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, stored.Context["user_password"])
}
