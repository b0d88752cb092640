package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/sagaflow/pkg/adapters/redis"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisStore_Contract(t *testing.T) {
	// Setup miniredis
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	// Initialize client
	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})

	// Run contract
	store := redis.NewFromClient(client)
	ports.RunSagaStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})

	// Create store with 1s TTL
	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()
	saga := &domain.Saga{
		ID:      "saga-ttl",
		Status:  domain.StatusCommitted,
		Current: "shipped",
		Context: map[string]any{
			"foo": "bar",
		},
	}

	// 1. Save
	err = store.Save(ctx, saga)
	assert.NoError(t, err)

	// 2. Verify List (immediately)
	sagas, err := store.List(ctx)
	assert.NoError(t, err)
	assert.Contains(t, sagas, saga.ID)

	// 3. Fast Forward time in miniredis (for Key Expiration)
	mr.FastForward(2 * time.Second)

	// 4. Verify Load (should fail)
	_, err = store.Load(ctx, saga.ID)
	assert.ErrorIs(t, err, domain.ErrSagaNotFound)

	// 5. Verify List (lazily cleaned up).
	// The index score is computed from time.Now(), so real time has to pass.
	time.Sleep(1200 * time.Millisecond)

	sagas, err = store.List(ctx)
	assert.NoError(t, err)
	assert.Empty(t, sagas)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})

	// Custom Prefix
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	err = store.Save(ctx, &domain.Saga{ID: "my-saga", Status: domain.StatusRunning})
	assert.NoError(t, err)

	// Key should be "custom:app:record:my-saga"
	assert.True(t, mr.Exists("custom:app:record:my-saga"), "Expected key with custom prefix to exist")

	// Index should be "custom:app:index"
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")

	list, err := store.List(ctx)
	assert.NoError(t, err)
	assert.Contains(t, list, "my-saga")
}

func TestRedisStore_SagaNamedIndex(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	store := redis.NewFromClient(client)
	ctx := context.Background()

	assert.NoError(t, store.Save(ctx, &domain.Saga{ID: "a", Status: domain.StatusRunning}))
	assert.NoError(t, store.Save(ctx, &domain.Saga{ID: "index", Status: domain.StatusRunning}))
	assert.NoError(t, store.Save(ctx, &domain.Saga{ID: "b", Status: domain.StatusRunning}))

	list, err := store.List(ctx)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "index", "b"}, list)

	loaded, err := store.Load(ctx, "index")
	assert.NoError(t, err)
	assert.Equal(t, "index", loaded.ID)

	assert.NoError(t, store.Delete(ctx, "index"))
	list, err = store.List(ctx)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, list)
}
