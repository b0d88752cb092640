package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contractSaga builds a small record without depending on a Definition.
func contractSaga(id string) *domain.Saga {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Saga{
		ID:      id,
		Name:    "contract",
		Status:  domain.StatusRunning,
		Current: "start",
		Steps: []domain.StepRecord{
			{Index: 0, Name: "reserve", Outcome: domain.OutcomeSucceeded, Attempts: 1, Compensable: true},
			{Index: 1, Name: "charge", Outcome: domain.OutcomePending},
		},
		ActiveIndex: 1,
		Context:     map[string]any{},
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RunSagaStoreContract runs a suite of tests to verify that a SagaStore implementation
// adheres to the defined interface contract.
func RunSagaStoreContract(t *testing.T, store SagaStore) {
	ctx := context.Background()
	sagaID := "contract-test-saga-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		// 1. Create a record
		saga := contractSaga(sagaID)
		saga.Context["foo"] = "bar"
		saga.Context["count"] = 42

		// 2. Save
		err := store.Save(ctx, saga)
		require.NoError(t, err, "Save should not return error")

		// 3. Load
		loaded, err := store.Load(ctx, sagaID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, saga.Status, loaded.Status)
		assert.Equal(t, saga.Current, loaded.Current)
		assert.Equal(t, saga.ActiveIndex, loaded.ActiveIndex)
		assert.Equal(t, saga.Steps, loaded.Steps)
		assert.Equal(t, "bar", loaded.Context["foo"])
		// JSON persistence turns ints into float64; existence is what matters here.
		assert.NotNil(t, loaded.Context["count"])
	})

	t.Run("Load Returns Independent Copy", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, contractSaga(sagaID)))

		loaded, err := store.Load(ctx, sagaID)
		require.NoError(t, err)
		loaded.Steps[0].Outcome = domain.OutcomeCompensated

		again, err := store.Load(ctx, sagaID)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeSucceeded, again.Steps[0].Outcome)
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		saga := contractSaga(sagaID)
		require.NoError(t, store.Save(ctx, saga))

		saga.Status = domain.StatusCommitted
		saga.Version = 2
		require.NoError(t, store.Save(ctx, saga))

		loaded, err := store.Load(ctx, sagaID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCommitted, loaded.Status)
		assert.Equal(t, 2, loaded.Version)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sagaID)
		assert.ErrorIs(t, err, domain.ErrSagaNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		// Setup
		err := store.Save(ctx, contractSaga(sagaID))
		require.NoError(t, err)

		// Delete
		err = store.Delete(ctx, sagaID)
		require.NoError(t, err, "Delete should not return error")

		// Verify gone
		_, err = store.Load(ctx, sagaID)
		assert.ErrorIs(t, err, domain.ErrSagaNotFound, "Load after Delete should return ErrSagaNotFound")
	})

	t.Run("List", func(t *testing.T) {
		// Setup: Create 2 sagas
		id1 := sagaID + "-1"
		id2 := sagaID + "-2"
		_ = store.Save(ctx, contractSaga(id1))
		_ = store.Save(ctx, contractSaga(id2))

		// Ensure cleanup
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		// List
		sagas, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sagas, id1)
		assert.Contains(t, sagas, id2)
	})
}
