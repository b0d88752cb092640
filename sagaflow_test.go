package sagaflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/sagaflow"
	"github.com/aretw0/sagaflow/internal/testutils"
	"github.com/aretw0/sagaflow/pkg/adapters/memory"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_StartAndResume(t *testing.T) {
	rec := &testutils.Recorder{}
	reg := sagaflow.NewRegistry()
	reg.MustRegister(testutils.Definition("order",
		testutils.Step("reserve", rec.Succeed("reserve", map[string]any{"reserved": true}), rec.Succeed(testutils.Undo("reserve"), nil)),
		testutils.Step("charge", rec.Succeed("charge", nil), nil),
	))

	store := memory.NewStore()
	eng := sagaflow.New(sagaflow.WithRegistry(reg), sagaflow.WithStore(store), sagaflow.WithClock(testutils.NewAutoClock()))
	ctx := context.Background()

	saga, err := eng.Start(ctx, "order", "o-1", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCommitted, saga.Status)
	assert.Equal(t, true, saga.Context["reserved"])

	// Resuming a terminal saga is a no-op.
	again, err := eng.Resume(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, saga.Version, again.Version)
	assert.Equal(t, 1, rec.Count("charge"))

	_, err = eng.Start(ctx, "order", "o-1", nil)
	assert.ErrorIs(t, err, sagaflow.ErrAlreadyExists)

	_, err = eng.Start(ctx, "refund", "", nil)
	assert.ErrorIs(t, err, domain.ErrDefinition)

	ids, err := eng.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"o-1"}, ids)

	require.NoError(t, eng.Delete(ctx, "o-1"))
	_, err = eng.Inspect(ctx, "o-1")
	assert.ErrorIs(t, err, domain.ErrSagaNotFound)
}

func TestEngine_FailureIsStepError(t *testing.T) {
	rec := &testutils.Recorder{}
	def := testutils.Definition("order",
		testutils.Step("reserve", rec.Succeed("reserve", nil), rec.Succeed(testutils.Undo("reserve"), nil)),
		testutils.Step("charge", rec.Fail("charge", errors.New("card declined")), nil),
	)
	eng := sagaflow.New(sagaflow.WithClock(testutils.NewAutoClock()))

	saga, err := eng.Run(context.Background(), def, "o-2", nil)
	var stepErr *sagaflow.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "charge", stepErr.Step)
	assert.Equal(t, domain.StatusFailed, saga.Status)
	assert.Equal(t, []string{"reserve", "charge", "undo:reserve"}, rec.Calls())
}

func TestEngine_ResumeAll(t *testing.T) {
	rec := &testutils.Recorder{}
	def := testutils.Definition("order",
		testutils.Step("reserve", rec.Succeed("reserve", nil), nil),
		testutils.Step("ship", rec.Succeed("ship", nil), nil),
	)
	reg := sagaflow.NewRegistry()
	reg.MustRegister(def)

	store := memory.NewStore()
	ctx := context.Background()

	// A saga interrupted after its first step, and one of an unknown kind.
	pending := domain.NewSaga("o-3", def, nil, testutils.NewClock().Now())
	pending.Steps[0].Outcome = domain.OutcomeSucceeded
	pending.Steps[0].Attempts = 1
	pending.ActiveIndex = 1
	pending.Current = "reserve"
	require.NoError(t, store.Save(ctx, pending))

	other := domain.NewSaga("x-1", testutils.Definition("legacy", testutils.Step("a", rec.Succeed("a", nil), nil)), nil, testutils.NewClock().Now())
	require.NoError(t, store.Save(ctx, other))

	eng := sagaflow.New(sagaflow.WithRegistry(reg), sagaflow.WithStore(store), sagaflow.WithClock(testutils.NewAutoClock()))
	resumed, err := eng.ResumeAll(ctx)
	require.NoError(t, err)
	require.Len(t, resumed, 1)
	assert.Equal(t, domain.StatusCommitted, resumed[0].Status)
	assert.Equal(t, []string{"ship"}, rec.Calls())
}

func TestProcessManager_ChainsSagas(t *testing.T) {
	rec := &testutils.Recorder{}
	checkout := testutils.Definition("checkout",
		testutils.Step("pay", rec.Succeed("pay", nil), nil),
	)
	checkout.Steps[0].Destination = "orders.paid"
	fulfil := testutils.Definition("fulfil",
		testutils.Step("ship", rec.Succeed("ship", nil), nil),
	)

	reg := sagaflow.NewRegistry()
	reg.MustRegister(checkout)
	reg.MustRegister(fulfil)

	router := memory.NewRouter()
	eng := sagaflow.New(sagaflow.WithRegistry(reg), sagaflow.WithRouter(router), sagaflow.WithClock(testutils.NewAutoClock()))

	pm := sagaflow.NewProcessManager(eng)
	pm.On("orders.*", func(_ context.Context, ev sagaflow.Event) (sagaflow.StartRequest, bool) {
		return sagaflow.StartRequest{Saga: "fulfil", Context: map[string]any{"from": string(ev.Subject)}}, true
	})
	pm.On("billing.>", func(context.Context, sagaflow.Event) (sagaflow.StartRequest, bool) {
		t.Fatal("policy for another subject must not run")
		return sagaflow.StartRequest{}, false
	})
	router.Subscribe("orders.>", pm.HandleEnvelope)

	ctx := context.Background()
	_, err := eng.Start(ctx, "checkout", "c-1", nil)
	require.NoError(t, err)

	chained, err := eng.Inspect(ctx, "fulfil-c-1:0:pay")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCommitted, chained.Status)
	assert.Equal(t, "orders.paid", chained.Context["from"])

	// Redelivery of the same envelope starts nothing new.
	require.NoError(t, pm.HandleEnvelope(ctx, router.Published()[0]))
	assert.Equal(t, 1, rec.Count("ship"))
}

func TestProcessManager_RedeliveryResumesInterruptedSaga(t *testing.T) {
	rec := &testutils.Recorder{}
	def := testutils.Definition("fulfil",
		testutils.Step("pick", rec.Succeed("pick", nil), nil),
		testutils.Step("ship", rec.Succeed("ship", nil), nil),
	)
	reg := sagaflow.NewRegistry()
	reg.MustRegister(def)

	store := memory.NewStore()
	ctx := context.Background()

	// The first delivery was interrupted after "pick".
	interrupted := domain.NewSaga("fulfil-e-1", def, nil, testutils.NewClock().Now())
	interrupted.Steps[0].Outcome = domain.OutcomeSucceeded
	interrupted.Steps[0].Attempts = 1
	interrupted.ActiveIndex = 1
	interrupted.Current = "pick"
	require.NoError(t, store.Save(ctx, interrupted))

	eng := sagaflow.New(sagaflow.WithRegistry(reg), sagaflow.WithStore(store), sagaflow.WithClock(testutils.NewAutoClock()))
	pm := sagaflow.NewProcessManager(eng)
	pm.On("orders.>", func(context.Context, sagaflow.Event) (sagaflow.StartRequest, bool) {
		return sagaflow.StartRequest{Saga: "fulfil"}, true
	})

	ev := sagaflow.Event{ID: "e-1", Subject: "orders.paid"}
	sagas, err := pm.Handle(ctx, ev)
	require.NoError(t, err)
	require.Len(t, sagas, 1)
	assert.Equal(t, domain.StatusCommitted, sagas[0].Status)
	assert.Equal(t, []string{"ship"}, rec.Calls())

	// Once terminal, further redeliveries change nothing.
	again, err := pm.Handle(ctx, ev)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, sagas[0].Version, again[0].Version)
	assert.Equal(t, 1, rec.Count("ship"))
}

func TestRegistry(t *testing.T) {
	rec := &testutils.Recorder{}
	reg := sagaflow.NewRegistry()
	require.NoError(t, reg.Register(testutils.Definition("b", testutils.Step("x", rec.Succeed("x", nil), nil))))
	require.NoError(t, reg.Register(testutils.Definition("a", testutils.Step("x", rec.Succeed("x", nil), nil))))
	assert.Equal(t, []string{"a", "b"}, reg.Definitions())

	err := reg.Register(&domain.Definition{Name: "broken"})
	assert.ErrorIs(t, err, domain.ErrDefinition)
	assert.Panics(t, func() { reg.MustRegister(&domain.Definition{}) })
}

func TestEngine_RejectsContextOutsideContract(t *testing.T) {
	rec := &testutils.Recorder{}
	def := testutils.Definition("refund", testutils.Step("refund", rec.Succeed("refund", nil), nil))
	def.Context, _ = schema.Parse(map[string]string{"amount": "int"})

	eng := sagaflow.New(sagaflow.WithClock(testutils.NewAutoClock()))
	_, err := eng.Run(context.Background(), def, "r-1", map[string]any{"amount": "ten"})
	assert.ErrorIs(t, err, domain.ErrInvalidContext)
	assert.Zero(t, rec.Count("refund"))

	_, err = eng.Inspect(context.Background(), "r-1")
	assert.ErrorIs(t, err, domain.ErrSagaNotFound, "nothing is persisted for a rejected start")
}
