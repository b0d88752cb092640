package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/sagaflow/internal/runtime"
	"github.com/aretw0/sagaflow/internal/testutils"
	"github.com/aretw0/sagaflow/pkg/adapters/memory"
	"github.com/aretw0/sagaflow/pkg/adapters/redis"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runResult struct {
	saga *domain.Saga
	err  error
}

func waitStarted(t *testing.T, started <-chan struct{}) {
	t.Helper()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("action never started")
	}
}

func waitResult(t *testing.T, done <-chan runResult) runResult {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("saga did not return")
		return runResult{}
	}
}

// gated records name, signals started and succeeds once release is closed.
func gated(rec *testutils.Recorder, name string, started chan<- struct{}, release <-chan struct{}) domain.Action {
	return func(ctx context.Context, sc domain.StepContext) (domain.StepResult, error) {
		rec.Succeed(name, nil)(ctx, sc)
		started <- struct{}{}
		<-release
		return domain.StepResult{}, nil
	}
}

func TestOrchestrator_CancelFromAnotherReplica(t *testing.T) {
	rec := &testutils.Recorder{}
	store := memory.NewStore()
	driver := runtime.New(runtime.WithStore(store), runtime.WithClock(testutils.NewAutoClock()))
	other := runtime.New(runtime.WithStore(store), runtime.WithClock(testutils.NewAutoClock()))

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	def := testutils.Definition("order",
		testutils.Step("reserve", gated(rec, "reserve", started, release), rec.Succeed(testutils.Undo("reserve"), nil)),
		testutils.Step("charge", rec.Succeed("charge", nil), nil),
	)

	done := make(chan runResult, 1)
	go func() {
		saga, err := driver.Run(context.Background(), def, "s-1", nil)
		done <- runResult{saga, err}
	}()
	waitStarted(t, started)

	require.NoError(t, other.Cancel(context.Background(), "s-1"))
	stored, err := store.Load(context.Background(), "s-1")
	require.NoError(t, err)
	assert.True(t, stored.CancelRequested)

	close(release)
	res := waitResult(t, done)

	assert.ErrorIs(t, res.err, runtime.ErrCancelled)
	assert.Equal(t, domain.StatusCancelled, res.saga.Status)
	assert.True(t, res.saga.CancelRequested, "the driver must not overwrite the stored request")
	assert.Zero(t, rec.Count("charge"), "no forward step follows the request")
	assert.Equal(t, 1, rec.Count(testutils.Undo("reserve")))
	assert.NoError(t, res.saga.CheckInvariants())

	final, err := store.Load(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, final.Status)
	assert.Greater(t, final.Version, stored.Version)
}

func TestOrchestrator_CancelDoesNotWaitForDriverLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})

	rec := &testutils.Recorder{}
	store := memory.NewStore()
	newReplica := func() *runtime.Orchestrator {
		return runtime.New(
			runtime.WithStore(store),
			runtime.WithLocker(redis.NewLocker(client, "test:")),
			runtime.WithClock(testutils.NewAutoClock()),
		)
	}
	driver, other := newReplica(), newReplica()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	def := testutils.Definition("order",
		testutils.Step("reserve", gated(rec, "reserve", started, release), rec.Succeed(testutils.Undo("reserve"), nil)),
		testutils.Step("charge", rec.Succeed("charge", nil), nil),
	)

	done := make(chan runResult, 1)
	go func() {
		saga, err := driver.Run(context.Background(), def, "s-2", nil)
		done <- runResult{saga, err}
	}()
	waitStarted(t, started)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, other.Cancel(ctx, "s-2"), "cancel is recorded while the driver holds the lock")

	close(release)
	res := waitResult(t, done)
	assert.Equal(t, domain.StatusCancelled, res.saga.Status)
	assert.Zero(t, rec.Count("charge"))
	assert.Equal(t, 1, rec.Count(testutils.Undo("reserve")))
}

func TestOrchestrator_LeaseOutlivesSlowStep(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})

	rec := &testutils.Recorder{}
	store := memory.NewStore()
	newReplica := func() *runtime.Orchestrator {
		return runtime.New(
			runtime.WithStore(store),
			runtime.WithLocker(redis.NewLocker(client, "test:")),
			runtime.WithLockTTL(600*time.Millisecond),
			runtime.WithClock(testutils.NewAutoClock()),
		)
	}
	first, second := newReplica(), newReplica()

	started := make(chan struct{}, 1)
	def := testutils.Definition("order", testutils.Step("reserve", rec.Block("reserve", started), nil))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	done := make(chan runResult, 1)
	go func() {
		saga, err := first.Run(ctx, def, "s-3", nil)
		done <- runResult{saga, err}
	}()
	waitStarted(t, started)

	// The step runs for several lock TTLs.
	for range 4 {
		mr.FastForward(300 * time.Millisecond)
		time.Sleep(300 * time.Millisecond)
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = second.Resume(waitCtx, def, "s-3")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "a second replica must not enter a saga that is still driven")
	assert.Equal(t, 1, rec.Count("reserve"))

	stop()
	res := waitResult(t, done)
	assert.Equal(t, domain.StatusCancelled, res.saga.Status)
}

func TestOrchestrator_LostLeaseStopsDriver(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})

	rec := &testutils.Recorder{}
	store := memory.NewStore()
	locker := redis.NewLocker(client, "test:")
	o := runtime.New(
		runtime.WithStore(store),
		runtime.WithLocker(locker),
		runtime.WithLockTTL(300*time.Millisecond),
		runtime.WithClock(testutils.NewAutoClock()),
	)

	started := make(chan struct{}, 1)
	def := testutils.Definition("order",
		testutils.Step("reserve", rec.Succeed("reserve", nil), rec.Succeed(testutils.Undo("reserve"), nil)),
		testutils.Step("charge", rec.Block("charge", started), nil),
	)

	done := make(chan runResult, 1)
	go func() {
		saga, err := o.Run(context.Background(), def, "s-4", nil)
		done <- runResult{saga, err}
	}()
	waitStarted(t, started)

	// The lease expires and another replica takes the saga over.
	mr.FastForward(time.Second)
	lease, err := locker.Lock(context.Background(), "s-4", time.Minute)
	require.NoError(t, err)
	defer lease.Unlock(context.Background())

	res := waitResult(t, done)
	assert.ErrorIs(t, res.err, ports.ErrLeaseLost)
	assert.Zero(t, rec.Count(testutils.Undo("reserve")), "only the new owner may compensate")

	stored, err := store.Load(context.Background(), "s-4")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, stored.Status, "nothing is written after the lease is lost")
	assert.Equal(t, 1, stored.ActiveIndex)
	assert.Nil(t, stored.Failure)
}
