package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/sagaflow"
	"github.com/aretw0/sagaflow/internal/logging"
	"github.com/aretw0/sagaflow/internal/testutils"
	"github.com/aretw0/sagaflow/pkg/adapters/memory"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine  *sagaflow.Engine
	store   *memory.Store
	streams *StreamManager
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rec := &testutils.Recorder{}
	reg := sagaflow.NewRegistry()
	reg.MustRegister(testutils.Definition("order",
		testutils.Step("reserve", rec.Succeed("reserve", map[string]any{"sku": "A-1"}), rec.Succeed(testutils.Undo("reserve"), nil)),
		testutils.Step("charge", rec.Succeed("charge", nil), nil),
	))

	streams := NewStreamManager(logging.NewNop())
	store := memory.NewStore()
	eng := sagaflow.New(
		sagaflow.WithRegistry(reg),
		sagaflow.WithStore(middleware.Chain(store, middleware.NewObserverMiddleware(streams.Observe))),
		sagaflow.WithClock(testutils.NewAutoClock()),
	)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("sagaflow_sagas_started_total 1\n"))
	})
	h := NewHandler(eng,
		WithDefinitions(reg),
		WithStreams(streams),
		WithMetrics(metrics),
		WithVersion("v1.2.3\n"),
	)
	return &fixture{engine: eng, store: store, streams: streams, handler: h}
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestServer_InspectAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Start(ctx, "order", "o-1", nil)
	require.NoError(t, err)
	require.NoError(t, f.store.Save(ctx, &domain.Saga{ID: "o-2", Name: "order", Status: domain.StatusRunning, Current: "reserve"}))

	w := f.do(t, http.MethodGet, "/sagas/o-1")
	require.Equal(t, http.StatusOK, w.Code)
	var saga domain.Saga
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saga))
	assert.Equal(t, domain.StatusCommitted, saga.Status)
	assert.Equal(t, "A-1", saga.Context["sku"])

	w = f.do(t, http.MethodGet, "/sagas/")
	require.Equal(t, http.StatusOK, w.Code)
	var all []SagaSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, "o-1", all[0].ID)
	assert.Equal(t, "o-2", all[1].ID)

	w = f.do(t, http.MethodGet, "/sagas/?status=running")
	var running []SagaSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &running))
	require.Len(t, running, 1)
	assert.Equal(t, "o-2", running[0].ID)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/sagas/missing").Code)
}

func TestServer_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Start(ctx, "order", "done", nil)
	require.NoError(t, err)
	require.NoError(t, f.store.Save(ctx, &domain.Saga{ID: "parked", Name: "order", Status: domain.StatusRunning, Current: "reserve"}))

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/sagas/missing/cancel").Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/sagas/done/cancel").Code)

	w := f.do(t, http.MethodPost, "/sagas/parked/cancel")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "cancel_requested")

	parked, err := f.store.Load(ctx, "parked")
	require.NoError(t, err)
	assert.True(t, parked.CancelRequested)
}

func TestServer_Graph(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Start(context.Background(), "order", "o-1", nil)
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/sagas/o-1/graph")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stateDiagram-v2")
	assert.Contains(t, w.Body.String(), "class")
}

func TestServer_InfoHealthMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/info")
	require.Equal(t, http.StatusOK, w.Code)
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "v1.2.3", info["version"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz").Code)
	assert.Contains(t, f.do(t, http.MethodGet, "/metrics").Body.String(), "sagaflow_sagas_started_total")
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodOptions, "/sagas/").Code)
}

func TestServer_SSE(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sagas/o-1/events?watch=status", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())
	require.Eventually(t, func() bool { return f.streams.Subscribers("o-1") == 1 }, time.Second, 10*time.Millisecond)

	_, err = f.engine.Start(context.Background(), "order", "o-1", nil)
	require.NoError(t, err)

	var statuses []domain.Status
	for lines.Scan() {
		line := lines.Text()
		if !strings.HasPrefix(line, "data: {") {
			continue
		}
		var diff domain.SagaDiff
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &diff))
		assert.Equal(t, "o-1", diff.SagaID)
		require.NotNil(t, diff.Status, "watch=status must filter diffs without a status change")
		statuses = append(statuses, *diff.Status)
		if *diff.Status == domain.StatusCommitted {
			break
		}
	}
	require.NotEmpty(t, statuses)
	assert.Equal(t, domain.StatusCommitted, statuses[len(statuses)-1])
}

func TestWatched(t *testing.T) {
	status := domain.StatusFailed
	withStatus, _ := json.Marshal(domain.SagaDiff{SagaID: "s", Status: &status})
	withContext, _ := json.Marshal(domain.SagaDiff{SagaID: "s", Context: map[string]any{"k": 1}})

	assert.True(t, watched(string(withStatus), []string{"status"}))
	assert.False(t, watched(string(withContext), []string{"status"}))
	assert.True(t, watched(string(withContext), []string{"status", " context"}))
	assert.True(t, watched("not json", []string{"steps"}))
}
