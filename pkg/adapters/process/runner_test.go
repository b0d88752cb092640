package process_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/aretw0/sagaflow/pkg/adapters/process"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process tests rely on sh")
	}
}

func stepContext() domain.StepContext {
	return domain.StepContext{
		SagaID:         "s-1",
		SagaName:       "order",
		Step:           "charge",
		Index:          1,
		Attempt:        2,
		IdempotencyKey: "s-1:1:charge",
		Data:           map[string]any{"order-id": "o-7", "items": []any{"a", "b"}},
	}
}

func TestRunner_Execute(t *testing.T) {
	skipOnWindows(t)
	runner := process.NewRunner()
	runner.Register("echo_env", "sh", "-c", `echo "$SAGAFLOW_IDEMPOTENCY_KEY $SAGAFLOW_ARG_ORDER_ID $SAGAFLOW_ATTEMPT"`)
	runner.Register("emit_json", "sh", "-c", `echo '{"charge_id":"ch-1"}'`)
	runner.Register("tempfail", "sh", "-c", "echo busy >&2; exit 75")
	runner.Register("crash", "sh", "-c", "echo boom >&2; exit 3")

	ctx := context.Background()

	t.Run("Passes Context via Env Vars", func(t *testing.T) {
		res, err := runner.Execute(ctx, "echo_env", stepContext())
		require.NoError(t, err)
		assert.Equal(t, "s-1:1:charge o-7 2", res.Payload["stdout"])
	})

	t.Run("Merges JSON Output", func(t *testing.T) {
		res, err := runner.Action("emit_json")(ctx, stepContext())
		require.NoError(t, err)
		assert.Equal(t, "ch-1", res.Data["charge_id"])
	})

	t.Run("Exit 75 Is Retryable", func(t *testing.T) {
		_, err := runner.Execute(ctx, "tempfail", stepContext())
		require.Error(t, err)
		assert.Equal(t, retry.KindRetryable, retry.Classify(retry.DefaultPolicy(), err))
		assert.Contains(t, err.Error(), "busy")
	})

	t.Run("Other Exit Codes Are Fatal", func(t *testing.T) {
		_, err := runner.Execute(ctx, "crash", stepContext())
		require.Error(t, err)
		assert.Equal(t, retry.KindFatal, retry.Classify(retry.DefaultPolicy(), err))
		assert.Contains(t, err.Error(), "exit status 3")
	})

	t.Run("Fails For Unregistered Command", func(t *testing.T) {
		_, err := runner.Execute(ctx, "hacker_script", stepContext())
		assert.ErrorIs(t, err, process.ErrNotRegistered)
		assert.Equal(t, retry.KindFatal, retry.Classify(retry.DefaultPolicy(), err))
	})
}

func TestRunner_CancelledCommandIsInterrupted(t *testing.T) {
	skipOnWindows(t)
	runner := process.NewRunner(process.WithGracePeriod(2 * time.Second))
	runner.Register("sleeper", "sh", "-c", "trap 'exit 0' INT; sleep 10 & wait")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := runner.Execute(ctx, "sleeper", stepContext())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEnvironment(t *testing.T) {
	env := process.Environment(stepContext())
	assert.Contains(t, env, "SAGAFLOW_SAGA_ID=s-1")
	assert.Contains(t, env, "SAGAFLOW_STEP_INDEX=1")
	assert.Contains(t, env, `SAGAFLOW_ARG_ITEMS=["a","b"]`)
	assert.Contains(t, env, "SAGAFLOW_ARG_ORDER_ID=o-7")
}

func TestLoadCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
commands:
  - name: charge
    command: ./bin/charge
    args: ["--live"]
    env:
      REGION: eu
  - command: ignored
`), 0o644))

	cmds, err := process.LoadCommands(path)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, []string{"--live"}, cmds["charge"].Args)
	assert.Equal(t, "eu", cmds["charge"].Environment["REGION"])

	missing, err := process.LoadCommands(filepath.Join(dir, "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, missing)

	runner := process.NewRunner(process.WithCommands(cmds))
	assert.True(t, runner.Has("charge"))
	assert.Equal(t, []string{"charge"}, runner.Names())
}

func TestReadConfig_GracePeriod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grace_period: 2s\ncommands:\n  - name: ship\n    command: ./ship\n"), 0o644))

	cfg, err := process.ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.GracePeriod)
	assert.Contains(t, cfg.ByName(), "ship")
}
