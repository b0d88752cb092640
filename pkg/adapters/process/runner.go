package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/retry"
)

const (
	// ExitTempFail (EX_TEMPFAIL) tells the orchestrator the step may be retried.
	ExitTempFail = 75
	// DefaultGracePeriod is the time between interrupt and kill on cancellation.
	DefaultGracePeriod = 5 * time.Second
	// EnvPrefix prefixes every variable passed to a command.
	EnvPrefix = "SAGAFLOW_"
)

// ErrNotRegistered is returned for commands missing from the allow-list.
var ErrNotRegistered = errors.New("process command not registered")

var envKey = regexp.MustCompile(`[^A-Z0-9_]`)

// Runner executes allow-listed local commands as saga actions.
// Saga data reaches the command through environment variables only, never as arguments.
type Runner struct {
	registry map[string]CommandConfig
	baseDir  string
	grace    time.Duration
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithCommands populates the allow-list from a loaded config.
func WithCommands(commands map[string]CommandConfig) RunnerOption {
	return func(r *Runner) {
		for name, c := range commands {
			c.Name = name
			r.registry[name] = c
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithGracePeriod sets the interrupt-to-kill delay for cancelled commands.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// NewRunner creates a new process runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]CommandConfig),
		grace:    DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.registry[name] = CommandConfig{Name: name, Command: command, Args: args}
}

// Has reports whether name is allow-listed.
func (r *Runner) Has(name string) bool {
	_, ok := r.registry[name]
	return ok
}

// Names returns the allow-listed command names, sorted.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Action returns a saga action running the named command.
//
// Exit code 75 is retryable, any other non-zero exit is fatal. A JSON object
// printed on stdout is merged into the saga context; other output is attached
// to the routed payload under "stdout".
func (r *Runner) Action(name string) domain.Action {
	return func(ctx context.Context, sc domain.StepContext) (domain.StepResult, error) {
		return r.Execute(ctx, name, sc)
	}
}

// Execute runs the named command once for sc.
func (r *Runner) Execute(ctx context.Context, name string, sc domain.StepContext) (domain.StepResult, error) {
	proc, ok := r.registry[name]
	if !ok {
		return domain.StepResult{}, retry.Fatal(fmt.Errorf("%w: %s", ErrNotRegistered, name))
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.grace
	cmd.Env = append(cmd.Environ(), Environment(sc)...)
	for k, v := range proc.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.StepResult{}, fmt.Errorf("%s: %w", name, ctxErr)
		}
		detail := strings.TrimSpace(stderr.String())
		failure := fmt.Errorf("%s: execution failed: %w. Stderr: %s", name, err, detail)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == ExitTempFail {
			return domain.StepResult{}, retry.Retryable(failure)
		}
		return domain.StepResult{}, retry.Fatal(failure)
	}

	return parseOutput(stdout.String()), nil
}

func parseOutput(out string) domain.StepResult {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return domain.StepResult{}
	}
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var data map[string]any
		if err := json.Unmarshal([]byte(trimmed), &data); err == nil {
			return domain.StepResult{Data: data}
		}
	}
	return domain.StepResult{Payload: map[string]any{"stdout": trimmed}}
}

// Environment renders the step context as SAGAFLOW_* variables. Context keys
// become SAGAFLOW_ARG_<KEY>; complex values are JSON encoded.
func Environment(sc domain.StepContext) []string {
	env := []string{
		EnvPrefix + "SAGA_ID=" + sc.SagaID,
		EnvPrefix + "SAGA=" + sc.SagaName,
		EnvPrefix + "STEP=" + sc.Step,
		EnvPrefix + "STEP_INDEX=" + strconv.Itoa(sc.Index),
		EnvPrefix + "ATTEMPT=" + strconv.Itoa(sc.Attempt),
		EnvPrefix + "IDEMPOTENCY_KEY=" + sc.IdempotencyKey,
	}
	keys := make([]string, 0, len(sc.Data))
	for k := range sc.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%sARG_%s=%s", EnvPrefix, envKey.ReplaceAllString(strings.ToUpper(k), "_"), envValue(sc.Data[k])))
	}
	return env
}

func envValue(v any) string {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", v)
	}
}
