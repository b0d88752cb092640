package domain

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/aretw0/sagaflow/pkg/fsm"
	"github.com/aretw0/sagaflow/pkg/retry"
	"github.com/aretw0/sagaflow/pkg/schema"
)

// DefaultStepTimeout bounds an action when the step does not set Timeout.
const DefaultStepTimeout = 30 * time.Second

// StepContext is what an Action sees of the saga it runs in.
type StepContext struct {
	SagaID   string
	SagaName string
	Step     string
	Index    int
	Attempt  int

	// Data is a copy of the saga context; mutating it has no effect.
	Data map[string]any

	// IdempotencyKey is stable across retries and resumes of the same step.
	IdempotencyKey string
}

// StepResult is returned by a successful Action.
type StepResult struct {
	// Data is merged into the saga context.
	Data map[string]any
	// Payload is merged into the routed output.
	Payload map[string]any
}

// Action is a forward or compensating effect. It must be idempotent: the same
// step may be re-executed after a retry or a resume. The returned error may be
// marked with retry.Retryable or retry.Fatal; otherwise the step classifier decides.
type Action func(ctx context.Context, sc StepContext) (StepResult, error)

// Step is one unit of saga work.
type Step struct {
	Name string
	// Input fed to the saga table for this step. Defaults to Name.
	Input string
	// Domain is the bounded context the step talks to.
	Domain string
	// Operation names the step for the rule collaborator. Defaults to Name.
	Operation   string
	Destination Address
	Action      Action
	// Compensate is nil for non-compensable steps.
	Compensate Action
	Retry      retry.Policy
	// CompensateRetry governs Compensate. The zero value tries it once.
	CompensateRetry retry.Policy
	Timeout         time.Duration
}

// InputName returns the table input of the step.
func (s Step) InputName() string {
	if s.Input != "" {
		return s.Input
	}
	return s.Name
}

// OperationName returns the operation reported to the rule collaborator.
func (s Step) OperationName() string {
	if s.Operation != "" {
		return s.Operation
	}
	return s.Name
}

// ActionTimeout returns the effective action timeout.
func (s Step) ActionTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultStepTimeout
}

// Definition describes a saga: its steps and the table they drive.
type Definition struct {
	Name        string
	Description string
	Initial     string
	// Context, when set, is the contract the initial context must satisfy.
	Context schema.Schema
	// Table is optional; LinearTable is derived from Steps when nil.
	Table *fsm.Table[string, string, Output]
	Steps []Step
}

// Machine returns the definition's table, deriving a linear one when unset.
func (d *Definition) Machine() (*fsm.Table[string, string, Output], error) {
	if d.Table != nil {
		return d.Table, nil
	}
	return LinearTable(d.Initial, d.Steps)
}

// Validate checks the structure of the definition.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrDefinition)
	}
	if d.Initial == "" {
		return fmt.Errorf("%w: %s: initial state is required", ErrDefinition, d.Name)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: %s: at least one step is required", ErrDefinition, d.Name)
	}
	seen := make(map[string]struct{}, len(d.Steps))
	for i, st := range d.Steps {
		if st.Name == "" {
			return fmt.Errorf("%w: %s: step %d has no name", ErrDefinition, d.Name, i)
		}
		if _, dup := seen[st.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate step %q", ErrDefinition, d.Name, st.Name)
		}
		seen[st.Name] = struct{}{}
		if st.Action == nil {
			return fmt.Errorf("%w: %s: step %q has no action", ErrDefinition, d.Name, st.Name)
		}
		if err := st.Retry.Validate(); err != nil {
			return fmt.Errorf("%w: %s: step %q: %v", ErrDefinition, d.Name, st.Name, err)
		}
		if err := st.CompensateRetry.Validate(); err != nil {
			return fmt.Errorf("%w: %s: step %q: compensate_retry: %v", ErrDefinition, d.Name, st.Name, err)
		}
		if st.Destination != "" {
			if err := st.Destination.Validate(); err != nil {
				return fmt.Errorf("%w: %s: step %q: %v", ErrDefinition, d.Name, st.Name, err)
			}
		}
	}
	return nil
}

// CheckContext validates an initial context against the definition's contract.
func (d *Definition) CheckContext(initial map[string]any) error {
	if err := d.Context.Validate(initial); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidContext, d.Name, err)
	}
	return nil
}

// DryRun walks the steps through the table from Initial and reports the first
// step input the table would reject.
func (d *Definition) DryRun() ([]fsm.Result[string, string, Output], error) {
	table, err := d.Machine()
	if err != nil {
		return nil, err
	}
	state := d.Initial
	results := make([]fsm.Result[string, string, Output], 0, len(d.Steps))
	for _, st := range d.Steps {
		res := table.Evaluate(state, st.InputName())
		if !res.OK {
			return results, fmt.Errorf("%w: step %q: %w", ErrDefinition, st.Name,
				&fsm.TransitionError{From: state, Input: st.InputName()})
		}
		results = append(results, res)
		state = res.To
	}
	return results, nil
}

// LinearTable derives one rule per step: (previous, input) -> step name.
// Each transition emits "<step>.completed".
func LinearTable(initial string, steps []Step) (*fsm.Table[string, string, Output], error) {
	b := fsm.NewBuilder[string, string, Output]()
	prev := initial
	for _, st := range steps {
		b.Rule(prev, st.InputName(), st.Name)
		prev = st.Name
	}
	b.Terminal(prev)
	b.Output(StepOutput)
	return b.Build()
}

// StepOutput is the default output function: it names the completed state.
func StepOutput(_, to, input string) Output {
	return Output{Event: to + ".completed", Payload: map[string]any{"input": input}}
}

// Output is the Mealy output of a saga table transition.
type Output struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
}

// WithPayload returns a copy of o with extra merged into its payload.
func (o Output) WithPayload(extra map[string]any) Output {
	p := make(map[string]any, len(o.Payload)+len(extra))
	maps.Copy(p, o.Payload)
	maps.Copy(p, extra)
	o.Payload = p
	return o
}

// Envelope is an Output addressed for delivery by the router.
type Envelope struct {
	SagaID         string    `json:"saga_id"`
	Saga           string    `json:"saga"`
	Step           string    `json:"step"`
	Destination    Address   `json:"destination"`
	IdempotencyKey string    `json:"idempotency_key"`
	Output         Output    `json:"output"`
	At             time.Time `json:"at"`
}

// IdempotencyKey derives the stable key of a step execution.
func IdempotencyKey(sagaID string, index int, step string) string {
	return fmt.Sprintf("%s:%d:%s", sagaID, index, step)
}
