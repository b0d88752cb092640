package runtime

import (
	"fmt"
	"maps"
	"time"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/fsm"
)

// tracker owns the mutations of one saga record.
// Every mutation is refused once the record is terminal.
type tracker struct {
	saga *domain.Saga
	now  func() time.Time
}

func newTracker(saga *domain.Saga, now func() time.Time) *tracker {
	if saga.Context == nil {
		saga.Context = make(map[string]any)
	}
	return &tracker{saga: saga, now: now}
}

func (t *tracker) mutable() error {
	if t.saga.IsTerminal() {
		return fmt.Errorf("%w: saga %s is %s", domain.ErrTerminal, t.saga.ID, t.saga.Status)
	}
	return nil
}

func (t *tracker) attempt(i, n int) error {
	if err := t.mutable(); err != nil {
		return err
	}
	t.saga.Steps[i].Attempts = n
	return nil
}

func (t *tracker) retrying(i int, err error) error {
	if err := t.mutable(); err != nil {
		return err
	}
	t.saga.Steps[i].LastError = err.Error()
	return nil
}

// succeeded records step i and the table transition it caused.
func (t *tracker) succeeded(i int, res fsm.Result[string, string, domain.Output], data map[string]any) error {
	if err := t.mutable(); err != nil {
		return err
	}
	st := &t.saga.Steps[i]
	st.Outcome = domain.OutcomeSucceeded
	st.LastError = ""
	maps.Copy(t.saga.Context, data)
	t.saga.Current = res.To
	t.saga.ActiveIndex = i + 1
	t.saga.Transitions = append(t.saga.Transitions, domain.TransitionRecord{
		Kind:  "step",
		From:  res.From,
		Input: res.Input,
		To:    res.To,
		Event: res.Output.Event,
		At:    t.now(),
	})
	return nil
}

// failed records the failure that stops forward progress at step i.
func (t *tracker) failed(f domain.Failure) error {
	if err := t.mutable(); err != nil {
		return err
	}
	if f.StepIndex < len(t.saga.Steps) {
		st := &t.saga.Steps[f.StepIndex]
		if st.Attempts > 0 || f.Kind == domain.FailureDenied || f.Kind == domain.FailureInvalidTransition {
			st.Outcome = domain.OutcomeFailed
		}
		st.LastError = f.Reason
	}
	f.At = t.now()
	t.saga.Failure = &f
	return nil
}

func (t *tracker) compensated(i int) error {
	if err := t.mutable(); err != nil {
		return err
	}
	t.saga.Steps[i].Outcome = domain.OutcomeCompensated
	return nil
}

func (t *tracker) compensationFailed(f domain.Failure) error {
	if err := t.mutable(); err != nil {
		return err
	}
	t.saga.Steps[f.StepIndex].Outcome = domain.OutcomeCompensationFailed
	t.saga.Steps[f.StepIndex].LastError = f.Reason
	f.At = t.now()
	t.saga.CompensationErrors = append(t.saga.CompensationErrors, f)
	return nil
}

// lifecycle drives Status through the lifecycle table and returns the emitted event.
func (t *tracker) lifecycle(in domain.LifecycleInput) (string, error) {
	if err := t.mutable(); err != nil {
		return "", err
	}
	res := domain.LifecycleTable().Evaluate(t.saga.Status, in)
	if !res.OK {
		return "", &fsm.TransitionError{From: t.saga.Status, Input: in}
	}
	now := t.now()
	t.saga.Status = res.To
	t.saga.Transitions = append(t.saga.Transitions, domain.TransitionRecord{
		Kind:  "lifecycle",
		From:  string(res.From),
		Input: string(res.Input),
		To:    string(res.To),
		Event: res.Output,
		At:    now,
	})
	if t.saga.IsTerminal() {
		t.saga.FinishedAt = &now
		if err := t.saga.CheckInvariants(); err != nil {
			return res.Output, err
		}
	}
	return res.Output, nil
}

// stamp marks a new durable version.
func (t *tracker) stamp() {
	t.saga.Version++
	t.saga.UpdatedAt = t.now()
}
