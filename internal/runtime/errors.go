package runtime

import (
	"errors"
	"fmt"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/retry"
)

var (
	// ErrPersistence is returned when a transition could not be made durable.
	// The last record in the store is authoritative; Resume continues from it.
	ErrPersistence = errors.New("failed to persist saga")

	// ErrCancelled is the cause of a saga stopped by Cancel or by its context.
	ErrCancelled = errors.New("saga cancelled")
)

// StepError reports why a saga did not commit.
type StepError struct {
	SagaID string
	Step   string
	Index  int
	Kind   domain.FailureKind
	Status domain.Status
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("saga %s ended %s: step %q (%d) failed [%s]: %v", e.SagaID, e.Status, e.Step, e.Index, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// recordedError rebuilds a failure from its stored reason, keeping the
// sentinel of its kind reachable through errors.Is.
type recordedError struct {
	reason string
	cause  error
}

func (e *recordedError) Error() string { return e.reason }
func (e *recordedError) Unwrap() error { return e.cause }

// ErrDenied is the cause of a step vetoed by the rule collaborator.
var ErrDenied = errors.New("step denied")

func kindCause(kind domain.FailureKind) error {
	switch kind {
	case domain.FailureCancelled:
		return ErrCancelled
	case domain.FailureTimeout:
		return retry.ErrTimeout
	case domain.FailureInvalidTransition:
		return domain.ErrInvalidTransition
	case domain.FailureDenied:
		return ErrDenied
	}
	return nil
}

// outcomeError derives the error Run and Resume return from a terminal record.
// It depends on the record alone, so repeated calls agree.
func outcomeError(saga *domain.Saga) error {
	if saga.Status == domain.StatusCommitted || !saga.IsTerminal() {
		return nil
	}
	se := &StepError{SagaID: saga.ID, Status: saga.Status, Index: saga.ActiveIndex, Kind: domain.FailureCancelled, Err: ErrCancelled}
	if f := saga.Failure; f != nil {
		se.Step, se.Index, se.Kind = f.Step, f.StepIndex, f.Kind
		se.Err = &recordedError{reason: f.Reason, cause: kindCause(f.Kind)}
	}
	if len(saga.CompensationErrors) > 0 {
		errs := []error{se.Err}
		for _, ce := range saga.CompensationErrors {
			errs = append(errs, fmt.Errorf("compensating %s: %s", ce.Step, ce.Reason))
		}
		se.Err = errors.Join(errs...)
	}
	return se
}
