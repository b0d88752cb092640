package runtime

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/fsm"
	"github.com/aretw0/sagaflow/pkg/retry"
)

// drive advances the record from wherever it stands to a terminal status.
func (o *Orchestrator) drive(ctx context.Context, def *domain.Definition, table *fsm.Table[string, string, domain.Output], t *tracker) (*domain.Saga, error) {
	if t.saga.Status == domain.StatusCompensating {
		return o.finish(ctx, def, t)
	}

	for t.saga.ActiveIndex < len(def.Steps) {
		if cerr := cancellation(ctx); cerr != nil || o.mergeCancel(ctx, t) {
			if cerr == nil {
				cerr = ErrCancelled
			}
			i := t.saga.ActiveIndex
			return o.abort(ctx, def, t, domain.Failure{
				StepIndex: i,
				Step:      def.Steps[i].Name,
				Kind:      domain.FailureCancelled,
				Reason:    cerr.Error(),
				Attempts:  t.saga.Steps[i].Attempts,
			})
		}
		failure, err := o.forward(ctx, table, t, def.Steps[t.saga.ActiveIndex], t.saga.ActiveIndex)
		if err != nil {
			return t.saga, err
		}
		if failure != nil {
			return o.abort(ctx, def, t, *failure)
		}
	}

	ev, err := t.lifecycle(domain.InputCommit)
	if err != nil {
		return t.saga, err
	}
	if err := o.persist(ctx, t, ev); err != nil {
		return t.saga, err
	}
	o.finished(ctx, t)
	return t.saga, nil
}

// forward runs step i until it succeeds or fails for good.
// A nil Failure means the step succeeded and was persisted.
func (o *Orchestrator) forward(ctx context.Context, table *fsm.Table[string, string, domain.Output], t *tracker, step domain.Step, i int) (*domain.Failure, error) {
	log := o.logger.With("saga_id", t.saga.ID, "step", step.Name)
	fail := func(kind domain.FailureKind, err error, rule string, attempts int) *domain.Failure {
		o.emit(ctx, t.saga, &domain.SagaEvent{
			Type: domain.EventStepFailed, Step: step.Name, StepIndex: i,
			Attempt: attempts, Kind: kind, Err: err.Error(),
		})
		log.WarnContext(ctx, "step failed", "kind", kind, "attempt", attempts, "err", err)
		return &domain.Failure{StepIndex: i, Step: step.Name, Kind: kind, Reason: err.Error(), Rule: rule, Attempts: attempts}
	}

	if o.rules != nil {
		d, err := o.rules.Evaluate(ctx, ruleContext(t.saga, step, i))
		if err != nil {
			d = domain.Deny("", err.Error())
		}
		if !d.Allowed {
			return fail(domain.FailureDenied, errors.New(d.Reason), d.Rule, 0), nil
		}
	}

	res := table.Evaluate(t.saga.Current, step.InputName())
	if !res.OK {
		return fail(domain.FailureInvalidTransition, &fsm.TransitionError{From: t.saga.Current, Input: step.InputName()}, "", 0), nil
	}

	for attempt := 1; ; attempt++ {
		if cerr := cancellation(ctx); cerr != nil {
			return fail(domain.FailureCancelled, cerr, "", attempt-1), nil
		}
		if attempt > 1 && o.mergeCancel(ctx, t) {
			return fail(domain.FailureCancelled, ErrCancelled, "", attempt-1), nil
		}
		if err := t.attempt(i, attempt); err != nil {
			return nil, err
		}
		o.emit(ctx, t.saga, &domain.SagaEvent{Type: domain.EventStepStarted, Step: step.Name, StepIndex: i, Attempt: attempt})
		log.DebugContext(ctx, "step started", "attempt", attempt)

		start := o.clock.Now()
		result, err := o.execute(ctx, step.Action, stepContext(t.saga, step, i, attempt, ""), step.ActionTimeout())
		if err == nil {
			// The effect has happened: delivery is not abandoned on cancellation.
			output := res.Output.WithPayload(result.Payload)
			if err = o.publish(context.WithoutCancel(ctx), t.saga, step, i, output); err == nil {
				if err := t.succeeded(i, res, result.Data); err != nil {
					return nil, err
				}
				if err := o.persist(ctx, t, output.Event); err != nil {
					return nil, err
				}
				o.emit(ctx, t.saga, &domain.SagaEvent{
					Type: domain.EventStepCompleted, Step: step.Name, StepIndex: i,
					Attempt: attempt, Duration: o.clock.Now().Sub(start),
				})
				log.InfoContext(ctx, "step completed", "attempt", attempt, "state", res.To)
				return nil, nil
			}
		}

		if cerr := cancellation(ctx); cerr != nil {
			return fail(domain.FailureCancelled, cerr, "", attempt), nil
		}
		kind := retry.Classify(step.Retry, err)
		if !retry.ShouldRetry(step.Retry, attempt, kind) {
			fk := domain.FailureFatal
			if kind == retry.KindRetryable {
				fk = domain.FailureExhausted
				if errors.Is(err, retry.ErrTimeout) {
					fk = domain.FailureTimeout
				}
			}
			return fail(fk, err, "", attempt), nil
		}

		delay := retry.NextDelay(step.Retry, attempt)
		if err := t.retrying(i, err); err != nil {
			return nil, err
		}
		o.emit(ctx, t.saga, &domain.SagaEvent{
			Type: domain.EventStepRetrying, Step: step.Name, StepIndex: i,
			Attempt: attempt, Kind: domain.FailureRetryable, Err: err.Error(), Delay: delay,
		})
		log.InfoContext(ctx, "step retrying", "attempt", attempt, "delay", delay, "err", err)

		select {
		case <-o.clock.After(delay):
		case <-ctx.Done():
			return fail(domain.FailureCancelled, cancellation(ctx), "", attempt), nil
		}
	}
}

// abort records the failure that ended forward progress and unwinds.
func (o *Orchestrator) abort(ctx context.Context, def *domain.Definition, t *tracker, f domain.Failure) (*domain.Saga, error) {
	if err := t.failed(f); err != nil {
		return t.saga, err
	}
	in := domain.InputFail
	if f.Kind == domain.FailureCancelled {
		in = domain.InputCancel
		if t.saga.HasPendingCompensation() {
			in = domain.InputCancelCompensate
		}
	}
	ev, err := t.lifecycle(in)
	if err != nil {
		return t.saga, err
	}
	if err := o.persist(ctx, t, ev); err != nil {
		return t.saga, err
	}
	if t.saga.IsTerminal() {
		o.finished(ctx, t)
		return t.saga, nil
	}
	return o.finish(ctx, def, t)
}

// finish compensates and moves a compensating saga to its terminal status.
func (o *Orchestrator) finish(ctx context.Context, def *domain.Definition, t *tracker) (*domain.Saga, error) {
	if err := o.compensate(ctx, def, t); err != nil {
		return t.saga, err
	}
	in := domain.InputCompensated
	if t.saga.Failure != nil && t.saga.Failure.Kind == domain.FailureCancelled {
		in = domain.InputCompensatedAfterCancel
	}
	if len(t.saga.CompensationErrors) > 0 {
		in = domain.InputCompensationErrors
	}
	ev, err := t.lifecycle(in)
	if err != nil {
		return t.saga, err
	}
	if err := o.persist(ctx, t, ev); err != nil {
		return t.saga, err
	}
	o.finished(ctx, t)
	return t.saga, nil
}

type actionResult struct {
	res domain.StepResult
	err error
}

// execute runs action on its own goroutine, bounded by timeout. The result is
// handed back to the saga loop, which stops waiting when ctx is cancelled.
func (o *Orchestrator) execute(ctx context.Context, action domain.Action, sc domain.StepContext, timeout time.Duration) (domain.StepResult, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan actionResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- actionResult{err: retry.Fatal(fmt.Errorf("action panicked: %v", r))}
			}
		}()
		res, err := action(actx, sc)
		done <- actionResult{res: res, err: err}
	}()

	var out actionResult
	select {
	case out = <-done:
	case <-actx.Done():
		// An action that finished as ctx ended still counts as finished.
		select {
		case out = <-done:
		default:
			if cerr := cancellation(ctx); cerr != nil {
				return domain.StepResult{}, cerr
			}
			return domain.StepResult{}, fmt.Errorf("%w after %s", retry.ErrTimeout, timeout)
		}
	}
	if out.err != nil {
		if cerr := cancellation(ctx); cerr != nil {
			return out.res, cerr
		}
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			return out.res, fmt.Errorf("%w after %s: %w", retry.ErrTimeout, timeout, out.err)
		}
	}
	return out.res, out.err
}

func (o *Orchestrator) publish(ctx context.Context, saga *domain.Saga, step domain.Step, i int, output domain.Output) error {
	if o.router == nil || step.Destination == "" {
		return nil
	}
	return o.router.Publish(ctx, domain.Envelope{
		SagaID:         saga.ID,
		Saga:           saga.Name,
		Step:           step.Name,
		Destination:    step.Destination,
		IdempotencyKey: domain.IdempotencyKey(saga.ID, i, step.Name),
		Output:         output,
		At:             o.clock.Now(),
	})
}

// cancellation returns a non-nil error once ctx is done.
func cancellation(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrCancelled) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

func stepContext(saga *domain.Saga, step domain.Step, i, attempt int, suffix string) domain.StepContext {
	return domain.StepContext{
		SagaID:         saga.ID,
		SagaName:       saga.Name,
		Step:           step.Name,
		Index:          i,
		Attempt:        attempt,
		Data:           maps.Clone(saga.Context),
		IdempotencyKey: domain.IdempotencyKey(saga.ID, i, step.Name) + suffix,
	}
}

func ruleContext(saga *domain.Saga, step domain.Step, i int) domain.RuleContext {
	actor, _ := saga.Context["actor"].(string)
	return domain.RuleContext{
		SagaID:    saga.ID,
		Saga:      saga.Name,
		Step:      step.Name,
		Index:     i,
		Domain:    step.Domain,
		Operation: step.OperationName(),
		Actor:     actor,
		Data:      maps.Clone(saga.Context),
	}
}
