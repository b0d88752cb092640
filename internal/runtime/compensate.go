package runtime

import (
	"context"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/instance"
	"github.com/aretw0/sagaflow/pkg/retry"
)

// compensate undoes succeeded steps in strict reverse order.
// It runs detached from ctx cancellation: once started, compensation completes.
// A failed compensation is recorded and the remaining ones still run.
func (o *Orchestrator) compensate(ctx context.Context, def *domain.Definition, t *tracker) error {
	ctx = context.WithoutCancel(ctx)
	log := o.logger.With("saga_id", t.saga.ID)

	o.emit(ctx, t.saga, &domain.SagaEvent{Type: domain.EventCompensationStarted, StepIndex: t.saga.FailurePoint()})
	log.InfoContext(ctx, "compensation started", "failure_point", t.saga.FailurePoint())

	for i := len(t.saga.Steps) - 1; i >= 0; i-- {
		if t.saga.Steps[i].Outcome != domain.OutcomeSucceeded {
			continue
		}
		step := def.Steps[i]
		if step.Compensate == nil {
			log.InfoContext(ctx, "step skipped during compensation", "step", step.Name, "reason", "non-compensable")
			continue
		}

		// Another replica owns the saga once the lease is gone.
		if err := instance.LeaseLost(ctx); err != nil {
			return err
		}

		start := o.clock.Now()
		attempts, err := o.undo(ctx, t.saga, step, i)
		if err != nil {
			if terr := t.compensationFailed(domain.Failure{
				StepIndex: i,
				Step:      step.Name,
				Kind:      domain.FailureCompensation,
				Reason:    err.Error(),
				Attempts:  attempts,
			}); terr != nil {
				return terr
			}
			o.emit(ctx, t.saga, &domain.SagaEvent{
				Type: domain.EventCompensationFailed, Step: step.Name, StepIndex: i,
				Attempt: attempts, Kind: domain.FailureCompensation, Err: err.Error(),
			})
			log.ErrorContext(ctx, "compensation failed", "step", step.Name, "attempt", attempts, "err", err)
			if err := o.persist(ctx, t, step.Name+".compensation_failed"); err != nil {
				return err
			}
			continue
		}

		if err := t.compensated(i); err != nil {
			return err
		}
		if err := o.persist(ctx, t, step.Name+".compensated"); err != nil {
			return err
		}
		o.emit(ctx, t.saga, &domain.SagaEvent{
			Type: domain.EventStepCompensated, Step: step.Name, StepIndex: i,
			Attempt: attempts, Duration: o.clock.Now().Sub(start),
		})
		log.InfoContext(ctx, "step compensated", "step", step.Name, "attempt", attempts)
	}
	return nil
}

// undo runs the compensation of step i. It is tried once unless the step
// opts in with CompensateRetry; the forward Retry policy never applies.
func (o *Orchestrator) undo(ctx context.Context, saga *domain.Saga, step domain.Step, i int) (int, error) {
	p := step.CompensateRetry
	for attempt := 1; ; attempt++ {
		_, err := o.execute(ctx, step.Compensate, stepContext(saga, step, i, attempt, ":compensate"), step.ActionTimeout())
		if err == nil {
			return attempt, nil
		}
		if !retry.ShouldRetry(p, attempt, retry.Classify(p, err)) {
			return attempt, err
		}
		<-o.clock.After(retry.NextDelay(p, attempt))
	}
}
