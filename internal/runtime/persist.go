package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/instance"
	"github.com/aretw0/sagaflow/pkg/retry"
)

// persist stamps a new version and saves it, retrying failed saves.
// Saves are never cancelled: a cancelled saga must still record its outcome.
// A driver whose lease was lost writes nothing, and a cancel request stored
// by another process is carried into the new version rather than overwritten.
func (o *Orchestrator) persist(ctx context.Context, t *tracker, event string) error {
	ctx = context.WithoutCancel(ctx)
	if err := instance.LeaseLost(ctx); err != nil {
		return err
	}
	if !t.saga.IsTerminal() {
		o.mergeCancel(ctx, t)
	}
	t.stamp()

	var err error
	for attempt := 1; attempt <= o.persistAttempts; attempt++ {
		if err = o.store.Save(ctx, t.saga); err == nil {
			break
		}
		o.logger.WarnContext(ctx, "failed to persist saga",
			"saga_id", t.saga.ID,
			"version", t.saga.Version,
			"attempt", attempt,
			"err", err,
		)
		if attempt < o.persistAttempts {
			<-o.clock.After(retry.NextDelay(o.persistPolicy, attempt))
		}
	}
	if err != nil {
		return fmt.Errorf("%w: saga %s version %d: %w", ErrPersistence, t.saga.ID, t.saga.Version, err)
	}

	if o.history != nil {
		o.record(ctx, t.saga, event)
	}
	return nil
}

// mergeCancel folds a cancel request recorded by another process into t and
// reports whether one is pending.
func (o *Orchestrator) mergeCancel(ctx context.Context, t *tracker) bool {
	if t.saga.CancelRequested {
		return true
	}
	stored, err := o.store.Load(context.WithoutCancel(ctx), t.saga.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrSagaNotFound) {
			o.logger.WarnContext(ctx, "failed to check for cancel request", "saga_id", t.saga.ID, "err", err)
		}
		return false
	}
	if stored.Version > t.saga.Version {
		t.saga.Version = stored.Version
	}
	if stored.CancelRequested {
		t.saga.CancelRequested = true
		o.logger.InfoContext(ctx, "saga cancellation requested remotely", "saga_id", t.saga.ID)
	}
	return t.saga.CancelRequested
}

// record appends the persisted version to the history log. The log is
// secondary, so a failure is logged and does not stop the saga.
func (o *Orchestrator) record(ctx context.Context, saga *domain.Saga, event string) {
	snapshot, err := json.Marshal(saga)
	if err != nil {
		o.logger.WarnContext(ctx, "failed to encode saga snapshot", "saga_id", saga.ID, "err", err)
	}
	entry := domain.HistoryEntry{
		SagaID:   saga.ID,
		Version:  saga.Version,
		Status:   saga.Status,
		Current:  saga.Current,
		Active:   saga.ActiveIndex,
		Event:    event,
		At:       saga.UpdatedAt,
		Snapshot: snapshot,
	}
	if err := o.history.Append(ctx, entry); err != nil {
		o.logger.WarnContext(ctx, "failed to append saga history", "saga_id", saga.ID, "version", saga.Version, "err", err)
	}
}

func (o *Orchestrator) emit(ctx context.Context, saga *domain.Saga, ev *domain.SagaEvent) {
	ev.Timestamp = o.clock.Now()
	ev.SagaID = saga.ID
	ev.Saga = saga.Name
	ev.Status = saga.Status
	o.hooks.Emit(ctx, ev)
}

func (o *Orchestrator) finished(ctx context.Context, t *tracker) {
	ev := &domain.SagaEvent{Type: domain.EventSagaFinished, StepIndex: t.saga.ActiveIndex}
	if t.saga.FinishedAt != nil {
		ev.Duration = t.saga.FinishedAt.Sub(t.saga.CreatedAt)
	}
	if f := t.saga.Failure; f != nil {
		ev.Step, ev.StepIndex, ev.Kind, ev.Err = f.Step, f.StepIndex, f.Kind, f.Reason
	}
	o.emit(ctx, t.saga, ev)
	o.logger.InfoContext(ctx, "saga finished",
		"saga_id", t.saga.ID,
		"status", t.saga.Status,
		"version", t.saga.Version,
	)
}
