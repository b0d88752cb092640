package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSagaStarted         EventType = "saga_started"
	EventStepStarted         EventType = "step_started"
	EventStepCompleted       EventType = "step_completed"
	EventStepFailed          EventType = "step_failed"
	EventStepRetrying        EventType = "step_retrying"
	EventCompensationStarted EventType = "compensation_started"
	EventStepCompensated     EventType = "step_compensated"
	EventCompensationFailed  EventType = "compensation_failed"
	EventSagaFinished        EventType = "saga_finished"
)

// SagaEvent is emitted by the orchestrator at every observable point of a saga.
type SagaEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Type      EventType     `json:"type"`
	SagaID    string        `json:"saga_id"`
	Saga      string        `json:"saga"`
	Step      string        `json:"step,omitempty"`
	StepIndex int           `json:"step_index"`
	Attempt   int           `json:"attempt,omitempty"`
	Status    Status        `json:"status"`
	Kind      FailureKind   `json:"kind,omitempty"`
	Err       string        `json:"err,omitempty"`
	Delay     time.Duration `json:"delay,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// LifecycleHooks defines callbacks for orchestrator observability.
// Hooks run synchronously on the saga's loop and must not block.
type LifecycleHooks struct {
	OnSagaStart    func(context.Context, *SagaEvent)
	OnStepStart    func(context.Context, *SagaEvent)
	OnStepComplete func(context.Context, *SagaEvent)
	OnStepFail     func(context.Context, *SagaEvent)
	OnStepRetry    func(context.Context, *SagaEvent)
	// OnCompensate receives compensation_started, step_compensated and compensation_failed.
	OnCompensate func(context.Context, *SagaEvent)
	OnSagaFinish func(context.Context, *SagaEvent)
}

// Emit dispatches ev to the matching hook.
func (h LifecycleHooks) Emit(ctx context.Context, ev *SagaEvent) {
	var fn func(context.Context, *SagaEvent)
	switch ev.Type {
	case EventSagaStarted:
		fn = h.OnSagaStart
	case EventStepStarted:
		fn = h.OnStepStart
	case EventStepCompleted:
		fn = h.OnStepComplete
	case EventStepFailed:
		fn = h.OnStepFail
	case EventStepRetrying:
		fn = h.OnStepRetry
	case EventCompensationStarted, EventStepCompensated, EventCompensationFailed:
		fn = h.OnCompensate
	case EventSagaFinished:
		fn = h.OnSagaFinish
	}
	if fn != nil {
		fn(ctx, ev)
	}
}

// MergeHooks returns hooks that call every non-nil hook of each set, in order.
func MergeHooks(sets ...LifecycleHooks) LifecycleHooks {
	chain := func(pick func(LifecycleHooks) func(context.Context, *SagaEvent)) func(context.Context, *SagaEvent) {
		var fns []func(context.Context, *SagaEvent)
		for _, s := range sets {
			if fn := pick(s); fn != nil {
				fns = append(fns, fn)
			}
		}
		if len(fns) == 0 {
			return nil
		}
		return func(ctx context.Context, ev *SagaEvent) {
			for _, fn := range fns {
				fn(ctx, ev)
			}
		}
	}
	return LifecycleHooks{
		OnSagaStart:    chain(func(h LifecycleHooks) func(context.Context, *SagaEvent) { return h.OnSagaStart }),
		OnStepStart:    chain(func(h LifecycleHooks) func(context.Context, *SagaEvent) { return h.OnStepStart }),
		OnStepComplete: chain(func(h LifecycleHooks) func(context.Context, *SagaEvent) { return h.OnStepComplete }),
		OnStepFail:     chain(func(h LifecycleHooks) func(context.Context, *SagaEvent) { return h.OnStepFail }),
		OnStepRetry:    chain(func(h LifecycleHooks) func(context.Context, *SagaEvent) { return h.OnStepRetry }),
		OnCompensate:   chain(func(h LifecycleHooks) func(context.Context, *SagaEvent) { return h.OnCompensate }),
		OnSagaFinish:   chain(func(h LifecycleHooks) func(context.Context, *SagaEvent) { return h.OnSagaFinish }),
	}
}

// HistoryEntry is one row of the append-only saga history.
type HistoryEntry struct {
	SagaID  string    `json:"saga_id"`
	Version int       `json:"version"`
	Status  Status    `json:"status"`
	Current string    `json:"current"`
	Active  int       `json:"active_index"`
	Event   string    `json:"event,omitempty"`
	At      time.Time `json:"at"`
	// Snapshot is the JSON encoding of the saga record at this version.
	Snapshot []byte `json:"snapshot,omitempty"`
}
