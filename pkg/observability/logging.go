package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// LogHooks writes one structured line per saga event.
// Failures are logged at Warn, everything else at Info.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	log := func(ctx context.Context, e *domain.SagaEvent) {
		level := slog.LevelInfo
		switch e.Type {
		case domain.EventStepFailed, domain.EventCompensationFailed:
			level = slog.LevelWarn
		}
		attrs := []any{
			"saga_id", e.SagaID,
			"saga", e.Saga,
			"status", e.Status,
		}
		if e.Step != "" {
			attrs = append(attrs, "step", e.Step, "step_index", e.StepIndex)
		}
		if e.Attempt > 0 {
			attrs = append(attrs, "attempt", e.Attempt)
		}
		if e.Kind != "" {
			attrs = append(attrs, "kind", e.Kind)
		}
		if e.Err != "" {
			attrs = append(attrs, "err", e.Err)
		}
		if e.Delay > 0 {
			attrs = append(attrs, "delay", e.Delay)
		}
		if e.Duration > 0 {
			attrs = append(attrs, "duration", e.Duration)
		}
		logger.Log(ctx, level, string(e.Type), attrs...)
	}
	return domain.LifecycleHooks{
		OnSagaStart:    log,
		OnStepStart:    log,
		OnStepComplete: log,
		OnStepFail:     log,
		OnStepRetry:    log,
		OnCompensate:   log,
		OnSagaFinish:   log,
	}
}
