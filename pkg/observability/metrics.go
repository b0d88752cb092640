package observability

import (
	"context"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "sagaflow"

// Metrics records saga lifecycle events as Prometheus collectors.
type Metrics struct {
	SagasStarted  *prometheus.CounterVec
	SagasFinished *prometheus.CounterVec
	SagasActive   *prometheus.GaugeVec
	SagaDuration  *prometheus.HistogramVec
	StepAttempts  *prometheus.CounterVec
	StepRetries   *prometheus.CounterVec
	StepFailures  *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
	Compensations *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		SagasStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sagas_started_total",
			Help:      "Total number of sagas started.",
		}, []string{"saga"}),
		SagasFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sagas_finished_total",
			Help:      "Total number of sagas that reached a terminal status.",
		}, []string{"saga", "status"}),
		SagasActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sagas_active",
			Help:      "Number of sagas currently being driven.",
		}, []string{"saga"}),
		SagaDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "saga_duration_seconds",
			Help:      "Time from saga start to its terminal status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"saga", "status"}),
		StepAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "step_attempts_total",
			Help:      "Total number of forward step attempts.",
		}, []string{"saga", "step"}),
		StepRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "step_retries_total",
			Help:      "Total number of step retries scheduled.",
		}, []string{"saga", "step"}),
		StepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "step_failures_total",
			Help:      "Total number of steps that failed for good, by failure kind.",
		}, []string{"saga", "step", "kind"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of successful step attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"saga", "step"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "compensations_total",
			Help:      "Total number of compensations, by result.",
		}, []string{"saga", "step", "result"}),
	}

	for _, c := range []prometheus.Collector{
		m.SagasStarted, m.SagasFinished, m.SagasActive, m.SagaDuration,
		m.StepAttempts, m.StepRetries, m.StepFailures, m.StepDuration, m.Compensations,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSagaStart: func(_ context.Context, e *domain.SagaEvent) {
			m.SagasStarted.WithLabelValues(e.Saga).Inc()
			m.SagasActive.WithLabelValues(e.Saga).Inc()
		},
		OnStepStart: func(_ context.Context, e *domain.SagaEvent) {
			m.StepAttempts.WithLabelValues(e.Saga, e.Step).Inc()
		},
		OnStepComplete: func(_ context.Context, e *domain.SagaEvent) {
			m.StepDuration.WithLabelValues(e.Saga, e.Step).Observe(e.Duration.Seconds())
		},
		OnStepRetry: func(_ context.Context, e *domain.SagaEvent) {
			m.StepRetries.WithLabelValues(e.Saga, e.Step).Inc()
		},
		OnStepFail: func(_ context.Context, e *domain.SagaEvent) {
			m.StepFailures.WithLabelValues(e.Saga, e.Step, string(e.Kind)).Inc()
		},
		OnCompensate: func(_ context.Context, e *domain.SagaEvent) {
			switch e.Type {
			case domain.EventStepCompensated:
				m.Compensations.WithLabelValues(e.Saga, e.Step, "ok").Inc()
			case domain.EventCompensationFailed:
				m.Compensations.WithLabelValues(e.Saga, e.Step, "error").Inc()
			}
		},
		OnSagaFinish: func(_ context.Context, e *domain.SagaEvent) {
			m.SagasFinished.WithLabelValues(e.Saga, string(e.Status)).Inc()
			m.SagaDuration.WithLabelValues(e.Saga, string(e.Status)).Observe(e.Duration.Seconds())
			m.SagasActive.WithLabelValues(e.Saga).Dec()
		},
	}
}
