/*
Package sagaflow is a saga orchestrator: it drives multi-step business
transactions to a consistent outcome, compensating completed steps in reverse
order when a later step fails.

Each saga definition is an ordered list of steps. Every step has a forward
Action, an optional compensating Action, a retry policy and a timeout. The
steps advance through a Mealy transition table (package fsm), which rejects out
of order inputs and emits the output routed to the step's destination.

# Concept

The engine owns the control flow and nothing else. Business rules are
delegated to a RuleEvaluator, state lives behind a SagaStore, and outputs leave
through a Router. Every transition is persisted before the next one begins, so
a saga interrupted by a crash resumes from its last durable record.

# Usage

	reg := sagaflow.NewRegistry()
	reg.MustRegister(&domain.Definition{
		Name:    "order",
		Initial: "start",
		Steps: []domain.Step{
			{Name: "reserve", Action: reserve, Compensate: release, Retry: retry.DefaultPolicy()},
			{Name: "charge", Action: charge, Compensate: refund, Retry: retry.DefaultPolicy()},
		},
	})

	eng := sagaflow.New(sagaflow.WithRegistry(reg), sagaflow.WithStore(store))
	saga, err := eng.Start(ctx, "order", "order-42", map[string]any{"sku": "A-1"})
	if err != nil {
		var stepErr *sagaflow.StepError
		if errors.As(err, &stepErr) {
			log.Printf("saga %s ended %s at %s", saga.ID, saga.Status, stepErr.Step)
		}
	}
*/
package sagaflow
