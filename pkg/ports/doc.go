/*
Package ports defines the driven ports (interfaces) for the saga orchestrator.

These interfaces decouple the core logic from external implementations, allowing
the orchestrator to work with various storage backends, routers and rule engines.

# Key Interfaces

  - SagaStore: Responsible for persisting and loading saga records.
  - Router: Delivers step outputs to other domains.
  - RuleEvaluator: Vetoes a step before its forward action runs.
  - HistoryRecorder: Appends every persisted saga version to a historical log.
  - Clock: Supplies time and cancellable waits, so backoff can be faked in tests.
  - DistributedLocker: Provides distributed locking so one driver owns a saga at a time.
*/
package ports
