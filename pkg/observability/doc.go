/*
Package observability turns saga lifecycle events into metrics and log lines.

Both Metrics.Hooks and LogHooks return domain.LifecycleHooks; combine them with
domain.MergeHooks and pass the result to the orchestrator.
*/
package observability
