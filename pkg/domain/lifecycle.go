package domain

import "github.com/aretw0/sagaflow/pkg/fsm"

// Status is the overall lifecycle status of a saga.
type Status string

const (
	StatusRunning                      Status = "running"
	StatusCompensating                 Status = "compensating"
	StatusCommitted                    Status = "committed"
	StatusCancelled                    Status = "cancelled"
	StatusFailed                       Status = "failed"
	StatusFailedWithCompensationErrors Status = "failed_with_compensation_errors"
)

// IsTerminal reports whether no further lifecycle transition is possible.
func (s Status) IsTerminal() bool {
	return lifecycle.IsTerminal(s)
}

// LifecycleInput drives the saga lifecycle table.
type LifecycleInput string

const (
	InputCommit                 LifecycleInput = "commit"
	InputFail                   LifecycleInput = "fail"
	InputCancel                 LifecycleInput = "cancel"
	InputCancelCompensate       LifecycleInput = "cancel_compensate"
	InputCompensated            LifecycleInput = "compensated"
	InputCompensatedAfterCancel LifecycleInput = "compensated_after_cancel"
	InputCompensationErrors     LifecycleInput = "compensation_errors"
)

// LifecycleTable is the shared, immutable saga lifecycle table.
//
//	running      --commit-->                   committed
//	running      --fail-->                     compensating
//	running      --cancel-->                   cancelled
//	running      --cancel_compensate-->        compensating
//	compensating --compensated-->              failed
//	compensating --compensated_after_cancel--> cancelled
//	compensating --compensation_errors-->      failed_with_compensation_errors
func LifecycleTable() *fsm.Table[Status, LifecycleInput, string] {
	return lifecycle
}

var lifecycle = fsm.NewBuilder[Status, LifecycleInput, string]().
	Rule(StatusRunning, InputCommit, StatusCommitted).
	Rule(StatusRunning, InputFail, StatusCompensating).
	Rule(StatusRunning, InputCancel, StatusCancelled).
	Rule(StatusRunning, InputCancelCompensate, StatusCompensating).
	Rule(StatusCompensating, InputCompensated, StatusFailed).
	Rule(StatusCompensating, InputCompensatedAfterCancel, StatusCancelled).
	Rule(StatusCompensating, InputCompensationErrors, StatusFailedWithCompensationErrors).
	Terminal(StatusCommitted, StatusCancelled, StatusFailed, StatusFailedWithCompensationErrors).
	Output(func(_, to Status, _ LifecycleInput) string {
		return "saga." + string(to)
	}).
	MustBuild()
