package domain

import "github.com/aretw0/sagaflow/pkg/fsm"

// TxState is the lifecycle of a single aggregate transaction.
type TxState string

const (
	TxIdle       TxState = "idle"
	TxValidating TxState = "validating"
	TxValidated  TxState = "validated"
	TxCommitted  TxState = "committed"
	TxCancelled  TxState = "cancelled"
	TxFailed     TxState = "failed"
)

// TxInput drives TransactionTable.
type TxInput string

const (
	TxStart        TxInput = "start"
	TxValidateOk   TxInput = "validate_ok"
	TxValidateFail TxInput = "validate_fail"
	TxCommit       TxInput = "commit"
	TxCancel       TxInput = "cancel"
)

// TxOutput lists the domain events a transaction transition emits.
type TxOutput struct {
	Events []string
}

// Domain events emitted by TransactionTable.
const (
	EventTransactionCommitted = "TransactionCommitted"
	EventTransactionCancelled = "TransactionCancelled"
)

// TransactionTable returns the transaction lifecycle table. Commit is only
// reachable after a successful validation; only commit and cancel emit events.
func TransactionTable() *fsm.Table[TxState, TxInput, TxOutput] {
	return transaction
}

var transaction = fsm.NewBuilder[TxState, TxInput, TxOutput]().
	Rule(TxIdle, TxStart, TxValidating).
	Rule(TxValidating, TxValidateOk, TxValidated).
	Rule(TxValidating, TxValidateFail, TxFailed).
	Rule(TxValidated, TxCommit, TxCommitted).
	Rule(TxIdle, TxCancel, TxCancelled).
	Rule(TxValidating, TxCancel, TxCancelled).
	Rule(TxValidated, TxCancel, TxCancelled).
	Terminal(TxCommitted, TxCancelled, TxFailed).
	Output(func(_, to TxState, _ TxInput) TxOutput {
		switch to {
		case TxCommitted:
			return TxOutput{Events: []string{EventTransactionCommitted}}
		case TxCancelled:
			return TxOutput{Events: []string{EventTransactionCancelled}}
		}
		return TxOutput{Events: []string{}}
	}).
	MustBuild()
