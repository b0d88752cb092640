/*
Package fsm provides a generic, deterministic Mealy machine evaluator over an
ordered transition table.

A Table is built once from a list of rules and is immutable afterwards, so a
single Table may be shared by any number of goroutines.

# Determinism

Several rules may match the same (state, input) pair. Candidates are ordered by
ascending Priority, and rules with equal priority keep their declaration order.
Evaluate always takes the first candidate.

# Outputs

Outputs are computed by the table's OutputFunc from (from, to, input). The
function is only consulted for valid transitions; asking for the output of a
pair the table does not define is a programming error and panics.

	table, err := fsm.NewBuilder[string, string, string]().
		Rule("idle", "start", "running").
		Rule("running", "stop", "done").
		Terminal("done").
		Output(func(from, to, in string) string { return from + "->" + to }).
		Build()
*/
package fsm
