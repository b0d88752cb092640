package fsm

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidTransition is returned (or raised) when a (state, input) pair has no
// applicable rule, or when an output is requested for a pair the table does not define.
var ErrInvalidTransition = errors.New("invalid transition")

// Rule is a single entry of the transition table.
type Rule[S, I comparable] struct {
	From     S
	Input    I
	Priority int
	To       S
}

// OutputFunc computes the Mealy output of a valid transition.
type OutputFunc[S, I comparable, O any] func(from, to S, input I) O

// Result is the outcome of evaluating one input against one state.
// When OK is false the state is unchanged (To == From) and Output is the zero value.
type Result[S, I comparable, O any] struct {
	From   S
	Input  I
	To     S
	Output O
	OK     bool
}

// TransitionError describes a rejected or undefined transition.
type TransitionError struct {
	From  any
	Input any
	To    any
}

func (e *TransitionError) Error() string {
	if e.To == nil {
		return fmt.Sprintf("invalid transition: no rule for input %v in state %v", e.Input, e.From)
	}
	return fmt.Sprintf("invalid transition: %v --%v--> %v is not defined", e.From, e.Input, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

type ruleKey[S, I comparable] struct {
	from  S
	input I
}

// Table is an immutable, ordered transition table with an output function.
type Table[S, I comparable, O any] struct {
	rules      []Rule[S, I]
	candidates map[ruleKey[S, I]][]S
	terminal   map[S]struct{}
	states     []S
	inputs     []I
	output     OutputFunc[S, I, O]
}

// ValidTransitions returns the target states reachable from s on input i,
// in evaluation order. The result is empty (never nil) when nothing applies.
func (t *Table[S, I, O]) ValidTransitions(s S, i I) []S {
	c := t.candidates[ruleKey[S, I]{from: s, input: i}]
	out := make([]S, len(c))
	copy(out, c)
	return out
}

// TransitionOutput returns the output of the transition from --i--> to.
// It panics with a *TransitionError if the table has no such rule.
func (t *Table[S, I, O]) TransitionOutput(from, to S, i I) O {
	if !slices.Contains(t.candidates[ruleKey[S, I]{from: from, input: i}], to) {
		panic(&TransitionError{From: from, Input: i, To: to})
	}
	return t.emit(from, to, i)
}

// Evaluate applies input i to state s.
// A rejected input yields OK=false and leaves the state unchanged; it is never an error.
func (t *Table[S, I, O]) Evaluate(s S, i I) Result[S, I, O] {
	c := t.candidates[ruleKey[S, I]{from: s, input: i}]
	if len(c) == 0 {
		return Result[S, I, O]{From: s, Input: i, To: s}
	}
	to := c[0]
	return Result[S, I, O]{From: s, Input: i, To: to, Output: t.emit(s, to, i), OK: true}
}

// Accepts reports whether input i has at least one applicable rule in state s.
func (t *Table[S, I, O]) Accepts(s S, i I) bool {
	return len(t.candidates[ruleKey[S, I]{from: s, input: i}]) > 0
}

// IsTerminal reports whether s was declared terminal.
func (t *Table[S, I, O]) IsTerminal(s S) bool {
	_, ok := t.terminal[s]
	return ok
}

// InputsFrom lists the inputs with at least one rule leaving s, in declaration order.
func (t *Table[S, I, O]) InputsFrom(s S) []I {
	var out []I
	for _, r := range t.rules {
		if r.From == s && !slices.Contains(out, r.Input) {
			out = append(out, r.Input)
		}
	}
	return out
}

// Rules returns a copy of the rules in declaration order.
func (t *Table[S, I, O]) Rules() []Rule[S, I] {
	return slices.Clone(t.rules)
}

// States returns every state mentioned by the table, in first-seen order.
func (t *Table[S, I, O]) States() []S {
	return slices.Clone(t.states)
}

// Inputs returns every input mentioned by the table, in first-seen order.
func (t *Table[S, I, O]) Inputs() []I {
	return slices.Clone(t.inputs)
}

func (t *Table[S, I, O]) emit(from, to S, i I) O {
	if t.output == nil {
		var zero O
		return zero
	}
	return t.output(from, to, i)
}
