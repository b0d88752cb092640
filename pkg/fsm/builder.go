package fsm

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var (
	// ErrTerminalRule is returned by Build when a rule leaves a terminal state.
	ErrTerminalRule = errors.New("rule leaves a terminal state")
	// ErrDuplicateRule is returned by Build when the same (from, input, to) is declared twice.
	ErrDuplicateRule = errors.New("duplicate rule")
	// ErrEmptyTable is returned by Build when no rule was declared.
	ErrEmptyTable = errors.New("transition table has no rules")
)

// Builder accumulates rules and produces an immutable Table.
// A Builder is not safe for concurrent use.
type Builder[S, I comparable, O any] struct {
	rules    []Rule[S, I]
	terminal []S
	output   OutputFunc[S, I, O]
}

// NewBuilder returns an empty Builder.
func NewBuilder[S, I comparable, O any]() *Builder[S, I, O] {
	return &Builder[S, I, O]{}
}

// Rule appends a rule with priority 0.
func (b *Builder[S, I, O]) Rule(from S, input I, to S) *Builder[S, I, O] {
	return b.RuleWithPriority(from, input, 0, to)
}

// RuleWithPriority appends a rule. Lower priorities are evaluated first.
func (b *Builder[S, I, O]) RuleWithPriority(from S, input I, priority int, to S) *Builder[S, I, O] {
	b.rules = append(b.rules, Rule[S, I]{From: from, Input: input, Priority: priority, To: to})
	return b
}

// Rules appends pre-built rules, keeping their order.
func (b *Builder[S, I, O]) Rules(rules ...Rule[S, I]) *Builder[S, I, O] {
	b.rules = append(b.rules, rules...)
	return b
}

// Terminal marks states as terminal.
func (b *Builder[S, I, O]) Terminal(states ...S) *Builder[S, I, O] {
	b.terminal = append(b.terminal, states...)
	return b
}

// Output sets the output function.
func (b *Builder[S, I, O]) Output(fn OutputFunc[S, I, O]) *Builder[S, I, O] {
	b.output = fn
	return b
}

// Build validates the accumulated rules and returns the Table.
func (b *Builder[S, I, O]) Build() (*Table[S, I, O], error) {
	if len(b.rules) == 0 {
		return nil, ErrEmptyTable
	}

	t := &Table[S, I, O]{
		rules:      slices.Clone(b.rules),
		candidates: make(map[ruleKey[S, I]][]S),
		terminal:   make(map[S]struct{}, len(b.terminal)),
		output:     b.output,
	}
	for _, s := range b.terminal {
		t.terminal[s] = struct{}{}
	}

	type seenKey struct {
		from  S
		input I
		to    S
	}
	seen := make(map[seenKey]struct{}, len(t.rules))
	for _, r := range t.rules {
		if _, ok := t.terminal[r.From]; ok {
			return nil, fmt.Errorf("%w: %v --%v--> %v", ErrTerminalRule, r.From, r.Input, r.To)
		}
		k := seenKey{r.From, r.Input, r.To}
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("%w: %v --%v--> %v", ErrDuplicateRule, r.From, r.Input, r.To)
		}
		seen[k] = struct{}{}

		t.addState(r.From)
		t.addState(r.To)
		if !slices.Contains(t.inputs, r.Input) {
			t.inputs = append(t.inputs, r.Input)
		}
	}
	for _, s := range b.terminal {
		t.addState(s)
	}

	// Stable sort by priority keeps declaration order among equals.
	ordered := slices.Clone(t.rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	for _, r := range ordered {
		k := ruleKey[S, I]{from: r.From, input: r.Input}
		t.candidates[k] = append(t.candidates[k], r.To)
	}

	return t, nil
}

// MustBuild is like Build but panics on error. Intended for package-level tables.
func (b *Builder[S, I, O]) MustBuild() *Table[S, I, O] {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table[S, I, O]) addState(s S) {
	if !slices.Contains(t.states, s) {
		t.states = append(t.states, s)
	}
}
