package fsm

// Machine is a cursor over a shared Table. It holds the current state and the
// accepted transitions. A Machine is not safe for concurrent use; the Table is.
type Machine[S, I comparable, O any] struct {
	table   *Table[S, I, O]
	current S
	history []Result[S, I, O]
}

// NewMachine returns a Machine positioned at initial.
func NewMachine[S, I comparable, O any](table *Table[S, I, O], initial S) *Machine[S, I, O] {
	return &Machine[S, I, O]{table: table, current: initial}
}

// State returns the current state.
func (m *Machine[S, I, O]) State() S {
	return m.current
}

// Done reports whether the current state is terminal.
func (m *Machine[S, I, O]) Done() bool {
	return m.table.IsTerminal(m.current)
}

// Fire applies input i. On rejection the state is unchanged and the error wraps
// ErrInvalidTransition.
func (m *Machine[S, I, O]) Fire(i I) (Result[S, I, O], error) {
	res := m.table.Evaluate(m.current, i)
	if !res.OK {
		return res, &TransitionError{From: m.current, Input: i}
	}
	m.current = res.To
	m.history = append(m.history, res)
	return res, nil
}

// History returns the accepted transitions in order.
func (m *Machine[S, I, O]) History() []Result[S, I, O] {
	out := make([]Result[S, I, O], len(m.history))
	copy(out, m.history)
	return out
}
