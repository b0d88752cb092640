package cli

import (
	"fmt"
	"io"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/fsm"
)

// Simulate feeds inputs to def's step machine without running any action.
// Rejected inputs are reported and leave the state unchanged. It returns the
// final state.
func Simulate(w io.Writer, def *domain.Definition, inputs []string) (string, error) {
	table, err := def.Machine()
	if err != nil {
		return "", err
	}
	m := fsm.NewMachine(table, def.Initial)
	fmt.Fprintf(w, "start: %s\n", m.State())
	for _, in := range inputs {
		res, err := m.Fire(in)
		if err != nil {
			fmt.Fprintf(w, "  %s --%s--> rejected\n", res.From, in)
			continue
		}
		fmt.Fprintf(w, "  %s --%s--> %s  [%s]\n", res.From, res.Input, res.To, res.Output.Event)
	}
	if m.Done() {
		fmt.Fprintf(w, "end: %s (terminal)\n", m.State())
	} else {
		fmt.Fprintf(w, "end: %s\n", m.State())
	}
	return m.State(), nil
}
