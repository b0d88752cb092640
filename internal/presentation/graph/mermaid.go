package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/fsm"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedStates []string
	CurrentState  string
	// Failed marks the current state as the point of failure.
	Failed bool
}

// OverlayFromSaga builds an overlay from the step transitions of a saga record.
func OverlayFromSaga(s *domain.Saga) *GraphOverlay {
	o := &GraphOverlay{CurrentState: s.Current}
	for _, t := range s.Transitions {
		if t.Kind != "step" {
			continue
		}
		o.VisitedStates = append(o.VisitedStates, t.From, t.To)
	}
	o.Failed = s.Failure != nil
	return o
}

// GenerateMermaid produces a Mermaid stateDiagram-v2 of a transition table.
// Edges are labelled with the input, prefixed by the priority when it is not 0.
// Terminal states get an edge to [*].
func GenerateMermaid[S, I comparable, O any](table *fsm.Table[S, I, O], initial S, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("stateDiagram-v2\n")

	for _, s := range table.States() {
		id := fmt.Sprint(s)
		safeID := sanitizeMermaidID(id)
		if safeID != id {
			fmt.Fprintf(&sb, "    state \"%s\" as %s\n", escape(id), safeID)
		}
	}

	fmt.Fprintf(&sb, "    [*] --> %s\n", sanitizeMermaidID(fmt.Sprint(initial)))
	for _, r := range table.Rules() {
		label := escape(fmt.Sprint(r.Input))
		if r.Priority != 0 {
			label = fmt.Sprintf("%s (p%d)", label, r.Priority)
		}
		fmt.Fprintf(&sb, "    %s --> %s : %s\n",
			sanitizeMermaidID(fmt.Sprint(r.From)), sanitizeMermaidID(fmt.Sprint(r.To)), label)
	}
	for _, s := range table.States() {
		if table.IsTerminal(s) {
			fmt.Fprintf(&sb, "    %s --> [*]\n", sanitizeMermaidID(fmt.Sprint(s)))
		}
	}

	writeOverlay(&sb, overlay)
	return sb.String()
}

// GenerateDefinition renders the saga table of def and annotates steps
// that have no compensation.
func GenerateDefinition(def *domain.Definition, overlay *GraphOverlay) (string, error) {
	table, err := def.Machine()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(GenerateMermaid(table, def.Initial, overlay))

	for _, st := range def.Steps {
		if st.Compensate == nil {
			fmt.Fprintf(&sb, "    note right of %s : no compensation\n", sanitizeMermaidID(st.Name))
		}
	}
	return sb.String(), nil
}

func writeOverlay(sb *strings.Builder, overlay *GraphOverlay) {
	if overlay == nil {
		return
	}
	sb.WriteString("\n    %% Overlay Styles\n")
	// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
	sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000\n")
	sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000\n")
	sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#b71c1c,stroke-width:4px,color:#000\n")

	seen := make(map[string]bool)
	for _, id := range overlay.VisitedStates {
		safeID := sanitizeMermaidID(id)
		if safeID == "" || seen[safeID] || id == overlay.CurrentState {
			continue
		}
		seen[safeID] = true
		fmt.Fprintf(sb, "    class %s visited\n", safeID)
	}

	if overlay.CurrentState != "" {
		class := "current"
		if overlay.Failed {
			class = "failed"
		}
		fmt.Fprintf(sb, "    class %s %s\n", sanitizeMermaidID(overlay.CurrentState), class)
	}
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_", ":", "_")
	return r.Replace(id)
}
