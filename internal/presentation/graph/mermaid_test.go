package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/sagaflow/internal/presentation/graph"
	"github.com/aretw0/sagaflow/internal/testutils"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMermaid(t *testing.T) {
	table := fsm.NewBuilder[string, string, struct{}]().
		Rule("idle", "go", "busy").
		RuleWithPriority("busy", "done", 2, "order.closed").
		Terminal("order.closed").
		MustBuild()

	tests := []struct {
		name     string
		overlay  *graph.GraphOverlay
		contains []string
		excludes []string
	}{
		{
			name: "Structure",
			contains: []string{
				"stateDiagram-v2",
				"[*] --> idle",
				"idle --> busy : go",
				"busy --> order_closed : done (p2)",
				"order_closed --> [*]",
				`state "order.closed" as order_closed`,
			},
			excludes: []string{"classDef"},
		},
		{
			name:    "Overlay",
			overlay: &graph.GraphOverlay{VisitedStates: []string{"idle", "busy", "busy"}, CurrentState: "busy"},
			contains: []string{
				"class idle visited",
				"class busy current",
			},
			excludes: []string{"class busy visited"},
		},
		{
			name:     "Failed Overlay",
			overlay:  &graph.GraphOverlay{CurrentState: "busy", Failed: true},
			contains: []string{"class busy failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := graph.GenerateMermaid(table, "idle", tt.overlay)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestGenerateDefinition(t *testing.T) {
	rec := &testutils.Recorder{}
	def := testutils.Definition("order",
		testutils.Step("reserve", rec.Succeed("reserve", nil), rec.Succeed(testutils.Undo("reserve"), nil)),
		testutils.Step("notify", rec.Succeed("notify", nil), nil),
	)

	saga := domain.NewSaga("s-1", def, nil, testutils.NewClock().Now())
	saga.Current = "reserve"
	saga.Transitions = []domain.TransitionRecord{
		{Kind: "step", From: "start", Input: "reserve", To: "reserve"},
		{Kind: "lifecycle", From: "running", To: "running"},
	}

	out, err := graph.GenerateDefinition(def, graph.OverlayFromSaga(saga))
	require.NoError(t, err)

	assert.Contains(t, out, "start --> reserve : reserve")
	assert.Contains(t, out, "reserve --> notify : notify")
	assert.Contains(t, out, "note right of notify : no compensation")
	assert.NotContains(t, out, "note right of reserve")
	assert.Contains(t, out, "class start visited")
	assert.Contains(t, out, "class reserve current")
	assert.False(t, strings.Contains(out, "class running"))
}
