package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/aretw0/sagaflow/internal/presentation/tui"
	"github.com/aretw0/sagaflow/pkg/domain"
)

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

// ParseContext turns key=value pairs into an initial saga context.
// Values that parse as JSON keep their type; anything else is a string.
func ParseContext(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid context entry %q, want key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

// PrintSagaList writes one line per saga in aligned columns.
func PrintSagaList(w io.Writer, sagas []*domain.Saga) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSAGA\tSTATUS\tCURRENT\tUPDATED")
	for _, s := range sagas {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, tui.Status(s.Status), s.Current,
			s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	_ = tw.Flush()
}

// PrintMarkdown renders markdown for the terminal, or writes it raw when
// stdout is not a TTY.
func PrintMarkdown(w io.Writer, markdown string) error {
	out, err := tui.NewRenderer()(markdown)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
