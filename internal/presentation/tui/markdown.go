package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/retry"
)

// DefinitionMarkdown describes a saga definition as a markdown document.
func DefinitionMarkdown(def *domain.Definition) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", def.Name)
	if def.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", def.Description)
	}
	fmt.Fprintf(&sb, "Initial state: `%s`\n\n", def.Initial)
	if len(def.Context) > 0 {
		names := def.Context.Names()
		keys := make([]string, 0, len(names))
		for k := range names {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Context:\n\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "- `%s`: %s\n", k, names[k])
		}
		sb.WriteString("\n")
	}

	sb.WriteString("| # | Step | Domain | Destination | Retry | Timeout | Compensation |\n")
	sb.WriteString("|---|------|--------|-------------|-------|---------|--------------|\n")
	for i, st := range def.Steps {
		comp := "yes"
		if st.Compensate == nil {
			comp = "**none**"
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s | %s | %s |\n",
			i, st.Name, dash(st.Domain), dash(string(st.Destination)),
			describePolicy(st.Retry), st.ActionTimeout(), comp)
	}
	return sb.String()
}

// SagaMarkdown describes a saga record as a markdown document.
func SagaMarkdown(s *domain.Saga) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s `%s`\n\n", s.Name, s.ID)
	fmt.Fprintf(&sb, "- **Status**: %s\n", s.Status)
	fmt.Fprintf(&sb, "- **Current**: `%s`\n", s.Current)
	fmt.Fprintf(&sb, "- **Version**: %d\n", s.Version)
	fmt.Fprintf(&sb, "- **Updated**: %s\n", s.UpdatedAt.Format("2006-01-02 15:04:05Z07:00"))
	if s.CancelRequested && !s.IsTerminal() {
		sb.WriteString("- **Cancel requested**\n")
	}
	sb.WriteString("\n## Steps\n\n| # | Step | Outcome | Attempts | Last error |\n|---|------|---------|----------|------------|\n")
	for _, st := range s.Steps {
		fmt.Fprintf(&sb, "| %d | %s | %s | %d | %s |\n", st.Index, st.Name, st.Outcome, st.Attempts, dash(st.LastError))
	}
	if f := s.Failure; f != nil {
		fmt.Fprintf(&sb, "\n## Failure\n\nStep `%s` failed (%s) after %d attempt(s): %s\n", f.Step, f.Kind, f.Attempts, f.Reason)
		if f.Rule != "" {
			fmt.Fprintf(&sb, "\nDenied by rule `%s`.\n", f.Rule)
		}
	}
	if len(s.CompensationErrors) > 0 {
		sb.WriteString("\n## Compensation errors\n\n")
		for _, f := range s.CompensationErrors {
			fmt.Fprintf(&sb, "- `%s`: %s\n", f.Step, f.Reason)
		}
	}
	return sb.String()
}

func describePolicy(p retry.Policy) string {
	p = p.Normalize()
	switch p.Backoff.Kind {
	case retry.BackoffFixed:
		return fmt.Sprintf("%d× every %s", p.MaxAttempts, p.Backoff.Delay)
	default:
		return fmt.Sprintf("%d× from %s ×%g up to %s", p.MaxAttempts, p.Backoff.Base, p.Backoff.Multiplier, p.Backoff.Cap)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
