package definition

import (
	"time"
)

// File is the decoded form of a definition file.
type File struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Initial     string `mapstructure:"initial"`
	// Context maps required context keys to type names, e.g. "int" or "string?".
	Context     map[string]string `mapstructure:"context"`
	Steps       []StepSpec        `mapstructure:"steps"`
	Transitions []TransitionSpec  `mapstructure:"transitions"`
	Terminal    []string          `mapstructure:"terminal"`
}

// StepSpec describes one step. Action and Compensate are either an action
// name or a map decoded into ActionRef.
type StepSpec struct {
	Name        string         `mapstructure:"name"`
	Input       string         `mapstructure:"input"`
	Domain      string         `mapstructure:"domain"`
	Operation   string         `mapstructure:"operation"`
	Destination string         `mapstructure:"destination"`
	Action      any            `mapstructure:"action"`
	Compensate  any            `mapstructure:"compensate"`
	Retry       map[string]any `mapstructure:"retry"`
	// CompensateRetry is opt-in; without it a compensation runs once.
	CompensateRetry map[string]any `mapstructure:"compensate_retry"`
	Timeout         time.Duration  `mapstructure:"timeout"`
}

// TransitionSpec is one explicit rule of the saga table.
type TransitionSpec struct {
	From     string `mapstructure:"from"`
	Input    string `mapstructure:"input"`
	To       string `mapstructure:"to"`
	Priority int    `mapstructure:"priority"`
	// Event overrides the output event; defaults to "<to>.completed".
	Event string `mapstructure:"event"`
}

// ActionRef points at an action. Command selects an allow-listed process;
// Name selects a registered in-process action, falling back to a command of
// the same name.
type ActionRef struct {
	Name    string `mapstructure:"name"`
	Command string `mapstructure:"command"`
}

func (r ActionRef) String() string {
	if r.Command != "" {
		return "command:" + r.Command
	}
	return r.Name
}
