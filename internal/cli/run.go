package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/sagaflow"
	"github.com/aretw0/sagaflow/internal/presentation/tui"
	"github.com/aretw0/sagaflow/pkg/domain"
)

// RunOptions configures a single saga execution from the command line.
type RunOptions struct {
	SagaID  string
	Context map[string]any
	Quiet   bool
	JSON    bool
}

// Run drives def to a terminal outcome and reports it on w.
// An operator interrupt cancels the saga, which then compensates; that
// outcome is reported but not returned as an error.
func Run(ctx *SignalContext, rt *Runtime, def *domain.Definition, opts RunOptions, w io.Writer) error {
	if !opts.Quiet && !opts.JSON {
		printSystemMessage(w, "Running saga '%s'...", def.Name)
	}

	saga, err := rt.Engine.Run(ctx, def, opts.SagaID, opts.Context)
	if saga == nil {
		return err
	}
	return report(w, saga, err, ctx.Signal(), opts)
}

// Resume continues a stored saga from its last durable record.
func Resume(ctx *SignalContext, rt *Runtime, sagaID string, opts RunOptions, w io.Writer) error {
	saga, err := rt.Engine.Resume(ctx, sagaID)
	if saga == nil {
		return err
	}
	return report(w, saga, err, ctx.Signal(), opts)
}

func report(w io.Writer, saga *domain.Saga, err error, sig os.Signal, opts RunOptions) error {
	if opts.JSON {
		if perr := PrintJSON(w, saga); perr != nil {
			return perr
		}
	} else if !opts.Quiet {
		printSystemMessage(w, "Saga '%s' finished: %s", saga.ID, tui.Status(saga.Status))
		if saga.Failure != nil {
			printSystemMessage(w, "Failed at step '%s' (%s): %s", saga.Failure.Step, saga.Failure.Kind, saga.Failure.Reason)
		}
		for _, ce := range saga.CompensationErrors {
			printSystemMessage(w, "Compensation of '%s' failed: %s", ce.Step, ce.Reason)
		}
	}

	if err == nil {
		return nil
	}
	if sig != nil && errors.Is(err, sagaflow.ErrCancelled) {
		if !opts.Quiet && !opts.JSON {
			printSystemMessage(w, "Interrupted (%v).", sig)
		}
		return nil
	}
	return err
}

// ExitCode maps a saga outcome error to a process exit code.
func ExitCode(err error) int {
	var stepErr *sagaflow.StepError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled), errors.Is(err, sagaflow.ErrCancelled):
		return 130
	case errors.Is(err, sagaflow.ErrPersistence):
		return 3
	case errors.As(err, &stepErr):
		return 2
	}
	return 1
}

// Describe prints a definition as markdown.
func Describe(w io.Writer, def *domain.Definition) error {
	return PrintMarkdown(w, tui.DefinitionMarkdown(def))
}

// Validate reports the linear walk of def through its table.
func Validate(w io.Writer, def *domain.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	path, err := def.DryRun()
	if err != nil {
		return err
	}
	for _, res := range path {
		fmt.Fprintf(w, "  %s --%s--> %s  [%s]\n", res.From, res.Input, res.To, res.Output.Event)
	}
	return nil
}
