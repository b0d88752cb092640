package main

import (
	"fmt"

	"github.com/aretw0/sagaflow/internal/cli"
	"github.com/aretw0/sagaflow/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <definition>...",
	Short: "Check saga definitions",
	Long: `Loads each definition, resolves its actions and walks its steps through the
transition table from the initial state, reporting the first input the table
would reject.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		out := cmd.OutOrStdout()
		failed := 0
		for _, path := range args {
			def, err := rt.Load(path)
			if err == nil {
				fmt.Fprintf(out, "%s (%s):\n", path, def.Name)
				err = cli.Validate(out, def)
			}
			if err != nil {
				fmt.Fprintf(out, "%s: %v\n", path, err)
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d definitions are invalid", failed, len(args))
		}
		fmt.Fprintln(out, "All definitions are valid! ✅")
		return nil
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph <definition>",
	Short: "Export the step machine as a Mermaid diagram",
	Long: `Prints a Mermaid stateDiagram-v2 of the definition's transition table.
With --saga, the states visited by that stored saga are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		def, err := rt.Load(args[0])
		if err != nil {
			return err
		}

		var overlay *graph.GraphOverlay
		if id, _ := cmd.Flags().GetString("saga"); id != "" {
			saga, err := rt.Engine.Inspect(cmd.Context(), id)
			if err != nil {
				return err
			}
			overlay = graph.OverlayFromSaga(saga)
		}

		out, err := graph.GenerateDefinition(def, overlay)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe <definition>",
	Short: "Describe a saga definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		def, err := rt.Load(args[0])
		if err != nil {
			return err
		}
		return cli.Describe(cmd.OutOrStdout(), def)
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <definition> <input>...",
	Short: "Feed inputs to the step machine without running actions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		def, err := rt.Load(args[0])
		if err != nil {
			return err
		}
		_, err = cli.Simulate(cmd.OutOrStdout(), def, args[1:])
		return err
	},
}

func init() {
	rootCmd.AddCommand(validateCmd, graphCmd, describeCmd, simulateCmd)
	graphCmd.Flags().String("saga", "", "Highlight the progress of this stored saga")
}
