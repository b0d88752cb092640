package main

import (
	"context"

	"github.com/aretw0/sagaflow/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <definition>",
	Short: "Run a saga to its terminal outcome",
	Long: `Loads a saga definition file and drives a new saga instance until it is
committed, compensated or cancelled. Ctrl+C cancels the saga, which then
compensates its completed steps before exiting.`,
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

		opts, err := runOptions(cmd)
		if err != nil {
			return err
		}
		sc := cli.NewSignalContext(context.Background())
		defer sc.Cancel()
		return cli.Run(sc, rt, def, opts, cmd.OutOrStdout())
	},
}

func runOptions(cmd *cobra.Command) (cli.RunOptions, error) {
	id, _ := cmd.Flags().GetString("id")
	pairs, _ := cmd.Flags().GetStringArray("set")
	quiet, _ := cmd.Flags().GetBool("quiet")
	asJSON, _ := cmd.Flags().GetBool("json")

	initial, err := cli.ParseContext(pairs)
	if err != nil {
		return cli.RunOptions{}, err
	}
	return cli.RunOptions{SagaID: id, Context: initial, Quiet: quiet, JSON: asJSON}, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("id", "", "Saga instance ID (random when omitted)")
	runCmd.Flags().StringArray("set", nil, "Initial context entry key=value (repeatable)")
	runCmd.Flags().BoolP("quiet", "q", false, "Print nothing but errors")
	runCmd.Flags().Bool("json", false, "Print the final saga record as JSON")
}
