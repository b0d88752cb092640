package main

import (
	"strings"

	"github.com/aretw0/sagaflow"
	"github.com/aretw0/sagaflow/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of sagaflow",
	Run: func(cmd *cobra.Command, args []string) {
		if tui.IsTerminal() {
			tui.PrintBanner(cmd.OutOrStdout(), strings.TrimSpace(sagaflow.Version))
			return
		}
		cmd.Printf("sagaflow version %s\n", strings.TrimSpace(sagaflow.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
