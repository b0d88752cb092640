package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/sagaflow/internal/cli"
	"github.com/aretw0/sagaflow/internal/presentation/tui"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	"github.com/spf13/cobra"
)

var sagaCmd = &cobra.Command{
	Use:   "saga",
	Short: "Manage stored saga instances",
	Long:  `List, inspect, resume, cancel and remove saga records in the configured store.`,
}

var sagaLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored sagas",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		ids, err := rt.Engine.List(cmd.Context())
		if err != nil {
			return err
		}
		statusFilter, _ := cmd.Flags().GetStringSlice("status")
		keep := make(map[domain.Status]bool, len(statusFilter))
		for _, s := range statusFilter {
			keep[domain.Status(strings.TrimSpace(s))] = true
		}

		sagas := make([]*domain.Saga, 0, len(ids))
		for _, id := range ids {
			saga, err := rt.Engine.Inspect(cmd.Context(), id)
			if errors.Is(err, domain.ErrSagaNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if len(keep) > 0 && !keep[saga.Status] {
				continue
			}
			sagas = append(sagas, saga)
		}
		if len(sagas) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sagas found.")
			return nil
		}
		sort.Slice(sagas, func(i, j int) bool { return sagas[i].UpdatedAt.After(sagas[j].UpdatedAt) })
		cli.PrintSagaList(cmd.OutOrStdout(), sagas)
		return nil
	},
}

var sagaInspectCmd = &cobra.Command{
	Use:   "inspect <saga-id>",
	Short: "Inspect the record of a saga",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		saga, err := rt.Engine.Inspect(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("loading saga '%s': %w", args[0], err)
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return cli.PrintJSON(cmd.OutOrStdout(), saga)
		}
		return cli.PrintMarkdown(cmd.OutOrStdout(), tui.SagaMarkdown(saga))
	},
}

var sagaHistoryCmd = &cobra.Command{
	Use:   "history <saga-id>",
	Short: "Print the persisted transition log of a saga",
	Long:  `Reads the append-only history log. Requires --history (or SAGAFLOW_HISTORY) when the saga ran.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		if rt.History == nil {
			return errors.New("history is disabled; enable it with --history")
		}
		entries, err := rt.History.History(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return cli.PrintJSON(cmd.OutOrStdout(), entries)
	},
}

var sagaResumeCmd = &cobra.Command{
	Use:   "resume <saga-id>",
	Short: "Resume a saga from its last durable record",
	Long: `Continues an interrupted saga. The definition it was started from must be
loaded with --def (a file or a directory of definitions).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		defs, _ := cmd.Flags().GetStringSlice("def")
		if _, err := rt.LoadAll(defs...); err != nil {
			return err
		}
		opts, err := runOptions(cmd)
		if err != nil {
			return err
		}
		sc := cli.NewSignalContext(context.Background())
		defer sc.Cancel()
		return cli.Resume(sc, rt, args[0], opts, cmd.OutOrStdout())
	},
}

var sagaCancelCmd = &cobra.Command{
	Use:   "cancel <saga-id>",
	Short: "Request cancellation of a saga",
	Long: `Marks a non-terminal saga as cancel-requested. The process driving it (or the
next resume) compensates its completed steps.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.Engine.Cancel(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for '%s'\n", args[0])
		return nil
	},
}

var sagaRmCmd = &cobra.Command{
	Use:   "rm <saga-id>...",
	Short: "Remove one or more sagas",
	Args: func(cmd *cobra.Command, args []string) error {
		if all, _ := cmd.Flags().GetBool("all"); all {
			return nil
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		if all, _ := cmd.Flags().GetBool("all"); all {
			if args, err = terminalSagas(cmd.Context(), rt.Engine); err != nil {
				return err
			}
		}

		failed := 0
		for _, id := range args {
			if err := rt.Engine.Delete(cmd.Context(), id); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Error removing '%s': %v\n", id, err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed saga '%s'\n", id)
		}
		if failed > 0 {
			return fmt.Errorf("%d sagas could not be removed", failed)
		}
		return nil
	},
}

// terminalSagas lists the ids of sagas that reached a terminal status.
func terminalSagas(ctx context.Context, svc ports.SagaService) ([]string, error) {
	ids, err := svc.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, id := range ids {
		saga, err := svc.Inspect(ctx, id)
		if err != nil {
			continue
		}
		if saga.IsTerminal() {
			out = append(out, id)
		}
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(sagaCmd)
	sagaCmd.AddCommand(sagaLsCmd, sagaInspectCmd, sagaHistoryCmd, sagaResumeCmd, sagaCancelCmd, sagaRmCmd)

	sagaLsCmd.Flags().StringSlice("status", nil, "Only list sagas in these statuses")
	sagaInspectCmd.Flags().Bool("json", false, "Print the raw record as JSON")
	sagaResumeCmd.Flags().StringSlice("def", []string{"."}, "Definition files or directories")
	sagaResumeCmd.Flags().BoolP("quiet", "q", false, "Print nothing but errors")
	sagaResumeCmd.Flags().Bool("json", false, "Print the final saga record as JSON")
	sagaRmCmd.Flags().Bool("all", false, "Remove every saga in a terminal status")
}
