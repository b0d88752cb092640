package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aretw0/sagaflow"
	"github.com/aretw0/sagaflow/internal/cli"
	"github.com/aretw0/sagaflow/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes saga inspection and cancellation as MCP tools (list_sagas,
inspect_saga, cancel_saga, saga_graph) so AI agents can operate sagaflow.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		defs, _ := cmd.Flags().GetStringSlice("def")
		if len(defs) > 0 {
			if _, err := rt.LoadAll(defs...); err != nil {
				return err
			}
		}

		srv := mcp.NewServer(rt.Engine, sagaflow.Version,
			mcp.WithDefinitions(rt.Engine.Registry()),
			mcp.WithLogger(rt.Logger),
		)

		transport, _ := cmd.Flags().GetString("transport")
		switch transport {
		case "stdio":
			// Logs already go to stderr; stdout carries JSON-RPC.
			rt.Logger.Info("starting sagaflow MCP server (stdio)")
			return srv.ServeStdio()
		case "sse":
			port, _ := cmd.Flags().GetInt("port")
			sc := cli.NewSignalContext(context.Background())
			defer sc.Cancel()
			if err := srv.ServeSSE(sc, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			rt.Logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
	mcpCmd.Flags().StringSlice("def", nil, "Definition files or directories (enables saga_graph)")
}
