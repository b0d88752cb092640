package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/sagaflow"
	"github.com/aretw0/sagaflow/internal/cli"
	httpadapter "github.com/aretw0/sagaflow/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP inspection and cancellation API",
	Long: `Serves saga records over HTTP: list, inspect, cancel, live diffs over SSE,
Mermaid graphs and Prometheus metrics. With --resume, every non-terminal saga
whose definition is loaded is resumed in the background.`,
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

		addr := rt.Config.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		handler := httpadapter.NewHandler(rt.Engine,
			httpadapter.WithDefinitions(rt.Engine.Registry()),
			httpadapter.WithStreams(rt.Streams),
			httpadapter.WithMetrics(rt.MetricsHandler()),
			httpadapter.WithVersion(sagaflow.Version),
			httpadapter.WithLogger(rt.Logger),
		)
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		sc := cli.NewSignalContext(context.Background())
		defer sc.Cancel()

		if resume, _ := cmd.Flags().GetBool("resume"); resume {
			go func() {
				sagas, err := rt.Engine.ResumeAll(sc)
				if err != nil {
					rt.Logger.Error("resume failed", "err", err)
					return
				}
				rt.Logger.Info("resumed sagas", "count", len(sagas))
			}()
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			rt.Logger.Info("sagaflow server listening", "address", addr, "store", rt.Config.Store)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-sc.Done():
			rt.Logger.Info("shutdown signal received", "signal", sc.Signal())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				_ = srv.Close()
				return fmt.Errorf("graceful shutdown did not complete: %w", err)
			}
			rt.Logger.Info("sagaflow server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on (env SAGAFLOW_ADDR)")
	serveCmd.Flags().StringSlice("def", nil, "Definition files or directories to load")
	serveCmd.Flags().Bool("resume", false, "Resume non-terminal sagas on startup")
}
