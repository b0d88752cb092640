package main

import (
	"fmt"
	"os"

	"github.com/aretw0/sagaflow/internal/cli"
	"github.com/aretw0/sagaflow/internal/config"
	"github.com/aretw0/sagaflow/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sagaflow",
	Short: "sagaflow coordinates multi-step transactions across domains",
	Long: `sagaflow runs sagas: ordered steps with retry policies and compensations,
driven by a deterministic transition table until every saga is either fully
committed or fully compensated.

Configuration comes from SAGAFLOW_* environment variables; flags override them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("store", "", "Saga store: memory, file, redis or sqlite (env SAGAFLOW_STORE)")
	f.String("dir", "", "Data directory of the file store (env SAGAFLOW_DIR)")
	f.String("sqlite", "", "SQLite database path (env SAGAFLOW_SQLITE_PATH)")
	f.String("redis-url", "", "Redis URL for the redis store, router and locker (env SAGAFLOW_REDIS_URL)")
	f.String("router", "", "Output router: log, redis or none (env SAGAFLOW_ROUTER)")
	f.Bool("history", false, "Record every transition in the SQLite history log (env SAGAFLOW_HISTORY)")
	f.String("commands", "", "Command allow-list file (env SAGAFLOW_COMMANDS)")
	f.String("log-level", "", "Log level: debug, info, warn or error (env SAGAFLOW_LOG_LEVEL)")
	f.Bool("log-json", false, "Write logs as JSON")
}

// loadConfig reads the environment and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if err := config.ParseEnv(&cfg); err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	override := func(name string, target *string) {
		if f.Changed(name) {
			*target, _ = f.GetString(name)
		}
	}
	override("store", &cfg.Store)
	override("dir", &cfg.Dir)
	override("sqlite", &cfg.SQLitePath)
	override("redis-url", &cfg.RedisURL)
	override("router", &cfg.Router)
	override("commands", &cfg.Commands)
	override("log-level", &cfg.LogLevel)
	if f.Changed("history") {
		cfg.History, _ = f.GetBool("history")
	}
	if f.Changed("log-json") {
		if asJSON, _ := f.GetBool("log-json"); asJSON {
			cfg.LogFormat = "json"
		}
	}
	return cfg, cfg.Validate()
}

// newRuntime builds the wired engine for a command.
func newRuntime(cmd *cobra.Command) (*cli.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.NewWithWriter(os.Stderr, level, cfg.LogFormat == "json")
	return cli.NewRuntime(cfg, logger)
}
