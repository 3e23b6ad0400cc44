package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/mergemint/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mergemint",
		Short: "Score merged pull requests and drain the evaluation backlog",
		Long: `mergemint ingests merged pull requests from GitHub, scores each one with an
LLM against configurable rules and drains the unevaluated backlog one PR per
trigger. Configuration is read from MERGEMINT_* environment variables.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd(), newDrainCmd(), newMigrateCmd())
	return root
}

// loadConfig reads the environment and installs the process-wide logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(cfg))
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
