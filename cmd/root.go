// Package cmd wires configuration, storage, and the orchestrator into the
// tripwise binary's commands.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tripwise/tripwise/internal/log"
)

var rootCmd = &cobra.Command{
	Use:          "tripwise",
	Short:        "TripWise conversational concierge service",
	Long:         "TripWise serves the streaming conversation API for the cultural tourism platform:\ncapability-driven chat turns backed by a layered session store.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Running the bare binary starts the server.
		return runServe(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. DEBUG in the environment lowers the
// level; TRIPWISE_LOG_JSON switches to JSON records for log shippers.
func newLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("TRIPWISE_LOG_JSON") != "" {
		cfg.JSON = true
	}
	return log.New(cfg)
}
