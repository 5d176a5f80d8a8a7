package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tripwise/tripwise/db"
	"github.com/tripwise/tripwise/internal/config"
)

// migrate applies pending schema migrations and exits. serve runs
// migrations on startup anyway; this command exists for deploy pipelines
// that migrate before rolling instances.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger := newLogger()
		if err := db.Migrate(cfg.Postgres.ConnURL(), logger); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		logger.Info("migrations complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
