package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eventhub/eventhub/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long: `Apply or roll back schema migrations. Migrations are embedded in the
binary; set MIGRATIONS_PATH to run them from a directory instead.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, os.Stderr)

		if err := repository.MigrateUp(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			return fmt.Errorf("migrate up: %s", sanitizeError(err, cfg.DatabaseURL))
		}
		version, dirty, err := repository.MigrationVersion(cfg.DatabaseURL, cfg.MigrationsPath)
		if err != nil {
			return fmt.Errorf("read migration version: %s", sanitizeError(err, cfg.DatabaseURL))
		}
		logger.Info("migrations_applied", "version", version, "dirty", dirty)
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (one step by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := parseSteps(args)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, os.Stderr)

		if err := repository.MigrateDown(cfg.DatabaseURL, cfg.MigrationsPath, steps); err != nil {
			return fmt.Errorf("migrate down: %s", sanitizeError(err, cfg.DatabaseURL))
		}
		logger.Info("migrations_rolled_back", "steps", steps)
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		version, dirty, err := repository.MigrationVersion(cfg.DatabaseURL, cfg.MigrationsPath)
		if err != nil {
			return fmt.Errorf("read migration version: %s", sanitizeError(err, cfg.DatabaseURL))
		}
		if version == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

// parseSteps reads the optional step count for migrate down.
func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	steps, err := strconv.Atoi(args[0])
	if err != nil || steps < 1 {
		return 0, fmt.Errorf("steps must be a positive integer, got %q", args[0])
	}
	return steps, nil
}
