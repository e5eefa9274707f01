package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/organ-waitlist-engine/internal/app"
	"github.com/organ-waitlist-engine/internal/config"
	"github.com/organ-waitlist-engine/internal/database"
)

func newMigrateCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the Postgres schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withMigrations(func(runner *database.MigrationRunner) error {
				if err := runner.Up(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withMigrations(func(runner *database.MigrationRunner) error {
				if err := runner.Down(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Rolled back one migration")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withMigrations(func(runner *database.MigrationRunner) error {
				v, dirty, err := runner.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Version %d (dirty: %t)\n", v, dirty)
				return nil
			})
		},
	})

	return cmd
}

// withMigrations runs fn with a migration runner for the configured database.
// It needs no connection pool.
func (c *cli) withMigrations(fn func(*database.MigrationRunner) error) error {
	if c.backend != "postgres" {
		return fmt.Errorf("migrations apply to the postgres backend only; the lite store creates its schema on open")
	}

	manager, err := app.LoadConfig(c.configFile)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(manager.GetConfig().Logging)
	if err != nil {
		return err
	}

	dbCfg := manager.GetDatabaseConfig()
	runner, err := database.NewMigrationRunner(database.ConfigFrom(*dbCfg).URL(), dbCfg.MigrationsPath, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	return fn(runner)
}
