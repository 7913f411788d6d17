package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"memoir/internal/repository/postgres"
	"memoir/internal/repository/postgres/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closeLog, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeLog()

		pool, err := postgres.CreateConnectionPool(cmd.Context(), cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := postgres.EnsureSchema(cmd.Context(), pool, cfg.Schema); err != nil {
			return err
		}
		if err := migrations.MigrateUp(cfg.DatabaseURL, cfg.Schema); err != nil {
			return err
		}

		status, err := migrations.CheckStatus(cfg.DatabaseURL, cfg.Schema)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema %s at version %d\n", cfg.Schema, status.Version)
		return nil
	},
}

var migrateDownSteps int

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, closeLog, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeLog()

		if cfg.Environment == "prod" {
			return fmt.Errorf("refusing to roll back migrations in prod")
		}
		if err := migrations.MigrateDown(cfg.DatabaseURL, cfg.Schema, migrateDownSteps); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %d migration(s) in %s\n", migrateDownSteps, cfg.Schema)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, closeLog, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeLog()

		status, err := migrations.CheckStatus(cfg.DatabaseURL, cfg.Schema)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Schema:  %s\n", cfg.Schema)
		fmt.Fprintf(out, "Version: %d\n", status.Version)
		fmt.Fprintf(out, "Latest:  %d\n", status.Latest)
		fmt.Fprintf(out, "Pending: %d\n", status.Pending())
		if status.Dirty {
			fmt.Fprintln(out, "WARNING: schema is dirty (a migration failed part way)")
		}
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateDownSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}
