package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"memoir/internal/app"
	"memoir/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "memoirctl",
	Short:         "Administer memoir projections",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

// loadConfig reads configuration and builds the CLI logger
func loadConfig() (*config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger, closeLog, err := config.NewLogger(cfg, "memoirctl")
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, closeLog, nil
}

// newApp wires the services. The caller must call the returned cleanup.
func newApp(ctx context.Context) (*app.App, func(), error) {
	cfg, logger, closeLog, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, func() {
		a.Close()
		closeLog()
	}, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(migrateCmd, productsCmd, narrativeCmd, projectionCmd)
}
