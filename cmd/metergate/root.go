package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docpilot/metergate/adapters/sqlite"
	"github.com/docpilot/metergate/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "metergate",
	Short: "API key issuance and usage-quota enforcement for the docs API",
	Long: `Metergate is the account and metering backend for the documentation
retrieval API. It issues API keys, enforces per-plan monthly quotas,
keeps the usage ledger and reconciles plans with the billing processor.

Quick start:
  metergate serve      # Start the server
  metergate validate   # Validate configuration

Management:
  metergate customers  # Inspect customer accounts
  metergate keys       # Manage API keys`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "metergate.yaml", "config file path")
}

// loadConfig loads configuration for management commands.
func loadConfig() (*config.Config, error) {
	return config.LoadWithFallback(cfgFile)
}

// openDatabase opens the configured sqlite database.
func openDatabase() (*sqlite.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver != "sqlite" {
		return nil, fmt.Errorf("management commands require the sqlite driver (configured: %s)", cfg.Database.Driver)
	}
	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
