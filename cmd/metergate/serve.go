package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docpilot/metergate/bootstrap"
	"github.com/docpilot/metergate/config"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the metergate server",
	Long: `Start the metergate server.

The server will:
  - Load configuration from metergate.yaml (or --config)
  - Or load configuration from METERGATE_* environment variables
  - Open the database and apply migrations
  - Serve the product API, dashboard API and billing webhooks

Environment variables (for container deployments):
  METERGATE_DOCS_URL        - Documentation upstream URL (required)
  METERGATE_DATABASE_DSN    - Database path (default: metergate.db)
  METERGATE_SERVER_PORT     - Server port (default: 8080)
  METERGATE_LOG_LEVEL       - Log level: debug, info, warn, error

Examples:
  metergate serve
  metergate serve --config /etc/metergate/config.yaml
  metergate serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	var a *bootstrap.App
	var err error
	if hasConfigFile && hotReload {
		a, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("load config: %w", loadErr)
		}
		if !hasConfigFile {
			fmt.Println("Running with environment variables (no config file)")
		}
		a, err = bootstrap.New(cfg)
	}
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	return a.Run()
}
