package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docpilot/metergate/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the metergate configuration file.

Checks YAML syntax, required fields and the plan table.

Examples:
  metergate validate
  metergate validate --config /etc/metergate/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	fmt.Println("Configuration valid")
	fmt.Printf("  Docs upstream: %s\n", cfg.Docs.URL)
	fmt.Printf("  Database:      %s (%s)\n", cfg.Database.DSN, cfg.Database.Driver)
	fmt.Printf("  Billing mode:  %s\n", cfg.Billing.Mode)
	fmt.Printf("  Plans:         %d\n", len(cfg.PlanTable()))
	return nil
}
