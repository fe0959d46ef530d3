package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Show the effective plan table",
	Long: `Show the plan table the server would run with: the plans from
the configuration file, or the built-in defaults when none are
configured.

Examples:
  metergate plans
  metergate plans --config /etc/metergate/config.yaml`,
	RunE: runPlans,
}

func init() {
	rootCmd.AddCommand(plansCmd)
}

func runPlans(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tREQUESTS/MONTH\tMAX KEYS\tPRICE/MONTH")
	for _, p := range cfg.PlanTable() {
		quota := fmt.Sprintf("%d", p.RequestsPerMonth)
		if p.RequestsPerMonth < 0 {
			quota = "unlimited"
		}
		price := "free"
		if p.PriceMonthly > 0 {
			price = fmt.Sprintf("$%.2f", float64(p.PriceMonthly)/100)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", p.ID, p.Name, quota, p.MaxKeys, price)
	}
	return w.Flush()
}
