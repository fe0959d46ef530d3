package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/docpilot/metergate/adapters/clock"
	"github.com/docpilot/metergate/adapters/idgen"
	"github.com/docpilot/metergate/adapters/payment"
	"github.com/docpilot/metergate/adapters/sqlite"
	"github.com/docpilot/metergate/app"
	"github.com/rs/zerolog"
)

var customersCmd = &cobra.Command{
	Use:   "customers",
	Short: "Inspect customer accounts",
	Long: `Inspect and manage metergate customer accounts.

Examples:
  metergate customers list
  metergate customers create cus_123 --email dev@example.com
  metergate customers set-plan cus_123 pro`,
}

var customersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List customers",
	RunE:  runCustomersList,
}

var customersCreateCmd = &cobra.Command{
	Use:   "create <customer-id>",
	Short: "Provision a customer on the default plan",
	Long: `Provision a customer on the default plan, anchored to today's
day-of-month. A no-op when the customer already exists.`,
	Args: cobra.ExactArgs(1),
	RunE: runCustomersCreate,
}

var customersSetPlanCmd = &cobra.Command{
	Use:   "set-plan <customer-id> <plan-id>",
	Short: "Move a customer to a plan",
	Long: `Move a customer to a plan, bypassing the billing processor.

The change is recorded in the plan-change audit trail like any webhook
delivery; the running period counter is untouched.`,
	Args: cobra.ExactArgs(2),
	RunE: runCustomersSetPlan,
}

var (
	customersLimit int
	customerEmail  string
	customerName   string
)

func init() {
	rootCmd.AddCommand(customersCmd)
	customersCmd.AddCommand(customersListCmd)
	customersCmd.AddCommand(customersCreateCmd)
	customersCmd.AddCommand(customersSetPlanCmd)

	customersListCmd.Flags().IntVar(&customersLimit, "limit", 100, "maximum rows")
	customersCreateCmd.Flags().StringVar(&customerEmail, "email", "", "contact email")
	customersCreateCmd.Flags().StringVar(&customerName, "name", "", "display name")
}

func runCustomersList(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	customers, err := sqlite.NewCustomerStore(db).List(context.Background(), customersLimit, 0)
	if err != nil {
		return fmt.Errorf("list customers: %w", err)
	}
	if len(customers) == 0 {
		fmt.Println("No customers found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tPLAN\tANCHOR\tSTATUS\tCREATED")
	for _, c := range customers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			c.ID, c.Email, c.PlanID, c.AnchorDay, c.Status,
			c.CreatedAt.Format(time.DateOnly))
	}
	return w.Flush()
}

func runCustomersCreate(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc := app.NewAccountService(app.AccountDeps{
		Customers:     sqlite.NewCustomerStore(db),
		Quotas:        sqlite.NewQuotaStore(db),
		Billing:       payment.NewNoop(),
		Plans:         app.NewPlanTable(cfg.PlanTable()),
		Clock:         clock.Real{},
		DefaultPlanID: cfg.Billing.DefaultPlan,
		Logger:        zerolog.Nop(),
	})

	cust, err := svc.Ensure(context.Background(), args[0], customerEmail, customerName)
	if err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	fmt.Printf("Customer %s on plan %s (anchor day %d)\n", cust.ID, cust.PlanID, cust.AnchorDay)
	return nil
}

func runCustomersSetPlan(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ids := idgen.UUID{}
	svc := app.NewPlanSyncService(app.PlanSyncDeps{
		Customers: sqlite.NewCustomerStore(db),
		Changes:   sqlite.NewPlanChangeStore(db),
		Plans:     app.NewPlanTable(cfg.PlanTable()),
		Clock:     clock.Real{},
		IDGen:     ids,
		Logger:    zerolog.Nop(),
	})

	sourceEventID := "cli_" + ids.New()
	if err := svc.Apply(context.Background(), args[0], args[1], sourceEventID, time.Now().UTC()); err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	fmt.Printf("Customer %s moved to plan %s\n", args[0], args[1])
	return nil
}
