package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/docpilot/metergate/adapters/clock"
	"github.com/docpilot/metergate/adapters/hasher"
	"github.com/docpilot/metergate/adapters/idgen"
	"github.com/docpilot/metergate/adapters/sqlite"
	"github.com/docpilot/metergate/app"
	"github.com/rs/zerolog"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long: `Manage metergate API keys.

Examples:
  metergate keys list --customer=cus_123
  metergate keys create --customer=cus_123 --name=ci
  metergate keys revoke key_abc123 --customer=cus_123`,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a customer's API keys",
	RunE:  runKeysList,
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	RunE:  runKeysCreate,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

var (
	keyCustomerID string
	keyName       string
)

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysRevokeCmd)

	keysListCmd.Flags().StringVar(&keyCustomerID, "customer", "", "customer ID (required)")
	keysListCmd.MarkFlagRequired("customer")
	keysCreateCmd.Flags().StringVar(&keyCustomerID, "customer", "", "customer ID (required)")
	keysCreateCmd.Flags().StringVar(&keyName, "name", "", "key name (optional)")
	keysCreateCmd.MarkFlagRequired("customer")
	keysRevokeCmd.Flags().StringVar(&keyCustomerID, "customer", "", "customer ID (required)")
	keysRevokeCmd.MarkFlagRequired("customer")
}

func newKeyService(db *sqlite.DB) (*app.KeyService, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.NewKeyService(app.KeyDeps{
		Keys:      sqlite.NewKeyStore(db),
		Customers: sqlite.NewCustomerStore(db),
		Usage:     sqlite.NewUsageStore(db),
		Hasher:    hasher.NewBcrypt(cfg.Auth.BcryptCost),
		Clock:     clock.Real{},
		IDGen:     idgen.UUID{},
		Plans:     app.NewPlanTable(cfg.PlanTable()),
		KeyPrefix: cfg.Auth.KeyPrefix,
		Logger:    zerolog.Nop(),
	}), nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := newKeyService(db)
	if err != nil {
		return err
	}

	infos, err := svc.List(context.Background(), keyCustomerID)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	if len(infos) == 0 {
		fmt.Printf("No keys found for customer %s.\n", keyCustomerID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPREFIX\tNAME\tSTATUS\tREQUESTS\tCREATED")
	for _, info := range infos {
		status := "active"
		if !info.Key.IsActive() {
			status = "revoked"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			info.Key.ID, info.Key.Prefix, info.Key.Name, status,
			info.RequestsThisMonth, info.Key.CreatedAt.Format(time.DateOnly))
	}
	return w.Flush()
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := newKeyService(db)
	if err != nil {
		return err
	}

	created, err := svc.Create(context.Background(), keyCustomerID, keyName)
	if err != nil {
		return fmt.Errorf("create key: %w", err)
	}

	fmt.Printf("Created key %s\n\n", created.Key.ID)
	fmt.Printf("  %s\n\n", created.Plaintext)
	fmt.Println("Store this secret now. It cannot be shown again.")
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := newKeyService(db)
	if err != nil {
		return err
	}

	if err := svc.Revoke(context.Background(), keyCustomerID, args[0]); err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}
	fmt.Printf("Revoked %s\n", args[0])
	return nil
}
