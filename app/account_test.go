package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/docpilot/metergate/adapters/clock"
	"github.com/docpilot/metergate/adapters/memory"
	"github.com/docpilot/metergate/domain/plan"
	"github.com/docpilot/metergate/ports"
)

// stubBilling is a canned billing provider for portal tests.
type stubBilling struct {
	createdRef string
	portalURL  string
	err        error
	creates    int
}

func (b *stubBilling) Name() string { return "stub" }

func (b *stubBilling) CreateCustomer(ctx context.Context, email, name, customerID string) (string, error) {
	b.creates++
	return b.createdRef, b.err
}

func (b *stubBilling) CreatePortalSession(ctx context.Context, billingRef, returnURL string) (string, error) {
	return b.portalURL, b.err
}

func (b *stubBilling) ParseWebhook(payload []byte, signature string) (string, string, map[string]any, error) {
	return "", "", nil, b.err
}

var _ ports.BillingProvider = (*stubBilling)(nil)

type accountFixture struct {
	svc       *AccountService
	customers *memory.CustomerStore
	quotas    *memory.QuotaStore
	billing   *stubBilling
	clock     *clock.Fake
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()

	fx := &accountFixture{
		customers: memory.NewCustomerStore(),
		quotas:    memory.NewQuotaStore(),
		billing:   &stubBilling{createdRef: "bil_1", portalURL: "https://billing.example.com/session"},
		clock:     clock.NewFake(time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)),
	}
	fx.svc = NewAccountService(AccountDeps{
		Customers:     fx.customers,
		Quotas:        fx.quotas,
		Billing:       fx.billing,
		Plans:         NewPlanTable(plan.Defaults()),
		Clock:         fx.clock,
		DefaultPlanID: "free",
		Logger:        zerolog.Nop(),
	})
	return fx
}

func TestEnsureProvisions(t *testing.T) {
	fx := newAccountFixture(t)
	ctx := context.Background()

	cust, err := fx.svc.Ensure(ctx, "sub_abc", "dev@example.com", "Dev")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if cust.ID != "sub_abc" || cust.PlanID != "free" || cust.Status != "active" {
		t.Errorf("customer = %+v", cust)
	}
	// Anchor day is the day of first contact, fixed forever.
	if cust.AnchorDay != 15 {
		t.Errorf("anchor day = %d, want 15", cust.AnchorDay)
	}

	// A month later the same subject resolves to the same record, anchor
	// unchanged.
	fx.clock.Set(time.Date(2026, 9, 3, 9, 0, 0, 0, time.UTC))
	again, err := fx.svc.Ensure(ctx, "sub_abc", "dev@example.com", "Dev")
	if err != nil {
		t.Fatal(err)
	}
	if again.AnchorDay != 15 {
		t.Errorf("anchor day moved to %d", again.AnchorDay)
	}
}

func TestUsageStatus(t *testing.T) {
	fx := newAccountFixture(t)
	ctx := context.Background()

	cust, err := fx.svc.Ensure(ctx, "sub_abc", "", "")
	if err != nil {
		t.Fatal(err)
	}

	periodStart := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		if _, err := fx.quotas.Admit(ctx, cust.ID, periodStart, 100); err != nil {
			t.Fatal(err)
		}
	}

	status, err := fx.svc.Usage(ctx, cust.ID)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if status.PlanID != "free" || status.MonthlyQuota != 100 {
		t.Errorf("status = %+v", status)
	}
	if status.RequestsThisMonth != 30 || status.QuotaRemaining != 70 {
		t.Errorf("counts = %d used / %d remaining, want 30/70",
			status.RequestsThisMonth, status.QuotaRemaining)
	}
	if !status.PeriodStart.Equal(periodStart) {
		t.Errorf("period start = %v, want %v", status.PeriodStart, periodStart)
	}
}

func TestUsageUnknownCustomer(t *testing.T) {
	fx := newAccountFixture(t)
	if _, err := fx.svc.Usage(context.Background(), "cus_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestProfile(t *testing.T) {
	fx := newAccountFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.Ensure(ctx, "sub_abc", "dev@example.com", "Dev"); err != nil {
		t.Fatal(err)
	}

	p, err := fx.svc.Profile(ctx, "sub_abc")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.PlanName != "Free" || p.MonthlyQuota != 100 || p.MaxKeys != 2 {
		t.Errorf("profile = %+v", p)
	}
	if p.Email != "dev@example.com" || p.AnchorDay != 15 {
		t.Errorf("profile = %+v", p)
	}
}

func TestBillingPortal(t *testing.T) {
	fx := newAccountFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.Ensure(ctx, "sub_abc", "dev@example.com", "Dev"); err != nil {
		t.Fatal(err)
	}

	url, err := fx.svc.BillingPortal(ctx, "sub_abc", "https://app.example.com/billing")
	if err != nil {
		t.Fatalf("BillingPortal: %v", err)
	}
	if url != fx.billing.portalURL {
		t.Errorf("url = %q", url)
	}

	// The billing customer is created once and the ref persisted.
	cust, _ := fx.customers.Get(ctx, "sub_abc")
	if cust.BillingRef != "bil_1" {
		t.Errorf("billing ref = %q, want bil_1", cust.BillingRef)
	}
	if _, err := fx.svc.BillingPortal(ctx, "sub_abc", ""); err != nil {
		t.Fatal(err)
	}
	if fx.billing.creates != 1 {
		t.Errorf("CreateCustomer called %d times, want 1", fx.billing.creates)
	}
}
