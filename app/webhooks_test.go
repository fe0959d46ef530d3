package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/docpilot/metergate/adapters/clock"
	"github.com/docpilot/metergate/adapters/idgen"
	"github.com/docpilot/metergate/adapters/memory"
	"github.com/docpilot/metergate/domain/billing"
	"github.com/docpilot/metergate/domain/plan"
	"github.com/docpilot/metergate/ports"
)

// scriptedProvider returns a canned parsed event regardless of payload.
type scriptedProvider struct {
	eventID   string
	eventType string
	data      map[string]any
	err       error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) CreateCustomer(ctx context.Context, email, name, customerID string) (string, error) {
	return "", nil
}

func (p *scriptedProvider) CreatePortalSession(ctx context.Context, billingRef, returnURL string) (string, error) {
	return "", nil
}

func (p *scriptedProvider) ParseWebhook(payload []byte, signature string) (string, string, map[string]any, error) {
	return p.eventID, p.eventType, p.data, p.err
}

var _ ports.BillingProvider = (*scriptedProvider)(nil)

type webhookFixture struct {
	svc       *WebhookService
	provider  *scriptedProvider
	customers *memory.CustomerStore
	changes   *memory.PlanChangeStore
	clock     *clock.Fake
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	fx := &webhookFixture{
		provider:  &scriptedProvider{},
		customers: memory.NewCustomerStore(),
		changes:   memory.NewPlanChangeStore(),
		clock:     clock.NewFake(now),
	}

	if err := fx.customers.Create(context.Background(), ports.Customer{
		ID:         "cus_1",
		PlanID:     "free",
		AnchorDay:  10,
		BillingRef: "bil_1",
		Status:     "active",
		CreatedAt:  now,
	}); err != nil {
		t.Fatal(err)
	}

	plans := plan.Defaults()
	for i := range plans {
		plans[i].StripePriceID = "price_" + plans[i].ID
	}
	table := NewPlanTable(plans)

	sync := NewPlanSyncService(PlanSyncDeps{
		Customers: fx.customers,
		Changes:   fx.changes,
		Plans:     table,
		Clock:     fx.clock,
		IDGen:     idgen.NewSequential("pc_"),
		Logger:    zerolog.Nop(),
	})
	fx.svc = NewWebhookService(WebhookDeps{
		Provider:      fx.provider,
		Customers:     fx.customers,
		Sync:          sync,
		Plans:         table,
		Clock:         fx.clock,
		DefaultPlanID: "free",
		Logger:        zerolog.Nop(),
	})
	return fx
}

func TestHandleProviderEventSubscription(t *testing.T) {
	fx := newWebhookFixture(t)
	fx.provider.eventID = "evt_1"
	fx.provider.eventType = "customer.subscription.updated"
	fx.provider.data = map[string]any{"customer": "bil_1", "price_id": "price_pro"}

	if err := fx.svc.HandleProviderEvent(context.Background(), nil, "sig"); err != nil {
		t.Fatalf("HandleProviderEvent: %v", err)
	}

	cust, _ := fx.customers.Get(context.Background(), "cus_1")
	if cust.PlanID != "pro" {
		t.Errorf("plan = %q, want pro", cust.PlanID)
	}
}

func TestHandleProviderEventCancellation(t *testing.T) {
	fx := newWebhookFixture(t)
	ctx := context.Background()

	cust, _ := fx.customers.Get(ctx, "cus_1")
	cust.PlanID = "pro"
	fx.customers.Update(ctx, cust)

	fx.provider.eventID = "evt_2"
	fx.provider.eventType = "customer.subscription.deleted"
	fx.provider.data = map[string]any{"customer": "bil_1"}

	if err := fx.svc.HandleProviderEvent(ctx, nil, "sig"); err != nil {
		t.Fatal(err)
	}
	cust, _ = fx.customers.Get(ctx, "cus_1")
	if cust.PlanID != "free" {
		t.Errorf("plan = %q, want free after cancellation", cust.PlanID)
	}
}

func TestHandleProviderEventUnhandledType(t *testing.T) {
	fx := newWebhookFixture(t)
	fx.provider.eventID = "evt_3"
	fx.provider.eventType = "invoice.paid"

	if err := fx.svc.HandleProviderEvent(context.Background(), nil, "sig"); err != nil {
		t.Errorf("unhandled types should ack, got %v", err)
	}
}

func TestHandleProviderEventUnknownPrice(t *testing.T) {
	fx := newWebhookFixture(t)
	fx.provider.eventID = "evt_4"
	fx.provider.eventType = "customer.subscription.created"
	fx.provider.data = map[string]any{"customer": "bil_1", "price_id": "price_ghost"}

	err := fx.svc.HandleProviderEvent(context.Background(), nil, "sig")
	if !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("err = %v, want ErrUnknownPlan", err)
	}
	cust, _ := fx.customers.Get(context.Background(), "cus_1")
	if cust.PlanID != "free" {
		t.Errorf("plan = %q, want free (unchanged)", cust.PlanID)
	}
}

func TestHandleProviderEventUnknownBillingRef(t *testing.T) {
	fx := newWebhookFixture(t)
	fx.provider.eventID = "evt_5"
	fx.provider.eventType = "customer.subscription.updated"
	fx.provider.data = map[string]any{"customer": "bil_ghost", "price_id": "price_pro"}

	err := fx.svc.HandleProviderEvent(context.Background(), nil, "sig")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestHandleNotification(t *testing.T) {
	fx := newWebhookFixture(t)
	ctx := context.Background()

	n := billing.Notification{
		CustomerID:    "cus_1",
		NewPlan:       "starter",
		SourceEventID: "evt_n1",
		Timestamp:     fx.clock.Now(),
	}
	if err := fx.svc.HandleNotification(ctx, n); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}

	cust, _ := fx.customers.Get(ctx, "cus_1")
	if cust.PlanID != "starter" {
		t.Errorf("plan = %q, want starter", cust.PlanID)
	}

	// Redelivery is a no-op.
	if err := fx.svc.HandleNotification(ctx, n); err != nil {
		t.Errorf("redelivery: %v", err)
	}
	changes, _ := fx.changes.ListByCustomer(ctx, "cus_1", 10)
	if len(changes) != 1 {
		t.Errorf("recorded %d changes, want 1", len(changes))
	}
}

func TestHandleNotificationInvalid(t *testing.T) {
	fx := newWebhookFixture(t)
	if err := fx.svc.HandleNotification(context.Background(), billing.Notification{CustomerID: "cus_1"}); err == nil {
		t.Error("incomplete notification should fail")
	}
}
