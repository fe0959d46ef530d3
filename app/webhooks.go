package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/docpilot/metergate/domain/billing"
	"github.com/docpilot/metergate/ports"
)

// WebhookService turns billing-processor webhooks into plan changes.
// Verification and payload decoding live in the provider adapter; this
// service only routes verified events to PlanSyncService, which owns
// the idempotency guarantee.
type WebhookService struct {
	provider  ports.BillingProvider
	customers ports.CustomerStore
	sync      *PlanSyncService
	plans     *PlanTable
	clock     ports.Clock
	log       zerolog.Logger

	defaultPlanID string
}

// WebhookDeps contains dependencies for WebhookService.
type WebhookDeps struct {
	Provider      ports.BillingProvider
	Customers     ports.CustomerStore
	Sync          *PlanSyncService
	Plans         *PlanTable
	Clock         ports.Clock
	DefaultPlanID string
	Logger        zerolog.Logger
}

// NewWebhookService creates a new webhook service.
func NewWebhookService(deps WebhookDeps) *WebhookService {
	defaultPlan := deps.DefaultPlanID
	if defaultPlan == "" {
		defaultPlan = "free"
	}
	return &WebhookService{
		provider:      deps.Provider,
		customers:     deps.Customers,
		sync:          deps.Sync,
		plans:         deps.Plans,
		clock:         deps.Clock,
		defaultPlanID: defaultPlan,
		log:           deps.Logger,
	}
}

// HandleProviderEvent processes a raw webhook from the billing provider.
// Unhandled event types are acknowledged and dropped; the provider
// retries on error returns, so only transient failures should error.
func (s *WebhookService) HandleProviderEvent(ctx context.Context, payload []byte, signature string) error {
	eventID, eventType, data, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		return fmt.Errorf("parse webhook: %w", err)
	}

	switch eventType {
	case "customer.subscription.created", "customer.subscription.updated":
		return s.applySubscription(ctx, eventID, data)
	case "customer.subscription.deleted":
		return s.applyCancellation(ctx, eventID, data)
	default:
		s.log.Debug().
			Str("event_id", eventID).
			Str("event_type", eventType).
			Msg("ignoring webhook event type")
		return nil
	}
}

// HandleNotification processes a generic plan-change notification, the
// processor-agnostic shape used by non-Stripe billing integrations and
// internal tooling.
func (s *WebhookService) HandleNotification(ctx context.Context, n billing.Notification) error {
	if !n.Valid() {
		return fmt.Errorf("plan change notification missing required fields")
	}
	effectiveAt := n.Timestamp
	if effectiveAt.IsZero() {
		effectiveAt = s.clock.Now()
	}
	return s.sync.Apply(ctx, n.CustomerID, n.NewPlan, n.SourceEventID, effectiveAt)
}

func (s *WebhookService) applySubscription(ctx context.Context, eventID string, data map[string]any) error {
	billingRef, _ := data["customer"].(string)
	priceID, _ := data["price_id"].(string)
	if billingRef == "" || priceID == "" {
		return fmt.Errorf("subscription event %s missing customer or price", eventID)
	}

	cust, err := s.customerByRef(ctx, billingRef, eventID)
	if err != nil {
		return err
	}

	planID, ok := s.planForPrice(priceID)
	if !ok {
		s.log.Error().
			Str("event_id", eventID).
			Str("price_id", priceID).
			Msg("subscription price maps to no known plan, customer left unchanged")
		return fmt.Errorf("%w: price %s", ErrUnknownPlan, priceID)
	}

	return s.sync.Apply(ctx, cust.ID, planID, eventID, s.clock.Now())
}

func (s *WebhookService) applyCancellation(ctx context.Context, eventID string, data map[string]any) error {
	billingRef, _ := data["customer"].(string)
	if billingRef == "" {
		return fmt.Errorf("cancellation event %s missing customer", eventID)
	}

	cust, err := s.customerByRef(ctx, billingRef, eventID)
	if err != nil {
		return err
	}
	return s.sync.Apply(ctx, cust.ID, s.defaultPlanID, eventID, s.clock.Now())
}

func (s *WebhookService) customerByRef(ctx context.Context, billingRef, eventID string) (ports.Customer, error) {
	cust, err := s.customers.GetByBillingRef(ctx, billingRef)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			// A webhook for a billing customer we never created. Ack it;
			// retrying will not make the customer appear.
			s.log.Warn().
				Str("event_id", eventID).
				Str("billing_ref", billingRef).
				Msg("webhook for unknown billing customer, dropping")
			return ports.Customer{}, fmt.Errorf("billing ref %s: %w", billingRef, ErrNotFound)
		}
		return ports.Customer{}, fmt.Errorf("lookup billing ref: %w", err)
	}
	return cust, nil
}

func (s *WebhookService) planForPrice(priceID string) (string, bool) {
	for _, p := range s.plans.Get() {
		if p.StripePriceID == priceID {
			return p.ID, true
		}
	}
	return "", false
}
