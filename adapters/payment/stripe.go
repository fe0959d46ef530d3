// Package payment provides billing provider adapters.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	portalsession "github.com/stripe/stripe-go/v76/billingportal/session"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/docpilot/metergate/ports"
)

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// Stripe implements ports.BillingProvider for Stripe.
type Stripe struct {
	config StripeConfig
}

// NewStripe creates a new Stripe billing provider.
func NewStripe(config StripeConfig) *Stripe {
	stripe.Key = config.SecretKey
	return &Stripe{config: config}
}

// Name returns the provider name.
func (p *Stripe) Name() string {
	return "stripe"
}

// CreateCustomer creates a customer in Stripe. The metergate customer id
// rides along as metadata so records can be matched from either side.
func (p *Stripe) CreateCustomer(ctx context.Context, email, name, customerID string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.AddMetadata("customer_id", customerID)

	c, err := customer.New(params)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// CreatePortalSession creates a customer portal session.
func (p *Stripe) CreatePortalSession(ctx context.Context, billingRef, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(billingRef),
		ReturnURL: stripe.String(returnURL),
	}

	s, err := portalsession.New(params)
	if err != nil {
		return "", err
	}
	return s.URL, nil
}

// ParseWebhook verifies the signature and normalizes the event payload.
// Subscription events expose "customer", "price_id" and "status"; other
// event types carry their raw object fields.
func (p *Stripe) ParseWebhook(payload []byte, signature string) (string, string, map[string]any, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.config.WebhookSecret)
	if err != nil {
		return "", "", nil, fmt.Errorf("verify webhook: %w", err)
	}

	eventType := string(event.Type)
	if strings.HasPrefix(eventType, "customer.subscription.") {
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return "", "", nil, fmt.Errorf("decode subscription: %w", err)
		}
		data := map[string]any{
			"status": string(sub.Status),
		}
		if sub.Customer != nil {
			data["customer"] = sub.Customer.ID
		}
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			data["price_id"] = sub.Items.Data[0].Price.ID
		}
		return event.ID, eventType, data, nil
	}

	var data map[string]any
	if err := json.Unmarshal(event.Data.Raw, &data); err != nil {
		return "", "", nil, fmt.Errorf("decode event: %w", err)
	}
	return event.ID, eventType, data, nil
}

var _ ports.BillingProvider = (*Stripe)(nil)
