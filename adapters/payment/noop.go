package payment

import (
	"context"
	"errors"

	"github.com/docpilot/metergate/ports"
)

// ErrBillingDisabled is returned when billing is not configured.
var ErrBillingDisabled = errors.New("billing is not configured")

// Noop is a billing provider for deployments without billing. Every
// customer stays on their current plan and the portal is unavailable.
type Noop struct{}

// NewNoop creates a new no-op billing provider.
func NewNoop() *Noop {
	return &Noop{}
}

// Name returns the provider name.
func (Noop) Name() string {
	return "none"
}

// CreateCustomer returns an error as billing is disabled.
func (Noop) CreateCustomer(ctx context.Context, email, name, customerID string) (string, error) {
	return "", ErrBillingDisabled
}

// CreatePortalSession returns an error as billing is disabled.
func (Noop) CreatePortalSession(ctx context.Context, billingRef, returnURL string) (string, error) {
	return "", ErrBillingDisabled
}

// ParseWebhook returns an error as billing is disabled.
func (Noop) ParseWebhook(payload []byte, signature string) (string, string, map[string]any, error) {
	return "", "", nil, ErrBillingDisabled
}

var _ ports.BillingProvider = Noop{}
