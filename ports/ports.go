// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/docpilot/metergate/domain/billing"
	"github.com/docpilot/metergate/domain/key"
	"github.com/docpilot/metergate/domain/quota"
	"github.com/docpilot/metergate/domain/usage"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher provides secret hashing.
type Hasher interface {
	// Hash generates a hash from a plaintext value.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// KeyStore persists API keys.
type KeyStore interface {
	// Get retrieves keys matching a prefix (for validation).
	Get(ctx context.Context, prefix string) ([]key.Key, error)

	// GetByID retrieves a key by id.
	GetByID(ctx context.Context, id string) (key.Key, error)

	// Create stores a new key.
	Create(ctx context.Context, k key.Key) error

	// Revoke marks a key as revoked.
	Revoke(ctx context.Context, id string, at time.Time) error

	// ListByCustomer returns all keys for a customer, newest first.
	ListByCustomer(ctx context.Context, customerID string) ([]key.Key, error)

	// CountActiveByCustomer returns the number of unrevoked keys.
	CountActiveByCustomer(ctx context.Context, customerID string) (int, error)

	// UpdateLastUsed updates the last used timestamp.
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
}

// Customer represents a customer account. The id equals the identity
// provider's subject, so session-authenticated dashboard calls and
// key-authenticated product calls land on the same record.
type Customer struct {
	ID         string
	Email      string
	Name       string
	PlanID     string
	AnchorDay  int    // day-of-month the billing period rolls over; fixed at signup
	BillingRef string // billing processor customer id, empty until first checkout
	Status     string // "active", "suspended"
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CustomerStore persists customer accounts.
type CustomerStore interface {
	// Get retrieves a customer by id.
	Get(ctx context.Context, id string) (Customer, error)

	// GetByBillingRef retrieves a customer by billing processor reference.
	GetByBillingRef(ctx context.Context, ref string) (Customer, error)

	// Create stores a new customer.
	Create(ctx context.Context, c Customer) error

	// Update modifies an existing customer.
	Update(ctx context.Context, c Customer) error

	// List returns customers with pagination.
	List(ctx context.Context, limit, offset int) ([]Customer, error)
}

// QuotaStore maintains the per-(customer, period) admitted counter.
//
// Admit is the single synchronization point of the whole system: the
// check-and-increment must be atomic with respect to concurrent callers
// for the same customer, and two different customers must never block
// each other.
type QuotaStore interface {
	// Admit atomically increments the counter iff it is below ceiling,
	// creating the period row on first use. Ceiling -1 means unlimited
	// (always admitted, still counted).
	Admit(ctx context.Context, customerID string, periodStart time.Time, ceiling int64) (quota.Decision, error)

	// Count returns the admitted count for a period (0 if absent).
	Count(ctx context.Context, customerID string, periodStart time.Time) (int64, error)

	// Sync overwrites the counter from a ledger recount (backfill job).
	Sync(ctx context.Context, customerID string, periodStart time.Time, count int64) error
}

// UsageStore persists the append-only usage ledger and serves the
// aggregation queries the analytics read path needs.
type UsageStore interface {
	// RecordBatch appends usage events.
	RecordBatch(ctx context.Context, events []usage.Event) error

	// Summary returns aggregate counts for a window.
	Summary(ctx context.Context, customerID string, start, end time.Time) (usage.Summary, error)

	// CountAdmittedByKey returns per-key admitted counts for a window.
	CountAdmittedByKey(ctx context.Context, customerID string, start, end time.Time) (map[string]int64, error)

	// TopResources ranks resources by event count in a window.
	TopResources(ctx context.Context, customerID string, start, end time.Time, limit int) ([]usage.ResourceCount, error)

	// DailyCounts returns admitted counts keyed by "2006-01-02" (UTC).
	DailyCounts(ctx context.Context, customerID string, start, end time.Time) (map[string]int64, error)

	// AdmittedLatencies returns latency samples of admitted events.
	AdmittedLatencies(ctx context.Context, customerID string, start, end time.Time) ([]int64, error)

	// RecentEvents returns the newest events for a customer.
	RecentEvents(ctx context.Context, customerID string, limit int) ([]usage.Event, error)
}

// PlanChangeStore persists the plan-change audit trail.
type PlanChangeStore interface {
	// Create stores a change record. Returns ErrDuplicateEvent when the
	// source event id was already recorded.
	Create(ctx context.Context, pc billing.PlanChange) error

	// GetBySourceEvent retrieves the record for a processor event id.
	GetBySourceEvent(ctx context.Context, sourceEventID string) (billing.PlanChange, error)

	// ListByCustomer returns a customer's change history, newest first.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]billing.PlanChange, error)
}

// -----------------------------------------------------------------------------
// Event Ports
// -----------------------------------------------------------------------------

// UsageRecorder accepts usage events for async processing. Record must
// never block the admission path; durability is best-effort and bounded
// by the recorder's buffer.
type UsageRecorder interface {
	// Record queues a usage event for processing.
	Record(event usage.Event)

	// Flush forces immediate processing of queued events.
	Flush(ctx context.Context) error

	// Close stops the recorder and flushes remaining events.
	Close() error
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// BillingProvider interfaces with the external billing processor.
type BillingProvider interface {
	// Name returns the provider name (e.g., "stripe").
	Name() string

	// CreateCustomer creates a customer in the billing system.
	CreateCustomer(ctx context.Context, email, name, customerID string) (billingRef string, err error)

	// CreatePortalSession creates a billing-portal session the dashboard
	// can redirect to.
	CreatePortalSession(ctx context.Context, billingRef, returnURL string) (portalURL string, err error)

	// ParseWebhook verifies and parses an incoming webhook.
	// Returns the provider event id, event type and payload.
	ParseWebhook(payload []byte, signature string) (eventID, eventType string, data map[string]any, err error)
}

// DocsUpstream is the protected product feature (documentation retrieval).
// It is called only after Admit returns an admitted decision.
type DocsUpstream interface {
	// Search forwards a query and returns the raw response body,
	// status code and upstream latency.
	Search(ctx context.Context, query, library string) (body []byte, status int, latencyMs int64, err error)
}
