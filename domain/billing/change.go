// Package billing provides value types for plan reconciliation with the
// external billing processor.
package billing

import "time"

// PlanChange is the audit record of one applied plan change (value type).
// SourceEventID is the processor's event id and doubles as the idempotency
// key: at most one record ever exists per source event.
type PlanChange struct {
	ID            string
	CustomerID    string
	OldPlanID     string
	NewPlanID     string
	SourceEventID string
	EffectiveAt   time.Time
	CreatedAt     time.Time
}

// Notification is the wire shape the billing processor delivers
// (at-least-once, unordered).
type Notification struct {
	CustomerID    string    `json:"customerId"`
	NewPlan       string    `json:"newPlan"`
	SourceEventID string    `json:"sourceEventId"`
	Timestamp     time.Time `json:"timestamp"`
}

// Valid reports whether a notification carries the minimum fields needed
// to be applied.
func (n Notification) Valid() bool {
	return n.CustomerID != "" && n.NewPlan != "" && n.SourceEventID != ""
}
