package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/docpilot/metergate/domain/billing"
	"github.com/docpilot/metergate/domain/plan"
	"github.com/docpilot/metergate/ports"
)

// PlanSyncService applies plan-change notifications from the billing
// processor to customer records. Notifications arrive at-least-once and
// unordered, so every apply is keyed by the processor's event id.
type PlanSyncService struct {
	customers ports.CustomerStore
	changes   ports.PlanChangeStore
	plans     *PlanTable
	clock     ports.Clock
	idGen     ports.IDGenerator
	log       zerolog.Logger
}

// PlanSyncDeps contains dependencies for PlanSyncService.
type PlanSyncDeps struct {
	Customers ports.CustomerStore
	Changes   ports.PlanChangeStore
	Plans     *PlanTable
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    zerolog.Logger
}

// NewPlanSyncService creates a new plan sync service.
func NewPlanSyncService(deps PlanSyncDeps) *PlanSyncService {
	return &PlanSyncService{
		customers: deps.Customers,
		changes:   deps.Changes,
		plans:     deps.Plans,
		clock:     deps.Clock,
		idGen:     deps.IDGen,
		log:       deps.Logger,
	}
}

// Apply applies one plan-change notification.
//
// Redelivered events are no-ops: the change record's source event id is
// unique, checked up front and enforced again by the store on create, so
// a concurrent redelivery cannot apply twice. The running admitted count
// for the current period is untouched; only the ceiling changes.
//
// ErrUnknownPlan leaves the customer on their current plan: a bad
// notification must never downgrade anyone to a guessed default.
func (s *PlanSyncService) Apply(ctx context.Context, customerID, newPlanID, sourceEventID string, effectiveAt time.Time) error {
	if sourceEventID == "" {
		return fmt.Errorf("plan sync: missing source event id")
	}

	// 1. Redelivery check (I/O)
	if _, err := s.changes.GetBySourceEvent(ctx, sourceEventID); err == nil {
		s.log.Debug().
			Str("source_event_id", sourceEventID).
			Msg("plan change already applied, skipping")
		return nil
	} else if !errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("check source event: %w", err)
	}

	// 2. Validate the target plan before touching the customer (PURE)
	if _, ok := plan.Find(s.plans.Get(), newPlanID); !ok {
		s.log.Error().
			Str("customer_id", customerID).
			Str("plan_id", newPlanID).
			Str("source_event_id", sourceEventID).
			Msg("plan change names unknown plan, customer left unchanged")
		return fmt.Errorf("%w: %s", ErrUnknownPlan, newPlanID)
	}

	// 3. Load and update the customer (I/O)
	cust, err := s.customers.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return fmt.Errorf("plan sync customer %s: %w", customerID, ErrNotFound)
		}
		return fmt.Errorf("get customer: %w", err)
	}

	now := s.clock.Now()
	oldPlanID := cust.PlanID
	cust.PlanID = newPlanID
	cust.UpdatedAt = now
	if err := s.customers.Update(ctx, cust); err != nil {
		return fmt.Errorf("update customer: %w", err)
	}

	// 4. Record the change (I/O). A duplicate here means a concurrent
	// redelivery won the race after our check in step 1; both deliveries
	// wrote the same plan, so this one just stands down.
	rec := billing.PlanChange{
		ID:            s.idGen.New(),
		CustomerID:    customerID,
		OldPlanID:     oldPlanID,
		NewPlanID:     newPlanID,
		SourceEventID: sourceEventID,
		EffectiveAt:   effectiveAt,
		CreatedAt:     now,
	}
	if err := s.changes.Create(ctx, rec); err != nil {
		if errors.Is(err, ports.ErrDuplicateEvent) {
			return nil
		}
		return fmt.Errorf("record plan change: %w", err)
	}

	s.log.Info().
		Str("customer_id", customerID).
		Str("old_plan", oldPlanID).
		Str("new_plan", newPlanID).
		Str("source_event_id", sourceEventID).
		Msg("plan change applied")
	return nil
}

// History returns a customer's plan-change audit trail, newest first.
func (s *PlanSyncService) History(ctx context.Context, customerID string, limit int) ([]billing.PlanChange, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.changes.ListByCustomer(ctx, customerID, limit)
}
