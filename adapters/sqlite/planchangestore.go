package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/docpilot/metergate/domain/billing"
	"github.com/docpilot/metergate/ports"
)

// PlanChangeStore implements ports.PlanChangeStore using SQLite.
// The unique index on source_event_id is the idempotency backstop for
// concurrently redelivered billing events.
type PlanChangeStore struct {
	db *DB
}

// NewPlanChangeStore creates a new SQLite plan change store.
func NewPlanChangeStore(db *DB) *PlanChangeStore {
	return &PlanChangeStore{db: db}
}

// Create stores a change record.
func (s *PlanChangeStore) Create(ctx context.Context, pc billing.PlanChange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plan_changes (id, customer_id, old_plan_id, new_plan_id, source_event_id, effective_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, pc.ID, pc.CustomerID, pc.OldPlanID, pc.NewPlanID, pc.SourceEventID, pc.EffectiveAt.UTC(), pc.CreatedAt.UTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ports.ErrDuplicateEvent
		}
		return fmt.Errorf("insert plan change: %w", err)
	}
	return nil
}

// GetBySourceEvent retrieves the record for a processor event id.
func (s *PlanChangeStore) GetBySourceEvent(ctx context.Context, sourceEventID string) (billing.PlanChange, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, old_plan_id, new_plan_id, source_event_id, effective_at, created_at
		FROM plan_changes
		WHERE source_event_id = ?
	`, sourceEventID)

	var pc billing.PlanChange
	err := row.Scan(&pc.ID, &pc.CustomerID, &pc.OldPlanID, &pc.NewPlanID, &pc.SourceEventID, &pc.EffectiveAt, &pc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.PlanChange{}, ports.ErrNotFound
	}
	if err != nil {
		return billing.PlanChange{}, fmt.Errorf("scan plan change: %w", err)
	}
	return pc, nil
}

// ListByCustomer returns a customer's change history, newest first.
func (s *PlanChangeStore) ListByCustomer(ctx context.Context, customerID string, limit int) ([]billing.PlanChange, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, old_plan_id, new_plan_id, source_event_id, effective_at, created_at
		FROM plan_changes
		WHERE customer_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query plan changes: %w", err)
	}
	defer rows.Close()

	var changes []billing.PlanChange
	for rows.Next() {
		var pc billing.PlanChange
		if err := rows.Scan(&pc.ID, &pc.CustomerID, &pc.OldPlanID, &pc.NewPlanID, &pc.SourceEventID, &pc.EffectiveAt, &pc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan plan change: %w", err)
		}
		changes = append(changes, pc)
	}
	return changes, rows.Err()
}

var _ ports.PlanChangeStore = (*PlanChangeStore)(nil)
