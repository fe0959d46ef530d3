package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/docpilot/metergate/domain/quota"
	"github.com/docpilot/metergate/ports"
)

// QuotaStore implements ports.QuotaStore using SQLite, so quota state
// survives restarts.
//
// The check-and-increment is a single conditional UPDATE: SQLite
// serializes writers, so the WHERE clause and the increment are one
// atomic step and the counter can never pass the ceiling no matter how
// many requests race.
type QuotaStore struct {
	db *DB
}

// NewQuotaStore creates a new SQLite quota store.
func NewQuotaStore(db *DB) *QuotaStore {
	return &QuotaStore{db: db}
}

// Admit atomically increments the counter iff it is below ceiling.
func (s *QuotaStore) Admit(ctx context.Context, customerID string, periodStart time.Time, ceiling int64) (quota.Decision, error) {
	now := time.Now().UTC()
	periodStart = periodStart.UTC()

	// Ensure the period row exists. Races here are harmless: the loser
	// hits the primary key and moves on.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_counters (customer_id, period_start, admitted, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(customer_id, period_start) DO NOTHING
	`, customerID, periodStart, now)
	if err != nil {
		return quota.Decision{}, fmt.Errorf("init counter: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE quota_counters
		SET admitted = admitted + 1, updated_at = ?
		WHERE customer_id = ? AND period_start = ? AND (? < 0 OR admitted < ?)
	`, now, customerID, periodStart, ceiling, ceiling)
	if err != nil {
		return quota.Decision{}, fmt.Errorf("increment counter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return quota.Decision{}, fmt.Errorf("rows affected: %w", err)
	}

	count, err := s.Count(ctx, customerID, periodStart)
	if err != nil {
		return quota.Decision{}, err
	}
	return quota.Decision{Admitted: n == 1, Count: count, Ceiling: ceiling}, nil
}

// Count returns the admitted count for a period (0 if absent).
func (s *QuotaStore) Count(ctx context.Context, customerID string, periodStart time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(
			(SELECT admitted FROM quota_counters WHERE customer_id = ? AND period_start = ?), 0)
	`, customerID, periodStart.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return count, nil
}

// Sync overwrites the counter from a ledger recount.
func (s *QuotaStore) Sync(ctx context.Context, customerID string, periodStart time.Time, count int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_counters (customer_id, period_start, admitted, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(customer_id, period_start) DO UPDATE SET
			admitted = excluded.admitted,
			updated_at = excluded.updated_at
	`, customerID, periodStart.UTC(), count, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sync counter: %w", err)
	}
	return nil
}

// CleanupOldPeriods removes counters for periods older than cutoff.
// Called periodically so the table does not grow without bound.
func (s *QuotaStore) CleanupOldPeriods(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM quota_counters WHERE period_start < ?
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup counters: %w", err)
	}
	return res.RowsAffected()
}

var _ ports.QuotaStore = (*QuotaStore)(nil)
