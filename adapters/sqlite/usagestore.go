package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/docpilot/metergate/domain/usage"
	"github.com/docpilot/metergate/ports"
)

// UsageStore implements ports.UsageStore using SQLite. Aggregations are
// pushed into SQL; the in-memory adapter mirrors them with the pure
// functions in domain/usage, which is what the aggregation tests pin
// both against.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new SQLite usage store.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// RecordBatch appends usage events in one transaction.
func (s *UsageStore) RecordBatch(ctx context.Context, events []usage.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_events (id, key_id, customer_id, resource, latency_ms, outcome, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.ID, e.KeyID, e.CustomerID, e.Resource, e.LatencyMs, string(e.Outcome), e.Timestamp.UTC()); err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// Summary returns aggregate counts for a window.
func (s *UsageStore) Summary(ctx context.Context, customerID string, start, end time.Time) (usage.Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN outcome = 'admitted' THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome = 'rejected_quota' THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome = 'rejected_auth' THEN 1 ELSE 0 END),
			AVG(CASE WHEN outcome = 'admitted' THEN latency_ms END)
		FROM usage_events
		WHERE customer_id = ? AND ts >= ? AND ts < ?
	`, customerID, start.UTC(), end.UTC())

	summary := usage.Summary{CustomerID: customerID, WindowStart: start, WindowEnd: end}
	var admitted, rejQuota, rejAuth sql.NullInt64
	var avgLatency sql.NullFloat64
	if err := row.Scan(&summary.TotalRequests, &admitted, &rejQuota, &rejAuth, &avgLatency); err != nil {
		return usage.Summary{}, fmt.Errorf("scan summary: %w", err)
	}
	summary.Admitted = admitted.Int64
	summary.RejectedQuota = rejQuota.Int64
	summary.RejectedAuth = rejAuth.Int64
	summary.AvgLatencyMs = avgLatency.Float64
	return summary, nil
}

// CountAdmittedByKey returns per-key admitted counts for a window.
func (s *UsageStore) CountAdmittedByKey(ctx context.Context, customerID string, start, end time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key_id, COUNT(*)
		FROM usage_events
		WHERE customer_id = ? AND outcome = 'admitted' AND key_id != '' AND ts >= ? AND ts < ?
		GROUP BY key_id
	`, customerID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query key counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var keyID string
		var count int64
		if err := rows.Scan(&keyID, &count); err != nil {
			return nil, fmt.Errorf("scan key count: %w", err)
		}
		counts[keyID] = count
	}
	return counts, rows.Err()
}

// TopResources ranks resources by event count in a window.
func (s *UsageStore) TopResources(ctx context.Context, customerID string, start, end time.Time, limit int) ([]usage.ResourceCount, error) {
	if limit <= 0 {
		return nil, nil
	}

	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM usage_events
		WHERE customer_id = ? AND resource != '' AND ts >= ? AND ts < ?
	`, customerID, start.UTC(), end.UTC()).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count resources: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT resource, COUNT(*) AS cnt, MAX(ts) AS last_access
		FROM usage_events
		WHERE customer_id = ? AND resource != '' AND ts >= ? AND ts < ?
		GROUP BY resource
		ORDER BY cnt DESC, last_access DESC
		LIMIT ?
	`, customerID, start.UTC(), end.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query top resources: %w", err)
	}
	defer rows.Close()

	var result []usage.ResourceCount
	for rows.Next() {
		var rc usage.ResourceCount
		if err := rows.Scan(&rc.Resource, &rc.Count, &rc.LastAccess); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		rc.Percent = float64(rc.Count) / float64(total) * 100
		result = append(result, rc)
	}
	return result, rows.Err()
}

// DailyCounts returns admitted counts keyed by "2006-01-02" (UTC).
func (s *UsageStore) DailyCounts(ctx context.Context, customerID string, start, end time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%d', ts), COUNT(*)
		FROM usage_events
		WHERE customer_id = ? AND outcome = 'admitted' AND ts >= ? AND ts < ?
		GROUP BY 1
	`, customerID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var day string
		var count int64
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		counts[day] = count
	}
	return counts, rows.Err()
}

// AdmittedLatencies returns latency samples of admitted events.
func (s *UsageStore) AdmittedLatencies(ctx context.Context, customerID string, start, end time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT latency_ms FROM usage_events
		WHERE customer_id = ? AND outcome = 'admitted' AND ts >= ? AND ts < ?
	`, customerID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query latencies: %w", err)
	}
	defer rows.Close()

	var latencies []int64
	for rows.Next() {
		var l int64
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("scan latency: %w", err)
		}
		latencies = append(latencies, l)
	}
	return latencies, rows.Err()
}

// RecentEvents returns the newest events for a customer.
func (s *UsageStore) RecentEvents(ctx context.Context, customerID string, limit int) ([]usage.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key_id, customer_id, resource, latency_ms, outcome, ts
		FROM usage_events
		WHERE customer_id = ?
		ORDER BY ts DESC
		LIMIT ?
	`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []usage.Event
	for rows.Next() {
		var e usage.Event
		var outcome string
		if err := rows.Scan(&e.ID, &e.KeyID, &e.CustomerID, &e.Resource, &e.LatencyMs, &outcome, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Outcome = usage.Outcome(outcome)
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteBefore removes events older than cutoff (retention job).
func (s *UsageStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM usage_events WHERE ts < ?
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return res.RowsAffected()
}

var _ ports.UsageStore = (*UsageStore)(nil)
