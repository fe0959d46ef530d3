package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/docpilot/metergate/domain/usage"
	"github.com/docpilot/metergate/ports"
)

// UsageStore is an in-memory implementation of ports.UsageStore.
// Aggregations run over the full event slice through the pure functions
// in domain/usage; fine for tests and dev, unfit for real volumes.
type UsageStore struct {
	mu     sync.RWMutex
	events []usage.Event
}

// NewUsageStore creates a new in-memory usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{}
}

// RecordBatch appends usage events.
func (s *UsageStore) RecordBatch(ctx context.Context, events []usage.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, events...)
	return nil
}

// Summary returns aggregate counts for a window.
func (s *UsageStore) Summary(ctx context.Context, customerID string, start, end time.Time) (usage.Summary, error) {
	filtered := s.window(customerID, start, end)
	summary := usage.Aggregate(filtered, start, end)
	summary.CustomerID = customerID
	return summary, nil
}

// CountAdmittedByKey returns per-key admitted counts for a window.
func (s *UsageStore) CountAdmittedByKey(ctx context.Context, customerID string, start, end time.Time) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, e := range s.window(customerID, start, end) {
		if e.IsAdmitted() && e.KeyID != "" {
			counts[e.KeyID]++
		}
	}
	return counts, nil
}

// TopResources ranks resources by event count in a window.
func (s *UsageStore) TopResources(ctx context.Context, customerID string, start, end time.Time, limit int) ([]usage.ResourceCount, error) {
	return usage.TopResources(s.window(customerID, start, end), limit), nil
}

// DailyCounts returns admitted counts keyed by "2006-01-02" (UTC).
func (s *UsageStore) DailyCounts(ctx context.Context, customerID string, start, end time.Time) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, e := range s.window(customerID, start, end) {
		if e.IsAdmitted() {
			counts[e.Timestamp.UTC().Format("2006-01-02")]++
		}
	}
	return counts, nil
}

// AdmittedLatencies returns latency samples of admitted events.
func (s *UsageStore) AdmittedLatencies(ctx context.Context, customerID string, start, end time.Time) ([]int64, error) {
	var latencies []int64
	for _, e := range s.window(customerID, start, end) {
		if e.IsAdmitted() {
			latencies = append(latencies, e.LatencyMs)
		}
	}
	return latencies, nil
}

// RecentEvents returns the newest events for a customer.
func (s *UsageStore) RecentEvents(ctx context.Context, customerID string, limit int) ([]usage.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []usage.Event
	for _, e := range s.events {
		if e.CustomerID == customerID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Len returns the total number of stored events (for testing).
func (s *UsageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// window returns a copy of the customer's events inside [start, end).
func (s *UsageStore) window(customerID string, start, end time.Time) []usage.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []usage.Event
	for _, e := range s.events {
		if e.CustomerID != customerID {
			continue
		}
		if e.Timestamp.Before(start) || !e.Timestamp.Before(end) {
			continue
		}
		result = append(result, e)
	}
	return result
}

var _ ports.UsageStore = (*UsageStore)(nil)
