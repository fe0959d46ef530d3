package usage

import (
	"testing"
	"time"
)

func ts(day, hour int) time.Time {
	return time.Date(2026, 8, day, hour, 0, 0, 0, time.UTC)
}

func TestAggregate(t *testing.T) {
	events := []Event{
		{CustomerID: "cus_1", Outcome: OutcomeAdmitted, LatencyMs: 100},
		{CustomerID: "cus_1", Outcome: OutcomeAdmitted, LatencyMs: 300},
		{CustomerID: "cus_1", Outcome: OutcomeRejectedQuota},
		{CustomerID: "cus_1", Outcome: OutcomeRejectedAuth},
		{CustomerID: "cus_1", Outcome: OutcomeRejectedAuth},
	}

	s := Aggregate(events, ts(1, 0), ts(31, 0))
	if s.CustomerID != "cus_1" {
		t.Errorf("CustomerID = %q", s.CustomerID)
	}
	if s.TotalRequests != 5 {
		t.Errorf("TotalRequests = %d, want 5", s.TotalRequests)
	}
	if s.Admitted != 2 || s.RejectedQuota != 1 || s.RejectedAuth != 2 {
		t.Errorf("breakdown = %d/%d/%d, want 2/1/2", s.Admitted, s.RejectedQuota, s.RejectedAuth)
	}
	if s.AvgLatencyMs != 200 {
		t.Errorf("AvgLatencyMs = %v, want 200 (rejections excluded)", s.AvgLatencyMs)
	}
}

func TestAggregateEmpty(t *testing.T) {
	s := Aggregate(nil, ts(1, 0), ts(2, 0))
	if s.TotalRequests != 0 || s.AvgLatencyMs != 0 {
		t.Errorf("empty aggregate = %+v", s)
	}
}

func TestTopResources(t *testing.T) {
	events := []Event{
		{Resource: "react", Timestamp: ts(1, 1)},
		{Resource: "react", Timestamp: ts(1, 2)},
		{Resource: "react", Timestamp: ts(1, 3)},
		{Resource: "vue", Timestamp: ts(2, 1)},
		{Resource: "vue", Timestamp: ts(2, 2)},
		{Resource: "svelte", Timestamp: ts(3, 1)},
		{Resource: "", Timestamp: ts(3, 2)}, // no resource, ignored
	}

	top := TopResources(events, 2)
	if len(top) != 2 {
		t.Fatalf("got %d rows, want 2", len(top))
	}
	if top[0].Resource != "react" || top[0].Count != 3 {
		t.Errorf("top[0] = %+v", top[0])
	}
	if top[1].Resource != "vue" || top[1].Count != 2 {
		t.Errorf("top[1] = %+v", top[1])
	}
	if top[0].Percent != 50 {
		t.Errorf("react percent = %v, want 50", top[0].Percent)
	}
	if !top[0].LastAccess.Equal(ts(1, 3)) {
		t.Errorf("react last access = %v", top[0].LastAccess)
	}
}

func TestTopResourcesTieBreak(t *testing.T) {
	// Equal counts rank by most recent access.
	events := []Event{
		{Resource: "old", Timestamp: ts(1, 0)},
		{Resource: "new", Timestamp: ts(5, 0)},
	}
	top := TopResources(events, 10)
	if top[0].Resource != "new" {
		t.Errorf("tie should rank most recent first, got %q", top[0].Resource)
	}
}

func TestTopResourcesEdge(t *testing.T) {
	if TopResources(nil, 5) != nil {
		t.Error("nil events should yield nil")
	}
	if TopResources([]Event{{Resource: "x"}}, 0) != nil {
		t.Error("k=0 should yield nil")
	}
	if TopResources([]Event{{Resource: ""}}, 5) != nil {
		t.Error("only empty resources should yield nil")
	}
}

func TestDailyBuckets(t *testing.T) {
	now := time.Date(2026, 8, 7, 15, 30, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: ts(7, 10)},
		{Timestamp: ts(7, 11)},
		{Timestamp: ts(5, 9)},
		{Timestamp: ts(1, 9)},  // before the window
		{Timestamp: ts(20, 9)}, // after the window
	}

	buckets := DailyBuckets(events, 7, now)
	if len(buckets) != 7 {
		t.Fatalf("got %d buckets, want 7", len(buckets))
	}
	if !buckets[0].Day.Equal(ts(1, 0)) {
		t.Errorf("first bucket day = %v, want 2026-08-01", buckets[0].Day)
	}
	if !buckets[6].Day.Equal(ts(7, 0)) {
		t.Errorf("last bucket day = %v, want 2026-08-07", buckets[6].Day)
	}

	var total int64
	for i, b := range buckets {
		if i > 0 && !b.Day.After(buckets[i-1].Day) {
			t.Error("buckets not chronological")
		}
		total += b.Count
	}
	// Aug 1 is inside the 7-day trailing window ending Aug 7.
	if total != 4 {
		t.Errorf("total counted = %d, want 4", total)
	}
	if buckets[6].Count != 2 {
		t.Errorf("today count = %d, want 2", buckets[6].Count)
	}
	if buckets[1].Count != 0 {
		t.Errorf("empty day count = %d, want 0", buckets[1].Count)
	}
}

func TestFillDailyGaps(t *testing.T) {
	now := time.Date(2026, 8, 7, 15, 30, 0, 0, time.UTC)
	counts := map[string]int64{
		"2026-08-07": 5,
		"2026-08-03": 2,
		"2026-07-01": 9, // outside window, ignored
	}

	buckets := FillDailyGaps(counts, 7, now)
	if len(buckets) != 7 {
		t.Fatalf("got %d buckets, want 7", len(buckets))
	}
	if buckets[6].Count != 5 {
		t.Errorf("2026-08-07 count = %d, want 5", buckets[6].Count)
	}
	if buckets[2].Count != 2 {
		t.Errorf("2026-08-03 count = %d, want 2", buckets[2].Count)
	}
	if buckets[0].Count != 0 {
		t.Errorf("gap day count = %d, want 0", buckets[0].Count)
	}
}

func TestPercentile(t *testing.T) {
	latencies := []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	tests := []struct {
		p    float64
		want int64
	}{
		{0.5, 50},
		{0.95, 100},
		{0.99, 100},
		{1.0, 100},
		{0.0, 10},
	}
	for _, tt := range tests {
		if got := Percentile(latencies, tt.p); got != tt.want {
			t.Errorf("Percentile(p=%v) = %d, want %d", tt.p, got, tt.want)
		}
	}

	if got := Percentile(nil, 0.95); got != 0 {
		t.Errorf("empty samples = %d, want 0", got)
	}
	if got := Percentile([]int64{42}, 0.95); got != 42 {
		t.Errorf("single sample = %d, want 42", got)
	}
}

func TestPercentileDoesNotMutate(t *testing.T) {
	latencies := []int64{30, 10, 20}
	Percentile(latencies, 0.5)
	if latencies[0] != 30 || latencies[1] != 10 || latencies[2] != 20 {
		t.Errorf("input mutated: %v", latencies)
	}
}

func TestMean(t *testing.T) {
	if got := Mean([]int64{10, 20, 30}); got != 20 {
		t.Errorf("Mean = %v, want 20", got)
	}
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
}
