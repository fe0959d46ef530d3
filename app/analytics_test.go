package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/docpilot/metergate/adapters/clock"
	"github.com/docpilot/metergate/adapters/memory"
	"github.com/docpilot/metergate/domain/usage"
)

func newAnalyticsFixture(t *testing.T, ttl time.Duration) (*AnalyticsService, *memory.UsageStore, *clock.Fake) {
	t.Helper()
	store := memory.NewUsageStore()
	clk := clock.NewFake(time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	svc := NewAnalyticsService(AnalyticsDeps{
		Usage:  store,
		Clock:  clk,
		TTL:    ttl,
		Logger: zerolog.Nop(),
	})
	return svc, store, clk
}

func seedEvents(t *testing.T, store *memory.UsageStore, now time.Time) {
	t.Helper()
	events := []usage.Event{
		{ID: "e1", CustomerID: "cus_1", Resource: "react", LatencyMs: 100, Outcome: usage.OutcomeAdmitted, Timestamp: now.Add(-time.Hour)},
		{ID: "e2", CustomerID: "cus_1", Resource: "react", LatencyMs: 300, Outcome: usage.OutcomeAdmitted, Timestamp: now.Add(-2 * time.Hour)},
		{ID: "e3", CustomerID: "cus_1", Resource: "vue", LatencyMs: 200, Outcome: usage.OutcomeAdmitted, Timestamp: now.AddDate(0, 0, -2)},
		{ID: "e4", CustomerID: "cus_1", Resource: "vue", Outcome: usage.OutcomeRejectedQuota, Timestamp: now.Add(-time.Minute)},
		{ID: "e5", CustomerID: "cus_1", Outcome: usage.OutcomeRejectedAuth, Timestamp: now.Add(-time.Minute)},
		// Other customer, excluded.
		{ID: "e6", CustomerID: "cus_2", Resource: "react", Outcome: usage.OutcomeAdmitted, Timestamp: now.Add(-time.Minute)},
		// Outside the 7-day window.
		{ID: "e7", CustomerID: "cus_1", Resource: "react", Outcome: usage.OutcomeAdmitted, Timestamp: now.AddDate(0, 0, -20)},
	}
	if err := store.RecordBatch(context.Background(), events); err != nil {
		t.Fatal(err)
	}
}

func TestAnalyticsReport(t *testing.T) {
	svc, store, clk := newAnalyticsFixture(t, 0)
	seedEvents(t, store, clk.Now())

	report, err := svc.Report(context.Background(), "cus_1", 7)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}

	ov := report.Overview
	if ov.WindowDays != 7 {
		t.Errorf("WindowDays = %d", ov.WindowDays)
	}
	if ov.TotalRequests != 5 || ov.Admitted != 3 || ov.RejectedQuota != 1 || ov.RejectedAuth != 1 {
		t.Errorf("overview = %+v", ov)
	}

	if len(report.TopResources) != 2 {
		t.Fatalf("top resources = %+v", report.TopResources)
	}
	if report.TopResources[0].Resource != "react" || report.TopResources[0].Count != 3 {
		t.Errorf("top[0] = %+v", report.TopResources[0])
	}

	if len(report.DailyUsage) != 7 {
		t.Fatalf("daily buckets = %d, want 7", len(report.DailyUsage))
	}
	var daily int64
	for _, b := range report.DailyUsage {
		daily += b.Count
	}
	if daily != ov.Admitted {
		t.Errorf("daily sum = %d, want %d (admitted)", daily, ov.Admitted)
	}

	if report.Performance.AverageMs != 200 {
		t.Errorf("average = %v, want 200", report.Performance.AverageMs)
	}
	if report.Performance.P95Ms != 300 || report.Performance.P99Ms != 300 {
		t.Errorf("percentiles = %+v", report.Performance)
	}
}

func TestAnalyticsReportEmpty(t *testing.T) {
	svc, _, _ := newAnalyticsFixture(t, 0)

	report, err := svc.Report(context.Background(), "cus_none", 7)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Overview.TotalRequests != 0 {
		t.Errorf("overview = %+v", report.Overview)
	}
	if len(report.DailyUsage) != 7 {
		t.Errorf("empty report still returns %d buckets, want 7", len(report.DailyUsage))
	}
	if report.Performance.P95Ms != 0 || report.Performance.AverageMs != 0 {
		t.Errorf("performance = %+v", report.Performance)
	}
}

func TestAnalyticsWindowClamp(t *testing.T) {
	svc, _, _ := newAnalyticsFixture(t, 0)
	ctx := context.Background()

	for _, days := range []int{0, -5, 91, 1000} {
		report, err := svc.Report(ctx, "cus_1", days)
		if err != nil {
			t.Fatal(err)
		}
		if report.Overview.WindowDays != 7 {
			t.Errorf("days=%d clamped to %d, want 7", days, report.Overview.WindowDays)
		}
	}

	report, err := svc.Report(ctx, "cus_1", 90)
	if err != nil {
		t.Fatal(err)
	}
	if report.Overview.WindowDays != 90 {
		t.Errorf("90 days should be allowed, got %d", report.Overview.WindowDays)
	}
}

func TestAnalyticsCache(t *testing.T) {
	svc, store, clk := newAnalyticsFixture(t, 30*time.Second)
	ctx := context.Background()
	seedEvents(t, store, clk.Now())

	first, err := svc.Report(ctx, "cus_1", 7)
	if err != nil {
		t.Fatal(err)
	}

	// New events inside the TTL are not visible.
	store.RecordBatch(ctx, []usage.Event{
		{ID: "late", CustomerID: "cus_1", Resource: "react", Outcome: usage.OutcomeAdmitted, Timestamp: clk.Now()},
	})
	cached, err := svc.Report(ctx, "cus_1", 7)
	if err != nil {
		t.Fatal(err)
	}
	if cached.Overview.TotalRequests != first.Overview.TotalRequests {
		t.Errorf("cached report changed: %d -> %d",
			first.Overview.TotalRequests, cached.Overview.TotalRequests)
	}

	// Past the TTL the report rebuilds.
	clk.Advance(time.Minute)
	fresh, err := svc.Report(ctx, "cus_1", 7)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Overview.TotalRequests != first.Overview.TotalRequests+1 {
		t.Errorf("fresh total = %d, want %d",
			fresh.Overview.TotalRequests, first.Overview.TotalRequests+1)
	}
}
