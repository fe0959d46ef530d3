package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/docpilot/metergate/domain/usage"
	"github.com/docpilot/metergate/ports"
)

const (
	defaultWindowDays = 7
	maxWindowDays     = 90
	topResourcesLimit = 10
)

// AnalyticsService builds dashboard reports from the usage ledger.
// Reports are cached briefly per (customer, window): analytics reads are
// allowed to lag the ledger, and the cache keeps a dashboard that polls
// from hammering the aggregation queries.
type AnalyticsService struct {
	usage ports.UsageStore
	clock ports.Clock
	ttl   time.Duration
	log   zerolog.Logger

	mu    sync.Mutex
	cache map[reportKey]cachedReport
}

type reportKey struct {
	customerID string
	days       int
}

type cachedReport struct {
	report Report
	at     time.Time
}

// AnalyticsDeps contains dependencies for AnalyticsService.
type AnalyticsDeps struct {
	Usage  ports.UsageStore
	Clock  ports.Clock
	TTL    time.Duration // 0 disables caching
	Logger zerolog.Logger
}

// NewAnalyticsService creates a new analytics service.
func NewAnalyticsService(deps AnalyticsDeps) *AnalyticsService {
	return &AnalyticsService{
		usage: deps.Usage,
		clock: deps.Clock,
		ttl:   deps.TTL,
		log:   deps.Logger,
		cache: make(map[reportKey]cachedReport),
	}
}

// Overview is the headline counters of a report window.
type Overview struct {
	WindowDays    int
	TotalRequests int64
	Admitted      int64
	RejectedQuota int64
	RejectedAuth  int64
}

// Performance summarizes upstream latency of admitted requests.
type Performance struct {
	AverageMs float64
	P95Ms     int64
	P99Ms     int64
}

// Report is one analytics snapshot for a customer.
type Report struct {
	Overview     Overview
	TopResources []usage.ResourceCount
	DailyUsage   []usage.DayBucket
	Performance  Performance
	GeneratedAt  time.Time
}

// Report builds (or serves from cache) the analytics report over the
// trailing `days` calendar days including today. Days outside 1..90
// fall back to the 7-day default.
func (s *AnalyticsService) Report(ctx context.Context, customerID string, days int) (Report, error) {
	if days < 1 || days > maxWindowDays {
		days = defaultWindowDays
	}
	now := s.clock.Now()
	ck := reportKey{customerID: customerID, days: days}

	if s.ttl > 0 {
		s.mu.Lock()
		hit, ok := s.cache[ck]
		s.mu.Unlock()
		if ok && now.Sub(hit.at) < s.ttl {
			return hit.report, nil
		}
	}

	report, err := s.build(ctx, customerID, days, now)
	if err != nil {
		return Report{}, err
	}

	if s.ttl > 0 {
		s.mu.Lock()
		s.cache[ck] = cachedReport{report: report, at: now}
		s.mu.Unlock()
	}
	return report, nil
}

func (s *AnalyticsService) build(ctx context.Context, customerID string, days int, now time.Time) (Report, error) {
	// Align the window start to midnight UTC so the daily buckets sum to
	// the overview totals.
	end := now
	start := startOfDayUTC(now).AddDate(0, 0, -(days - 1))

	summary, err := s.usage.Summary(ctx, customerID, start, end)
	if err != nil {
		return Report{}, fmt.Errorf("usage summary: %w", err)
	}

	top, err := s.usage.TopResources(ctx, customerID, start, end, topResourcesLimit)
	if err != nil {
		return Report{}, fmt.Errorf("top resources: %w", err)
	}

	daily, err := s.usage.DailyCounts(ctx, customerID, start, end)
	if err != nil {
		return Report{}, fmt.Errorf("daily counts: %w", err)
	}

	latencies, err := s.usage.AdmittedLatencies(ctx, customerID, start, end)
	if err != nil {
		return Report{}, fmt.Errorf("latencies: %w", err)
	}

	return Report{
		Overview: Overview{
			WindowDays:    days,
			TotalRequests: summary.TotalRequests,
			Admitted:      summary.Admitted,
			RejectedQuota: summary.RejectedQuota,
			RejectedAuth:  summary.RejectedAuth,
		},
		TopResources: top,
		DailyUsage:   usage.FillDailyGaps(daily, days, now),
		Performance: Performance{
			AverageMs: usage.Mean(latencies),
			P95Ms:     usage.Percentile(latencies, 0.95),
			P99Ms:     usage.Percentile(latencies, 0.99),
		},
		GeneratedAt: now,
	}, nil
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
