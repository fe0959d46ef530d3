package usage

import (
	"math"
	"sort"
	"time"
)

// ResourceCount is one row of a top-resources ranking (value type).
type ResourceCount struct {
	Resource   string
	Count      int64
	Percent    float64
	LastAccess time.Time
}

// DayBucket is one calendar day of usage (value type).
type DayBucket struct {
	Day   time.Time // midnight UTC
	Count int64
}

// TopResources ranks resources by event count, descending, ties broken by
// most recent access. Returns at most k rows with each row's share of the
// total.
// This is a PURE function.
func TopResources(events []Event, k int) []ResourceCount {
	if k <= 0 || len(events) == 0 {
		return nil
	}

	counts := make(map[string]*ResourceCount)
	var total int64
	for _, e := range events {
		if e.Resource == "" {
			continue
		}
		total++
		rc, ok := counts[e.Resource]
		if !ok {
			rc = &ResourceCount{Resource: e.Resource}
			counts[e.Resource] = rc
		}
		rc.Count++
		if e.Timestamp.After(rc.LastAccess) {
			rc.LastAccess = e.Timestamp
		}
	}
	if total == 0 {
		return nil
	}

	ranked := make([]ResourceCount, 0, len(counts))
	for _, rc := range counts {
		rc.Percent = float64(rc.Count) / float64(total) * 100
		ranked = append(ranked, *rc)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].LastAccess.After(ranked[j].LastAccess)
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// DailyBuckets buckets event counts by UTC calendar day over the trailing
// `days` days ending at now. Exactly `days` buckets are returned in
// chronological order, including zero-count days.
// This is a PURE function.
func DailyBuckets(events []Event, days int, now time.Time) []DayBucket {
	if days <= 0 {
		return nil
	}

	today := startOfDayUTC(now)
	first := today.AddDate(0, 0, -(days - 1))

	buckets := make([]DayBucket, days)
	index := make(map[time.Time]int, days)
	for i := 0; i < days; i++ {
		day := first.AddDate(0, 0, i)
		buckets[i] = DayBucket{Day: day}
		index[day] = i
	}

	for _, e := range events {
		day := startOfDayUTC(e.Timestamp)
		if i, ok := index[day]; ok {
			buckets[i].Count++
		}
	}
	return buckets
}

// FillDailyGaps expands a sparse day->count mapping (keys formatted
// "2006-01-02") into contiguous buckets, the shape the dashboard renders.
// Used by stores that aggregate in SQL.
// This is a PURE function.
func FillDailyGaps(counts map[string]int64, days int, now time.Time) []DayBucket {
	if days <= 0 {
		return nil
	}

	today := startOfDayUTC(now)
	first := today.AddDate(0, 0, -(days - 1))

	buckets := make([]DayBucket, days)
	for i := 0; i < days; i++ {
		day := first.AddDate(0, 0, i)
		buckets[i] = DayBucket{Day: day, Count: counts[day.Format("2006-01-02")]}
	}
	return buckets
}

// Percentile computes an exact percentile over latency samples using
// sort-and-index: ceil(p*n)-1, zero-indexed, clamped. Good for the sample
// sizes a single customer produces in a window; a streaming estimator is
// only worth it past ~1e3 samples per query.
// This is a PURE function; the input slice is not modified.
func Percentile(latencies []int64, p float64) int64 {
	n := len(latencies)
	if n == 0 {
		return 0
	}

	sorted := make([]int64, n)
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(math.Ceil(p*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// Mean is the arithmetic mean of the samples.
// This is a PURE function.
func Mean(latencies []int64) float64 {
	if len(latencies) == 0 {
		return 0
	}
	var total int64
	for _, l := range latencies {
		total += l
	}
	return float64(total) / float64(len(latencies))
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
