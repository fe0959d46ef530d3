// Package usage provides usage event types and aggregation functions.
// All functions are pure - no side effects.
package usage

import "time"

// Outcome classifies what happened to a request at admission.
type Outcome string

const (
	OutcomeAdmitted      Outcome = "admitted"
	OutcomeRejectedQuota Outcome = "rejected_quota"
	OutcomeRejectedAuth  Outcome = "rejected_auth"
)

// Event represents a single usage event (immutable value type).
// The ledger is append-only: events are never mutated or deleted outside
// the retention job, and they outlive key revocation for audit.
type Event struct {
	ID         string // ulid, sortable by creation time
	KeyID      string // empty for auth rejections of unknown keys
	CustomerID string // empty for auth rejections of unknown keys
	Resource   string // library / doc set the request targeted
	LatencyMs  int64  // upstream latency; 0 for rejected requests
	Outcome    Outcome
	Timestamp  time.Time
}

// IsAdmitted reports whether the request passed admission control.
func (e Event) IsAdmitted() bool {
	return e.Outcome == OutcomeAdmitted
}

// Summary represents aggregated usage for a window (value type).
type Summary struct {
	CustomerID    string
	WindowStart   time.Time
	WindowEnd     time.Time
	TotalRequests int64
	Admitted      int64
	RejectedQuota int64
	RejectedAuth  int64
	AvgLatencyMs  float64
}

// Aggregate combines events into a summary.
// This is a PURE function.
func Aggregate(events []Event, start, end time.Time) Summary {
	s := Summary{WindowStart: start, WindowEnd: end}

	var latencyTotal int64
	for _, e := range events {
		if s.CustomerID == "" {
			s.CustomerID = e.CustomerID
		}
		s.TotalRequests++
		switch e.Outcome {
		case OutcomeAdmitted:
			s.Admitted++
			latencyTotal += e.LatencyMs
		case OutcomeRejectedQuota:
			s.RejectedQuota++
		case OutcomeRejectedAuth:
			s.RejectedAuth++
		}
	}

	if s.Admitted > 0 {
		s.AvgLatencyMs = float64(latencyTotal) / float64(s.Admitted)
	}
	return s
}
