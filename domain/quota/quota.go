// Package quota provides pure types for quota admission decisions.
//
// The atomic test-and-increment itself lives behind ports.QuotaStore: it is
// the one operation in the system that needs mutual exclusion per
// (customer, period). This package only defines the decision shape and the
// pure arithmetic around it.
package quota

// Decision is the outcome of one admission attempt (value type).
type Decision struct {
	Admitted bool
	Count    int64 // admitted count after this attempt
	Ceiling  int64 // -1 = unlimited
}

// Remaining returns how many admissions are left in the period.
// Unlimited ceilings report -1.
// This is a PURE function.
func Remaining(count, ceiling int64) int64 {
	if ceiling < 0 {
		return -1
	}
	if count >= ceiling {
		return 0
	}
	return ceiling - count
}

// Evaluate applies the admission rule to a counter value: admit iff the
// pre-increment count is below the ceiling. Stores call this under their
// own lock (or express it as a conditional update) so the check and the
// increment are one atomic step.
// This is a PURE function.
func Evaluate(count, ceiling int64) Decision {
	if ceiling < 0 {
		return Decision{Admitted: true, Count: count + 1, Ceiling: ceiling}
	}
	if count < ceiling {
		return Decision{Admitted: true, Count: count + 1, Ceiling: ceiling}
	}
	return Decision{Admitted: false, Count: count, Ceiling: ceiling}
}

// PercentUsed returns usage as a percentage of the ceiling (0 for
// unlimited plans).
// This is a PURE function.
func PercentUsed(count, ceiling int64) float64 {
	if ceiling <= 0 {
		return 0
	}
	return float64(count) / float64(ceiling) * 100
}
