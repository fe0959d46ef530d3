// Package period provides pure billing-period math.
//
// A customer's billing period is anchored to the day-of-month of their
// signup. The anchor is fixed at signup and never moves, including across
// plan changes (see DESIGN.md). Anchor days past the end of a short month
// clamp to that month's last day, so a customer anchored on the 31st rolls
// over on Feb 28 (29 in leap years).
package period

import "time"

// Period is one billing window. Start is inclusive, End exclusive.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Current resolves the billing period covering now for the given anchor
// day (1-31). All period boundaries are midnight UTC.
// This is a PURE function.
func Current(anchorDay int, now time.Time) Period {
	if anchorDay < 1 {
		anchorDay = 1
	}
	if anchorDay > 31 {
		anchorDay = 31
	}
	now = now.UTC()

	year, month := now.Year(), now.Month()
	start := anchorDate(year, month, anchorDay)
	if start.After(now) {
		year, month = prevMonth(year, month)
		start = anchorDate(year, month, anchorDay)
	}

	nextYear, next := nextMonth(start.Year(), start.Month())
	return Period{
		Start: start,
		End:   anchorDate(nextYear, next, anchorDay),
	}
}

// anchorDate returns midnight UTC on the anchor day of the given month,
// clamped to the month's last day.
func anchorDate(year int, month time.Month, day int) time.Time {
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func prevMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}

func nextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}
