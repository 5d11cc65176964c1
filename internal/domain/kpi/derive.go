package kpi

import (
	"math"
	"time"
)

// CompletionPercentage returns actual/target as a rounded percentage.
// Occurrence KPIs (target 0) count as 100% once anything was reported.
func CompletionPercentage(rec Record) int {
	if rec.Target > 0 {
		return int(math.Round(rec.Actual / rec.Target * 100))
	}
	if rec.Actual > 0 {
		return 100
	}
	return 0
}

// IsOverdue reports whether a record passed its end date without reaching
// the approved terminal state.
func IsOverdue(rec Record, now time.Time) bool {
	if rec.EndDate.IsZero() {
		return false
	}
	return rec.EndDate.Before(now) && NormalizeStatus(rec.Status) != StatusApproved
}

// Progress is the completion percentage clamped for display; the stored
// actual value is never clamped. Over-achievement shows up to 200%.
func Progress(rec Record) int {
	pct := CompletionPercentage(rec)
	if pct < 0 {
		return 0
	}
	if pct > 200 {
		return 200
	}
	return pct
}
