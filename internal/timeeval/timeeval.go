// Package timeeval derives the time-based fields the Rule Engine's
// predicate language reads, from a single sampled instant.
package timeeval

import (
	"time"

	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/statestore"
)

// Fields is the flattened time namespace exposed to rule predicates
// under the "time." prefix (e.g. "time.time_to_deadline_minutes").
type Fields struct {
	Now               time.Time
	TimeToDeadline    time.Duration // may be negative when overdue
	TimeToDeadlineMin int           // minutes, may be negative
	Overdue           time.Duration // max(0, -TimeToDeadline)
	OverdueMin        int           // minutes, always >= 0
}

// Evaluate computes Fields for doc's deadline at instant now. now ==
// deadline is treated as overdue == 0, not negative: a rule keyed on
// overdue_gt: 0 does not fire at the exact boundary, while one keyed on
// time_to_deadline_lte: 0 does.
func Evaluate(doc *statestore.Document, now time.Time) Fields {
	ttd := doc.Timer.Deadline.Sub(now)
	overdue := -ttd
	if overdue < 0 {
		overdue = 0
	}
	ttdMin := minutesFloor(ttd)
	overdueMin := -ttdMin
	if overdueMin < 0 {
		overdueMin = 0
	}
	return Fields{
		Now:               now,
		TimeToDeadline:    ttd,
		TimeToDeadlineMin: ttdMin,
		Overdue:           overdue,
		OverdueMin:        overdueMin,
	}
}

// minutesFloor truncates towards negative infinity so a duration of
// -30s reports -1 minutes overdue-adjacent, not 0 (avoids a false
// "not yet due" reading at sub-minute stragglers).
func minutesFloor(d time.Duration) int {
	mins := d / time.Minute
	if d%time.Minute != 0 && d < 0 {
		mins--
	}
	return int(mins)
}
