package reliability

import (
	"time"

	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/statestore"
)

// RetryConfig controls the geometric back-off schedule shared by every
// retry-queue entry.
type RetryConfig struct {
	Base       time.Duration
	Cap        time.Duration
	MaxAttempts int
}

// DefaultRetryConfig matches the spec's concrete schedule: base 60s,
// cap 1h, 5 attempts before the entry is dropped.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Base: 60 * time.Second, Cap: time.Hour, MaxAttempts: 5}
}

// NextDelay returns the geometric back-off delay for the given attempt
// count (1-indexed: the delay before the first retry is NextDelay(1)).
func (c RetryConfig) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := c.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > c.Cap {
			return c.Cap
		}
	}
	if d > c.Cap {
		d = c.Cap
	}
	return d
}

// Exhausted reports whether an entry at attemptCount has used up its
// retry budget.
func (c RetryConfig) Exhausted(attemptCount int) bool {
	return attemptCount >= c.MaxAttempts
}

// Queue operates directly on the Document.RetryQueue slice: entries are
// stored in an ordered container keyed by next-attempt time rather than
// a pointer graph, matching the spec's arena/indices guidance.
type Queue struct {
	cfg RetryConfig
}

// NewQueue returns a Queue using cfg's back-off schedule.
func NewQueue(cfg RetryConfig) *Queue {
	return &Queue{cfg: cfg}
}

// Enqueue adds or updates a retry entry for key. If an entry for key
// already exists its attempt count is incremented and its next-attempt
// time recomputed; otherwise a fresh entry is appended.
func (q *Queue) Enqueue(doc *statestore.Document, key, actionID, adapter, stage string, now time.Time, lastErr string) {
	for i := range doc.RetryQueue {
		if doc.RetryQueue[i].Key == key {
			doc.RetryQueue[i].AttemptCount++
			doc.RetryQueue[i].NextAttempt = now.Add(q.cfg.NextDelay(doc.RetryQueue[i].AttemptCount))
			doc.RetryQueue[i].LastError = lastErr
			return
		}
	}
	doc.RetryQueue = append(doc.RetryQueue, statestore.RetryEntry{
		Key:           key,
		ActionID:      actionID,
		Adapter:       adapter,
		Stage:         stage,
		NextAttempt:   now.Add(q.cfg.NextDelay(1)),
		AttemptCount:  1,
		LastError:     lastErr,
		SchemaVersion: statestore.CurrentSchemaVersion,
	})
}

// DrainDue removes and returns every entry whose NextAttempt has
// arrived, dropping (and returning separately) any entry that has
// exhausted its retry budget so the caller can emit action_dropped
// audit events. Entries whose SchemaVersion does not match the current
// build are dropped and returned in dropped as well, per the spec's
// best-effort retry-queue migration stance.
func (q *Queue) DrainDue(doc *statestore.Document, now time.Time) (due []statestore.RetryEntry, dropped []statestore.RetryEntry) {
	remaining := doc.RetryQueue[:0]
	for _, e := range doc.RetryQueue {
		if e.SchemaVersion != statestore.CurrentSchemaVersion {
			dropped = append(dropped, e)
			continue
		}
		if q.cfg.Exhausted(e.AttemptCount) {
			dropped = append(dropped, e)
			continue
		}
		if !e.NextAttempt.After(now) {
			due = append(due, e)
			continue
		}
		remaining = append(remaining, e)
	}
	doc.RetryQueue = remaining
	return due, dropped
}

// Remove drops the entry for key without emitting it as dropped,
// used when a due entry's retry attempt succeeds or is permanently
// skipped.
func (q *Queue) Remove(doc *statestore.Document, key string) {
	remaining := doc.RetryQueue[:0]
	for _, e := range doc.RetryQueue {
		if e.Key != key {
			remaining = append(remaining, e)
		}
	}
	doc.RetryQueue = remaining
}
