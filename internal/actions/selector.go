// Package actions implements the Action Selector: mapping a resulting
// stage to its ordered plan actions, filtered by what idempotency keys
// have already been consumed.
package actions

import (
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/policy"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/statestore"
)

// Selected is one action still eligible to run this tick.
type Selected struct {
	Definition policy.ActionDefinition
	Key        string
}

// Select returns the ordered actions for stage that have not already
// been consumed by an ok/skipped receipt under their idempotency key,
// and that are not currently sitting in the retry queue awaiting their
// own back-off schedule — those are this tick's responsibility of the
// retry drain, not a fresh plan pass, so each key surfaces from exactly
// one of the two sources per tick. A stage with no plan entry
// (including one absent from the policy's Plans map entirely) yields an
// empty list rather than an error, per the spec's open-question
// resolution.
func Select(snap *policy.Snapshot, doc *statestore.Document) []Selected {
	defs := snap.Plans[doc.Escalation.Stage]
	if len(defs) == 0 {
		return nil
	}

	pending := make(map[string]bool, len(doc.RetryQueue))
	for _, r := range doc.RetryQueue {
		pending[r.Key] = true
	}

	out := make([]Selected, 0, len(defs))
	for _, def := range defs {
		key := statestore.IdempotencyKey(doc.Escalation.Stage, def.ID, doc.Escalation.StageEnteredAt)
		if prior, ok := doc.Actions.Executed[key]; ok {
			if prior.Kind == "ok" || prior.Kind == "skipped" {
				continue
			}
		}
		if pending[key] {
			continue
		}
		out = append(out, Selected{Definition: def, Key: key})
	}
	return out
}
