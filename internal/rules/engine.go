package rules

import (
	"fmt"
	"time"

	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/policy"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/statestore"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/timeeval"

	coerrors "github.com/cyberpunk042/continuity-orchestrator-sub000/internal/errors"
)

// MatchedRule records that a rule fired this tick, for the caller to
// turn into rule_matched audit events.
type MatchedRule struct {
	RuleID string
	Stop   bool
}

// Result is the outcome of one Evaluate call: the stage the state
// document should end up in, and the matched rules in evaluation order.
type Result struct {
	ResultingStage string
	StageChanged   bool
	Matched        []MatchedRule
}

// maxFailedAttemptsConstant is the policy constant name the lockout rule
// reads its threshold from.
const maxFailedAttemptsConstant = "max_failed_attempts"

// Evaluate runs the full §4.2 sequence against doc in place: renewal
// reset, release-forced transition, then the declared rule program in
// order, honoring `stop` and the monotonic-progression constraint.
// releasePending, when non-empty, is a stage name synthesized by the
// Release Protocol when a due release should force a transition;
// callers pass "" when no release is due this tick.
func Evaluate(doc *statestore.Document, snap *policy.Snapshot, tf timeeval.Fields, now time.Time, releasePending string) (*Result, error) {
	initialStage := doc.Escalation.Stage
	res := &Result{ResultingStage: doc.Escalation.Stage}

	if doc.Renewal.RenewedThisTick {
		applyRenewalReset(doc, snap, now)
		res.ResultingStage = doc.Escalation.Stage
		res.Matched = append(res.Matched, MatchedRule{RuleID: "renewal_resets"})
	}

	if releasePending != "" {
		if err := forceTransition(doc, snap, releasePending, now); err != nil {
			return nil, err
		}
		res.ResultingStage = doc.Escalation.Stage
		res.Matched = append(res.Matched, MatchedRule{RuleID: "release_forced_transition"})
	}

	lockedOut := snap.Constants[maxFailedAttemptsConstant] > 0 &&
		doc.Renewal.FailedAttempts >= snap.Constants[maxFailedAttemptsConstant]

	for _, r := range snap.Rules {
		if !r.Enabled || policy.LockedRuleIDs[r.ID] {
			continue
		}
		if lockedOut && r.ID == "renewal_accept" {
			continue
		}

		matched, err := MatchPredicate(r.When, doc, tf)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		if !matched {
			continue
		}

		if err := applyMutations(doc, snap, r, now); err != nil {
			return nil, err
		}
		res.Matched = append(res.Matched, MatchedRule{RuleID: r.ID, Stop: r.Stop})
		res.ResultingStage = doc.Escalation.Stage

		if r.Stop {
			break
		}
	}

	res.StageChanged = res.ResultingStage != initialStage
	return res, nil
}

// applyRenewalReset implements the locked renewal_resets rule: reset to
// the lowest-order state and clear failed_attempts, before any other
// rule in the program runs.
func applyRenewalReset(doc *statestore.Document, snap *policy.Snapshot, now time.Time) {
	lowest := snap.LowestState()
	if doc.Escalation.Stage != lowest.Name {
		doc.Escalation.PreviousStage = doc.Escalation.Stage
		doc.Escalation.Stage = lowest.Name
		doc.Escalation.StageEnteredAt = now
	}
	doc.Renewal.FailedAttempts = 0
}

// forceTransition bypasses the monotonic-progression constraint, used by
// a due release command.
func forceTransition(doc *statestore.Document, snap *policy.Snapshot, target string, now time.Time) error {
	if _, ok := snap.States[target]; !ok {
		return coerrors.New(coerrors.ReasonPolicyInvalid, "release target stage unknown: "+target)
	}
	if doc.Escalation.Stage != target {
		doc.Escalation.PreviousStage = doc.Escalation.Stage
		doc.Escalation.Stage = target
		doc.Escalation.StageEnteredAt = now
	}
	return nil
}

// applyMutations applies every mutation in r.Then, enforcing the
// monotonic-progression invariant on set_state mutations unless r is the
// renewal or a release-protocol rule.
func applyMutations(doc *statestore.Document, snap *policy.Snapshot, r policy.Rule, now time.Time) error {
	var targetStage string
	sawSetState := false

	for _, m := range r.Then {
		if m.Kind == "set_state" {
			if sawSetState {
				return coerrors.New(coerrors.ReasonConflictMutation, "rule "+r.ID+" issues conflicting set_state mutations")
			}
			sawSetState = true
			target, _ := m.Value.(string)
			targetStage = target
		}
	}

	if sawSetState {
		if err := applySetState(doc, snap, r, targetStage, now); err != nil {
			return err
		}
	}

	for _, m := range r.Then {
		switch m.Kind {
		case "set_state":
			// already applied above
		case "set":
			applySet(doc, m.Path, m.Value)
		case "clear":
			applyClear(doc, m.Path)
		case "inc":
			applyInc(doc, m.Path)
		default:
			return fmt.Errorf("rule %s: unknown mutation kind %q", r.ID, m.Kind)
		}
	}
	return nil
}

func applySetState(doc *statestore.Document, snap *policy.Snapshot, r policy.Rule, target string, now time.Time) error {
	if _, ok := snap.States[target]; !ok {
		return coerrors.New(coerrors.ReasonPolicyInvalid, "rule "+r.ID+" targets unknown state: "+target)
	}

	isExempt := r.ID == "renewal" || r.ID == "renewal_resets" || isReleaseRule(r.ID)
	if !isExempt && snap.StateOrder(target) < snap.StateOrder(doc.Escalation.Stage) {
		return nil // monotonic-progression invariant: silently refuse the regression
	}

	if doc.Escalation.Stage != target {
		doc.Escalation.PreviousStage = doc.Escalation.Stage
		doc.Escalation.Stage = target
		doc.Escalation.StageEnteredAt = now
	}
	return nil
}

func isReleaseRule(id string) bool {
	return id == "release_forced_transition" || id == "release_execute"
}

// applySet/applyClear/applyInc operate on the small, known set of
// mutable scalar paths a policy file may target. Unknown paths are
// no-ops; the policy loader does not validate these paths, so a
// mistyped path is silently ignored.
func applySet(doc *statestore.Document, path string, value interface{}) {
	switch path {
	case "renewal.failed_attempts":
		if n, ok := asInt(value); ok {
			doc.Renewal.FailedAttempts = n
		}
	case "renewal.renewed_this_tick":
		if b, ok := value.(bool); ok {
			doc.Renewal.RenewedThisTick = b
		}
	case "routing.enabled":
		if b, ok := value.(bool); ok {
			doc.Routing.Enabled = b
		}
	}
}

func applyClear(doc *statestore.Document, path string) {
	switch path {
	case "renewal.failed_attempts":
		doc.Renewal.FailedAttempts = 0
	case "renewal.renewed_this_tick":
		doc.Renewal.RenewedThisTick = false
	case "release.triggered":
		doc.Release = statestore.Release{}
	}
}

func applyInc(doc *statestore.Document, path string) {
	switch path {
	case "renewal.failed_attempts":
		doc.Renewal.FailedAttempts++
	}
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// AuditPayloadForTransition builds the payload for a state_transition
// audit event.
func AuditPayloadForTransition(from, to string) map[string]interface{} {
	return map[string]interface{}{"from": from, "to": to}
}
