// Package release implements the out-of-band release/renewal command
// path: constant-time secret verification, delayed execution, and the
// renewal mirror operation.
package release

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/policy"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/statestore"

	coerrors "github.com/cyberpunk042/continuity-orchestrator-sub000/internal/errors"
)

// Verifier holds the configured release secret and exposes a
// constant-time comparison, grounded on the same fixed-length-digest
// technique used for header-gated HTTP requests: hash both sides to a
// fixed length before comparing, so the comparison's cost never leaks
// the candidate's length.
type Verifier struct {
	expectedHash [sha256.Size]byte
}

// NewVerifier returns a Verifier configured with secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{expectedHash: sha256.Sum256([]byte(secret))}
}

// Verify reports whether candidate matches the configured secret.
func (v *Verifier) Verify(candidate string) bool {
	got := sha256.Sum256([]byte(candidate))
	return subtle.ConstantTimeCompare(got[:], v.expectedHash[:]) == 1
}

// Command is a release or renewal request from the operator surface.
type Command struct {
	Secret      string
	TargetStage string
	DelayMinutes int
	Scope       string // "full" or "site_only"
}

// TriggerRelease verifies cmd's secret and, on success, arms the release
// fields on doc. On mismatch it increments renewal.failed_attempts and
// returns an error without touching any release field, per §4.5 step 1.
func TriggerRelease(v *Verifier, snap *policy.Snapshot, doc *statestore.Document, cmd Command, now time.Time, nonce func() string) error {
	if !v.Verify(cmd.Secret) {
		doc.Renewal.FailedAttempts++
		return coerrors.New(coerrors.ReasonInvalidArgument, "release secret mismatch")
	}

	if snap.StateOrder(cmd.TargetStage) < snap.StateOrder(doc.Escalation.Stage) {
		return coerrors.New(coerrors.ReasonInvalidArgument, "release target stage must be >= current stage")
	}

	delay := time.Duration(cmd.DelayMinutes) * time.Minute
	doc.Release = statestore.Release{
		Triggered:    true,
		TriggerTime:  now,
		ExecuteAfter: now.Add(delay),
		TargetStage:  cmd.TargetStage,
		Scope:        cmd.Scope,
		Nonce:        nonce(),
	}
	return nil
}

// DueTarget reports the stage the Rule Engine should force a transition
// to this tick, if a release is both triggered and due. Returns "" if no
// release is due.
func DueTarget(doc *statestore.Document, now time.Time) string {
	if doc.Release.Triggered && !now.Before(doc.Release.ExecuteAfter) {
		return doc.Release.TargetStage
	}
	return ""
}

// ClearAfterExecute clears the triggered flag once the forced transition
// has been applied by the Rule Engine, preserving TriggerTime for the
// audit trail.
func ClearAfterExecute(doc *statestore.Document) {
	doc.Release.Triggered = false
}

// TriggerRenewal verifies cmd's secret and, on success, clears any
// pending release, records last_renewal_at, and marks renewed_this_tick.
// It does not change the stage itself: the Rule Engine's renewal-reset
// rule moves the stage to the lowest order on the next tick. The timer's
// deadline is not changed.
func TriggerRenewal(v *Verifier, doc *statestore.Document, secret string, maxFailed int, now time.Time) error {
	if maxFailed > 0 && doc.Renewal.FailedAttempts >= maxFailed {
		return coerrors.New(coerrors.ReasonLockedOut, "renewal locked out after too many failed attempts")
	}
	if !v.Verify(secret) {
		doc.Renewal.FailedAttempts++
		return coerrors.New(coerrors.ReasonInvalidArgument, "renewal secret mismatch")
	}

	doc.Release.Triggered = false
	doc.Renewal.LastRenewalAt = now
	doc.Renewal.RenewedThisTick = true
	return nil
}

// NewNonce generates a random release nonce. Exposed separately from
// TriggerRelease so tests can inject a deterministic nonce function.
func NewNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
