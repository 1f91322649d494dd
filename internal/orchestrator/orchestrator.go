// Package orchestrator sequences the eight canonical phases of a tick
// and exposes the Start/Stop lifecycle a companion scheduler drives.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/actions"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/adapters"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/audit"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/clock"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/executor"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/logging"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/metrics"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/policy"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/release"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/reliability"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/rules"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/statestore"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/timeeval"

	coerrors "github.com/cyberpunk042/continuity-orchestrator-sub000/internal/errors"
)

// Orchestrator is the engine's public entry point: the composition root
// that owns the store, ledger, registry, and reliability layer for the
// lifetime of the process, and runs one tick at a time against them.
type Orchestrator struct {
	Store      *statestore.Store
	Ledger     *audit.Ledger
	PolicyPath string
	Registry   *adapters.Registry
	Breakers   *reliability.Manager
	Retry      *reliability.Queue
	Executor   *executor.Executor
	Clock      clock.Clock
	Log        *logging.Logger
	ProjectID  string
	Verifier   *release.Verifier
	MaxFailedAttempts int

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Start launches a background ticker at the given interval, firing an
// immediate tick before the first wait, matching the scheduler
// convention of not waiting a full interval for the first run.
func (o *Orchestrator) Start(ctx context.Context, interval time.Duration) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.Tick(runCtx); err != nil {
			o.Log.WithTick(runCtx).WithError(err).Error("initial tick failed")
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := o.Tick(runCtx); err != nil {
					o.Log.WithTick(runCtx).WithError(err).Error("tick failed")
				}
			}
		}
	}()
	return nil
}

// Stop cancels the background loop and waits for the in-flight tick, if
// any, to finish or for ctx to expire.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.cancel()
	o.running = false
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick runs the full eight-phase sequence exactly once and returns the
// resulting stage. It is safe to call concurrently with Start's loop
// (e.g. from an operator-triggered "tick now" command); the state-file
// lock serializes overlapping attempts.
func (o *Orchestrator) Tick(ctx context.Context) (string, error) {
	tickID := uuid.NewString()
	now := o.Clock.Now()
	ctx = logging.ContextWithTick(ctx, tickID, "")
	started := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(started).Seconds()) }()

	var resultStage string
	err := o.Store.WithLock(ctx, func() error {
		// Phase 1: load.
		snap, err := o.loadPolicy()
		if err != nil {
			return err
		}
		doc, err := o.Store.Load()
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			doc = statestore.NewDocument(o.ProjectID, now.Add(24*time.Hour), snap.LowestState().Name, now)
		}

		o.Ledger.Append(tickID, audit.KindTickStart, map[string]interface{}{"stage": doc.Escalation.Stage})

		if ctx.Err() != nil {
			o.Ledger.Append(tickID, audit.KindTickAborted, nil)
			return ctx.Err()
		}

		// Phase 2: time evaluation.
		tf := timeeval.Evaluate(doc, now)

		// Phase 3: renewal/release resolution.
		releaseTarget := release.DueTarget(doc, now)

		// Phase 5: rule evaluation.
		before := doc.Escalation.Stage
		result, err := rules.Evaluate(doc, snap, tf, now, releaseTarget)
		if err != nil {
			return err
		}
		if releaseTarget != "" && doc.Escalation.Stage == releaseTarget {
			release.ClearAfterExecute(doc)
			o.Ledger.Append(tickID, audit.KindReleaseExecuted, map[string]interface{}{"stage": releaseTarget, "nonce": doc.Release.Nonce})
		}
		if result.StageChanged {
			o.Ledger.Append(tickID, audit.KindStateTransition, rules.AuditPayloadForTransition(before, doc.Escalation.Stage))
		}
		doc.Renewal.RenewedThisTick = false

		// Phase 6: action selection, retry drain, execution. Select runs
		// against the still-undrained retry queue so it excludes every
		// key with a pending retry entry; DrainDue then pulls the due
		// ones out for this tick's run, guaranteeing each key surfaces at
		// most once.
		selected := actions.Select(snap, doc)
		retryDue, dropped := o.Retry.DrainDue(doc, now)
		for _, d := range dropped {
			o.Ledger.Append(tickID, audit.KindActionDropped, map[string]interface{}{"key": d.Key, "adapter": d.Adapter, "attempts": d.AttemptCount})
		}
		for _, r := range retryDue {
			def := findAction(snap, doc.Escalation.Stage, r.ActionID)
			if def.ID != "" {
				// The entry stays queued during its retry: a failed attempt
				// increments its count through Enqueue, a consumed one is
				// removed below.
				doc.RetryQueue = append(doc.RetryQueue, r)
			}
			selected = append(selected, actions.Selected{Definition: def, Key: r.Key})
		}

		for _, sel := range selected {
			if sel.Definition.ID == "" {
				continue
			}
			o.Ledger.Append(tickID, audit.KindActionAttempt, map[string]interface{}{"action_id": sel.Definition.ID, "adapter": sel.Definition.Adapter})
			outcome := o.Executor.Run(ctx, sel, doc, tf, tickID)
			payload := executor.Fold(doc, outcome)
			if outcome.Consumed {
				o.Retry.Remove(doc, sel.Key)
			}
			o.Ledger.Append(tickID, audit.KindActionReceipt, payload)
		}

		// Phase 7: persist.
		doc.Meta.LastUpdated = now
		doc.Meta.PolicyVersion = snap.Version
		if err := o.Store.Save(doc); err != nil {
			o.Ledger.Append(tickID, audit.KindTickAborted, map[string]interface{}{"error": err.Error()})
			return err
		}
		o.Ledger.Append(tickID, audit.KindTickEnd, map[string]interface{}{"stage": doc.Escalation.Stage})
		resultStage = doc.Escalation.Stage
		metrics.StageGauge.WithLabelValues(o.ProjectID).Set(float64(snap.StateOrder(doc.Escalation.Stage)))
		metrics.RetryQueueDepth.Set(float64(len(doc.RetryQueue)))
		return nil
	})

	if err != nil {
		metrics.TicksTotal.WithLabelValues("aborted").Inc()
	} else {
		metrics.TicksTotal.WithLabelValues("ok").Inc()
	}
	return resultStage, err
}

// TriggerRelease arms the release fields on the persisted state document
// under the state lock. It does not itself force the transition; a
// subsequent Tick applies it once due, per §4.5.
func (o *Orchestrator) TriggerRelease(ctx context.Context, cmd release.Command) error {
	tickID := uuid.NewString()
	now := o.Clock.Now()
	return o.Store.WithLock(ctx, func() error {
		snap, err := o.loadPolicy()
		if err != nil {
			return err
		}
		doc, err := o.loadOrSeed(snap, now)
		if err != nil {
			return err
		}
		if err := release.TriggerRelease(o.Verifier, snap, doc, cmd, now, release.NewNonce); err != nil {
			o.Ledger.Append(tickID, audit.KindReleaseRejected, map[string]interface{}{"target_stage": cmd.TargetStage})
			o.Store.Save(doc)
			return err
		}
		o.Ledger.Append(tickID, audit.KindReleaseTriggered, map[string]interface{}{
			"target_stage": cmd.TargetStage, "execute_after": doc.Release.ExecuteAfter, "nonce": doc.Release.Nonce,
		})
		doc.Meta.LastUpdated = now
		return o.Store.Save(doc)
	})
}

// TriggerRenewal verifies and applies a renewal command. The actual
// stage reset happens on the next Tick, which observes
// renewed_this_tick.
func (o *Orchestrator) TriggerRenewal(ctx context.Context, secret string) error {
	tickID := uuid.NewString()
	now := o.Clock.Now()
	return o.Store.WithLock(ctx, func() error {
		snap, err := o.loadPolicy()
		if err != nil {
			return err
		}
		doc, err := o.loadOrSeed(snap, now)
		if err != nil {
			return err
		}
		if err := release.TriggerRenewal(o.Verifier, doc, secret, o.MaxFailedAttempts, now); err != nil {
			o.Ledger.Append(tickID, audit.KindRenewalRejected, map[string]interface{}{"reason": string(coerrors.ReasonOf(err))})
			o.Store.Save(doc)
			return err
		}
		o.Ledger.Append(tickID, audit.KindRenewal, map[string]interface{}{"last_renewal_at": doc.Renewal.LastRenewalAt})
		doc.Meta.LastUpdated = now
		return o.Store.Save(doc)
	})
}

// loadPolicy loads and validates the policy file against the set of
// adapter names actually wired into the Registry, so a plan typo'ing an
// adapter name fails the load instead of silently degrading to
// not_configured at execution time.
func (o *Orchestrator) loadPolicy() (*policy.Snapshot, error) {
	if o.Registry == nil {
		return policy.Load(o.PolicyPath, nil)
	}
	known := make(map[string]bool, len(o.Registry.Names()))
	for _, name := range o.Registry.Names() {
		known[name] = true
	}
	return policy.Load(o.PolicyPath, known)
}

func (o *Orchestrator) loadOrSeed(snap *policy.Snapshot, now time.Time) (*statestore.Document, error) {
	doc, err := o.Store.Load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return statestore.NewDocument(o.ProjectID, now.Add(24*time.Hour), snap.LowestState().Name, now), nil
	}
	return doc, nil
}

func findAction(snap *policy.Snapshot, stage, actionID string) policy.ActionDefinition {
	for _, a := range snap.Plans[stage] {
		if a.ID == actionID {
			return a
		}
	}
	return policy.ActionDefinition{}
}
