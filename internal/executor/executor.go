// Package executor drives the selected actions for a tick through the
// Template Resolver, Adapter Registry, and Reliability Layer, producing
// one receipt per action and folding ok/skipped receipts into the state
// document's idempotency map.
package executor

import (
	"context"
	"time"

	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/actions"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/adapters"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/clock"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/metrics"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/reliability"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/statestore"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/templates"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/timeeval"
)

// Executor owns the registry, breaker manager, retry queue, and
// template resolver needed to turn a Selected action into a Receipt.
type Executor struct {
	Registry  *adapters.Registry
	Breakers  *reliability.Manager
	Retry     *reliability.Queue
	Templates *templates.Resolver
	Clock     clock.Clock
	ProjectName string
	AdapterTimeout time.Duration
}

// Outcome is one action's full processing result: the receipt plus
// whether it should be folded into the idempotency map (ok/skipped) or
// left for a future tick (failed/deferred).
type Outcome struct {
	Receipt  adapters.Receipt
	Consumed bool
}

// Run executes sel against stage/tick context, returning its Outcome.
// It never returns an error: every failure mode is expressed as a
// Receipt, per the spec's "adapter errors are local" propagation
// policy.
func (e *Executor) Run(ctx context.Context, sel actions.Selected, doc *statestore.Document, tf timeeval.Fields, tickID string) Outcome {
	now := e.Clock.Now()

	content, err := e.Templates.Resolve(sel.Definition.Template, templates.Context{
		ProjectName:         e.ProjectName,
		Stage:               doc.Escalation.Stage,
		TickID:              tickID,
		TimeToDeadlineMin:   tf.TimeToDeadlineMin,
		TimeToDeadlineHours: tf.TimeToDeadlineMin / 60,
		OverdueMin:          tf.OverdueMin,
		OverdueHours:        tf.OverdueMin / 60,
		ActionID:            sel.Definition.ID,
		Channel:             sel.Definition.Channel,
	})
	if err != nil {
		return Outcome{Receipt: adapters.Receipt{
			Kind: adapters.ReceiptFailed, Adapter: sel.Definition.Adapter, ActionID: sel.Definition.ID,
			Key: sel.Key, Reason: "invalid_argument", At: now,
		}}
	}

	adapter, ok := e.Registry.Get(sel.Definition.Adapter)
	if !ok {
		return Outcome{Receipt: adapters.Receipt{
			Kind: adapters.ReceiptSkipped, Adapter: sel.Definition.Adapter, ActionID: sel.Definition.ID,
			Key: sel.Key, Reason: "not_configured", At: now,
		}, Consumed: true}
	}

	breaker := e.Breakers.For(adapter.Name())
	if !breaker.Allow() {
		return Outcome{Receipt: adapters.Receipt{
			Kind: adapters.ReceiptDeferred, Adapter: adapter.Name(), ActionID: sel.Definition.ID,
			Key: sel.Key, Reason: "circuit_open", At: now,
		}}
	}

	if !adapter.IsEnabled(ctx) {
		breaker.RecordSuccess()
		return Outcome{Receipt: adapters.Receipt{
			Kind: adapters.ReceiptSkipped, Adapter: adapter.Name(), ActionID: sel.Definition.ID,
			Key: sel.Key, Reason: "not_configured", At: now,
		}, Consumed: true}
	}

	receipt := e.safeExecute(ctx, adapter, sel, doc, content, now)
	receipt.Key = sel.Key
	receipt.ActionID = sel.Definition.ID
	metrics.ReceiptsTotal.WithLabelValues(adapter.Name(), string(receipt.Kind)).Inc()
	defer func() { metrics.BreakerState.WithLabelValues(adapter.Name()).Set(float64(breaker.State())) }()

	switch receipt.Kind {
	case adapters.ReceiptOK, adapters.ReceiptSkipped:
		breaker.RecordSuccess()
		return Outcome{Receipt: receipt, Consumed: true}
	case adapters.ReceiptFailed:
		breaker.RecordFailure()
		e.Retry.Enqueue(doc, sel.Key, sel.Definition.ID, adapter.Name(), doc.Escalation.Stage, now, receipt.Reason)
		return Outcome{Receipt: receipt}
	default: // deferred
		return Outcome{Receipt: receipt}
	}
}

// safeExecute calls the adapter with a per-call timeout and recovers
// from a panic, converting either into a failed receipt so an adapter
// bug can never abort the tick.
func (e *Executor) safeExecute(ctx context.Context, adapter adapters.Adapter, sel actions.Selected, doc *statestore.Document, content string, now time.Time) (receipt adapters.Receipt) {
	timeout := e.AdapterTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			receipt = adapters.Receipt{
				Kind: adapters.ReceiptFailed, Adapter: adapter.Name(), ActionID: sel.Definition.ID,
				Key: sel.Key, Reason: "adapter_exception", At: now,
			}
		}
	}()

	execCtx := adapters.ExecutionContext{
		Context:     callCtx,
		ActionID:    sel.Definition.ID,
		Channel:     sel.Definition.Channel,
		Content:     content,
		Routing:     routingFor(doc, sel.Definition.Channel),
		Constraints: sel.Definition.Constraints,
	}

	done := make(chan adapters.Receipt, 1)
	go func() {
		done <- adapter.Execute(execCtx)
	}()

	select {
	case r := <-done:
		return r
	case <-callCtx.Done():
		return adapters.Receipt{
			Kind: adapters.ReceiptFailed, Adapter: adapter.Name(), ActionID: sel.Definition.ID,
			Key: sel.Key, Reason: "timeout", At: now,
		}
	}
}

func routingFor(doc *statestore.Document, channel string) []string {
	switch channel {
	case "operator":
		if doc.Routing.Operator != "" {
			return []string{doc.Routing.Operator}
		}
		return nil
	case "custodians":
		return doc.Routing.Custodians
	default:
		return doc.Routing.Subscribers
	}
}

// Fold records an Outcome's receipt into doc.Actions.Executed when
// Consumed is set, and returns the audit payload for the action_receipt
// event.
func Fold(doc *statestore.Document, o Outcome) map[string]interface{} {
	if o.Consumed {
		doc.Actions.Executed[o.Receipt.Key] = statestore.ReceiptSummary{
			Kind:       string(o.Receipt.Kind),
			Adapter:    o.Receipt.Adapter,
			DeliveryID: o.Receipt.DeliveryID,
			Reason:     o.Receipt.Reason,
			At:         o.Receipt.At,
		}
	}
	return map[string]interface{}{
		"kind":        string(o.Receipt.Kind),
		"adapter":     o.Receipt.Adapter,
		"action_id":   o.Receipt.ActionID,
		"key":         o.Receipt.Key,
		"delivery_id": o.Receipt.DeliveryID,
		"reason":      o.Receipt.Reason,
	}
}
