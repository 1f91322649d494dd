package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/adapters"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/audit"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/clock"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/executor"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/logging"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/reliability"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/release"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/statestore"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/templates"
)

// flakyAdapter lets a test script a sequence of kinds across successive
// calls, used to drive the circuit breaker through its state machine.
type flakyAdapter struct {
	name  string
	kinds []adapters.ReceiptKind
	calls int
}

func (f *flakyAdapter) Name() string { return f.name }
func (f *flakyAdapter) IsEnabled(ctx context.Context) bool { return true }
func (f *flakyAdapter) Validate(ctx context.Context) (bool, string) { return true, "" }
func (f *flakyAdapter) Execute(ctx adapters.ExecutionContext) adapters.Receipt {
	kind := f.kinds[f.calls]
	if f.calls < len(f.kinds)-1 {
		f.calls++
	}
	reason := ""
	if kind == adapters.ReceiptFailed {
		reason = "transient_error"
	}
	return adapters.Receipt{Kind: kind, Adapter: f.name, ActionID: ctx.ActionID, Reason: reason, DeliveryID: "d"}
}

func newTestOrchestrator(t *testing.T, clk clock.Clock, emailAdapter adapters.Adapter) (*Orchestrator, *audit.Ledger) {
	t.Helper()
	dir := t.TempDir()

	store := statestore.New(filepath.Join(dir, "state.json"))
	ledger, err := audit.Open(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)

	resolver, err := templates.New("../../configs/templates", 32)
	require.NoError(t, err)

	registry := adapters.NewRegistry(
		emailAdapter,
		adapters.NewWebhook("webhook", "", 0),
		adapters.NewMock("social", true),
		adapters.NewMock("site_publish", true),
	)

	breakers := reliability.NewManager(reliability.DefaultBreakerConfig(), clk)
	retry := reliability.NewQueue(reliability.DefaultRetryConfig())

	exec := &executor.Executor{
		Registry:       registry,
		Breakers:       breakers,
		Retry:          retry,
		Templates:      resolver,
		Clock:          clk,
		ProjectName:    "acme-project",
		AdapterTimeout: 2 * time.Second,
	}

	o := &Orchestrator{
		Store:             store,
		Ledger:            ledger,
		PolicyPath:        "../../configs/policy.yaml",
		Registry:          registry,
		Breakers:          breakers,
		Retry:             retry,
		Executor:          exec,
		Clock:             clk,
		Log:               logging.New(logging.Config{Level: "panic", Format: "json", Output: "stdout"}),
		ProjectID:         "acme",
		Verifier:          release.NewVerifier("s3cret"),
		MaxFailedAttempts: 3,
	}
	return o, ledger
}

func TestTickSeedsFreshDocumentAtLowestState(t *testing.T) {
	c := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	o, _ := newTestOrchestrator(t, c, adapters.NewMock("email", true))

	stage, err := o.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "OK", stage)
}

func TestTickEscalatesToRemind1AtSixHours(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(now)
	o, ledger := newTestOrchestrator(t, c, adapters.NewMock("email", true))

	doc := statestore.NewDocument("acme", now.Add(360*time.Minute), "OK", now)
	require.NoError(t, o.Store.Save(doc))

	stage, err := o.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "REMIND_1", stage)

	events, err := ledger.ReadAll()
	require.NoError(t, err)
	var sawTransition, sawReceipt bool
	for _, e := range events {
		if e.Type == audit.KindStateTransition {
			sawTransition = true
		}
		if e.Type == audit.KindActionReceipt {
			sawReceipt = true
		}
	}
	assert.True(t, sawTransition)
	assert.True(t, sawReceipt)
}

func TestSecondTickAtSameInstantIsAFixedPoint(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(now)
	o, ledger := newTestOrchestrator(t, c, adapters.NewMock("email", true))

	doc := statestore.NewDocument("acme", now.Add(360*time.Minute), "OK", now)
	require.NoError(t, o.Store.Save(doc))

	_, err := o.Tick(context.Background())
	require.NoError(t, err)
	countAfterFirst := countEvents(t, ledger, audit.KindActionAttempt)

	stage, err := o.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "REMIND_1", stage, "no further escalation on a repeat tick at the same instant")

	countAfterSecond := countEvents(t, ledger, audit.KindActionAttempt)
	assert.Equal(t, countAfterFirst, countAfterSecond, "idempotency key prevents re-attempting the already-consumed action")
}

func countEvents(t *testing.T, ledger *audit.Ledger, kind audit.Kind) int {
	t.Helper()
	events, err := ledger.ReadAll()
	require.NoError(t, err)
	n := 0
	for _, e := range events {
		if e.Type == kind {
			n++
		}
	}
	return n
}

func TestRenewalResetsStageOnNextTick(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(now)
	o, ledger := newTestOrchestrator(t, c, adapters.NewMock("email", true))

	doc := statestore.NewDocument("acme", now.Add(30*time.Minute), "OK", now)
	doc.Escalation.Stage = "REMIND_2"
	require.NoError(t, o.Store.Save(doc))

	require.NoError(t, o.TriggerRenewal(context.Background(), "s3cret"))

	stage, err := o.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "OK", stage, "a renewal resets the stage to the lowest-order state on the next tick")

	events, err := ledger.ReadAll()
	require.NoError(t, err)
	var sawRenewal bool
	for _, e := range events {
		if e.Type == audit.KindRenewal {
			sawRenewal = true
		}
	}
	assert.True(t, sawRenewal)
}

func TestRenewalClearsAPendingRelease(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(now)
	o, _ := newTestOrchestrator(t, c, adapters.NewMock("email", true))

	doc := statestore.NewDocument("acme", now.Add(30*time.Minute), "OK", now)
	require.NoError(t, o.Store.Save(doc))

	require.NoError(t, o.TriggerRelease(context.Background(), release.Command{
		Secret: "s3cret", TargetStage: "FULL", DelayMinutes: 60, Scope: "full",
	}))

	require.NoError(t, o.TriggerRenewal(context.Background(), "s3cret"))

	loaded, err := o.Store.Load()
	require.NoError(t, err)
	assert.False(t, loaded.Release.Triggered, "a successful renewal clears the pending release at once, without waiting for a tick")
}

func TestDelayedReleaseFiresOnlyOnceDue(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(t0)
	o, ledger := newTestOrchestrator(t, c, adapters.NewMock("email", true))

	doc := statestore.NewDocument("acme", t0.Add(2*time.Hour), "OK", t0)
	require.NoError(t, o.Store.Save(doc))

	require.NoError(t, o.TriggerRelease(context.Background(), release.Command{
		Secret: "s3cret", TargetStage: "FULL", DelayMinutes: 60, Scope: "full",
	}))

	c.Advance(30 * time.Minute)
	stage, err := o.Tick(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "FULL", stage, "release is not due yet at t0+30m")

	c.Advance(31 * time.Minute)
	stage, err = o.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "FULL", stage, "release is due at t0+61m and forces the transition")

	events, err := ledger.ReadAll()
	require.NoError(t, err)
	var sawExecuted bool
	for _, e := range events {
		if e.Type == audit.KindReleaseExecuted {
			sawExecuted = true
		}
	}
	assert.True(t, sawExecuted)

	loaded, err := o.Store.Load()
	require.NoError(t, err)
	assert.False(t, loaded.Release.Triggered, "a fired release clears its triggered flag")
}

func TestCircuitOpensAfterRepeatedFailuresAndRecoversOnSuccess(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(now)
	flaky := &flakyAdapter{name: "email", kinds: []adapters.ReceiptKind{
		adapters.ReceiptFailed, adapters.ReceiptFailed, adapters.ReceiptFailed,
	}}
	o, _ := newTestOrchestrator(t, c, flaky)

	doc := statestore.NewDocument("acme", now.Add(360*time.Minute), "OK", now)
	require.NoError(t, o.Store.Save(doc))

	// First tick escalates to REMIND_1 and the plan action fails 3x across
	// this and the retry-queue drains of subsequent ticks, tripping the
	// breaker (FailureThreshold=3 by default).
	for i := 0; i < 3; i++ {
		_, err := o.Tick(context.Background())
		require.NoError(t, err)
		c.Advance(time.Hour) // past every back-off delay reached here; equal to the 1h cap
	}

	require.Equal(t, reliability.StateOpen, o.Breakers.For("email").State())

	// Let the reset timeout elapse and have the adapter succeed on its
	// half-open trial.
	flaky.kinds = append(flaky.kinds, adapters.ReceiptOK)
	flaky.calls = len(flaky.kinds) - 1
	c.Advance(reliability.DefaultBreakerConfig().ResetTimeout)

	_, err := o.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, reliability.StateClosed, o.Breakers.For("email").State())
}

func TestLockoutRejectsRenewalEvenWithCorrectSecret(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(now)
	o, ledger := newTestOrchestrator(t, c, adapters.NewMock("email", true))

	doc := statestore.NewDocument("acme", now.Add(30*time.Minute), "OK", now)
	doc.Renewal.FailedAttempts = 3
	require.NoError(t, o.Store.Save(doc))

	err := o.TriggerRenewal(context.Background(), "s3cret")

	require.Error(t, err)

	events, err2 := ledger.ReadAll()
	require.NoError(t, err2)
	var sawRejected bool
	for _, e := range events {
		if e.Type == audit.KindRenewalRejected {
			sawRejected = true
		}
	}
	assert.True(t, sawRejected)

	loaded, err := o.Store.Load()
	require.NoError(t, err)
	assert.False(t, loaded.Renewal.RenewedThisTick)
}
