package adapters

import (
	"context"
	"time"
)

// Mock is an adapter that never performs I/O. It serves only actions
// whose plan names it as their adapter: it is not substituted for a
// channel whose own adapter is missing or unconfigured (the executor
// reports those as skipped/not_configured), and its GlobalMockMode flag
// affects this adapter alone, not the other registered adapters.
type Mock struct {
	name    string
	enabled bool
	// GlobalMockMode, when true, makes Execute report kind=skipped with
	// reason=mock_mode instead of ok, modelling the "dry run" posture
	// used in staging environments.
	GlobalMockMode bool
}

// NewMock returns a Mock adapter registered under name. enabled controls
// IsEnabled; a disabled mock reports not_configured rather than
// mock_mode, matching the distinction the operator surface must make.
func NewMock(name string, enabled bool) *Mock {
	return &Mock{name: name, enabled: enabled}
}

func (m *Mock) Name() string { return m.name }

func (m *Mock) IsEnabled(ctx context.Context) bool { return m.enabled }

func (m *Mock) Validate(ctx context.Context) (bool, string) {
	if !m.enabled {
		return false, "not_configured"
	}
	return true, ""
}

func (m *Mock) Execute(ctx ExecutionContext) Receipt {
	now := time.Now().UTC()
	if m.GlobalMockMode {
		return Receipt{Kind: ReceiptSkipped, Adapter: m.name, ActionID: ctx.ActionID, Reason: "mock_mode", At: now}
	}
	return Receipt{Kind: ReceiptOK, Adapter: m.name, ActionID: ctx.ActionID, DeliveryID: "mock-" + ctx.ActionID, At: now}
}
