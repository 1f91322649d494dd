// Package adapters defines the narrow capability-set contract every
// side-effecting integration (email, SMS, social, webhook, static-site
// publish, archiving, mirror, mock) must satisfy, and the registry that
// resolves adapters by name.
package adapters

import (
	"context"
	"time"
)

// ReceiptKind is one of the four adapter outcomes.
type ReceiptKind string

const (
	ReceiptOK       ReceiptKind = "ok"
	ReceiptSkipped  ReceiptKind = "skipped"
	ReceiptFailed   ReceiptKind = "failed"
	ReceiptDeferred ReceiptKind = "deferred"
)

// Receipt is the structured outcome of one adapter invocation.
type Receipt struct {
	Kind       ReceiptKind
	Adapter    string
	ActionID   string
	Key        string
	DeliveryID string
	Reason     string
	At         time.Time
}

// ExecutionContext is everything an adapter needs to perform one
// side-effect, built fresh by the Executor for each action. Adapters
// must never mutate it.
type ExecutionContext struct {
	Context     context.Context
	ActionID    string
	Channel     string
	Content     string
	Routing     []string
	Constraints map[string]string
}

// Adapter is the contract every integration satisfies. Implementations
// must be safe for concurrent use across different ExecutionContexts.
type Adapter interface {
	Name() string
	IsEnabled(ctx context.Context) bool
	Validate(ctx context.Context) (ok bool, reason string)
	Execute(ctx ExecutionContext) Receipt
}

// Registry resolves adapters by name and reports, per adapter, the
// result of IsEnabled (in both the Enabled and Configured fields of its
// status report). The report does not mark which adapters are mocks.
type Registry struct {
	byName map[string]Adapter
}

// NewRegistry builds a Registry from a fixed set of adapters, constructed
// once at process startup by the composition root and never mutated
// afterwards.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byName: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.byName[a.Name()] = a
	}
	return r
}

// Get resolves an adapter by name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Names returns every registered adapter name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}

// Status summarizes one adapter's configuration state for the operator
// surface.
type Status struct {
	Name      string
	Enabled   bool
	Configured bool
}

// StatusReport returns a Status for every registered adapter.
func (r *Registry) StatusReport(ctx context.Context) []Status {
	out := make([]Status, 0, len(r.byName))
	for name, a := range r.byName {
		out = append(out, Status{
			Name:       name,
			Enabled:    a.IsEnabled(ctx),
			Configured: a.IsEnabled(ctx),
		})
	}
	return out
}
