// Package reliability implements the circuit breaker and retry queue
// that isolate adapter faults from the rest of a tick.
package reliability

import (
	"sync"
	"time"

	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/clock"
)

// BreakerState is one of the three circuit breaker states.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures one adapter's circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int
}

// DefaultBreakerConfig mirrors the defaults used across the pack's
// resilience packages.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Breaker is a per-adapter fault isolator. Unlike a generic Execute(fn)
// wrapper, the Executor calls Allow/RecordSuccess/RecordFailure directly
// because an open breaker must itself produce a `deferred` receipt
// rather than run a function.
type Breaker struct {
	mu           sync.Mutex
	cfg          BreakerConfig
	clk          clock.Clock
	state        BreakerState
	failures     int
	lastFailure  time.Time
	halfOpenInFlight int
}

// NewBreaker returns a Breaker in the closed state.
func NewBreaker(cfg BreakerConfig, clk clock.Clock) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	return &Breaker{cfg: cfg, clk: clk, state: StateClosed}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. If the breaker is open and
// ResetTimeout has elapsed, it transitions to half-open and allows the
// call as a trial.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.clk.Now().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
			b.setState(StateHalfOpen)
			b.halfOpenInFlight = 1
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenInFlight++
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker. In half-open, any single success is
// sufficient to close — the spec does not require HalfOpenMaxCalls
// consecutive successes, just a successful trial.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.setState(StateClosed)
	case StateClosed:
		b.failures = 0
	}
}

// RecordFailure moves a half-open breaker back to open immediately, and
// opens a closed breaker once FailureThreshold consecutive failures
// accumulate.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.clk.Now()
	switch b.state {
	case StateHalfOpen:
		b.setState(StateOpen)
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.setState(StateOpen)
		}
	}
}

func (b *Breaker) setState(s BreakerState) {
	b.state = s
	b.failures = 0
	b.halfOpenInFlight = 0
}

// Manager owns one Breaker per adapter name, constructed lazily with a
// shared config.
type Manager struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	clk      clock.Clock
	breakers map[string]*Breaker
}

// NewManager returns a Manager using cfg for every adapter's breaker.
func NewManager(cfg BreakerConfig, clk clock.Clock) *Manager {
	return &Manager{cfg: cfg, clk: clk, breakers: map[string]*Breaker{}}
}

// For returns the Breaker for the named adapter, creating it on first
// use.
func (m *Manager) For(adapter string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[adapter]
	if !ok {
		b = NewBreaker(m.cfg, m.clk)
		m.breakers[adapter] = b
	}
	return b
}
