// Package errors is the orchestrator's structured error taxonomy: a
// Reason code, a human message, and an optional wrapped cause.
package errors

import (
	"errors"
	"fmt"
)

// Reason is one of the fixed codes surfaced as a receipt reason or an
// audit event's error field.
type Reason string

const (
	ReasonNotConfigured     Reason = "not_configured"
	ReasonMockMode          Reason = "mock_mode"
	ReasonInvalidArgument   Reason = "invalid_argument"
	ReasonCircuitOpen       Reason = "circuit_open"
	ReasonTimeout           Reason = "timeout"
	ReasonRateLimited       Reason = "rate_limited"
	ReasonUpstreamError     Reason = "upstream_error"
	ReasonTransientError    Reason = "transient_error"
	ReasonAdapterException  Reason = "adapter_exception"
	ReasonCancelled         Reason = "cancelled"
	ReasonLockedOut         Reason = "locked_out"
	ReasonPolicyInvalid     Reason = "policy_invalid"
	ReasonConflictMutation  Reason = "conflicting_mutation"
	ReasonPersistenceFailed Reason = "persistence_failed"
)

// Retryable reports whether a failure with this reason should be pushed
// to the retry queue rather than treated as terminal for the tick.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonTimeout, ReasonRateLimited, ReasonTransientError, ReasonAdapterException:
		return true
	default:
		return false
	}
}

// OrchestratorError carries a Reason alongside the wrapped cause so
// callers can branch on Reason without string-matching Error().
type OrchestratorError struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *OrchestratorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Reason, e.Message)
}

func (e *OrchestratorError) Unwrap() error { return e.Err }

// New builds an OrchestratorError with no wrapped cause.
func New(reason Reason, message string) *OrchestratorError {
	return &OrchestratorError{Reason: reason, Message: message}
}

// Wrap builds an OrchestratorError around an existing error.
func Wrap(reason Reason, message string, err error) *OrchestratorError {
	return &OrchestratorError{Reason: reason, Message: message, Err: err}
}

// ReasonOf extracts the Reason from err if it (or something it wraps) is
// an *OrchestratorError; otherwise returns ReasonAdapterException, the
// catch-all for unclassified failures.
func ReasonOf(err error) Reason {
	var oe *OrchestratorError
	if errors.As(err, &oe) {
		return oe.Reason
	}
	return ReasonAdapterException
}
