// Package audit implements the append-only, line-delimited event log
// that is the canonical history of the system.
package audit

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	coerrors "github.com/cyberpunk042/continuity-orchestrator-sub000/internal/errors"
)

// Kind enumerates the fixed set of audit event types.
type Kind string

const (
	KindTickStart        Kind = "tick_start"
	KindTickEnd          Kind = "tick_end"
	KindTickAborted      Kind = "tick_aborted"
	KindRuleMatched      Kind = "rule_matched"
	KindStateTransition  Kind = "state_transition"
	KindActionAttempt    Kind = "action_attempt"
	KindActionReceipt    Kind = "action_receipt"
	KindActionDropped    Kind = "action_dropped"
	KindRenewal          Kind = "renewal"
	KindRenewalRejected  Kind = "renewal_rejected"
	KindReleaseTriggered Kind = "release_triggered"
	KindReleaseRejected  Kind = "release_rejected"
	KindReleaseExecuted  Kind = "release_executed"
	KindFactoryReset     Kind = "factory_reset"
)

// Event is one line of the ledger. Payload carries event-specific fields
// and is marshalled as a nested object under the "payload" key.
type Event struct {
	EventID string                 `json:"event_id"`
	TickID  string                 `json:"tick_id"`
	TsISO   time.Time              `json:"ts_iso"`
	Type    Kind                   `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Ledger appends Events to a line-delimited JSON file, relying on
// O_APPEND semantics for crash-safe, write-order-preserving appends.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// Open returns a Ledger backed by the file at path, creating it if
// necessary.
func Open(path string) (*Ledger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, coerrors.Wrap(coerrors.ReasonPersistenceFailed, "open audit ledger", err)
	}
	f.Close()
	return &Ledger{path: path}, nil
}

// Append writes one event, always assigning it a fresh event id and the
// current UTC timestamp. Appends are serialized by a mutex in addition to relying on
// O_APPEND, since by contract only the current tick writes but the mutex
// keeps same-process callers (e.g. a release command racing a tick
// abort path) from interleaving partial writes.
func (l *Ledger) Append(tickID string, kind Kind, payload map[string]interface{}) (Event, error) {
	ev := Event{
		EventID: uuid.NewString(),
		TickID:  tickID,
		TsISO:   time.Now().UTC(),
		Type:    kind,
		Payload: payload,
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return Event{}, coerrors.Wrap(coerrors.ReasonPersistenceFailed, "marshal audit event", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return Event{}, coerrors.Wrap(coerrors.ReasonPersistenceFailed, "open audit ledger for append", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return Event{}, coerrors.Wrap(coerrors.ReasonPersistenceFailed, "append audit event", err)
	}
	return ev, nil
}

// ReadAll loads every event currently in the ledger, in append order.
// Intended for tests and operator inspection, not the hot tick path.
func (l *Ledger) ReadAll() ([]Event, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, coerrors.Wrap(coerrors.ReasonPersistenceFailed, "read audit ledger", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	var events []Event
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			break
		}
		events = append(events, ev)
	}
	return events, nil
}
