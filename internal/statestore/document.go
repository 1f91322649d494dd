// Package statestore defines the persisted state document and the
// file-backed, lock-protected store that owns it.
package statestore

import "time"

// Document is the single logical record the orchestrator owns for the
// duration of a tick. Field names are normative: this struct is the
// on-disk JSON schema.
type Document struct {
	Meta       Meta       `json:"meta"`
	Timer      Timer      `json:"timer"`
	Escalation Escalation `json:"escalation"`
	Renewal    Renewal    `json:"renewal"`
	Release    Release    `json:"release"`
	Actions    Actions    `json:"actions"`
	Routing    Routing    `json:"routing"`
	RetryQueue []RetryEntry `json:"retry_queue"`
}

type Meta struct {
	ProjectID     string    `json:"project_id"`
	SchemaVersion int       `json:"schema_version"`
	LastUpdated   time.Time `json:"last_updated"`
	PolicyVersion int       `json:"policy_version"`
	CreatedAt     time.Time `json:"created_at"`
}

type Timer struct {
	Deadline      time.Time `json:"deadline"`
	GraceMinutes  int       `json:"grace_minutes,omitempty"`
}

type Escalation struct {
	Stage          string    `json:"stage"`
	StageEnteredAt time.Time `json:"stage_entered_at"`
	PreviousStage  string    `json:"previous_stage,omitempty"`
}

type Renewal struct {
	LastRenewalAt   time.Time `json:"last_renewal_at"`
	RenewedThisTick bool      `json:"renewed_this_tick"`
	FailedAttempts  int       `json:"failed_attempts"`
}

type Release struct {
	Triggered    bool      `json:"triggered"`
	TriggerTime  time.Time `json:"trigger_time,omitempty"`
	ExecuteAfter time.Time `json:"execute_after,omitempty"`
	TargetStage  string    `json:"target_stage,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	Nonce        string    `json:"nonce,omitempty"`
}

// ReceiptSummary is the folded-down record of the most recent receipt for
// an idempotency key, stored in Document.Actions.Executed.
type ReceiptSummary struct {
	Kind       string    `json:"kind"`
	Adapter    string    `json:"adapter"`
	DeliveryID string    `json:"delivery_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

type Actions struct {
	// Executed maps an idempotency key (stage|action_id|stage_entered_at)
	// to the receipt summary that consumed it.
	Executed map[string]ReceiptSummary `json:"executed"`
}

type Routing struct {
	Operator    string `json:"operator,omitempty"`
	Custodians  []string `json:"custodians,omitempty"`
	Subscribers []string `json:"subscribers,omitempty"`
	Enabled     bool     `json:"enabled"`
}

// RetryEntry is one pending retry-queue item, persisted alongside state.
type RetryEntry struct {
	Key          string    `json:"key"`
	ActionID     string    `json:"action_id"`
	Adapter      string    `json:"adapter"`
	Stage        string    `json:"stage"`
	NextAttempt  time.Time `json:"next_attempt"`
	AttemptCount int       `json:"attempt_count"`
	LastError    string    `json:"last_error,omitempty"`
	SchemaVersion int      `json:"schema_version"`
}

// IdempotencyKey formats the canonical (stage, action_id, stage_entered_at)
// tuple used to dedupe action execution.
func IdempotencyKey(stage, actionID string, stageEnteredAt time.Time) string {
	return stage + "|" + actionID + "|" + stageEnteredAt.UTC().Format(time.RFC3339Nano)
}

// NewDocument returns a zero-value document seeded with sane defaults,
// used when no state file exists yet.
func NewDocument(projectID string, deadline time.Time, lowestStage string, now time.Time) *Document {
	return &Document{
		Meta: Meta{
			ProjectID:     projectID,
			SchemaVersion: CurrentSchemaVersion,
			LastUpdated:   now,
			CreatedAt:     now,
		},
		Timer: Timer{Deadline: deadline},
		Escalation: Escalation{
			Stage:          lowestStage,
			StageEnteredAt: now,
		},
		Actions: Actions{Executed: map[string]ReceiptSummary{}},
		Routing: Routing{Enabled: true},
	}
}

// CurrentSchemaVersion is the schema version written by this build.
const CurrentSchemaVersion = 1
