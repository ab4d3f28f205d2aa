package audit

import "time"

// Event is an immutable, append-only record of a call lifecycle step.
//
// Invariants:
// - Events are never updated or deleted.
// - Audit is best-effort; do not block call flows on audit failures.
// - Events are an operational trail only; nothing reads them back to rebuild
//   session state.

type Event struct {
	ID string `json:"id"`

	// Type indicates the lifecycle step.
	Type EventType `json:"type"`

	// CallSID is set once the provider has accepted the call.
	CallSID string `json:"call_sid,omitempty"`
	To      string `json:"to,omitempty"`
	Status  string `json:"status,omitempty"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeScriptGenerated EventType = "script_generated"
	EventTypeScriptFailed    EventType = "script_failed"
	EventTypeCallStarted     EventType = "call_started"
	EventTypeCallFailed      EventType = "call_failed"
	EventTypeCallStatus      EventType = "call_status"
	EventTypeCallSettled     EventType = "call_settled"
)
