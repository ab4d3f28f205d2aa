package session

import "call-agent/internal/calls"

// Phase is the polling state of the current handle.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhasePolling Phase = "polling"
	PhaseSettled Phase = "settled"
)

// Snapshot is a point-in-time copy of the session. It shares no memory with
// the session and is safe to hand to observers.
type Snapshot struct {
	Script        string         `json:"script"`
	Handle        *calls.Handle  `json:"handle,omitempty"`
	Status        calls.Status   `json:"status,omitempty"`
	Timeline      calls.Timeline `json:"timeline"`
	Phase         Phase          `json:"phase"`
	ScriptError   string         `json:"scriptError,omitempty"`
	CallError     string         `json:"callError,omitempty"`
	StatusWarning string         `json:"statusWarning,omitempty"`
	Generating    bool           `json:"generating"`
	Starting      bool           `json:"starting"`
}

// CallOptions is what the caller supplies to launch a call; the script comes
// from the session.
type CallOptions struct {
	To       string `json:"toNumber"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
	Record   bool   `json:"record,omitempty"`
}
