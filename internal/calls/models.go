package calls

import (
	"strings"
	"time"
)

// Request is a validated outbound call: where to call and what to say.
type Request struct {
	To       string `json:"toNumber"`
	Script   string `json:"script"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
	Record   bool   `json:"record,omitempty"`
}

// Handle is created once per successful initiation. SID keys every later
// status query; Status is the provider's status at creation time.
type Handle struct {
	SID    string `json:"callSid"`
	Status Status `json:"status"`
	To     string `json:"to"`
	From   string `json:"from"`
}

// Status is a normalized (trimmed, lowercase) provider call status.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInitiated  Status = "initiated"
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
	StatusBusy       Status = "busy"
	StatusFailed     Status = "failed"
	StatusNoAnswer   Status = "no-answer"
)

// NormalizeStatus lowercases and trims a provider status.
func NormalizeStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

// IsTerminal reports whether the call lifecycle is over.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCanceled, StatusBusy, StatusFailed, StatusNoAnswer:
		return true
	default:
		return false
	}
}

// Rank orders statuses along the call lifecycle. Terminal statuses share the
// highest rank; unknown statuses rank 0.
func (s Status) Rank() int {
	switch s {
	case StatusQueued:
		return 1
	case StatusInitiated:
		return 2
	case StatusRinging:
		return 3
	case StatusInProgress:
		return 4
	}
	if s.IsTerminal() {
		return 5
	}
	return 0
}

// StatusEntry is one observed status change.
type StatusEntry struct {
	Status Status    `json:"status"`
	At     time.Time `json:"timestamp"`
}
