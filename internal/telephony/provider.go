package telephony

import (
	"context"
	"time"
)

// Provider is the provider-agnostic telephony contract used by call initiation
// and status polling.
//
// Rules:
// - No provider HTTP calls outside telephony adapters.
// - Request/response types stay provider-agnostic; statuses are passed through
//   as the provider reports them and normalized by internal/calls.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	CallCreator
	StatusFetcher
}

// CallCreator places an outbound call. Implementations must not retry:
// every successful request is a real call.
type CallCreator interface {
	CreateCall(ctx context.Context, req CreateCallRequest) (CreatedCall, error)
}

// StatusFetcher reads the current state of a call. Safe to repeat.
type StatusFetcher interface {
	FetchCallStatus(ctx context.Context, callSID string) (CallStatus, error)
}

// CreateCallRequest describes an outbound call. To and From are E.164 where possible.
type CreateCallRequest struct {
	To   string `json:"to"`
	From string `json:"from"`

	// Twiml is the inline voice document spoken to the callee.
	Twiml string `json:"twiml"`

	Record bool `json:"record"`

	// StatusCallback is optional; when set the provider posts status changes to it.
	StatusCallback string `json:"status_callback,omitempty"`
}

// CreatedCall is the provider's answer to a successful CreateCall.
type CreatedCall struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
	To     string `json:"to"`
	From   string `json:"from"`
}

// CallStatus is a point-in-time read of a call.
type CallStatus struct {
	SID       string `json:"sid,omitempty"`
	Status    string `json:"status"`
	Direction string `json:"direction"`

	// Duration is the provider's duration in seconds, empty while the call is live.
	Duration string `json:"duration"`

	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
}
