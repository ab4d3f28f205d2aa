package telephony

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// SimulatedProvider is an in-process provider for local runs and tests.
// Every call walks through Progression, one step per status fetch, and then
// stays on the last step.
type SimulatedProvider struct {
	Progression []string

	mu    sync.Mutex
	calls map[string]*simulatedCall
}

type simulatedCall struct {
	created CreatedCall
	fetches int
}

var _ Provider = (*SimulatedProvider)(nil)

var defaultProgression = []string{"queued", "ringing", "in-progress", "completed"}

func NewSimulatedProvider(progression ...string) *SimulatedProvider {
	if len(progression) == 0 {
		progression = defaultProgression
	}
	return &SimulatedProvider{Progression: progression, calls: map[string]*simulatedCall{}}
}

func (p *SimulatedProvider) Name() string { return "simulated" }

func (p *SimulatedProvider) HealthCheck(ctx context.Context) error {
	return nil
}

func (p *SimulatedProvider) CreateCall(ctx context.Context, req CreateCallRequest) (CreatedCall, error) {
	if strings.TrimSpace(req.To) == "" {
		return CreatedCall{}, fmt.Errorf("telephony: simulated: destination required")
	}
	c := CreatedCall{
		SID:    "CA" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Status: p.Progression[0],
		To:     req.To,
		From:   req.From,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = map[string]*simulatedCall{}
	}
	p.calls[c.SID] = &simulatedCall{created: c}
	return c, nil
}

func (p *SimulatedProvider) FetchCallStatus(ctx context.Context, callSID string) (CallStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.calls[callSID]
	if !ok {
		return CallStatus{}, fmt.Errorf("telephony: simulated: unknown call %q", callSID)
	}
	step := c.fetches
	if step >= len(p.Progression) {
		step = len(p.Progression) - 1
	}
	c.fetches++
	return CallStatus{SID: callSID, Status: p.Progression[step], Direction: "outbound-api"}, nil
}
