package poller

import (
	"context"
	"sync/atomic"
)

// Token is the cooperative cancellation flag of one subscription. The poll
// loop checks it before every fetch, and sinks check it before every state
// mutation, so an in-flight fetch for a superseded call can never land.
type Token struct {
	sid       string
	cancelled atomic.Bool
	cancel    context.CancelFunc
}

// SID is the call this token belongs to.
func (t *Token) SID() string { return t.sid }

func (t *Token) Cancelled() bool { return t.cancelled.Load() }

// Cancel sets the flag before cancelling the context so that a fetch which
// returns because of the cancellation always observes the flag.
func (t *Token) Cancel() {
	if t.cancelled.Swap(true) {
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
}
