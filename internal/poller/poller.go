// Package poller follows one call's status on a fixed cadence until the call
// reaches a terminal state or the subscription is cancelled.
package poller

import (
	"context"
	"log/slog"
	"time"

	"call-agent/internal/apperr"
	"call-agent/internal/calls"
	"call-agent/internal/telephony"
)

const (
	DefaultInterval = 5 * time.Second

	opRefresh = "poller.refresh"
)

// Sink receives the results of a subscription. Implementations must ignore
// calls whose token is cancelled.
type Sink interface {
	ObserveStatus(tok *Token, status calls.Status, at time.Time)
	RefreshFailed(tok *Token, err error)
}

type Engine struct {
	fetcher  telephony.StatusFetcher
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

func NewEngine(fetcher telephony.StatusFetcher, interval time.Duration, log *slog.Logger) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{fetcher: fetcher, interval: interval, log: log, now: time.Now}
}

func (e *Engine) Interval() time.Duration { return e.interval }

// Subscription is one running poll loop.
type Subscription struct {
	token *Token
	done  chan struct{}
}

func (s *Subscription) Token() *Token { return s.token }

// Cancel stops the loop. It does not wait for an in-flight fetch.
func (s *Subscription) Cancel() { s.token.Cancel() }

// Done is closed when the loop has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Watch starts polling sid immediately and returns the subscription.
func (e *Engine) Watch(ctx context.Context, sid string, sink Sink) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	tok := &Token{sid: sid, cancel: cancel}
	sub := &Subscription{token: tok, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer cancel()
		e.run(ctx, tok, sink)
	}()
	return sub
}

func (e *Engine) run(ctx context.Context, tok *Token, sink Sink) {
	log := e.log.With("call_sid", tok.sid)
	log.Debug("status polling started", "interval", e.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	fetches := 0
	for {
		select {
		case <-ctx.Done():
			log.Debug("status polling cancelled", "fetches", fetches)
			return
		case <-timer.C:
		}
		if tok.Cancelled() {
			return
		}

		res, err := e.fetcher.FetchCallStatus(ctx, tok.sid)
		fetches++
		if tok.Cancelled() || ctx.Err() != nil {
			log.Debug("status polling cancelled", "fetches", fetches)
			return
		}

		if err != nil {
			log.Warn("call status refresh failed", "err", err)
			sink.RefreshFailed(tok, apperr.StatusRefresh(opRefresh, err))
		} else {
			st := calls.NormalizeStatus(res.Status)
			sink.ObserveStatus(tok, st, e.now())
			if st.IsTerminal() {
				log.Info("call settled", "status", st, "fetches", fetches)
				return
			}
		}
		timer.Reset(e.interval)
	}
}
