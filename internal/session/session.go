// Package session holds the client-visible call workflow state: the current
// script, the active call handle with its status timeline, and the error slots
// of each user action.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"call-agent/internal/apperr"
	"call-agent/internal/audit"
	"call-agent/internal/calls"
	"call-agent/internal/poller"
	"call-agent/internal/script"
)

var ErrClosed = errors.New("session: closed")

type ScriptGenerator interface {
	Generate(ctx context.Context, b script.Brief) (string, error)
}

type CallStarter interface {
	Start(ctx context.Context, req calls.Request) (calls.Handle, error)
}

type Watcher interface {
	Watch(ctx context.Context, sid string, sink poller.Sink) *poller.Subscription
}

type Config struct {
	Scripts ScriptGenerator
	Calls   CallStarter
	Poller  Watcher

	// Audit is optional.
	Audit *audit.Service
	Log   *slog.Logger
}

// Session is safe for concurrent use. Every mutation happens under mu;
// collaborator calls are made without it.
type Session struct {
	scripts ScriptGenerator
	starter CallStarter
	watcher Watcher
	audit   *audit.Service
	log     *slog.Logger
	now     func() time.Time

	// base scopes every polling subscription; cancelled by Close.
	base   context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	script     string
	handle     *calls.Handle
	timeline   calls.Timeline
	scriptErr  string
	callErr    string
	warning    string
	lastSeq    int
	generating bool
	starting   bool
	sub        *poller.Subscription
	observers  map[int]chan Snapshot
	nextID     int
	closed     bool
}

func New(cfg Config) (*Session, error) {
	if cfg.Scripts == nil || cfg.Calls == nil || cfg.Poller == nil {
		return nil, errors.New("session: scripts, calls and poller are required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Session{
		scripts:   cfg.Scripts,
		starter:   cfg.Calls,
		watcher:   cfg.Poller,
		audit:     cfg.Audit,
		log:       log,
		now:       time.Now,
		lastSeq:   -1,
		base:      base,
		cancel:    cancel,
		observers: make(map[int]chan Snapshot),
	}, nil
}

// GenerateScript asks the generator for a script. On success the session
// script is replaced; on failure ScriptError is set and the script is kept.
func (s *Session) GenerateScript(ctx context.Context, b script.Brief) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.scriptErr = ""
	s.generating = true
	s.notifyLocked()
	s.mu.Unlock()

	text, err := s.scripts.Generate(ctx, b)

	s.mu.Lock()
	s.generating = false
	if err != nil {
		s.scriptErr = apperr.ScriptMessage(err)
	} else {
		s.script = text
	}
	s.notifyLocked()
	s.mu.Unlock()

	if err != nil {
		s.recordScript(ctx, audit.EventTypeScriptFailed, err.Error())
		return err
	}
	s.recordScript(ctx, audit.EventTypeScriptGenerated, "")
	return nil
}

// SetScript overrides the current script.
func (s *Session) SetScript(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = text
	s.notifyLocked()
}

// StartCall launches a call with the current script. A failed launch leaves
// the previous handle, its timeline and its polling untouched.
func (s *Session) StartCall(ctx context.Context, opts CallOptions) (calls.Handle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return calls.Handle{}, ErrClosed
	}
	s.callErr = ""
	s.starting = true
	text := s.script
	s.notifyLocked()
	s.mu.Unlock()

	h, err := s.starter.Start(ctx, calls.Request{
		To:       opts.To,
		Script:   text,
		Voice:    opts.Voice,
		Language: opts.Language,
		Record:   opts.Record,
	})

	s.mu.Lock()
	s.starting = false
	if err != nil {
		s.callErr = apperr.CallMessage(err)
		s.notifyLocked()
		s.mu.Unlock()
		s.recordCall(ctx, audit.EventTypeCallFailed, "", opts.To, "", err.Error())
		return calls.Handle{}, err
	}

	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	handle := h
	s.handle = &handle
	s.timeline = calls.FoldStatus(nil, string(h.Status), s.now())
	s.lastSeq = -1
	s.warning = ""
	settled := s.timeline.Settled()
	if !settled && !s.closed {
		s.sub = s.watcher.Watch(s.base, h.SID, s)
	}
	s.notifyLocked()
	s.mu.Unlock()

	s.recordCall(ctx, audit.EventTypeCallStarted, h.SID, h.To, string(h.Status), "")
	if settled {
		s.recordCall(ctx, audit.EventTypeCallSettled, h.SID, "", string(h.Status), "")
	}
	return h, nil
}

// ObserveStatus implements poller.Sink. Results from a cancelled or superseded
// subscription are dropped.
func (s *Session) ObserveStatus(tok *poller.Token, status calls.Status, at time.Time) {
	s.mu.Lock()
	if !s.currentLocked(tok) {
		s.mu.Unlock()
		return
	}
	sid := s.handle.SID
	changed, settled := s.foldLocked(status, at)
	s.warning = ""
	if settled {
		s.sub = nil
	}
	s.notifyLocked()
	s.mu.Unlock()

	s.recordFold(sid, status, changed, settled)
}

// RefreshFailed implements poller.Sink. The failure is a warning only;
// CallError is reserved for launch failures.
func (s *Session) RefreshFailed(tok *poller.Token, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(tok) {
		return
	}
	s.warning = apperr.MsgStatusRefresh
	s.notifyLocked()
}

// ObserveCallback folds a status pushed by the provider. Callbacks arrive
// unordered: one at or below the last applied seq is dropped, and so is a
// live status that ranks below the latest one. It reports whether the status
// was applied to the current unsettled call.
func (s *Session) ObserveCallback(sid, status string, seq int) bool {
	s.mu.Lock()
	if s.handle == nil || s.handle.SID != sid || s.timeline.Settled() {
		s.mu.Unlock()
		return false
	}
	if seq >= 0 {
		if seq <= s.lastSeq {
			s.mu.Unlock()
			return false
		}
		s.lastSeq = seq
	}
	st := calls.NormalizeStatus(status)
	if last, ok := s.timeline.Last(); ok && !st.IsTerminal() && st.Rank() < last.Status.Rank() {
		s.mu.Unlock()
		return false
	}
	changed, settled := s.foldLocked(st, s.now())
	if settled && s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	s.notifyLocked()
	s.mu.Unlock()

	s.recordFold(sid, st, changed, settled)
	return true
}

// Reset cancels polling and forgets the script, the call and every error.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	s.script = ""
	s.handle = nil
	s.timeline = nil
	s.lastSeq = -1
	s.scriptErr, s.callErr, s.warning = "", "", ""
	s.notifyLocked()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives a snapshot after every change,
// starting with the current state. Slow readers miss intermediate snapshots
// but always receive the latest one.
// The returned func unsubscribes and closes the channel.
func (s *Session) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.observers[id] = ch
	ch <- s.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.observers[id]; ok {
				delete(s.observers, id)
				close(c)
			}
		})
	}
}

// Close cancels polling and closes every observer channel. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	s.cancel()
	for id, ch := range s.observers {
		delete(s.observers, id)
		close(ch)
	}
}

func (s *Session) currentLocked(tok *poller.Token) bool {
	return tok != nil && !tok.Cancelled() && s.sub != nil && s.sub.Token() == tok &&
		s.handle != nil && s.handle.SID == tok.SID()
}

func (s *Session) foldLocked(st calls.Status, at time.Time) (changed, settled bool) {
	before := len(s.timeline)
	s.timeline = calls.FoldStatus(s.timeline, string(st), at)
	return len(s.timeline) != before, s.timeline.Settled()
}

func (s *Session) phaseLocked() Phase {
	switch {
	case s.timeline.Settled():
		return PhaseSettled
	case s.sub != nil:
		return PhasePolling
	default:
		return PhaseIdle
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Script:        s.script,
		Phase:         s.phaseLocked(),
		ScriptError:   s.scriptErr,
		CallError:     s.callErr,
		StatusWarning: s.warning,
		Generating:    s.generating,
		Starting:      s.starting,
	}
	if s.handle != nil {
		h := *s.handle
		snap.Handle = &h
	}
	if last, ok := s.timeline.Last(); ok {
		snap.Status = last.Status
	}
	snap.Timeline = append(calls.Timeline{}, s.timeline...)
	return snap
}

func (s *Session) notifyLocked() {
	if len(s.observers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.observers {
		select {
		case ch <- snap:
		default:
			// Full: replace the oldest pending snapshot.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (s *Session) recordFold(sid string, st calls.Status, changed, settled bool) {
	ctx := context.Background()
	if changed {
		s.recordCall(ctx, audit.EventTypeCallStatus, sid, "", string(st), "")
	}
	if changed && settled {
		s.recordCall(ctx, audit.EventTypeCallSettled, sid, "", string(st), "")
	}
}

// recordCall and recordScript are best-effort.
func (s *Session) recordCall(ctx context.Context, typ audit.EventType, sid, to, status, msg string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogCall(context.WithoutCancel(ctx), typ, sid, to, status, msg); err != nil {
		s.log.Warn("audit append failed", "type", string(typ), "err", err)
	}
}

func (s *Session) recordScript(ctx context.Context, typ audit.EventType, msg string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogScript(context.WithoutCancel(ctx), typ, msg); err != nil {
		s.log.Warn("audit append failed", "type", string(typ), "err", err)
	}
}
