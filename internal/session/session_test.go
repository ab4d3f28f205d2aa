package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"call-agent/internal/apperr"
	"call-agent/internal/audit"
	"call-agent/internal/calls"
	"call-agent/internal/poller"
	"call-agent/internal/script"
	"call-agent/internal/telephony"
)

type fakeScripts struct {
	text string
	err  error
}

func (f *fakeScripts) Generate(_ context.Context, b script.Brief) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}
	return f.text, f.err
}

type fakeStarter struct {
	mu      sync.Mutex
	handles []calls.Handle
	err     error
	reqs    []calls.Request
}

func (f *fakeStarter) Start(_ context.Context, req calls.Request) (calls.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if err := req.Validate(); err != nil {
		return calls.Handle{}, err
	}
	if f.err != nil {
		return calls.Handle{}, f.err
	}
	h := f.handles[0]
	f.handles = f.handles[1:]
	return h, nil
}

// sidFetcher serves a scripted status sequence per sid and repeats the last
// one. A sid with a gate blocks until the gate is closed, ignoring ctx.
type sidFetcher struct {
	mu      sync.Mutex
	seq     map[string][]string
	pos     map[string]int
	fail    map[string]int
	gates   map[string]chan struct{}
	started chan string
}

func newSidFetcher() *sidFetcher {
	return &sidFetcher{
		seq:     map[string][]string{},
		pos:     map[string]int{},
		fail:    map[string]int{},
		gates:   map[string]chan struct{}{},
		started: make(chan string, 16),
	}
}

func (f *sidFetcher) FetchCallStatus(ctx context.Context, sid string) (telephony.CallStatus, error) {
	f.mu.Lock()
	gate := f.gates[sid]
	f.mu.Unlock()

	select {
	case f.started <- sid:
	default:
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[sid] > 0 {
		f.fail[sid]--
		return telephony.CallStatus{}, errors.New("twilio: 503")
	}
	seq := f.seq[sid]
	i := f.pos[sid]
	if i >= len(seq) {
		i = len(seq) - 1
	}
	f.pos[sid]++
	return telephony.CallStatus{SID: sid, Status: seq[i]}, nil
}

type fixture struct {
	sess    *Session
	scripts *fakeScripts
	starter *fakeStarter
	fetcher *sidFetcher
	audit   *audit.MemoryRepo
}

func newFixture(t *testing.T, interval time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		scripts: &fakeScripts{text: "Agent: Hi Jordan."},
		starter: &fakeStarter{},
		fetcher: newSidFetcher(),
		audit:   audit.NewMemoryRepo(100),
	}
	sess, err := New(Config{
		Scripts: f.scripts,
		Calls:   f.starter,
		Poller:  poller.NewEngine(f.fetcher, interval, nil),
		Audit:   audit.NewService(f.audit),
	})
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	f.sess = sess
	return f
}

func statuses(tl calls.Timeline) []calls.Status {
	out := make([]calls.Status, 0, len(tl))
	for _, e := range tl {
		out = append(out, e.Status)
	}
	return out
}

func validBrief() script.Brief {
	return script.Brief{CustomerName: "Jordan", Goal: "Book a demo", Product: "Nimbus CRM"}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestGenerateScript_SetsScript(t *testing.T) {
	f := newFixture(t, time.Hour)

	require.NoError(t, f.sess.GenerateScript(context.Background(), validBrief()))

	snap := f.sess.Snapshot()
	require.Equal(t, "Agent: Hi Jordan.", snap.Script)
	require.Empty(t, snap.ScriptError)
	require.False(t, snap.Generating)
}

func TestGenerateScript_ErrorMessages(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.sess.SetScript("Agent: keep me")

	err := f.sess.GenerateScript(context.Background(), script.Brief{CustomerName: "Jordan"})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
	require.Equal(t, apperr.MsgScriptInvalid, f.sess.Snapshot().ScriptError)

	f.scripts.err = apperr.Provider("script.generate", errors.New("401"))
	err = f.sess.GenerateScript(context.Background(), validBrief())
	require.Error(t, err)
	snap := f.sess.Snapshot()
	require.Equal(t, apperr.MsgScriptFailed, snap.ScriptError)
	require.Equal(t, "Agent: keep me", snap.Script)

	f.scripts.err = nil
	require.NoError(t, f.sess.GenerateScript(context.Background(), validBrief()))
	require.Empty(t, f.sess.Snapshot().ScriptError)
}

func TestStartCall_ProviderFailureLeavesPollingIdle(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.scripts.err = errors.New("boom")
	_ = f.sess.GenerateScript(context.Background(), validBrief())
	f.sess.SetScript("Agent: Hi there")
	f.starter.err = apperr.Provider("calls.start", errors.New("dial tcp: connection refused"))

	_, err := f.sess.StartCall(context.Background(), CallOptions{To: "+14155550123"})
	require.Error(t, err)

	snap := f.sess.Snapshot()
	require.Equal(t, apperr.MsgCallFailed, snap.CallError)
	require.Equal(t, apperr.MsgScriptFailed, snap.ScriptError)
	require.Nil(t, snap.Handle)
	require.Empty(t, snap.Timeline)
	require.Equal(t, PhaseIdle, snap.Phase)

	evs := f.audit.Events()
	require.Equal(t, audit.EventTypeCallFailed, evs[len(evs)-1].Type)
}

func TestStartCall_ValidationMessage(t *testing.T) {
	f := newFixture(t, time.Hour)

	_, err := f.sess.StartCall(context.Background(), CallOptions{To: "+14155550123"})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
	require.Equal(t, apperr.MsgCallInvalid, f.sess.Snapshot().CallError)
}

func TestStartCall_PassesScriptAndOptions(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.sess.SetScript("Agent: Hi there")
	f.starter.handles = []calls.Handle{{SID: "CA1", Status: calls.StatusCompleted}}

	_, err := f.sess.StartCall(context.Background(), CallOptions{To: "+14155550123", Voice: "alice", Language: "en-GB", Record: true})
	require.NoError(t, err)
	require.Equal(t, calls.Request{To: "+14155550123", Script: "Agent: Hi there", Voice: "alice", Language: "en-GB", Record: true}, f.starter.reqs[0])
}

func TestStartCall_PollsUntilSettled(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond)
	f.sess.SetScript("Agent: Hi there")
	f.starter.handles = []calls.Handle{{SID: "CA1", Status: calls.StatusQueued}}
	f.fetcher.seq["CA1"] = []string{"queued", "queued", "ringing", "in-progress", "completed"}

	h, err := f.sess.StartCall(context.Background(), CallOptions{To: "+14155550123"})
	require.NoError(t, err)
	require.Equal(t, "CA1", h.SID)

	require.Eventually(t, func() bool {
		return f.sess.Snapshot().Phase == PhaseSettled
	}, time.Second, 5*time.Millisecond)

	snap := f.sess.Snapshot()
	require.Equal(t, []calls.Status{"queued", "ringing", "in-progress", "completed"}, statuses(snap.Timeline))
	require.Equal(t, calls.StatusCompleted, snap.Status)

	// Audit is written after the state change is published.
	require.Eventually(t, func() bool {
		var started, settled bool
		for _, e := range f.audit.Events() {
			started = started || e.Type == audit.EventTypeCallStarted
			settled = settled || (e.Type == audit.EventTypeCallSettled && e.Status == "completed")
		}
		return started && settled
	}, time.Second, 5*time.Millisecond)
}

func TestStartCall_TerminalInitialStatusSkipsPolling(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond)
	f.sess.SetScript("Agent: Hi there")
	f.starter.handles = []calls.Handle{{SID: "CA1", Status: calls.StatusFailed}}

	_, err := f.sess.StartCall(context.Background(), CallOptions{To: "+14155550123"})
	require.NoError(t, err)
	require.Equal(t, PhaseSettled, f.sess.Snapshot().Phase)

	select {
	case sid := <-f.fetcher.started:
		t.Fatalf("unexpected fetch for %s", sid)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestRefreshFailure_IsWarningAndPollingContinues(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond)
	f.sess.SetScript("Agent: Hi there")
	f.starter.handles = []calls.Handle{{SID: "CA1", Status: calls.StatusQueued}}
	f.fetcher.seq["CA1"] = []string{"ringing", "completed"}
	f.fetcher.fail["CA1"] = 2

	_, err := f.sess.StartCall(context.Background(), CallOptions{To: "+14155550123"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.sess.Snapshot().Phase == PhaseSettled
	}, time.Second, 5*time.Millisecond)

	snap := f.sess.Snapshot()
	require.Empty(t, snap.CallError)
	require.Empty(t, snap.StatusWarning)
	require.Equal(t, []calls.Status{"queued", "ringing", "completed"}, statuses(snap.Timeline))
}

func TestRefreshFailure_SetsWarning(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.sess.SetScript("Agent: Hi there")
	f.starter.handles = []calls.Handle{{SID: "CA1", Status: calls.StatusQueued}}
	f.fetcher.seq["CA1"] = []string{"ringing"}
	f.fetcher.fail["CA1"] = 1

	_, err := f.sess.StartCall(context.Background(), CallOptions{To: "+14155550123"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.sess.Snapshot().StatusWarning == apperr.MsgStatusRefresh
	}, time.Second, 5*time.Millisecond)
	snap := f.sess.Snapshot()
	require.Equal(t, PhasePolling, snap.Phase)
	require.Empty(t, snap.CallError)
}

func TestStartCall_SupersededFetchDoesNotLand(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.sess.SetScript("Agent: Hi there")
	f.starter.handles = []calls.Handle{
		{SID: "CA-A", Status: calls.StatusQueued},
		{SID: "CA-B", Status: calls.StatusQueued},
	}
	gate := make(chan struct{})
	f.fetcher.gates["CA-A"] = gate
	f.fetcher.seq["CA-A"] = []string{"completed"}
	f.fetcher.seq["CA-B"] = []string{"ringing"}

	_, err := f.sess.StartCall(context.Background(), CallOptions{To: "+14155550123"})
	require.NoError(t, err)
	require.Equal(t, "CA-A", <-f.fetcher.started)

	f.sess.mu.Lock()
	subA := f.sess.sub
	f.sess.mu.Unlock()

	_, err = f.sess.StartCall(context.Background(), CallOptions{To: "+14155550199"})
	require.NoError(t, err)
	require.True(t, subA.Token().Cancelled())

	close(gate)
	select {
	case <-subA.Done():
	case <-time.After(time.Second):
		t.Fatal("superseded subscription did not exit")
	}

	// A late delivery with the stale token is dropped as well.
	f.sess.ObserveStatus(subA.Token(), calls.StatusCompleted, time.Now())

	require.Eventually(t, func() bool {
		return len(f.sess.Snapshot().Timeline) == 2
	}, time.Second, 5*time.Millisecond)
	snap := f.sess.Snapshot()
	require.Equal(t, "CA-B", snap.Handle.SID)
	require.Equal(t, []calls.Status{"queued", "ringing"}, statuses(snap.Timeline))
	require.Equal(t, PhasePolling, snap.Phase)
}

func TestObserveCallback(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.sess.SetScript("Agent: Hi there")
	f.starter.handles = []calls.Handle{{SID: "CA1", Status: calls.StatusQueued}}
	f.fetcher.seq["CA1"] = []string{"queued"}
	gate := make(chan struct{})
	f.fetcher.gates["CA1"] = gate
	t.Cleanup(func() { close(gate) })

	_, err := f.sess.StartCall(context.Background(), CallOptions{To: "+14155550123"})
	require.NoError(t, err)

	require.False(t, f.sess.ObserveCallback("CA-other", "ringing", -1))
	require.True(t, f.sess.ObserveCallback("CA1", " Ringing ", -1))
	require.True(t, f.sess.ObserveCallback("CA1", "ringing", -1))
	require.True(t, f.sess.ObserveCallback("CA1", "no-answer", -1))
	require.False(t, f.sess.ObserveCallback("CA1", "completed", -1))

	snap := f.sess.Snapshot()
	require.Equal(t, []calls.Status{"queued", "ringing", "no-answer"}, statuses(snap.Timeline))
	require.Equal(t, PhaseSettled, snap.Phase)
}

func TestObserveCallback_DropsOutOfOrder(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.sess.SetScript("Agent: Hi there")
	f.starter.handles = []calls.Handle{{SID: "CA1", Status: calls.StatusQueued}}
	f.fetcher.seq["CA1"] = []string{"queued"}
	gate := make(chan struct{})
	f.fetcher.gates["CA1"] = gate
	t.Cleanup(func() { close(gate) })

	_, err := f.sess.StartCall(context.Background(), CallOptions{To: "+14155550123"})
	require.NoError(t, err)

	// Polling got ahead of the push channel.
	f.sess.mu.Lock()
	tok := f.sess.sub.Token()
	f.sess.mu.Unlock()
	f.sess.ObserveStatus(tok, calls.StatusInProgress, time.Now())

	require.False(t, f.sess.ObserveCallback("CA1", "ringing", 1))
	require.True(t, f.sess.ObserveCallback("CA1", "in-progress", 2))
	// Redelivered or older sequence numbers never apply, terminal or not.
	require.False(t, f.sess.ObserveCallback("CA1", "completed", 2))
	require.False(t, f.sess.ObserveCallback("CA1", "busy", 0))
	require.Equal(t, PhasePolling, f.sess.Snapshot().Phase)

	require.True(t, f.sess.ObserveCallback("CA1", "completed", 3))

	snap := f.sess.Snapshot()
	require.Equal(t, []calls.Status{"queued", "in-progress", "completed"}, statuses(snap.Timeline))
	require.Equal(t, PhaseSettled, snap.Phase)
}

func TestObserveCallback_SequenceResetsPerCall(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.sess.SetScript("Agent: Hi there")
	f.starter.handles = []calls.Handle{
		{SID: "CA1", Status: calls.StatusQueued},
		{SID: "CA2", Status: calls.StatusQueued},
	}
	f.fetcher.seq["CA1"] = []string{"queued"}
	f.fetcher.seq["CA2"] = []string{"queued"}
	gate := make(chan struct{})
	f.fetcher.gates["CA1"] = gate
	f.fetcher.gates["CA2"] = gate
	t.Cleanup(func() { close(gate) })

	_, err := f.sess.StartCall(context.Background(), CallOptions{To: "+14155550123"})
	require.NoError(t, err)
	require.True(t, f.sess.ObserveCallback("CA1", "ringing", 5))

	f.sess.Reset()
	f.sess.SetScript("Agent: Hi again")
	_, err = f.sess.StartCall(context.Background(), CallOptions{To: "+14155550123"})
	require.NoError(t, err)
	require.True(t, f.sess.ObserveCallback("CA2", "ringing", 1))
	require.Equal(t, []calls.Status{"queued", "ringing"}, statuses(f.sess.Snapshot().Timeline))
}

func TestReset_CancelsPolling(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.sess.SetScript("Agent: Hi there")
	f.starter.handles = []calls.Handle{{SID: "CA1", Status: calls.StatusQueued}}
	f.fetcher.seq["CA1"] = []string{"ringing"}

	_, err := f.sess.StartCall(context.Background(), CallOptions{To: "+14155550123"})
	require.NoError(t, err)
	f.sess.mu.Lock()
	sub := f.sess.sub
	f.sess.mu.Unlock()

	f.sess.Reset()
	require.True(t, sub.Token().Cancelled())

	snap := f.sess.Snapshot()
	require.Nil(t, snap.Handle)
	require.Empty(t, snap.Script)
	require.Equal(t, PhaseIdle, snap.Phase)
}

func TestSubscribe_ReceivesSnapshots(t *testing.T) {
	f := newFixture(t, time.Hour)

	ch, cancel := f.sess.Subscribe(4)
	first := <-ch
	require.Empty(t, first.Script)

	f.sess.SetScript("Agent: Hi there")
	next := <-ch
	require.Equal(t, "Agent: Hi there", next.Script)

	cancel()
	cancel()
	_, ok := <-ch
	require.False(t, ok)
}

func TestSubscribe_SlowReaderGetsLatest(t *testing.T) {
	f := newFixture(t, time.Hour)

	ch, cancel := f.sess.Subscribe(1)
	defer cancel()
	f.sess.SetScript("one")
	f.sess.SetScript("two")
	f.sess.SetScript("three")

	require.Equal(t, "three", (<-ch).Script)
}

func TestClose_ClosesObserversAndRejectsActions(t *testing.T) {
	f := newFixture(t, time.Hour)
	ch, _ := f.sess.Subscribe(1)
	<-ch

	f.sess.Close()
	f.sess.Close()

	_, ok := <-ch
	require.False(t, ok)
	require.ErrorIs(t, f.sess.GenerateScript(context.Background(), validBrief()), ErrClosed)
	_, err := f.sess.StartCall(context.Background(), CallOptions{To: "+1"})
	require.ErrorIs(t, err, ErrClosed)
}

func TestAuditEvents_CarryFailureDetails(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.scripts.err = errors.New("openai: 401")
	f.starter.err = errors.New("twilio: 400")

	brief := script.Brief{CustomerName: "Jordan", Goal: "Book a demo", Product: "Nimbus CRM"}
	require.Error(t, f.sess.GenerateScript(context.Background(), brief))
	f.sess.SetScript("Agent: Hi there")
	_, err := f.sess.StartCall(context.Background(), CallOptions{To: "+14155550123"})
	require.Error(t, err)

	events := f.audit.Events()
	require.Len(t, events, 2)
	require.Equal(t, audit.EventTypeScriptFailed, events[0].Type)
	require.Contains(t, events[0].Message, "401")
	require.Equal(t, audit.EventTypeCallFailed, events[1].Type)
	require.Equal(t, "+14155550123", events[1].To)
	require.Contains(t, events[1].Message, "400")
	for _, e := range events {
		require.NotEmpty(t, e.ID)
		require.False(t, e.CreatedAt.IsZero())
	}
}
