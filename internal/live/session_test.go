package live

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hos-care/console/internal/client"
	"github.com/hos-care/console/internal/clock"
)

// --- fakes ---

type fakeChannel struct {
	mu     sync.Mutex
	sent   []string
	closed bool
}

func (c *fakeChannel) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return client.ErrClosed
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// dialAttempt records the callbacks handed to one Dial call so the test
// can play the server side.
type dialAttempt struct {
	ch        *fakeChannel
	onMessage func([]byte)
	onClose   func(error)
}

type fakeSource struct {
	mu       sync.Mutex
	total    int
	statsErr error
	calls    int
}

func (f *fakeSource) GetStats(ctx context.Context) (*client.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return &client.Stats{TotalLogs: f.total}, nil
}

func (f *fakeSource) GetLogs(ctx context.Context, limit int) ([]client.LogRecord, error) {
	return []client.LogRecord{{ID: 1, UserInput: "fever"}}, nil
}

type recorder struct {
	states    []ConnectionState
	snapshots []Snapshot
	notices   []Notice
	failures  []uint64
	errs      []error
}

func (r *recorder) StateChanged(state ConnectionState, err error) {
	r.states = append(r.states, state)
	r.errs = append(r.errs, err)
}
func (r *recorder) SnapshotApplied(s Snapshot) { r.snapshots = append(r.snapshots, s) }
func (r *recorder) Notice(n Notice) { r.notices = append(r.notices, n) }
func (r *recorder) RefreshFailed(seq uint64, _ error) { r.failures = append(r.failures, seq) }

// harness drives a Session without its loop goroutine. Spawned I/O is
// queued in tasks and only runs when the test says so; posted events are
// run by drain. Everything happens on the test goroutine.
type harness struct {
	t       *testing.T
	s       *Session
	clock   *clock.FakeClock
	src     *fakeSource
	rec     *recorder
	tasks   []func()
	dials   []*dialAttempt
	dialErr error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		clock: clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		src:   &fakeSource{total: 1},
		rec:   &recorder{},
	}
	s, err := New(Options{
		Dial:    h.dial,
		Source:  h.src,
		Handler: h.rec,
		Clock:   h.clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.spawn = func(f func()) { h.tasks = append(h.tasks, f) }
	h.s = s
	return h
}

func (h *harness) dial(ctx context.Context, onMessage func([]byte), onClose func(error)) (Channel, error) {
	if h.dialErr != nil {
		h.dials = append(h.dials, &dialAttempt{})
		return nil, h.dialErr
	}
	a := &dialAttempt{ch: &fakeChannel{}, onMessage: onMessage, onClose: onClose}
	h.dials = append(h.dials, a)
	return a.ch, nil
}

func (h *harness) drain() {
	for {
		select {
		case fn := <-h.s.events:
			fn()
		default:
			return
		}
	}
}

// settle runs queued tasks and events until nothing is left.
func (h *harness) settle() {
	for {
		h.drain()
		if len(h.tasks) == 0 {
			return
		}
		task := h.tasks[0]
		h.tasks = h.tasks[1:]
		task()
	}
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.settle()
}

func (h *harness) lastDial() *dialAttempt {
	h.t.Helper()
	if len(h.dials) == 0 {
		h.t.Fatal("no dial attempts")
	}
	return h.dials[len(h.dials)-1]
}

func (h *harness) deliver(raw string) {
	h.lastDial().onMessage([]byte(raw))
	h.settle()
}

func (h *harness) closeChannel(err error) {
	h.lastDial().onClose(err)
	h.settle()
}

// --- tests ---

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{Source: &fakeSource{}}); err == nil {
		t.Error("expected error without Dial")
	}
	dial := func(context.Context, func([]byte), func(error)) (Channel, error) { return nil, nil }
	if _, err := New(Options{Dial: dial}); err == nil {
		t.Error("expected error without Source")
	}
}

func TestConnectTransitions(t *testing.T) {
	h := newHarness(t)
	h.s.start()
	h.settle()

	want := []ConnectionState{Connecting, Connected}
	if len(h.rec.states) != len(want) {
		t.Fatalf("states = %v, want %v", h.rec.states, want)
	}
	for i := range want {
		if h.rec.states[i] != want[i] {
			t.Errorf("states[%d] = %v, want %v", i, h.rec.states[i], want[i])
		}
	}
	if len(h.rec.snapshots) != 1 || h.rec.snapshots[0].Trigger != TriggerInitial {
		t.Fatalf("expected one initial snapshot, got %+v", h.rec.snapshots)
	}
}

func TestKeepAliveEveryInterval(t *testing.T) {
	h := newHarness(t)
	h.s.start()
	h.settle()
	ch := h.lastDial().ch

	h.advance(29 * time.Second)
	if got := ch.Sent(); len(got) != 0 {
		t.Fatalf("keep-alive sent early: %v", got)
	}
	h.advance(time.Second)
	h.advance(30 * time.Second)

	got := ch.Sent()
	if len(got) != 2 {
		t.Fatalf("expected 2 keep-alives after 60s, got %v", got)
	}
	for _, msg := range got {
		if msg != "ping" {
			t.Errorf("keep-alive = %q, want %q", msg, "ping")
		}
	}
}

func TestKeepAliveStopsWhenDisconnected(t *testing.T) {
	h := newHarness(t)
	h.s.start()
	h.settle()
	ch := h.lastDial().ch

	h.dialErr = errors.New("connection refused")
	h.closeChannel(io.EOF)
	h.advance(2 * time.Minute)

	if got := ch.Sent(); len(got) != 0 {
		t.Fatalf("keep-alive sent on a dead channel: %v", got)
	}
	if !ch.closed {
		t.Error("closed channel should be released")
	}
}

func TestReconnectOncePerClose(t *testing.T) {
	causes := []struct {
		name string
		err  error
	}{
		{"eof", io.EOF},
		{"nil", nil},
		{"server going away", errors.New("websocket: close 1001 (going away)")},
		{"read timeout", context.DeadlineExceeded},
	}

	for _, tc := range causes {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.s.start()
			h.settle()

			h.closeChannel(tc.err)
			if h.s.state != Disconnected {
				t.Fatalf("state = %v, want disconnected", h.s.state)
			}
			if len(h.dials) != 1 {
				t.Fatalf("reconnected immediately: %d dials", len(h.dials))
			}

			h.advance(DefaultReconnectDelay - time.Millisecond)
			if len(h.dials) != 1 {
				t.Fatalf("reconnected before the delay: %d dials", len(h.dials))
			}
			h.advance(time.Millisecond)
			if len(h.dials) != 2 {
				t.Fatalf("expected exactly one reconnect, got %d dials", len(h.dials))
			}
			if h.s.state != Connected {
				t.Fatalf("state = %v, want connected", h.s.state)
			}

			h.advance(10 * time.Minute)
			if len(h.dials) != 2 {
				t.Fatalf("extra reconnects while connected: %d dials", len(h.dials))
			}
		})
	}
}

func TestDuplicateCloseSchedulesOneReconnect(t *testing.T) {
	h := newHarness(t)
	h.s.start()
	h.settle()

	first := h.lastDial()
	first.onClose(io.EOF)
	first.onClose(io.ErrUnexpectedEOF)
	h.settle()

	h.advance(DefaultReconnectDelay)
	if len(h.dials) != 2 {
		t.Fatalf("expected 2 dials, got %d", len(h.dials))
	}
}

func TestDialFailureRetriesWithConstantDelay(t *testing.T) {
	h := newHarness(t)
	h.dialErr = errors.New("connection refused")
	h.s.start()
	h.settle()

	for i := 2; i <= 20; i++ {
		h.advance(DefaultReconnectDelay)
		if len(h.dials) != i {
			t.Fatalf("after %d delays: %d dials, want %d", i-1, len(h.dials), i)
		}
	}
	if h.s.state != Disconnected {
		t.Fatalf("state = %v, want disconnected", h.s.state)
	}

	h.dialErr = nil
	h.advance(DefaultReconnectDelay)
	if h.s.state != Connected {
		t.Fatalf("state = %v, want connected after server returns", h.s.state)
	}
}

func TestUnparseableMessagesIgnored(t *testing.T) {
	h := newHarness(t)
	h.s.start()
	h.settle()
	before := *h.s.snapshot
	issued := h.s.issued

	for _, raw := range []string{
		"pong",
		"{not json",
		"",
		"123",
		"null",
		`{"type":"unknown_event","symptom":"fever"}`,
		`["crawling_completed"]`,
	} {
		h.deliver(raw)
	}

	if len(h.rec.notices) != 0 {
		t.Errorf("notices = %+v, want none", h.rec.notices)
	}
	if h.s.issued != issued {
		t.Errorf("refreshes issued = %d, want %d", h.s.issued, issued)
	}
	if h.s.snapshot.Seq != before.Seq {
		t.Errorf("snapshot changed: seq %d → %d", before.Seq, h.s.snapshot.Seq)
	}
	if h.s.state != Connected {
		t.Errorf("state = %v, want connected", h.s.state)
	}
}

func TestCrawlCompletedNotifiesAndRefreshesOnce(t *testing.T) {
	h := newHarness(t)
	h.s.start()
	h.settle()
	calls := h.src.calls

	h.src.total = 42
	h.deliver(`{"type":"crawling_completed","symptom":"fever","result":{"added":3}}`)

	if len(h.rec.notices) != 1 {
		t.Fatalf("notices = %+v, want 1", h.rec.notices)
	}
	n := h.rec.notices[0]
	if n.Level != NoticeSuccess || !strings.Contains(n.Text, "fever") {
		t.Errorf("notice = %+v, want success mentioning fever", n)
	}
	if got := h.src.calls - calls; got != 1 {
		t.Fatalf("stats fetches = %d, want 1", got)
	}
	last := h.rec.snapshots[len(h.rec.snapshots)-1]
	if last.Trigger != TriggerCrawl || last.Stats.TotalLogs != 42 {
		t.Errorf("last snapshot = %+v, want crawl refresh with 42 logs", last)
	}
}

func TestCrawlErrorNotifiesWithoutRefresh(t *testing.T) {
	h := newHarness(t)
	h.s.start()
	h.settle()
	calls := h.src.calls

	h.deliver(`{"type":"crawling_error","symptom":"fever","error":"timeout"}`)

	if len(h.rec.notices) != 1 {
		t.Fatalf("notices = %+v, want 1", h.rec.notices)
	}
	n := h.rec.notices[0]
	if n.Level != NoticeError || !strings.Contains(n.Text, "timeout") {
		t.Errorf("notice = %+v, want error mentioning timeout", n)
	}
	if h.src.calls != calls {
		t.Errorf("crawl error triggered %d fetches", h.src.calls-calls)
	}
}

func TestOlderResponseNeverOverwritesNewer(t *testing.T) {
	h := newHarness(t)
	h.s.start()
	h.settle()

	// Issue two refreshes without running their fetches.
	h.s.refresh(TriggerManual)
	h.s.refresh(TriggerManual)
	if len(h.tasks) != 2 {
		t.Fatalf("expected 2 queued fetches, got %d", len(h.tasks))
	}
	first, second := h.tasks[0], h.tasks[1]
	h.tasks = nil

	h.src.total = 200
	second()
	h.drain()
	h.src.total = 100
	first()
	h.drain()

	snap := h.s.snapshot
	if snap.Stats.TotalLogs != 200 {
		t.Fatalf("displayed total = %d, want 200 from the later request", snap.Stats.TotalLogs)
	}
	if snap.Seq != h.s.issued {
		t.Errorf("displayed seq = %d, want %d", snap.Seq, h.s.issued)
	}
	last := h.rec.snapshots[len(h.rec.snapshots)-1]
	if last.Stats.TotalLogs != 200 {
		t.Errorf("handler last saw %d, want 200", last.Stats.TotalLogs)
	}
}

func TestPeriodicRefreshIsNotCoalesced(t *testing.T) {
	h := newHarness(t)
	h.s.start()
	h.settle()
	base := h.s.issued

	// Fetches hang: advance without running queued tasks.
	for i := 0; i < 3; i++ {
		h.clock.Advance(DefaultRefreshInterval)
		h.drain()
	}
	if got := h.s.issued - base; got != 3 {
		t.Fatalf("ticks issued %d fetches, want 3", got)
	}
	if len(h.s.inflight) != 3 {
		t.Fatalf("in-flight = %d, want 3", len(h.s.inflight))
	}

	h.settle()
	if len(h.s.inflight) != 0 {
		t.Errorf("in-flight after settle = %d, want 0", len(h.s.inflight))
	}
	if h.s.snapshot.Seq != h.s.issued {
		t.Errorf("snapshot seq = %d, want latest %d", h.s.snapshot.Seq, h.s.issued)
	}
}

func TestRefreshRunsWhileDisconnected(t *testing.T) {
	h := newHarness(t)
	h.dialErr = errors.New("connection refused")
	h.s.start()
	h.settle()
	applied := len(h.rec.snapshots)

	h.advance(DefaultRefreshInterval)
	if len(h.rec.snapshots) != applied+1 {
		t.Fatalf("periodic refresh should not depend on the channel")
	}
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	h := newHarness(t)
	h.s.start()
	h.settle()
	before := h.s.snapshot.Stats.TotalLogs

	h.src.statsErr = errors.New("502 bad gateway")
	h.advance(DefaultRefreshInterval)

	if len(h.rec.failures) != 1 {
		t.Fatalf("failures = %v, want 1", h.rec.failures)
	}
	if h.s.snapshot.Stats.TotalLogs != before {
		t.Errorf("snapshot changed after failed refresh")
	}
	if h.s.state != Connected {
		t.Errorf("refresh failure affected connection state: %v", h.s.state)
	}
}

func TestTeardownCancelsEverything(t *testing.T) {
	h := newHarness(t)
	h.s.start()
	h.settle()
	ch := h.lastDial().ch

	h.s.refresh(TriggerManual) // left in flight
	h.s.teardown()

	if !ch.closed {
		t.Error("teardown should close the channel")
	}
	if h.clock.Pending() != 0 {
		t.Errorf("pending timers after teardown = %d", h.clock.Pending())
	}
	if len(h.s.inflight) != 0 {
		t.Errorf("in-flight fetches after teardown = %d", len(h.s.inflight))
	}
	if h.s.state != Disconnected {
		t.Errorf("state = %v, want disconnected", h.s.state)
	}

	snaps := len(h.rec.snapshots)
	h.closeChannel(nil)
	h.advance(time.Hour)
	if len(h.dials) != 1 {
		t.Errorf("reconnected after teardown: %d dials", len(h.dials))
	}
	if len(h.rec.snapshots) != snaps {
		t.Errorf("snapshot applied after teardown")
	}

	h.s.teardown() // idempotent
}

func TestTeardownDuringReconnectWait(t *testing.T) {
	h := newHarness(t)
	h.s.start()
	h.settle()

	h.closeChannel(io.EOF)
	h.s.teardown()
	h.advance(time.Minute)

	if len(h.dials) != 1 {
		t.Errorf("reconnect fired after teardown: %d dials", len(h.dials))
	}
}

func TestRunStopsOnClose(t *testing.T) {
	states := make(chan ConnectionState, 16)
	src := &fakeSource{total: 7}
	dial := func(ctx context.Context, onMessage func([]byte), onClose func(error)) (Channel, error) {
		return &fakeChannel{}, nil
	}
	s, err := New(Options{
		Dial:   dial,
		Source: src,
		Handler: HandlerFuncs{OnState: func(st ConnectionState, _ error) {
			states <- st
		}},
		Clock: clock.Fake(time.Now()),
	})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	waitState(t, states, Connected)
	s.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	waitState(t, states, Disconnected)
}

func waitState(t *testing.T, states <-chan ConnectionState, want ConnectionState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-states:
			if st == want {
				return
			}
		case <-deadline:
			t.Fatalf("never reached state %v", want)
		}
	}
}

func TestStaleRefreshFailureNotReported(t *testing.T) {
	h := newHarness(t)
	h.s.start()
	h.settle()

	h.s.refresh(TriggerManual)
	h.s.refresh(TriggerManual)
	first, second := h.tasks[0], h.tasks[1]
	h.tasks = nil

	second()
	h.drain()
	h.src.statsErr = errors.New("timeout")
	first()
	h.drain()

	if len(h.rec.failures) != 0 {
		t.Errorf("failures = %v, want none once a newer snapshot is shown", h.rec.failures)
	}
	if h.s.snapshot.Seq != h.s.issued {
		t.Errorf("displayed seq = %d, want %d", h.s.snapshot.Seq, h.s.issued)
	}
}

func TestRepeatedStateWithNewError(t *testing.T) {
	h := newHarness(t)
	refused := errors.New("connection refused")
	reset := errors.New("connection reset")

	h.s.setState(Disconnected, refused)
	h.s.setState(Disconnected, reset)
	h.s.setState(Disconnected, nil)

	if len(h.rec.errs) != 2 || h.rec.errs[0] != refused || h.rec.errs[1] != reset {
		t.Errorf("reported errors = %v, want [refused reset]", h.rec.errs)
	}
}

func TestDialFinishingAfterTeardownIsClosed(t *testing.T) {
	tests := []struct {
		name      string
		dialFirst bool // the dial delivers before teardown but the loop never adopts it
	}{
		{"dial completes after teardown", false},
		{"dial completes before teardown", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.s.start()
			if len(h.tasks) == 0 {
				t.Fatal("expected a queued dial")
			}
			dial := h.tasks[0]
			h.tasks = nil

			if tc.dialFirst {
				dial()
				h.s.teardown()
			} else {
				h.s.teardown()
				dial()
			}

			ch := h.lastDial().ch
			ch.mu.Lock()
			closed := ch.closed
			ch.mu.Unlock()
			if !closed {
				t.Error("channel from a dial racing teardown was left open")
			}
			if len(h.s.dialed) != 0 {
				t.Errorf("held channels after teardown = %d", len(h.s.dialed))
			}
		})
	}
}
