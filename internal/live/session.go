package live

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/hos-care/console/internal/client"
	"github.com/hos-care/console/internal/clock"
)

const (
	DefaultReconnectDelay    = 5 * time.Second
	DefaultKeepAliveInterval = 30 * time.Second
	DefaultRefreshInterval   = 30 * time.Second
	DefaultFetchTimeout      = 10 * time.Second
	DefaultRecentLogs        = 10
)

// Options configures a Session. Zero durations take the defaults above;
// a negative RefreshInterval disables the periodic refresh.
type Options struct {
	Dial    DialFunc
	Source  Source
	Handler Handler
	Clock   clock.Clock

	ReconnectDelay    time.Duration
	KeepAliveInterval time.Duration
	RefreshInterval   time.Duration
	FetchTimeout      time.Duration
	RecentLogs        int
}

// Session is the live link between one dashboard and the server.
//
// All state below the events channel is owned by the loop goroutine.
// Timer callbacks, channel callbacks and fetch completions never touch it
// directly; they post closures to events.
type Session struct {
	opts  Options
	clock clock.Clock

	events   chan func()
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	spawn    func(func())

	ctx    context.Context
	cancel context.CancelFunc

	state     ConnectionState
	gen       uint64 // current connection attempt; bumped on every disconnect
	ch        Channel
	reconnect clock.Timer
	keepAlive clock.Timer

	refreshTimer clock.Timer
	refreshGen   uint64
	issued       uint64
	applied      uint64
	inflight     map[uint64]context.CancelFunc
	snapshot     *Snapshot

	tornDown bool

	// dialed holds channels whose dial finished but which the loop has not
	// adopted yet. Teardown closes them, since their opened event may never
	// run once the loop has stopped.
	mu       sync.Mutex
	finished bool
	dialed   map[uint64]Channel
}

// New validates opts and returns an idle session. Call Run to start it.
func New(opts Options) (*Session, error) {
	if opts.Dial == nil {
		return nil, errors.New("live: dial func required")
	}
	if opts.Source == nil {
		return nil, errors.New("live: source required")
	}
	if opts.Handler == nil {
		opts.Handler = HandlerFuncs{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.KeepAliveInterval <= 0 {
		opts.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if opts.RefreshInterval == 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.RecentLogs == 0 {
		opts.RecentLogs = DefaultRecentLogs
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		opts:     opts,
		clock:    opts.Clock,
		events:   make(chan func(), 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		spawn:    func(f func()) { go f() },
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[uint64]context.CancelFunc),
		dialed:   make(map[uint64]Channel),
	}, nil
}

// Run connects, starts the periodic refresh, loads the first snapshot and
// then serves events until ctx is cancelled or Close is called. Teardown
// always runs before Run returns.
func (s *Session) Run(ctx context.Context) error {
	s.start()
	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return nil
		case <-s.stop:
			s.teardown()
			return nil
		case fn := <-s.events:
			fn()
		}
	}
}

// Refresh requests an immediate snapshot refresh.
func (s *Session) Refresh() {
	s.post(func() { s.refresh(TriggerManual) })
}

// Close stops the session. Run returns after teardown. Safe to call more
// than once.
func (s *Session) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Session) start() {
	s.connect()
	s.startPeriodicRefresh(s.opts.RefreshInterval)
	s.refresh(TriggerInitial)
}

// post hands fn to the loop. After teardown it is dropped.
func (s *Session) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

// setState reports transitions. A repeated state is only reported when it
// carries a new error.
func (s *Session) setState(state ConnectionState, err error) {
	if s.state == state && err == nil {
		return
	}
	s.state = state
	s.opts.Handler.StateChanged(state, err)
}

// --- channel lifecycle ---

func (s *Session) connect() {
	if s.tornDown || s.state != Disconnected {
		return
	}
	s.gen++
	gen := s.gen
	s.setState(Connecting, nil)

	s.spawn(func() {
		ch, err := s.opts.Dial(s.ctx,
			func(data []byte) { s.post(func() { s.onMessage(data) }) },
			func(err error) { s.post(func() { s.closed(gen, err) }) },
		)
		if err == nil && !s.hold(gen, ch) {
			ch.Close()
			return
		}
		s.post(func() {
			if err != nil {
				s.dialFailed(gen, err)
				return
			}
			s.opened(gen, ch)
		})
	})
}

// hold parks a freshly dialed channel until the loop adopts it. It
// reports false once the session is finished.
func (s *Session) hold(gen uint64, ch Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.dialed[gen] = ch
	return true
}

func (s *Session) release(gen uint64) {
	s.mu.Lock()
	delete(s.dialed, gen)
	s.mu.Unlock()
}

func (s *Session) opened(gen uint64, ch Channel) {
	s.release(gen)
	if gen != s.gen || s.tornDown {
		// The attempt was superseded while dialing.
		ch.Close()
		return
	}
	s.ch = ch
	s.setState(Connected, nil)
	s.scheduleKeepAlive(gen)
}

func (s *Session) dialFailed(gen uint64, err error) {
	if gen != s.gen {
		return
	}
	log.Printf("live: dial error: %v (retry in %v)", err, s.opts.ReconnectDelay)
	s.disconnected(err)
}

func (s *Session) closed(gen uint64, err error) {
	if gen != s.gen || s.tornDown {
		return
	}
	log.Printf("live: channel closed: %v (reconnect in %v)", err, s.opts.ReconnectDelay)
	s.disconnected(err)
}

func (s *Session) disconnected(err error) {
	s.gen++
	stopTimer(&s.keepAlive)
	if s.ch != nil {
		s.ch.Close()
		s.ch = nil
	}
	s.setState(Disconnected, err)
	s.scheduleReconnect()
}

func (s *Session) scheduleReconnect() {
	if s.tornDown || s.reconnect != nil {
		return
	}
	s.reconnect = s.clock.AfterFunc(s.opts.ReconnectDelay, func() {
		s.post(func() {
			s.reconnect = nil
			s.connect()
		})
	})
}

func (s *Session) scheduleKeepAlive(gen uint64) {
	s.keepAlive = s.clock.AfterFunc(s.opts.KeepAliveInterval, func() {
		s.post(func() { s.sendKeepAlive(gen) })
	})
}

func (s *Session) sendKeepAlive(gen uint64) {
	if gen != s.gen {
		return
	}
	s.keepAlive = nil
	if s.state != Connected || s.ch == nil {
		return
	}
	ch := s.ch
	s.spawn(func() {
		if err := ch.Send(client.KeepAlive); err != nil {
			log.Printf("live: keep-alive send: %v", err)
		}
	})
	s.scheduleKeepAlive(gen)
}

// onMessage handles one inbound frame. Anything that is not a JSON
// notification (the server's "pong" reply included) is dropped.
func (s *Session) onMessage(raw []byte) {
	if s.tornDown {
		return
	}
	var n client.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return
	}
	switch n.Type {
	case client.NotifyCrawlCompleted:
		s.notify(NoticeSuccess, "crawl completed: "+n.Symptom)
		s.refresh(TriggerCrawl)
	case client.NotifyCrawlError:
		s.notify(NoticeError, "crawl failed: "+n.Error)
	}
}

func (s *Session) notify(level NoticeLevel, text string) {
	s.opts.Handler.Notice(Notice{Level: level, Text: text, At: s.clock.Now()})
}

// --- snapshot refresh ---

func (s *Session) startPeriodicRefresh(interval time.Duration) {
	stopTimer(&s.refreshTimer)
	s.refreshGen++
	if interval <= 0 || s.tornDown {
		return
	}
	s.scheduleTick(s.refreshGen, interval)
}

func (s *Session) scheduleTick(gen uint64, interval time.Duration) {
	s.refreshTimer = s.clock.AfterFunc(interval, func() {
		s.post(func() {
			if gen != s.refreshGen || s.tornDown {
				return
			}
			s.scheduleTick(gen, interval)
			s.refresh(TriggerTick)
		})
	})
}

// refresh issues a fetch. Fetches are never coalesced; the sequence
// number decides which response wins.
func (s *Session) refresh(trigger Trigger) {
	if s.tornDown {
		return
	}
	s.issued++
	seq := s.issued
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.FetchTimeout)
	s.inflight[seq] = cancel

	s.spawn(func() {
		snap, err := s.fetch(ctx)
		s.post(func() { s.refreshed(seq, trigger, snap, err) })
	})
}

// fetch runs off the loop and reads only immutable options. Both calls
// must succeed for the snapshot to count.
func (s *Session) fetch(ctx context.Context) (Snapshot, error) {
	stats, err := s.opts.Source.GetStats(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	var recent []client.LogRecord
	if s.opts.RecentLogs > 0 {
		recent, err = s.opts.Source.GetLogs(ctx, s.opts.RecentLogs)
		if err != nil {
			return Snapshot{}, err
		}
	}
	return Snapshot{Stats: *stats, Recent: recent}, nil
}

func (s *Session) refreshed(seq uint64, trigger Trigger, snap Snapshot, err error) {
	if cancel, ok := s.inflight[seq]; ok {
		cancel()
		delete(s.inflight, seq)
	}
	if s.tornDown {
		return
	}
	if seq <= s.applied {
		log.Printf("live: discarding refresh #%d, #%d already shown", seq, s.applied)
		return
	}
	if err != nil {
		log.Printf("live: refresh #%d (%s): %v", seq, trigger, err)
		s.opts.Handler.RefreshFailed(seq, err)
		return
	}
	s.applied = seq
	snap.Seq = seq
	snap.Trigger = trigger
	snap.FetchedAt = s.clock.Now()
	s.snapshot = &snap
	s.opts.Handler.SnapshotApplied(snap)
}

// --- teardown ---

func (s *Session) teardown() {
	if s.tornDown {
		return
	}
	s.tornDown = true

	stopTimer(&s.reconnect)
	stopTimer(&s.keepAlive)
	stopTimer(&s.refreshTimer)
	s.cancel()
	for seq, cancel := range s.inflight {
		cancel()
		delete(s.inflight, seq)
	}

	s.gen++
	if s.ch != nil {
		s.ch.Close()
		s.ch = nil
	}
	s.mu.Lock()
	s.finished = true
	for gen, ch := range s.dialed {
		ch.Close()
		delete(s.dialed, gen)
	}
	s.mu.Unlock()

	s.setState(Disconnected, nil)
	close(s.done)
}

func stopTimer(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
