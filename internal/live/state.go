// Package live keeps the operator dashboard in step with the server: it
// holds the /ws/logs notification channel open, refreshes the aggregate
// snapshot on a timer, and refreshes out of band when a crawl completes.
package live

import (
	"context"
	"time"

	"github.com/hos-care/console/internal/client"
)

// ConnectionState is the notification channel's lifecycle state.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Trigger records why a refresh was issued.
type Trigger int

const (
	TriggerInitial Trigger = iota
	TriggerTick
	TriggerCrawl
	TriggerManual
)

func (t Trigger) String() string {
	switch t {
	case TriggerInitial:
		return "initial"
	case TriggerTick:
		return "tick"
	case TriggerCrawl:
		return "crawl"
	case TriggerManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Snapshot is the aggregate view shown on the dashboard.
type Snapshot struct {
	Seq       uint64
	Trigger   Trigger
	Stats     client.Stats
	Recent    []client.LogRecord
	FetchedAt time.Time
}

// NoticeLevel selects how a notice is styled.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
	NoticeInfo    NoticeLevel = "info"
)

// Notice is a transient message for the operator.
type Notice struct {
	Level NoticeLevel
	Text  string
	At    time.Time
}

// Channel is an open notification channel.
type Channel interface {
	Send(text string) error
	Close() error
}

// DialFunc opens a channel. onMessage receives every inbound text frame;
// onClose is called once when the channel ends for any reason.
type DialFunc func(ctx context.Context, onMessage func([]byte), onClose func(error)) (Channel, error)

// Source fetches the aggregates a snapshot is built from.
// *client.HTTPClient satisfies it.
type Source interface {
	GetStats(ctx context.Context) (*client.Stats, error)
	GetLogs(ctx context.Context, limit int) ([]client.LogRecord, error)
}

// Handler observes a session. Methods run on the session loop and must
// return quickly.
type Handler interface {
	StateChanged(state ConnectionState, err error)
	SnapshotApplied(snap Snapshot)
	Notice(n Notice)
	RefreshFailed(seq uint64, err error)
}

// HandlerFuncs adapts optional functions to Handler. Nil fields are
// skipped.
type HandlerFuncs struct {
	OnState         func(ConnectionState, error)
	OnSnapshot      func(Snapshot)
	OnNotice        func(Notice)
	OnRefreshFailed func(uint64, error)
}

func (h HandlerFuncs) StateChanged(state ConnectionState, err error) {
	if h.OnState != nil {
		h.OnState(state, err)
	}
}

func (h HandlerFuncs) SnapshotApplied(snap Snapshot) {
	if h.OnSnapshot != nil {
		h.OnSnapshot(snap)
	}
}

func (h HandlerFuncs) Notice(n Notice) {
	if h.OnNotice != nil {
		h.OnNotice(n)
	}
}

func (h HandlerFuncs) RefreshFailed(seq uint64, err error) {
	if h.OnRefreshFailed != nil {
		h.OnRefreshFailed(seq, err)
	}
}
