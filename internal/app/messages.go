package app

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hos-care/console/internal/client"
	"github.com/hos-care/console/internal/journal"
	"github.com/hos-care/console/internal/live"
	"github.com/hos-care/console/internal/views/dashboard"
)

// StateMsg reports a notification channel transition.
type StateMsg struct {
	State live.ConnectionState
	Err   error
}

// SnapshotMsg carries a newly applied snapshot.
type SnapshotMsg struct {
	Snapshot live.Snapshot
}

// NoticeMsg carries an operator notice.
type NoticeMsg struct {
	Notice live.Notice
}

// RefreshFailedMsg reports a failed refresh. The previous snapshot stays
// on screen.
type RefreshFailedMsg struct {
	Seq uint64
	Err error
}

type tickMsg time.Time

type frameMsg struct{}

type recordedMsg struct {
	err error
}

type historyMsg struct {
	notices   []live.Notice
	snapshots []journal.SnapshotSummary
	pruned    int64
	err       error
}

type logsMsg struct {
	limit   int
	records []client.LogRecord
	err     error
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func frame() tea.Cmd {
	return tea.Tick(time.Second/dashboard.FPS, func(time.Time) tea.Msg { return frameMsg{} })
}

// Handler forwards session callbacks into a running program. It satisfies
// live.Handler.
type Handler struct {
	send func(tea.Msg)
}

// NewHandler returns a Handler that delivers through send, typically
// (*tea.Program).Send.
func NewHandler(send func(tea.Msg)) Handler {
	return Handler{send: send}
}

func (h Handler) StateChanged(state live.ConnectionState, err error) {
	h.send(StateMsg{State: state, Err: err})
}

func (h Handler) SnapshotApplied(snap live.Snapshot) {
	h.send(SnapshotMsg{Snapshot: snap})
}

func (h Handler) Notice(n live.Notice) {
	h.send(NoticeMsg{Notice: n})
}

func (h Handler) RefreshFailed(seq uint64, err error) {
	h.send(RefreshFailedMsg{Seq: seq, Err: err})
}
