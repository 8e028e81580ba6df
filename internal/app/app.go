package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hos-care/console/internal/client"
	"github.com/hos-care/console/internal/journal"
	"github.com/hos-care/console/internal/live"
	"github.com/hos-care/console/internal/theme"
	"github.com/hos-care/console/internal/views/dashboard"
	"github.com/hos-care/console/internal/views/eventlog"
	"github.com/hos-care/console/internal/views/logs"
	"github.com/hos-care/console/internal/views/notice"
	"github.com/hos-care/console/internal/views/status"
)

// historyLen is how many journaled notices and snapshots seed the event
// log at startup.
const historyLen = 20

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayEventLog
	OverlayLogs
)

// Refresher requests an out-of-band snapshot. *live.Session satisfies it.
type Refresher interface {
	Refresh()
}

// Recorder persists what the dashboard shows. *journal.Journal satisfies it.
type Recorder interface {
	RecordNotice(ctx context.Context, n live.Notice) error
	RecordSnapshot(ctx context.Context, snap live.Snapshot) error
	RecentNotices(ctx context.Context, limit int) ([]live.Notice, error)
	RecentSnapshots(ctx context.Context, limit int) ([]journal.SnapshotSummary, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// LogSource serves the log viewer. *client.HTTPClient satisfies it.
type LogSource interface {
	GetLogs(ctx context.Context, limit int) ([]client.LogRecord, error)
}

// Options configures the root model. Session, Journal and Logs may be nil.
// A positive Retention prunes older journal entries at startup.
type Options struct {
	Session        Refresher
	Journal        Recorder
	Logs           LogSource
	Endpoint       string
	ReconnectDelay time.Duration
	Retention      time.Duration
}

// Model is the root Bubble Tea model.
type Model struct {
	session        Refresher
	journal        Recorder
	logSource      LogSource
	reconnectDelay time.Duration
	retention      time.Duration

	keys    KeyMap
	width   int
	height  int
	overlay Overlay

	state     live.ConnectionState
	lastErr   error
	animating bool

	statusBar status.Model
	dashboard dashboard.Model
	logs      logs.Model
	toast     notice.Model
	events    eventlog.Model
	viewer    logs.Viewer
}

// New creates the root model.
func New(opts Options) Model {
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = live.DefaultReconnectDelay
	}
	// The session dials as soon as it runs.
	sb := status.New(opts.Endpoint)
	sb.SetState(live.Connecting, nil)
	sb.Now = time.Now()
	return Model{
		state:          live.Connecting,
		session:        opts.Session,
		journal:        opts.Journal,
		logSource:      opts.Logs,
		reconnectDelay: delay,
		retention:      opts.Retention,
		keys:           DefaultKeyMap(),
		statusBar:      sb,
		dashboard:      dashboard.New(),
		logs:           logs.New(),
		toast:          notice.New(),
		events:         eventlog.New(),
		viewer:         logs.NewViewer(),
	}
}

// Init starts the clock tick and loads journal history.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.loadHistory())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.dashboard.Width = msg.Width
		m.logs.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StateMsg:
		m.state = msg.State
		m.lastErr = msg.Err
		m.statusBar.SetState(msg.State, msg.Err)
		if msg.Err != nil {
			m.events.Add(eventlog.KindWS, fmt.Sprintf("%s: %v", msg.State, msg.Err))
		} else {
			m.events.Add(eventlog.KindWS, msg.State.String())
		}
		return m, nil

	case SnapshotMsg:
		snap := msg.Snapshot
		m.dashboard.SetSnapshot(snap)
		m.logs.SetRecords(snap.Recent)
		m.statusBar.LastRefresh = snap.FetchedAt
		m.statusBar.Failing = false
		m.events.Add(eventlog.KindRefresh, fmt.Sprintf("snapshot #%d (%s): %d logs", snap.Seq, snap.Trigger, snap.Stats.TotalLogs))

		cmds := []tea.Cmd{m.record(func(ctx context.Context, r Recorder) error {
			return r.RecordSnapshot(ctx, snap)
		})}
		if !m.animating {
			m.animating = true
			cmds = append(cmds, frame())
		}
		return m, tea.Batch(cmds...)

	case NoticeMsg:
		n := msg.Notice
		m.toast.Show(n)
		m.events.Add(eventlog.KindNotice, n.Text)
		return m, m.record(func(ctx context.Context, r Recorder) error {
			return r.RecordNotice(ctx, n)
		})

	case RefreshFailedMsg:
		m.statusBar.Failing = true
		m.events.Add(eventlog.KindError, fmt.Sprintf("refresh #%d: %v", msg.Seq, msg.Err))
		return m, nil

	case tickMsg:
		now := time.Time(msg)
		m.statusBar.Now = now
		m.toast.Expire(now)
		return m, tick()

	case frameMsg:
		m.dashboard.Animate()
		if m.dashboard.Settled() {
			m.animating = false
			return m, nil
		}
		return m, frame()

	case recordedMsg:
		if msg.err != nil {
			log.Printf("journal: %v", msg.err)
			m.events.Add(eventlog.KindError, "journal: "+msg.err.Error())
		}
		return m, nil

	case historyMsg:
		if msg.pruned > 0 {
			log.Printf("journal: pruned %d entries older than %s", msg.pruned, m.retention)
		}
		if msg.err != nil {
			log.Printf("journal history: %v", msg.err)
			m.events.Add(eventlog.KindError, "journal history: "+msg.err.Error())
			return m, nil
		}
		m.events.Prepend(historyEntries(msg.notices, msg.snapshots)...)
		return m, nil

	case logsMsg:
		if m.viewer.SetResult(msg.limit, msg.records, msg.err) && msg.err != nil {
			m.events.Add(eventlog.KindError, fmt.Sprintf("logs (limit %d): %v", msg.limit, msg.err))
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	switch m.overlay {
	case OverlayEventLog:
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.EventLog):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.events.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.events.ScrollDown(1)
		}
		return m, nil

	case OverlayLogs:
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Logs):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.viewer.CursorUp()
		case key.Matches(msg, m.keys.Down):
			m.viewer.CursorDown()
		case key.Matches(msg, m.keys.Limit):
			limit := m.viewer.NextLimit()
			m.viewer.Loading = true
			return m, m.loadLogs(limit)
		case key.Matches(msg, m.keys.Refresh):
			m.viewer.Loading = true
			return m, m.loadLogs(m.viewer.Limit)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Refresh):
		if m.session != nil {
			m.session.Refresh()
			m.events.Add(eventlog.KindRefresh, "manual refresh requested")
		}
		return m, nil

	case key.Matches(msg, m.keys.EventLog):
		m.overlay = OverlayEventLog
		return m, nil

	case key.Matches(msg, m.keys.Logs):
		if m.logSource == nil {
			return m, nil
		}
		m.overlay = OverlayLogs
		m.viewer.Loading = true
		return m, m.loadLogs(m.viewer.Limit)
	}

	return m, nil
}

// record runs fn against the journal off the update loop.
func (m Model) record(fn func(ctx context.Context, r Recorder) error) tea.Cmd {
	if m.journal == nil {
		return nil
	}
	rec := m.journal
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return recordedMsg{err: fn(ctx, rec)}
	}
}

// loadHistory prunes the journal to the retention window and reads back
// what is left to seed the event log.
func (m Model) loadHistory() tea.Cmd {
	if m.journal == nil {
		return nil
	}
	rec := m.journal
	retention := m.retention
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var msg historyMsg
		if retention > 0 {
			msg.pruned, msg.err = rec.Prune(ctx, time.Now().Add(-retention))
			if msg.err != nil {
				return msg
			}
		}
		if msg.notices, msg.err = rec.RecentNotices(ctx, historyLen); msg.err != nil {
			return msg
		}
		msg.snapshots, msg.err = rec.RecentSnapshots(ctx, historyLen)
		return msg
	}
}

// historyEntries merges journaled notices and snapshots into event log
// entries, oldest first.
func historyEntries(notices []live.Notice, snapshots []journal.SnapshotSummary) []eventlog.Entry {
	entries := make([]eventlog.Entry, 0, len(notices)+len(snapshots))
	for _, n := range notices {
		entries = append(entries, eventlog.Entry{Time: n.At, Kind: eventlog.KindNotice, Message: n.Text})
	}
	for _, s := range snapshots {
		entries = append(entries, eventlog.Entry{
			Time:    s.FetchedAt,
			Kind:    eventlog.KindRefresh,
			Message: fmt.Sprintf("earlier snapshot (%s): %d logs, %s success", s.Trigger, s.TotalLogs, dashboard.Percent(s.SuccessRate)),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Time.Before(entries[j].Time) })
	return entries
}

func (m Model) loadLogs(limit int) tea.Cmd {
	if m.logSource == nil {
		return nil
	}
	src := m.logSource
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		records, err := src.GetLogs(ctx, limit)
		return logsMsg{limit: limit, records: records, err: err}
	}
}

// View renders the full dashboard.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	switch m.overlay {
	case OverlayEventLog:
		return m.events.View(m.width, m.height)
	case OverlayLogs:
		return m.viewer.View(m.width, m.height)
	}

	sections := []string{m.statusBar.View()}
	if m.state == live.Disconnected {
		sections = append(sections, m.renderDisconnected())
	}
	if m.toast.Active() {
		sections = append(sections, m.toast.View())
	}
	sections = append(sections,
		m.dashboard.View(),
		"",
		m.logs.View(),
		"",
		theme.StyleDimmed.Render(m.keys.helpLine()),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderDisconnected() string {
	detail := fmt.Sprintf("Reconnecting every %s...", m.reconnectDelay)
	if m.lastErr != nil {
		detail += "  " + theme.StyleDimmed.Render(m.lastErr.Error())
	}
	return lipgloss.NewStyle().
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorDanger).
		Render(lipgloss.NewStyle().Bold(true).Foreground(theme.ColorDanger).Render("DISCONNECTED") + "  " + detail)
}
