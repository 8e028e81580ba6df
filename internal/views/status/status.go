package status

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hos-care/console/internal/live"
	"github.com/hos-care/console/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	State       live.ConnectionState
	LastErr     error
	Endpoint    string
	LastRefresh time.Time
	Failing     bool // the latest refresh attempt failed
	Now         time.Time
	Width       int
}

// New creates a status bar model.
func New(endpoint string) Model {
	return Model{Endpoint: endpoint}
}

// SetState records a channel transition.
func (m *Model) SetState(state live.ConnectionState, err error) {
	m.State = state
	m.LastErr = err
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch m.State {
	case live.Connected:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Live")
	case live.Connecting:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("◌ Connecting...")
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Disconnected")
	}

	refreshStr := theme.StyleDimmed.Render("waiting for first refresh")
	if !m.LastRefresh.IsZero() {
		refreshStr = "refreshed " + Ago(m.Now, m.LastRefresh)
	}
	if m.Failing {
		refreshStr += lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("  (refresh failing)")
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + refreshStr
	if m.Endpoint != "" {
		content += sep + theme.StyleDimmed.Render(m.Endpoint)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

// Ago formats the time since t in whole units.
func Ago(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}
