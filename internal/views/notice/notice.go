// Package notice renders the transient toast shown for crawl results and
// operator actions.
package notice

import (
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hos-care/console/internal/live"
	"github.com/hos-care/console/internal/theme"
)

// TTL is how long a notice stays on screen.
const TTL = 5 * time.Second

// Model holds the current notice, if any.
type Model struct {
	current *live.Notice
}

// New creates an empty toast.
func New() Model {
	return Model{}
}

// Show replaces the current notice.
func (m *Model) Show(n live.Notice) {
	m.current = &n
}

// Expire clears the notice once it is older than TTL at now.
func (m *Model) Expire(now time.Time) {
	if m.current != nil && now.Sub(m.current.At) >= TTL {
		m.current = nil
	}
}

// Active reports whether a notice is showing.
func (m Model) Active() bool {
	return m.current != nil
}

// View renders the toast, or an empty string.
func (m Model) View() string {
	if m.current == nil {
		return ""
	}
	color := theme.NoticeColor(string(m.current.Level))
	return lipgloss.NewStyle().
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Foreground(color).
		Render(m.current.Text)
}
