// Package logs renders the recent-log list with confidence and quality
// badges.
package logs

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hos-care/console/internal/client"
	"github.com/hos-care/console/internal/theme"
)

// PreviewLen is how many characters of the symptom text are shown.
const PreviewLen = 50

// Model holds the recent log list.
type Model struct {
	Width   int
	records []client.LogRecord
}

// New creates an empty list.
func New() Model {
	return Model{}
}

// SetRecords replaces the list, most recent first.
func (m *Model) SetRecords(records []client.LogRecord) {
	m.records = records
}

// View renders one line per record.
func (m Model) View() string {
	header := theme.StyleHeader.Render("  Recent logs")
	if len(m.records) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, theme.StyleDimmed.Render("  No logs yet"))
	}

	lines := []string{header}
	for _, r := range m.records {
		conf := theme.Badge(fmt.Sprintf("%.1f%%", r.RAGConfidence*100), theme.ConfidenceColor(r.RAGConfidence))
		quality := r.AdviceQuality
		if quality == "" {
			quality = "-"
		}
		qual := theme.Badge(quality, theme.QualityColor(r.AdviceQuality))

		line := fmt.Sprintf("  %s - %s", theme.StyleDimmed.Render(r.Timestamp), Preview(r.UserInput))
		lines = append(lines, line+"  "+conf+" "+qual)
	}
	return strings.Join(lines, "\n")
}

// Preview shortens text to PreviewLen characters plus an ellipsis.
// Newlines are folded to spaces so each record stays on one line.
func Preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= PreviewLen {
		return text
	}
	return string(runes[:PreviewLen]) + "..."
}
