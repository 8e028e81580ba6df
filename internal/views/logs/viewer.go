package logs

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hos-care/console/internal/client"
	"github.com/hos-care/console/internal/theme"
)

// Limits are the page sizes the viewer cycles through.
var Limits = []int{10, 50, 100}

// Viewer is the full log table: an operator-chosen page of records with
// processing time and image columns, and the advice of the selected row.
type Viewer struct {
	Limit   int
	Loading bool
	Err     error
	Cursor  int

	records []client.LogRecord
}

// NewViewer creates a viewer at the smallest limit.
func NewViewer() Viewer {
	return Viewer{Limit: Limits[0]}
}

// NextLimit advances to the next page size and returns it.
func (v *Viewer) NextLimit() int {
	next := Limits[0]
	for i, l := range Limits {
		if l == v.Limit && i+1 < len(Limits) {
			next = Limits[i+1]
		}
	}
	v.Limit = next
	return next
}

// SetResult stores a fetch result. Results for a limit the operator has
// since moved away from are dropped; it reports whether the result was kept.
func (v *Viewer) SetResult(limit int, records []client.LogRecord, err error) bool {
	if limit != v.Limit {
		return false
	}
	v.Loading = false
	v.Err = err
	if err != nil {
		return true
	}
	v.records = records
	v.Cursor = min(v.Cursor, max(len(records)-1, 0))
	return true
}

// Records returns the rows currently shown.
func (v Viewer) Records() []client.LogRecord {
	return v.records
}

func (v *Viewer) CursorUp() {
	v.Cursor = max(v.Cursor-1, 0)
}

func (v *Viewer) CursorDown() {
	v.Cursor = min(v.Cursor+1, max(len(v.records)-1, 0))
}

// View renders the table as an overlay panel.
func (v Viewer) View(width, height int) string {
	innerW := max(width-4, 40)
	title := theme.StyleHeader.Render(fmt.Sprintf(" LOGS (limit %d) ", v.Limit))
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:select  n:limit  r:reload  esc:close  %d rows", len(v.records)))

	var body string
	switch {
	case v.Err != nil:
		body = lipgloss.NewStyle().Foreground(theme.ColorError).Render("  load failed: " + v.Err.Error())
	case v.Loading && len(v.records) == 0:
		body = theme.StyleDimmed.Render("  Loading...")
	case len(v.records) == 0:
		body = theme.StyleDimmed.Render("  No logs yet")
	default:
		body = v.renderTable(innerW-4, max(height-12, 3))
	}

	sections := []string{title, "", body}
	if v.Err == nil && len(v.records) > 0 {
		sections = append(sections, "", v.renderAdvice(innerW-4))
	}
	sections = append(sections, "", help)

	return lipgloss.NewStyle().
		Width(innerW).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (v Viewer) renderTable(width, visible int) string {
	inputW := max(width-58, 12)
	header := theme.StyleDimmed.Render(fmt.Sprintf("  %-19s  %-*s  %7s  %-9s  %7s  %s",
		"Time", inputW, "Symptom", "Conf", "Quality", "Proc", "Image"))

	// Keep the cursor in view.
	start := 0
	if v.Cursor >= visible {
		start = v.Cursor - visible + 1
	}
	end := min(start+visible, len(v.records))

	lines := []string{header}
	for i := start; i < end; i++ {
		r := v.records[i]
		ts := r.Timestamp
		if t, ok := r.Time(); ok {
			ts = t.Local().Format("2006-01-02 15:04:05")
		}
		input := Preview(r.UserInput)
		if n := len([]rune(input)); n > inputW {
			input = string([]rune(input)[:inputW-1]) + "…"
		} else {
			input += strings.Repeat(" ", inputW-n)
		}
		quality := r.AdviceQuality
		if quality == "" {
			quality = "-"
		}
		image := "-"
		if r.ImageUploaded {
			image = "yes"
		}

		conf := lipgloss.NewStyle().Foreground(theme.ConfidenceColor(r.RAGConfidence)).Render(fmt.Sprintf("%6.1f%%", r.RAGConfidence*100))
		qual := lipgloss.NewStyle().Foreground(theme.QualityColor(r.AdviceQuality)).Render(fmt.Sprintf("%-9s", quality))

		marker := "  "
		if i == v.Cursor {
			marker = lipgloss.NewStyle().Foreground(theme.ColorBright).Render("> ")
		}
		lines = append(lines, fmt.Sprintf("%s%-19s  %s  %s  %s  %6.2fs  %s",
			marker, ts, input, conf, qual, r.ProcessingTime, image))
	}
	return strings.Join(lines, "\n")
}

func (v Viewer) renderAdvice(width int) string {
	r := v.records[v.Cursor]
	advice := strings.Join(strings.Fields(r.AdviceContent), " ")
	if advice == "" {
		advice = "(no advice recorded)"
	}
	return lipgloss.NewStyle().Width(width).Render(theme.StyleHeader.Render("Advice") + "  " + advice)
}
