// Package dashboard provides the metrics row, the animated success-rate
// gauge and the confidence and hourly charts.
package dashboard

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/hos-care/console/internal/client"
	"github.com/hos-care/console/internal/live"
	"github.com/hos-care/console/internal/theme"
)

// FPS is the gauge animation frame rate.
const FPS = 60

// Model holds the dashboard state.
type Model struct {
	Width int

	stats    client.Stats
	recent   []client.LogRecord
	hasStats bool

	spring harmonica.Spring
	gauge  float64 // displayed success rate, eased toward stats.SuccessRate
	vel    float64
}

// New creates a dashboard model.
func New() Model {
	return Model{spring: harmonica.NewSpring(harmonica.FPS(FPS), 6.0, 0.5)}
}

// SetSnapshot replaces the displayed aggregates. The gauge starts easing
// toward the new success rate; call Animate once per frame until Settled.
func (m *Model) SetSnapshot(snap live.Snapshot) {
	m.stats = snap.Stats
	m.recent = snap.Recent
	m.hasStats = true
}

// Animate advances the gauge by one frame.
func (m *Model) Animate() {
	m.gauge, m.vel = m.spring.Update(m.gauge, m.vel, m.stats.SuccessRate)
}

// Settled reports whether the gauge has come to rest on its target.
func (m Model) Settled() bool {
	return math.Abs(m.gauge-m.stats.SuccessRate) < 1e-3 && math.Abs(m.vel) < 1e-3
}

// Gauge returns the value the gauge currently displays.
func (m Model) Gauge() float64 {
	return m.gauge
}

// View renders the metrics row, gauge and charts.
func (m Model) View() string {
	width := max(m.Width, 40)
	if !m.hasStats {
		return lipgloss.NewStyle().
			Width(width).
			Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Render(theme.StyleDimmed.Render("Loading statistics..."))
	}

	charts := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderConfidence(),
		"    ",
		m.renderHourly(),
	)
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsRow(width),
		m.renderGauge(width),
		"",
		charts,
	)
}

func (m Model) renderStatsRow(width int) string {
	statStyle := lipgloss.NewStyle().Padding(0, 1)

	pw, pwColor := "off", theme.ColorDimmed
	if m.stats.PlaywrightEnabled {
		pw, pwColor = "on", theme.ColorHealthy
	}

	stats := []string{
		statStyle.Foreground(theme.ColorBright).Render(
			fmt.Sprintf("Logs: %d", m.stats.TotalLogs)),
		statStyle.Foreground(theme.ColorGauge).Render(
			fmt.Sprintf("Success: %s", Percent(m.stats.SuccessRate))),
		statStyle.Foreground(theme.ColorInfo).Render(
			fmt.Sprintf("RAG passages: %d", m.stats.RAGPassagesCount)),
		statStyle.Foreground(pwColor).Render(
			"Playwright: " + pw),
	}

	content := strings.Join(stats, lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | "))

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

// renderGauge draws the eased success rate as a horizontal bar.
func (m Model) renderGauge(width int) string {
	barWidth := max(width-22, 10)
	v := math.Max(0, math.Min(1, m.gauge))
	filled := int(math.Round(v * float64(barWidth)))

	bar := lipgloss.NewStyle().Foreground(theme.ColorGauge).Render(strings.Repeat("█", filled))
	bar += lipgloss.NewStyle().Foreground(theme.ColorBarDim).Render(strings.Repeat("░", barWidth-filled))
	return "  " + theme.StyleDimmed.Render("success ") + bar + " " + Percent(v)
}

func (m Model) renderConfidence() string {
	const barWidth = 20
	lines := []string{theme.StyleHeader.Render("  Confidence distribution")}

	order := m.stats.BucketOrder()
	if len(order) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, append(lines, theme.StyleDimmed.Render("  No data"))...)
	}

	peak := 0
	for _, b := range order {
		peak = max(peak, m.stats.ConfidenceDistribution[b])
	}
	for _, b := range order {
		n := m.stats.ConfidenceDistribution[b]
		filled := 0
		if peak > 0 {
			filled = n * barWidth / peak
		}
		bar := lipgloss.NewStyle().Foreground(theme.ColorBar).Render(strings.Repeat("█", filled))
		bar += lipgloss.NewStyle().Foreground(theme.ColorBarDim).Render(strings.Repeat("░", barWidth-filled))
		lines = append(lines, fmt.Sprintf("  %-8s %s %d", b, bar, n))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

func (m Model) renderHourly() string {
	counts, ok := HourlyCounts(m.recent)
	header := theme.StyleHeader.Render("Recent logs by hour")
	if !ok {
		return lipgloss.JoinVertical(lipgloss.Left, header, theme.StyleDimmed.Render("No data"))
	}

	peak := 0
	for _, n := range counts {
		peak = max(peak, n)
	}
	var spark strings.Builder
	for _, n := range counts {
		if n == 0 {
			spark.WriteRune(' ')
			continue
		}
		idx := (n*len(sparkBlocks) - 1) / peak
		spark.WriteRune(sparkBlocks[idx])
	}
	axis := "0     6     12    18  23"
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		lipgloss.NewStyle().Foreground(theme.ColorHistBar).Render(spark.String()),
		theme.StyleDimmed.Render(axis),
		theme.StyleDimmed.Render(fmt.Sprintf("peak %d/h", peak)),
	)
}

// HourlyCounts bins record timestamps by local hour of day. Records whose
// timestamp does not parse are skipped; ok is false when none parse.
func HourlyCounts(records []client.LogRecord) (counts [24]int, ok bool) {
	for _, r := range records {
		t, parsed := r.Time()
		if !parsed {
			continue
		}
		counts[t.Hour()]++
		ok = true
	}
	return counts, ok
}

// Percent formats a 0..1 rate with one decimal.
func Percent(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}
