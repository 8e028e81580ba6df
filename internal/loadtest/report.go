package loadtest

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hos-care/console/internal/theme"
)

var (
	passStyle = lipgloss.NewStyle().Foreground(theme.ColorHealthy)
	failStyle = lipgloss.NewStyle().Foreground(theme.ColorDanger)
)

// WriteTo prints the report in a terminal-friendly layout.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder

	b.WriteString(theme.StyleHeader.Render("HOS smoke load"))
	fmt.Fprintf(&b, "  %s, %d iterations, peak %d VUs\n\n",
		r.Elapsed.Round(time.Millisecond), r.Iterations, r.PeakVUs)

	nameWidth := 0
	for _, c := range r.Checks {
		if len(c.Name) > nameWidth {
			nameWidth = len(c.Name)
		}
	}
	for _, c := range r.Checks {
		mark := passStyle.Render("✓")
		if c.Failed > 0 {
			mark = failStyle.Render("✗")
		}
		fmt.Fprintf(&b, "  %s %-*s  %d passed  %d failed", mark, nameWidth, c.Name, c.Passed, c.Failed)
		if codes := formatCodes(c.Codes); codes != "" {
			b.WriteString(theme.StyleDimmed.Render("  (" + codes + ")"))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n  requests  %d  min %s  avg %s  max %s\n",
		r.Latency.Count,
		r.Latency.Min.Round(time.Microsecond),
		r.Latency.Avg().Round(time.Microsecond),
		r.Latency.Max.Round(time.Microsecond))

	if r.Self.Samples > 0 {
		fmt.Fprintf(&b, "  generator cpu %.1f%%  peak rss %s\n", r.Self.CPUPercent, formatBytes(r.Self.PeakRSS))
	}

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func formatCodes(codes map[int]int) string {
	if len(codes) == 0 {
		return ""
	}
	keys := make([]int, 0, len(codes))
	for k := range codes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		label := strconv.Itoa(k)
		if k == 0 {
			label = "transport"
		}
		parts = append(parts, fmt.Sprintf("%s×%d", label, codes[k]))
	}
	return strings.Join(parts, ", ")
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
