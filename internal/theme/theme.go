// Package theme provides the Lip Gloss color palette and reusable styles
// for the HOS dashboard. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Confidence badge colors.
var (
	ColorConfidenceHigh = lipgloss.Color("#22c55e") // >=70%
	ColorConfidenceMid  = lipgloss.Color("#d97706") // 40-70%
	ColorConfidenceLow  = lipgloss.Color("#dc2626") // <40%
)

// Advice quality colors.
var (
	ColorExcellent = lipgloss.Color("#16a34a")
	ColorGood      = lipgloss.Color("#2563eb")
	ColorFair      = lipgloss.Color("#d97706")
	ColorPoor      = lipgloss.Color("#dc2626")
	ColorDefault   = lipgloss.Color("#9ca3af")
)

// Notice colors.
var (
	ColorSuccess = lipgloss.Color("#16a34a")
	ColorError   = lipgloss.Color("#dc2626")
	ColorInfo    = lipgloss.Color("#06b6d4")
)

// Chart colors.
var (
	ColorBar     = lipgloss.Color("#3b82f6")
	ColorBarDim  = lipgloss.Color("#374151")
	ColorGauge   = lipgloss.Color("#a855f7")
	ColorHistBar = lipgloss.Color("#06b6d4")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// ConfidenceColor returns the badge color for a retrieval confidence.
func ConfidenceColor(c float64) lipgloss.Color {
	switch {
	case c >= 0.7:
		return ColorConfidenceHigh
	case c >= 0.4:
		return ColorConfidenceMid
	default:
		return ColorConfidenceLow
	}
}

// QualityColor returns the badge color for an advice quality grade.
func QualityColor(quality string) lipgloss.Color {
	switch quality {
	case "excellent":
		return ColorExcellent
	case "good":
		return ColorGood
	case "fair":
		return ColorFair
	case "poor":
		return ColorPoor
	default:
		return ColorDefault
	}
}

// NoticeColor returns the color for a notice level.
func NoticeColor(level string) lipgloss.Color {
	switch level {
	case "success":
		return ColorSuccess
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// Badge renders text as a solid colored badge.
func Badge(text string, color lipgloss.Color) string {
	return lipgloss.NewStyle().
		Foreground(ColorBg).
		Background(color).
		Padding(0, 1).
		Render(text)
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)
)
