package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/nmpcsim/internal/mpc"
)

var (
	Panel       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444466")).Padding(0, 1)
	Title       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ffff"))
	Subtle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#666688"))
	MetricLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("#888899")).Width(12)
	MetricValue = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ccff")).Bold(true)
	KeyHint     = lipgloss.NewStyle().Foreground(lipgloss.Color("#666688")).Italic(true)

	// Sparkline bar colors
	SparkHigh = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444"))
	SparkMid  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffcc00"))
	SparkLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff88"))

	modeStyles = map[mpc.Mode]lipgloss.Style{
		mpc.Initializing: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8888ff")),
		mpc.Running:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff88")),
		mpc.Degraded:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffaa00")),
		mpc.Finished:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")),
	}
)

// ModeBadge renders a mode in its status color.
func ModeBadge(m mpc.Mode) string {
	style, ok := modeStyles[m]
	if !ok {
		return m.String()
	}
	return style.Render(m.String())
}

// ProgressBar renders a run progress bar for percent in [0, 1].
func ProgressBar(percent float64, width int) string {
	filled := int(percent * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return SparkLow.Render(strings.Repeat("█", filled)) + Subtle.Render(strings.Repeat("░", width-filled))
}

// Sparkline renders the most recent width values; high values are drawn hot.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 {
		return strings.Repeat("─", width)
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}

	var b strings.Builder
	for _, v := range values {
		norm := (v - lo) / rng
		idx := int(norm * float64(len(chars)-1))
		idx = max(0, min(idx, len(chars)-1))
		c := string(chars[idx])
		switch {
		case norm > 0.7:
			b.WriteString(SparkHigh.Render(c))
		case norm > 0.3:
			b.WriteString(SparkMid.Render(c))
		default:
			b.WriteString(SparkLow.Render(c))
		}
	}
	return b.String()
}
