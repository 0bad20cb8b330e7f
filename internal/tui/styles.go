package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorAccent = "86"
	colorDanger = "196"
	colorMuted  = "241"
)

var styles = struct {
	Title lipgloss.Style
	Muted lipgloss.Style
	Error lipgloss.Style
	Box   lipgloss.Style
}{
	Title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent)),
	Muted: lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted)),
	Error: lipgloss.NewStyle().Foreground(lipgloss.Color(colorDanger)),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(colorMuted)).
		Padding(0, 1),
}
