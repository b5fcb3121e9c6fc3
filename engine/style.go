package engine

import "github.com/charmbracelet/lipgloss"

var (
	runStyle  = lipgloss.NewStyle().Bold(true)
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	skipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

func tag(style lipgloss.Style, text string) string {
	return "[" + style.Render(text) + "]"
}
