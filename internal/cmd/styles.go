package cmd

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	// Colors
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	passColor    = lipgloss.Color("#10B981") // Green
	failColor    = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	nameStyle  = lipgloss.NewStyle().Bold(true)
	passStyle  = lipgloss.NewStyle().Foreground(passColor).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(failColor).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle = lipgloss.NewStyle().Foreground(failColor).PaddingLeft(4)
)

// defaultWidth is used when stdout is not a terminal.
const defaultWidth = 100

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}
