package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorRed    = lipgloss.Color("#FF0000")
	colorGreen  = lipgloss.Color("#00FF00")
	colorYellow = lipgloss.Color("#FFFF00")
	colorCyan   = lipgloss.Color("#00FFFF")
	colorGray   = lipgloss.Color("#666666")
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	recordingStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	idleStyle      = lipgloss.NewStyle().Foreground(colorGray)
	dimStyle       = lipgloss.NewStyle().Foreground(colorGray)
	errorStyle     = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	completedStyle = lipgloss.NewStyle().Foreground(colorGreen)
	pendingStyle   = lipgloss.NewStyle().Foreground(colorYellow)
	keyStyle       = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
)
