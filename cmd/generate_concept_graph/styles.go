package main

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent  = lipgloss.Color("#1F77B4")
	colorSuccess = lipgloss.Color("#2CA02C")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#7F8C8D")
)

// Styles used for terminal output
var Styles = struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Label    lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Box      lipgloss.Style
}{
	Title:    lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	Subtitle: lipgloss.NewStyle().Foreground(colorAccent),
	Label:    lipgloss.NewStyle().Bold(true).Width(15),
	Muted:    lipgloss.NewStyle().Foreground(colorMuted),
	Success:  lipgloss.NewStyle().Foreground(colorSuccess),
	Warning:  lipgloss.NewStyle().Foreground(colorWarning),
	Error:    lipgloss.NewStyle().Foreground(colorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAccent).
		Padding(0, 1),
}
