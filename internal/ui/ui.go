// Package ui holds the terminal styles shared by the CLI commands.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

// colorEnabled reports whether the terminal supports color output.
func colorEnabled() bool {
	return termenv.DefaultOutput().Profile != termenv.Ascii
}

// RenderPass styles success markers.
func RenderPass(s string) string {
	if !colorEnabled() {
		return s
	}
	return passStyle.Render(s)
}

// RenderWarn styles warnings.
func RenderWarn(s string) string {
	if !colorEnabled() {
		return s
	}
	return warnStyle.Render(s)
}

// RenderErr styles errors.
func RenderErr(s string) string {
	if !colorEnabled() {
		return s
	}
	return errStyle.Render(s)
}

// RenderAccent styles informational highlights.
func RenderAccent(s string) string {
	if !colorEnabled() {
		return s
	}
	return accentStyle.Render(s)
}
