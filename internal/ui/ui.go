// Package ui holds the small set of terminal styles shared by the CLI
// commands.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// RenderPass styles text as a success marker.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn styles text as a warning.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail styles text as a failure marker.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderAccent styles text for emphasis.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderDim styles text as secondary detail.
func RenderDim(s string) string { return dimStyle.Render(s) }
