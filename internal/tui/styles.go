// Package tui holds the optional interactive surfaces: a setup wizard that
// collects RunConfig's options when the caller passes -wizard, and a live
// dashboard for a running load test.
package tui

import (
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

var (
	primaryColor   = lipgloss.Color("#00FFFF")
	secondaryColor = lipgloss.Color("#FF6B9D")
	accentColor    = lipgloss.Color("#00FF88")
	subColor       = lipgloss.Color("241")
)

// MakeNeonTheme builds the huh theme the setup wizard renders with.
func MakeNeonTheme() *huh.Theme {
	t := huh.ThemeCharm()
	t.Focused.Title = t.Focused.Title.Foreground(primaryColor).Bold(true)
	t.Focused.Description = t.Focused.Description.Foreground(subColor)
	t.Focused.Base = t.Focused.Base.BorderForeground(secondaryColor)
	t.Focused.SelectSelector = t.Focused.SelectSelector.Foreground(accentColor).SetString("> ")
	t.Focused.SelectedOption = t.Focused.SelectedOption.Foreground(primaryColor).Bold(true)
	return t
}
