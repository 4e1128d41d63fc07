package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme contains the styles used to print a run.
type Theme struct {
	Name                  string
	AssistantPrefixStyle  lipgloss.Style
	ToolPrefixStyle       lipgloss.Style
	ServerToolPrefixStyle lipgloss.Style
	ErrorStyle            lipgloss.Style
	MutedStyle            lipgloss.Style
}

// ResolveTheme returns the named theme or the dark default.
func ResolveTheme(name string) Theme {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "light":
		return newLightTheme()
	default:
		return newDarkTheme()
	}
}

func newDarkTheme() Theme {
	return Theme{
		Name:                  "dark",
		AssistantPrefixStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true),
		ToolPrefixStyle:       lipgloss.NewStyle().Foreground(lipgloss.Color("111")).Bold(true),
		ServerToolPrefixStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("141")).Bold(true),
		ErrorStyle:            lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		MutedStyle:            lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true),
	}
}

func newLightTheme() Theme {
	return Theme{
		Name:                  "light",
		AssistantPrefixStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("94")).Bold(true),
		ToolPrefixStyle:       lipgloss.NewStyle().Foreground(lipgloss.Color("31")).Bold(true),
		ServerToolPrefixStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("91")).Bold(true),
		ErrorStyle:            lipgloss.NewStyle().Foreground(lipgloss.Color("160")),
		MutedStyle:            lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true),
	}
}
