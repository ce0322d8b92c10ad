package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines colors for the window.
type Theme struct {
	Name string

	Text      string
	Muted     string
	Accent    string
	Success   string
	Warning   string
	Danger    string
	Border    string
	TabActive string
}

// Styles holds the lipgloss styles derived from a theme.
type Styles struct {
	Title     lipgloss.Style
	Tab       lipgloss.Style
	ActiveTab lipgloss.Style
	Label     lipgloss.Style
	Text      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Danger    lipgloss.Style
	Panel     lipgloss.Style
}

// Styles returns Lipgloss styles for this theme.
func (t Theme) Styles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Accent)).
			Bold(true),
		Tab: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Muted)).
			Padding(0, 1),
		ActiveTab: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.TabActive)).
			Bold(true).
			Underline(true).
			Padding(0, 1),
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Muted)).
			Width(9),
		Text: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Text)),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Muted)),
		Success: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Success)).
			Bold(true),
		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Warning)),
		Danger: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Danger)).
			Bold(true),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(t.Border)).
			Padding(0, 1),
	}
}

// GetTheme returns the named theme, falling back to dark.
func GetTheme(name string) Theme {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "light":
		return lightTheme()
	default:
		return darkTheme()
	}
}

func darkTheme() Theme {
	return Theme{
		Name:      "dark",
		Text:      "#cdcecf",
		Muted:     "#738091",
		Accent:    "#86abdc",
		Success:   "#81b29a",
		Warning:   "#dbc074",
		Danger:    "#c94f6d",
		Border:    "#39506d",
		TabActive: "#e0def4",
	}
}

func lightTheme() Theme {
	return Theme{
		Name:      "light",
		Text:      "#3d2b5a",
		Muted:     "#6e6a86",
		Accent:    "#286983",
		Success:   "#3e8f5e",
		Warning:   "#b3761a",
		Danger:    "#b4637a",
		Border:    "#9893a5",
		TabActive: "#1f1d2e",
	}
}
