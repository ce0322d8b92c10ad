package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the window.
type keyMap struct {
	NextSession   key.Binding
	PrevSession   key.Binding
	NewSession    key.Binding
	ToggleCapture key.Binding
	CloseSession  key.Binding
	ToggleLog     key.Binding
	Quit          key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		NextSession: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next session"),
		),
		PrevSession: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "previous session"),
		),
		NewSession: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new session"),
		),
		ToggleCapture: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "run/stop"),
		),
		CloseSession: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "close session"),
		),
		ToggleLog: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "log"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextSession, k.NewSession, k.ToggleCapture, k.CloseSession, k.ToggleLog, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextSession, k.PrevSession, k.NewSession, k.CloseSession},
		{k.ToggleCapture, k.ToggleLog, k.Quit},
	}
}
