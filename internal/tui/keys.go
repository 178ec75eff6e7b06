package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the timer face.
type KeyMap struct {
	Toggle key.Binding
	Stop   key.Binding
	Chime  key.Binding
	Help   key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" ", "space", "enter"),
			key.WithHelp("space", "start/pause/resume"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s", "x"),
			key.WithHelp("s", "stop"),
		),
		Chime: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "chime"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns a short help string
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Stop, k.Help, k.Quit}
}

// FullHelp returns the full help string
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Stop, k.Chime},
		{k.Help, k.Quit},
	}
}
