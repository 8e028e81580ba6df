package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the dashboard.
type KeyMap struct {
	Refresh  key.Binding
	EventLog key.Binding
	Logs     key.Binding
	Limit    key.Binding
	Up       key.Binding
	Down     key.Binding
	Escape   key.Binding
	Quit     key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		EventLog: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "event log"),
		),
		Logs: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "logs"),
		),
		Limit: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "cycle limit"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "scroll down"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// helpLine renders the short key help shown under the dashboard.
func (k KeyMap) helpLine() string {
	bindings := []key.Binding{k.Refresh, k.Logs, k.EventLog, k.Quit}
	s := " "
	for _, b := range bindings {
		h := b.Help()
		s += " " + h.Key + ":" + h.Desc
	}
	return s
}
