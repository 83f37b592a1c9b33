package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap is the set of bindings of the device list.
type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Refresh   key.Binding
	Bind      key.Binding
	ForceBind key.Binding
	Unbind    key.Binding
	Attach    key.Binding
	Detach    key.Binding
	AutoStart key.Binding
	AutoStop  key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Bind: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "bind"),
		),
		ForceBind: key.NewBinding(
			key.WithKeys("B"),
			key.WithHelp("B", "force bind"),
		),
		Unbind: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "unbind"),
		),
		Attach: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "attach"),
		),
		Detach: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "detach"),
		),
		AutoStart: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "start auto-attach"),
		),
		AutoStop: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "stop auto-attach"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Bind, k.Attach, k.Detach, k.AutoStart, k.AutoStop, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Refresh},
		{k.Bind, k.ForceBind, k.Unbind},
		{k.Attach, k.Detach},
		{k.AutoStart, k.AutoStop},
		{k.Help, k.Quit},
	}
}
