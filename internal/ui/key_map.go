package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the resolver TUI.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	enter   key.Binding
	back    key.Binding
	chooseA key.Binding
	chooseB key.Binding
	merge   key.Binding
	skip    key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "inspect")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		chooseA: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "keep side A")),
		chooseB: key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "keep side B")),
		merge:   key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "merge both")),
		skip:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "skip")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.enter, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter, k.back},
		{k.chooseA, k.chooseB, k.merge, k.skip},
		{k.quit},
	}
}
