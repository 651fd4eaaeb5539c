package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

var (
	_ tea.Msg = resolutionSavedMsg{}
)

// resolutionSavedMsg reports the outcome of persisting one resolution.
type resolutionSavedMsg struct {
	id  string
	err error
}
