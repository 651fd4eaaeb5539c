package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/repositories"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ConflictListView ViewState = iota
	DetailView
)

// Model represents the resolver TUI state.
type Model struct {
	view      ViewState
	conflicts *repositories.ConflictRepository
	pending   []*models.ConflictRecord
	selected  *models.ConflictRecord
	list      list.Model
	width     int
	height    int
	resolved  int
	err       error
	help      help.Model
	keys      keyMap
}

// NewModel creates a resolver over the given pending conflict rows.
func NewModel(conflicts *repositories.ConflictRepository, pending []*models.ConflictRecord) *Model {
	items := make([]list.Item, len(pending))
	for i, record := range pending {
		items[i] = conflictItem{record: record}
	}
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Pending Conflicts"

	return &Model{
		view:      ConflictListView,
		conflicts: conflicts,
		pending:   pending,
		list:      l,
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Resolved reports how many conflicts were resolved this session.
func (m *Model) Resolved() int { return m.resolved }

// Err returns the first store error encountered, if any.
func (m *Model) Err() error { return m.err }

func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ConflictListView:
			return m.handleListKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		}

	case resolutionSavedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.resolved++
		m.removePending(msg.id)
		m.view = ConflictListView
		if len(m.pending) == 0 {
			return m, tea.Quit
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case ConflictListView:
		return m.renderList()
	case DetailView:
		return m.renderDetail()
	default:
		return ""
	}
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "enter":
		if item, ok := m.list.SelectedItem().(conflictItem); ok {
			m.selected = item.record
			m.view = DetailView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = ConflictListView
		return m, nil
	case "a":
		return m, m.resolve(models.ResolutionChooseA)
	case "b":
		return m, m.resolve(models.ResolutionChooseB)
	case "m":
		return m, m.resolve(models.ResolutionMerged)
	case "s":
		return m, m.resolve(models.ResolutionSkip)
	}
	return m, nil
}

// resolve persists the chosen resolution for the selected conflict.
func (m *Model) resolve(r models.Resolution) tea.Cmd {
	record := m.selected
	return func() tea.Msg {
		record.SetResolution(r)
		err := m.conflicts.Update(record)
		return resolutionSavedMsg{id: record.ID(), err: err}
	}
}

func (m *Model) removePending(id string) {
	for i, record := range m.pending {
		if record.ID() == id {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}
	items := make([]list.Item, len(m.pending))
	for i, record := range m.pending {
		items[i] = conflictItem{record: record}
	}
	m.list.SetItems(items)
	m.selected = nil
}

func (m *Model) renderList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.list.View(), helpView)
}

func (m *Model) renderDetail() string {
	conflict := m.selected.Conflict()
	title := styles.title.Render(fmt.Sprintf("%s - %s conflict", conflict.EntityName, conflict.Field))

	var body strings.Builder
	body.WriteString(styles.ok.Render("Side A") + "\n")
	body.WriteString(renderSide(conflict.A))
	body.WriteString("\n" + styles.warn.Render("Side B") + "\n")
	body.WriteString(renderSide(conflict.B))

	helpKeys := []key.Binding{m.keys.chooseA, m.keys.chooseB, m.keys.merge, m.keys.skip, m.keys.back}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, body.String(), helpView)
}

func renderSide(c *models.Change) string {
	if c == nil {
		return "  (no change)\n"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("  %s on %s\n", c.Kind, c.Source))
	for _, t := range c.Added {
		b.WriteString(fmt.Sprintf("    + %s - %s\n", t.PrimaryArtist(), t.Title))
	}
	for _, t := range c.Removed {
		b.WriteString(fmt.Sprintf("    - %s - %s\n", t.PrimaryArtist(), t.Title))
	}
	if c.Reordered {
		b.WriteString("    ~ reordered\n")
	}
	if c.Meta != nil && c.Meta.Name != nil {
		b.WriteString(fmt.Sprintf("    name -> %q\n", *c.Meta.Name))
	}
	if c.Meta != nil && c.Meta.Description != nil {
		b.WriteString(fmt.Sprintf("    description -> %q\n", *c.Meta.Description))
	}
	return b.String()
}
