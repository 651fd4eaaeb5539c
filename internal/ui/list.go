package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/harmonia-sync/harmonia/internal/models"
)

var _ list.Item = conflictItem{}

// conflictItem wraps [models.ConflictRecord] to implement [list.Item].
type conflictItem struct {
	record *models.ConflictRecord
}

func (i conflictItem) FilterValue() string { return i.record.Conflict().EntityName }
func (i conflictItem) Title() string {
	conflict := i.record.Conflict()
	return fmt.Sprintf("%s (%s)", conflict.EntityName, conflict.Field)
}
func (i conflictItem) Description() string {
	conflict := i.record.Conflict()
	return fmt.Sprintf("%s vs %s", sideSummary(conflict.A), sideSummary(conflict.B))
}

// sideSummary compresses one side of a conflict into a short label.
func sideSummary(c *models.Change) string {
	if c == nil {
		return "no change"
	}
	switch {
	case c.Kind == models.ChangeDeleted:
		return fmt.Sprintf("%s deleted", c.Source)
	case c.Kind == models.ChangeCreated:
		return fmt.Sprintf("%s created", c.Source)
	case c.Meta != nil && c.Meta.Name != nil:
		return fmt.Sprintf("%s renamed to %q", c.Source, *c.Meta.Name)
	case c.Reordered:
		return fmt.Sprintf("%s reordered", c.Source)
	default:
		return fmt.Sprintf("%s +%d/-%d", c.Source, len(c.Added), len(c.Removed))
	}
}
