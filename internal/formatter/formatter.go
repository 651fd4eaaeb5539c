// package formatter renders sync results, status reports, and store
// listings as plain text or JSON for the CLI.
package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harmonia-sync/harmonia/internal/models"
)

// SyncResultText renders a cycle result for terminal output.
func SyncResultText(result *models.SyncResult) []byte {
	var buf bytes.Buffer

	if result.DryRun {
		buf.WriteString("Dry run - no changes were applied or recorded.\n\n")
	}
	buf.WriteString(fmt.Sprintf("Started:     %s\n", result.StartedAt.Format(time.RFC3339)))
	buf.WriteString(fmt.Sprintf("Duration:    %s\n", result.Duration.Round(time.Millisecond)))
	buf.WriteString(fmt.Sprintf("Applied:     %d\n", result.Applied))
	buf.WriteString(fmt.Sprintf("Auto-merged: %d\n", result.AutoMerged))
	buf.WriteString(fmt.Sprintf("Conflicts:   %d\n", result.Conflicts))
	buf.WriteString(fmt.Sprintf("Skipped:     %d\n", result.Skipped))
	buf.WriteString(fmt.Sprintf("Failed:      %d\n", result.Failed))

	if len(result.Failures) > 0 {
		buf.WriteString("\nFailures:\n")
		for _, f := range result.Failures {
			buf.WriteString(fmt.Sprintf("  - %s: %s\n", f.EntityName, f.Reason))
		}
	}
	return buf.Bytes()
}

// SyncResultJSON renders a cycle result as indented JSON.
func SyncResultJSON(result *models.SyncResult) ([]byte, error) {
	return json.MarshalIndent(result, "", "  ")
}

// StatusText renders the status report: the latest sync outcome plus
// any conflicts awaiting resolution.
func StatusText(latest *models.SyncResult, pending []*models.ConflictRecord) []byte {
	var buf bytes.Buffer

	if latest == nil {
		buf.WriteString("No sync has run yet.\n")
	} else {
		buf.WriteString("Last sync:\n\n")
		buf.Write(SyncResultText(latest))
	}

	if len(pending) == 0 {
		buf.WriteString("\nNo pending conflicts.\n")
		return buf.Bytes()
	}

	buf.WriteString(fmt.Sprintf("\nPending conflicts (%d):\n", len(pending)))
	for _, row := range pending {
		conflict := row.Conflict()
		buf.WriteString(fmt.Sprintf("  [%s] %s - %s\n", row.ID(), conflict.EntityName, conflict.Field))
	}
	buf.WriteString("\nResolve with: harmonia resolve --id <id> --choose a|b|merge|skip\n")
	return buf.Bytes()
}

// ConflictText renders one conflict with both sides' positions, for the
// resolve command.
func ConflictText(row *models.ConflictRecord) []byte {
	var buf bytes.Buffer
	conflict := row.Conflict()

	buf.WriteString(fmt.Sprintf("Conflict %s on %q (%s)\n\n", row.ID(), conflict.EntityName, conflict.Field))
	buf.WriteString("Side A:\n")
	buf.WriteString(changeText(conflict.A))
	buf.WriteString("\nSide B:\n")
	buf.WriteString(changeText(conflict.B))
	return buf.Bytes()
}

func changeText(c *models.Change) string {
	if c == nil {
		return "  (no change)\n"
	}
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("  %s on %s\n", c.Kind, c.Source))
	for _, t := range c.Added {
		buf.WriteString(fmt.Sprintf("    + %s - %s\n", t.PrimaryArtist(), t.Title))
	}
	for _, t := range c.Removed {
		buf.WriteString(fmt.Sprintf("    - %s - %s\n", t.PrimaryArtist(), t.Title))
	}
	if c.Reordered {
		buf.WriteString("    ~ reordered\n")
	}
	if c.Meta != nil && c.Meta.Name != nil {
		buf.WriteString(fmt.Sprintf("    name -> %q\n", *c.Meta.Name))
	}
	if c.Meta != nil && c.Meta.Description != nil {
		buf.WriteString(fmt.Sprintf("    description -> %q\n", *c.Meta.Description))
	}
	return buf.String()
}

// PlaylistsText renders the tracked-playlist listing with selection
// markers.
func PlaylistsText(rows []*models.PersistedEntity) []byte {
	var buf bytes.Buffer

	if len(rows) == 0 {
		buf.WriteString("No playlists discovered yet. Run a sync first.\n")
		return buf.Bytes()
	}

	for _, row := range rows {
		entity := row.Entity()
		marker := " "
		if entity.Selected {
			marker = "*"
		}
		synced := "never synced"
		if at := row.LastSyncedAt(); at != nil {
			synced = "synced " + at.Format("2006-01-02 15:04")
		}
		buf.WriteString(fmt.Sprintf("[%s] %-40s %3d tracks  %s  (%s)\n", marker, entity.Name, len(entity.Members), synced, row.ID()))
	}
	buf.WriteString("\n* = selected for sync\n")
	return buf.Bytes()
}

// CacheText renders match-cache rows for the cache list command.
func CacheText(rows []*models.CachedMatch) []byte {
	var buf bytes.Buffer

	if len(rows) == 0 {
		buf.WriteString("Match cache is empty.\n")
		return buf.Bytes()
	}

	for _, row := range rows {
		track := row.Track()
		buf.WriteString(fmt.Sprintf("%-14s %-6s %3d%%  %s - %s\n",
			row.CacheKey(), row.Method(), row.Confidence(), track.PrimaryArtist(), track.Title))
	}
	buf.WriteString(fmt.Sprintf("\n%d cached matches\n", len(rows)))
	return buf.Bytes()
}
