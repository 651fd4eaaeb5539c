package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/harmonia-sync/harmonia/internal/formatter"
	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/shared"
	"github.com/harmonia-sync/harmonia/internal/ui"
)

// Resolve records resolutions for parked conflicts. With --id and
// --choose it resolves one conflict directly; otherwise it launches the
// interactive resolver. Resolutions take effect on the next sync cycle.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if id := cmd.String("id"); id != "" {
		resolution, err := parseResolution(cmd.String("choose"))
		if err != nil {
			return err
		}

		row, err := st.conflicts.Get(id)
		if err != nil {
			return err
		}
		row.SetResolution(resolution)
		if err := st.conflicts.Update(row); err != nil {
			return err
		}

		r.writePlain("%s", formatter.ConflictText(row))
		r.writePlain("Recorded %q, applied on the next sync\n", resolution)
		return nil
	}

	pending, err := st.conflicts.List(map[string]any{"pending": true})
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		r.writePlain("No pending conflicts\n")
		return nil
	}

	model := ui.NewModel(st.conflicts, pending)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("resolver UI error: %w", err)
	}
	if err := model.Err(); err != nil {
		return err
	}

	r.writePlain("Resolved %d of %d conflicts, applied on the next sync\n", model.Resolved(), len(pending))
	return nil
}

// parseResolution maps the --choose flag to a stored resolution.
func parseResolution(choice string) (models.Resolution, error) {
	switch choice {
	case "a":
		return models.ResolutionChooseA, nil
	case "b":
		return models.ResolutionChooseB, nil
	case "merge":
		return models.ResolutionMerged, nil
	case "skip":
		return models.ResolutionSkip, nil
	default:
		return "", fmt.Errorf("%w: --choose must be a, b, merge, or skip (got %q)", shared.ErrInvalidFlag, choice)
	}
}
