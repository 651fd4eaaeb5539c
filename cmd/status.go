package main

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"

	"github.com/harmonia-sync/harmonia/internal/formatter"
	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

// Status shows the last sync result and any pending conflicts.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var latest *models.SyncResult
	if entry, err := st.history.Latest(); err == nil {
		result := entry.Result()
		latest = &result
	} else if !errors.Is(err, shared.ErrEntityNotFound) {
		return err
	}

	pending, err := st.conflicts.List(map[string]any{"pending": true})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"latest":  latest,
			"pending": len(pending),
		}, true)
	}

	return r.writePlain("%s", formatter.StatusText(latest, pending))
}
