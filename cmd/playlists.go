package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/harmonia-sync/harmonia/internal/formatter"
	"github.com/harmonia-sync/harmonia/internal/models"
)

// Playlists lists tracked playlists and flips their selected flag.
// Liked songs and saved albums always sync and are not listed here.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if id := cmd.String("select"); id != "" {
		if err := st.entities.SetSelected(id, true); err != nil {
			return err
		}
		r.logger.Info("playlist selected for sync", "id", id)
	}
	if id := cmd.String("deselect"); id != "" {
		if err := st.entities.SetSelected(id, false); err != nil {
			return err
		}
		r.logger.Info("playlist excluded from sync", "id", id)
	}

	rows, err := st.entities.List(map[string]any{"kind": string(models.KindPlaylist)})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		summaries := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			entity := row.Entity()
			summaries = append(summaries, map[string]any{
				"id":       row.ID(),
				"name":     entity.Name,
				"tracks":   len(entity.Members),
				"selected": entity.Selected,
			})
		}
		return r.writeJSON(summaries, true)
	}

	return r.writePlain("%s", formatter.PlaylistsText(rows))
}
