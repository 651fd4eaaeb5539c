package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/harmonia-sync/harmonia/internal/formatter"
)

// CacheList prints the stored cross-platform track matches.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rows, err := st.cache.List(map[string]any{})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		summaries := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			track := row.Track()
			summaries = append(summaries, map[string]any{
				"key":        row.CacheKey(),
				"title":      track.Title,
				"artist":     track.PrimaryArtist(),
				"confidence": row.Confidence(),
				"method":     row.Method(),
			})
		}
		return r.writeJSON(summaries, true)
	}

	return r.writePlain("%s", formatter.CacheText(rows))
}

// CacheClear drops every cached match. Future cycles re-resolve tracks
// from the platform catalogs.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	count, err := st.cache.Clear()
	if err != nil {
		return err
	}

	r.logger.Info("cache cleared", "removed", count)
	r.writePlain("Removed %d cached matches\n", count)
	return nil
}
