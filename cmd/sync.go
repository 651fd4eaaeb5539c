package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/harmonia-sync/harmonia/internal/formatter"
	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/tasks"
)

// Sync runs one sync cycle, or keeps cycling when --watch is set.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := r.newEngine(st)
	if err != nil {
		return err
	}

	opts := tasks.Options{DryRun: cmd.Bool("dry-run")}
	jsonOut := cmd.Bool("json")
	quiet := cmd.Bool("quiet") || jsonOut

	progress := make(chan tasks.ProgressUpdate, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			if quiet {
				continue
			}
			r.writePlain("%s\n", update.Message)
		}
	}()

	if cmd.Bool("watch") {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()

		interval := r.watchInterval(cmd)
		r.logger.Info("watch mode", "interval", interval)

		err = engine.Watch(ctx, interval, opts, progress, func(result *models.SyncResult, runErr error) {
			if runErr != nil {
				r.logger.Error("sync cycle failed", "error", runErr)
				return
			}
			r.report(result, jsonOut)
		})
		close(progress)
		wg.Wait()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	result, err := engine.Run(ctx, opts, progress)
	close(progress)
	wg.Wait()
	if err != nil {
		return err
	}

	return r.report(result, jsonOut)
}

func (r *Runner) report(result *models.SyncResult, jsonOut bool) error {
	if jsonOut {
		output, err := formatter.SyncResultJSON(result)
		if err != nil {
			return err
		}
		return r.writePlain("%s\n", output)
	}
	return r.writePlain("%s", formatter.SyncResultText(result))
}

// watchInterval resolves the cycle interval from the flag, then the
// config, then a five minute default.
func (r *Runner) watchInterval(cmd *cli.Command) time.Duration {
	if secs := cmd.Int("interval"); secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if r.config.Sync.IntervalSec > 0 {
		return time.Duration(r.config.Sync.IntervalSec) * time.Second
	}
	return 5 * time.Minute
}
