package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/harmonia-sync/harmonia/internal/matcher"
	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/repositories"
	"github.com/harmonia-sync/harmonia/internal/services"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

const (
	defaultWorkers   = 4
	defaultRateLimit = 5.0
)

// Options tunes a single sync cycle.
type Options struct {
	DryRun bool // classify and report without applying or persisting
}

// Orchestrator runs bidirectional sync cycles between two platforms.
type Orchestrator interface {
	// Run executes one full cycle and returns its result. Progress
	// updates are sent to the channel if provided; sends never block.
	Run(ctx context.Context, opts Options, progress chan<- ProgressUpdate) (*models.SyncResult, error)

	// Watch re-runs cycles on a fixed interval until the context is
	// cancelled. Each completed cycle is reported through each.
	Watch(ctx context.Context, interval time.Duration, opts Options, progress chan<- ProgressUpdate, each func(*models.SyncResult, error)) error
}

// Engine is the default Orchestrator. One cycle walks every tracked
// entity through fetch, diff, classify, apply, and commit; entities are
// processed independently so one failure or unresolved conflict never
// blocks the rest.
type Engine struct {
	spotify  services.Platform
	apple    services.Platform
	resolver *matcher.Resolver

	entities  *repositories.EntityRepository
	conflicts *repositories.ConflictRepository
	history   *repositories.SyncLogRepository

	workers int
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewEngine creates a sync engine over the two platform clients and the
// local store repositories.
func NewEngine(
	spotify, apple services.Platform,
	resolver *matcher.Resolver,
	entities *repositories.EntityRepository,
	conflicts *repositories.ConflictRepository,
	history *repositories.SyncLogRepository,
	cfg shared.SyncConfig,
	logger *log.Logger,
) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	return &Engine{
		spotify:   spotify,
		apple:     apple,
		resolver:  resolver,
		entities:  entities,
		conflicts: conflicts,
		history:   history,
		workers:   workers,
		limiter:   rate.NewLimiter(rate.Limit(limit), 1),
		logger:    logger,
	}
}

// Run implements Orchestrator.
func (e *Engine) Run(ctx context.Context, opts Options, progress chan<- ProgressUpdate) (*models.SyncResult, error) {
	started := time.Now()
	result := &models.SyncResult{StartedAt: started, DryRun: opts.DryRun}

	snapA, snapB, err := e.fetch(ctx, progress)
	if err != nil {
		sendProgress(progress, ProgressUpdate{Phase: Aborted, Message: err.Error()})
		return nil, err
	}

	pairings, err := e.pair(snapA, snapB, opts.DryRun)
	if err != nil {
		sendProgress(progress, ProgressUpdate{Phase: Aborted, Message: err.Error()})
		return nil, err
	}

	total := len(pairings)
	for i, pr := range pairings {
		if err := ctx.Err(); err != nil {
			sendProgress(progress, ProgressUpdate{Phase: Aborted, Message: err.Error()})
			return nil, err
		}
		e.runEntity(ctx, pr, opts, result, progress, i+1, total)
	}

	result.Duration = time.Since(started)

	if !opts.DryRun {
		if err := e.history.Create(models.NewSyncLogEntry(0, *result)); err != nil {
			e.logger.Error("failed to record sync result", "error", err)
		}
	}

	sendProgress(progress, doneUpdate(result.Applied, result.Conflicts))
	return result, nil
}

// Watch implements Orchestrator. The first cycle runs immediately.
func (e *Engine) Watch(ctx context.Context, interval time.Duration, opts Options, progress chan<- ProgressUpdate, each func(*models.SyncResult, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := e.Run(ctx, opts, progress)
		if each != nil {
			each(result, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// fetch retrieves both remote snapshots concurrently. Either failure
// aborts the cycle; a half-fetched cycle could misread absence as
// deletion.
func (e *Engine) fetch(ctx context.Context, progress chan<- ProgressUpdate) (snapA, snapB *models.Snapshot, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sendProgress(progress, fetchingUpdate(e.spotify.Name()))
		var err error
		snapA, err = e.spotify.FetchSnapshot(gctx)
		return err
	})
	g.Go(func() error {
		sendProgress(progress, fetchingUpdate(e.apple.Name()))
		var err error
		snapB, err = e.apple.FetchSnapshot(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("snapshot fetch failed: %w", err)
	}
	return snapA, snapB, nil
}

// platform returns the client for p.
func (e *Engine) platform(p models.Platform) services.Platform {
	if p == models.PlatformApple {
		return e.apple
	}
	return e.spotify
}

// sendProgress sends an update without blocking. Updates are dropped if
// the channel is full or nil.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
