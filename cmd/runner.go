package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/harmonia-sync/harmonia/internal/matcher"
	"github.com/harmonia-sync/harmonia/internal/repositories"
	"github.com/harmonia-sync/harmonia/internal/services"
	"github.com/harmonia-sync/harmonia/internal/shared"
	"github.com/harmonia-sync/harmonia/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config  *shared.Config
	spotify services.Platform
	apple   services.Platform
	logger  *log.Logger
	output  io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config  *shared.Config
	Spotify services.Platform
	Apple   services.Platform
	Logger  *log.Logger
	Output  io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:  opts.Config,
		spotify: opts.Spotify,
		apple:   opts.Apple,
		logger:  opts.Logger,
		output:  opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, playlistsCommand, syncCommand, resolveCommand, statusCommand, cacheCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// store bundles the open database with the repositories commands use.
type store struct {
	db        *sql.DB
	entities  *repositories.EntityRepository
	conflicts *repositories.ConflictRepository
	history   *repositories.SyncLogRepository
	cache     *repositories.TrackCacheRepository
}

func (s *store) Close() error { return s.db.Close() }

// openStore opens the configured database and wires the repositories.
// Callers own the returned store and must Close it.
func (r *Runner) openStore() (*store, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database (run 'harmonia setup' first): %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.VerifySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date (run 'harmonia setup'): %w", err)
	}

	return &store{
		db:        db,
		entities:  repositories.NewEntityRepository(db),
		conflicts: repositories.NewConflictRepository(db),
		history:   repositories.NewSyncLogRepository(db),
		cache:     repositories.NewTrackCacheRepository(db),
	}, nil
}

// newEngine builds a sync engine over the open store and both platform
// clients.
func (r *Runner) newEngine(s *store) (*tasks.Engine, error) {
	if r.spotify == nil {
		return nil, fmt.Errorf("%w: Spotify credentials missing, run 'harmonia auth spotify'", shared.ErrMissingCredentials)
	}
	if r.apple == nil {
		return nil, fmt.Errorf("%w: Apple Music credentials missing, run 'harmonia auth apple'", shared.ErrMissingCredentials)
	}

	resolver := matcher.NewResolver(repositories.NewMatchCache(s.cache))
	return tasks.NewEngine(
		r.spotify, r.apple, resolver,
		s.entities, s.conflicts, s.history,
		r.config.Sync, r.logger,
	), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
