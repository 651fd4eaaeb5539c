// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand initializes the local configuration and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file and initialize the database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
	}
}

// authCommand handles platform authentication.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a platform",
		Commands: []*cli.Command{
			{
				Name:  "spotify",
				Usage: "Authenticate with Spotify using OAuth2",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.AuthSpotify,
			},
			{
				Name:  "apple",
				Usage: "Store an Apple Music user token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
					&cli.StringFlag{
						Name:     "user-token",
						Usage:    "Music User Token obtained via MusicKit",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "storefront",
						Usage: "Apple Music storefront (e.g. us, gb)",
					},
				},
				Action: r.AuthApple,
			},
		},
	}
}

// playlistsCommand manages which playlists participate in sync.
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "List tracked playlists and choose which ones sync",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "select",
				Usage: "Entity ID to select for syncing",
			},
			&cli.StringFlag{
				Name:  "deselect",
				Usage: "Entity ID to exclude from syncing",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Playlists,
	}
}

// syncCommand runs a sync cycle, once or continuously.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Synchronize libraries between Spotify and Apple Music",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Report what would change without writing anywhere",
			},
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Keep syncing on an interval until interrupted",
			},
			&cli.IntFlag{
				Name:  "interval",
				Usage: "Seconds between watch-mode cycles (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress progress output",
			},
		},
		Action: r.Sync,
	}
}

// resolveCommand works through parked conflicts.
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve parked conflicts, interactively or by ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "id",
				Usage: "Conflict ID to resolve non-interactively",
			},
			&cli.StringFlag{
				Name:  "choose",
				Usage: "Resolution to record: a, b, merge, or skip",
			},
		},
		Action: r.Resolve,
	}
}

// statusCommand summarizes the last cycle and pending conflicts.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the last sync result and pending conflicts",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Status,
	}
}

// cacheCommand inspects the track match cache.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Track match cache operations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cached cross-platform track matches",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CacheList,
			},
			{
				Name:   "clear",
				Usage:  "Drop all cached matches",
				Action: r.CacheClear,
			},
		},
	}
}
