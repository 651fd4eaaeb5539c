package main

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/harmonia-sync/harmonia/internal/services"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	retry := services.DefaultRetryPolicy()
	if config.Sync.MaxAttempts > 0 {
		retry.MaxAttempts = config.Sync.MaxAttempts
	}

	var spotify services.Platform
	if config.Credentials.Spotify.ClientID != "" && config.Credentials.Spotify.ClientSecret != "" {
		if client, err := services.NewSpotifyClient(config.Credentials.Spotify, retry); err == nil {
			spotify = client
		} else {
			logger.Warn("spotify client unavailable", "error", err)
		}
	}

	var apple services.Platform
	if config.Credentials.Apple.DeveloperToken != "" {
		if client, err := services.NewAppleClient(config.Credentials.Apple, retry); err == nil {
			apple = client
		} else {
			logger.Warn("apple music client unavailable", "error", err)
		}
	}

	runner := NewRunner(RunnerOpts{
		Config:  config,
		Spotify: spotify,
		Apple:   apple,
		Logger:  logger,
	})

	app := &cli.Command{
		Name:     "harmonia",
		Usage:    "Keep Spotify & Apple Music libraries in sync",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrTokenExpired) {
			logger.Error("stored token expired, run 'harmonia auth spotify' to refresh")
			os.Exit(1)
		}
		logger.Fatalf("application error: %v", err)
	}
}
