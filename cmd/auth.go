package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/harmonia-sync/harmonia/internal/server"
	"github.com/harmonia-sync/harmonia/internal/services"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

// oauthTimeout bounds how long the loopback server waits for the user
// to finish the browser flow.
const oauthTimeout = 2 * time.Minute

// AuthSpotify runs the OAuth2 authorization-code flow against a
// loopback callback server and persists the resulting token.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	config := r.reloadConfig(configPath)

	retry := services.DefaultRetryPolicy()
	if config.Sync.MaxAttempts > 0 {
		retry.MaxAttempts = config.Sync.MaxAttempts
	}

	client, err := services.NewSpotifyClient(config.Credentials.Spotify, retry)
	if err != nil {
		return fmt.Errorf("set credentials.spotify in %s first: %w", configPath, err)
	}

	state, err := shared.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state token: %w", err)
	}

	redirectURI := config.Credentials.Spotify.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:8888/callback"
	}
	redirect, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("%w: invalid redirect_uri %q: %v", shared.ErrInvalidConfig, redirectURI, err)
	}

	authURL := client.AuthURL(state)
	r.logger.Info("starting OAuth flow", "callback", redirect.Host)

	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warn("could not open browser", "error", err)
		r.writePlain("Open this URL to authorize:\n%s\n", authURL)
	} else {
		r.writePlain("Waiting for authorization in your browser...\n")
	}

	handler := server.NewCallbackHandler(state)
	code, err := server.Await(ctx, redirect.Host, redirect.Path, handler, oauthTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	if err := client.Authenticate(ctx, code); err != nil {
		return err
	}

	config.Credentials.Spotify.AccessToken = client.Token().AccessToken
	if err := shared.SaveConfig(configPath, config); err != nil {
		return fmt.Errorf("authenticated but failed to persist token: %w", err)
	}

	r.config = config
	r.spotify = client

	r.writePlain("Spotify authorization complete\n")
	return nil
}

// AuthApple stores a MusicKit user token. Apple Music has no loopback
// flow; the token comes from a MusicKit-enabled web page or app.
func (r *Runner) AuthApple(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	config := r.reloadConfig(configPath)

	if config.Credentials.Apple.DeveloperToken == "" {
		return fmt.Errorf("%w: set credentials.apple.developer_token in %s first", shared.ErrMissingCredentials, configPath)
	}

	config.Credentials.Apple.UserToken = cmd.String("user-token")
	if storefront := cmd.String("storefront"); storefront != "" {
		config.Credentials.Apple.Storefront = storefront
	}

	retry := services.DefaultRetryPolicy()
	if config.Sync.MaxAttempts > 0 {
		retry.MaxAttempts = config.Sync.MaxAttempts
	}

	client, err := services.NewAppleClient(config.Credentials.Apple, retry)
	if err != nil {
		return err
	}

	if err := shared.SaveConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to persist user token: %w", err)
	}

	r.config = config
	r.apple = client

	r.writePlain("Apple Music user token saved\n")
	return nil
}

// reloadConfig re-reads the config file so auth flows see credentials
// edited after startup. Falls back to the runner's current config.
func (r *Runner) reloadConfig(path string) *shared.Config {
	if _, err := os.Stat(path); err == nil {
		if config, err := shared.LoadConfig(path); err == nil {
			return config
		}
		r.logger.Warn("failed to reload config, using current", "path", path)
	}
	return r.config
}
