package shared

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")

	// Transient platform errors. Callers retry these with backoff and
	// surface them as per-change failures when retries exhaust.
	ErrRateLimited         = fmt.Errorf("rate limited")
	ErrPlatformUnavailable = fmt.Errorf("platform unavailable")

	// Terminal lookup outcomes. Never retried.
	ErrTrackNotFound  = fmt.Errorf("track not found")
	ErrEntityNotFound = fmt.Errorf("entity not found")

	// Store errors
	ErrStoreCorrupt = fmt.Errorf("store corrupt or schema mismatch")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

// IsTransient reports whether err is a retriable platform failure as
// opposed to a terminal outcome like a missing track.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrPlatformUnavailable)
}
