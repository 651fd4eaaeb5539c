// Package services implements the [Platform] interface for the two
// synced providers and the retry policy their requests share.
//
// # Platform Interface
//
// Both providers expose the same abstraction: snapshot reads, catalog
// lookups for the matcher, and mutation endpoints for applying merged
// changes. All provider JSON is mapped into the canonical models at the
// client boundary; nothing above this package sees provider types.
//
// # Spotify
//
// [SpotifyClient] authenticates with OAuth2 (authorization code flow);
// the [oauth2.Client] refreshes expired tokens transparently. Playlist
// member replacement uses the replace-then-append chunking the Web API
// requires; the liked and album sets are reconciled by delta because
// /me/tracks and /me/albums have no replace operation.
//
// # Apple Music
//
// [AppleClient] sends a developer token plus a Music-User-Token on
// library requests. Library song responses carry no ISRC, so snapshots
// are hydrated through a batched storefront catalog lookup before they
// reach the diff layer.
//
// # Error Handling
//
// HTTP statuses map onto shared sentinels: 401/403 to
// [shared.ErrNotAuthenticated], 404 to [shared.ErrEntityNotFound], 429
// to [shared.ErrRateLimited], 5xx to [shared.ErrPlatformUnavailable].
// [RetryPolicy] retries only the transient ones.
package services
