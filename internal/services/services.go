// package services implements the platform clients harmonia syncs
// between: Spotify and Apple Music.
package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

// Platform is the client surface for one streaming platform. Both
// implementations map provider JSON into the canonical models and
// translate HTTP status codes into the shared sentinel errors, so
// callers branch on errors.Is rather than on status codes.
//
// The read half (Kind, SearchByISRC, SearchByMetadata) doubles as the
// matcher's catalog interface.
type Platform interface {
	// Kind identifies the platform.
	Kind() models.Platform

	// Name returns the human-readable platform name.
	Name() string

	// FetchSnapshot retrieves the user's full library state: all
	// playlists, the liked-track set, and the saved-album set. Member
	// lists are deduplicated by track identity.
	FetchSnapshot(ctx context.Context) (*models.Snapshot, error)

	// SearchByISRC looks up a track in the platform catalog by ISRC.
	// Returns shared.ErrTrackNotFound when the catalog has no entry.
	SearchByISRC(ctx context.Context, isrc string) (*models.Track, error)

	// SearchByMetadata searches the catalog by artist and title,
	// returning up to a handful of candidates. An empty slice means no
	// results, not an error.
	SearchByMetadata(ctx context.Context, artist, title string) ([]models.Track, error)

	// CreateEntity creates a playlist on the platform and returns its
	// native id. Only playlists can be created; the liked and album
	// sets always exist.
	CreateEntity(ctx context.Context, entity *models.Entity) (string, error)

	// ReplaceMembers overwrites the collection's member list with the
	// given tracks. For playlists this is a full replace; for the liked
	// and album sets the client computes and applies the delta, since
	// those cannot be replaced wholesale.
	ReplaceMembers(ctx context.Context, kind models.EntityKind, platformID string, members []models.Track) error

	// UpdateEntityMeta applies name and description edits to a playlist.
	UpdateEntityMeta(ctx context.Context, platformID string, meta *models.MetaDelta) error

	// DeleteEntity removes a playlist from the platform.
	DeleteEntity(ctx context.Context, kind models.EntityKind, platformID string) error
}

// SetEntityID returns the synthetic native id used for the singleton
// liked and album set entities, which have no platform-assigned id.
func SetEntityID(p models.Platform, kind models.EntityKind) string {
	return fmt.Sprintf("%s:%s", p, kind)
}

// SetEntityName returns the display name for a singleton set entity.
func SetEntityName(kind models.EntityKind) string {
	if kind == models.KindAlbumSet {
		return "Saved Albums"
	}
	return "Liked Songs"
}

// apiError maps an HTTP status to the matching sentinel error.
func apiError(platform string, status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned status %d", shared.ErrNotAuthenticated, platform, status)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s returned status %d", shared.ErrEntityNotFound, platform, status)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s returned status %d", shared.ErrRateLimited, platform, status)
	case status >= 500:
		return fmt.Errorf("%w: %s returned status %d", shared.ErrPlatformUnavailable, platform, status)
	default:
		return fmt.Errorf("%s API error: status %d", platform, status)
	}
}

// dedupeMembers drops later occurrences of an already-seen track
// identity, preserving order. Platform responses occasionally repeat a
// track; the diff layer assumes member lists are duplicate-free.
func dedupeMembers(tracks []models.Track) []models.Track {
	seen := make(map[string]struct{}, len(tracks))
	out := tracks[:0:0]
	for _, t := range tracks {
		id := t.Identity()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, t)
	}
	return out
}

// chunk splits ids into batches of at most size.
func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
