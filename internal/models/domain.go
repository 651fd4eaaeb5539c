package models

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harmonia-sync/harmonia/internal/normalize"
)

// Platform identifies one of the two configured streaming platforms.
type Platform string

const (
	PlatformSpotify Platform = "spotify"
	PlatformApple   Platform = "apple"
)

// Other returns the opposite platform.
func (p Platform) Other() Platform {
	if p == PlatformSpotify {
		return PlatformApple
	}
	return PlatformSpotify
}

// EntityKind distinguishes the three synced collection types.
type EntityKind string

const (
	KindPlaylist EntityKind = "playlist"
	KindLikedSet EntityKind = "liked"
	KindAlbumSet EntityKind = "albums"
)

// Ordered reports whether member order is significant for this kind.
// Only playlists carry an explicit track order.
func (k EntityKind) Ordered() bool {
	return k == KindPlaylist
}

// Track represents a recording as seen from any platform. A track is
// uniquely addressable by ISRC when present; otherwise identity is
// established transiently via the normalized fingerprint.
type Track struct {
	ISRC       string              `json:"isrc,omitempty"`
	IDs        map[Platform]string `json:"ids,omitempty"`
	Title      string              `json:"title"`
	Artists    []string            `json:"artists,omitempty"`
	Album      string              `json:"album,omitempty"`
	DurationMS int                 `json:"duration_ms,omitempty"`
}

// Identity returns the cross-platform comparison key: the ISRC when
// present, otherwise the synthetic artist|title|album fingerprint.
func (t Track) Identity() string {
	if t.ISRC != "" {
		return t.ISRC
	}
	return normalize.Fingerprint(t.PrimaryArtist(), t.Title, t.Album)
}

// PrimaryArtist returns the first listed artist, or "".
func (t Track) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// PlatformID returns the track's native id on p, or "".
func (t Track) PlatformID(p Platform) string {
	return t.IDs[p]
}

// WithPlatformID returns a copy of the track carrying id for p.
func (t Track) WithPlatformID(p Platform, id string) Track {
	ids := make(map[Platform]string, len(t.IDs)+1)
	for k, v := range t.IDs {
		ids[k] = v
	}
	ids[p] = id
	t.IDs = ids
	return t
}

// Entity is a named collection owned by the user: a playlist, the liked
// track set, or the saved album set. A member list never contains
// duplicate track identities within one platform snapshot; ingestion
// enforces this.
type Entity struct {
	LocalID     string              `json:"local_id,omitempty"`
	Kind        EntityKind          `json:"kind"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	IDs         map[Platform]string `json:"ids,omitempty"`
	Members     []Track             `json:"members"`
	Selected    bool                `json:"selected,omitempty"`
}

// PlatformID returns the entity's native id on p, or "".
func (e *Entity) PlatformID(p Platform) string {
	return e.IDs[p]
}

// SetPlatformID records the entity's native id on p.
func (e *Entity) SetPlatformID(p Platform, id string) {
	if e.IDs == nil {
		e.IDs = make(map[Platform]string, 2)
	}
	e.IDs[p] = id
}

// MemberIdentities returns the identity keys of all members, in member
// order.
func (e *Entity) MemberIdentities() []string {
	ids := make([]string, len(e.Members))
	for i, m := range e.Members {
		ids[i] = m.Identity()
	}
	return ids
}

// Fingerprint computes the cheap change-detection hash over kind, name,
// description, and member identities. For unordered kinds the member
// identities are sorted first so platform enumeration order cannot
// produce spurious mismatches.
func (e *Entity) Fingerprint() string {
	ids := e.MemberIdentities()
	if !e.Kind.Ordered() {
		sort.Strings(ids)
	}

	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%s|", e.Kind, e.Name, e.Description)
	h.Write([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

// PairKey returns the fallback key used to pair base and remote entities
// when no shared platform id exists: the kind alone for the singleton
// sets, kind plus normalized name for playlists.
func (e *Entity) PairKey() string {
	if !e.Kind.Ordered() {
		return string(e.Kind)
	}
	return string(e.Kind) + "|" + normalize.Text(e.Name)
}

// Snapshot is an immutable point-in-time capture of all entities as seen
// from one platform, or from the local store when Platform is empty.
type Snapshot struct {
	Platform Platform
	TakenAt  time.Time
	Entities []*Entity
}

// ByPlatformID indexes the snapshot's entities by their native id on p.
func (s *Snapshot) ByPlatformID(p Platform) map[string]*Entity {
	out := make(map[string]*Entity, len(s.Entities))
	for _, e := range s.Entities {
		if id := e.PlatformID(p); id != "" {
			out[id] = e
		}
	}
	return out
}

// ByPairKey indexes the snapshot's entities by their fallback pair key.
func (s *Snapshot) ByPairKey() map[string]*Entity {
	out := make(map[string]*Entity, len(s.Entities))
	for _, e := range s.Entities {
		out[e.PairKey()] = e
	}
	return out
}
