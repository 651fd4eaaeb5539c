// package diff computes per-entity differences between a base snapshot
// and a remote snapshot, and classifies pairs of differences from two
// remotes as auto-mergeable or conflicting.
package diff

import (
	"github.com/samber/lo"

	"github.com/harmonia-sync/harmonia/internal/models"
)

// Compute diffs one entity between the base and a remote snapshot and
// returns the detected change, or nil when content is identical.
//
// The content fingerprint is compared first; the full member comparison
// only runs on mismatch. That short-circuit is what keeps repeated no-op
// sync cycles cheap.
func Compute(base, remote *models.Entity, source models.Platform) *models.Change {
	switch {
	case base == nil && remote == nil:
		return nil
	case base == nil:
		return &models.Change{
			EntityKind: remote.Kind,
			EntityName: remote.Name,
			Kind:       models.ChangeCreated,
			Source:     source,
			Added:      remote.Members,
			Members:    remote.Members,
		}
	case remote == nil:
		return &models.Change{
			EntityID:   base.LocalID,
			EntityKind: base.Kind,
			EntityName: base.Name,
			Kind:       models.ChangeDeleted,
			Source:     source,
		}
	}

	if base.Fingerprint() == remote.Fingerprint() {
		return nil
	}

	baseIDs := identitySet(base.Members)
	remoteIDs := identitySet(remote.Members)

	added := lo.Filter(remote.Members, func(t models.Track, _ int) bool {
		_, inBase := baseIDs[t.Identity()]
		return !inBase
	})
	removed := lo.Filter(base.Members, func(t models.Track, _ int) bool {
		_, inRemote := remoteIDs[t.Identity()]
		return !inRemote
	})

	reordered := false
	if base.Kind.Ordered() && len(added) == 0 && len(removed) == 0 {
		reordered = !sameOrder(base.Members, remote.Members)
	}

	meta := metaDelta(base, remote)

	change := &models.Change{
		EntityID:   base.LocalID,
		EntityKind: base.Kind,
		EntityName: base.Name,
		Kind:       models.ChangeModified,
		Source:     source,
		Added:      added,
		Removed:    removed,
		Reordered:  reordered,
		Members:    remote.Members,
		Meta:       meta,
	}

	// A fingerprint mismatch with no detectable difference can only mean
	// metadata the fingerprint covers but the delta does not; treat as
	// no change rather than emit an empty one.
	if change.Empty() {
		return nil
	}
	return change
}

// metaDelta records name/description edits independently of track
// differences; a change can carry both.
func metaDelta(base, remote *models.Entity) *models.MetaDelta {
	var delta models.MetaDelta
	if base.Name != remote.Name {
		name := remote.Name
		delta.Name = &name
	}
	if base.Description != remote.Description {
		desc := remote.Description
		delta.Description = &desc
	}
	if delta.Empty() {
		return nil
	}
	return &delta
}

func identitySet(tracks []models.Track) map[string]struct{} {
	out := make(map[string]struct{}, len(tracks))
	for _, t := range tracks {
		out[t.Identity()] = struct{}{}
	}
	return out
}

func sameOrder(a, b []models.Track) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Identity() != b[i].Identity() {
			return false
		}
	}
	return true
}
