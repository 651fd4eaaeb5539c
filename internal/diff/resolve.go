package diff

import (
	"fmt"

	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

// ApplyResolution converts a resolved conflict into the changes that
// carry the decision out. Choosing a side overwrites the other platform
// with that side's state; merging unions both member lists, keeping the
// chosen-first ordering; skipping leaves both platforms as they are
// until the next run.
func ApplyResolution(c models.Conflict, r models.Resolution) ([]models.Change, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: resolution %q", shared.ErrInvalidInput, r)
	}
	if r == models.ResolutionSkip {
		return nil, nil
	}

	winner, loser := c.A, c.B
	if r == models.ResolutionChooseB {
		winner, loser = c.B, c.A
	}

	switch c.Field {
	case "existence":
		return resolveExistence(winner, loser, r)
	case "members":
		return resolveMembers(c, r, winner, loser)
	case "name", "description":
		if r == models.ResolutionMerged {
			return nil, fmt.Errorf("%w: field %q cannot be merged", shared.ErrInvalidInput, c.Field)
		}
		return []models.Change{{
			EntityID:   c.EntityID,
			EntityKind: winner.EntityKind,
			EntityName: winner.EntityName,
			Kind:       models.ChangeModified,
			Target:     loser.Source,
			Meta:       winner.Meta,
		}}, nil
	default:
		return nil, fmt.Errorf("%w: conflict field %q", shared.ErrInvalidInput, c.Field)
	}
}

// resolveExistence settles a deleted-versus-modified disagreement. If
// the deletion wins the entity is removed everywhere; if the edit wins
// the entity is rebuilt on the platform that deleted it.
func resolveExistence(winner, loser *models.Change, r models.Resolution) ([]models.Change, error) {
	if r == models.ResolutionMerged {
		return nil, fmt.Errorf("%w: existence cannot be merged", shared.ErrInvalidInput)
	}
	if winner.Kind == models.ChangeDeleted {
		return []models.Change{{
			EntityID:   winner.EntityID,
			EntityKind: winner.EntityKind,
			EntityName: winner.EntityName,
			Kind:       models.ChangeDeleted,
			Target:     loser.Source,
		}}, nil
	}
	return []models.Change{{
		EntityID:   winner.EntityID,
		EntityKind: winner.EntityKind,
		EntityName: winner.EntityName,
		Kind:       models.ChangeCreated,
		Target:     loser.Source,
		Members:    winner.Members,
		Meta:       winner.Meta,
	}}, nil
}

func resolveMembers(c models.Conflict, r models.Resolution, winner, loser *models.Change) ([]models.Change, error) {
	desired := winner.Members
	if r == models.ResolutionMerged {
		desired = unionMembers(winner.Members, loser.Members)
	}

	var out []models.Change
	for _, side := range []*models.Change{c.A, c.B} {
		if membersEqual(side.EntityKind, side.Members, desired) {
			continue
		}
		out = append(out, models.Change{
			EntityID:   c.EntityID,
			EntityKind: side.EntityKind,
			EntityName: side.EntityName,
			Kind:       models.ChangeModified,
			Target:     side.Source,
			Members:    desired,
		})
	}
	if len(out) == 0 {
		// Both platforms already hold the desired list; commit only.
		out = append(out, models.Change{
			EntityID:   c.EntityID,
			EntityKind: c.A.EntityKind,
			EntityName: c.A.EntityName,
			Kind:       models.ChangeModified,
			Members:    desired,
		})
	}
	return out, nil
}

// unionMembers keeps a's order and appends b's tracks not already
// present, so additions from both sides survive a merge.
func unionMembers(a, b []models.Track) []models.Track {
	out := append([]models.Track{}, a...)
	seen := identitySet(out)
	for _, t := range b {
		id := t.Identity()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, t)
	}
	return out
}
