package diff

import (
	"github.com/samber/lo"

	"github.com/harmonia-sync/harmonia/internal/models"
)

// Result is the outcome of classifying one entity's pair of remote
// changes: changes safe to apply without user input, and conflicts that
// require resolution first.
type Result struct {
	Auto      []models.Change
	Conflicts []models.Conflict
}

// Classify combines the two remote changes computed against the same
// base into apply-bound changes and conflicts.
//
// Comparison happens at the level of individual track identities and
// individual metadata fields, not whole-entity equality, so two
// platforms making independent compatible edits never manufacture a
// false conflict. Member conflicts and metadata conflicts are
// independent: a name conflict does not block an auto-mergeable member
// change on the same entity.
func Classify(base *models.Entity, a, b *models.Change) Result {
	if a.Empty() && b.Empty() {
		return Result{}
	}

	// One-sided change: propagate to the other platform untouched.
	if b.Empty() {
		return Result{Auto: propagate(a, a.Source.Other())}
	}
	if a.Empty() {
		return Result{Auto: propagate(b, b.Source.Other())}
	}

	// Existence disagreements.
	aDeleted := a.Kind == models.ChangeDeleted
	bDeleted := b.Kind == models.ChangeDeleted
	switch {
	case aDeleted && bDeleted:
		// Both remotes deleted the entity: agreement. Nothing to apply,
		// but the commit phase must drop the base row, signalled by a
		// deleted change with no target.
		return Result{Auto: []models.Change{{
			EntityID:   a.EntityID,
			EntityKind: a.EntityKind,
			EntityName: a.EntityName,
			Kind:       models.ChangeDeleted,
		}}}
	case aDeleted || bDeleted:
		return Result{Conflicts: []models.Conflict{conflict(a, b, "existence")}}
	}

	var res Result

	merged, membersConflict := mergeMembers(base, a, b)
	if membersConflict {
		res.Conflicts = append(res.Conflicts, conflict(a, b, "members"))
	} else {
		res.Auto = append(res.Auto, memberChanges(a, b, merged)...)
	}

	metaAuto, metaConflicts := mergeMeta(a, b)
	res.Auto = append(res.Auto, metaAuto...)
	res.Conflicts = append(res.Conflicts, metaConflicts...)

	return res
}

// propagate turns a one-sided remote change into an apply-bound change
// targeting the opposite platform.
func propagate(c *models.Change, target models.Platform) []models.Change {
	out := *c
	out.Target = target
	return []models.Change{out}
}

// mergeMembers computes the merged member list, or reports a conflict
// when the two changes materially disagree about the same member:
// one side removed a track the other side added back, or both reordered
// differently.
func mergeMembers(base *models.Entity, a, b *models.Change) ([]models.Track, bool) {
	if overlaps(a.Added, b.Removed) || overlaps(a.Removed, b.Added) {
		return nil, true
	}
	if a.Reordered && b.Reordered && !sameOrder(a.Members, b.Members) {
		return nil, true
	}

	// Start from the base order, or from whichever side reordered.
	var order []models.Track
	switch {
	case a.Reordered:
		order = a.Members
	case b.Reordered:
		order = b.Members
	case base != nil:
		order = base.Members
	}

	removed := identitySet(append(append([]models.Track{}, a.Removed...), b.Removed...))
	merged := lo.Filter(order, func(t models.Track, _ int) bool {
		_, gone := removed[t.Identity()]
		return !gone
	})

	present := identitySet(merged)
	for _, t := range append(append([]models.Track{}, a.Added...), b.Added...) {
		id := t.Identity()
		if _, dup := present[id]; dup {
			continue
		}
		present[id] = struct{}{}
		merged = append(merged, t)
	}

	return merged, false
}

// memberChanges emits an apply-bound change per platform whose current
// member list differs from the merged result. Both sides adding the
// same track, or both removing the same member, is agreement and emits
// nothing for that platform.
func memberChanges(a, b *models.Change, merged []models.Track) []models.Change {
	var out []models.Change
	for _, side := range []*models.Change{a, b} {
		if membersEqual(side.EntityKind, side.Members, merged) {
			continue
		}
		c := models.Change{
			EntityID:   firstNonEmpty(a.EntityID, b.EntityID),
			EntityKind: side.EntityKind,
			EntityName: side.EntityName,
			Kind:       side.Kind,
			Target:     side.Source,
			Members:    merged,
		}
		out = append(out, c)
	}
	if len(out) == 0 && !membersUnchanged(a, b) {
		// Both platforms already hold the merged list (identical edits);
		// the commit phase still needs to fold it into the base.
		out = append(out, models.Change{
			EntityID:   firstNonEmpty(a.EntityID, b.EntityID),
			EntityKind: a.EntityKind,
			EntityName: a.EntityName,
			Kind:       a.Kind,
			Members:    merged,
		})
	}
	return out
}

// mergeMeta classifies each metadata field independently.
func mergeMeta(a, b *models.Change) (auto []models.Change, conflicts []models.Conflict) {
	aName := metaField(a, func(m *models.MetaDelta) *string { return m.Name })
	bName := metaField(b, func(m *models.MetaDelta) *string { return m.Name })
	aDesc := metaField(a, func(m *models.MetaDelta) *string { return m.Description })
	bDesc := metaField(b, func(m *models.MetaDelta) *string { return m.Description })

	merged := models.MetaDelta{}
	mergedTargets := map[models.Platform]*models.MetaDelta{}

	assign := func(field string, av, bv *string, set func(*models.MetaDelta, *string)) {
		switch {
		case av == nil && bv == nil:
		case av != nil && bv != nil && *av == *bv:
			// Same edit on both sides: agreement, commit-only.
			set(&merged, av)
		case av != nil && bv != nil:
			conflicts = append(conflicts, conflict(a, b, field))
		case av != nil:
			target := a.Source.Other()
			if mergedTargets[target] == nil {
				mergedTargets[target] = &models.MetaDelta{}
			}
			set(mergedTargets[target], av)
		default:
			target := b.Source.Other()
			if mergedTargets[target] == nil {
				mergedTargets[target] = &models.MetaDelta{}
			}
			set(mergedTargets[target], bv)
		}
	}

	assign("name", aName, bName, func(m *models.MetaDelta, v *string) { m.Name = v })
	assign("description", aDesc, bDesc, func(m *models.MetaDelta, v *string) { m.Description = v })

	for target, delta := range mergedTargets {
		auto = append(auto, models.Change{
			EntityID:   firstNonEmpty(a.EntityID, b.EntityID),
			EntityKind: a.EntityKind,
			EntityName: a.EntityName,
			Kind:       models.ChangeModified,
			Target:     target,
			Meta:       delta,
		})
	}
	if !merged.Empty() {
		auto = append(auto, models.Change{
			EntityID:   firstNonEmpty(a.EntityID, b.EntityID),
			EntityKind: a.EntityKind,
			EntityName: a.EntityName,
			Kind:       models.ChangeModified,
			Meta:       &merged,
		})
	}
	return auto, conflicts
}

func metaField(c *models.Change, get func(*models.MetaDelta) *string) *string {
	if c == nil || c.Meta == nil {
		return nil
	}
	return get(c.Meta)
}

func conflict(a, b *models.Change, field string) models.Conflict {
	return models.Conflict{
		EntityID:   firstNonEmpty(a.EntityID, b.EntityID),
		EntityName: firstNonEmpty(a.EntityName, b.EntityName),
		Field:      field,
		A:          a,
		B:          b,
	}
}

func overlaps(a, b []models.Track) bool {
	ids := identitySet(a)
	for _, t := range b {
		if _, ok := ids[t.Identity()]; ok {
			return true
		}
	}
	return false
}

func membersEqual(kind models.EntityKind, a, b []models.Track) bool {
	if kind.Ordered() {
		return sameOrder(a, b)
	}
	if len(a) != len(b) {
		return false
	}
	ids := identitySet(a)
	for _, t := range b {
		if _, ok := ids[t.Identity()]; !ok {
			return false
		}
	}
	return true
}

// membersUnchanged reports whether neither side touched members.
func membersUnchanged(a, b *models.Change) bool {
	return len(a.Added) == 0 && len(a.Removed) == 0 && !a.Reordered &&
		len(b.Added) == 0 && len(b.Removed) == 0 && !b.Reordered
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
