package diff_test

import (
	"errors"
	"testing"

	"github.com/harmonia-sync/harmonia/internal/diff"
	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

func strptr(s string) *string { return &s }

func TestClassify(t *testing.T) {
	a := track("Go Your Own Way", "Fleetwood Mac", "GBAAA7700010")
	b := track("Dreams", "Fleetwood Mac", "GBAAA7700011")
	c := track("The Chain", "Fleetwood Mac", "GBAAA7700012")
	d := track("Landslide", "Fleetwood Mac", "GBAAA7700013")

	t.Run("No Changes Yields Nothing", func(t *testing.T) {
		res := diff.Classify(playlist("Quiet", a), nil, nil)
		if len(res.Auto) != 0 || len(res.Conflicts) != 0 {
			t.Fatalf("expected empty result, got %+v", res)
		}
	})

	t.Run("One Sided Add Propagates To Other Platform", func(t *testing.T) {
		base := playlist("Road Trip", a, b, c)
		remote := playlist("Road Trip", a, b, c, d)
		change := diff.Compute(base, remote, models.PlatformSpotify)

		res := diff.Classify(base, change, nil)
		if len(res.Conflicts) != 0 {
			t.Fatalf("unexpected conflicts: %+v", res.Conflicts)
		}
		if len(res.Auto) != 1 {
			t.Fatalf("expected 1 change, got %d", len(res.Auto))
		}
		got := res.Auto[0]
		if got.Target != models.PlatformApple {
			t.Errorf("target = %q, want apple", got.Target)
		}
		sameIdentities(t, got.Members, []models.Track{a, b, c, d})
	})

	t.Run("Disjoint Edits Merge Without Conflict", func(t *testing.T) {
		// One platform removed b, the other added c. The union of intent
		// must land on both platforms.
		base := playlist("Focus", a, b)
		spotify := diff.Compute(base, playlist("Focus", a), models.PlatformSpotify)
		apple := diff.Compute(base, playlist("Focus", a, b, c), models.PlatformApple)

		res := diff.Classify(base, spotify, apple)
		if len(res.Conflicts) != 0 {
			t.Fatalf("unexpected conflicts: %+v", res.Conflicts)
		}
		if len(res.Auto) != 2 {
			t.Fatalf("expected changes for both platforms, got %d", len(res.Auto))
		}
		for _, ch := range res.Auto {
			sameIdentities(t, ch.Members, []models.Track{a, c})
		}
	})

	t.Run("Same Removal On Both Sides Is Agreement", func(t *testing.T) {
		base := playlist("Duet", a, b)
		spotify := diff.Compute(base, playlist("Duet", a), models.PlatformSpotify)
		apple := diff.Compute(base, playlist("Duet", a), models.PlatformApple)

		res := diff.Classify(base, spotify, apple)
		if len(res.Conflicts) != 0 {
			t.Fatalf("unexpected conflicts: %+v", res.Conflicts)
		}
		if len(res.Auto) != 1 {
			t.Fatalf("expected single commit-only change, got %+v", res.Auto)
		}
		if res.Auto[0].Target != "" {
			t.Errorf("target = %q, want none", res.Auto[0].Target)
		}
		sameIdentities(t, res.Auto[0].Members, []models.Track{a})
	})

	t.Run("Add Versus Remove Of Same Track Conflicts", func(t *testing.T) {
		base := playlist("Tug", a, b)
		spotify := diff.Compute(base, playlist("Tug", a), models.PlatformSpotify)
		// The other platform had already lost b and the user re-added it.
		apple := diff.Compute(playlist("Tug", a), playlist("Tug", a, b), models.PlatformApple)
		apple.EntityID = base.LocalID

		res := diff.Classify(base, spotify, apple)
		if len(res.Conflicts) != 1 {
			t.Fatalf("expected members conflict, got %+v", res)
		}
		if res.Conflicts[0].Field != "members" {
			t.Errorf("field = %q, want members", res.Conflicts[0].Field)
		}
	})

	t.Run("Divergent Reorders Conflict", func(t *testing.T) {
		base := playlist("Order", a, b, c)
		spotify := diff.Compute(base, playlist("Order", c, b, a), models.PlatformSpotify)
		apple := diff.Compute(base, playlist("Order", b, a, c), models.PlatformApple)

		res := diff.Classify(base, spotify, apple)
		if len(res.Conflicts) != 1 || res.Conflicts[0].Field != "members" {
			t.Fatalf("expected members conflict, got %+v", res)
		}
	})

	t.Run("Identical Reorders Agree", func(t *testing.T) {
		base := playlist("Order", a, b, c)
		spotify := diff.Compute(base, playlist("Order", c, a, b), models.PlatformSpotify)
		apple := diff.Compute(base, playlist("Order", c, a, b), models.PlatformApple)

		res := diff.Classify(base, spotify, apple)
		if len(res.Conflicts) != 0 {
			t.Fatalf("unexpected conflicts: %+v", res.Conflicts)
		}
		if len(res.Auto) != 1 || res.Auto[0].Target != "" {
			t.Fatalf("expected commit-only change, got %+v", res.Auto)
		}
		sameIdentities(t, res.Auto[0].Members, []models.Track{c, a, b})
	})

	t.Run("Divergent Renames Conflict Without Blocking Members", func(t *testing.T) {
		base := playlist("Gym", a, b)
		spotify := diff.Compute(base, playlist("Workout", a, b, c), models.PlatformSpotify)
		apple := diff.Compute(base, playlist("Lifting", a, b), models.PlatformApple)

		res := diff.Classify(base, spotify, apple)
		if len(res.Conflicts) != 1 || res.Conflicts[0].Field != "name" {
			t.Fatalf("expected name conflict, got %+v", res.Conflicts)
		}
		// The uncontested member addition still merges.
		var targets []models.Platform
		for _, ch := range res.Auto {
			if ch.Target != "" {
				targets = append(targets, ch.Target)
				sameIdentities(t, ch.Members, []models.Track{a, b, c})
			}
		}
		if len(targets) != 1 || targets[0] != models.PlatformApple {
			t.Fatalf("expected member change targeting apple, got %v", targets)
		}
	})

	t.Run("Matching Renames Commit Without Applying", func(t *testing.T) {
		base := playlist("Gym", a)
		spotify := diff.Compute(base, playlist("Workout", a), models.PlatformSpotify)
		apple := diff.Compute(base, playlist("Workout", a), models.PlatformApple)

		res := diff.Classify(base, spotify, apple)
		if len(res.Conflicts) != 0 {
			t.Fatalf("unexpected conflicts: %+v", res.Conflicts)
		}
		if len(res.Auto) != 1 {
			t.Fatalf("expected single commit-only change, got %+v", res.Auto)
		}
		got := res.Auto[0]
		if got.Target != "" || got.Meta == nil || got.Meta.Name == nil || *got.Meta.Name != "Workout" {
			t.Fatalf("expected commit-only rename, got %+v", got)
		}
	})

	t.Run("Both Deleted Commits The Removal", func(t *testing.T) {
		base := playlist("Gone", a)
		spotify := diff.Compute(base, nil, models.PlatformSpotify)
		apple := diff.Compute(base, nil, models.PlatformApple)

		res := diff.Classify(base, spotify, apple)
		if len(res.Conflicts) != 0 {
			t.Fatalf("unexpected conflicts: %+v", res.Conflicts)
		}
		if len(res.Auto) != 1 || res.Auto[0].Kind != models.ChangeDeleted || res.Auto[0].Target != "" {
			t.Fatalf("expected commit-only deletion, got %+v", res.Auto)
		}
	})

	t.Run("Deleted Versus Modified Conflicts On Existence", func(t *testing.T) {
		base := playlist("Torn", a)
		spotify := diff.Compute(base, nil, models.PlatformSpotify)
		apple := diff.Compute(base, playlist("Torn", a, b), models.PlatformApple)

		res := diff.Classify(base, spotify, apple)
		if len(res.Auto) != 0 {
			t.Fatalf("unexpected auto changes: %+v", res.Auto)
		}
		if len(res.Conflicts) != 1 || res.Conflicts[0].Field != "existence" {
			t.Fatalf("expected existence conflict, got %+v", res.Conflicts)
		}
	})
}

func TestApplyResolution(t *testing.T) {
	a := track("Go Your Own Way", "Fleetwood Mac", "GBAAA7700010")
	b := track("Dreams", "Fleetwood Mac", "GBAAA7700011")
	c := track("The Chain", "Fleetwood Mac", "GBAAA7700012")

	memberConflict := func() models.Conflict {
		return models.Conflict{
			EntityID:   "local-Order",
			EntityName: "Order",
			Field:      "members",
			A: &models.Change{
				EntityID: "local-Order", EntityKind: models.KindPlaylist, EntityName: "Order",
				Kind: models.ChangeModified, Source: models.PlatformSpotify,
				Members: []models.Track{a, b},
			},
			B: &models.Change{
				EntityID: "local-Order", EntityKind: models.KindPlaylist, EntityName: "Order",
				Kind: models.ChangeModified, Source: models.PlatformApple,
				Members: []models.Track{a, c},
			},
		}
	}

	t.Run("Skip Produces Nothing", func(t *testing.T) {
		changes, err := diff.ApplyResolution(memberConflict(), models.ResolutionSkip)
		if err != nil || changes != nil {
			t.Fatalf("got %+v, %v", changes, err)
		}
	})

	t.Run("Choose A Overwrites The Other Platform", func(t *testing.T) {
		changes, err := diff.ApplyResolution(memberConflict(), models.ResolutionChooseA)
		if err != nil {
			t.Fatal(err)
		}
		if len(changes) != 1 || changes[0].Target != models.PlatformApple {
			t.Fatalf("expected one change targeting apple, got %+v", changes)
		}
		sameIdentities(t, changes[0].Members, []models.Track{a, b})
	})

	t.Run("Choose B Overwrites The Other Platform", func(t *testing.T) {
		changes, err := diff.ApplyResolution(memberConflict(), models.ResolutionChooseB)
		if err != nil {
			t.Fatal(err)
		}
		if len(changes) != 1 || changes[0].Target != models.PlatformSpotify {
			t.Fatalf("expected one change targeting spotify, got %+v", changes)
		}
		sameIdentities(t, changes[0].Members, []models.Track{a, c})
	})

	t.Run("Merged Unions Both Member Lists", func(t *testing.T) {
		changes, err := diff.ApplyResolution(memberConflict(), models.ResolutionMerged)
		if err != nil {
			t.Fatal(err)
		}
		if len(changes) != 2 {
			t.Fatalf("expected changes for both platforms, got %+v", changes)
		}
		for _, ch := range changes {
			sameIdentities(t, ch.Members, []models.Track{a, b, c})
		}
	})

	t.Run("Name Conflict Takes A Side", func(t *testing.T) {
		conflict := models.Conflict{
			EntityID:   "local-Gym",
			EntityName: "Gym",
			Field:      "name",
			A: &models.Change{
				EntityKind: models.KindPlaylist, EntityName: "Gym", Kind: models.ChangeModified,
				Source: models.PlatformSpotify, Meta: &models.MetaDelta{Name: strptr("Workout")},
			},
			B: &models.Change{
				EntityKind: models.KindPlaylist, EntityName: "Gym", Kind: models.ChangeModified,
				Source: models.PlatformApple, Meta: &models.MetaDelta{Name: strptr("Lifting")},
			},
		}

		changes, err := diff.ApplyResolution(conflict, models.ResolutionChooseB)
		if err != nil {
			t.Fatal(err)
		}
		if len(changes) != 1 || changes[0].Target != models.PlatformSpotify {
			t.Fatalf("expected one change targeting spotify, got %+v", changes)
		}
		if changes[0].Meta == nil || changes[0].Meta.Name == nil || *changes[0].Meta.Name != "Lifting" {
			t.Fatalf("expected Lifting rename, got %+v", changes[0].Meta)
		}

		if _, err := diff.ApplyResolution(conflict, models.ResolutionMerged); !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("merged rename should be invalid, got %v", err)
		}
	})

	t.Run("Existence Resolved By Deleting", func(t *testing.T) {
		conflict := models.Conflict{
			EntityID:   "local-Torn",
			EntityName: "Torn",
			Field:      "existence",
			A: &models.Change{
				EntityID: "local-Torn", EntityKind: models.KindPlaylist, EntityName: "Torn",
				Kind: models.ChangeDeleted, Source: models.PlatformSpotify,
			},
			B: &models.Change{
				EntityID: "local-Torn", EntityKind: models.KindPlaylist, EntityName: "Torn",
				Kind: models.ChangeModified, Source: models.PlatformApple,
				Added: []models.Track{b}, Members: []models.Track{a, b},
			},
		}

		changes, err := diff.ApplyResolution(conflict, models.ResolutionChooseA)
		if err != nil {
			t.Fatal(err)
		}
		if len(changes) != 1 || changes[0].Kind != models.ChangeDeleted || changes[0].Target != models.PlatformApple {
			t.Fatalf("expected deletion on apple, got %+v", changes)
		}

		changes, err = diff.ApplyResolution(conflict, models.ResolutionChooseB)
		if err != nil {
			t.Fatal(err)
		}
		if len(changes) != 1 || changes[0].Kind != models.ChangeCreated || changes[0].Target != models.PlatformSpotify {
			t.Fatalf("expected re-creation on spotify, got %+v", changes)
		}
		sameIdentities(t, changes[0].Members, []models.Track{a, b})
	})

	t.Run("Unknown Resolution Is An Error", func(t *testing.T) {
		if _, err := diff.ApplyResolution(memberConflict(), models.Resolution("flip-coin")); !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected invalid input, got %v", err)
		}
	})
}
