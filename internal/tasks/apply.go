package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harmonia-sync/harmonia/internal/diff"
	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/services"
)

// runEntity walks one pairing through diff, classify, apply, and
// commit. Failures are recorded on the result and never propagate; the
// next pairing always runs.
func (e *Engine) runEntity(ctx context.Context, pr *pairing, opts Options, result *models.SyncResult, progress chan<- ProgressUpdate, step, total int) {
	sendProgress(progress, diffingUpdate(step, total, pr.name))

	changeA := diff.Compute(pr.base, pr.remoteA, models.PlatformSpotify)
	changeB := diff.Compute(pr.base, pr.remoteB, models.PlatformApple)

	sendProgress(progress, classifyingUpdate(step, total, pr.name))
	res := diff.Classify(pr.base, changeA, changeB)

	resolvedFields := make(map[string]bool)
	if !opts.DryRun {
		resolved, fields, skipped := e.consumeResolutions(pr)
		res.Auto = append(res.Auto, resolved...)
		resolvedFields = fields
		result.Skipped += skipped
	}

	result.AutoMerged += len(res.Auto)

	for i, conflict := range res.Conflicts {
		// A re-detected disagreement whose resolution is being applied
		// this cycle is already on its way out; do not park it again.
		if resolvedFields[conflict.Field] {
			continue
		}
		result.Conflicts++
		sendProgress(progress, conflictUpdate(i+1, len(res.Conflicts), pr.name, conflict.Field))
		if opts.DryRun {
			continue
		}
		if err := e.parkConflict(pr, conflict); err != nil {
			e.logger.Error("failed to persist conflict", "entity", pr.name, "error", err)
		}
	}

	if opts.DryRun || len(res.Auto) == 0 {
		return
	}

	merged, membersSet, meta, deleted := foldChanges(res.Auto)
	unresolved := make(map[string]struct{})

	failed := false
	for i, change := range res.Auto {
		if change.Target == "" {
			continue
		}
		sendProgress(progress, applyingUpdate(i+1, len(res.Auto), pr.name, string(change.Target)))

		missing, err := e.applyChange(ctx, pr, change)
		if err != nil {
			sendProgress(progress, applyFailedUpdate(i+1, len(res.Auto), pr.name, err))
			e.logger.Error("apply failed", "entity", pr.name, "target", change.Target, "error", err)
			result.Failed++
			result.Failures = append(result.Failures, models.Failure{
				EntityID:   pr.key,
				EntityName: pr.name,
				Reason:     fmt.Sprintf("%s: %v", change.Target, err),
			})
			failed = true
			continue
		}
		result.Applied++
		for _, id := range missing {
			unresolved[id] = struct{}{}
		}
	}

	// Members the target catalog does not carry are a skip, not a
	// failure; the next cycle retries them.
	result.Skipped += len(unresolved)

	// A failed apply leaves the platforms out of step with the merged
	// state; advancing the baseline now would misread the retry next
	// cycle as a fresh remote edit.
	if failed {
		return
	}

	sendProgress(progress, committingUpdate(step, total, pr.name))
	if err := e.commit(pr, merged, membersSet, meta, unresolved, deleted); err != nil {
		e.logger.Error("commit failed", "entity", pr.name, "error", err)
		result.Failed++
		result.Failures = append(result.Failures, models.Failure{
			EntityID:   pr.key,
			EntityName: pr.name,
			Reason:     fmt.Sprintf("commit: %v", err),
		})
	}
}

// consumeResolutions turns stored resolutions for this pairing into
// apply-bound changes. Each consumed row is deleted; if the platforms
// still disagree after the apply, the next cycle re-detects the
// conflict.
func (e *Engine) consumeResolutions(pr *pairing) (changes []models.Change, fields map[string]bool, skipped int) {
	fields = make(map[string]bool)

	rows, err := e.conflicts.List(map[string]any{"entity_id": pr.key})
	if err != nil {
		e.logger.Error("failed to load conflict rows", "entity", pr.name, "error", err)
		return nil, fields, 0
	}

	for _, row := range rows {
		conflict := row.Conflict()
		if !conflict.Resolution.Valid() {
			continue
		}

		out, err := diff.ApplyResolution(conflict, conflict.Resolution)
		if err != nil {
			e.logger.Error("stored resolution is unusable", "entity", pr.name, "field", conflict.Field, "error", err)
			continue
		}
		if conflict.Resolution == models.ResolutionSkip {
			skipped++
		}
		changes = append(changes, out...)
		fields[conflict.Field] = true

		if err := e.conflicts.Delete(row.ID()); err != nil {
			e.logger.Error("failed to clear resolved conflict", "entity", pr.name, "error", err)
		}
	}
	return changes, fields, skipped
}

// parkConflict persists a newly detected conflict, replacing any pending
// row for the same entity and field so re-detection across cycles never
// piles up duplicates.
func (e *Engine) parkConflict(pr *pairing, conflict models.Conflict) error {
	if conflict.EntityID == "" {
		conflict.EntityID = pr.key
	}

	pending, err := e.conflicts.List(map[string]any{"entity_id": conflict.EntityID, "pending": true})
	if err != nil {
		return err
	}
	for _, row := range pending {
		if row.Conflict().Field == conflict.Field {
			if err := e.conflicts.Delete(row.ID()); err != nil {
				return err
			}
		}
	}

	return e.conflicts.Create(models.NewConflictRecord(0, conflict))
}

// applyChange pushes one change to its target platform and returns the
// identities of members that could not be resolved there.
func (e *Engine) applyChange(ctx context.Context, pr *pairing, change models.Change) ([]string, error) {
	target := e.platform(change.Target)

	if change.Kind == models.ChangeDeleted {
		id := pr.platformID(change.Target)
		if id == "" {
			return nil, nil // never existed there
		}
		return nil, target.DeleteEntity(ctx, change.EntityKind, id)
	}

	// A nil member payload means the change does not touch members
	// (metadata-only); replacing the list with nothing would wipe it.
	var members []models.Track
	var unresolved []string
	var err error
	if change.Members != nil {
		members, unresolved, err = e.resolveMembers(ctx, change.EntityKind, change.Members, target)
		if err != nil {
			return nil, err
		}
	}

	id := pr.platformID(change.Target)
	if id == "" {
		id, err = e.materialize(ctx, pr, change, members)
		if err != nil {
			return nil, err
		}
		pr.learned[change.Target] = id
	}

	if change.Members != nil {
		if err := target.ReplaceMembers(ctx, change.EntityKind, id, members); err != nil {
			return nil, err
		}
	}
	if !change.Meta.Empty() {
		if err := target.UpdateEntityMeta(ctx, id, change.Meta); err != nil {
			return nil, err
		}
	}
	return unresolved, nil
}

// materialize produces a native id for an entity the target platform
// does not have yet. An existing playlist with the same name is adopted
// rather than duplicated.
func (e *Engine) materialize(ctx context.Context, pr *pairing, change models.Change, members []models.Track) (string, error) {
	if remote := pr.remoteFor(change.Target); remote != nil {
		if id := remote.PlatformID(change.Target); id != "" {
			return id, nil
		}
	}

	entity := &models.Entity{
		Kind:    change.EntityKind,
		Name:    change.EntityName,
		Members: members,
	}
	if change.Meta != nil && change.Meta.Name != nil {
		entity.Name = *change.Meta.Name
	}
	if change.Meta != nil && change.Meta.Description != nil {
		entity.Description = *change.Meta.Description
	}

	id, err := e.platform(change.Target).CreateEntity(ctx, entity)
	if err != nil {
		return "", fmt.Errorf("failed to create %s on %s: %w", change.EntityKind, change.Target, err)
	}
	return id, nil
}

// resolveMembers fills in target-platform ids for every member that
// lacks one, using the bounded worker pool and the shared rate limiter.
// Members the catalog genuinely does not have come back in the second
// return value and are retried on later cycles. Album rows are never
// resolved by track search; only ids already learned carry over.
func (e *Engine) resolveMembers(ctx context.Context, kind models.EntityKind, members []models.Track, target services.Platform) ([]models.Track, []string, error) {
	out := make([]models.Track, len(members))
	copy(out, members)

	var (
		mu         sync.Mutex
		unresolved []string
	)

	if kind == models.KindAlbumSet {
		for _, m := range members {
			if m.PlatformID(target.Kind()) == "" {
				unresolved = append(unresolved, m.Identity())
			}
		}
		return out, unresolved, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range out {
		if out[i].PlatformID(target.Kind()) != "" {
			continue
		}
		g.Go(func() error {
			if err := e.limiter.Wait(gctx); err != nil {
				return err
			}
			match, err := e.resolver.Resolve(gctx, out[i], target)
			if err != nil {
				return err
			}
			if match.Track == nil {
				e.logger.Warn("no counterpart found", "title", out[i].Title, "platform", target.Kind())
				mu.Lock()
				unresolved = append(unresolved, out[i].Identity())
				mu.Unlock()
				return nil
			}
			out[i] = *match.Track
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("member resolution failed: %w", err)
	}
	return out, unresolved, nil
}

// commit folds the cycle's outcome for one entity into the base row.
// Members that failed to resolve are left out so later cycles re-detect
// them as one-sided additions and retry. The member list is only
// touched when the cycle's changes carried one; a metadata-only cycle
// keeps the base list as is.
func (e *Engine) commit(pr *pairing, merged []models.Track, membersSet bool, meta *models.MetaDelta, unresolved map[string]struct{}, deleted bool) error {
	now := time.Now()

	if deleted {
		if pr.row == nil {
			return nil
		}
		return e.entities.Delete(pr.row.ID())
	}

	var entity models.Entity
	if pr.row != nil {
		entity = pr.row.Entity()
	} else {
		entity = models.Entity{Kind: pr.kind, Name: pr.name, Selected: true}
	}

	if membersSet {
		members := make([]models.Track, 0, len(merged))
		for _, m := range merged {
			if _, miss := unresolved[m.Identity()]; miss {
				continue
			}
			members = append(members, m)
		}
		entity.Members = members
	}

	if meta != nil && meta.Name != nil {
		entity.Name = *meta.Name
	}
	if meta != nil && meta.Description != nil {
		entity.Description = *meta.Description
	}

	for _, remote := range []*models.Entity{pr.remoteA, pr.remoteB} {
		if remote == nil {
			continue
		}
		for p, id := range remote.IDs {
			entity.SetPlatformID(p, id)
		}
	}
	for p, id := range pr.learned {
		entity.SetPlatformID(p, id)
	}

	if pr.row == nil {
		row := models.NewPersistedEntity(0, entity)
		if err := e.entities.Create(row); err != nil {
			return err
		}
		return e.entities.MarkSynced(row.ID(), now)
	}

	pr.row.SetEntity(entity)
	if err := e.entities.Update(pr.row); err != nil {
		return err
	}
	return e.entities.MarkSynced(pr.row.ID(), now)
}

// foldChanges collapses an entity's auto changes into the merged state
// to commit. Every member-carrying apply-bound change holds the same
// full list, so any one of them is authoritative; commit-only changes
// carry the agreed state. membersSet distinguishes a cycle that never
// touched members from one that emptied the list.
func foldChanges(changes []models.Change) (members []models.Track, membersSet bool, meta *models.MetaDelta, deleted bool) {
	for i := range changes {
		c := &changes[i]
		if c.Kind == models.ChangeDeleted {
			deleted = true
			continue
		}
		if c.Members != nil {
			members = c.Members
			membersSet = true
		}
		if !c.Meta.Empty() {
			if meta == nil {
				meta = &models.MetaDelta{}
			}
			if c.Meta.Name != nil {
				meta.Name = c.Meta.Name
			}
			if c.Meta.Description != nil {
				meta.Description = c.Meta.Description
			}
		}
	}
	return members, membersSet, meta, deleted
}
