package tasks

import (
	"fmt"

	"github.com/harmonia-sync/harmonia/internal/models"
)

// pairing joins one logical entity's three views: the local base row and
// the two remote snapshots. Any of the three may be missing.
type pairing struct {
	row     *models.PersistedEntity // nil when no base row exists yet
	base    *models.Entity          // diff baseline; nil until first commit
	remoteA *models.Entity
	remoteB *models.Entity

	// key identifies the pairing across cycles for conflict rows: the
	// base row id when one exists, the pair key otherwise.
	key  string
	kind models.EntityKind
	name string

	// learned collects native ids discovered while applying, for commit.
	learned map[models.Platform]string
}

func (pr *pairing) remoteFor(p models.Platform) *models.Entity {
	if p == models.PlatformApple {
		return pr.remoteB
	}
	return pr.remoteA
}

// platformID returns the entity's known native id on p, consulting ids
// learned during this cycle, the base row, and the remote snapshot.
func (pr *pairing) platformID(p models.Platform) string {
	if id := pr.learned[p]; id != "" {
		return id
	}
	if pr.row != nil {
		entity := pr.row.Entity()
		if id := entity.PlatformID(p); id != "" {
			return id
		}
	}
	if remote := pr.remoteFor(p); remote != nil {
		if id := remote.PlatformID(p); id != "" {
			return id
		}
	}
	return ""
}

// pair joins base rows with their remote counterparts, registers newly
// discovered playlists as unselected base rows, and returns the
// pairings due for sync this cycle. A base row only becomes a diff
// baseline after its first successful commit; until then both remotes
// diff against nothing, so a playlist selected before it ever synced
// propagates as a creation instead of a phantom deletion.
func (e *Engine) pair(snapA, snapB *models.Snapshot, dryRun bool) ([]*pairing, error) {
	rows, err := e.entities.List(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load base entities: %w", err)
	}

	byIDA := snapA.ByPlatformID(models.PlatformSpotify)
	byIDB := snapB.ByPlatformID(models.PlatformApple)
	byKeyA := snapA.ByPairKey()
	byKeyB := snapB.ByPairKey()
	claimed := make(map[*models.Entity]bool)

	match := func(entity models.Entity, p models.Platform, byID, byKey map[string]*models.Entity) *models.Entity {
		if remote, ok := byID[entity.PlatformID(p)]; ok {
			claimed[remote] = true
			return remote
		}
		if remote, ok := byKey[entity.PairKey()]; ok && !claimed[remote] {
			claimed[remote] = true
			return remote
		}
		return nil
	}

	var pairings []*pairing
	for _, row := range rows {
		entity := row.Entity()
		pr := &pairing{
			row:     row,
			remoteA: match(entity, models.PlatformSpotify, byIDA, byKeyA),
			remoteB: match(entity, models.PlatformApple, byIDB, byKeyB),
			key:     row.ID(),
			kind:    entity.Kind,
			name:    entity.Name,
			learned: make(map[models.Platform]string),
		}
		if row.LastSyncedAt() != nil {
			base := entity
			pr.base = &base
		}
		if entity.Kind == models.KindPlaylist && !entity.Selected {
			continue
		}
		pairings = append(pairings, pr)
	}

	// Remotes with no base row: pair the two platforms' views of the
	// same logical entity by pair key.
	for _, remoteA := range snapA.Entities {
		if claimed[remoteA] {
			continue
		}
		claimed[remoteA] = true
		pr := &pairing{
			remoteA: remoteA,
			key:     remoteA.PairKey(),
			kind:    remoteA.Kind,
			name:    remoteA.Name,
			learned: make(map[models.Platform]string),
		}
		if remoteB, ok := byKeyB[remoteA.PairKey()]; ok && !claimed[remoteB] {
			claimed[remoteB] = true
			pr.remoteB = remoteB
		}
		pairings = e.admitNew(pairings, pr, dryRun)
	}
	for _, remoteB := range snapB.Entities {
		if claimed[remoteB] {
			continue
		}
		claimed[remoteB] = true
		pr := &pairing{
			remoteB: remoteB,
			key:     remoteB.PairKey(),
			kind:    remoteB.Kind,
			name:    remoteB.Name,
			learned: make(map[models.Platform]string),
		}
		pairings = e.admitNew(pairings, pr, dryRun)
	}

	return pairings, nil
}

// admitNew handles an entity seen on a remote with no base row. The
// singleton sets always sync. New playlists are registered as unselected
// base rows so the playlists command can offer them, but do not sync
// until selected.
func (e *Engine) admitNew(pairings []*pairing, pr *pairing, dryRun bool) []*pairing {
	if pr.kind != models.KindPlaylist {
		return append(pairings, pr)
	}

	if !dryRun {
		if err := e.register(pr); err != nil {
			e.logger.Warn("failed to register discovered playlist", "name", pr.name, "error", err)
		}
	}
	return pairings
}

// register creates an unselected base row for a newly discovered remote
// playlist. Members are left empty; the row is not a diff baseline until
// its first commit.
func (e *Engine) register(pr *pairing) error {
	entity := models.Entity{
		Kind: pr.kind,
		Name: pr.name,
	}
	for _, remote := range []*models.Entity{pr.remoteA, pr.remoteB} {
		if remote == nil {
			continue
		}
		entity.Description = firstNonEmpty(entity.Description, remote.Description)
		for p, id := range remote.IDs {
			entity.SetPlatformID(p, id)
		}
	}
	return e.entities.Create(models.NewPersistedEntity(0, entity))
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
