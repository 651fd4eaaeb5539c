package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func cachedTrack() models.Track {
	return models.Track{
		ISRC:       "GBAAA7700010",
		Title:      "Go Your Own Way",
		Artists:    []string{"Fleetwood Mac"},
		Album:      "Rumours",
		DurationMS: 218000,
	}.WithPlatformID(models.PlatformSpotify, "sp1")
}

func TestTrackCacheRepository(t *testing.T) {
	t.Run("Create And Get", func(t *testing.T) {
		repo := NewTrackCacheRepository(setupTestDB(t))

		match := models.NewCachedMatch(0, "GBAAA7700010", cachedTrack(), 100, "isrc")
		if err := repo.Create(match); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if match.ID() == "" || match.Sequence() != 1 {
			t.Errorf("id/sequence not assigned: %q %d", match.ID(), match.Sequence())
		}

		got, err := repo.Get(match.ID())
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.CacheKey() != "GBAAA7700010" || got.Confidence() != 100 || got.Method() != "isrc" {
			t.Errorf("unexpected row: %+v", got)
		}
		if got.Track().PlatformID(models.PlatformSpotify) != "sp1" {
			t.Errorf("platform id lost: %+v", got.Track())
		}
	})

	t.Run("GetByKey", func(t *testing.T) {
		repo := NewTrackCacheRepository(setupTestDB(t))

		if err := repo.Create(models.NewCachedMatch(0, "key1", cachedTrack(), 92, "fuzzy")); err != nil {
			t.Fatal(err)
		}

		got, err := repo.GetByKey("key1")
		if err != nil {
			t.Fatalf("get by key failed: %v", err)
		}
		if got.Method() != "fuzzy" {
			t.Errorf("method = %q", got.Method())
		}

		if _, err := repo.GetByKey("missing"); !errors.Is(err, shared.ErrEntityNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("Duplicate Key Is Rejected", func(t *testing.T) {
		repo := NewTrackCacheRepository(setupTestDB(t))

		if err := repo.Create(models.NewCachedMatch(0, "key1", cachedTrack(), 100, "isrc")); err != nil {
			t.Fatal(err)
		}
		if err := repo.Create(models.NewCachedMatch(0, "key1", cachedTrack(), 100, "isrc")); err == nil {
			t.Error("expected unique constraint violation")
		}
	})

	t.Run("Clear Soft Deletes Everything", func(t *testing.T) {
		repo := NewTrackCacheRepository(setupTestDB(t))

		for _, key := range []string{"a", "b"} {
			if err := repo.Create(models.NewCachedMatch(0, key, cachedTrack(), 100, "isrc")); err != nil {
				t.Fatal(err)
			}
		}

		n, err := repo.Clear()
		if err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Errorf("cleared %d rows, want 2", n)
		}

		rows, err := repo.List(map[string]any{})
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 0 {
			t.Errorf("expected empty cache, got %d rows", len(rows))
		}
	})
}

func TestMatchCache(t *testing.T) {
	t.Run("Lookup Misses Without Error", func(t *testing.T) {
		cache := NewMatchCache(NewTrackCacheRepository(setupTestDB(t)))

		_, found, err := cache.Lookup("missing")
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if found {
			t.Error("expected a miss")
		}
	})

	t.Run("Store Then Lookup Round Trips", func(t *testing.T) {
		cache := NewMatchCache(NewTrackCacheRepository(setupTestDB(t)))

		if err := cache.Store("key1", cachedTrack(), 100, "isrc"); err != nil {
			t.Fatalf("store failed: %v", err)
		}

		got, found, err := cache.Lookup("key1")
		if err != nil || !found {
			t.Fatalf("lookup failed: %v found=%v", err, found)
		}
		if got.Title != "Go Your Own Way" {
			t.Errorf("unexpected track %+v", got)
		}
	})

	t.Run("Store Merges Newly Learned Platform IDs", func(t *testing.T) {
		cache := NewMatchCache(NewTrackCacheRepository(setupTestDB(t)))

		if err := cache.Store("key1", cachedTrack(), 100, "isrc"); err != nil {
			t.Fatal(err)
		}

		withApple := cachedTrack().WithPlatformID(models.PlatformApple, "ap1")
		if err := cache.Store("key1", withApple, 100, "isrc"); err != nil {
			t.Fatal(err)
		}

		got, _, err := cache.Lookup("key1")
		if err != nil {
			t.Fatal(err)
		}
		if got.PlatformID(models.PlatformSpotify) != "sp1" || got.PlatformID(models.PlatformApple) != "ap1" {
			t.Errorf("ids not merged: %+v", got.IDs)
		}
	})
}

func baseEntity(name string, members ...models.Track) models.Entity {
	entity := models.Entity{
		Kind:    models.KindPlaylist,
		Name:    name,
		Members: members,
	}
	entity.SetPlatformID(models.PlatformSpotify, "sp-"+name)
	return entity
}

func TestEntityRepository(t *testing.T) {
	t.Run("Create And Get Round Trips Members", func(t *testing.T) {
		repo := NewEntityRepository(setupTestDB(t))

		row := models.NewPersistedEntity(0, baseEntity("Road Trip", cachedTrack()))
		if err := repo.Create(row); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		got, err := repo.Get(row.ID())
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		entity := got.Entity()
		if entity.Name != "Road Trip" || len(entity.Members) != 1 {
			t.Errorf("unexpected entity %+v", entity)
		}
		if entity.Members[0].ISRC != "GBAAA7700010" {
			t.Errorf("member lost in round trip: %+v", entity.Members[0])
		}
		if entity.LocalID != row.ID() {
			t.Errorf("local id = %q, want %q", entity.LocalID, row.ID())
		}
		if got.Fingerprint() == "" {
			t.Error("fingerprint missing")
		}
	})

	t.Run("GetByPlatformID", func(t *testing.T) {
		repo := NewEntityRepository(setupTestDB(t))

		row := models.NewPersistedEntity(0, baseEntity("Focus"))
		if err := repo.Create(row); err != nil {
			t.Fatal(err)
		}

		got, err := repo.GetByPlatformID(models.PlatformSpotify, "sp-Focus")
		if err != nil {
			t.Fatalf("get by platform id failed: %v", err)
		}
		if got.ID() != row.ID() {
			t.Errorf("wrong row: %q vs %q", got.ID(), row.ID())
		}
	})

	t.Run("Update Recomputes Fingerprint", func(t *testing.T) {
		repo := NewEntityRepository(setupTestDB(t))

		row := models.NewPersistedEntity(0, baseEntity("Gym"))
		if err := repo.Create(row); err != nil {
			t.Fatal(err)
		}
		before := row.Fingerprint()

		updated := row.Entity()
		updated.Name = "Workout"
		row.SetEntity(updated)
		if err := repo.Update(row); err != nil {
			t.Fatalf("update failed: %v", err)
		}

		got, err := repo.Get(row.ID())
		if err != nil {
			t.Fatal(err)
		}
		if got.Entity().Name != "Workout" {
			t.Errorf("name = %q", got.Entity().Name)
		}
		if got.Fingerprint() == before {
			t.Error("fingerprint should change with the name")
		}
	})

	t.Run("SetSelected Filters Lists", func(t *testing.T) {
		repo := NewEntityRepository(setupTestDB(t))

		a := models.NewPersistedEntity(0, baseEntity("A"))
		b := models.NewPersistedEntity(0, baseEntity("B"))
		for _, row := range []*models.PersistedEntity{a, b} {
			if err := repo.Create(row); err != nil {
				t.Fatal(err)
			}
		}

		if err := repo.SetSelected(a.ID(), true); err != nil {
			t.Fatal(err)
		}

		selected, err := repo.List(map[string]any{"selected": true})
		if err != nil {
			t.Fatal(err)
		}
		if len(selected) != 1 || selected[0].ID() != a.ID() {
			t.Errorf("unexpected selection %+v", selected)
		}
	})

	t.Run("Delete Hides From Snapshot", func(t *testing.T) {
		repo := NewEntityRepository(setupTestDB(t))

		row := models.NewPersistedEntity(0, baseEntity("Gone"))
		if err := repo.Create(row); err != nil {
			t.Fatal(err)
		}
		if err := repo.Delete(row.ID()); err != nil {
			t.Fatal(err)
		}

		snapshot, err := repo.BaseSnapshot()
		if err != nil {
			t.Fatal(err)
		}
		if len(snapshot.Entities) != 0 {
			t.Errorf("deleted entity still in snapshot: %+v", snapshot.Entities)
		}
	})

	t.Run("MarkSynced", func(t *testing.T) {
		repo := NewEntityRepository(setupTestDB(t))

		row := models.NewPersistedEntity(0, baseEntity("Synced"))
		if err := repo.Create(row); err != nil {
			t.Fatal(err)
		}

		at := time.Now().UTC().Truncate(time.Second)
		if err := repo.MarkSynced(row.ID(), at); err != nil {
			t.Fatal(err)
		}

		got, err := repo.Get(row.ID())
		if err != nil {
			t.Fatal(err)
		}
		if got.LastSyncedAt() == nil {
			t.Fatal("last synced time not set")
		}
	})
}

func TestConflictRepository(t *testing.T) {
	pending := func() models.Conflict {
		return models.Conflict{
			EntityID:   "e1",
			EntityName: "Gym",
			Field:      "name",
			A: &models.Change{
				EntityID: "e1", EntityKind: models.KindPlaylist, EntityName: "Gym",
				Kind: models.ChangeModified, Source: models.PlatformSpotify,
				Members: []models.Track{cachedTrack()},
			},
			B: &models.Change{
				EntityID: "e1", EntityKind: models.KindPlaylist, EntityName: "Gym",
				Kind: models.ChangeModified, Source: models.PlatformApple,
			},
		}
	}

	t.Run("Create And Get Round Trips Payloads", func(t *testing.T) {
		repo := NewConflictRepository(setupTestDB(t))

		record := models.NewConflictRecord(0, pending())
		if err := repo.Create(record); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		got, err := repo.Get(record.ID())
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		conflict := got.Conflict()
		if conflict.Field != "name" || conflict.A == nil || conflict.B == nil {
			t.Fatalf("unexpected conflict %+v", conflict)
		}
		if conflict.A.Source != models.PlatformSpotify || len(conflict.A.Members) != 1 {
			t.Errorf("payload a lost in round trip: %+v", conflict.A)
		}
	})

	t.Run("Resolution Round Trips", func(t *testing.T) {
		repo := NewConflictRepository(setupTestDB(t))

		record := models.NewConflictRecord(0, pending())
		if err := repo.Create(record); err != nil {
			t.Fatal(err)
		}

		record.SetResolution(models.ResolutionChooseA)
		if err := repo.Update(record); err != nil {
			t.Fatalf("update failed: %v", err)
		}

		got, err := repo.Get(record.ID())
		if err != nil {
			t.Fatal(err)
		}
		if got.Conflict().Resolution != models.ResolutionChooseA {
			t.Errorf("resolution = %q", got.Conflict().Resolution)
		}

		remaining, err := repo.List(map[string]any{"pending": true})
		if err != nil {
			t.Fatal(err)
		}
		if len(remaining) != 0 {
			t.Errorf("resolved conflict still pending: %+v", remaining)
		}
	})
}

func TestSyncLogRepository(t *testing.T) {
	result := func(applied int) models.SyncResult {
		return models.SyncResult{
			StartedAt:  time.Now().UTC(),
			Duration:   1500 * time.Millisecond,
			Applied:    applied,
			AutoMerged: applied,
			Failures:   []models.Failure{{EntityID: "e1", EntityName: "Gym", Reason: "boom"}},
		}
	}

	t.Run("Create And Latest", func(t *testing.T) {
		repo := NewSyncLogRepository(setupTestDB(t))

		if _, err := repo.Latest(); !errors.Is(err, shared.ErrEntityNotFound) {
			t.Errorf("expected empty log, got %v", err)
		}

		for i := 1; i <= 3; i++ {
			if err := repo.Create(models.NewSyncLogEntry(0, result(i))); err != nil {
				t.Fatalf("create failed: %v", err)
			}
		}

		latest, err := repo.Latest()
		if err != nil {
			t.Fatal(err)
		}
		got := latest.Result()
		if got.Applied != 3 {
			t.Errorf("latest applied = %d, want 3", got.Applied)
		}
		if got.Duration != 1500*time.Millisecond {
			t.Errorf("duration = %v", got.Duration)
		}
		if len(got.Failures) != 1 || got.Failures[0].Reason != "boom" {
			t.Errorf("failures lost in round trip: %+v", got.Failures)
		}
	})

	t.Run("Update Is Rejected", func(t *testing.T) {
		repo := NewSyncLogRepository(setupTestDB(t))

		entry := models.NewSyncLogEntry(0, result(1))
		if err := repo.Create(entry); err != nil {
			t.Fatal(err)
		}
		if err := repo.Update(entry); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected invalid input, got %v", err)
		}
	})
}
