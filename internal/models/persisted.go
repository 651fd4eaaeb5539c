package models

import (
	"fmt"
	"time"
)

// persisted holds the lifecycle fields shared by all database-backed
// models: generated ID, human-readable sequence, timestamps, soft delete.
type persisted struct {
	id        string
	sequence  int
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

func newPersisted(sequence int) persisted {
	now := time.Now()
	return persisted{sequence: sequence, createdAt: now, updatedAt: now}
}

func (p *persisted) ID() string                  { return p.id }
func (p *persisted) Sequence() int               { return p.sequence }
func (p *persisted) CreatedAt() time.Time        { return p.createdAt }
func (p *persisted) UpdatedAt() time.Time        { return p.updatedAt }
func (p *persisted) DeletedAt() *time.Time       { return p.deletedAt }
func (p *persisted) SetID(id string)             { p.id = id }
func (p *persisted) SetSequence(n int)           { p.sequence = n }
func (p *persisted) SetCreatedAt(t time.Time)    { p.createdAt = t }
func (p *persisted) SetUpdatedAt(t time.Time)    { p.updatedAt = t }
func (p *persisted) SetDeletedAt(t *time.Time)   { p.deletedAt = t }

// CachedMatch is a persisted cross-platform track resolution. Rows are
// keyed by the source track's ISRC when present, else by its synthetic
// fingerprint, and carry the native id learned on each platform.
type CachedMatch struct {
	persisted
	cacheKey   string
	track      Track
	confidence int
	method     string
}

// NewCachedMatch creates a cache row for key holding track at the given
// confidence, produced by the named match method.
func NewCachedMatch(sequence int, cacheKey string, track Track, confidence int, method string) *CachedMatch {
	return &CachedMatch{
		persisted:  newPersisted(sequence),
		cacheKey:   cacheKey,
		track:      track,
		confidence: confidence,
		method:     method,
	}
}

func (m *CachedMatch) CacheKey() string { return m.cacheKey }
func (m *CachedMatch) Track() Track     { return m.track }
func (m *CachedMatch) Confidence() int  { return m.confidence }
func (m *CachedMatch) Method() string   { return m.method }

// SetTrack replaces the cached track payload, merging newly learned
// platform ids over the old ones.
func (m *CachedMatch) SetTrack(t Track) { m.track = t }

func (m *CachedMatch) SetConfidence(c int)   { m.confidence = c }
func (m *CachedMatch) SetMethod(meth string) { m.method = meth }

// Validate checks if the cache row's data is valid.
func (m *CachedMatch) Validate() error {
	if m.cacheKey == "" {
		return fmt.Errorf("cache key is required")
	}
	if m.track.Title == "" {
		return fmt.Errorf("track title is required")
	}
	if m.confidence < 0 || m.confidence > 100 {
		return fmt.Errorf("confidence must be in [0,100], got %d", m.confidence)
	}
	return nil
}

// PersistedEntity is a base-snapshot row: the last locally committed
// state of one entity, used as the three-way diff reference point.
type PersistedEntity struct {
	persisted
	entity       Entity
	fingerprint  string
	lastSyncedAt *time.Time
}

// NewPersistedEntity creates a base row for entity, computing its
// content fingerprint.
func NewPersistedEntity(sequence int, entity Entity) *PersistedEntity {
	return &PersistedEntity{
		persisted:   newPersisted(sequence),
		entity:      entity,
		fingerprint: entity.Fingerprint(),
	}
}

// Entity returns the stored entity with its LocalID populated.
func (e *PersistedEntity) Entity() Entity {
	out := e.entity
	out.LocalID = e.id
	return out
}

func (e *PersistedEntity) Fingerprint() string       { return e.fingerprint }
func (e *PersistedEntity) LastSyncedAt() *time.Time  { return e.lastSyncedAt }
func (e *PersistedEntity) SetLastSyncedAt(t *time.Time) { e.lastSyncedAt = t }

// SetEntity replaces the stored entity and recomputes the fingerprint.
func (e *PersistedEntity) SetEntity(entity Entity) {
	e.entity = entity
	e.fingerprint = entity.Fingerprint()
}

// SetFingerprint overrides the stored fingerprint. Used when scanning
// rows back from the database.
func (e *PersistedEntity) SetFingerprint(fp string) { e.fingerprint = fp }

// Validate checks if the base row's data is valid.
func (e *PersistedEntity) Validate() error {
	switch e.entity.Kind {
	case KindPlaylist, KindLikedSet, KindAlbumSet:
	default:
		return fmt.Errorf("unknown entity kind %q", e.entity.Kind)
	}
	if e.entity.Kind == KindPlaylist && e.entity.Name == "" {
		return fmt.Errorf("playlist name is required")
	}
	return nil
}

// ConflictRecord is an unresolved conflict parked between cycles,
// awaiting an external resolution before the next applying phase.
type ConflictRecord struct {
	persisted
	conflict Conflict
}

// NewConflictRecord creates a pending conflict row.
func NewConflictRecord(sequence int, conflict Conflict) *ConflictRecord {
	return &ConflictRecord{persisted: newPersisted(sequence), conflict: conflict}
}

func (c *ConflictRecord) Conflict() Conflict { return c.conflict }

// SetResolution records the externally supplied decision.
func (c *ConflictRecord) SetResolution(r Resolution) { c.conflict.Resolution = r }

// SetConflict replaces the stored conflict payload. Used when scanning
// rows back from the database.
func (c *ConflictRecord) SetConflict(conflict Conflict) { c.conflict = conflict }

// Validate checks if the conflict row's data is valid.
func (c *ConflictRecord) Validate() error {
	if c.conflict.EntityID == "" {
		return fmt.Errorf("entity id is required")
	}
	if c.conflict.Field == "" {
		return fmt.Errorf("conflict field is required")
	}
	if c.conflict.A == nil || c.conflict.B == nil {
		return fmt.Errorf("conflict requires both changes")
	}
	return nil
}

// SyncLogEntry is one appended SyncResult.
type SyncLogEntry struct {
	persisted
	result SyncResult
}

// NewSyncLogEntry creates a log row for result.
func NewSyncLogEntry(sequence int, result SyncResult) *SyncLogEntry {
	return &SyncLogEntry{persisted: newPersisted(sequence), result: result}
}

func (s *SyncLogEntry) Result() SyncResult { return s.result }

// SetResult replaces the stored result. Used when scanning rows back
// from the database.
func (s *SyncLogEntry) SetResult(r SyncResult) { s.result = r }

// Validate checks if the log row's data is valid.
func (s *SyncLogEntry) Validate() error {
	if s.result.StartedAt.IsZero() {
		return fmt.Errorf("start time is required")
	}
	return nil
}
