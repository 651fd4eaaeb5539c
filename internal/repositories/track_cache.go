package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

// TrackCacheRepository implements models.Repository[*models.CachedMatch]
// over the track_cache table.
type TrackCacheRepository struct {
	db *sql.DB
}

// NewTrackCacheRepository creates a repository over the given database.
func NewTrackCacheRepository(db *sql.DB) *TrackCacheRepository {
	return &TrackCacheRepository{db: db}
}

// Create inserts a new cache row with generated ID and sequence.
func (r *TrackCacheRepository) Create(match *models.CachedMatch) error {
	sequence, err := NextSequence(r.db, "track_cache")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	match.SetSequence(sequence)
	match.SetID(shared.GenerateID())

	if err := match.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	track := match.Track()
	query := `
		INSERT INTO track_cache (id, sequence, cache_key, isrc, spotify_id, apple_id, title, artist, album, duration_ms, confidence, method, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		match.ID(),
		match.Sequence(),
		match.CacheKey(),
		track.ISRC,
		track.PlatformID(models.PlatformSpotify),
		track.PlatformID(models.PlatformApple),
		track.Title,
		track.PrimaryArtist(),
		track.Album,
		track.DurationMS,
		match.Confidence(),
		match.Method(),
		match.CreatedAt(),
		match.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cache row: %w", err)
	}

	return nil
}

// Get retrieves a cache row by ID, excluding soft-deleted rows.
func (r *TrackCacheRepository) Get(id string) (*models.CachedMatch, error) {
	query := selectTrackCache + " WHERE id = ? AND deleted_at IS NULL"
	return r.scan(r.db.QueryRow(query, id))
}

// GetByKey retrieves a cache row by its cache key.
func (r *TrackCacheRepository) GetByKey(key string) (*models.CachedMatch, error) {
	query := selectTrackCache + " WHERE cache_key = ? AND deleted_at IS NULL"
	return r.scan(r.db.QueryRow(query, key))
}

// Update modifies an existing cache row.
func (r *TrackCacheRepository) Update(match *models.CachedMatch) error {
	if err := match.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	match.SetUpdatedAt(now)

	track := match.Track()
	query := `
		UPDATE track_cache
		SET isrc = ?, spotify_id = ?, apple_id = ?, title = ?, artist = ?, album = ?, duration_ms = ?, confidence = ?, method = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		track.ISRC,
		track.PlatformID(models.PlatformSpotify),
		track.PlatformID(models.PlatformApple),
		track.Title,
		track.PrimaryArtist(),
		track.Album,
		track.DurationMS,
		match.Confidence(),
		match.Method(),
		now,
		match.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update cache row: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: cache row %s", shared.ErrEntityNotFound, match.ID())
	}

	return nil
}

// Delete soft-deletes a cache row by ID.
func (r *TrackCacheRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE track_cache SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete cache row: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: cache row %s", shared.ErrEntityNotFound, id)
	}

	return nil
}

// List retrieves cache rows matching the given criteria, ordered by
// sequence. Supported criteria: "method".
func (r *TrackCacheRepository) List(criteria map[string]any) ([]*models.CachedMatch, error) {
	query := selectTrackCache + " WHERE deleted_at IS NULL"
	args := []any{}

	if method, ok := criteria["method"].(string); ok && method != "" {
		query += " AND method = ?"
		args = append(args, method)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache rows: %w", err)
	}
	defer rows.Close()

	var matches []*models.CachedMatch
	for rows.Next() {
		match, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return matches, nil
}

// Clear soft-deletes every cache row and returns how many were dropped.
func (r *TrackCacheRepository) Clear() (int, error) {
	result, err := r.db.Exec(`UPDATE track_cache SET deleted_at = ? WHERE deleted_at IS NULL`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}

const selectTrackCache = `
	SELECT id, sequence, cache_key, isrc, spotify_id, apple_id, title, artist, album, duration_ms, confidence, method, created_at, updated_at, deleted_at
	FROM track_cache
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TrackCacheRepository) scan(row rowScanner) (*models.CachedMatch, error) {
	var (
		id         string
		sequence   int
		cacheKey   string
		isrc       string
		spotifyID  string
		appleID    string
		title      string
		artist     string
		album      string
		durationMS int
		confidence int
		method     string
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)

	err := row.Scan(&id, &sequence, &cacheKey, &isrc, &spotifyID, &appleID, &title, &artist, &album, &durationMS, &confidence, &method, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: cache row", shared.ErrEntityNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan cache row: %w", err)
	}

	track := models.Track{
		ISRC:       isrc,
		Title:      title,
		Artists:    []string{artist},
		Album:      album,
		DurationMS: durationMS,
	}
	if spotifyID != "" {
		track = track.WithPlatformID(models.PlatformSpotify, spotifyID)
	}
	if appleID != "" {
		track = track.WithPlatformID(models.PlatformApple, appleID)
	}

	match := models.NewCachedMatch(sequence, cacheKey, track, confidence, method)
	match.SetID(id)
	match.SetCreatedAt(createdAt)
	match.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		match.SetDeletedAt(&deletedAt.Time)
	}

	return match, nil
}

// MatchCache adapts TrackCacheRepository to the resolver's cache
// interface, upserting by cache key so repeated resolutions merge newly
// learned platform ids into the existing row.
type MatchCache struct {
	repo *TrackCacheRepository
}

// NewMatchCache creates the resolver cache adapter.
func NewMatchCache(repo *TrackCacheRepository) *MatchCache {
	return &MatchCache{repo: repo}
}

// Lookup returns the cached track for key, reporting absence without
// error.
func (c *MatchCache) Lookup(key string) (models.Track, bool, error) {
	match, err := c.repo.GetByKey(key)
	if err != nil {
		if errors.Is(err, shared.ErrEntityNotFound) {
			return models.Track{}, false, nil
		}
		return models.Track{}, false, err
	}
	return match.Track(), true, nil
}

// Store upserts an accepted resolution under key.
func (c *MatchCache) Store(key string, track models.Track, confidence int, method string) error {
	existing, err := c.repo.GetByKey(key)
	if err != nil {
		if !errors.Is(err, shared.ErrEntityNotFound) {
			return err
		}
		return c.repo.Create(models.NewCachedMatch(0, key, track, confidence, method))
	}

	merged := existing.Track()
	for platform, id := range track.IDs {
		merged = merged.WithPlatformID(platform, id)
	}
	if track.ISRC != "" {
		merged.ISRC = track.ISRC
	}
	existing.SetTrack(merged)
	existing.SetConfidence(confidence)
	existing.SetMethod(method)
	return c.repo.Update(existing)
}
