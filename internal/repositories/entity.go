package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

// EntityRepository implements models.Repository[*models.PersistedEntity]
// over the entities table, which holds the base snapshot: the last
// committed state every sync cycle diffs against.
type EntityRepository struct {
	db *sql.DB
}

// NewEntityRepository creates a repository over the given database.
func NewEntityRepository(db *sql.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// Create inserts a new base row with generated ID and sequence.
func (r *EntityRepository) Create(row *models.PersistedEntity) error {
	sequence, err := NextSequence(r.db, "entities")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	row.SetSequence(sequence)
	row.SetID(shared.GenerateID())

	if err := row.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	entity := row.Entity()
	members, err := json.Marshal(entity.Members)
	if err != nil {
		return fmt.Errorf("failed to marshal members: %w", err)
	}

	query := `
		INSERT INTO entities (id, sequence, kind, name, description, spotify_id, apple_id, members, fingerprint, selected, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		row.ID(),
		row.Sequence(),
		string(entity.Kind),
		entity.Name,
		entity.Description,
		entity.PlatformID(models.PlatformSpotify),
		entity.PlatformID(models.PlatformApple),
		string(members),
		row.Fingerprint(),
		entity.Selected,
		row.LastSyncedAt(),
		row.CreatedAt(),
		row.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert entity: %w", err)
	}

	return nil
}

// Get retrieves a base row by ID, excluding soft-deleted rows.
func (r *EntityRepository) Get(id string) (*models.PersistedEntity, error) {
	query := selectEntities + " WHERE id = ? AND deleted_at IS NULL"
	return r.scan(r.db.QueryRow(query, id))
}

// GetByPlatformID retrieves a base row by its native id on p.
func (r *EntityRepository) GetByPlatformID(p models.Platform, platformID string) (*models.PersistedEntity, error) {
	column := "spotify_id"
	if p == models.PlatformApple {
		column = "apple_id"
	}
	query := selectEntities + fmt.Sprintf(" WHERE %s = ? AND deleted_at IS NULL", column)
	return r.scan(r.db.QueryRow(query, platformID))
}

// Update modifies an existing base row.
func (r *EntityRepository) Update(row *models.PersistedEntity) error {
	if err := row.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	row.SetUpdatedAt(now)

	entity := row.Entity()
	members, err := json.Marshal(entity.Members)
	if err != nil {
		return fmt.Errorf("failed to marshal members: %w", err)
	}

	query := `
		UPDATE entities
		SET kind = ?, name = ?, description = ?, spotify_id = ?, apple_id = ?, members = ?, fingerprint = ?, selected = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		string(entity.Kind),
		entity.Name,
		entity.Description,
		entity.PlatformID(models.PlatformSpotify),
		entity.PlatformID(models.PlatformApple),
		string(members),
		row.Fingerprint(),
		entity.Selected,
		row.LastSyncedAt(),
		now,
		row.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: entity %s", shared.ErrEntityNotFound, row.ID())
	}

	return nil
}

// Delete soft-deletes a base row by ID.
func (r *EntityRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE entities SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: entity %s", shared.ErrEntityNotFound, id)
	}

	return nil
}

// List retrieves base rows matching the given criteria, ordered by
// sequence. Supported criteria: "kind", "selected".
func (r *EntityRepository) List(criteria map[string]any) ([]*models.PersistedEntity, error) {
	query := selectEntities + " WHERE deleted_at IS NULL"
	args := []any{}

	if kind, ok := criteria["kind"].(string); ok && kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	if selected, ok := criteria["selected"].(bool); ok {
		query += " AND selected = ?"
		args = append(args, selected)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var entities []*models.PersistedEntity
	for rows.Next() {
		row, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entities, nil
}

// BaseSnapshot loads every base row as a local snapshot for diffing.
func (r *EntityRepository) BaseSnapshot() (*models.Snapshot, error) {
	rows, err := r.List(map[string]any{})
	if err != nil {
		return nil, err
	}

	snapshot := &models.Snapshot{TakenAt: time.Now().UTC()}
	for _, row := range rows {
		entity := row.Entity()
		snapshot.Entities = append(snapshot.Entities, &entity)
	}
	return snapshot, nil
}

// SetSelected flips the tracked flag on a base row.
func (r *EntityRepository) SetSelected(id string, selected bool) error {
	result, err := r.db.Exec(`UPDATE entities SET selected = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, selected, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update selected flag: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: entity %s", shared.ErrEntityNotFound, id)
	}
	return nil
}

// MarkSynced stamps the row's last successful sync time.
func (r *EntityRepository) MarkSynced(id string, at time.Time) error {
	result, err := r.db.Exec(`UPDATE entities SET last_synced_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, at, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update last synced time: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: entity %s", shared.ErrEntityNotFound, id)
	}
	return nil
}

const selectEntities = `
	SELECT id, sequence, kind, name, description, spotify_id, apple_id, members, fingerprint, selected, last_synced_at, created_at, updated_at, deleted_at
	FROM entities
`

func (r *EntityRepository) scan(row rowScanner) (*models.PersistedEntity, error) {
	var (
		id           string
		sequence     int
		kind         string
		name         string
		description  string
		spotifyID    string
		appleID      string
		members      string
		fingerprint  string
		selected     bool
		lastSyncedAt sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := row.Scan(&id, &sequence, &kind, &name, &description, &spotifyID, &appleID, &members, &fingerprint, &selected, &lastSyncedAt, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: entity", shared.ErrEntityNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}

	entity := models.Entity{
		Kind:        models.EntityKind(kind),
		Name:        name,
		Description: description,
		Selected:    selected,
	}
	if err := json.Unmarshal([]byte(members), &entity.Members); err != nil {
		return nil, fmt.Errorf("%w: corrupt members payload for entity %s: %v", shared.ErrStoreCorrupt, id, err)
	}
	if spotifyID != "" {
		entity.SetPlatformID(models.PlatformSpotify, spotifyID)
	}
	if appleID != "" {
		entity.SetPlatformID(models.PlatformApple, appleID)
	}

	out := models.NewPersistedEntity(sequence, entity)
	out.SetID(id)
	out.SetFingerprint(fingerprint)
	out.SetCreatedAt(createdAt)
	out.SetUpdatedAt(updatedAt)
	if lastSyncedAt.Valid {
		out.SetLastSyncedAt(&lastSyncedAt.Time)
	}
	if deletedAt.Valid {
		out.SetDeletedAt(&deletedAt.Time)
	}

	return out, nil
}
