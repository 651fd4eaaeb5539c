package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

// ConflictRepository implements
// models.Repository[*models.ConflictRecord] over the conflicts table.
// The two disagreeing changes are stored as JSON payloads so a parked
// conflict survives between cycles with its full member lists intact.
type ConflictRepository struct {
	db *sql.DB
}

// NewConflictRepository creates a repository over the given database.
func NewConflictRepository(db *sql.DB) *ConflictRepository {
	return &ConflictRepository{db: db}
}

// Create inserts a new conflict row with generated ID and sequence.
func (r *ConflictRepository) Create(row *models.ConflictRecord) error {
	sequence, err := NextSequence(r.db, "conflicts")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	row.SetSequence(sequence)
	row.SetID(shared.GenerateID())

	if err := row.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	conflict := row.Conflict()
	payloadA, err := json.Marshal(conflict.A)
	if err != nil {
		return fmt.Errorf("failed to marshal change payload: %w", err)
	}
	payloadB, err := json.Marshal(conflict.B)
	if err != nil {
		return fmt.Errorf("failed to marshal change payload: %w", err)
	}

	query := `
		INSERT INTO conflicts (id, sequence, entity_id, entity_name, field, payload_a, payload_b, resolution, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		row.ID(),
		row.Sequence(),
		conflict.EntityID,
		conflict.EntityName,
		conflict.Field,
		string(payloadA),
		string(payloadB),
		string(conflict.Resolution),
		row.CreatedAt(),
		row.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conflict: %w", err)
	}

	return nil
}

// Get retrieves a conflict row by ID, excluding soft-deleted rows.
func (r *ConflictRepository) Get(id string) (*models.ConflictRecord, error) {
	query := selectConflicts + " WHERE id = ? AND deleted_at IS NULL"
	return r.scan(r.db.QueryRow(query, id))
}

// Update persists a changed resolution.
func (r *ConflictRepository) Update(row *models.ConflictRecord) error {
	if err := row.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	row.SetUpdatedAt(now)

	result, err := r.db.Exec(
		`UPDATE conflicts SET resolution = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		string(row.Conflict().Resolution), now, row.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update conflict: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: conflict %s", shared.ErrEntityNotFound, row.ID())
	}

	return nil
}

// Delete soft-deletes a conflict row by ID.
func (r *ConflictRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE conflicts SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete conflict: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: conflict %s", shared.ErrEntityNotFound, id)
	}

	return nil
}

// List retrieves conflict rows matching the given criteria, ordered by
// sequence. Supported criteria: "entity_id", "pending" (no resolution
// recorded yet).
func (r *ConflictRepository) List(criteria map[string]any) ([]*models.ConflictRecord, error) {
	query := selectConflicts + " WHERE deleted_at IS NULL"
	args := []any{}

	if entityID, ok := criteria["entity_id"].(string); ok && entityID != "" {
		query += " AND entity_id = ?"
		args = append(args, entityID)
	}
	if pending, ok := criteria["pending"].(bool); ok && pending {
		query += " AND resolution = ''"
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}
	defer rows.Close()

	var records []*models.ConflictRecord
	for rows.Next() {
		record, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

const selectConflicts = `
	SELECT id, sequence, entity_id, entity_name, field, payload_a, payload_b, resolution, created_at, updated_at, deleted_at
	FROM conflicts
`

func (r *ConflictRepository) scan(row rowScanner) (*models.ConflictRecord, error) {
	var (
		id         string
		sequence   int
		entityID   string
		entityName string
		field      string
		payloadA   string
		payloadB   string
		resolution string
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)

	err := row.Scan(&id, &sequence, &entityID, &entityName, &field, &payloadA, &payloadB, &resolution, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: conflict", shared.ErrEntityNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conflict: %w", err)
	}

	conflict := models.Conflict{
		EntityID:   entityID,
		EntityName: entityName,
		Field:      field,
		Resolution: models.Resolution(resolution),
	}
	if err := json.Unmarshal([]byte(payloadA), &conflict.A); err != nil {
		return nil, fmt.Errorf("%w: corrupt conflict payload %s: %v", shared.ErrStoreCorrupt, id, err)
	}
	if err := json.Unmarshal([]byte(payloadB), &conflict.B); err != nil {
		return nil, fmt.Errorf("%w: corrupt conflict payload %s: %v", shared.ErrStoreCorrupt, id, err)
	}

	record := models.NewConflictRecord(sequence, conflict)
	record.SetID(id)
	record.SetCreatedAt(createdAt)
	record.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		record.SetDeletedAt(&deletedAt.Time)
	}

	return record, nil
}
