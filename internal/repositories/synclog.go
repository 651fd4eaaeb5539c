package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

// SyncLogRepository implements models.Repository[*models.SyncLogEntry]
// over the append-only sync_log table.
type SyncLogRepository struct {
	db *sql.DB
}

// NewSyncLogRepository creates a repository over the given database.
func NewSyncLogRepository(db *sql.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

// Create appends a new log row with generated ID and sequence.
func (r *SyncLogRepository) Create(row *models.SyncLogEntry) error {
	sequence, err := NextSequence(r.db, "sync_log")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	row.SetSequence(sequence)
	row.SetID(shared.GenerateID())

	if err := row.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	result := row.Result()
	failures, err := json.Marshal(result.Failures)
	if err != nil {
		return fmt.Errorf("failed to marshal failures: %w", err)
	}

	query := `
		INSERT INTO sync_log (id, sequence, started_at, duration_ms, applied, auto_merged, skipped, failed, conflict_count, dry_run, failures, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		row.ID(),
		row.Sequence(),
		result.StartedAt,
		result.Duration.Milliseconds(),
		result.Applied,
		result.AutoMerged,
		result.Skipped,
		result.Failed,
		result.Conflicts,
		result.DryRun,
		string(failures),
		row.CreatedAt(),
		row.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert log row: %w", err)
	}

	return nil
}

// Get retrieves a log row by ID.
func (r *SyncLogRepository) Get(id string) (*models.SyncLogEntry, error) {
	query := selectSyncLog + " WHERE id = ? AND deleted_at IS NULL"
	return r.scan(r.db.QueryRow(query, id))
}

// Update is not supported: the log is append-only.
func (r *SyncLogRepository) Update(row *models.SyncLogEntry) error {
	return fmt.Errorf("%w: sync log rows are immutable", shared.ErrInvalidInput)
}

// Delete soft-deletes a log row by ID.
func (r *SyncLogRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE sync_log SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete log row: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: log row %s", shared.ErrEntityNotFound, id)
	}

	return nil
}

// List retrieves log rows newest first. Supported criteria: "limit".
func (r *SyncLogRepository) List(criteria map[string]any) ([]*models.SyncLogEntry, error) {
	query := selectSyncLog + " WHERE deleted_at IS NULL ORDER BY sequence DESC"
	args := []any{}

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query log rows: %w", err)
	}
	defer rows.Close()

	var entries []*models.SyncLogEntry
	for rows.Next() {
		entry, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

// Latest returns the most recent log row, or ErrEntityNotFound when the
// log is empty.
func (r *SyncLogRepository) Latest() (*models.SyncLogEntry, error) {
	entries, err := r.List(map[string]any{"limit": 1})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: sync log is empty", shared.ErrEntityNotFound)
	}
	return entries[0], nil
}

const selectSyncLog = `
	SELECT id, sequence, started_at, duration_ms, applied, auto_merged, skipped, failed, conflict_count, dry_run, failures, created_at, updated_at, deleted_at
	FROM sync_log
`

func (r *SyncLogRepository) scan(row rowScanner) (*models.SyncLogEntry, error) {
	var (
		id         string
		sequence   int
		startedAt  time.Time
		durationMS int64
		applied    int
		autoMerged int
		skipped    int
		failed     int
		conflicts  int
		dryRun     bool
		failures   string
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)

	err := row.Scan(&id, &sequence, &startedAt, &durationMS, &applied, &autoMerged, &skipped, &failed, &conflicts, &dryRun, &failures, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: log row", shared.ErrEntityNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan log row: %w", err)
	}

	result := models.SyncResult{
		StartedAt:  startedAt,
		Duration:   time.Duration(durationMS) * time.Millisecond,
		Applied:    applied,
		AutoMerged: autoMerged,
		Skipped:    skipped,
		Failed:     failed,
		Conflicts:  conflicts,
		DryRun:     dryRun,
	}
	if err := json.Unmarshal([]byte(failures), &result.Failures); err != nil {
		return nil, fmt.Errorf("%w: corrupt failures payload %s: %v", shared.ErrStoreCorrupt, id, err)
	}

	entry := models.NewSyncLogEntry(sequence, result)
	entry.SetID(id)
	entry.SetCreatedAt(createdAt)
	entry.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		entry.SetDeletedAt(&deletedAt.Time)
	}

	return entry, nil
}
