package models

import "time"

// ChangeKind classifies a detected delta.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// MetaDelta records entity metadata edits. A nil field means "unchanged".
type MetaDelta struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Empty reports whether the delta carries no edits.
func (m *MetaDelta) Empty() bool {
	return m == nil || (m.Name == nil && m.Description == nil)
}

// Change represents one detected delta on one entity relative to the
// base snapshot. Immutable once computed.
//
// Source is the remote platform whose snapshot produced the change.
// Target is set by the merge classifier on apply-bound changes and names
// the platform the change propagates to. Members always carries the full
// desired member list so applying is a full overwrite, never an
// incremental edit.
type Change struct {
	EntityID   string     `json:"entity_id"`
	EntityKind EntityKind `json:"entity_kind"`
	EntityName string     `json:"entity_name"`
	Kind       ChangeKind `json:"kind"`
	Source     Platform   `json:"source,omitempty"`
	Target     Platform   `json:"target,omitempty"`
	Added      []Track    `json:"added,omitempty"`
	Removed    []Track    `json:"removed,omitempty"`
	Reordered  bool       `json:"reordered,omitempty"`
	Members    []Track    `json:"members"`
	Meta       *MetaDelta `json:"meta,omitempty"`
}

// Empty reports whether the change carries no member edits, no reorder,
// and no metadata edits. Created and deleted changes are never empty.
func (c *Change) Empty() bool {
	if c == nil {
		return true
	}
	if c.Kind == ChangeCreated || c.Kind == ChangeDeleted {
		return false
	}
	return len(c.Added) == 0 && len(c.Removed) == 0 && !c.Reordered && c.Meta.Empty()
}

// Resolution is the externally supplied decision for a conflict.
type Resolution string

const (
	ResolutionNone    Resolution = ""
	ResolutionChooseA Resolution = "choose-a"
	ResolutionChooseB Resolution = "choose-b"
	ResolutionMerged  Resolution = "merged"
	ResolutionSkip    Resolution = "skip"
)

// Valid reports whether r is one of the known decisions.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionChooseA, ResolutionChooseB, ResolutionMerged, ResolutionSkip:
		return true
	}
	return false
}

// Conflict pairs two changes to the same entity, one from each remote,
// that materially disagree about the same member or metadata field. An
// unresolved conflict blocks that entity's apply step only, never the
// whole cycle.
type Conflict struct {
	EntityID   string     `json:"entity_id"`
	EntityName string     `json:"entity_name"`
	Field      string     `json:"field"` // "members", "name", "description", "existence"
	A          *Change    `json:"a"`
	B          *Change    `json:"b"`
	Resolution Resolution `json:"resolution,omitempty"`
}

// Failure records one entity that could not be applied during a cycle.
type Failure struct {
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Reason     string `json:"reason"`
}

// SyncResult is the outcome of one orchestrator run. Append-only log
// entry; never mutated after creation.
type SyncResult struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Applied    int           `json:"applied"`
	AutoMerged int           `json:"auto_merged"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Conflicts  int           `json:"conflicts"`
	DryRun     bool          `json:"dry_run"`
	Failures   []Failure     `json:"failures,omitempty"`
}
