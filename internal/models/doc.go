// Package models defines domain entities and persistence interfaces for the
// harmonia library sync engine.
//
// The package contains two categories of types:
//
// 1. Canonical domain values, produced by platform ingestion and consumed
// by the matcher, diff engine, and orchestrator:
//   - [Track] : A recording, addressable by ISRC or synthetic fingerprint
//   - [Entity] : A playlist, liked-track set, or saved-album set
//   - [Snapshot] : Point-in-time capture of all entities on one platform
//   - [Change] : One detected delta on one entity relative to base
//   - [Conflict] : Two disagreeing changes awaiting resolution
//   - [SyncResult] : Outcome summary of one orchestrator run
//
// 2. Persistent entities: database-backed rows with lifecycle management
//   - [CachedMatch] : Resolved cross-platform track identities
//   - [PersistedEntity] : The base snapshot rows
//   - [ConflictRecord] : Unresolved conflicts parked between cycles
//   - [SyncLogEntry] : Append-only sync run log
//
// All persistent entities implement the Model interface providing ID
// generation, timestamps, validation, and soft delete support. The
// Repository[T] interface defines standard CRUD operations.
package models
