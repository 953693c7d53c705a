package etl

import (
	"context"

	"notesdb/internal/domain"
)

// ── Destination ────────────────────────────────────────────
// The importer writes into any backend that can fetch a data source and
// upsert or delete its records.

// SyncMode determines how imported rows meet existing records.
type SyncMode string

const (
	SyncReplace SyncMode = "replace" // records missing from the file are deleted
	SyncAppend  SyncMode = "append"  // existing records are kept, matching ids updated
)

// Destination is the write side of an import.
type Destination interface {
	domain.DataSourceFetcher
	SaveRecord(ctx context.Context, r domain.Record) error
	DeleteRecord(ctx context.Context, id string) error
}
