package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"notesdb/internal/domain"
)

// DataSourceStore persists data source schemas and their records.
type DataSourceStore struct {
	db *DB
}

// NewDataSourceStore creates a new DataSourceStore.
func NewDataSourceStore(db *DB) *DataSourceStore {
	return &DataSourceStore{db: db}
}

// ── Data sources ───────────────────────────────────────────

func (s *DataSourceStore) SaveDataSource(ctx context.Context, ds *domain.DataSource) error {
	schema, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encode data source %s: %w", ds.ID, err)
	}
	_, err = s.db.conn.ExecContext(ctx,
		s.db.upsert("data_sources", "id", "title", "schema_json"),
		ds.ID, ds.Title, string(schema),
	)
	return err
}

func (s *DataSourceStore) GetDataSource(ctx context.Context, id string) (*domain.DataSource, error) {
	var schema string
	err := s.db.conn.QueryRowContext(ctx,
		s.db.rebind(`SELECT schema_json FROM data_sources WHERE id = ?`), id,
	).Scan(&schema)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("data source %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	ds := &domain.DataSource{}
	if err := json.Unmarshal([]byte(schema), ds); err != nil {
		return nil, fmt.Errorf("decode data source %s: %w", id, err)
	}
	ds.ID = id
	return ds, nil
}

func (s *DataSourceStore) DeleteDataSource(ctx context.Context, id string) error {
	// Delete records first, then the data source
	if _, err := s.db.conn.ExecContext(ctx, s.db.rebind(`DELETE FROM records WHERE data_source_id = ?`), id); err != nil {
		return err
	}
	_, err := s.db.conn.ExecContext(ctx, s.db.rebind(`DELETE FROM data_sources WHERE id = ?`), id)
	return err
}

// ── Records ────────────────────────────────────────────────

// SaveRecord inserts or updates a record. New records are appended after
// the existing ones of their data source.
func (s *DataSourceStore) SaveRecord(ctx context.Context, r domain.Record) error {
	props, err := json.Marshal(r.Properties)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", r.ID, err)
	}

	var position sql.NullInt64
	err = s.db.conn.QueryRowContext(ctx,
		s.db.rebind(`SELECT position FROM records WHERE id = ?`), r.ID,
	).Scan(&position)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if !position.Valid {
		var maxPos sql.NullInt64
		if err := s.db.conn.QueryRowContext(ctx,
			s.db.rebind(`SELECT MAX(position) FROM records WHERE data_source_id = ?`), r.DataSourceID,
		).Scan(&maxPos); err != nil {
			return err
		}
		position.Int64 = maxPos.Int64 + 1
	}

	_, err = s.db.conn.ExecContext(ctx,
		s.db.upsert("records", "id", "data_source_id", "title", "properties_json", "position"),
		r.ID, r.DataSourceID, r.Title, string(props), position.Int64,
	)
	return err
}

func (s *DataSourceStore) DeleteRecord(ctx context.Context, id string) error {
	_, err := s.db.conn.ExecContext(ctx, s.db.rebind(`DELETE FROM records WHERE id = ?`), id)
	return err
}

// ListRecords returns the records of a data source in insertion order.
func (s *DataSourceStore) ListRecords(ctx context.Context, dataSourceID string) ([]domain.Record, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		s.db.rebind(`SELECT id, title, properties_json FROM records
		 WHERE data_source_id = ? ORDER BY position ASC, id ASC`), dataSourceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Record{}
	for rows.Next() {
		var (
			r     = domain.Record{DataSourceID: dataSourceID}
			props string
		)
		if err := rows.Scan(&r.ID, &r.Title, &props); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(props), &r.Properties); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", r.ID, err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// FetchDataSource loads a schema and its records with values normalized
// to their property types.
func (s *DataSourceStore) FetchDataSource(ctx context.Context, id string) (*domain.DataSource, []domain.Record, error) {
	ds, err := s.GetDataSource(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	records, err := s.ListRecords(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list records of %s: %w", id, err)
	}
	for i := range records {
		records[i] = domain.NormalizeRecord(records[i], ds)
	}
	return ds, records, nil
}

var _ domain.DataSourceFetcher = (*DataSourceStore)(nil)
