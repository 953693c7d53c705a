package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"notesdb/internal/domain"
)

// ViewStore persists view definitions and their settings.
type ViewStore struct {
	db *DB
}

// NewViewStore creates a new ViewStore.
func NewViewStore(db *DB) *ViewStore {
	return &ViewStore{db: db}
}

func (s *ViewStore) SaveView(ctx context.Context, v domain.View) error {
	settings, err := json.Marshal(v.Settings)
	if err != nil {
		return fmt.Errorf("encode view %s: %w", v.ID, err)
	}
	_, err = s.db.conn.ExecContext(ctx,
		s.db.upsert("views", "id", "data_source_id", "name", "settings_json", "updated_at"),
		v.ID, v.DataSourceID, v.Name, string(settings), time.Now().UTC(),
	)
	return err
}

// FetchView loads one view.
func (s *ViewStore) FetchView(ctx context.Context, id string) (*domain.View, error) {
	return s.getView(ctx, s.db.conn, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *ViewStore) getView(ctx context.Context, q queryRower, id string) (*domain.View, error) {
	v := &domain.View{}
	var settings string
	err := q.QueryRowContext(ctx,
		s.db.rebind(`SELECT id, data_source_id, name, settings_json FROM views WHERE id = ?`), id,
	).Scan(&v.ID, &v.DataSourceID, &v.Name, &settings)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("view %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(settings), &v.Settings); err != nil {
		return nil, fmt.Errorf("decode view %s settings: %w", id, err)
	}
	return v, nil
}

// ListViews returns every view, optionally restricted to one data source.
func (s *ViewStore) ListViews(ctx context.Context, dataSourceID string) ([]domain.View, error) {
	query := `SELECT id, data_source_id, name, settings_json FROM views`
	var args []any
	if dataSourceID != "" {
		query += ` WHERE data_source_id = ?`
		args = append(args, dataSourceID)
	}
	rows, err := s.db.conn.QueryContext(ctx, s.db.rebind(query+` ORDER BY name ASC, id ASC`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.View{}
	for rows.Next() {
		var (
			v        domain.View
			settings string
		)
		if err := rows.Scan(&v.ID, &v.DataSourceID, &v.Name, &settings); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(settings), &v.Settings); err != nil {
			return nil, fmt.Errorf("decode view %s settings: %w", v.ID, err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// PersistViewSettings merges patch into the stored settings inside one
// transaction and returns the canonical result.
func (s *ViewStore) PersistViewSettings(ctx context.Context, viewID string, patch domain.SettingsPatch) (*domain.ViewSettings, error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	v, err := s.getView(ctx, tx, viewID)
	if err != nil {
		return nil, err
	}
	canonical := Canonicalize(viewID, v.Settings, patch)
	encoded, err := json.Marshal(canonical)
	if err != nil {
		return nil, fmt.Errorf("encode view %s settings: %w", viewID, err)
	}
	if _, err := tx.ExecContext(ctx,
		s.db.rebind(`UPDATE views SET settings_json = ?, updated_at = ? WHERE id = ?`),
		string(encoded), time.Now().UTC(), viewID,
	); err != nil {
		return nil, fmt.Errorf("update view %s settings: %w", viewID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &canonical, nil
}

var (
	_ domain.ViewFetcher       = (*ViewStore)(nil)
	_ domain.SettingsPersister = (*ViewStore)(nil)
)
