package storage

import (
	"context"

	"notesdb/internal/domain"
)

// MemberStore persists the workspace member directory.
type MemberStore struct {
	db *DB
}

// NewMemberStore creates a new MemberStore.
func NewMemberStore(db *DB) *MemberStore {
	return &MemberStore{db: db}
}

func (s *MemberStore) SaveMember(ctx context.Context, m domain.Member) error {
	_, err := s.db.conn.ExecContext(ctx,
		s.db.upsert("members", "id", "name", "email"),
		m.ID, m.Name, m.Email,
	)
	return err
}

func (s *MemberStore) ListMembers(ctx context.Context) ([]domain.Member, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT id, name, email FROM members ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Member
	for rows.Next() {
		m := domain.Member{}
		if err := rows.Scan(&m.ID, &m.Name, &m.Email); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
