package domain

import "context"

// DataSourceFetcher is the remote read used when a Record Store lookup misses.
type DataSourceFetcher interface {
	FetchDataSource(ctx context.Context, id string) (*DataSource, []Record, error)
}

// SettingsPersister is the remote write behind optimistic settings
// mutations. It returns the server's canonical settings and must be
// idempotent when the same patch is retried.
type SettingsPersister interface {
	PersistViewSettings(ctx context.Context, viewID string, patch SettingsPatch) (*ViewSettings, error)
}

// ViewFetcher loads a view definition.
type ViewFetcher interface {
	FetchView(ctx context.Context, id string) (*View, error)
}

// MemberDirectory is the read-only workspace member list.
type MemberDirectory interface {
	Member(id string) (Member, bool)
}

// Members is an in-memory MemberDirectory.
type Members map[string]Member

func (m Members) Member(id string) (Member, bool) {
	mem, ok := m[id]
	return mem, ok
}

// NewMembers indexes a member list by id.
func NewMembers(list []Member) Members {
	m := make(Members, len(list))
	for _, mem := range list {
		m[mem.ID] = mem
	}
	return m
}
