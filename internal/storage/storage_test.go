package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesdb/internal/domain"
	"notesdb/internal/storage"
)

func openTemp(t *testing.T) storage.Backend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "notes.db")
	b, err := storage.OpenBackend(context.Background(), storage.Options{Driver: "sqlite", DSN: path}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func workspace() *storage.Workspace {
	return &storage.Workspace{
		DataSources: []*domain.DataSource{{
			ID:    "tasks",
			Title: "Tasks",
			Properties: map[string]*domain.PropertyDef{
				"status":   {ID: "status", Type: domain.PropTypeStatus, Options: []domain.Option{{ID: "done", Name: "Done"}}},
				"estimate": {ID: "estimate", Type: domain.PropTypeNumber},
				"project":  {ID: "project", Type: domain.PropTypeRelation, Relation: &domain.RelationConfig{LinkedDataSourceID: "projects"}},
			},
			PropertyOrder: []string{"status", "estimate", "project"},
		}},
		Records: []domain.Record{
			{ID: "t2", DataSourceID: "tasks", Title: "second", Properties: map[string]domain.Value{
				"status": domain.TextValue("done"), "project": domain.TextValue("p1"),
			}},
			{ID: "t1", DataSourceID: "tasks", Title: "first", Properties: map[string]domain.Value{
				"estimate": domain.NumberValue(3),
			}},
		},
		Views: []domain.View{{ID: "v1", DataSourceID: "tasks", Name: "All", Settings: domain.ViewSettings{
			Filters: map[string][]string{"status": {"done"}},
		}}},
		Members: []domain.Member{{ID: "u1", Name: "Ada", Email: "ada@example.com"}},
	}
}

func TestSQLBackend_FetchDataSourceKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	b := openTemp(t)
	require.NoError(t, storage.Seed(ctx, b, workspace()))

	ds, records, err := b.FetchDataSource(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, "Tasks", ds.Title)
	assert.Equal(t, []string{"status", "estimate", "project"}, ds.PropertyOrder)
	require.Len(t, records, 2)
	assert.Equal(t, "t2", records[0].ID)
	assert.Equal(t, "t1", records[1].ID)

	// Single relation values come back normalized to lists.
	assert.Equal(t, []string{"p1"}, records[0].RelationIDs("project"))
	n, ok := records[1].Value("estimate").AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 3.0, n)
}

func TestSQLBackend_UpdateKeepsPosition(t *testing.T) {
	ctx := context.Background()
	b := openTemp(t)
	require.NoError(t, storage.Seed(ctx, b, workspace()))

	require.NoError(t, b.SaveRecord(ctx, domain.Record{ID: "t2", DataSourceID: "tasks", Title: "renamed"}))
	_, records, err := b.FetchDataSource(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, "renamed", records[0].Title)

	require.NoError(t, b.DeleteRecord(ctx, "t2"))
	_, records, err = b.FetchDataSource(ctx, "tasks")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSQLBackend_NotFound(t *testing.T) {
	ctx := context.Background()
	b := openTemp(t)

	_, _, err := b.FetchDataSource(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = b.FetchView(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = b.PersistViewSettings(ctx, "missing", domain.SettingsPatch{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLBackend_PersistViewSettingsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := openTemp(t)
	require.NoError(t, storage.Seed(ctx, b, workspace()))

	patch := domain.SettingsPatch{
		Filters: map[string][]string{"status": {"done", "done", ""}, "estimate": {}},
		AdvancedFilters: []domain.FilterGroup{{Rules: []domain.FilterRule{
			{PropertyID: strPtr("estimate"), Operator: domain.FilterGreaterThan, Value: domain.Single("2")},
		}}},
	}
	first, err := b.PersistViewSettings(ctx, "v1", patch)
	require.NoError(t, err)
	second, err := b.PersistViewSettings(ctx, "v1", patch)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, map[string][]string{"status": {"done"}}, first.Filters)
	require.Len(t, first.AdvancedFilters, 1)
	g := first.AdvancedFilters[0]
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, domain.OpAnd, g.BooleanOperator)
	assert.NotEmpty(t, g.Rules[0].ID)

	v, err := b.FetchView(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, *first, v.Settings)
}

func TestSQLBackend_ListViewsAndMembers(t *testing.T) {
	ctx := context.Background()
	b := openTemp(t)
	require.NoError(t, storage.Seed(ctx, b, workspace()))

	views, err := b.ListViews(ctx, "tasks")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "All", views[0].Name)

	none, err := b.ListViews(ctx, "projects")
	require.NoError(t, err)
	assert.Empty(t, none)

	members, err := b.ListMembers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Member{{ID: "u1", Name: "Ada", Email: "ada@example.com"}}, members)
}

func TestOpenBackend_UnknownDriver(t *testing.T) {
	_, err := storage.OpenBackend(context.Background(), storage.Options{Driver: "oracle"}, zerolog.Nop())
	assert.Error(t, err)
}

func strPtr(s string) *string { return &s }
