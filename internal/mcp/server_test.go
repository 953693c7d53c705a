package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesdb/internal/domain"
	"notesdb/internal/query"
	"notesdb/internal/recordstore"
	"notesdb/internal/rollup"
	"notesdb/internal/service"
	"notesdb/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	b, err := storage.OpenBackend(ctx, storage.Options{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "mcp.db")}, zerolog.Nop())
	require.NoError(t, err)

	ws := &storage.Workspace{
		DataSources: []*domain.DataSource{
			{ID: "tasks", Title: "Tasks", Properties: map[string]*domain.PropertyDef{
				"status": {ID: "status", Name: "Status", Type: domain.PropTypeSelect, Options: []domain.Option{
					{ID: "todo", Name: "To do"}, {ID: "done", Name: "Done"},
				}},
			}},
			{ID: "projects", Title: "Projects", Properties: map[string]*domain.PropertyDef{
				"tasks": {ID: "tasks", Type: domain.PropTypeRelation, Relation: &domain.RelationConfig{
					LinkedDataSourceID: "tasks", Cardinality: domain.CardinalityMultiple,
				}},
				"total": {ID: "total", Type: domain.PropTypeRollup, Rollup: &domain.RollupConfig{
					RelationPropertyID:   "tasks",
					RelationDataSourceID: "tasks",
					Calculation:          &domain.Calculation{Category: domain.CalcCount, Value: domain.CalcValueAll},
				}},
			}},
		},
		Records: []domain.Record{
			{ID: "t1", DataSourceID: "tasks", Title: "write", Properties: map[string]domain.Value{"status": domain.TextValue("done")}},
			{ID: "t2", DataSourceID: "tasks", Title: "review", Properties: map[string]domain.Value{"status": domain.TextValue("todo")}},
			{ID: "p1", DataSourceID: "projects", Title: "Launch", Properties: map[string]domain.Value{"tasks": domain.ListValue("t1", "t2")}},
		},
		Views: []domain.View{
			{ID: "v-tasks", DataSourceID: "tasks", Name: "Tasks"},
		},
	}
	require.NoError(t, storage.Seed(ctx, b, ws))

	store := recordstore.New()
	loader := service.NewLoader(store, b, b, zerolog.Nop())
	emitter := &service.MockEmitter{}
	views := service.NewViewService(store, loader, b, nil, emitter, service.ViewServiceConfig{}, zerolog.Nop())
	refresh := service.NewRefreshService(loader, emitter, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		views.Close(ctx)
		b.Close()
	})
	return New(Deps{Views: views, Refresh: refresh, Log: zerolog.Nop()})
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestQueryViewTool(t *testing.T) {
	s := newTestServer(t)
	res, err := s.handleQueryView(context.Background(), call(map[string]any{"viewId": "v-tasks"}))
	require.NoError(t, err)

	var out query.Result
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, "tasks", out.DataSourceID)
	assert.Len(t, out.Records, 2)
}

func TestQueryViewTool_RequiresViewID(t *testing.T) {
	s := newTestServer(t)
	_, err := s.handleQueryView(context.Background(), call(map[string]any{}))
	assert.EqualError(t, err, "viewId is required")
}

func TestComputeRollupTool(t *testing.T) {
	s := newTestServer(t)
	res, err := s.handleComputeRollup(context.Background(), call(map[string]any{
		"dataSourceId": "projects", "recordId": "p1", "propertyId": "total",
	}))
	require.NoError(t, err)

	var out rollup.Result
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, rollup.StateReady, out.State)
	assert.Equal(t, 2, out.Count)
}

func TestUpdateViewSettingsTool_Wait(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleUpdateViewSettings(ctx, call(map[string]any{
		"viewId": "v-tasks",
		"patch":  `{"filters":{"status":["done"]}}`,
		"wait":   true,
	}))
	require.NoError(t, err)

	var out mutationResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, "committed", string(out.State))
	assert.Empty(t, out.Error)

	res, err = s.handleEvaluateFilters(ctx, call(map[string]any{"viewId": "v-tasks"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"count": 1`)
}

func TestUpdateViewSettingsTool_RejectsBadPatch(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleUpdateViewSettings(ctx, call(map[string]any{"viewId": "v-tasks", "patch": "{"}))
	assert.ErrorContains(t, err, "invalid patch JSON")

	_, err = s.handleUpdateViewSettings(ctx, call(map[string]any{"viewId": "v-tasks", "patch": "{}"}))
	assert.EqualError(t, err, "patch changes nothing")
}

func TestFilterOptionsTool(t *testing.T) {
	s := newTestServer(t)
	res, err := s.handleFilterOptions(context.Background(), call(map[string]any{
		"dataSourceId": "tasks", "propertyId": "status",
	}))
	require.NoError(t, err)

	var out []query.OptionValue
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "todo", out[0].Key)
	assert.Equal(t, "done", out[1].Key)
}

func TestRefreshTool(t *testing.T) {
	s := newTestServer(t)
	res, err := s.handleRefreshDataSource(context.Background(), call(map[string]any{"dataSourceId": "tasks"}))
	require.NoError(t, err)
	assert.Equal(t, "Data source tasks refreshed", resultText(t, res))

	_, err = s.handleRefreshDataSource(context.Background(), call(map[string]any{"dataSourceId": "nope"}))
	assert.Error(t, err)
}

func TestImportTool_NotEnabled(t *testing.T) {
	s := newTestServer(t)
	_, err := s.handleImportRecords(context.Background(), call(map[string]any{"dataSourceId": "tasks"}))
	assert.EqualError(t, err, "path is required")

	_, err = s.handleImportRecords(context.Background(), call(map[string]any{"dataSourceId": "tasks", "path": "x.csv"}))
	assert.EqualError(t, err, "imports are not enabled")
}

func TestResources(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	var req mcp.ReadResourceRequest
	req.Params.URI = viewsURI
	contents, err := s.handleViewsResource(ctx, req)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Contains(t, contents[0].(mcp.TextResourceContents).Text, `"v-tasks"`)

	req.Params.URI = dataSourcePrefix + "projects"
	contents, err = s.handleDataSourceResource(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, contents[0].(mcp.TextResourceContents).Text, `"total"`)

	_, err = idFromURI("notesdb://other/x", dataSourcePrefix)
	assert.Error(t, err)
}
