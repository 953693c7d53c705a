package etl_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesdb/internal/domain"
	"notesdb/internal/etl"
	_ "notesdb/internal/etl/sources"
)

// memDest is an in-memory Destination.
type memDest struct {
	mu      sync.Mutex
	ds      *domain.DataSource
	records map[string]domain.Record
	order   []string
}

func newMemDest() *memDest {
	return &memDest{
		ds: &domain.DataSource{ID: "tasks", Title: "Tasks", Properties: map[string]*domain.PropertyDef{
			"status": {ID: "status", Name: "Status", Type: domain.PropTypeSelect, Options: []domain.Option{
				{ID: "opt-todo", Name: "To do"}, {ID: "opt-done", Name: "Done"},
			}},
			"est":  {ID: "est", Name: "Estimate", Type: domain.PropTypeNumber},
			"tags": {ID: "tags", Name: "Tags", Type: domain.PropTypeMultiSelect, Options: []domain.Option{
				{ID: "opt-ui", Name: "ui"}, {ID: "opt-api", Name: "api"},
			}},
		}},
		records: make(map[string]domain.Record),
	}
}

func (d *memDest) FetchDataSource(_ context.Context, id string) (*domain.DataSource, []domain.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id != d.ds.ID {
		return nil, nil, &domain.UserDataError{Ref: id, Reason: "not found"}
	}
	out := make([]domain.Record, 0, len(d.order))
	for _, rid := range d.order {
		if r, ok := d.records[rid]; ok {
			out = append(out, r)
		}
	}
	return d.ds, out, nil
}

func (d *memDest) SaveRecord(_ context.Context, r domain.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.records[r.ID]; !ok {
		d.order = append(d.order, r.ID)
	}
	d.records[r.ID] = r
	return nil
}

func (d *memDest) DeleteRecord(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.records, id)
	return nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImport_CSVMapsColumnsAndOptions(t *testing.T) {
	dest := newMemDest()
	im := etl.NewImporter(dest, zerolog.Nop())
	path := writeFile(t, "tasks.csv", "id,Title,Status,estimate,tags,owner\n"+
		"t1,Write docs,Done,3,\"ui, api\",ana\n"+
		"t2,Review,To do,,api,bo\n")

	res, err := im.Run(context.Background(), etl.ImportJob{DataSourceID: "tasks", Path: path})
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowsRead)
	assert.Equal(t, 2, res.RowsWritten)
	assert.Equal(t, []string{"owner"}, res.Unmapped)

	t1 := dest.records["t1"]
	assert.Equal(t, "Write docs", t1.Title)
	assert.Equal(t, domain.TextValue("opt-done"), t1.Properties["status"])
	assert.Equal(t, domain.NumberValue(3), t1.Properties["est"])
	assert.Equal(t, domain.ListValue("opt-ui", "opt-api"), t1.Properties["tags"])

	t2 := dest.records["t2"]
	assert.Equal(t, domain.TextValue("opt-todo"), t2.Properties["status"])
	_, hasEst := t2.Properties["est"]
	assert.False(t, hasEst)
}

func TestImport_JSONWithoutKeysIsIdempotent(t *testing.T) {
	dest := newMemDest()
	im := etl.NewImporter(dest, zerolog.Nop())
	path := writeFile(t, "tasks.json", `{"data": {"items": [
		{"name": "Ship", "status": "opt-done", "tags": ["ui"]},
		{"name": "Plan", "estimate": 2}
	]}}`)
	job := etl.ImportJob{DataSourceID: "tasks", Path: path, SourceCfg: etl.SourceConfig{"dataPath": "data.items"}}

	_, err := im.Run(context.Background(), job)
	require.NoError(t, err)
	_, err = im.Run(context.Background(), job)
	require.NoError(t, err)

	require.Len(t, dest.records, 2, "stable ids make re-imports update in place")
	for _, r := range dest.records {
		if r.Title == "Ship" {
			assert.Equal(t, domain.ListValue("opt-ui"), r.Properties["tags"])
		}
	}
}

func TestImport_ReplaceDeletesMissing(t *testing.T) {
	dest := newMemDest()
	require.NoError(t, dest.SaveRecord(context.Background(), domain.Record{ID: "old", DataSourceID: "tasks"}))
	im := etl.NewImporter(dest, zerolog.Nop())
	path := writeFile(t, "tasks.csv", "id,title\nt1,One\n")

	res, err := im.ImportFile(context.Background(), "tasks", path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsDeleted)
	_, ok := dest.records["old"]
	assert.False(t, ok)
}

func TestImport_Errors(t *testing.T) {
	im := etl.NewImporter(newMemDest(), zerolog.Nop())
	ctx := context.Background()

	_, err := im.Run(ctx, etl.ImportJob{DataSourceID: "tasks", Path: "tasks.xml"})
	assert.Equal(t, domain.ErrorUserData, domain.Classify(err))

	_, err = im.Run(ctx, etl.ImportJob{DataSourceID: "tasks", Path: filepath.Join(t.TempDir(), "missing.csv")})
	assert.Equal(t, domain.ErrorUserData, domain.Classify(err))

	bad := writeFile(t, "bad.json", `{"not": "rows"}`)
	_, err = im.Run(ctx, etl.ImportJob{DataSourceID: "tasks", Path: bad, SourceCfg: etl.SourceConfig{"dataPath": "not"}})
	assert.Error(t, err)
}

func TestListSources(t *testing.T) {
	specs := etl.ListSources()
	require.Len(t, specs, 2)
	assert.Equal(t, "csv_file", specs[0].Type)
	assert.Equal(t, "json_file", specs[1].Type)
}
