package etl

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"notesdb/internal/domain"
)

// ── ImportJob ──────────────────────────────────────────────
// Orchestrates: source.Read → column mapping → destination writes.

// ImportJob describes one file import into a data source.
type ImportJob struct {
	DataSourceID string       `json:"dataSourceId"`
	Path         string       `json:"path"`
	SourceType   string       `json:"sourceType,omitempty"` // picked by extension when empty
	SourceCfg    SourceConfig `json:"sourceConfig,omitempty"`
	KeyColumn    string       `json:"keyColumn,omitempty"`   // default "id"
	TitleColumn  string       `json:"titleColumn,omitempty"` // default "title", then "name"
	Mode         SyncMode     `json:"mode,omitempty"`        // default append
}

// ImportResult is the outcome of running an import.
type ImportResult struct {
	DataSourceID string        `json:"dataSourceId"`
	RowsRead     int           `json:"rowsRead"`
	RowsWritten  int           `json:"rowsWritten"`
	RowsDeleted  int           `json:"rowsDeleted"`
	Unmapped     []string      `json:"unmapped,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// ── Importer ───────────────────────────────────────────────

// Importer runs import jobs against a destination.
type Importer struct {
	Dest Destination
	Log  zerolog.Logger
}

// NewImporter creates an Importer.
func NewImporter(dest Destination, log zerolog.Logger) *Importer {
	return &Importer{Dest: dest, Log: log.With().Str("component", "import").Logger()}
}

// ImportFile replaces the records of a data source with the rows of path.
func (im *Importer) ImportFile(ctx context.Context, dataSourceID, path string) (*ImportResult, error) {
	return im.Run(ctx, ImportJob{DataSourceID: dataSourceID, Path: path, Mode: SyncReplace})
}

// Run executes an import end-to-end.
func (im *Importer) Run(ctx context.Context, job ImportJob) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{DataSourceID: job.DataSourceID}

	// 1. Resolve source.
	var (
		source Source
		err    error
	)
	if job.SourceType != "" {
		source, err = GetSource(job.SourceType)
	} else {
		source, err = SourceForPath(job.Path)
	}
	if err != nil {
		return nil, &domain.UserDataError{Ref: job.Path, Reason: err.Error()}
	}

	// 2. Target schema and current records.
	ds, existing, err := im.Dest.FetchDataSource(ctx, job.DataSourceID)
	if err != nil {
		return nil, err
	}

	// 3. Read rows.
	cfg := SourceConfig{}
	for k, v := range job.SourceCfg {
		cfg[k] = v
	}
	cfg["filePath"] = job.Path
	rowCh, errCh := source.Read(ctx, cfg)
	var rows []Row
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.UserDataError{Ref: job.Path, Reason: err.Error()}
	}
	result.RowsRead = len(rows)

	// 4. Map and write.
	columns := Columns(rows)
	sort.Strings(columns)
	m := newColumnMap(ds, columns, job)
	result.Unmapped = m.unmapped
	kept := make(map[string]bool, len(rows))
	for i, row := range rows {
		rec := m.record(row, i)
		if err := im.Dest.SaveRecord(ctx, rec); err != nil {
			return nil, fmt.Errorf("save record %s: %w", rec.ID, err)
		}
		kept[rec.ID] = true
	}
	result.RowsWritten = len(kept)

	// 5. Replace mode drops records the file no longer has.
	if job.Mode == SyncReplace {
		for _, r := range existing {
			if kept[r.ID] {
				continue
			}
			if err := im.Dest.DeleteRecord(ctx, r.ID); err != nil {
				return nil, fmt.Errorf("delete record %s: %w", r.ID, err)
			}
			result.RowsDeleted++
		}
	}

	result.Duration = time.Since(start)
	im.Log.Info().
		Str("dataSource", job.DataSourceID).
		Str("file", job.Path).
		Int("read", result.RowsRead).
		Int("written", result.RowsWritten).
		Int("deleted", result.RowsDeleted).
		Strs("unmapped", result.Unmapped).
		Msg("import finished")
	return result, nil
}

// ── Column mapping ─────────────────────────────────────────

type columnMap struct {
	ds       *domain.DataSource
	key      string
	title    string
	props    map[string]*domain.PropertyDef // column → property
	unmapped []string
}

// newColumnMap binds file columns to properties by id, then by
// case-insensitive name.
func newColumnMap(ds *domain.DataSource, columns []string, job ImportJob) *columnMap {
	m := &columnMap{ds: ds, props: make(map[string]*domain.PropertyDef)}
	fold := cases.Fold()

	byName := make(map[string]*domain.PropertyDef, len(ds.Properties))
	for _, id := range ds.OrderedPropertyIDs() {
		p := ds.Properties[id]
		name := fold.String(p.Name)
		if _, dup := byName[name]; !dup {
			byName[name] = p
		}
	}

	m.key = job.KeyColumn
	if m.key == "" {
		m.key = "id"
	}
	m.title = job.TitleColumn
	for _, want := range []string{"title", "name"} {
		for _, c := range columns {
			if m.title == "" && fold.String(c) == want {
				m.title = c
			}
		}
	}

	for _, c := range columns {
		if c == m.key || c == m.title {
			continue
		}
		if p, ok := ds.Property(c); ok {
			m.props[c] = p
			continue
		}
		if p, ok := byName[fold.String(c)]; ok {
			m.props[c] = p
			continue
		}
		m.unmapped = append(m.unmapped, c)
	}
	return m
}

func (m *columnMap) record(row Row, index int) domain.Record {
	rec := domain.Record{
		DataSourceID: m.ds.ID,
		Properties:   make(map[string]domain.Value, len(m.props)),
	}
	if t, ok := row.Data[m.title]; ok && t != nil {
		rec.Title = strings.TrimSpace(fmt.Sprint(t))
	}
	if k, ok := row.Data[m.key]; ok && k != nil && fmt.Sprint(k) != "" {
		rec.ID = fmt.Sprint(k)
	} else {
		seed := rec.Title
		if seed == "" {
			seed = fmt.Sprintf("#%d", index)
		}
		rec.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("notesdb:import:"+m.ds.ID+"/"+seed)).String()
	}

	for col, p := range m.props {
		v := cellValue(row.Data[col], p)
		if !v.IsEmpty() {
			rec.Properties[p.ID] = v
		}
	}
	return rec
}

// cellValue converts a raw cell to the property's shape. Option names are
// replaced by option ids; comma-separated text fills multi-valued cells.
func cellValue(raw any, p *domain.PropertyDef) domain.Value {
	v := domain.ValueFromRaw(raw)
	if p.Type.Class() == domain.ClassMulti && v.Kind == domain.KindText {
		parts := strings.Split(v.Text, ",")
		elems := make([]string, 0, len(parts))
		for _, s := range parts {
			if s = strings.TrimSpace(s); s != "" {
				elems = append(elems, s)
			}
		}
		v = domain.ListValue(elems...)
	}
	v = v.Normalize(p.Type)
	if !p.Type.HasOptions() {
		return v
	}
	switch v.Kind {
	case domain.KindText:
		if o, ok := p.Option(v.Text); ok {
			return domain.TextValue(o.ID)
		}
	case domain.KindList:
		ids := make([]string, len(v.List))
		for i, el := range v.List {
			ids[i] = el
			if o, ok := p.Option(el); ok {
				ids[i] = o.ID
			}
		}
		return domain.ListValue(ids...)
	}
	return v
}
