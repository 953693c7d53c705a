package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"notesdb/internal/domain"
	"notesdb/internal/filter"
	"notesdb/internal/query"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderViews(w io.Writer, views []domain.View) {
	if len(views) == 0 {
		_, _ = fmt.Fprintln(w, "(0 views)")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Data source", "Filters", "Sorts", "Group"})
	for _, v := range views {
		group := ""
		if v.Settings.Group != nil {
			group = v.Settings.Group.PropertyID
		}
		filters := len(v.Settings.Filters) + len(v.Settings.AdvancedFilters)
		t.AppendRow(table.Row{v.ID, v.Name, v.DataSourceID, filters, len(v.Settings.Sorts), group})
	}
	t.Render()
}

// renderResult prints a view result, one table section per group.
func renderResult(w io.Writer, eval *filter.Evaluator, ds *domain.DataSource, res query.Result) {
	if len(res.Records) == 0 {
		_, _ = fmt.Fprintln(w, "(0 records)")
		return
	}

	cols := res.VisibleProperties
	header := table.Row{"Title"}
	for _, id := range cols {
		name := id
		if p, ok := ds.Property(id); ok && p.Name != "" {
			name = p.Name
		}
		header = append(header, name)
	}

	row := func(r domain.Record) table.Row {
		out := table.Row{r.Title}
		for _, id := range cols {
			o, ok := eval.Operand(r, id, ds)
			if !ok {
				out = append(out, "")
				continue
			}
			out = append(out, eval.DisplayValue(o))
		}
		return out
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)

	if len(res.Groups) == 0 {
		for _, r := range res.Records {
			t.AppendRow(row(r))
		}
	} else {
		for i, g := range res.Groups {
			if i > 0 {
				t.AppendSeparator()
			}
			t.AppendRow(table.Row{fmt.Sprintf("▸ %s (%d)", g.Label, len(g.Records))})
			for _, r := range g.Records {
				t.AppendRow(row(r))
			}
		}
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d records)\n", len(res.Records))
}
