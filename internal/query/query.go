package query

import (
	"sort"
	"strings"

	"notesdb/internal/domain"
	"notesdb/internal/filter"
)

// ─────────────────────────────────────────────────────────────
// View query: filters, sorts, grouping and visible properties
// ─────────────────────────────────────────────────────────────

// Group is one bucket of a grouped view.
type Group struct {
	Key     string          `json:"key"`
	Label   string          `json:"label"`
	Records []domain.Record `json:"records"`
}

// Result is the derived slice of a data source a view renders.
type Result struct {
	ViewID            string          `json:"viewId"`
	DataSourceID      string          `json:"dataSourceId"`
	Records           []domain.Record `json:"records"`
	Groups            []Group         `json:"groups,omitempty"`
	VisibleProperties []string        `json:"visibleProperties"`
}

// OptionValue is one distinct value offered by a filter dropdown.
type OptionValue struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// NoValueKey is the group key of records without a value.
const NoValueKey = ""

// Engine evaluates views against a set of records.
type Engine struct {
	filters *filter.Evaluator
}

// NewEngine creates an Engine.
func NewEngine(filters *filter.Evaluator) *Engine {
	return &Engine{filters: filters}
}

// Matches combines simple and advanced filters with AND.
func (q *Engine) Matches(record domain.Record, settings domain.ViewSettings, ds *domain.DataSource) bool {
	return q.filters.MatchesSimple(record, settings.Filters, ds) &&
		q.filters.MatchesAdvancedGroups(record, settings.AdvancedFilters, ds)
}

// Run filters, sorts and groups records for view.
func (q *Engine) Run(view domain.View, ds *domain.DataSource, records []domain.Record) Result {
	res := Result{
		ViewID:            view.ID,
		DataSourceID:      ds.ID,
		Records:           []domain.Record{},
		VisibleProperties: VisibleProperties(ds, view.Settings.PropertyVisibility),
	}
	for _, r := range records {
		if q.Matches(r, view.Settings, ds) {
			res.Records = append(res.Records, r)
		}
	}
	q.Sort(res.Records, view.Settings.Sorts, ds)
	if view.Settings.Group != nil && view.Settings.Group.PropertyID != "" {
		res.Groups = q.GroupBy(res.Records, *view.Settings.Group, ds)
	}
	return res
}

// VisibleProperties returns the visible property ids in display order.
// An empty visibility list shows every property.
func VisibleProperties(ds *domain.DataSource, visibility []string) []string {
	ordered := ds.OrderedPropertyIDs()
	if len(visibility) == 0 {
		return ordered
	}
	show := make(map[string]bool, len(visibility))
	for _, id := range visibility {
		show[id] = true
	}
	out := make([]string, 0, len(visibility))
	for _, id := range ordered {
		if show[id] {
			out = append(out, id)
		}
	}
	return out
}

// ── Sorting ────────────────────────────────────────────────

type sortKey struct {
	empty bool
	num   float64
	text  string
	isNum bool
}

func (q *Engine) key(r domain.Record, propertyID string, ds *domain.DataSource) sortKey {
	o, ok := q.filters.Operand(r, propertyID, ds)
	if !ok || o.Value.IsEmpty() {
		return sortKey{empty: true}
	}
	switch o.Class {
	case domain.ClassNumber:
		n, _ := o.Value.AsNumber()
		return sortKey{num: n, isNum: true}
	case domain.ClassCheckbox:
		n, _ := o.Value.AsNumber()
		return sortKey{num: n, isNum: true}
	case domain.ClassDate:
		if t, ok := filter.ParseDate(o.Value.String()); ok {
			return sortKey{num: float64(t.UnixNano()), isNum: true}
		}
	case domain.ClassOption:
		if o.Prop != nil {
			s, _ := o.Value.Scalar()
			if i := o.Prop.OptionIndex(s.String()); i >= 0 {
				return sortKey{num: float64(i), isNum: true}
			}
		}
	}
	return sortKey{text: filter.Fold(q.filters.DisplayValue(o))}
}

func compareKeys(a, b sortKey) int {
	switch {
	case a.empty && b.empty:
		return 0
	case a.empty:
		return 1
	case b.empty:
		return -1
	case a.isNum && b.isNum:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	case a.isNum != b.isNum:
		if a.isNum {
			return -1
		}
		return 1
	}
	return strings.Compare(a.text, b.text)
}

// Sort orders records in place by the sort rules, earlier rules first.
// Empty values sort last in either direction and ties keep their order.
func (q *Engine) Sort(records []domain.Record, sorts []domain.SortRule, ds *domain.DataSource) {
	if len(sorts) == 0 || len(records) < 2 {
		return
	}
	keys := make(map[string][]sortKey, len(records))
	for _, r := range records {
		ks := make([]sortKey, len(sorts))
		for i, s := range sorts {
			ks[i] = q.key(r, s.PropertyID, ds)
		}
		keys[r.ID] = ks
	}
	sort.SliceStable(records, func(i, j int) bool {
		ki, kj := keys[records[i].ID], keys[records[j].ID]
		for n, s := range sorts {
			c := compareKeys(ki[n], kj[n])
			if c == 0 {
				continue
			}
			if s.Direction == domain.SortDesc && !ki[n].empty && !kj[n].empty {
				c = -c
			}
			return c < 0
		}
		return false
	})
}

// ── Grouping ───────────────────────────────────────────────

// GroupBy buckets records by the group property. Multi-valued records
// land in every matching group. Option-bearing properties list groups in
// option order; other properties in first-seen order. Records without a
// value form a trailing group unless HideEmpty is set.
func (q *Engine) GroupBy(records []domain.Record, cfg domain.GroupConfig, ds *domain.DataSource) []Group {
	var (
		order   []string
		buckets = map[string]*Group{}
		empty   = &Group{Key: NoValueKey, Label: "No value"}
	)
	if p, ok := ds.Property(cfg.PropertyID); ok && p.Type.HasOptions() {
		for _, o := range p.Options {
			order = append(order, o.ID)
			buckets[o.ID] = &Group{Key: o.ID, Label: o.Name, Records: []domain.Record{}}
		}
	}

	for _, r := range records {
		o, ok := q.filters.Operand(r, cfg.PropertyID, ds)
		elems := groupElems(o, ok)
		if len(elems) == 0 {
			empty.Records = append(empty.Records, r)
			continue
		}
		seen := map[string]bool{}
		for _, el := range elems {
			key := el
			if o.Prop != nil {
				if opt, found := o.Prop.Option(el); found {
					key = opt.ID
				}
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			g, exists := buckets[key]
			if !exists {
				g = &Group{Key: key, Label: q.filters.Label(o, el)}
				buckets[key] = g
				order = append(order, key)
			}
			g.Records = append(g.Records, r)
		}
	}

	out := make([]Group, 0, len(order)+1)
	for _, k := range order {
		out = append(out, *buckets[k])
	}
	if !cfg.HideEmpty {
		if empty.Records == nil {
			empty.Records = []domain.Record{}
		}
		out = append(out, *empty)
	}
	return out
}

func groupElems(o filter.Operand, ok bool) []string {
	if !ok || o.Value.IsEmpty() {
		return nil
	}
	if o.Class == domain.ClassMulti {
		return o.Value.Strings()
	}
	s, _ := o.Value.Scalar()
	return s.Strings()
}

// ── Option enumeration ─────────────────────────────────────

// Options lists the distinct values of a property across records, using
// comparable values for rollups. Declared options come first.
func (q *Engine) Options(ds *domain.DataSource, propertyID string, records []domain.Record) []OptionValue {
	var out []OptionValue
	seen := map[string]bool{}
	if p, ok := ds.Property(propertyID); ok && p.Type.HasOptions() {
		for _, o := range p.Options {
			seen[o.ID] = true
			out = append(out, OptionValue{Key: o.ID, Label: o.Name})
		}
	}
	for _, r := range records {
		o, ok := q.filters.Operand(r, propertyID, ds)
		for _, el := range groupElems(o, ok) {
			key := el
			if o.Prop != nil {
				if opt, found := o.Prop.Option(el); found {
					key = opt.ID
				}
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, OptionValue{Key: key, Label: q.filters.Label(o, el)})
		}
	}
	return out
}
