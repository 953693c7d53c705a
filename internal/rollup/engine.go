package rollup

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"notesdb/internal/domain"
	"notesdb/internal/relation"
)

// State tags a rollup Result.
type State string

const (
	StateUnconfigured State = "unconfigured"
	StateLoading      State = "loading"
	StateError        State = "error"
	StateReady        State = "ready"
)

// Result is the outcome of one rollup computation. Values is set for the
// original category; Count, TotalCount, CountFraction and Percent for
// count and percent.
type Result struct {
	State              State               `json:"state"`
	Category           domain.CalcCategory `json:"category,omitempty"`
	Value              domain.CalcValue    `json:"value,omitempty"`
	TargetDataSourceID string              `json:"targetDataSourceId,omitempty"`
	TargetType         domain.PropertyType `json:"targetType,omitempty"`
	Values             []domain.Value      `json:"values,omitempty"`
	Count              int                 `json:"count"`
	TotalCount         int                 `json:"totalCount"`
	CountFraction      string              `json:"countFraction,omitempty"`
	Percent            int                 `json:"percent"`
	Reason             string              `json:"reason,omitempty"`
}

// Engine computes rollup properties. It reads only from the Record Store
// and is pure for a fixed store snapshot.
type Engine struct {
	store    relation.Reader
	resolver *relation.Resolver
	log      zerolog.Logger
}

// NewEngine creates an Engine.
func NewEngine(store relation.Reader, resolver *relation.Resolver, log zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		resolver: resolver,
		log:      log.With().Str("component", "rollup").Logger(),
	}
}

// Compute aggregates prop for record. props is the schema of record's data
// source. Missing or stale configuration degrades to the unconfigured,
// loading or error states; the returned error is only ever an
// *domain.InvariantViolation for malformed calculation shapes.
func (e *Engine) Compute(record domain.Record, prop *domain.PropertyDef, props map[string]*domain.PropertyDef) (Result, error) {
	if prop == nil || prop.Rollup == nil || prop.Rollup.RelationPropertyID == "" {
		return Result{State: StateUnconfigured}, nil
	}
	cfg := prop.Rollup
	calc, err := e.validate(prop.ID, cfg.Calculation)
	if err != nil {
		return Result{}, err
	}

	relProp, ok := props[cfg.RelationPropertyID]
	if !ok || relProp == nil || relProp.Type != domain.PropTypeRelation {
		e.log.Debug().Str("property", prop.ID).Str("relation", cfg.RelationPropertyID).Msg("rollup relation no longer resolves")
		return Result{State: StateUnconfigured, Reason: "relation property not found"}, nil
	}
	needsTarget := calc.Category == domain.CalcOriginal || calc.Value != domain.CalcValueAll
	if needsTarget && cfg.TargetPropertyID == "" {
		return Result{State: StateUnconfigured, Reason: "target property not set"}, nil
	}

	resolved := e.resolver.Resolve(record, relProp)
	if !resolved.IsComplete {
		return Result{State: StateLoading, TargetDataSourceID: resolved.TargetDataSourceID}, nil
	}

	res := Result{
		State:              StateReady,
		Category:           calc.Category,
		Value:              calc.Value,
		TargetDataSourceID: resolved.TargetDataSourceID,
	}

	var target *domain.PropertyDef
	if needsTarget {
		ds, _ := e.store.DataSource(resolved.TargetDataSourceID)
		target, ok = targetProperty(ds, cfg.TargetPropertyID)
		if !ok {
			return Result{
				State:              StateError,
				TargetDataSourceID: resolved.TargetDataSourceID,
				Reason:             fmt.Sprintf("target property %q no longer exists", cfg.TargetPropertyID),
			}, nil
		}
		if target.Type == domain.PropTypeRollup {
			return Result{
				State:              StateError,
				TargetDataSourceID: resolved.TargetDataSourceID,
				Reason:             "rollups of rollups are not supported",
			}, nil
		}
		res.TargetType = target.Type
	}

	targets := resolved.TargetRecords
	if calc.Category == domain.CalcOriginal {
		res.Values = make([]domain.Value, 0, len(targets))
		for _, t := range targets {
			res.Values = append(res.Values, targetValue(t, target))
		}
		return res, nil
	}

	res.TotalCount = len(targets)
	switch calc.Value {
	case domain.CalcValueAll:
		res.Count = len(targets)
	case domain.CalcValuePerGroup:
		if target.Type.IsGroupable() {
			res.Count = countSelected(targets, target, cfg.SelectedOptions)
		} else {
			res.Count = countWhere(targets, target, false)
		}
	case domain.CalcValueEmpty:
		res.Count = countWhere(targets, target, true)
	case domain.CalcValueNonEmpty:
		res.Count = countWhere(targets, target, false)
	}
	res.CountFraction = fmt.Sprintf("%d/%d", res.Count, res.TotalCount)
	if calc.Category == domain.CalcPercent {
		res.Percent = Percent(res.Count, res.TotalCount)
	}
	return res, nil
}

func (e *Engine) validate(propID string, calc *domain.Calculation) (domain.Calculation, error) {
	fail := func(what string) (domain.Calculation, error) {
		err := &domain.InvariantViolation{What: fmt.Sprintf("rollup %s: %s", propID, what)}
		e.log.Error().Str("kind", string(domain.ErrorInvariant)).Err(err).Msg("malformed rollup calculation")
		return domain.Calculation{}, err
	}
	if calc == nil {
		return fail("calculation missing")
	}
	switch calc.Category {
	case domain.CalcOriginal:
		return *calc, nil
	case domain.CalcCount, domain.CalcPercent:
	case "":
		return fail("calculation missing category")
	default:
		return fail(fmt.Sprintf("unknown category %q", calc.Category))
	}
	switch calc.Value {
	case domain.CalcValueAll, domain.CalcValuePerGroup, domain.CalcValueEmpty, domain.CalcValueNonEmpty:
		return *calc, nil
	default:
		return fail(fmt.Sprintf("category %s with value %q", calc.Category, calc.Value))
	}
}

// TargetProperty returns the schema of a rollup target property.
func (e *Engine) TargetProperty(dataSourceID, propertyID string) (*domain.PropertyDef, bool) {
	ds, _ := e.store.DataSource(dataSourceID)
	return targetProperty(ds, propertyID)
}

// Percent is round(100*count/total), and 0 when total is 0.
func Percent(count, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(count) / float64(total)))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Comparable reduces a result to one value for filtering, sorting and
// grouping: a number for count and percent, the first non-empty scalar
// for original, and an empty value otherwise.
func Comparable(res Result) domain.Value {
	if res.State != StateReady {
		return domain.Value{}
	}
	switch res.Category {
	case domain.CalcCount:
		return domain.NumberValue(float64(res.Count))
	case domain.CalcPercent:
		return domain.NumberValue(float64(res.Percent))
	case domain.CalcOriginal:
		for _, v := range res.Values {
			if s, ok := v.Scalar(); ok {
				return s
			}
		}
	}
	return domain.Value{}
}

func targetProperty(ds *domain.DataSource, id string) (*domain.PropertyDef, bool) {
	if p, ok := ds.Property(id); ok {
		return p, true
	}
	if id == domain.TitlePropertyID {
		return &domain.PropertyDef{ID: id, Name: "Title", Type: domain.PropTypeText}, true
	}
	return nil, false
}

func targetValue(rec domain.Record, target *domain.PropertyDef) domain.Value {
	if _, stored := rec.Properties[target.ID]; !stored && target.ID == domain.TitlePropertyID {
		if rec.Title == "" {
			return domain.Value{}
		}
		return domain.TextValue(rec.Title)
	}
	return rec.Value(target.ID).Normalize(target.Type)
}

func countWhere(targets []domain.Record, target *domain.PropertyDef, empty bool) int {
	n := 0
	for _, t := range targets {
		if targetValue(t, target).IsEmpty() == empty {
			n++
		}
	}
	return n
}

// countSelected counts targets whose option value intersects selected.
// Options match by id or by name.
func countSelected(targets []domain.Record, target *domain.PropertyDef, selected []string) int {
	if len(selected) == 0 {
		return 0
	}
	want := make(map[string]bool, len(selected)*2)
	for _, s := range selected {
		want[s] = true
		if o, ok := target.Option(s); ok {
			want[o.ID] = true
			want[o.Name] = true
		}
	}
	n := 0
	for _, t := range targets {
		for _, s := range targetValue(t, target).Strings() {
			if want[s] {
				n++
				break
			}
		}
	}
	return n
}
