package domain

import "sort"

// PropertyType defines the data type of a data source property.
type PropertyType string

const (
	PropTypeText        PropertyType = "text"
	PropTypeNumber      PropertyType = "number"
	PropTypeSelect      PropertyType = "select"
	PropTypeMultiSelect PropertyType = "multi_select"
	PropTypeStatus      PropertyType = "status"
	PropTypePriority    PropertyType = "priority"
	PropTypePerson      PropertyType = "person"
	PropTypeDate        PropertyType = "date"
	PropTypeCheckbox    PropertyType = "checkbox"
	PropTypeRelation    PropertyType = "relation"
	PropTypeRollup      PropertyType = "rollup"
	PropTypeFormula     PropertyType = "formula"
	PropTypeFile        PropertyType = "file"
	PropTypeGithubPR    PropertyType = "github_pr"
	PropTypeEmail       PropertyType = "email"
	PropTypeURL         PropertyType = "url"
	PropTypePhone       PropertyType = "phone"
)

// TitlePropertyID addresses Record.Title in filters and sorts when the
// schema has no property with that id.
const TitlePropertyID = "title"

// TypeClass groups property types by how their values compare.
type TypeClass int

const (
	ClassUnknown TypeClass = iota
	ClassText
	ClassNumber
	ClassOption
	ClassMulti
	ClassCheckbox
	ClassDate
	ClassRollup
	ClassFormula
)

// Class returns the comparison class of a property type.
func (t PropertyType) Class() TypeClass {
	switch t {
	case PropTypeText, PropTypeEmail, PropTypeURL, PropTypePhone, PropTypeGithubPR:
		return ClassText
	case PropTypeNumber:
		return ClassNumber
	case PropTypeSelect, PropTypeStatus, PropTypePriority:
		return ClassOption
	case PropTypeMultiSelect, PropTypePerson, PropTypeRelation, PropTypeFile:
		return ClassMulti
	case PropTypeCheckbox:
		return ClassCheckbox
	case PropTypeDate:
		return ClassDate
	case PropTypeRollup:
		return ClassRollup
	case PropTypeFormula:
		return ClassFormula
	default:
		return ClassUnknown
	}
}

// HasOptions reports whether values of this type are option ids.
func (t PropertyType) HasOptions() bool {
	switch t {
	case PropTypeSelect, PropTypeMultiSelect, PropTypeStatus, PropTypePriority:
		return true
	}
	return false
}

// IsGroupable reports whether rollup selectedOptions apply to this target type.
func (t PropertyType) IsGroupable() bool {
	switch t {
	case PropTypeSelect, PropTypeMultiSelect, PropTypeStatus:
		return true
	}
	return false
}

// Option is one choice of an option-bearing property.
type Option struct {
	ID    string `json:"id" bson:"id"`
	Name  string `json:"name" bson:"name"`
	Color string `json:"color,omitempty" bson:"color,omitempty"`
}

// Cardinality of a relation property.
type Cardinality string

const (
	CardinalitySingle   Cardinality = "single"
	CardinalityMultiple Cardinality = "multiple"
)

// RelationConfig links a relation property to another data source.
type RelationConfig struct {
	LinkedDataSourceID string      `json:"linkedDataSourceId" bson:"linkedDataSourceId"`
	Cardinality        Cardinality `json:"cardinality" bson:"cardinality"`
}

// CalcCategory is the aggregation family of a rollup.
type CalcCategory string

const (
	CalcOriginal CalcCategory = "original"
	CalcCount    CalcCategory = "count"
	CalcPercent  CalcCategory = "percent"
)

// CalcValue selects what a count/percent rollup counts.
type CalcValue string

const (
	CalcValueOriginal CalcValue = "original"
	CalcValueAll      CalcValue = "all"
	CalcValuePerGroup CalcValue = "per_group"
	CalcValueEmpty    CalcValue = "empty"
	CalcValueNonEmpty CalcValue = "non_empty"
)

// Calculation is the rollup aggregation.
type Calculation struct {
	Category CalcCategory `json:"category" bson:"category"`
	Value    CalcValue    `json:"value" bson:"value"`
}

// RollupConfig aggregates TargetPropertyID across the relation RelationPropertyID.
type RollupConfig struct {
	RelationPropertyID   string       `json:"relationPropertyId" bson:"relationPropertyId"`
	RelationDataSourceID string       `json:"relationDataSourceId" bson:"relationDataSourceId"`
	TargetPropertyID     string       `json:"targetPropertyId,omitempty" bson:"targetPropertyId,omitempty"`
	Calculation          *Calculation `json:"calculation" bson:"calculation"`
	SelectedOptions      []string     `json:"selectedOptions,omitempty" bson:"selectedOptions,omitempty"`
}

// PropertyDef is one column of a data source.
type PropertyDef struct {
	ID       string          `json:"id" bson:"id"`
	Name     string          `json:"name" bson:"name"`
	Type     PropertyType    `json:"type" bson:"type"`
	Options  []Option        `json:"options,omitempty" bson:"options,omitempty"`
	Relation *RelationConfig `json:"relation,omitempty" bson:"relation,omitempty"`
	Rollup   *RollupConfig   `json:"rollup,omitempty" bson:"rollup,omitempty"`
}

// Option looks up an option by id, falling back to a name match.
func (p *PropertyDef) Option(key string) (Option, bool) {
	for _, o := range p.Options {
		if o.ID == key {
			return o, true
		}
	}
	for _, o := range p.Options {
		if o.Name == key {
			return o, true
		}
	}
	return Option{}, false
}

// OptionIndex returns the display position of an option, or -1.
func (p *PropertyDef) OptionIndex(key string) int {
	for i, o := range p.Options {
		if o.ID == key || o.Name == key {
			return i
		}
	}
	return -1
}

// DataSource is a named collection of typed property schemas.
// Properties is keyed by stable id; PropertyOrder is the display order.
type DataSource struct {
	ID            string                  `json:"id" bson:"_id"`
	Title         string                  `json:"title" bson:"title"`
	Properties    map[string]*PropertyDef `json:"properties" bson:"properties"`
	PropertyOrder []string                `json:"propertyOrder,omitempty" bson:"propertyOrder,omitempty"`
}

// Property returns the property with the given id.
func (ds *DataSource) Property(id string) (*PropertyDef, bool) {
	if ds == nil || ds.Properties == nil {
		return nil, false
	}
	p, ok := ds.Properties[id]
	return p, ok && p != nil
}

// OrderedPropertyIDs returns property ids in display order. Ids listed in
// PropertyOrder that no longer exist are skipped; properties missing from
// the list are appended sorted by id.
func (ds *DataSource) OrderedPropertyIDs() []string {
	seen := make(map[string]bool, len(ds.Properties))
	out := make([]string, 0, len(ds.Properties))
	for _, id := range ds.PropertyOrder {
		if _, ok := ds.Properties[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	var rest []string
	for id := range ds.Properties {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Clone returns a deep copy so cache readers never share mutable state.
func (ds *DataSource) Clone() *DataSource {
	if ds == nil {
		return nil
	}
	out := &DataSource{
		ID:            ds.ID,
		Title:         ds.Title,
		Properties:    make(map[string]*PropertyDef, len(ds.Properties)),
		PropertyOrder: append([]string(nil), ds.PropertyOrder...),
	}
	for id, p := range ds.Properties {
		if p == nil {
			continue
		}
		cp := *p
		cp.Options = append([]Option(nil), p.Options...)
		if p.Relation != nil {
			rel := *p.Relation
			cp.Relation = &rel
		}
		if p.Rollup != nil {
			ru := *p.Rollup
			ru.SelectedOptions = append([]string(nil), p.Rollup.SelectedOptions...)
			if p.Rollup.Calculation != nil {
				calc := *p.Rollup.Calculation
				ru.Calculation = &calc
			}
			cp.Rollup = &ru
		}
		out.Properties[id] = &cp
	}
	return out
}
