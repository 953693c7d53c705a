package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BooleanOperator connects filter rules and groups.
type BooleanOperator string

const (
	OpAnd BooleanOperator = "AND"
	OpOr  BooleanOperator = "OR"
)

// FilterOperator is the comparison a rule applies.
type FilterOperator string

const (
	FilterEquals             FilterOperator = "equals"
	FilterNotEquals          FilterOperator = "not_equals"
	FilterContains           FilterOperator = "contains"
	FilterNotContains        FilterOperator = "not_contains"
	FilterStartsWith         FilterOperator = "starts_with"
	FilterEndsWith           FilterOperator = "ends_with"
	FilterIsEmpty            FilterOperator = "is_empty"
	FilterIsNotEmpty         FilterOperator = "is_not_empty"
	FilterGreaterThan        FilterOperator = "greater_than"
	FilterLessThan           FilterOperator = "less_than"
	FilterGreaterThanOrEqual FilterOperator = "greater_than_or_equal"
	FilterLessThanOrEqual    FilterOperator = "less_than_or_equal"
)

// TakesValue reports whether the operator compares against the rule value.
func (op FilterOperator) TakesValue() bool {
	return op != FilterIsEmpty && op != FilterIsNotEmpty
}

// RuleValue is either a single string or a list of strings. IsList
// remembers which form was stored so settings round-trip unchanged.
type RuleValue struct {
	Values []string
	IsList bool
}

// Single builds a scalar rule value.
func Single(s string) RuleValue { return RuleValue{Values: []string{s}} }

// Many builds a list rule value.
func Many(s ...string) RuleValue { return RuleValue{Values: append([]string{}, s...), IsList: true} }

// IsZero reports a value with nothing to compare against.
func (v RuleValue) IsZero() bool {
	for _, s := range v.Values {
		if s != "" {
			return false
		}
	}
	return true
}

func (v RuleValue) MarshalJSON() ([]byte, error) {
	if v.IsList {
		if v.Values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Values)
	}
	if len(v.Values) == 0 {
		return []byte(`""`), nil
	}
	return json.Marshal(v.Values[0])
}

func (v *RuleValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = RuleValue{}
	case len(data) > 0 && data[0] == '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("decode rule value: %w", err)
		}
		*v = RuleValue{Values: list, IsList: true}
	default:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode rule value: %w", err)
		}
		*v = Single(s)
	}
	return nil
}

// FilterRule is one predicate. BooleanOperator joins it to the previous
// item of its group; the first item of a group has none. A rule with a nil
// PropertyID is incomplete and excluded from evaluation.
type FilterRule struct {
	ID              string          `json:"id"`
	PropertyID      *string         `json:"propertyId"`
	Operator        FilterOperator  `json:"operator"`
	Value           RuleValue       `json:"value"`
	BooleanOperator BooleanOperator `json:"booleanOperator,omitempty"`
}

// FilterGroup is a nested AND/OR rule group.
type FilterGroup struct {
	ID              string          `json:"id"`
	BooleanOperator BooleanOperator `json:"booleanOperator"`
	Rules           []FilterRule    `json:"rules"`
	Groups          []FilterGroup   `json:"groups"`
}

// Clone deep-copies the group tree.
func (g FilterGroup) Clone() FilterGroup {
	out := g
	out.Rules = nil
	if g.Rules != nil {
		out.Rules = make([]FilterRule, len(g.Rules))
		for i, r := range g.Rules {
			if r.PropertyID != nil {
				pid := *r.PropertyID
				r.PropertyID = &pid
			}
			r.Value.Values = cloneStrings(r.Value.Values)
			out.Rules[i] = r
		}
	}
	out.Groups = nil
	if g.Groups != nil {
		out.Groups = make([]FilterGroup, len(g.Groups))
		for i, sub := range g.Groups {
			out.Groups[i] = sub.Clone()
		}
	}
	return out
}

// SortDirection of a sort rule.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortRule orders records by a property.
type SortRule struct {
	PropertyID string        `json:"propertyId"`
	Direction  SortDirection `json:"direction"`
}

// GroupConfig groups records by a property.
type GroupConfig struct {
	PropertyID string `json:"propertyId"`
	HideEmpty  bool   `json:"hideEmpty,omitempty"`
}

// ViewSettings is the persisted, JSON-serializable settings object of a view.
type ViewSettings struct {
	Filters            map[string][]string `json:"filters"`
	AdvancedFilters    []FilterGroup       `json:"advancedFilters"`
	Sorts              []SortRule          `json:"sorts"`
	Group              *GroupConfig        `json:"group,omitempty"`
	PropertyVisibility []string            `json:"propertyVisibility"`
}

// Clone returns a deep copy with identical serialized form.
func (s ViewSettings) Clone() ViewSettings {
	out := ViewSettings{PropertyVisibility: cloneStrings(s.PropertyVisibility)}
	if s.Filters != nil {
		out.Filters = make(map[string][]string, len(s.Filters))
		for k, v := range s.Filters {
			out.Filters[k] = cloneStrings(v)
		}
	}
	if s.AdvancedFilters != nil {
		out.AdvancedFilters = make([]FilterGroup, len(s.AdvancedFilters))
		for i, g := range s.AdvancedFilters {
			out.AdvancedFilters[i] = g.Clone()
		}
	}
	if s.Sorts != nil {
		out.Sorts = append([]SortRule{}, s.Sorts...)
	}
	if s.Group != nil {
		g := *s.Group
		out.Group = &g
	}
	return out
}

// SettingsPatch is a settings mutation. Nil fields are left untouched;
// ClearGroup removes grouping.
type SettingsPatch struct {
	Filters            map[string][]string `json:"filters,omitempty"`
	AdvancedFilters    []FilterGroup       `json:"advancedFilters,omitempty"`
	Sorts              []SortRule          `json:"sorts,omitempty"`
	Group              *GroupConfig        `json:"group,omitempty"`
	ClearGroup         bool                `json:"clearGroup,omitempty"`
	PropertyVisibility []string            `json:"propertyVisibility,omitempty"`
}

// IsEmpty reports a patch that changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.Filters == nil && p.AdvancedFilters == nil && p.Sorts == nil &&
		p.Group == nil && !p.ClearGroup && p.PropertyVisibility == nil
}

// Apply returns a copy of s with the patch applied.
func (p SettingsPatch) Apply(s ViewSettings) ViewSettings {
	out := s.Clone()
	patch := ViewSettings{
		Filters:            p.Filters,
		AdvancedFilters:    p.AdvancedFilters,
		Sorts:              p.Sorts,
		Group:              p.Group,
		PropertyVisibility: p.PropertyVisibility,
	}.Clone()
	if p.Filters != nil {
		out.Filters = patch.Filters
	}
	if p.AdvancedFilters != nil {
		out.AdvancedFilters = patch.AdvancedFilters
	}
	if p.Sorts != nil {
		out.Sorts = patch.Sorts
	}
	if p.ClearGroup {
		out.Group = nil
	}
	if p.Group != nil {
		out.Group = patch.Group
	}
	if p.PropertyVisibility != nil {
		out.PropertyVisibility = patch.PropertyVisibility
	}
	return out
}

// View is a saved perspective over a data source.
type View struct {
	ID           string       `json:"id"`
	DataSourceID string       `json:"dataSourceId"`
	Name         string       `json:"name"`
	Settings     ViewSettings `json:"settings"`
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}
