package filter

import (
	"strings"
	"time"

	"notesdb/internal/domain"
)

// MatchesAdvanced evaluates a rule tree against record. Items are folded
// left to right: rules in order, then nested groups, each joined to the
// running result by its own boolean operator. The first item seeds the
// fold. Rules without a property are skipped and an empty group matches.
func (e *Evaluator) MatchesAdvanced(record domain.Record, group domain.FilterGroup, ds *domain.DataSource) bool {
	res, _ := e.evalGroup(record, group, ds)
	return res
}

// MatchesAdvancedGroups folds several top-level groups the same way items
// inside one group are folded.
func (e *Evaluator) MatchesAdvancedGroups(record domain.Record, groups []domain.FilterGroup, ds *domain.DataSource) bool {
	acc, seeded := true, false
	for _, g := range groups {
		res, ok := e.evalGroup(record, g, ds)
		if !ok {
			continue
		}
		acc, seeded = combine(acc, res, g.BooleanOperator, seeded), true
	}
	return acc
}

func (e *Evaluator) evalGroup(record domain.Record, g domain.FilterGroup, ds *domain.DataSource) (result, nonEmpty bool) {
	acc, seeded := true, false
	for _, rule := range g.Rules {
		if rule.PropertyID == nil {
			continue
		}
		acc, seeded = combine(acc, e.evalRule(record, rule, ds), rule.BooleanOperator, seeded), true
	}
	for _, sub := range g.Groups {
		res, ok := e.evalGroup(record, sub, ds)
		if !ok {
			continue
		}
		acc, seeded = combine(acc, res, sub.BooleanOperator, seeded), true
	}
	return acc, seeded
}

func combine(acc, next bool, op domain.BooleanOperator, seeded bool) bool {
	if !seeded {
		return next
	}
	if op == domain.OpOr {
		return acc || next
	}
	return acc && next
}

// evalRule applies one rule. Rules on unknown properties, rules without a
// value yet, and operators that do not apply to the property's class all
// evaluate to true so they never hide the whole view.
func (e *Evaluator) evalRule(record domain.Record, rule domain.FilterRule, ds *domain.DataSource) bool {
	o, ok := e.Operand(record, *rule.PropertyID, ds)
	if !ok {
		e.log.Debug().Str("rule", rule.ID).Str("property", *rule.PropertyID).Msg("rule on unknown property ignored")
		return true
	}
	if rule.Operator.TakesValue() && rule.Value.IsZero() {
		return true
	}
	switch rule.Operator {
	case domain.FilterIsEmpty:
		return o.Value.IsEmpty()
	case domain.FilterIsNotEmpty:
		return !o.Value.IsEmpty()
	}
	res, applies := e.compare(o, rule.Operator, rule.Value.Values)
	if !applies {
		e.log.Debug().Str("rule", rule.ID).Str("operator", string(rule.Operator)).Msg("operator does not apply to property type")
		return true
	}
	return res
}

func (e *Evaluator) compare(o Operand, op domain.FilterOperator, wants []string) (result, applies bool) {
	switch o.Class {
	case domain.ClassText:
		return compareText(o.Value, op, wants)
	case domain.ClassNumber:
		return compareNumber(o.Value, op, wants)
	case domain.ClassDate:
		return compareDate(o.Value, op, wants)
	case domain.ClassCheckbox:
		return compareCheckbox(o.Value, op, wants)
	case domain.ClassOption:
		switch op {
		case domain.FilterEquals:
			return e.anyMatch(o, o.Value.Strings(), wants), true
		case domain.FilterNotEquals:
			return !e.anyMatch(o, o.Value.Strings(), wants), true
		}
	case domain.ClassMulti:
		elems := o.Value.Strings()
		switch op {
		case domain.FilterEquals:
			return e.setEqual(o, elems, wants), true
		case domain.FilterNotEquals:
			return !e.setEqual(o, elems, wants), true
		case domain.FilterContains:
			return e.anyMatch(o, elems, wants), true
		case domain.FilterNotContains:
			return !e.anyMatch(o, elems, wants), true
		}
	}
	return false, false
}

// setEqual compares as sets: order and duplicates are ignored.
func (e *Evaluator) setEqual(o Operand, elems, wants []string) bool {
	if len(elems) == 0 {
		return false
	}
	for _, el := range elems {
		if !e.anyMatch(o, []string{el}, wants) {
			return false
		}
	}
	for _, w := range wants {
		if w == "" {
			continue
		}
		if !e.anyMatch(o, elems, []string{w}) {
			return false
		}
	}
	return true
}

func compareText(v domain.Value, op domain.FilterOperator, wants []string) (bool, bool) {
	text := Fold(v.String())
	matchAny := func(fn func(text, want string) bool) bool {
		for _, w := range wants {
			if fn(text, Fold(w)) {
				return true
			}
		}
		return false
	}
	switch op {
	case domain.FilterEquals:
		return matchAny(func(t, w string) bool { return t == w }), true
	case domain.FilterNotEquals:
		return !matchAny(func(t, w string) bool { return t == w }), true
	case domain.FilterContains:
		return matchAny(strings.Contains), true
	case domain.FilterNotContains:
		return !matchAny(strings.Contains), true
	case domain.FilterStartsWith:
		return matchAny(strings.HasPrefix), true
	case domain.FilterEndsWith:
		return matchAny(strings.HasSuffix), true
	case domain.FilterGreaterThan, domain.FilterLessThan,
		domain.FilterGreaterThanOrEqual, domain.FilterLessThanOrEqual:
		// Ordering text only makes sense against a number.
		b, okW := domain.TextValue(first(wants)).AsNumber()
		if !okW {
			return false, false
		}
		a, ok := v.AsNumber()
		return ok && ordered(op, cmpFloat(a, b)), true
	}
	return false, false
}

func compareNumber(v domain.Value, op domain.FilterOperator, wants []string) (bool, bool) {
	a, ok := v.AsNumber()
	b, okW := domain.TextValue(first(wants)).AsNumber()
	switch op {
	case domain.FilterEquals:
		return ok && okW && a == b, true
	case domain.FilterNotEquals:
		return !(ok && okW && a == b), true
	case domain.FilterGreaterThan, domain.FilterLessThan,
		domain.FilterGreaterThanOrEqual, domain.FilterLessThanOrEqual:
		if !okW {
			return false, false
		}
		return ok && ordered(op, cmpFloat(a, b)), true
	}
	return false, false
}

func compareCheckbox(v domain.Value, op domain.FilterOperator, wants []string) (bool, bool) {
	want := strings.EqualFold(strings.TrimSpace(first(wants)), "true")
	got := v.Kind == domain.KindBool && v.Bool
	switch op {
	case domain.FilterEquals:
		return got == want, true
	case domain.FilterNotEquals:
		return got != want, true
	}
	return false, false
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// ParseDate parses the date layouts accepted in records and rule values.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func compareDate(v domain.Value, op domain.FilterOperator, wants []string) (bool, bool) {
	want, okW := ParseDate(first(wants))
	if !okW {
		return compareText(v, op, wants)
	}
	got, okG := ParseDate(v.String())
	if !okG {
		// A record value that is not a date never equals or orders against one.
		switch op {
		case domain.FilterEquals, domain.FilterGreaterThan, domain.FilterLessThan,
			domain.FilterGreaterThanOrEqual, domain.FilterLessThanOrEqual:
			return false, true
		case domain.FilterNotEquals:
			return true, true
		}
		return compareText(v, op, wants)
	}
	c := got.Compare(want)
	if len(first(wants)) == len("2006-01-02") {
		// Day-granular rule values compare by calendar day.
		gy, gm, gd := got.Date()
		c = time.Date(gy, gm, gd, 0, 0, 0, 0, time.UTC).Compare(want)
	}
	switch op {
	case domain.FilterEquals:
		return c == 0, true
	case domain.FilterNotEquals:
		return c != 0, true
	case domain.FilterGreaterThan, domain.FilterLessThan,
		domain.FilterGreaterThanOrEqual, domain.FilterLessThanOrEqual:
		return ordered(op, c), true
	}
	return compareText(v, op, wants)
}

func first(wants []string) string {
	for _, w := range wants {
		if w != "" {
			return w
		}
	}
	return ""
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func ordered(op domain.FilterOperator, c int) bool {
	switch op {
	case domain.FilterGreaterThan:
		return c > 0
	case domain.FilterLessThan:
		return c < 0
	case domain.FilterGreaterThanOrEqual:
		return c >= 0
	case domain.FilterLessThanOrEqual:
		return c <= 0
	}
	return false
}
