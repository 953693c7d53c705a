package filter

import (
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"notesdb/internal/domain"
	"notesdb/internal/rollup"
)

// Operand is a record's value for one property, prepared for comparison.
// Rollup-backed properties are reduced to their comparable value and take
// the class of their category: numeric for count and percent, the target
// property's class for original.
type Operand struct {
	Class domain.TypeClass
	Prop  *domain.PropertyDef
	Value domain.Value

	// Values holds every aggregated value of an original rollup.
	Values []domain.Value
}

// Strings returns all candidate strings of the operand.
func (o Operand) Strings() []string {
	if o.Values == nil {
		return o.Value.Strings()
	}
	var out []string
	for _, v := range o.Values {
		out = append(out, v.Strings()...)
	}
	return out
}

// Evaluator decides record inclusion for simple and advanced filters.
type Evaluator struct {
	rollups *rollup.Engine
	members domain.MemberDirectory
	log     zerolog.Logger
}

// NewEvaluator creates an Evaluator. members may be nil.
func NewEvaluator(rollups *rollup.Engine, members domain.MemberDirectory, log zerolog.Logger) *Evaluator {
	if members == nil {
		members = domain.Members{}
	}
	return &Evaluator{
		rollups: rollups,
		members: members,
		log:     log.With().Str("component", "filter").Logger(),
	}
}

// Operand resolves propertyID on record. ok is false when the property is
// not part of ds.
func (e *Evaluator) Operand(record domain.Record, propertyID string, ds *domain.DataSource) (Operand, bool) {
	prop, found := ds.Property(propertyID)
	if !found {
		if propertyID != domain.TitlePropertyID {
			return Operand{}, false
		}
		title := &domain.PropertyDef{ID: propertyID, Name: "Title", Type: domain.PropTypeText}
		v := domain.Value{}
		if record.Title != "" {
			v = domain.TextValue(record.Title)
		}
		return Operand{Class: domain.ClassText, Prop: title, Value: v}, true
	}

	if prop.Type == domain.PropTypeRollup {
		return e.rollupOperand(record, prop, ds), true
	}

	v := record.Value(prop.ID).Normalize(prop.Type)
	class := prop.Type.Class()
	switch class {
	case domain.ClassFormula:
		class = classOfValue(v)
	case domain.ClassCheckbox:
		// Unchecked boxes are usually never written.
		if v.IsEmpty() {
			v = domain.BoolValue(false)
		}
	}
	return Operand{Class: class, Prop: prop, Value: v}, true
}

func (e *Evaluator) rollupOperand(record domain.Record, prop *domain.PropertyDef, ds *domain.DataSource) Operand {
	res, err := e.rollups.Compute(record, prop, ds.Properties)
	if err != nil {
		e.log.Error().Err(err).Str("property", prop.ID).Msg("rollup skipped in filter")
		return Operand{Class: domain.ClassUnknown, Prop: prop}
	}
	cmp := rollup.Comparable(res)
	switch {
	case res.State != rollup.StateReady:
		return Operand{Class: domain.ClassNumber, Prop: prop}
	case res.Category == domain.CalcCount || res.Category == domain.CalcPercent:
		return Operand{Class: domain.ClassNumber, Prop: prop, Value: cmp}
	}

	// Option matching needs the target's option list.
	target := prop
	if ts, ok := e.rollups.TargetProperty(res.TargetDataSourceID, prop.Rollup.TargetPropertyID); ok {
		target = ts
	}
	class := res.TargetType.Class()
	if class == domain.ClassFormula {
		class = classOfValue(cmp)
	}
	if class == domain.ClassMulti && !cmp.IsEmpty() {
		cmp = domain.ListValue(cmp.Strings()...)
	}
	values := res.Values
	if values == nil {
		values = []domain.Value{}
	}
	return Operand{Class: class, Prop: target, Value: cmp, Values: values}
}

func classOfValue(v domain.Value) domain.TypeClass {
	switch v.Kind {
	case domain.KindNumber:
		return domain.ClassNumber
	case domain.KindBool:
		return domain.ClassCheckbox
	case domain.KindList:
		return domain.ClassMulti
	default:
		return domain.ClassText
	}
}

// matchesElem reports whether one stored element equals one wanted string
// under the operand's class. Options match by id or name; people match by
// id, name or email.
func (e *Evaluator) matchesElem(o Operand, elem, want string) bool {
	if elem == want {
		return true
	}
	switch o.Class {
	case domain.ClassText, domain.ClassDate:
		return Fold(elem) == Fold(want)
	case domain.ClassNumber:
		a, okA := domain.TextValue(elem).AsNumber()
		b, okB := domain.TextValue(want).AsNumber()
		return okA && okB && a == b
	case domain.ClassCheckbox:
		return strings.EqualFold(elem, want)
	case domain.ClassOption, domain.ClassMulti:
		if o.Prop != nil && o.Prop.Type == domain.PropTypePerson {
			m, ok := e.members.Member(elem)
			return ok && (Fold(m.Name) == Fold(want) || (m.Email != "" && Fold(m.Email) == Fold(want)))
		}
		if o.Prop != nil && o.Prop.Type.HasOptions() {
			if opt, ok := o.Prop.Option(elem); ok {
				return opt.ID == want || opt.Name == want
			}
		}
	}
	return false
}

func (e *Evaluator) anyMatch(o Operand, elems, wants []string) bool {
	for _, el := range elems {
		for _, w := range wants {
			if e.matchesElem(o, el, w) {
				return true
			}
		}
	}
	return false
}

// DisplayValue renders the operand for sorting and display: option ids
// become option names and member ids become member names.
func (e *Evaluator) DisplayValue(o Operand) string {
	elems := o.Value.Strings()
	out := make([]string, 0, len(elems))
	for _, el := range elems {
		out = append(out, e.Label(o, el))
	}
	return strings.Join(out, ", ")
}

// Label renders one stored element for display.
func (e *Evaluator) Label(o Operand, el string) string {
	if o.Prop == nil {
		return el
	}
	if o.Prop.Type == domain.PropTypePerson {
		if m, ok := e.members.Member(el); ok && m.Name != "" {
			return m.Name
		}
		return el
	}
	if opt, ok := o.Prop.Option(el); ok && opt.Name != "" {
		return opt.Name
	}
	return el
}

// Fold case-folds s. Text filters and sort keys both compare folded text.
func Fold(s string) string {
	return cases.Fold().String(s)
}
