package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindEmpty ValueKind = iota
	KindText
	KindNumber
	KindBool
	KindList
)

// Value is a property value. Which field is meaningful depends on Kind:
// Text for text-like, option, date and formula strings; Number for numbers;
// Bool for checkboxes; List for multi-select, person, file and relation ids.
type Value struct {
	Kind   ValueKind
	Text   string
	Number float64
	Bool   bool
	List   []string
}

func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Number: n} }
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func ListValue(ids ...string) Value { return Value{Kind: KindList, List: append([]string{}, ids...)} }

// IsEmpty reports absent values, empty strings and empty lists.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindEmpty:
		return true
	case KindText:
		return v.Text == ""
	case KindList:
		return len(v.List) == 0
	default:
		return false
	}
}

// Strings returns the value as a set-like list of strings. Scalars become
// singletons and empty values return nil.
func (v Value) Strings() []string {
	switch v.Kind {
	case KindText:
		if v.Text == "" {
			return nil
		}
		return []string{v.Text}
	case KindNumber:
		return []string{FormatNumber(v.Number)}
	case KindBool:
		return []string{strconv.FormatBool(v.Bool)}
	case KindList:
		return v.List
	default:
		return nil
	}
}

// Scalar returns the first non-empty element of the value.
func (v Value) Scalar() (Value, bool) {
	switch v.Kind {
	case KindEmpty:
		return Value{}, false
	case KindList:
		for _, s := range v.List {
			if s != "" {
				return TextValue(s), true
			}
		}
		return Value{}, false
	case KindText:
		return v, v.Text != ""
	default:
		return v, true
	}
}

// AsNumber coerces the value into a float.
func (v Value) AsNumber() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Number, true
	case KindText:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		return n, err == nil
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Clone deep-copies the list backing.
func (v Value) Clone() Value {
	if v.List != nil {
		v.List = append([]string{}, v.List...)
	}
	return v
}

// String renders the value for display and logs.
func (v Value) String() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		return FormatNumber(v.Number)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList:
		return strings.Join(v.List, ", ")
	}
	return ""
}

// Normalize coerces a decoded value to the shape required by its property
// type. Relation values always become lists, even for single cardinality.
func (v Value) Normalize(t PropertyType) Value {
	if v.Kind == KindEmpty {
		return v
	}
	switch t.Class() {
	case ClassMulti:
		switch v.Kind {
		case KindText:
			if v.Text == "" {
				return ListValue()
			}
			return ListValue(v.Text)
		case KindList:
			return v
		default:
			return ListValue(v.Strings()...)
		}
	case ClassOption:
		if v.Kind == KindList {
			if len(v.List) == 0 {
				return Value{}
			}
			return TextValue(v.List[0])
		}
		return TextValue(v.String())
	case ClassNumber:
		if n, ok := v.AsNumber(); ok {
			return NumberValue(n)
		}
		return Value{}
	case ClassCheckbox:
		switch v.Kind {
		case KindBool:
			return v
		case KindText:
			b, err := strconv.ParseBool(v.Text)
			if err != nil {
				return Value{}
			}
			return BoolValue(b)
		case KindNumber:
			return BoolValue(v.Number != 0)
		}
		return Value{}
	case ClassText, ClassDate:
		if v.Kind == KindList {
			return TextValue(strings.Join(v.List, ", "))
		}
		if v.Kind != KindText {
			return TextValue(v.String())
		}
	}
	return v
}

// Raw converts the value to a plain Go value for document stores.
func (v Value) Raw() any {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		return v.Number
	case KindBool:
		return v.Bool
	case KindList:
		return append([]string{}, v.List...)
	}
	return nil
}

// ValueFromRaw is the inverse of Raw.
func ValueFromRaw(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Value{}
	case string:
		return TextValue(x)
	case bool:
		return BoolValue(x)
	case float64:
		return NumberValue(x)
	case float32:
		return NumberValue(float64(x))
	case int:
		return NumberValue(float64(x))
	case int32:
		return NumberValue(float64(x))
	case int64:
		return NumberValue(float64(x))
	case []string:
		return ListValue(x...)
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if e == nil {
				continue
			}
			out = append(out, fmt.Sprint(e))
		}
		return Value{Kind: KindList, List: out}
	default:
		return TextValue(fmt.Sprint(x))
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	*v = ValueFromRaw(raw)
	return nil
}

// FormatNumber renders integers without a trailing fraction.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
