package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"taxfile/internal/catalog"
)

// Value is the tagged union holding one typed answer. Exactly the slot
// matching Kind is populated; the zero value of every other slot is unset.
// Validation constructs Values; stores encode and decode them.
type Value struct {
	Kind    catalog.FieldKind
	Bool    bool
	Text    string
	Numeric decimal.Decimal
	Date    time.Time
	// Array elements map element field name to its value, per the
	// catalog's element sub-schema.
	Array []map[string]Value
}

func BoolValue(v bool) Value       { return Value{Kind: catalog.KindBool, Bool: v} }
func TextValue(v string) Value     { return Value{Kind: catalog.KindText, Text: v} }
func DateValue(v time.Time) Value  { return Value{Kind: catalog.KindDate, Date: v} }
func ArrayValue(v []map[string]Value) Value {
	return Value{Kind: catalog.KindArray, Array: v}
}

// NumericValue stores amounts at a two-decimal scale.
func NumericValue(v decimal.Decimal) Value {
	return Value{Kind: catalog.KindNumeric, Numeric: v.Round(2)}
}

// IsEmpty reports whether the value counts as unanswered for completion
// purposes. A stored false boolean is still an answer; blank text and empty
// arrays are not.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case catalog.KindText:
		return strings.TrimSpace(v.Text) == ""
	case catalog.KindArray:
		return len(v.Array) == 0
	case "":
		return true
	}
	return false
}

// Plain returns a JSON-friendly representation: booleans and strings as
// themselves, numerics as strings (preserving scale), dates in YYYY-MM-DD,
// arrays as a list of plain maps.
func (v Value) Plain() any {
	switch v.Kind {
	case catalog.KindBool:
		return v.Bool
	case catalog.KindText:
		return v.Text
	case catalog.KindNumeric:
		return v.Numeric.StringFixed(2)
	case catalog.KindDate:
		return v.Date.Format(time.DateOnly)
	case catalog.KindArray:
		out := make([]map[string]any, 0, len(v.Array))
		for _, elem := range v.Array {
			plain := make(map[string]any, len(elem))
			for name, sub := range elem {
				plain[name] = sub.Plain()
			}
			out = append(out, plain)
		}
		return out
	}
	return nil
}

// EncodeJSON renders the canonical storage form of the value.
func (v Value) EncodeJSON() ([]byte, error) {
	switch v.Kind {
	case catalog.KindBool:
		return json.Marshal(v.Bool)
	case catalog.KindText:
		return json.Marshal(v.Text)
	case catalog.KindNumeric:
		// Quoted string keeps the two-decimal scale intact.
		return json.Marshal(v.Numeric.StringFixed(2))
	case catalog.KindDate:
		return json.Marshal(v.Date.Format(time.DateOnly))
	case catalog.KindArray:
		out := make([]map[string]json.RawMessage, 0, len(v.Array))
		for _, elem := range v.Array {
			encoded := make(map[string]json.RawMessage, len(elem))
			for name, sub := range elem {
				raw, err := sub.EncodeJSON()
				if err != nil {
					return nil, err
				}
				encoded[name] = raw
			}
			out = append(out, encoded)
		}
		return json.Marshal(out)
	}
	return nil, fmt.Errorf("encode value: unknown kind %q", v.Kind)
}

// DecodeJSON rebuilds a Value from its canonical storage form using the
// field's catalog spec to pick the slot.
func DecodeJSON(spec catalog.FieldSpec, raw []byte) (Value, error) {
	switch spec.Kind {
	case catalog.KindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, fmt.Errorf("decode %s: %w", spec.Path, err)
		}
		return BoolValue(b), nil
	case catalog.KindText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("decode %s: %w", spec.Path, err)
		}
		return TextValue(s), nil
	case catalog.KindNumeric:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("decode %s: %w", spec.Path, err)
		}
		num, err := decimal.NewFromString(s)
		if err != nil {
			return Value{}, fmt.Errorf("decode %s: %w", spec.Path, err)
		}
		return NumericValue(num), nil
	case catalog.KindDate:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("decode %s: %w", spec.Path, err)
		}
		date, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return Value{}, fmt.Errorf("decode %s: %w", spec.Path, err)
		}
		return DateValue(date), nil
	case catalog.KindArray:
		var elems []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return Value{}, fmt.Errorf("decode %s: %w", spec.Path, err)
		}
		elemSpecs := make(map[string]catalog.FieldSpec, len(spec.Elem))
		for _, sub := range spec.Elem {
			elemSpecs[sub.Path] = sub
		}
		out := make([]map[string]Value, 0, len(elems))
		for i, elem := range elems {
			decoded := make(map[string]Value, len(elem))
			for name, subRaw := range elem {
				subSpec, ok := elemSpecs[name]
				if !ok {
					return Value{}, fmt.Errorf("decode %s[%d]: unknown element field %q", spec.Path, i, name)
				}
				sub, err := DecodeJSON(subSpec, subRaw)
				if err != nil {
					return Value{}, err
				}
				decoded[name] = sub
			}
			out = append(out, decoded)
		}
		return ArrayValue(out), nil
	}
	return Value{}, fmt.Errorf("decode %s: unknown kind %q", spec.Path, spec.Kind)
}
