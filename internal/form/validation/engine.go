// Package validation checks proposed field values against the catalog.
// Partial mode runs on every autosave and looks only at supplied fields;
// complete mode runs at submission over the whole stored answer set.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"taxfile/internal/catalog"
	"taxfile/internal/form/models"
	"taxfile/internal/form/requirements"
	dErrors "taxfile/pkg/domain-errors"
)

// Engine validates values against a loaded catalog.
type Engine struct {
	catalog *catalog.Catalog
}

func New(c *catalog.Catalog) *Engine {
	return &Engine{catalog: c}
}

// Partial converts and validates the supplied raw values (decoded JSON,
// numbers as json.Number). Fields not supplied are not evaluated. On any
// violation the whole batch is rejected: the returned map is nil and the
// violations list is complete, so the client knows exactly what was not
// persisted.
func (e *Engine) Partial(values map[string]any) (map[string]models.Value, []dErrors.Violation) {
	var violations []dErrors.Violation
	normalized := make(map[string]models.Value, len(values))

	for path, raw := range values {
		spec, ok := e.catalog.Field(path)
		if !ok {
			violations = append(violations, dErrors.Violation{Path: path, Reason: "unknown field"})
			continue
		}
		value, fieldViolations := e.convert(spec, path, raw)
		if len(fieldViolations) > 0 {
			violations = append(violations, fieldViolations...)
			continue
		}
		normalized[path] = value
	}

	if len(violations) > 0 {
		return nil, violations
	}
	return normalized, nil
}

// Complete evaluates every field that is required and currently relevant
// against the stored answer set: presence plus a re-run of the partial
// format checks. It returns the full violation list, not just the first.
func (e *Engine) Complete(answers map[string]models.Value) []dErrors.Violation {
	var violations []dErrors.Violation

	for _, spec := range requirements.RelevantRequired(e.catalog, answers) {
		value, ok := answers[spec.Path]
		if !ok || value.IsEmpty() {
			violations = append(violations, dErrors.Violation{Path: spec.Path, Reason: "required"})
			continue
		}
		violations = append(violations, e.recheck(spec, spec.Path, value)...)
	}

	return violations
}

// convert turns a raw JSON value into a typed Value, collecting violations.
func (e *Engine) convert(spec catalog.FieldSpec, path string, raw any) (models.Value, []dErrors.Violation) {
	if raw == nil {
		return models.Value{}, []dErrors.Violation{{Path: path, Reason: "null is not a valid value"}}
	}

	switch spec.Kind {
	case catalog.KindBool:
		b, ok := raw.(bool)
		if !ok {
			return models.Value{}, []dErrors.Violation{{Path: path, Reason: "expected a boolean"}}
		}
		return models.BoolValue(b), nil

	case catalog.KindText:
		s, ok := raw.(string)
		if !ok {
			return models.Value{}, []dErrors.Violation{{Path: path, Reason: "expected text"}}
		}
		return convertText(spec, path, s)

	case catalog.KindNumeric:
		return convertNumeric(spec, path, raw)

	case catalog.KindDate:
		s, ok := raw.(string)
		if !ok {
			return models.Value{}, []dErrors.Violation{{Path: path, Reason: "expected a date string"}}
		}
		date, err := parseDate(s)
		if err != nil {
			return models.Value{}, []dErrors.Violation{{Path: path, Reason: "not a valid calendar date"}}
		}
		return models.DateValue(date), nil

	case catalog.KindArray:
		return e.convertArray(spec, path, raw)
	}

	return models.Value{}, []dErrors.Violation{{Path: path, Reason: fmt.Sprintf("unsupported kind %q", spec.Kind)}}
}

func convertText(spec catalog.FieldSpec, path, s string) (models.Value, []dErrors.Violation) {
	switch spec.Format {
	case catalog.FormatPhone:
		digits := stripNonDigits(s)
		if len(digits) < 10 || len(digits) > 15 {
			return models.Value{}, []dErrors.Violation{{Path: path, Reason: "phone number must contain 10 to 15 digits"}}
		}
		// Store the normalized digit string.
		return models.TextValue(digits), nil
	case catalog.FormatSIN:
		digits := stripNonDigits(s)
		if len(digits) != 9 {
			return models.Value{}, []dErrors.Violation{{Path: path, Reason: "identifier must contain exactly 9 digits"}}
		}
		return models.TextValue(digits), nil
	}
	return models.TextValue(s), nil
}

func convertNumeric(spec catalog.FieldSpec, path string, raw any) (models.Value, []dErrors.Violation) {
	var (
		num decimal.Decimal
		err error
	)
	switch n := raw.(type) {
	case json.Number:
		num, err = decimal.NewFromString(n.String())
	case string:
		num, err = decimal.NewFromString(strings.TrimSpace(n))
	case float64:
		num = decimal.NewFromFloat(n)
	case int:
		num = decimal.NewFromInt(int64(n))
	default:
		return models.Value{}, []dErrors.Violation{{Path: path, Reason: "expected a number"}}
	}
	if err != nil {
		return models.Value{}, []dErrors.Violation{{Path: path, Reason: "not a valid number"}}
	}
	if spec.NonNegative && num.IsNegative() {
		return models.Value{}, []dErrors.Violation{{Path: path, Reason: "must not be negative"}}
	}
	return models.NumericValue(num), nil
}

func (e *Engine) convertArray(spec catalog.FieldSpec, path string, raw any) (models.Value, []dErrors.Violation) {
	items, ok := raw.([]any)
	if !ok {
		return models.Value{}, []dErrors.Violation{{Path: path, Reason: "expected an array"}}
	}

	elemSpecs := make(map[string]catalog.FieldSpec, len(spec.Elem))
	for _, sub := range spec.Elem {
		elemSpecs[sub.Path] = sub
	}

	var violations []dErrors.Violation
	out := make([]map[string]models.Value, 0, len(items))

	for i, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			violations = append(violations, dErrors.Violation{
				Path:   fmt.Sprintf("%s[%d]", path, i),
				Reason: "expected an object",
			})
			continue
		}
		elem := make(map[string]models.Value, len(fields))
		for name, rawSub := range fields {
			subPath := fmt.Sprintf("%s[%d].%s", path, i, name)
			subSpec, ok := elemSpecs[name]
			if !ok {
				violations = append(violations, dErrors.Violation{Path: subPath, Reason: "unknown field"})
				continue
			}
			sub, subViolations := e.convert(subSpec, subPath, rawSub)
			if len(subViolations) > 0 {
				violations = append(violations, subViolations...)
				continue
			}
			elem[name] = sub
		}
		out = append(out, elem)
	}

	if len(violations) > 0 {
		return models.Value{}, violations
	}
	return models.ArrayValue(out), nil
}

// recheck re-runs format rules against an already-stored value. Stored
// values are normalized, but re-validating at submit keeps a catalog change
// (or a historic bad write) from slipping through a lock transition.
func (e *Engine) recheck(spec catalog.FieldSpec, path string, value models.Value) []dErrors.Violation {
	if value.Kind != spec.Kind {
		return []dErrors.Violation{{Path: path, Reason: fmt.Sprintf("stored value kind %q does not match field kind %q", value.Kind, spec.Kind)}}
	}

	switch spec.Kind {
	case catalog.KindText:
		if _, violations := convertText(spec, path, value.Text); violations != nil {
			return violations
		}
	case catalog.KindNumeric:
		if spec.NonNegative && value.Numeric.IsNegative() {
			return []dErrors.Violation{{Path: path, Reason: "must not be negative"}}
		}
	case catalog.KindArray:
		var violations []dErrors.Violation
		for i, elem := range value.Array {
			for _, subSpec := range spec.Elem {
				subPath := fmt.Sprintf("%s[%d].%s", path, i, subSpec.Path)
				sub, ok := elem[subSpec.Path]
				if !ok || sub.IsEmpty() {
					if subSpec.Required {
						violations = append(violations, dErrors.Violation{Path: subPath, Reason: "required"})
					}
					continue
				}
				violations = append(violations, e.recheck(subSpec, subPath, sub)...)
			}
		}
		return violations
	}
	return nil
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseDate accepts the canonical YYYY-MM-DD form plus the common client
// variants, always canonicalizing to a date-only value.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{time.DateOnly, time.RFC3339, "2006/01/02"}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
