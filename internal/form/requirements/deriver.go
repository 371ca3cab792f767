// Package requirements derives the set of required supporting documents,
// and the set of currently-relevant required fields, from an answer
// snapshot. Everything here is a pure function over immutable inputs: safe
// on the virtual draft, an empty map, or a partial map.
package requirements

import (
	"time"

	"github.com/shopspring/decimal"

	"taxfile/internal/catalog"
	"taxfile/internal/form/models"
)

// Descriptor names one required supporting document.
type Descriptor struct {
	Slot  string
	Label string
	// Conditional is false for the unconditional base set.
	Conditional bool
}

// Derive evaluates every document rule against the answer map and returns
// the descriptors whose predicates hold. The base set (rules with no
// conditions) is always included.
func Derive(c *catalog.Catalog, answers map[string]models.Value) []Descriptor {
	var out []Descriptor
	for _, rule := range c.Rules() {
		if !MatchesAll(rule.When, answers) {
			continue
		}
		out = append(out, Descriptor{
			Slot:        rule.Slot,
			Label:       rule.Label,
			Conditional: len(rule.When) > 0,
		})
	}
	return out
}

// RelevantRequired returns the catalog fields that are required and
// currently relevant: unconditionally required fields plus those whose
// RequiredWhen conditions all hold against the answers.
func RelevantRequired(c *catalog.Catalog, answers map[string]models.Value) []catalog.FieldSpec {
	var out []catalog.FieldSpec
	for _, spec := range c.Fields() {
		if !spec.Required {
			continue
		}
		if !MatchesAll(spec.RequiredWhen, answers) {
			continue
		}
		out = append(out, spec)
	}
	return out
}

// Completion computes the completion percentage: answered relevant required
// fields over all relevant required fields, rounded down. No relevant
// required fields means 100.
func Completion(c *catalog.Catalog, answers map[string]models.Value) int {
	required := RelevantRequired(c, answers)
	if len(required) == 0 {
		return 100
	}
	answered := 0
	for _, spec := range required {
		if v, ok := answers[spec.Path]; ok && !v.IsEmpty() {
			answered++
		}
	}
	return answered * 100 / len(required)
}

// StepCompletion reports, per questionnaire step, whether every relevant
// required field placed in that step is answered. Steps with no relevant
// required fields count as complete.
func StepCompletion(c *catalog.Catalog, answers map[string]models.Value) map[string]bool {
	out := make(map[string]bool, len(c.Steps()))
	for _, step := range c.Steps() {
		out[step] = true
	}
	for _, spec := range RelevantRequired(c, answers) {
		if spec.Step == "" {
			continue
		}
		if v, ok := answers[spec.Path]; !ok || v.IsEmpty() {
			out[spec.Step] = false
		}
	}
	return out
}

// MatchesAll reports whether every condition holds. An empty list holds
// vacuously.
func MatchesAll(conds []catalog.Condition, answers map[string]models.Value) bool {
	for _, cond := range conds {
		if !Matches(cond, answers) {
			return false
		}
	}
	return true
}

// Matches evaluates a single condition. A missing answer never matches.
// With no Equals literal the condition is a truthiness test: true booleans,
// non-empty text and arrays, and any stored date or number match.
func Matches(cond catalog.Condition, answers map[string]models.Value) bool {
	v, ok := answers[cond.Path]
	if !ok {
		return false
	}
	if cond.Equals == nil {
		return truthy(v)
	}
	return equalsLiteral(v, cond.Equals)
}

func truthy(v models.Value) bool {
	if v.Kind == catalog.KindBool {
		return v.Bool
	}
	return !v.IsEmpty()
}

func equalsLiteral(v models.Value, literal any) bool {
	switch v.Kind {
	case catalog.KindBool:
		b, ok := literal.(bool)
		return ok && v.Bool == b
	case catalog.KindText:
		s, ok := literal.(string)
		return ok && v.Text == s
	case catalog.KindNumeric:
		switch n := literal.(type) {
		case int:
			return v.Numeric.Equal(decimal.NewFromInt(int64(n)))
		case int64:
			return v.Numeric.Equal(decimal.NewFromInt(n))
		case float64:
			return v.Numeric.Equal(decimal.NewFromFloat(n))
		case string:
			parsed, err := decimal.NewFromString(n)
			return err == nil && v.Numeric.Equal(parsed)
		}
		return false
	case catalog.KindDate:
		s, ok := literal.(string)
		if !ok {
			return false
		}
		parsed, err := time.Parse(time.DateOnly, s)
		return err == nil && v.Date.Equal(parsed)
	}
	return false
}
