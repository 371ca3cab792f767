// Package catalog holds the static description of every recognized form
// field and the rules that derive required supporting documents from
// answers. A catalog is loaded once per process and is immutable
// afterwards, so unsynchronized concurrent reads are safe.
package catalog

import (
	"fmt"
)

// FieldKind is the value kind a field accepts.
type FieldKind string

const (
	KindBool    FieldKind = "bool"
	KindText    FieldKind = "text"
	KindNumeric FieldKind = "numeric"
	KindDate    FieldKind = "date"
	KindArray   FieldKind = "array"
)

func (k FieldKind) IsValid() bool {
	switch k {
	case KindBool, KindText, KindNumeric, KindDate, KindArray:
		return true
	}
	return false
}

// Format narrows how a text field is validated beyond its kind.
type Format string

const (
	FormatNone  Format = ""
	FormatPhone Format = "phone"
	// FormatSIN covers SIN-like identifiers: exactly nine digits after
	// stripping formatting characters.
	FormatSIN Format = "sin"
)

// Condition is a predicate over one answered field. A nil Equals matches
// any "truthy" answer (true booleans, non-empty text/arrays, any date or
// number); a non-nil Equals matches the given literal.
type Condition struct {
	Path   string `yaml:"path"`
	Equals any    `yaml:"equals,omitempty"`
}

// DocumentRule pairs a triggering predicate with the document it requires.
// An empty When list makes the document unconditionally required (the base
// set). Conditions in When are ANDed.
type DocumentRule struct {
	// Slot identifies the requirement; document metadata records point
	// back at it.
	Slot  string      `yaml:"slot"`
	Label string      `yaml:"label"`
	When  []Condition `yaml:"when,omitempty"`
}

// FieldSpec describes one recognized field.
type FieldSpec struct {
	Path     string    `yaml:"path"`
	Kind     FieldKind `yaml:"kind"`
	Required bool      `yaml:"required,omitempty"`
	// RequiredWhen makes a Required field relevant only while all its
	// conditions hold. Empty means unconditionally relevant.
	RequiredWhen []Condition `yaml:"requiredWhen,omitempty"`
	Format       Format      `yaml:"format,omitempty"`
	NonNegative  bool        `yaml:"nonNegative,omitempty"`

	// Step and Section place the field in the questionnaire layout for
	// section-progress tracking. Section may be empty.
	Step    string `yaml:"step,omitempty"`
	Section string `yaml:"section,omitempty"`

	// Elem declares the sub-schema of each array element. Only set when
	// Kind is KindArray; element fields use names relative to the array.
	Elem []FieldSpec `yaml:"elem,omitempty"`
}

// Catalog is the immutable field registry.
type Catalog struct {
	fields map[string]FieldSpec
	order  []string
	rules  []DocumentRule
}

// New validates the field list and builds a catalog. Paths must be unique,
// kinds valid, and array element schemas must not nest further arrays.
func New(fields []FieldSpec, rules []DocumentRule) (*Catalog, error) {
	c := &Catalog{fields: make(map[string]FieldSpec, len(fields))}
	for _, f := range fields {
		if f.Path == "" {
			return nil, fmt.Errorf("catalog field with empty path")
		}
		if !f.Kind.IsValid() {
			return nil, fmt.Errorf("catalog field %q: unknown kind %q", f.Path, f.Kind)
		}
		if _, exists := c.fields[f.Path]; exists {
			return nil, fmt.Errorf("catalog field %q declared twice", f.Path)
		}
		if f.Kind == KindArray {
			if len(f.Elem) == 0 {
				return nil, fmt.Errorf("catalog array field %q: missing element schema", f.Path)
			}
			seen := make(map[string]bool, len(f.Elem))
			for _, sub := range f.Elem {
				if sub.Path == "" || !sub.Kind.IsValid() {
					return nil, fmt.Errorf("catalog array field %q: invalid element %q", f.Path, sub.Path)
				}
				if sub.Kind == KindArray {
					return nil, fmt.Errorf("catalog array field %q: nested arrays are not supported", f.Path)
				}
				if seen[sub.Path] {
					return nil, fmt.Errorf("catalog array field %q: element %q declared twice", f.Path, sub.Path)
				}
				seen[sub.Path] = true
			}
		} else if len(f.Elem) > 0 {
			return nil, fmt.Errorf("catalog field %q: element schema only allowed on arrays", f.Path)
		}
		c.fields[f.Path] = f
		c.order = append(c.order, f.Path)
	}

	for _, rule := range rules {
		if rule.Slot == "" || rule.Label == "" {
			return nil, fmt.Errorf("document rule needs slot and label (slot=%q)", rule.Slot)
		}
		for _, cond := range rule.When {
			if _, ok := c.fields[cond.Path]; !ok {
				return nil, fmt.Errorf("document rule %q references unknown field %q", rule.Slot, cond.Path)
			}
		}
	}
	c.rules = rules

	for _, f := range fields {
		for _, cond := range f.RequiredWhen {
			if _, ok := c.fields[cond.Path]; !ok {
				return nil, fmt.Errorf("field %q requiredWhen references unknown field %q", f.Path, cond.Path)
			}
		}
	}

	return c, nil
}

// Field looks up a spec by dotted path.
func (c *Catalog) Field(path string) (FieldSpec, bool) {
	spec, ok := c.fields[path]
	return spec, ok
}

// Fields returns all specs in declaration order.
func (c *Catalog) Fields() []FieldSpec {
	out := make([]FieldSpec, 0, len(c.order))
	for _, path := range c.order {
		out = append(out, c.fields[path])
	}
	return out
}

// Rules returns all document rules.
func (c *Catalog) Rules() []DocumentRule {
	return c.rules
}

// Steps returns the distinct step IDs in declaration order.
func (c *Catalog) Steps() []string {
	var steps []string
	seen := make(map[string]bool)
	for _, path := range c.order {
		step := c.fields[path].Step
		if step == "" || seen[step] {
			continue
		}
		seen[step] = true
		steps = append(steps, step)
	}
	return steps
}
