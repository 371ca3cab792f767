package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSchema is the on-disk catalog shape.
type fileSchema struct {
	Fields []FieldSpec    `yaml:"fields"`
	Rules  []DocumentRule `yaml:"documentRules"`
}

// LoadFile reads a catalog definition from a YAML file. Deployments use
// this to ship year-specific catalogs without a rebuild; the built-in
// Default() remains the fallback.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var parsed fileSchema
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	if len(parsed.Fields) == 0 {
		return nil, fmt.Errorf("catalog file %s declares no fields", path)
	}

	c, err := New(parsed.Fields, parsed.Rules)
	if err != nil {
		return nil, fmt.Errorf("catalog file %s: %w", path, err)
	}
	return c, nil
}
