package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	t.Run("rejects duplicate paths", func(t *testing.T) {
		_, err := New([]FieldSpec{
			{Path: "a", Kind: KindText},
			{Path: "a", Kind: KindBool},
		}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declared twice")
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		_, err := New([]FieldSpec{{Path: "a", Kind: "blob"}}, nil)
		require.Error(t, err)
	})

	t.Run("rejects array without element schema", func(t *testing.T) {
		_, err := New([]FieldSpec{{Path: "kids", Kind: KindArray}}, nil)
		require.Error(t, err)
	})

	t.Run("rejects nested arrays", func(t *testing.T) {
		_, err := New([]FieldSpec{{Path: "kids", Kind: KindArray, Elem: []FieldSpec{
			{Path: "toys", Kind: KindArray, Elem: []FieldSpec{{Path: "name", Kind: KindText}}},
		}}}, nil)
		require.Error(t, err)
	})

	t.Run("rejects rule referencing unknown field", func(t *testing.T) {
		_, err := New(
			[]FieldSpec{{Path: "a", Kind: KindBool}},
			[]DocumentRule{{Slot: "doc", Label: "Doc", When: []Condition{{Path: "missing"}}}},
		)
		require.Error(t, err)
	})

	t.Run("rejects requiredWhen referencing unknown field", func(t *testing.T) {
		_, err := New([]FieldSpec{
			{Path: "a", Kind: KindText, Required: true, RequiredWhen: []Condition{{Path: "missing"}}},
		}, nil)
		require.Error(t, err)
	})
}

func TestDefault(t *testing.T) {
	c := Default()

	t.Run("declares core identity fields", func(t *testing.T) {
		sin, ok := c.Field("personalInfo.sin")
		require.True(t, ok)
		assert.True(t, sin.Required)
		assert.Equal(t, FormatSIN, sin.Format)

		phone, ok := c.Field("contact.phone")
		require.True(t, ok)
		assert.Equal(t, FormatPhone, phone.Format)
	})

	t.Run("foreign property rule is conditional", func(t *testing.T) {
		var found bool
		for _, rule := range c.Rules() {
			if rule.Slot == SlotForeignProperty {
				found = true
				assert.NotEmpty(t, rule.When)
			}
		}
		assert.True(t, found)
	})

	t.Run("base document set is unconditional", func(t *testing.T) {
		var base int
		for _, rule := range c.Rules() {
			if len(rule.When) == 0 {
				base++
			}
		}
		assert.Equal(t, 2, base)
	})

	t.Run("steps preserve declaration order", func(t *testing.T) {
		assert.Equal(t, []string{"personal", "household", "income", "deductions"}, c.Steps())
	})
}

func TestLoadFile(t *testing.T) {
	t.Run("round trips a YAML catalog", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		content := `
fields:
  - path: name
    kind: text
    required: true
    step: basics
  - path: hasPets
    kind: bool
    step: basics
  - path: pets
    kind: array
    required: true
    requiredWhen:
      - path: hasPets
    elem:
      - path: name
        kind: text
        required: true
documentRules:
  - slot: id
    label: Photo ID
  - slot: petRecords
    label: Vaccination records
    when:
      - path: hasPets
        equals: true
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		c, err := LoadFile(path)
		require.NoError(t, err)

		pets, ok := c.Field("pets")
		require.True(t, ok)
		assert.Equal(t, KindArray, pets.Kind)
		require.Len(t, pets.RequiredWhen, 1)
		assert.Equal(t, "hasPets", pets.RequiredWhen[0].Path)
		assert.Len(t, c.Rules(), 2)
	})

	t.Run("fails on empty catalog", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		require.NoError(t, os.WriteFile(path, []byte("fields: []"), 0o600))
		_, err := LoadFile(path)
		require.Error(t, err)
	})

	t.Run("fails on missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}
