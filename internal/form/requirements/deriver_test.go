package requirements

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxfile/internal/catalog"
	"taxfile/internal/form/models"
)

func slots(descriptors []Descriptor) []string {
	out := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, d.Slot)
	}
	return out
}

func TestDerive(t *testing.T) {
	c := catalog.Default()

	t.Run("empty answers yield only the base set", func(t *testing.T) {
		got := Derive(c, nil)
		assert.ElementsMatch(t,
			[]string{catalog.SlotGovernmentID, catalog.SlotPriorAssessment},
			slots(got))
		for _, d := range got {
			assert.False(t, d.Conditional)
		}
	})

	t.Run("foreign property flag adds its document", func(t *testing.T) {
		answers := map[string]models.Value{
			"hasForeignProperty": models.BoolValue(true),
		}
		assert.Contains(t, slots(Derive(c, answers)), catalog.SlotForeignProperty)
	})

	t.Run("explicit false excludes the document", func(t *testing.T) {
		answers := map[string]models.Value{
			"hasForeignProperty": models.BoolValue(false),
		}
		assert.NotContains(t, slots(Derive(c, answers)), catalog.SlotForeignProperty)
	})

	t.Run("ANDed conditions require every flag", func(t *testing.T) {
		answers := map[string]models.Value{
			"hasChildren": models.BoolValue(true),
		}
		assert.NotContains(t, slots(Derive(c, answers)), catalog.SlotChildcareReceipts)

		answers["deductions.hasChildcareExpenses"] = models.BoolValue(true)
		assert.Contains(t, slots(Derive(c, answers)), catalog.SlotChildcareReceipts)
	})
}

func TestRelevantRequired(t *testing.T) {
	c := catalog.Default()

	t.Run("conditionally required field appears once its trigger holds", func(t *testing.T) {
		paths := func(specs []catalog.FieldSpec) []string {
			out := make([]string, 0, len(specs))
			for _, s := range specs {
				out = append(out, s.Path)
			}
			return out
		}

		base := RelevantRequired(c, nil)
		assert.NotContains(t, paths(base), "income.selfEmploymentRevenue")

		withFlag := RelevantRequired(c, map[string]models.Value{
			"income.hasSelfEmployment": models.BoolValue(true),
		})
		assert.Contains(t, paths(withFlag), "income.selfEmploymentRevenue")
	})
}

func TestCompletion(t *testing.T) {
	t.Run("no required fields means complete", func(t *testing.T) {
		c, err := catalog.New([]catalog.FieldSpec{
			{Path: "optional", Kind: catalog.KindText},
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 100, Completion(c, nil))
	})

	t.Run("rounds down", func(t *testing.T) {
		c, err := catalog.New([]catalog.FieldSpec{
			{Path: "a", Kind: catalog.KindText, Required: true},
			{Path: "b", Kind: catalog.KindText, Required: true},
			{Path: "c", Kind: catalog.KindText, Required: true},
		}, nil)
		require.NoError(t, err)

		answers := map[string]models.Value{"a": models.TextValue("x")}
		assert.Equal(t, 33, Completion(c, answers))
	})

	t.Run("blank text does not count as answered", func(t *testing.T) {
		c, err := catalog.New([]catalog.FieldSpec{
			{Path: "a", Kind: catalog.KindText, Required: true},
		}, nil)
		require.NoError(t, err)

		answers := map[string]models.Value{"a": models.TextValue("  ")}
		assert.Equal(t, 0, Completion(c, answers))
	})

	t.Run("answering a trigger can lower the percentage", func(t *testing.T) {
		c, err := catalog.New([]catalog.FieldSpec{
			{Path: "name", Kind: catalog.KindText, Required: true},
			{Path: "hasSide", Kind: catalog.KindBool},
			{Path: "sideRevenue", Kind: catalog.KindNumeric, Required: true,
				RequiredWhen: []catalog.Condition{{Path: "hasSide"}}},
		}, nil)
		require.NoError(t, err)

		answers := map[string]models.Value{"name": models.TextValue("x")}
		assert.Equal(t, 100, Completion(c, answers))

		answers["hasSide"] = models.BoolValue(true)
		assert.Equal(t, 50, Completion(c, answers))

		answers["sideRevenue"] = models.NumericValue(decimal.RequireFromString("12.30"))
		assert.Equal(t, 100, Completion(c, answers))
	})
}
