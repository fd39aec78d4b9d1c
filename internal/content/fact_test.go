package content

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	facts := Normalize([]Fact{
		{Text: "  first finding  ", Importance: 0.8},
		{Text: ""},
		{Text: "First Finding", Importance: 0.5},
		{Text: "second finding", Importance: 1.7},
		{Text: "third finding", Importance: -0.2, ID: "custom"},
	})

	require.Len(t, facts, 3)
	assert.Equal(t, "first finding", facts[0].Text)
	assert.Equal(t, "f1", facts[0].ID)
	assert.Equal(t, 1.0, facts[1].Importance)
	assert.Equal(t, 0.0, facts[2].Importance)
	assert.Equal(t, "custom", facts[2].ID)
}

func TestSortByImportanceStable(t *testing.T) {
	facts := []Fact{
		{ID: "a", Importance: 0.5},
		{ID: "b", Importance: 0.9},
		{ID: "c", Importance: 0.5},
		{ID: "d", Importance: 0.1},
	}
	SortByImportance(facts)

	ids := []string{facts[0].ID, facts[1].ID, facts[2].ID, facts[3].ID}
	// ties keep input order: a before c
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids)
}

func TestFactValidate(t *testing.T) {
	require.NoError(t, Fact{ID: "f1", Text: "x", Importance: 0.5}.Validate())
	assert.Error(t, Fact{Text: "x", Importance: 0.5}.Validate())
	assert.Error(t, Fact{ID: "f1", Importance: 0.5}.Validate())
	assert.Error(t, Fact{ID: "f1", Text: "x", Importance: 1.5}.Validate())
}

func TestSaveAndLoadFacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facts.json")
	in := []Fact{
		{ID: "f1", Text: "cold starts fell by half", Importance: 0.9, Category: "performance"},
		{ID: "f2", Text: "memory doubled", Importance: 0.4},
	}
	require.NoError(t, SaveFacts(in, path))

	out, err := LoadFacts(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = LoadFacts(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
