package ontology

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/wayfinder/config"
	"github.com/poiesic/wayfinder/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_BuiltIn(t *testing.T) {
	o, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, o.Slots)
	assert.NotEmpty(t, o.Synonyms)
	assert.Contains(t, o.Modes, "light")
	assert.Equal(t, 0.75, o.Fuzzy.Default)
}

func TestLoad_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ontology.yaml")
	content := `
modes:
  light: {search: 0.5, vibe: 0.3, scenario: 0.1, signal_cap: 0.1, proximity: 0.4, novelty: 0.0}
fuzzy:
  default: 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	o, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, o.Modes["light"].Search)
	assert.Equal(t, 0.9, o.Fuzzy.Default)
	// Sections absent from the override keep the built-in values.
	assert.Equal(t, 0.3, o.Modes["vibe"].Search)
	assert.NotEmpty(t, o.Slots)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfigMissing))
}

func TestLoadRegistry_FallsBackOnBrokenOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	content := `
hints:
  - {token: climb, slot: "experience:unknown"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r := LoadRegistry(path, nil)
	require.NotNil(t, r)
	key, ok := r.Hint("climb")
	assert.True(t, ok)
	assert.Equal(t, "experience:climbing", key)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Ontology)
	}{
		{"duplicate slot", func(o *Ontology) { o.Slots = append(o.Slots, o.Slots[0]) }},
		{"synonym for unknown slot", func(o *Ontology) {
			o.Synonyms = append(o.Synonyms, SynonymEntry{Canonical: "bowling", Type: core.SlotTypeExperience, Synonyms: []string{"bowling"}})
		}},
		{"editorial to unknown slot", func(o *Ontology) {
			o.Editorial = append(o.Editorial, EditorialRule{Triggers: []string{"x"}, Slot: "vibe:nope"})
		}},
		{"quiet slot unknown", func(o *Ontology) { o.QuietSlots = []string{"vibe:nope"} }},
		{"missing mode", func(o *Ontology) { delete(o.Modes, "surprise") }},
		{"missing default weights", func(o *Ontology) { o.FieldWeights = map[string]FieldWeights{"vibe": {Name: 1}} }},
		{"bad slot type", func(o *Ontology) { o.Slots[0].Type = "mood" }},
		{"mode weight out of range", func(o *Ontology) {
			m := o.Modes["light"]
			m.Search = 2
			o.Modes["light"] = m
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Minimal()
			tt.mutate(o)
			err := o.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, config.ErrInvalid), "got %v", err)
		})
	}
}

func TestMinimal_Valid(t *testing.T) {
	r, err := NewRegistry(Minimal())
	require.NoError(t, err)
	assert.NotEmpty(t, r.Lookup("tom yum"))
}

func TestNewRegistry_Nil(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.Error(t, err)
}

func builtIn(t *testing.T) *Registry {
	t.Helper()
	o, err := Load("")
	require.NoError(t, err)
	r, err := NewRegistry(o)
	require.NoError(t, err)
	return r
}

func TestRegistry_Lookup(t *testing.T) {
	r := builtIn(t)

	surfaces := r.Lookup("tom yum")
	require.Len(t, surfaces, 1)
	assert.Equal(t, "dish:tom_yum", surfaces[0].Key)
	assert.Equal(t, 2, surfaces[0].Tokens)

	thai := r.Lookup("thai")
	require.Len(t, thai, 1)
	assert.Equal(t, []string{"thai massage"}, thai[0].Denylist)

	assert.Empty(t, r.Lookup("bowling"))
	assert.GreaterOrEqual(t, r.MaxSpanTokens(), 4)
}

func TestRegistry_NewSlot(t *testing.T) {
	r := builtIn(t)

	slot, ok := r.NewSlot("experience:rooftop", 1, "rooftop", core.ReasonExact, 2)
	require.True(t, ok)
	assert.Equal(t, core.SlotTypeExperience, slot.Type)
	assert.Equal(t, "rooftop", slot.Canonical)
	assert.Equal(t, "Rooftops", slot.Label)
	assert.Equal(t, 2, slot.Position)
	assert.Contains(t, slot.Filter.Tags, "view")
	assert.NoError(t, core.ValidateSlot(&slot))

	_, ok = r.NewSlot("experience:bowling", 1, "bowling", core.ReasonExact, 0)
	assert.False(t, ok)
}

func TestRegistry_Expand(t *testing.T) {
	r := builtIn(t)

	group := r.Expand("massage")
	assert.Contains(t, group, "spa")
	assert.Contains(t, group, "wellness")
	assert.NotContains(t, group, "thai massage")

	assert.Equal(t, []string{"bowling"}, r.Expand("bowling"))
}

func TestRegistry_Weights(t *testing.T) {
	r := builtIn(t)

	assert.Equal(t, 0.6, r.Mode(core.ModeLight).Search)
	assert.Equal(t, 0.5, r.Mode(core.ModeVibe).Vibe)
	assert.Equal(t, r.Mode(core.ModeLight), r.Mode("unknown"))

	assert.Equal(t, 1.0, r.FieldWeights(IntentArea).Address)
	assert.Equal(t, r.FieldWeights(IntentDefault), r.FieldWeights("nonsense"))
}

func TestRegistry_Fuzzy(t *testing.T) {
	r := builtIn(t)

	assert.True(t, r.FuzzyEnabled())
	assert.Equal(t, 4, r.FuzzyMinLength())
	assert.Equal(t, 0.8, r.FuzzyThreshold(core.SlotTypeDish))
	assert.Equal(t, 0.7, r.FuzzyThreshold(core.SlotTypeVibe))
	assert.Equal(t, 0.75, r.FuzzyThreshold(core.SlotTypeExperience))

	for _, s := range r.SingleTokenSurfaces() {
		assert.Equal(t, 1, s.Tokens)
	}
}

func TestRegistry_Tags(t *testing.T) {
	r := builtIn(t)

	tags := r.Tags()
	preferred := r.PreferredTags()
	require.GreaterOrEqual(t, len(tags), len(preferred))
	assert.Equal(t, preferred, tags[:len(preferred)])
	assert.Contains(t, r.SlotsForTag("rooftop"), "experience:rooftop")
	assert.Contains(t, r.ExpansionTags("dish:tom_yum"), "spicy")
}

func TestRegistry_QuietAndDishContext(t *testing.T) {
	r := builtIn(t)

	assert.True(t, r.IsQuietSlot("vibe:chill"))
	assert.False(t, r.IsQuietSlot("vibe:lively"))

	assert.True(t, r.SuppressedByDish("bar", []string{"cocktail"}))
	assert.False(t, r.SuppressedByDish("bar", []string{"cocktail", "serves_food"}))
	assert.False(t, r.SuppressedByDish("gastropub", nil))
	assert.False(t, r.SuppressedByDish("restaurant", nil))
}

func TestRegistry_EditorialAndHints(t *testing.T) {
	r := builtIn(t)

	var found bool
	for _, rule := range r.EditorialRules() {
		if rule.Key == "vibe:romantic" {
			assert.Contains(t, rule.Triggers, "date night")
			found = true
		}
	}
	assert.True(t, found)

	key, ok := r.Hint("climb")
	assert.True(t, ok)
	assert.Equal(t, "experience:climbing", key)
	_, ok = r.Hint("bowling")
	assert.False(t, ok)
}
