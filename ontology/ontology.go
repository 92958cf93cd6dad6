// Package ontology holds the declarative knowledge the engine reasons with:
// canonical slots, synonym tables, fallback rules, intent keywords and the
// scoring presets for each ranking mode.
//
// The ontology is loaded once at startup from an embedded YAML document,
// optionally merged with an override file, validated, and compiled into an
// immutable Registry that is safe for concurrent use.
package ontology

import (
	"github.com/poiesic/wayfinder/core"
)

// Intent names used as keys of FieldWeights.
const (
	IntentDefault      = "default"
	IntentVibe         = "vibe"
	IntentFeature      = "feature"
	IntentNavigational = "navigational"
	IntentArea         = "area"
	IntentMixed        = "mixed"
)

// Ontology is the typed form of the configuration document.
type Ontology struct {
	Bitset       BitsetConfig            `koanf:"bitset"`
	Slots        []SlotDef               `koanf:"slots" validate:"required,min=1,dive"`
	Synonyms     []SynonymEntry          `koanf:"synonyms" validate:"required,min=1,dive"`
	Editorial    []EditorialRule         `koanf:"editorial" validate:"dive"`
	Hints        []Hint                  `koanf:"hints" validate:"dive"`
	Intents      IntentKeywords          `koanf:"intents"`
	FieldWeights map[string]FieldWeights `koanf:"field_weights" validate:"required,dive"`
	Modes        map[string]ModeWeights  `koanf:"modes" validate:"required,dive"`
	Scenarios    []Scenario              `koanf:"scenarios" validate:"dive"`
	QuietSlots   []string                `koanf:"quiet_slots"`
	Fuzzy        FuzzyConfig             `koanf:"fuzzy"`
	DishContext  DishContext             `koanf:"dish_context"`
}

// BitsetConfig fixes the leading bit positions of the tag encoder.
type BitsetConfig struct {
	Preferred []string `koanf:"preferred"`
}

// SlotDef is a canonical slot and what it expands to.
type SlotDef struct {
	ID                string        `koanf:"id" validate:"required"`
	Type              core.SlotType `koanf:"type" validate:"required,oneof=vibe dish experience area cuisine drink"`
	Label             string        `koanf:"label" validate:"required"`
	Tags              []string      `koanf:"tags"`
	Categories        []string      `koanf:"categories"`
	ExcludeCategories []string      `koanf:"exclude_categories"`
	Areas             []string      `koanf:"areas"`
}

// Key returns "type:id".
func (d *SlotDef) Key() string {
	return string(d.Type) + ":" + d.ID
}

// SynonymEntry maps surface forms to a canonical slot.
type SynonymEntry struct {
	Canonical string        `koanf:"canonical" validate:"required"`
	Type      core.SlotType `koanf:"type" validate:"required,oneof=vibe dish experience area cuisine drink"`
	Synonyms  []string      `koanf:"synonyms" validate:"required,min=1,dive,required"`
	// Tags adds expansion tags on top of the slot definition's.
	Tags []string `koanf:"tags"`
	// Denylist holds surface forms that, when present in the same query
	// segment, block this entry.
	Denylist []string `koanf:"denylist"`
}

// Key returns "type:canonical".
func (e *SynonymEntry) Key() string {
	return string(e.Type) + ":" + e.Canonical
}

// EditorialRule adds a slot when any trigger word or phrase occurs in the query.
type EditorialRule struct {
	Triggers []string `koanf:"triggers" validate:"required,min=1"`
	Slot     string   `koanf:"slot" validate:"required"`
}

// Hint maps a single unmatched token to a slot.
type Hint struct {
	Token string `koanf:"token" validate:"required"`
	Slot  string `koanf:"slot" validate:"required"`
}

// IntentKeywords are the curated keyword sets used for intent detection.
type IntentKeywords struct {
	Vibe         []string `koanf:"vibe"`
	Feature      []string `koanf:"feature"`
	Navigational []string `koanf:"navigational"`
	Area         []string `koanf:"area"`
}

// FieldWeights says how much a text match in each place field counts.
type FieldWeights struct {
	Name    float64 `koanf:"name" validate:"gte=0"`
	Tags    float64 `koanf:"tags" validate:"gte=0"`
	Summary float64 `koanf:"summary" validate:"gte=0"`
	Address float64 `koanf:"address" validate:"gte=0"`
}

// ModeWeights is a ranking preset.
type ModeWeights struct {
	Search    float64 `koanf:"search" validate:"gte=0,lte=1"`
	Vibe      float64 `koanf:"vibe" validate:"gte=0,lte=1"`
	Scenario  float64 `koanf:"scenario" validate:"gte=0,lte=1"`
	SignalCap float64 `koanf:"signal_cap" validate:"gte=0,lte=1"`
	Proximity float64 `koanf:"proximity" validate:"gte=0"` // k in k*exp(-d/2)
	Novelty   float64 `koanf:"novelty" validate:"gte=0,lte=1"`
}

// Scenario is a contextual situation ("date night") detected from the query
// that rewards or penalizes places by keyword evidence.
type Scenario struct {
	Name     string   `koanf:"name" validate:"required"`
	Triggers []string `koanf:"triggers" validate:"required,min=1"`
	Positive []string `koanf:"positive"`
	Negative []string `koanf:"negative"`
	Step     float64  `koanf:"step" validate:"gte=0,lte=1"`
	Cap      float64  `koanf:"cap" validate:"gte=0,lte=1"`
	Quiet    bool     `koanf:"quiet"`
}

// FuzzyConfig controls typo-tolerant matching of unmatched tokens.
type FuzzyConfig struct {
	Enabled    bool               `koanf:"enabled"`
	MinLength  int                `koanf:"min_length" validate:"gte=1"`
	Default    float64            `koanf:"default" validate:"gt=0,lte=1"`
	Thresholds map[string]float64 `koanf:"thresholds" validate:"dive,gt=0,lte=1"`
}

// DishContext suppresses drink-only venues when a dish was requested.
type DishContext struct {
	VibeOnlyCategories []string `koanf:"vibe_only_categories"`
	// Whitelist entries match a place category or tag and exempt it.
	Whitelist []string `koanf:"whitelist"`
}
