package ontology

import "github.com/poiesic/wayfinder/core"

// Minimal returns a small hard-coded ontology used when configuration
// cannot be loaded. It covers the most common intents only.
func Minimal() *Ontology {
	return &Ontology{
		Bitset: BitsetConfig{
			Preferred: []string{"rooftop", "view", "romantic", "quiet", "cozy", "cocktail", "coffee", "spa", "massage", "thai"},
		},
		Slots: []SlotDef{
			{ID: "romantic", Type: core.SlotTypeVibe, Label: "Romantic evenings", Tags: []string{"romantic", "view", "cozy"}},
			{ID: "chill", Type: core.SlotTypeVibe, Label: "Slow and quiet", Tags: []string{"quiet", "cozy"}},
			{ID: "tom_yum", Type: core.SlotTypeDish, Label: "Tom yum", Tags: []string{"tom_yum", "thai"}},
			{ID: "rooftop", Type: core.SlotTypeExperience, Label: "Rooftops", Tags: []string{"rooftop", "view"}},
			{ID: "spa", Type: core.SlotTypeExperience, Label: "Spa and massage", Tags: []string{"spa", "massage"}, Categories: []string{"spa"}},
			{ID: "climbing", Type: core.SlotTypeExperience, Label: "Climbing", Tags: []string{"climbing"}},
			{ID: "cocktail", Type: core.SlotTypeDrink, Label: "Cocktails", Tags: []string{"cocktail"}, Categories: []string{"bar"}},
			{ID: "coffee", Type: core.SlotTypeDrink, Label: "Coffee", Tags: []string{"coffee"}, Categories: []string{"cafe"}},
		},
		Synonyms: []SynonymEntry{
			{Canonical: "romantic", Type: core.SlotTypeVibe, Synonyms: []string{"romantic", "romance", "intimate"}},
			{Canonical: "chill", Type: core.SlotTypeVibe, Synonyms: []string{"chill", "quiet", "calm", "cozy"}},
			{Canonical: "tom_yum", Type: core.SlotTypeDish, Synonyms: []string{"tom yum", "tom yam"}},
			{Canonical: "rooftop", Type: core.SlotTypeExperience, Synonyms: []string{"rooftop", "sky bar"}},
			{Canonical: "spa", Type: core.SlotTypeExperience, Synonyms: []string{"spa", "massage"}},
			{Canonical: "climbing", Type: core.SlotTypeExperience, Synonyms: []string{"bouldering", "rock climbing"}},
			{Canonical: "cocktail", Type: core.SlotTypeDrink, Synonyms: []string{"cocktail", "cocktails"}},
			{Canonical: "coffee", Type: core.SlotTypeDrink, Synonyms: []string{"coffee", "cafe"}},
		},
		Editorial: []EditorialRule{
			{Triggers: []string{"date", "anniversary"}, Slot: "vibe:romantic"},
		},
		Hints: []Hint{
			{Token: "climb", Slot: "experience:climbing"},
			{Token: "drinks", Slot: "drink:cocktail"},
		},
		Intents: IntentKeywords{
			Vibe:         []string{"romantic", "chill", "quiet", "cozy"},
			Feature:      []string{"tom yum", "cocktail", "coffee", "spa", "rooftop"},
			Navigational: []string{"address", "directions", "hours"},
			Area:         []string{"downtown", "district"},
		},
		FieldWeights: map[string]FieldWeights{
			IntentDefault: {Name: 1.0, Tags: 0.8, Summary: 0.6, Address: 0.3},
		},
		Modes: map[string]ModeWeights{
			string(core.ModeLight):    {Search: 0.6, Vibe: 0.2, Scenario: 0.1, SignalCap: 0.1, Proximity: 0.5, Novelty: 0.02},
			string(core.ModeVibe):     {Search: 0.3, Vibe: 0.5, Scenario: 0.15, SignalCap: 0.15, Proximity: 0.3, Novelty: 0.05},
			string(core.ModeSurprise): {Search: 0.3, Vibe: 0.3, Scenario: 0.3, SignalCap: 0.3, Proximity: 0.1, Novelty: 0.15},
		},
		Scenarios: []Scenario{
			{
				Name:     "date_night",
				Triggers: []string{"date", "romantic"},
				Positive: []string{"romantic", "view", "cozy"},
				Negative: []string{"loud", "sports"},
				Step:     0.1,
				Cap:      0.3,
			},
		},
		QuietSlots: []string{"vibe:chill"},
		Fuzzy: FuzzyConfig{
			Enabled:    true,
			MinLength:  4,
			Default:    0.75,
			Thresholds: map[string]float64{"dish": 0.8, "cuisine": 0.8, "vibe": 0.7},
		},
		DishContext: DishContext{
			VibeOnlyCategories: []string{"bar", "pub", "nightclub"},
		},
	}
}
