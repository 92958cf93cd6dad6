package search

import (
	"github.com/poiesic/wayfinder/ontology"
	"github.com/poiesic/wayfinder/textnorm"
)

// Intent is the detected purpose of a free-text query together with the
// keyword counts it was derived from.
type Intent struct {
	Name   string
	Counts map[string]int
}

// DetectIntent classifies query by counting keyword and phrase matches per
// category. No match yields default and more than one matching category
// yields mixed.
func DetectIntent(registry *ontology.Registry, query string) Intent {
	normalized := textnorm.Normalize(query)
	intent := Intent{Name: ontology.IntentDefault, Counts: make(map[string]int)}
	if normalized == "" {
		return intent
	}

	padded := " " + normalized + " "
	kw := registry.Intents()
	for name, keywords := range map[string][]string{
		ontology.IntentVibe:         kw.Vibe,
		ontology.IntentFeature:      kw.Feature,
		ontology.IntentNavigational: kw.Navigational,
		ontology.IntentArea:         kw.Area,
	} {
		for _, k := range keywords {
			if containsPhrase(padded, k) {
				intent.Counts[name]++
			}
		}
	}

	switch len(intent.Counts) {
	case 0:
	case 1:
		for name := range intent.Counts {
			intent.Name = name
		}
	default:
		intent.Name = ontology.IntentMixed
	}
	return intent
}
