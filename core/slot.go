package core

import "strings"

// SlotType is the kind of intent a slot captures.
type SlotType string

const (
	SlotTypeVibe       SlotType = "vibe"
	SlotTypeDish       SlotType = "dish"
	SlotTypeExperience SlotType = "experience"
	SlotTypeArea       SlotType = "area"
	SlotTypeCuisine    SlotType = "cuisine"
	SlotTypeDrink      SlotType = "drink"
)

// SlotTypes lists every known slot type.
var SlotTypes = []SlotType{
	SlotTypeVibe, SlotTypeDish, SlotTypeExperience, SlotTypeArea, SlotTypeCuisine, SlotTypeDrink,
}

// Valid reports whether t is a known slot type.
func (t SlotType) Valid() bool {
	for _, known := range SlotTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ReasonCode explains how a slot was extracted.
type ReasonCode string

const (
	ReasonExact        ReasonCode = "exact"
	ReasonPhrase       ReasonCode = "phrase"
	ReasonFuzzy        ReasonCode = "fuzzy"
	ReasonEditorial    ReasonCode = "editorial"
	ReasonHint         ReasonCode = "hint"
	ReasonCooccurrence ReasonCode = "cooccurrence"
)

// SlotFilter is what a slot expands to when searching the corpus.
type SlotFilter struct {
	Tags              []string `json:"tags,omitempty"`
	Categories        []string `json:"categories,omitempty"`
	ExcludeCategories []string `json:"exclude_categories,omitempty"`
	HasDish           bool     `json:"has_dish,omitempty"` // set on every slot when any dish slot was extracted
}

// Slot is a typed, canonicalized intent extracted from a query.
type Slot struct {
	Type       SlotType   `json:"type"`
	Canonical  string     `json:"canonical"`
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Matched    string     `json:"matched"`
	Reason     ReasonCode `json:"reason"`
	Position   int        `json:"position"`
	Filter     SlotFilter `json:"filter"`
}

// Key returns "type:canonical", the identity of a slot within a query.
func (s Slot) Key() string {
	return string(s.Type) + ":" + s.Canonical
}

// ParseSlotKey splits a "type:canonical" key.
func ParseSlotKey(key string) (SlotType, string, bool) {
	typ, canonical, ok := strings.Cut(key, ":")
	if !ok || canonical == "" || !SlotType(typ).Valid() {
		return "", "", false
	}
	return SlotType(typ), canonical, true
}
