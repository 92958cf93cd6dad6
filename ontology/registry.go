package ontology

import (
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/wayfinder/config"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/textnorm"
)

// Surface is a normalized synonym surface form bound to its slot.
type Surface struct {
	Text   string // normalized, space separated
	Tokens int
	Key    string // "type:canonical"
	Type   core.SlotType
	// Denylist holds normalized surface forms that block this entry.
	Denylist []string
}

// Rule is an editorial rule with normalized triggers.
type Rule struct {
	Triggers []string
	Key      string
}

// Registry is the compiled, read-only view of an Ontology.
// All methods are safe for concurrent use.
type Registry struct {
	ontology *Ontology

	slots      map[string]*SlotDef
	slotKeys   []string
	expansion  map[string][]string // slot key -> expansion tags
	surfaces   map[string][]Surface
	single     []Surface // one-token surfaces, fuzzy targets
	maxTokens  int
	groups     map[string][]string // token -> synonym group
	rules      []Rule
	hints      map[string]string
	tagSlots   map[string][]string
	tags       []string
	intents    IntentKeywords
	scenarios  []Scenario
	quiet      map[string]bool
	thresholds map[core.SlotType]float64
	vibeOnly   map[string]bool
	whitelist  map[string]bool
}

// NewRegistry validates o and builds its lookup tables.
func NewRegistry(o *Ontology) (*Registry, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: ontology is nil", config.ErrInvalid)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		ontology:   o,
		slots:      make(map[string]*SlotDef, len(o.Slots)),
		expansion:  make(map[string][]string, len(o.Slots)),
		surfaces:   make(map[string][]Surface),
		groups:     make(map[string][]string),
		hints:      make(map[string]string, len(o.Hints)),
		tagSlots:   make(map[string][]string),
		quiet:      make(map[string]bool, len(o.QuietSlots)),
		thresholds: make(map[core.SlotType]float64, len(o.Fuzzy.Thresholds)),
		vibeOnly:   toSet(o.DishContext.VibeOnlyCategories),
		whitelist:  toSet(o.DishContext.Whitelist),
	}

	tagSeen := make(map[string]struct{})
	addTag := func(tag string) string {
		tag = normalizeTag(tag)
		if _, ok := tagSeen[tag]; !ok && tag != "" {
			tagSeen[tag] = struct{}{}
			r.tags = append(r.tags, tag)
		}
		return tag
	}
	for _, tag := range o.Bitset.Preferred {
		addTag(tag)
	}

	for i := range o.Slots {
		def := &o.Slots[i]
		key := def.Key()
		r.slots[key] = def
		r.slotKeys = append(r.slotKeys, key)
		for _, tag := range def.Tags {
			tag = addTag(tag)
			r.expansion[key] = appendUnique(r.expansion[key], tag)
			r.tagSlots[tag] = appendUnique(r.tagSlots[tag], key)
		}
	}

	for i := range o.Synonyms {
		entry := &o.Synonyms[i]
		key := entry.Key()
		for _, tag := range entry.Tags {
			tag = addTag(tag)
			r.expansion[key] = appendUnique(r.expansion[key], tag)
			r.tagSlots[tag] = appendUnique(r.tagSlots[tag], key)
		}

		deny := make([]string, 0, len(entry.Denylist))
		for _, d := range entry.Denylist {
			if n := textnorm.Normalize(d); n != "" {
				deny = append(deny, n)
			}
		}

		var group []string
		for _, syn := range entry.Synonyms {
			text := textnorm.Normalize(syn)
			if text == "" {
				continue
			}
			s := Surface{Text: text, Tokens: strings.Count(text, " ") + 1, Key: key, Type: entry.Type, Denylist: deny}
			r.surfaces[text] = append(r.surfaces[text], s)
			if s.Tokens > r.maxTokens {
				r.maxTokens = s.Tokens
			}
			if s.Tokens == 1 {
				r.single = append(r.single, s)
				group = appendUnique(group, text)
			}
		}
		group = appendUnique(group, entry.Canonical)
		for _, token := range group {
			for _, g := range group {
				r.groups[token] = appendUnique(r.groups[token], g)
			}
		}
	}

	for _, rule := range o.Editorial {
		compiled := Rule{Key: rule.Slot}
		for _, trig := range rule.Triggers {
			if n := textnorm.Normalize(trig); n != "" {
				compiled.Triggers = append(compiled.Triggers, n)
			}
		}
		r.rules = append(r.rules, compiled)
	}
	for _, hint := range o.Hints {
		r.hints[textnorm.Normalize(hint.Token)] = hint.Slot
	}

	r.intents = IntentKeywords{
		Vibe:         normalizeAll(o.Intents.Vibe),
		Feature:      normalizeAll(o.Intents.Feature),
		Navigational: normalizeAll(o.Intents.Navigational),
		Area:         normalizeAll(o.Intents.Area),
	}
	for _, sc := range o.Scenarios {
		sc.Triggers = normalizeAll(sc.Triggers)
		sc.Positive = normalizeAll(sc.Positive)
		sc.Negative = normalizeAll(sc.Negative)
		r.scenarios = append(r.scenarios, sc)
	}
	for _, key := range o.QuietSlots {
		r.quiet[key] = true
	}
	for typ, th := range o.Fuzzy.Thresholds {
		r.thresholds[core.SlotType(typ)] = th
	}
	return r, nil
}

// Ontology returns the source document. Callers must not modify it.
func (r *Registry) Ontology() *Ontology {
	return r.ontology
}

// Slot returns the definition for a "type:canonical" key.
func (r *Registry) Slot(key string) (*SlotDef, bool) {
	def, ok := r.slots[key]
	return def, ok
}

// SlotKeys returns every slot key in declaration order.
func (r *Registry) SlotKeys() []string {
	return slices.Clone(r.slotKeys)
}

// ExpansionTags returns the tags a slot expands to.
func (r *Registry) ExpansionTags(key string) []string {
	return slices.Clone(r.expansion[key])
}

// NewSlot materializes a slot for key. It returns false for unknown keys.
func (r *Registry) NewSlot(key string, confidence float64, matched string, reason core.ReasonCode, pos int) (core.Slot, bool) {
	def, ok := r.slots[key]
	if !ok {
		return core.Slot{}, false
	}
	return core.Slot{
		Type:       def.Type,
		Canonical:  def.ID,
		Label:      def.Label,
		Confidence: confidence,
		Matched:    matched,
		Reason:     reason,
		Position:   pos,
		Filter: core.SlotFilter{
			Tags:              r.ExpansionTags(key),
			Categories:        slices.Clone(def.Categories),
			ExcludeCategories: slices.Clone(def.ExcludeCategories),
		},
	}, true
}

// Lookup returns the surfaces registered for a normalized span.
func (r *Registry) Lookup(span string) []Surface {
	return r.surfaces[span]
}

// MaxSpanTokens is the token length of the longest surface form.
func (r *Registry) MaxSpanTokens() int {
	return r.maxTokens
}

// SingleTokenSurfaces returns the fuzzy-matching targets.
func (r *Registry) SingleTokenSurfaces() []Surface {
	return r.single
}

// Expand returns the synonym group of a normalized token, or the token itself.
func (r *Registry) Expand(token string) []string {
	if g, ok := r.groups[token]; ok {
		return slices.Clone(g)
	}
	return []string{token}
}

// EditorialRules returns the compiled editorial rules.
func (r *Registry) EditorialRules() []Rule {
	return r.rules
}

// Hint returns the slot key hinted by an unmatched token.
func (r *Registry) Hint(token string) (string, bool) {
	key, ok := r.hints[token]
	return key, ok
}

// SlotsForTag returns the slots that expand to tag.
func (r *Registry) SlotsForTag(tag string) []string {
	return r.tagSlots[tag]
}

// Tags returns every known tag, preferred ones first.
func (r *Registry) Tags() []string {
	return slices.Clone(r.tags)
}

// PreferredTags returns the frozen leading tags of the bitset encoder.
func (r *Registry) PreferredTags() []string {
	return slices.Clone(r.ontology.Bitset.Preferred)
}

// Intents returns the normalized intent keyword sets.
func (r *Registry) Intents() IntentKeywords {
	return r.intents
}

// FieldWeights returns the weight profile for an intent, falling back to default.
func (r *Registry) FieldWeights(intent string) FieldWeights {
	if w, ok := r.ontology.FieldWeights[intent]; ok {
		return w
	}
	return r.ontology.FieldWeights[IntentDefault]
}

// Mode returns the weights of a ranking mode, falling back to light.
func (r *Registry) Mode(m core.Mode) ModeWeights {
	if w, ok := r.ontology.Modes[string(m)]; ok {
		return w
	}
	return r.ontology.Modes[string(core.ModeLight)]
}

// Scenarios returns the normalized scenarios.
func (r *Registry) Scenarios() []Scenario {
	return r.scenarios
}

// IsQuietSlot reports whether a slot calls for a quiet atmosphere.
func (r *Registry) IsQuietSlot(key string) bool {
	return r.quiet[key]
}

// FuzzyEnabled reports whether typo-tolerant matching is on.
func (r *Registry) FuzzyEnabled() bool {
	return r.ontology.Fuzzy.Enabled
}

// FuzzyMinLength is the shortest token considered for fuzzy matching.
func (r *Registry) FuzzyMinLength() int {
	return r.ontology.Fuzzy.MinLength
}

// FuzzyThreshold returns the acceptance threshold for a slot type.
func (r *Registry) FuzzyThreshold(t core.SlotType) float64 {
	if th, ok := r.thresholds[t]; ok {
		return th
	}
	return r.ontology.Fuzzy.Default
}

// SuppressedByDish reports whether a place with this category and tags is a
// drink-only venue to hide once a dish has been requested.
func (r *Registry) SuppressedByDish(category string, tags []string) bool {
	category = normalizeTag(category)
	if !r.vibeOnly[category] || r.whitelist[category] {
		return false
	}
	for _, t := range tags {
		if r.whitelist[t] {
			return false
		}
	}
	return true
}

func normalizeTag(tag string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), " ", "_")
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := textnorm.Normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func toSet(in []string) map[string]bool {
	out := make(map[string]bool, len(in))
	for _, s := range in {
		out[normalizeTag(s)] = true
	}
	return out
}

func appendUnique(list []string, s string) []string {
	if s == "" || slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}
