package search

import (
	"context"
	"slices"

	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/ontology"
	"github.com/poiesic/wayfinder/storage"
	"github.com/poiesic/wayfinder/textnorm"
)

// Base scores of slot lookups. Tag matches add up per matched tag.
const (
	ScoreCategory = 400
	ScoreArea     = 600
)

// Slot search strategies as reported to metrics.
const (
	slotStrategyExpansion = "expansion"
	slotStrategyLabel     = "label"
)

// searchSlot finds places by the slot's expansion tags, categories and
// areas. When that finds nothing the slot label is searched as free text.
func (s *Searcher) searchSlot(ctx context.Context, req Request, monitor SearchMonitor) ([]hit, error) {
	slot := req.Slot
	def, _ := s.registry.Slot(slot.Key())

	hits, err := s.withinRadius(ctx, req, monitor, func(ctx context.Context, filter storage.PlaceFilter) ([]hit, error) {
		return s.slotLookup(ctx, slot, def, filter)
	})
	if err != nil {
		return nil, err
	}
	monitor.AfterSlotLookup(slot, len(hits))
	if len(hits) > 0 {
		s.metrics.RecordSlotSearch(string(slot.Type), slotStrategyExpansion)
		return hits, nil
	}

	s.metrics.RecordSlotSearch(string(slot.Type), slotStrategyLabel)
	labelReq := req
	labelReq.Slot = nil
	labelReq.Query = slot.Label
	hits, err = s.searchText(ctx, labelReq, monitor)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(hits, func(h hit) bool { return !s.slotAllows(slot, h.place) }), nil
}

func (s *Searcher) slotLookup(ctx context.Context, slot *core.Slot, def *ontology.SlotDef, filter storage.PlaceFilter) ([]hit, error) {
	var (
		scores = make(map[core.ID]*hit)
		order  []core.ID
	)
	add := func(p *core.Place, score float64) {
		if h, ok := scores[p.Id]; ok {
			h.score += score
			return
		}
		scores[p.Id] = &hit{place: p, score: score}
		order = append(order, p.Id)
	}

	if len(slot.Filter.Tags) > 0 {
		places, err := guard(ctx, s, func(ctx context.Context) ([]*core.Place, error) {
			return s.places.FindByTags(ctx, slot.Filter.Tags, filter)
		})
		if err != nil {
			return nil, err
		}
		for _, p := range places {
			var matched int
			for _, tag := range p.TagList() {
				if slices.Contains(slot.Filter.Tags, tag) {
					matched++
				}
			}
			add(p, float64(ScoreTag*max(matched, 1)))
		}
	}

	var areas []string
	if def != nil {
		areas = normalizeAll(def.Areas)
	}
	categories := normalizeAll(slot.Filter.Categories)
	if len(categories) > 0 || len(areas) > 0 {
		places, err := guard(ctx, s, func(ctx context.Context) ([]*core.Place, error) {
			return s.places.ScanPlaces(ctx, filter)
		})
		if err != nil {
			return nil, err
		}
		for _, p := range places {
			if p.Category != "" && slices.Contains(categories, textnorm.Normalize(p.Category)) {
				add(p, ScoreCategory)
			}
			if p.Area != "" && slices.Contains(areas, textnorm.Normalize(p.Area)) {
				add(p, ScoreArea)
			}
		}
	}

	hits := make([]hit, 0, len(order))
	for _, id := range order {
		h := scores[id]
		if s.slotAllows(slot, h.place) {
			hits = append(hits, *h)
		}
	}
	return hits, nil
}

// slotAllows applies the slot's excluded categories and, for vibe slots in
// a query that named a dish, hides drink-only venues.
func (s *Searcher) slotAllows(slot *core.Slot, p *core.Place) bool {
	category := textnorm.Normalize(p.Category)
	for _, ex := range slot.Filter.ExcludeCategories {
		if category != "" && textnorm.Normalize(ex) == category {
			return false
		}
	}
	if slot.Filter.HasDish && slot.Type == core.SlotTypeVibe && s.registry.SuppressedByDish(p.Category, p.TagList()) {
		return false
	}
	return true
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
