package compose

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/ranking"
	"github.com/poiesic/wayfinder/search"
)

// builder accumulates rails and the place ids they already hold. spare
// lists, in admission order, every candidate a later rail may still draw
// from.
type builder struct {
	size  int
	used  map[core.ID]struct{}
	known map[core.ID]struct{}
	spare []*core.Candidate
	rails []core.Rail
}

func newBuilder(size int) *builder {
	if size <= 0 || size > core.MaxRailItems {
		size = core.MaxRailItems
	}
	return &builder{
		size:  size,
		used:  make(map[core.ID]struct{}),
		known: make(map[core.ID]struct{}),
		rails: make([]core.Rail, 0, core.MaxRails),
	}
}

func (b *builder) needed() int {
	return core.MaxRails - len(b.rails)
}

// admit records cands as places some rail could hold.
func (b *builder) admit(cands []*core.Candidate) {
	for _, c := range cands {
		if _, ok := b.known[c.Place.Id]; ok {
			continue
		}
		b.known[c.Place.Id] = struct{}{}
		b.spare = append(b.spare, c)
	}
}

// quota caps the next rail so that each rail still missing after it can get
// at least one of the places left.
func (b *builder) quota() int {
	left := len(b.known) - len(b.used)
	return max(1, min(b.size, left-(b.needed()-1)))
}

// fresh drops candidates already placed in a rail, and repeats within cands.
func (b *builder) fresh(cands []*core.Candidate) []*core.Candidate {
	seen := make(map[core.ID]struct{}, len(cands))
	out := make([]*core.Candidate, 0, len(cands))
	for _, c := range cands {
		if _, ok := b.used[c.Place.Id]; ok {
			continue
		}
		if _, ok := seen[c.Place.Id]; ok {
			continue
		}
		seen[c.Place.Id] = struct{}{}
		out = append(out, c)
	}
	return out
}

// add appends a rail holding cands. Empty rails are dropped.
func (b *builder) add(rail core.Rail, cands []*core.Candidate) bool {
	if len(cands) == 0 || b.needed() == 0 {
		return false
	}
	rail.Step = fmt.Sprintf("step_%d", len(b.rails)+1)
	rail.Items = make([]core.RailItem, 0, len(cands))
	b.admit(cands)
	for _, c := range cands {
		b.used[c.Place.Id] = struct{}{}
		rail.Items = append(rail.Items, toItem(c))
	}
	b.rails = append(b.rails, rail)
	return true
}

// addSlotRail diversifies a slot's ranked list after removing places
// already shown. A slot left with nothing is skipped.
func (c *Composer) addSlotRail(b *builder, slot *core.Slot, ranked []*core.Candidate) {
	if b.needed() == 0 {
		return
	}
	picked := ranking.MMR(b.fresh(ranked), b.quota(), c.cfg.MMRLambda)
	if !b.add(core.Rail{
		Label:  slotLabel(slot),
		Origin: "slot:" + slot.Key(),
		Reason: slotReason(slot),
	}, picked) {
		c.logger.Debug("slot produced no candidates, skipped", "slot", slot.Key())
	}
}

// backfill adds one rail from a free-text search with a wider radius and
// without the area and quality filters.
func (c *Composer) backfill(ctx context.Context, b *builder, req Request, profile *core.SessionProfile) {
	sreq := search.Request{Query: req.Query, Geo: req.Geo, Limit: c.cfg.CandidateLimit}
	if req.Geo != nil {
		sreq.RadiusKm = c.searcher.SoftRadiusKm() * c.cfg.BroadenFactor
	}
	cands := b.fresh(c.rank(req, profile, c.searcher.Search(ctx, sreq)))
	b.admit(cands)
	picked := ranking.MMR(cands, b.quota(), c.cfg.MMRLambda)
	b.add(core.Rail{
		Label:  "More to explore",
		Origin: "backfill",
		Reason: fmt.Sprintf("Broader matches for %q", req.Query),
	}, picked)
}

// theme is a global suggestion rail.
type theme struct {
	id     string
	label  string
	reason string
	match  func(*core.Candidate) bool
	order  func(a, b *core.Candidate) int
}

// suggest fills the remaining rails from the global pool followed by
// whatever slot and backfill candidates no rail took. Rails split what is
// left so that every missing rail gets at least one place when enough exist.
func (c *Composer) suggest(b *builder, req Request) {
	pool := b.fresh(b.spare)

	for _, th := range c.themes(req) {
		if b.needed() == 0 {
			return
		}
		pool = b.fresh(pool)
		if len(pool) == 0 {
			return
		}
		share := max(1, min(b.size, len(pool)/b.needed()))

		var picked []*core.Candidate
		for _, cand := range pool {
			if th.match == nil || th.match(cand) {
				picked = append(picked, cand)
			}
		}
		if th.order != nil {
			slices.SortStableFunc(picked, th.order)
		}
		if len(picked) > share {
			picked = picked[:share]
		}
		b.add(core.Rail{Label: th.label, Origin: "suggested:" + th.id, Reason: th.reason}, picked)
	}

	for b.needed() > 0 {
		pool = b.fresh(pool)
		if len(pool) == 0 {
			return
		}
		share := max(1, min(b.size, len(pool)/b.needed()))
		b.add(core.Rail{
			Label:  "More suggestions",
			Origin: "suggested:more",
			Reason: "More places you might like",
		}, pool[:min(share, len(pool))])
	}
}

func (c *Composer) themes(req Request) []theme {
	themes := []theme{{
		id:     "editors_picks",
		label:  "Editor's picks",
		reason: "Hand-picked by our editors",
		match:  func(cand *core.Candidate) bool { return c.searcher.IsQuality(cand.Place) },
	}}

	if req.Geo != nil {
		radius := c.searcher.SoftRadiusKm()
		themes = append(themes, theme{
			id:     "nearby",
			label:  "Nearby",
			reason: "Close to where you are",
			match:  func(cand *core.Candidate) bool { return cand.DistanceKm != nil && *cand.DistanceKm <= radius },
			order:  func(a, b *core.Candidate) int { return cmp.Compare(a.Distance(), b.Distance()) },
		})
	} else {
		themes = append(themes, theme{
			id:     "trending",
			label:  "Trending now",
			reason: "Popular right now",
			match:  func(cand *core.Candidate) bool { return cand.Place.Signals.Trend > 0 },
			order: func(a, b *core.Candidate) int {
				return cmp.Compare(b.Place.Signals.Trend, a.Place.Signals.Trend)
			},
		})
	}

	return append(themes,
		theme{
			id:     "discover",
			label:  "Worth discovering",
			reason: "Something a little different",
			match: func(cand *core.Candidate) bool {
				s := cand.Place.Signals
				return s.Novelty > 0 || s.Extraordinary > 0 || s.Interest > 0
			},
		},
		theme{
			id:     "suggested",
			label:  "Suggested for you",
			reason: "Popular picks around the city",
		},
	)
}

// admitGlobal adds the global browse pool, the last resort of every rail.
func (c *Composer) admitGlobal(ctx context.Context, b *builder, req Request, profile *core.SessionProfile) {
	b.admit(c.rank(req, profile, c.searcher.Search(ctx, search.Request{Geo: req.Geo})))
}

// rank runs the scoring and proximity stages for lists without a slot.
func (c *Composer) rank(req Request, profile *core.SessionProfile, cands []*core.Candidate) []*core.Candidate {
	rctx := ranking.NewContext(c.registry, c.encoder, ranking.Params{
		Mode:    req.Mode,
		Query:   req.Query,
		Session: profile,
		Origin:  req.Geo,
	})
	return ranking.Proximity(ranking.Score(cands, rctx), rctx)
}

func slotLabel(slot *core.Slot) string {
	if slot.Label != "" {
		return slot.Label
	}
	return humanize(slot.Canonical)
}

func slotReason(slot *core.Slot) string {
	if slot.Matched == "" {
		return "Picked for your search"
	}
	switch slot.Reason {
	case core.ReasonFuzzy:
		return fmt.Sprintf("Closest match for %q", slot.Matched)
	case core.ReasonEditorial:
		return fmt.Sprintf("Suggested for %q", slot.Matched)
	case core.ReasonHint:
		return fmt.Sprintf("Related to %q", slot.Matched)
	case core.ReasonCooccurrence:
		return "Often found alongside your other picks"
	default:
		return fmt.Sprintf("Because you asked for %q", slot.Matched)
	}
}
