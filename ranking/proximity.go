package ranking

import (
	"cmp"
	"math"
	"slices"

	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/geo"
)

// proximityScaleKm is the distance at which the bonus decays by 1/e.
const proximityScaleKm = 2.0

// ProximityBonus is k·exp(−d/2).
func ProximityBonus(k, distanceKm float64) float64 {
	return k * math.Exp(-distanceKm/proximityScaleKm)
}

// Proximity adds the distance bonus when the request has an origin, then
// stable-sorts by final score descending and distance ascending.
func Proximity(candidates []*core.Candidate, ctx Context) []*core.Candidate {
	for _, c := range candidates {
		c.Scores.ProximityBonus = 0
		if ctx.Origin != nil {
			if c.DistanceKm == nil {
				c.DistanceKm = geo.Distance(ctx.Origin, c.Place.Coords)
			}
			if c.DistanceKm != nil {
				c.Scores.ProximityBonus = ProximityBonus(ctx.Weights.Proximity, *c.DistanceKm)
			}
		}
		c.Scores.Final = c.Scores.Base + c.Scores.ProximityBonus
	}

	slices.SortStableFunc(candidates, func(a, b *core.Candidate) int {
		if c := cmp.Compare(b.Scores.Final, a.Scores.Final); c != 0 {
			return c
		}
		return cmp.Compare(a.Distance(), b.Distance())
	})
	return candidates
}
