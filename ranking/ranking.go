package ranking

import "github.com/poiesic/wayfinder/core"

// Rank runs the three stages and returns at most target candidates.
func Rank(candidates []*core.Candidate, ctx Context, target int, lambda float64) []*core.Candidate {
	return MMR(Proximity(Score(candidates, ctx), ctx), target, lambda)
}
