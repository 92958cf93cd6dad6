package ranking

import (
	"github.com/poiesic/wayfinder/bitset"
	"github.com/poiesic/wayfinder/core"
)

// DefaultLambda weighs relevance against diversity.
const DefaultLambda = 0.7

// Category heuristic used when either candidate has no tag bits.
const (
	sameCategorySimilarity  = 0.8
	noCategorySimilarity    = 0.1
	mixedCategorySimilarity = 0.3
)

// MMR selects up to target candidates by maximal marginal relevance. The top
// candidate is always first; each next pick maximizes
// lambda·final + (1−lambda)·(1 − max similarity to the picks so far).
// Lists at or below target are returned unchanged.
func MMR(candidates []*core.Candidate, target int, lambda float64) []*core.Candidate {
	if target <= 0 {
		return nil
	}
	if len(candidates) <= target {
		return candidates
	}

	selected := make([]*core.Candidate, 0, target)
	selected = append(selected, candidates[0])
	remaining := make([]*core.Candidate, len(candidates)-1)
	copy(remaining, candidates[1:])

	for len(selected) < target && len(remaining) > 0 {
		best, bestScore := -1, 0.0
		for i, c := range remaining {
			var maxSim float64
			for _, s := range selected {
				maxSim = max(maxSim, Similarity(c, s))
			}
			score := lambda*c.Scores.Final + (1-lambda)*(1-maxSim)
			if best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}
		selected = append(selected, remaining[best])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return selected
}

// Similarity compares two candidates by tag bits, falling back to a
// category heuristic when either has none.
func Similarity(a, b *core.Candidate) float64 {
	if a.Bits != 0 && b.Bits != 0 {
		return bitset.Similarity(a.Bits, b.Bits)
	}
	ca, cb := a.Place.Category, b.Place.Category
	switch {
	case ca == "" && cb == "":
		return noCategorySimilarity
	case ca == cb:
		return sameCategorySimilarity
	default:
		return mixedCategorySimilarity
	}
}
