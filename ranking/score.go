package ranking

import (
	"math"
	"strings"

	"github.com/poiesic/wayfinder/bitset"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/ontology"
	"github.com/poiesic/wayfinder/textnorm"
)

const (
	// noiseThreshold is the noise level above which quiet requests are penalized.
	noiseThreshold = 0.4
	noiseFactor    = 0.5

	// profileShare is the share of the session profile in the vibe score
	// when a slot target is also present.
	profileShare = 0.3

	seenNovelty       = 0.1
	unseenNovelty     = 0.5
	noveltyPreference = 0.3
)

// Editorial signal weights; the weighted sum is clamped to 1 and scaled by
// the mode's signal cap.
var signalWeights = struct {
	editorPick, greatView, localFavorite                     float64
	quality, interest, trend, novelty, extraordinary, hqExpr float64
}{
	editorPick:    0.4,
	greatView:     0.15,
	localFavorite: 0.15,
	quality:       0.3,
	interest:      0.15,
	trend:         0.15,
	novelty:       0.1,
	extraordinary: 0.25,
	hqExpr:        0.2,
}

// Score computes the stage 1 scores of every candidate:
//
//	base = w_search·search + w_vibe·vibe + w_scenario·scenario + w_novelty·novelty + signal_boost − noise_penalty
//
// Raw search relevance is scaled by the best raw score in the list.
func Score(candidates []*core.Candidate, ctx Context) []*core.Candidate {
	var maxRaw float64
	for _, c := range candidates {
		maxRaw = max(maxRaw, c.Scores.SearchRaw)
	}

	w := ctx.Weights
	for _, c := range candidates {
		s := &c.Scores
		s.Search = 0
		if maxRaw > 0 {
			s.Search = clamp(c.Scores.SearchRaw/maxRaw, 0, 1)
		}
		s.Vibe = vibeScore(c, ctx)
		s.ScenarioBonus = scenarioBonus(c.Place, ctx.Scenarios)
		s.Novelty = noveltyScore(c.Place, ctx.Session)
		s.SignalBoost = signalBoost(&c.Place.Signals, w.SignalCap)
		s.NoisePenalty = 0
		if ctx.Quiet {
			s.NoisePenalty = noisePenalty(c.Place.Signals.NoiseLevel)
		}

		s.Base = w.Search*s.Search +
			w.Vibe*s.Vibe +
			w.Scenario*s.ScenarioBonus +
			w.Novelty*s.Novelty +
			s.SignalBoost -
			s.NoisePenalty
		s.Final = s.Base
	}
	return candidates
}

// vibeScore is the Jaccard similarity to the target, blended with the
// session profile when there is one.
func vibeScore(c *core.Candidate, ctx Context) float64 {
	var profile float64
	hasProfile := len(ctx.Profile) > 0 && ctx.Encoder != nil
	if hasProfile {
		profile = ctx.Encoder.WeightedSimilarity(c.Bits, ctx.Profile)
	}

	switch {
	case ctx.TargetBits != 0 && hasProfile:
		return (1-profileShare)*bitset.Similarity(c.Bits, ctx.TargetBits) + profileShare*profile
	case ctx.TargetBits != 0:
		return bitset.Similarity(c.Bits, ctx.TargetBits)
	default:
		return profile
	}
}

// scenarioBonus adds step per distinct positive keyword found in the place
// text and subtracts step per negative one, each side capped per scenario.
func scenarioBonus(p *core.Place, scenarios []ontology.Scenario) float64 {
	if len(scenarios) == 0 {
		return 0
	}
	text := placeText(p)

	var bonus float64
	for _, sc := range scenarios {
		bonus += min(float64(countPhrases(text, sc.Positive))*sc.Step, sc.Cap)
		bonus -= min(float64(countPhrases(text, sc.Negative))*sc.Step, sc.Cap)
	}
	return clamp(bonus, -1, 1)
}

// noveltyScore prefers the place's own signal, then the session estimate.
func noveltyScore(p *core.Place, session *core.SessionProfile) float64 {
	if p.Signals.Novelty > 0 {
		return p.Signals.Novelty
	}
	if session.HasSeen(p.Id) {
		return seenNovelty
	}
	var pref float64
	if session != nil {
		pref = session.NoveltyPreference
	}
	return unseenNovelty + noveltyPreference*pref
}

func signalBoost(s *core.Signals, cap float64) float64 {
	w := signalWeights
	var raw float64
	if s.EditorPick {
		raw += w.editorPick
	}
	if s.GreatView {
		raw += w.greatView
	}
	if s.LocalFavorite {
		raw += w.localFavorite
	}
	raw += w.quality*s.Quality +
		w.interest*s.Interest +
		w.trend*s.Trend +
		w.novelty*s.Novelty +
		w.extraordinary*s.Extraordinary +
		w.hqExpr*s.HighQualityExperience
	return cap * clamp(raw, 0, 1)
}

func noisePenalty(noise *float64) float64 {
	if noise == nil {
		return 0
	}
	return noiseFactor * math.Max(0, *noise-noiseThreshold)
}

// placeText is the padded, normalized text scenario keywords are matched against.
func placeText(p *core.Place) string {
	parts := []string{p.Name, p.Category, strings.ReplaceAll(p.Tags, "_", " "), p.Summary}
	return " " + textnorm.Normalize(strings.Join(parts, " ")) + " "
}

func countPhrases(padded string, phrases []string) int {
	var n int
	for _, ph := range phrases {
		if ph != "" && strings.Contains(padded, " "+ph+" ") {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
