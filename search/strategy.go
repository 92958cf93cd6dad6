package search

import (
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/query"
	"github.com/poiesic/wayfinder/textnorm"
)

// Base scores of the keyword strategies, highest priority first.
const (
	ScoreExactName     = 1000
	ScoreTokenizedName = 800
	ScoreTag           = 600
	ScoreSummary       = 400
	ScoreSynonymFuzzy  = 200
)

// defaultFuzzyThreshold is the similarity a word needs to count as a fuzzy hit.
const defaultFuzzyThreshold = 0.75

// TextQuery is a free-text query prepared for keyword matching.
type TextQuery struct {
	// Normalized is the whole query, folded and single-spaced.
	Normalized string
	// Tokens are the content words of the query.
	Tokens []string
	// Expanded holds the synonym group of each token, in token order.
	Expanded [][]string
}

// Strategy scores a place against a query. Zero means no match.
type Strategy interface {
	Name() string
	Score(place *core.Place, q *TextQuery) float64
}

// DefaultStrategies returns the keyword chain in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		ExactName{},
		TokenizedName{},
		TagMatch{},
		SummaryMatch{},
		SynonymFuzzy{Threshold: defaultFuzzyThreshold},
	}
}

// ExactName matches when the normalized name equals the query.
type ExactName struct{}

func (ExactName) Name() string { return "exact_name" }

func (ExactName) Score(place *core.Place, q *TextQuery) float64 {
	if q.Normalized != "" && textnorm.Normalize(place.Name) == q.Normalized {
		return ScoreExactName
	}
	return 0
}

// TokenizedName matches when every query token is a word of the name.
type TokenizedName struct{}

func (TokenizedName) Name() string { return "tokenized_name" }

func (TokenizedName) Score(place *core.Place, q *TextQuery) float64 {
	if containsAllWords(wordSet(place.Name), q.Tokens) {
		return ScoreTokenizedName
	}
	return 0
}

// TagMatch matches when any query token is a word of the place tags.
type TagMatch struct{}

func (TagMatch) Name() string { return "tag" }

func (TagMatch) Score(place *core.Place, q *TextQuery) float64 {
	if containsAnyWord(tagWords(place.Tags), q.Tokens) {
		return ScoreTag
	}
	return 0
}

// SummaryMatch matches when any query token is a word of the summary.
type SummaryMatch struct{}

func (SummaryMatch) Name() string { return "summary" }

func (SummaryMatch) Score(place *core.Place, q *TextQuery) float64 {
	if containsAnyWord(wordSet(place.Summary), q.Tokens) {
		return ScoreSummary
	}
	return 0
}

// SynonymFuzzy matches when any synonym of any token is close, by edit
// distance ratio, to a word of the name, tags or summary.
type SynonymFuzzy struct {
	Threshold float64
}

func (SynonymFuzzy) Name() string { return "synonym_fuzzy" }

func (s SynonymFuzzy) Score(place *core.Place, q *TextQuery) float64 {
	words := wordSet(place.Name)
	for w := range tagWords(place.Tags) {
		words[w] = true
	}
	for w := range wordSet(place.Summary) {
		words[w] = true
	}

	for _, group := range q.Expanded {
		for _, syn := range group {
			if words[syn] {
				return ScoreSynonymFuzzy
			}
			for w := range words {
				if query.Similarity(syn, w) >= s.Threshold {
					return ScoreSynonymFuzzy
				}
			}
		}
	}
	return 0
}
