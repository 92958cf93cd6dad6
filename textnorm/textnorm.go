// Package textnorm normalizes free text so queries, synonym tables and place
// fields compare equal regardless of case, diacritics or punctuation.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Token is a word and its position within the whole text.
type Token struct {
	Text string
	Pos  int
}

// Fold lowercases s and strips diacritics ("Café" becomes "cafe").
func Fold(s string) string {
	// Transformers carry state, so the chain is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Normalize folds s and collapses every run of non-alphanumeric characters
// into a single space.
func Normalize(s string) string {
	return strings.Join(Words(s), " ")
}

// Words returns the folded words of s.
func Words(s string) []string {
	var out []string
	for _, seg := range Segments(s) {
		for _, tok := range seg {
			out = append(out, tok.Text)
		}
	}
	return out
}

// Segments splits s into punctuation-delimited segments of words. A phrase
// never spans two segments, so "tom yum, rooftop" cannot match "yum rooftop".
// Token positions count words across the whole text.
func Segments(s string) [][]Token {
	folded := Fold(s)

	var (
		segments [][]Token
		current  []Token
		word     strings.Builder
		pos      int
	)
	flushWord := func() {
		if word.Len() == 0 {
			return
		}
		current = append(current, Token{Text: word.String(), Pos: pos})
		pos++
		word.Reset()
	}
	flushSegment := func() {
		flushWord()
		if len(current) > 0 {
			segments = append(segments, current)
			current = nil
		}
	}

	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		case r == '\'' || r == '’':
			// "chef's" and "chefs" should compare equal
		case isSegmentBreak(r):
			flushSegment()
		default:
			flushWord()
		}
	}
	flushSegment()
	return segments
}

func isSegmentBreak(r rune) bool {
	switch r {
	case ',', '.', ';', ':', '!', '?', '/', '|', '(', ')', '[', ']', '{', '}', '&', '+', '\n', '\r':
		return true
	}
	return false
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "any": {}, "are": {}, "at": {}, "be": {}, "best": {},
	"by": {}, "can": {}, "for": {}, "from": {}, "good": {}, "great": {}, "i": {},
	"in": {}, "is": {}, "it": {}, "me": {}, "my": {}, "near": {}, "nearby": {},
	"of": {}, "on": {}, "or": {}, "place": {}, "places": {}, "some": {}, "somewhere": {},
	"spot": {}, "spots": {}, "that": {}, "the": {}, "to": {}, "want": {}, "we": {},
	"where": {}, "with": {}, "nice": {}, "find": {}, "looking": {},
}

// IsStopWord reports whether w carries no intent on its own.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// ContentWords returns the words of s that are not stop words.
func ContentWords(s string) []string {
	words := Words(s)
	out := words[:0]
	for _, w := range words {
		if !IsStopWord(w) {
			out = append(out, w)
		}
	}
	return out
}
