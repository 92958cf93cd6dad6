package search

import (
	"strings"

	"github.com/poiesic/wayfinder/textnorm"
)

// wordSet returns the normalized words of text.
func wordSet(text string) map[string]bool {
	words := textnorm.Words(text)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// tagWords splits comma-joined tags into words, so "street_food" yields
// "street" and "food".
func tagWords(tags string) map[string]bool {
	return wordSet(strings.ReplaceAll(tags, "_", " "))
}

// containsAllWords reports whether every word is in set.
func containsAllWords(set map[string]bool, words []string) bool {
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !set[w] {
			return false
		}
	}
	return true
}

// containsAnyWord reports whether at least one word is in set.
func containsAnyWord(set map[string]bool, words []string) bool {
	for _, w := range words {
		if set[w] {
			return true
		}
	}
	return false
}

// containsPhrase reports whether phrase occurs as whole words in the
// padded normalized text.
func containsPhrase(padded, phrase string) bool {
	return phrase != "" && strings.Contains(padded, " "+phrase+" ")
}
