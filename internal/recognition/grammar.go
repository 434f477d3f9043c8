package recognition

import (
	"sort"
	"strings"
)

// fillerWords are always merged into a caller-supplied grammar. A
// vocabulary of bare keywords makes the decoder force-fit every noise
// into a keyword; common function words give it somewhere else to go.
var fillerWords = []string{
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to",
	"for", "of", "with", "by", "from", "is", "are", "was", "were",
	"be", "been", "have", "has", "had", "do", "does", "did", "will",
	"would", "could", "should", "may", "might", "must", "shall",
	"can", "it", "its", "this", "that", "these", "those", "i",
	"you", "he", "she", "we", "they", "my", "your", "his", "her",
	"our", "their", "me", "him", "us", "them",
}

// MergeGrammar lowercases the words, folds in the filler vocabulary,
// and dedupes. Empty input means no grammar at all, so it returns nil
// rather than a filler-only vocabulary.
func MergeGrammar(words []string) []string {
	cleaned := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			cleaned = append(cleaned, w)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(cleaned)+len(fillerWords))
	var out []string
	for _, w := range append(cleaned, fillerWords...) {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}
