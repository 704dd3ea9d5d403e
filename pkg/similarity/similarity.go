// Package similarity provides request-text similarity scoring for the
// semantic cache.
//
// The default scorer is a Jaccard index over case-insensitive word sets.
// Stronger methods (e.g. embedding cosine similarity) can be swapped in by
// implementing Scorer; the cache orchestrator depends only on the interface.
package similarity

import "strings"

// Scorer computes a similarity between two request texts.
//
// Implementations must be symmetric (Score(a,b) == Score(b,a)), bounded to
// [0,1], deterministic, and safe for concurrent use.
type Scorer interface {
	Score(a, b string) float64
}

// Jaccard scores texts by the Jaccard index of their word sets:
// |intersection| / |union| after case-insensitive whitespace tokenization.
// Empty or whitespace-only input always scores 0.0.
type Jaccard struct{}

// NewJaccard creates a Jaccard scorer.
func NewJaccard() Jaccard {
	return Jaccard{}
}

// Score implements Scorer.
func (Jaccard) Score(a, b string) float64 {
	setA := tokenize(a)
	setB := tokenize(b)

	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for word := range setA {
		if _, ok := setB[word]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// tokenize splits text into a set of lowercase words.
func tokenize(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}
