// Package resolver matches free-text item mentions to inventory entries.
//
// Resolution is deterministic: stages run in a fixed order and ties are
// broken by the first occurrence in the inventory list, so identical
// inputs always resolve to the same entry.
package resolver

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
)

// Stage identifies which matching strategy produced a match.
type Stage string

const (
	StageExact     Stage = "exact"
	StageSubstring Stage = "substring"
	StageToken     Stage = "token"
	StageSynonym   Stage = "synonym"
	StageSimilar   Stage = "similarity"
)

// SimilarityThreshold is the minimum similarity score (0-100) for the
// image-derived list matcher.
const SimilarityThreshold = 85

// Match is a resolved inventory entry.
type Match struct {
	Item  model.InventoryItem
	Index int
	Stage Stage
	Score int
}

// Resolver resolves item names against an inventory snapshot.
type Resolver struct {
	synonyms *Synonyms
}

// New creates a resolver using the given synonym table. A nil table disables
// the synonym stage.
func New(synonyms *Synonyms) *Resolver {
	if synonyms == nil {
		synonyms = &Synonyms{}
	}
	return &Resolver{synonyms: synonyms}
}

// Resolve finds the inventory entry named by query.
//
// Stages, in order: exact case-insensitive match; substring containment in
// either direction (shortest name wins); token overlap; synonym table.
func (r *Resolver) Resolve(query string, items []model.InventoryItem) (Match, bool) {
	q := r.normalize(query)
	if q == "" || len(items) == 0 {
		return Match{}, false
	}

	names := make([]string, len(items))
	for i, it := range items {
		names[i] = r.normalize(it.Name)
	}

	for i, n := range names {
		if n == q {
			return Match{Item: items[i], Index: i, Stage: StageExact, Score: 100}, true
		}
	}

	best := -1
	for i, n := range names {
		if n == "" {
			continue
		}
		if strings.Contains(n, q) || strings.Contains(q, n) {
			if best < 0 || len([]rune(n)) < len([]rune(names[best])) {
				best = i
			}
		}
	}
	if best >= 0 {
		return Match{Item: items[best], Index: best, Stage: StageSubstring}, true
	}

	queryTokens := strings.Fields(q)
	for i, n := range names {
		if sharesToken(queryTokens, strings.Fields(n)) {
			return Match{Item: items[i], Index: i, Stage: StageToken}, true
		}
	}

	terms := r.synonyms.termsFor(queryTokens, q)
	if len(terms) > 0 {
		for i, n := range names {
			for _, term := range terms {
				if strings.Contains(n, term) {
					return Match{Item: items[i], Index: i, Stage: StageSynonym}, true
				}
			}
		}
	}

	return Match{}, false
}

// MatchSimilar finds the best inventory entry for an image-derived name by
// normalized similarity. Only candidates scoring at or above
// SimilarityThreshold qualify; the highest score wins and ties go to the
// earlier entry.
func (r *Resolver) MatchSimilar(query string, items []model.InventoryItem) (Match, bool) {
	q := r.normalize(query)
	if q == "" {
		return Match{}, false
	}

	best := Match{Index: -1}
	for i, it := range items {
		score := Ratio(q, r.normalize(it.Name))
		if score >= SimilarityThreshold && score > best.Score {
			best = Match{Item: it, Index: i, Stage: StageSimilar, Score: score}
		}
	}
	if best.Index < 0 {
		return Match{}, false
	}
	return best, true
}

func (r *Resolver) normalize(s string) string {
	s = norm.NFKC.String(s)
	// Casers are stateful; one per call keeps the resolver goroutine-safe.
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

func sharesToken(query, name []string) bool {
	for _, q := range query {
		for _, n := range name {
			if q == n {
				return true
			}
		}
	}
	return false
}
