package search

import (
	"sort"
	"strings"
)

const (
	DefaultLimit = 50

	weightName       = 10
	weightNamePrefix = 20
	weightCode       = 50
	weightCodeExact  = 100
	weightBatch      = 5
)

// Candidate is anything searchable by name, code and batch numbers.
type Candidate interface {
	SearchName() string
	SearchCode() string
	SearchBatches() []string
}

type normalized struct {
	name    string
	code    string
	batches []string
}

func normalize(c Candidate) normalized {
	n := normalized{
		name: Normalize(c.SearchName()),
		code: Normalize(c.SearchCode()),
	}
	for _, b := range c.SearchBatches() {
		if nb := Normalize(b); nb != "" {
			n.batches = append(n.batches, nb)
		}
	}
	return n
}

// Score returns the candidate's score and whether every token matched at
// least one of its fields.
func Score(tokens []string, c Candidate) (int, bool) {
	return scoreNormalized(tokens, normalize(c))
}

func scoreNormalized(tokens []string, n normalized) (int, bool) {
	total := 0
	for _, tok := range tokens {
		s := 0
		if strings.Contains(n.name, tok) {
			s += weightName
			if strings.HasPrefix(n.name, tok) {
				s += weightNamePrefix
			}
		}
		if n.code != "" && strings.Contains(n.code, tok) {
			s += weightCode
			if n.code == tok {
				s += weightCodeExact
			}
		}
		for _, b := range n.batches {
			if strings.Contains(b, tok) {
				s += weightBatch
				break
			}
		}
		if s == 0 {
			return 0, false
		}
		total += s
	}
	return total, true
}

// Search filters items to those matching every token of query, best first,
// capped at limit (DefaultLimit when limit <= 0). An empty query returns items
// unchanged.
func Search[T Candidate](query string, items []T, limit int) []T {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return items
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	type hit struct {
		item  T
		score int
	}
	hits := make([]hit, 0)
	for _, item := range items {
		if score, ok := scoreNormalized(tokens, normalize(item)); ok {
			hits = append(hits, hit{item: item, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]T, len(hits))
	for i, h := range hits {
		out[i] = h.item
	}
	return out
}
