// Package matcher resolves free-text workstream names to existing tasks.
package matcher

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/hochfrequenz/project-tracker/internal/domain"
)

// MaxDistance is the largest edit distance still accepted as a match
const MaxDistance = 3

// Normalize lowercases and trims a name for comparison
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Levenshtein returns the unit-cost edit distance between a and b
func Levenshtein(a, b string) int {
	return fuzzy.LevenshteinDistance(a, b)
}

// FindMatchingIssue returns the task whose title best matches name, or nil.
//
// Strategies are tried in order and the first hit wins: exact match,
// substring of a title (first in candidate order), then the closest title
// by edit distance if it is within MaxDistance.
func FindMatchingIssue(name string, candidates []*domain.Task) *domain.Task {
	titles := make([]string, len(candidates))
	for i, c := range candidates {
		if c != nil {
			titles[i] = c.Title
		}
	}
	idx := FindMatchIndex(name, titles)
	if idx < 0 {
		return nil
	}
	return candidates[idx]
}

// FindMatchIndex applies the same strategies as FindMatchingIssue to plain
// titles and returns the index of the match, or -1.
func FindMatchIndex(name string, titles []string) int {
	search := Normalize(name)
	if search == "" || len(titles) == 0 {
		return -1
	}

	normalized := make([]string, len(titles))
	for i, t := range titles {
		normalized[i] = Normalize(t)
	}

	for i, t := range normalized {
		if t == search {
			return i
		}
	}

	for i, t := range normalized {
		if t != "" && strings.Contains(t, search) {
			return i
		}
	}

	best, bestDist := -1, -1
	for i, t := range normalized {
		d := Levenshtein(search, t)
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best >= 0 && bestDist <= MaxDistance {
		return best
	}
	return -1
}
