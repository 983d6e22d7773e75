package cluster

import (
	"fmt"
	"strings"
)

// MatchMode selects how log messages are compared when clustering.
type MatchMode string

const (
	MatchExact MatchMode = "exact"
	MatchFuzzy MatchMode = "fuzzy"
)

// DefaultFuzzyThreshold is the edit distance allowed per character of the
// longer message in fuzzy mode.
const DefaultFuzzyThreshold = 0.2

// Matcher decides whether two log messages belong to the same logical commit.
type Matcher interface {
	Match(a, b string) bool
}

// NewMatcher returns the matcher for a mode. The threshold only applies to
// fuzzy matching and must lie in [0, 1).
func NewMatcher(mode MatchMode, threshold float64) (Matcher, error) {
	switch mode {
	case MatchExact, "":
		return ExactMatcher{}, nil
	case MatchFuzzy:
		if threshold < 0 || threshold >= 1 {
			return nil, fmt.Errorf("fuzzy threshold %v outside [0, 1)", threshold)
		}
		return FuzzyMatcher{Threshold: threshold}, nil
	default:
		return nil, fmt.Errorf("unknown message match mode %q", mode)
	}
}

// ExactMatcher requires byte-identical messages. The empty message is a
// valid key and matches only itself.
type ExactMatcher struct{}

func (ExactMatcher) Match(a, b string) bool {
	return a == b
}

// FuzzyMatcher compares normalised messages and tolerates small edits.
type FuzzyMatcher struct {
	Threshold float64
}

func (m FuzzyMatcher) Match(a, b string) bool {
	na, nb := normalizeMessage(a), normalizeMessage(b)
	if na == nb {
		return true
	}
	ra, rb := []rune(na), []rune(nb)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	allowed := int(m.Threshold * float64(maxLen))
	return levenshteinDistance(ra, rb) <= allowed
}

// normalizeMessage folds case and collapses all whitespace runs.
func normalizeMessage(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// levenshteinDistance calculates edit distance between two rune strings
func levenshteinDistance(s1, s2 []rune) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	cur := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		cur[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			cur[j] = min(min(prev[j]+1, cur[j-1]+1), prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}

	return prev[len(s2)]
}
