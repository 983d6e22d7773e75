package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMatcher(t *testing.T) {
	m, err := NewMatcher("", 0)
	require.NoError(t, err)
	assert.IsType(t, ExactMatcher{}, m)

	m, err = NewMatcher(MatchFuzzy, 0.3)
	require.NoError(t, err)
	assert.Equal(t, FuzzyMatcher{Threshold: 0.3}, m)

	_, err = NewMatcher(MatchFuzzy, 1.5)
	assert.Error(t, err)
	_, err = NewMatcher("soundex", 0.2)
	assert.Error(t, err)
}

func TestFuzzyMatcher(t *testing.T) {
	m := FuzzyMatcher{Threshold: DefaultFuzzyThreshold}
	tests := []struct {
		a, b  string
		match bool
	}{
		{"fix bug", "fix bug", true},
		{"Fix Bug", "fix   bug", true},
		{"", "", true},
		{"fix parser bug", "fix parser bugs", true},
		{"fix parser bug", "add new feature", false},
		{"", "x", false},
		{"initial import", "initial  import\n", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.match, m.Match(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestExactMatcher(t *testing.T) {
	m := ExactMatcher{}
	assert.True(t, m.Match("", ""))
	assert.False(t, m.Match("fix bug", "Fix bug"))
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"größe", "grosse", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshteinDistance([]rune(tt.a), []rune(tt.b)), "%q vs %q", tt.a, tt.b)
	}
}
