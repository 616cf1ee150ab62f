package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	t.Run("Levenshtein distances", func(t *testing.T) {
		cases := []struct {
			a        string
			b        string
			expected int
		}{
			{"", "", 0},
			{"abc", "", 3},
			{"", "abc", 3},
			{"kitten", "sitting", 3},
			{"openai", "openai", 0},
			{"microsoft", "microsof", 1},
			{"graph", "grape", 2},
		}
		for _, c := range cases {
			assert.Equal(t, c.expected, Levenshtein(c.a, c.b), "Expected distance between %q and %q", c.a, c.b)
		}
	})

	t.Run("Levenshtein with multibyte runes", func(t *testing.T) {
		assert.Equal(t, 1, Levenshtein("müller", "muller"), "Expected rune-level distance")
	})
}

func TestNameSimilarity(t *testing.T) {
	t.Run("NameSimilarity treats corporate suffixes as noise", func(t *testing.T) {
		similarity := NameSimilarity("OpenAI Inc.", "openai")
		assert.Greater(t, similarity, 0.7, "Expected suffix variants to score as near-duplicates")
	})

	t.Run("NameSimilarity separates unrelated names", func(t *testing.T) {
		similarity := NameSimilarity("ChatGPT", "quantum computing")
		assert.Less(t, similarity, 0.3, "Expected unrelated names to score low")
	})

	t.Run("NameSimilarity identical after normalization", func(t *testing.T) {
		assert.Equal(t, 1.0, NameSimilarity("Acme Corp", "ACME Corporation"), "Expected normalized-equal names to score 1")
	})

	t.Run("NameSimilarity with empty strings", func(t *testing.T) {
		assert.Equal(t, 1.0, NameSimilarity("", ""), "Expected two empty names to be identical")
	})

	t.Run("NameSimilarity near miss", func(t *testing.T) {
		similarity := NameSimilarity("Microsoft", "Microsof")
		assert.Greater(t, similarity, 0.8, "Expected single-typo names to score high")
		assert.Less(t, similarity, 1.0, "Expected single-typo names to stay below 1")
	})
}
