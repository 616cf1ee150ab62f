package graph

import (
	"github.com/seralind/ragcore/core/pipeline"
)

// Levenshtein computes the edit distance between two strings by runes.
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,
				curr[j-1]+1,
				prev[j-1]+cost,
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// NameSimilarity derives a similarity in [0,1] from the edit distance of
// the normalized names: (maxLen - distance) / maxLen. Normalization strips
// punctuation and corporate suffixes first, so "OpenAI Inc." and "openai"
// compare as equal. It is a scoring heuristic for flagging likely
// duplicates, never a silent merge oracle.
func NameSimilarity(a, b string) float64 {
	a = pipeline.NormalizeName(a)
	b = pipeline.NormalizeName(b)

	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}

	return float64(maxLen-Levenshtein(a, b)) / float64(maxLen)
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
