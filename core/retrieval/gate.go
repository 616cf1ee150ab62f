package retrieval

import (
	"regexp"
	"strings"
)

// Conversational noise that never benefits from retrieval.
var greetingPattern = regexp.MustCompile(`^(hi|hey|hello|yo|sup|howdy|good (morning|afternoon|evening)|thanks|thank you|ok|okay|bye|goodbye)[\s.!?]*$`)

var interrogativeWords = []string{
	"what", "who", "whom", "whose", "which", "where", "when", "why", "how",
	"explain", "describe", "compare", "summarize", "define", "tell",
}

var domainSignals = []string{
	"paper", "patent", "document", "research", "study", "method", "approach",
	"algorithm", "technology", "technique", "system", "model", "architecture",
	"implementation", "according to", "based on", "difference between",
	"state of the art", "prior art",
}

// ShouldUseRAG decides whether a message is worth a retrieval pass. It is a
// cheap lexical heuristic: greetings and very short messages skip retrieval,
// questions and domain-flavored messages get it. Wrongly answering true
// costs one search; wrongly answering false costs the user an answer, so
// length alone is enough once a message is substantial.
func ShouldUseRAG(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return false
	}
	if greetingPattern.MatchString(normalized) {
		return false
	}

	words := strings.Fields(normalized)
	if len(words) <= 2 {
		return false
	}

	if strings.Contains(normalized, "?") {
		return true
	}
	for _, word := range interrogativeWords {
		if words[0] == word {
			return true
		}
	}
	for _, signal := range domainSignals {
		if strings.Contains(normalized, signal) {
			return true
		}
	}

	return len(words) >= 6
}

// wordPattern extracts searchable terms from a query.
var wordPattern = regexp.MustCompile(`[a-z0-9][a-z0-9\-']*`)

// Query words too common to discriminate between chunks.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "can": true, "do": true, "does": true,
	"for": true, "from": true, "had": true, "has": true, "have": true,
	"how": true, "in": true, "is": true, "it": true, "its": true, "of": true,
	"on": true, "or": true, "that": true, "the": true, "their": true,
	"them": true, "there": true, "these": true, "they": true, "this": true,
	"to": true, "was": true, "we": true, "were": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "why": true,
	"will": true, "with": true, "would": true, "you": true, "your": true,
}

// QueryTerms lowercases a query and extracts its content words, dropping
// stopwords and single characters.
func QueryTerms(query string) []string {
	var terms []string
	seen := map[string]bool{}
	for _, word := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		if len(word) < 2 || stopwords[word] || seen[word] {
			continue
		}
		seen[word] = true
		terms = append(terms, word)
	}
	return terms
}
