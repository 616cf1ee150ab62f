package retrieval

import (
	"regexp"
	"strings"

	"github.com/seralind/ragcore/model"
)

// Scorer computes the post-hoc groundedness weight of a generated answer
// against the retrieval context it was given. Scoring is advisory and pure:
// it never blocks or modifies the answer.
type Scorer struct {
	config model.RAGWeightConfig
}

// NewScorer creates a RAG weight scorer.
func NewScorer(config model.RAGWeightConfig) *Scorer {
	return &Scorer{config: config}
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Score weighs how grounded an answer is in its retrieval context. The
// result is always in [0,1]; answers that ignore the context entirely land
// near zero, answers that cite every retrieved chunk land near one.
func (s *Scorer) Score(answer string, ragContext *model.RAGContext) *model.RAGWeight {
	weight := &model.RAGWeight{}

	if ragContext == nil || !ragContext.HasRelevantContent || len(ragContext.Results) == 0 {
		weight.KnowledgeGap = true
		return weight
	}

	cited := citedChunks(ragContext, answer)

	weight.Breakdown.CitationDensity = citationDensity(answer, len(cited))
	weight.Breakdown.ContextUtilization = float64(len(cited)) / float64(len(ragContext.Results))
	weight.Breakdown.TokenOverlap = tokenOverlap(answer, ragContext.Results)
	weight.Breakdown.SearchQuality = meanSimilarity(cited)

	weight.Weight = clamp01(
		s.config.CitationDensityWeight*weight.Breakdown.CitationDensity +
			s.config.ContextUtilizationWeight*weight.Breakdown.ContextUtilization +
			s.config.TokenOverlapWeight*weight.Breakdown.TokenOverlap +
			s.config.SearchQualityWeight*weight.Breakdown.SearchQuality,
	)
	weight.KnowledgeGap = weight.Weight < s.config.KnowledgeGapThreshold

	return weight
}

// citedChunks resolves the markers used in the answer to their context
// markers, one entry per distinct cited chunk.
func citedChunks(ragContext *model.RAGContext, answer string) []model.CitationMarker {
	byMarker := map[string]model.CitationMarker{}
	for _, marker := range ragContext.Markers {
		byMarker[marker.Marker] = marker
	}

	var cited []model.CitationMarker
	for _, used := range ParseCitationMarkers(answer) {
		if marker, ok := byMarker[used]; ok {
			cited = append(cited, marker)
		}
	}
	return cited
}

// citationDensity relates citation count to sentence count, capped at one
// citation per sentence.
func citationDensity(answer string, citations int) float64 {
	if citations == 0 {
		return 0
	}

	sentences := 0
	for _, segment := range sentenceSplit.Split(answer, -1) {
		if len(strings.Fields(segment)) > 0 {
			sentences++
		}
	}
	if sentences == 0 {
		sentences = 1
	}

	density := float64(citations) / float64(sentences)
	if density > 1 {
		density = 1
	}
	return density
}

// tokenOverlap is the fraction of the answer's content words that appear in
// the retrieved chunks.
func tokenOverlap(answer string, results []*model.RetrievalResult) float64 {
	answerTerms := QueryTerms(answer)
	if len(answerTerms) == 0 {
		return 0
	}

	var contextText strings.Builder
	for _, result := range results {
		contextText.WriteString(strings.ToLower(result.Chunk.Content))
		contextText.WriteString(" ")
	}
	lowered := contextText.String()

	hits := 0
	for _, term := range answerTerms {
		if strings.Contains(lowered, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(answerTerms))
}

// meanSimilarity averages the retrieval similarity of the cited chunks.
// With nothing cited there is no evidence the answer used the search
// results, so the score is zero regardless of how good they were.
func meanSimilarity(cited []model.CitationMarker) float64 {
	if len(cited) == 0 {
		return 0
	}
	sum := 0.0
	for _, marker := range cited {
		sum += marker.Similarity
	}
	return sum / float64(len(cited))
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
