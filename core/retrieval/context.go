package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
)

// ContextBuilder assembles retrieval results into a prompt context block
// with stable citation markers. Retrieval failing is never the caller's
// error: the builder degrades to an empty context and the caller falls back
// to an un-augmented prompt.
type ContextBuilder struct {
	engine *Engine
	logger *slog.Logger
}

// NewContextBuilder creates a RAG context builder.
func NewContextBuilder(engine *Engine, logger *slog.Logger) (*ContextBuilder, error) {
	if engine == nil {
		return nil, helper.NewError("context builder", fmt.Errorf("engine is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextBuilder{engine: engine, logger: logger}, nil
}

// Build retrieves context for a query and renders it into a citable block.
// Markers are assigned per source document: the first document's chunks
// become A1, A2, ..., the second document's B1, B2, and so on. The same
// chunk always carries the same marker within one context.
func (b *ContextBuilder) Build(ctx context.Context, ownerID string, query string) *model.RAGContext {
	return b.build(ctx, b.engine, ownerID, query)
}

// BuildScoped is Build restricted to the given documents, for single or
// multi-document Q&A.
func (b *ContextBuilder) BuildScoped(ctx context.Context, ownerID string, query string, documentRIDs []uuid.UUID) *model.RAGContext {
	return b.build(ctx, b.engine.WithDocumentScope(documentRIDs), ownerID, query)
}

func (b *ContextBuilder) build(ctx context.Context, engine *Engine, ownerID string, query string) *model.RAGContext {
	results, stats, err := engine.Search(ctx, ownerID, query)
	if err != nil {
		b.logger.Warn("Retrieval failed, continuing without context", "error", err)
		return &model.RAGContext{}
	}
	if len(results) == 0 {
		return &model.RAGContext{Stats: *stats}
	}

	ragContext := &model.RAGContext{
		Results:            results,
		HasRelevantContent: true,
		Stats:              *stats,
	}

	documentLetters := map[uuid.UUID]string{}
	documentCounters := map[uuid.UUID]int{}

	var block strings.Builder
	block.WriteString("Context from the knowledge base:\n\n")

	for position, result := range results {
		chunk := result.Chunk

		letters, ok := documentLetters[chunk.DocumentRID]
		if !ok {
			letters = documentLabel(len(documentLetters))
			documentLetters[chunk.DocumentRID] = letters
		}
		documentCounters[chunk.DocumentRID]++
		marker := fmt.Sprintf("%s%d", letters, documentCounters[chunk.DocumentRID])

		ragContext.Markers = append(ragContext.Markers, model.CitationMarker{
			Marker:      marker,
			DocumentRID: chunk.DocumentRID,
			ChunkID:     chunk.ID,
			Similarity:  result.SimilarityScore,
			Position:    position,
		})

		title := chunk.DocumentTitle
		if title == "" {
			title = "Untitled"
		}
		block.WriteString(fmt.Sprintf("[%s] %s\n%s\n\n", marker, title, chunk.Content))
	}

	block.WriteString("Cite sources with their markers, e.g. [A1].")
	ragContext.ContextBlock = block.String()

	return ragContext
}

// documentLabel turns a zero-based document index into its marker letters:
// A..Z for the first 26 documents, then AA, AB and so on.
func documentLabel(index int) string {
	label := ""
	for {
		label = string(rune('A'+index%26)) + label
		index = index/26 - 1
		if index < 0 {
			return label
		}
	}
}

var citationMarkerPattern = regexp.MustCompile(`\[([A-Z]+[0-9]+)\]`)

// ParseCitationMarkers extracts the citation markers used in a generated
// answer, in order of first use.
func ParseCitationMarkers(answer string) []string {
	var markers []string
	seen := map[string]bool{}
	for _, match := range citationMarkerPattern.FindAllStringSubmatch(answer, -1) {
		if seen[match[1]] {
			continue
		}
		seen[match[1]] = true
		markers = append(markers, match[1])
	}
	return markers
}

// CitationsForAnswer resolves the markers cited in an answer back to chunk
// references, ready for persistence. Markers that do not exist in the
// context are ignored.
func CitationsForAnswer(ragContext *model.RAGContext, messageID string, answer string) []*model.Citation {
	if ragContext == nil || len(ragContext.Markers) == 0 {
		return nil
	}

	byMarker := map[string]model.CitationMarker{}
	for _, marker := range ragContext.Markers {
		byMarker[marker.Marker] = marker
	}

	var citations []*model.Citation
	for i, used := range ParseCitationMarkers(answer) {
		marker, ok := byMarker[used]
		if !ok {
			continue
		}
		citations = append(citations, &model.Citation{
			MessageID:   messageID,
			ChunkID:     marker.ChunkID,
			DocumentRID: marker.DocumentRID,
			Marker:      marker.Marker,
			Relevance:   marker.Similarity,
			Position:    i,
		})
	}
	return citations
}
