package retrieval

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/seralind/ragcore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContextBuilder(t *testing.T, searcher *fakeChunkSearcher) *ContextBuilder {
	t.Helper()
	engine := newTestEngine(t, searcher, nil, nil, nil)
	builder, err := NewContextBuilder(engine, slog.Default())
	require.NoError(t, err, "Expected context builder creation to succeed")
	return builder
}

func TestContextBuilder(t *testing.T) {
	t.Run("NewContextBuilder with nil engine", func(t *testing.T) {
		_, err := NewContextBuilder(nil, nil)
		assert.Error(t, err, "Expected error for nil engine")
	})

	t.Run("Build assigns markers per document", func(t *testing.T) {
		docA := uuid.New()
		docB := uuid.New()
		searcher := &fakeChunkSearcher{vectorChunks: []*model.Chunk{
			retrievalChunk(1, docA, "Light Fields", "light field depth estimation methods", 0.9),
			retrievalChunk(2, docB, "Calibration", "camera calibration for light field rigs", 0.85),
		}}
		builder := newTestContextBuilder(t, searcher)

		ragContext := builder.Build(context.Background(), "owner1", "light field depth estimation")
		require.True(t, ragContext.HasRelevantContent, "Expected relevant content")
		require.Len(t, ragContext.Markers, 2, "Expected one marker per chunk")

		assert.Equal(t, "A1", ragContext.Markers[0].Marker, "Expected the first document to get letter A")
		assert.Equal(t, "B1", ragContext.Markers[1].Marker, "Expected the second document to get letter B")
		assert.Equal(t, 0, ragContext.Markers[0].Position, "Expected positions to follow result order")
		assert.Equal(t, 1, ragContext.Markers[1].Position)

		assert.Contains(t, ragContext.ContextBlock, "[A1] Light Fields", "Expected the marker and title rendered")
		assert.Contains(t, ragContext.ContextBlock, "light field depth estimation methods", "Expected the chunk content rendered")
		assert.Contains(t, ragContext.ContextBlock, "[B1] Calibration", "Expected the second source rendered")
	})

	t.Run("Build numbers chunks within a document", func(t *testing.T) {
		docA := uuid.New()
		searcher := &fakeChunkSearcher{vectorChunks: []*model.Chunk{
			retrievalChunk(1, docA, "Paper", "depth from focus cues", 0.9),
			retrievalChunk(2, docA, "Paper", "depth from correspondence cues", 0.85),
		}}
		engine, err := NewEngine(&fakeQueryEmbedder{}, searcher, nil, nil, func() model.QueryConfig {
			config := model.DefaultQueryConfig()
			config.Deduplicate = false
			return config
		}(), nil, nil)
		require.NoError(t, err, "Expected engine creation to succeed")
		builder, err := NewContextBuilder(engine, nil)
		require.NoError(t, err, "Expected context builder creation to succeed")

		ragContext := builder.Build(context.Background(), "owner1", "depth estimation cues")
		require.Len(t, ragContext.Markers, 2, "Expected both chunks in context")
		assert.Equal(t, "A1", ragContext.Markers[0].Marker, "Expected the first chunk numbered 1")
		assert.Equal(t, "A2", ragContext.Markers[1].Marker, "Expected the second chunk numbered 2")
	})

	t.Run("Build rolls over to double letters past 26 documents", func(t *testing.T) {
		var chunks []*model.Chunk
		for i := 0; i < 28; i++ {
			chunks = append(chunks, retrievalChunk(int64(i+1), uuid.New(), "Doc", "light field content", 0.9))
		}
		engine, err := NewEngine(&fakeQueryEmbedder{}, &fakeChunkSearcher{vectorChunks: chunks}, nil, nil, func() model.QueryConfig {
			config := model.DefaultQueryConfig()
			config.MaxChunks = 28
			return config
		}(), nil, nil)
		require.NoError(t, err, "Expected engine creation to succeed")
		builder, err := NewContextBuilder(engine, nil)
		require.NoError(t, err, "Expected context builder creation to succeed")

		ragContext := builder.Build(context.Background(), "owner1", "light field content")
		require.Len(t, ragContext.Markers, 28, "Expected a marker per document")

		assert.Equal(t, "Z1", ragContext.Markers[25].Marker, "Expected the 26th document to get letter Z")
		assert.Equal(t, "AA1", ragContext.Markers[26].Marker, "Expected the 27th document to roll over to AA")
		assert.Equal(t, "AB1", ragContext.Markers[27].Marker, "Expected the 28th document to follow with AB")
		assert.Equal(t, []string{"AA1"}, ParseCitationMarkers("Confirmed by [AA1]."), "Expected double-letter markers to parse")
	})

	t.Run("Build degrades silently on retrieval failure", func(t *testing.T) {
		engine, err := NewEngine(&fakeQueryEmbedder{fail: true}, &fakeChunkSearcher{}, nil, nil, model.DefaultQueryConfig(), nil, nil)
		require.NoError(t, err, "Expected engine creation to succeed")
		builder, err := NewContextBuilder(engine, slog.Default())
		require.NoError(t, err, "Expected context builder creation to succeed")

		ragContext := builder.Build(context.Background(), "owner1", "any query at all")
		require.NotNil(t, ragContext, "Expected a context even on failure")
		assert.False(t, ragContext.HasRelevantContent, "Expected no relevant content on failure")
		assert.Empty(t, ragContext.ContextBlock, "Expected an empty context block")
	})

	t.Run("Build stays closed when only a keyword collides", func(t *testing.T) {
		docB := uuid.New()
		searcher := &fakeChunkSearcher{
			keywordChunks: []*model.Chunk{
				retrievalChunk(2, docB, "Quantum Notes", "quantum computing uses qubits", 0),
			},
		}
		builder := newTestContextBuilder(t, searcher)

		ragContext := builder.Build(context.Background(), "owner1", "cloud computing pricing models")
		assert.False(t, ragContext.HasRelevantContent, "Expected no relevant content when no chunk cleared the similarity threshold")
		assert.Empty(t, ragContext.Markers, "Expected no citation markers from sub-threshold chunks")
		assert.Empty(t, ragContext.ContextBlock, "Expected no context block")
	})

	t.Run("Build with no results", func(t *testing.T) {
		builder := newTestContextBuilder(t, &fakeChunkSearcher{})

		ragContext := builder.Build(context.Background(), "owner1", "query with no matches")
		assert.False(t, ragContext.HasRelevantContent, "Expected no relevant content")
		assert.Empty(t, ragContext.Markers, "Expected no markers")
	})
}

func TestParseCitationMarkers(t *testing.T) {
	t.Run("ParseCitationMarkers extracts in order of first use", func(t *testing.T) {
		markers := ParseCitationMarkers("As shown in [B1], the method works [A1]. Later [B1] confirms it [A2].")
		assert.Equal(t, []string{"B1", "A1", "A2"}, markers, "Expected distinct markers in first-use order")
	})

	t.Run("ParseCitationMarkers ignores non-marker brackets", func(t *testing.T) {
		markers := ParseCitationMarkers("See [1] and [note] but also [C3].")
		assert.Equal(t, []string{"C3"}, markers, "Expected only letter-number markers")
	})

	t.Run("ParseCitationMarkers with no citations", func(t *testing.T) {
		assert.Empty(t, ParseCitationMarkers("An answer without any citations."), "Expected no markers")
	})
}

func TestCitationsForAnswer(t *testing.T) {
	docA := uuid.New()
	ragContext := &model.RAGContext{
		HasRelevantContent: true,
		Markers: []model.CitationMarker{
			{Marker: "A1", DocumentRID: docA, ChunkID: 1, Similarity: 0.9},
			{Marker: "A2", DocumentRID: docA, ChunkID: 2, Similarity: 0.8},
		},
	}

	t.Run("CitationsForAnswer resolves cited markers", func(t *testing.T) {
		citations := CitationsForAnswer(ragContext, "msg-1", "First [A2], then [A1].")
		require.Len(t, citations, 2, "Expected both citations resolved")

		assert.Equal(t, "A2", citations[0].Marker, "Expected citations in answer order")
		assert.Equal(t, int64(2), citations[0].ChunkID)
		assert.Equal(t, 0, citations[0].Position)
		assert.Equal(t, "msg-1", citations[0].MessageID)
		assert.InDelta(t, 0.8, citations[0].Relevance, 0.001, "Expected the retrieval similarity carried over")

		assert.Equal(t, "A1", citations[1].Marker)
		assert.Equal(t, 1, citations[1].Position)
	})

	t.Run("CitationsForAnswer ignores unknown markers", func(t *testing.T) {
		citations := CitationsForAnswer(ragContext, "msg-2", "Claims [A1] and [Z9].")
		require.Len(t, citations, 1, "Expected the hallucinated marker dropped")
		assert.Equal(t, "A1", citations[0].Marker)
	})

	t.Run("CitationsForAnswer with empty context", func(t *testing.T) {
		assert.Nil(t, CitationsForAnswer(nil, "msg-3", "Anything [A1]."), "Expected nil for nil context")
		assert.Nil(t, CitationsForAnswer(&model.RAGContext{}, "msg-3", "Anything [A1]."), "Expected nil for markerless context")
	})
}
