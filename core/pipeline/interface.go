package pipeline

import (
	"context"

	"github.com/seralind/ragcore/model"
)

// Embedder converts texts to dense vectors. Implementations wrap an
// embedding provider; the EmbeddingService adds batching and validation on
// top.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// CompletionClient is a single-prompt LLM completion call. It backs
// entity/relation extraction.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChunkExtractor extracts entities and relations from one chunk of text.
type ChunkExtractor interface {
	ExtractFromChunk(ctx context.Context, content string) (*Extraction, error)
}

// Pipeline combines chunking and embedding into the ingestion path of a
// document.
type Pipeline struct {
	Chunker  *Chunker
	Embedder *EmbeddingService
}

// NewPipeline creates a new processing pipeline.
func NewPipeline(chunker *Chunker, embedder *EmbeddingService) *Pipeline {
	return &Pipeline{
		Chunker:  chunker,
		Embedder: embedder,
	}
}

// Process splits text into chunks and attaches embeddings, preserving chunk
// ordinal order throughout.
func (p *Pipeline) Process(ctx context.Context, text string) (*model.ChunkingResult, error) {
	result, err := p.Chunker.ChunkText(text)
	if err != nil {
		return nil, err
	}

	if len(result.Chunks) == 0 {
		return result, nil
	}

	if err := p.Embedder.EmbedChunks(ctx, result.Chunks); err != nil {
		return nil, err
	}

	return result, nil
}
