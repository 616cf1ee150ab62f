package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
)

// EmbeddingService wraps an Embedder with batching and result validation.
// Input order is preserved; a failed batch item is omitted rather than
// poisoning the whole batch.
type EmbeddingService struct {
	embedder  Embedder
	batchSize int
	logger    *slog.Logger
}

// NewEmbeddingService creates an embedding service. batchSize bounds how
// many texts go to the provider per call.
func NewEmbeddingService(embedder Embedder, batchSize int, logger *slog.Logger) (*EmbeddingService, error) {
	if embedder == nil {
		return nil, helper.NewError("embedding service", fmt.Errorf("embedder is nil"))
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &EmbeddingService{
		embedder:  embedder,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Dimension returns the vector dimension of the underlying embedder.
func (s *EmbeddingService) Dimension() int {
	return s.embedder.Dimension()
}

// EmbedQuery embeds a single query text.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}
	if len(vectors) != 1 {
		return nil, helper.NewError("embed query", fmt.Errorf("expected 1 vector, got %d", len(vectors)))
	}
	if err := validateEmbedding(vectors[0], s.embedder.Dimension()); err != nil {
		return nil, helper.NewError("embed query", err)
	}
	return vectors[0], nil
}

// EmbedChunks embeds the chunks in place, batched, in ordinal order. A
// batch that fails or yields an invalid vector leaves its chunks without an
// embedding; the remaining batches still run.
func (s *EmbeddingService) EmbedChunks(ctx context.Context, chunks []*model.Chunk) error {
	var failed int

	for batchStart := 0; batchStart < len(chunks); batchStart += s.batchSize {
		batchEnd := batchStart + s.batchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		batch := chunks[batchStart:batchEnd]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Content
		}

		vectors, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return helper.NewError("embed chunks", ctx.Err())
			}
			s.logger.Warn("Embedding batch failed", "start", batchStart, "size", len(batch), "error", err)
			failed += len(batch)
			continue
		}
		if len(vectors) != len(batch) {
			s.logger.Warn("Embedding batch size mismatch", "expected", len(batch), "got", len(vectors))
			failed += len(batch)
			continue
		}

		for i, vector := range vectors {
			if err := validateEmbedding(vector, s.embedder.Dimension()); err != nil {
				s.logger.Warn("Dropping invalid embedding", "chunk_index", batch[i].ChunkIndex, "error", err)
				failed++
				continue
			}
			batch[i].Embedding = vector
		}
	}

	if failed == len(chunks) && len(chunks) > 0 {
		return helper.NewError("embed chunks", fmt.Errorf("all %d chunks failed to embed", len(chunks)))
	}
	if failed > 0 {
		s.logger.Warn("Embedded chunks with partial failure", "failed", failed, "total", len(chunks))
	}

	return nil
}

// validateEmbedding rejects dimension mismatches, NaN components and zero
// vectors before a result is accepted.
func validateEmbedding(vector []float32, dimension int) error {
	if len(vector) != dimension {
		return fmt.Errorf("dimension mismatch: expected %d, got %d", dimension, len(vector))
	}

	zero := true
	for _, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("vector contains NaN or Inf")
		}
		if v != 0 {
			zero = false
		}
	}
	if zero {
		return fmt.Errorf("vector is all zeros")
	}

	return nil
}
