package model

import (
	"time"

	"github.com/google/uuid"
)

// RetrievalMethod names the signal that put a chunk into a result set.
type RetrievalMethod string

const (
	RetrievalMethodVector  RetrievalMethod = "vector"
	RetrievalMethodKeyword RetrievalMethod = "keyword"
	RetrievalMethodGraph   RetrievalMethod = "graph"
	RetrievalMethodHybrid  RetrievalMethod = "hybrid"
)

// Chunk represents a bounded, ordered slice of a document's text. Chunks are
// created in a batch by the chunker and never mutated, only replaced
// wholesale on re-ingestion. ChunkIndex values are contiguous per document.
type Chunk struct {
	ID            int64     `json:"id"`
	DocumentID    int64     `json:"document_id"`
	DocumentRID   uuid.UUID `json:"document_rid"`
	ChunkIndex    int       `json:"chunk_index"`
	Content       string    `json:"content"`
	TokenCount    int       `json:"token_count"`
	OverlapTokens int       `json:"overlap_tokens"`
	StartPos      int       `json:"start_pos"`
	EndPos        int       `json:"end_pos"`
	Embedding     []float32 `json:"embedding,omitempty"`
	Metadata      Metadata  `json:"metadata,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	// Result fields, populated by retrieval only.
	Similarity      float64         `json:"similarity,omitempty"`
	DocumentTitle   string          `json:"document_title,omitempty"`
	DocumentDate    time.Time       `json:"document_date,omitempty"`
	RetrievalMethod RetrievalMethod `json:"retrieval_method,omitempty"`
}
