package model

import (
	"time"

	"github.com/google/uuid"
)

// ChunkingResult is the ordered output of the chunker for one document.
type ChunkingResult struct {
	Chunks      []*Chunk `json:"chunks"`
	TotalTokens int      `json:"total_tokens"`
}

// RetrievalResult represents a chunk retrieved by a query together with its
// scoring breakdown.
type RetrievalResult struct {
	Chunk           *Chunk          `json:"chunk"`
	Score           float64         `json:"score"`
	SimilarityScore float64         `json:"similarity_score"`
	KeywordScore    float64         `json:"keyword_score"`
	GraphBoost      float64         `json:"graph_boost"`
	RetrievalMethod RetrievalMethod `json:"retrieval_method"`
}

// SourceRef identifies a document that contributed chunks to a result set.
type SourceRef struct {
	DocumentRID uuid.UUID `json:"document_rid"`
	Title       string    `json:"title"`
	ChunkCount  int       `json:"chunk_count"`
}

// SearchStats summarizes one retrieval pass.
type SearchStats struct {
	AverageSimilarity float64     `json:"average_similarity"`
	SourceCount       int         `json:"source_count"`
	Sources           []SourceRef `json:"sources"`
	CandidateCount    int         `json:"candidate_count"`
}

// CitationMarker maps a stable in-context marker like "A1" to its source
// chunk. The same chunk always maps to the same marker within one response.
type CitationMarker struct {
	Marker      string    `json:"marker"`
	DocumentRID uuid.UUID `json:"document_rid"`
	ChunkID     int64     `json:"chunk_id"`
	Similarity  float64   `json:"similarity"`
	Position    int       `json:"position"`
}

// RAGContext is the assembled retrieval context for one query. When
// HasRelevantContent is false the caller must fall back to an un-augmented
// prompt; retrieval failing is never a user-visible error.
type RAGContext struct {
	ContextBlock       string             `json:"context_block"`
	Markers            []CitationMarker   `json:"markers"`
	Results            []*RetrievalResult `json:"results"`
	HasRelevantContent bool               `json:"has_relevant_content"`
	Stats              SearchStats        `json:"stats"`
}

// RAGWeightBreakdown holds the four groundedness sub-scores, each in [0,1].
type RAGWeightBreakdown struct {
	CitationDensity    float64 `json:"citation_density"`
	ContextUtilization float64 `json:"context_utilization"`
	TokenOverlap       float64 `json:"token_overlap"`
	SearchQuality      float64 `json:"search_quality"`
}

// RAGWeight is the post-hoc groundedness score for a generated answer.
type RAGWeight struct {
	Weight       float64            `json:"rag_weight"`
	Breakdown    RAGWeightBreakdown `json:"breakdown"`
	KnowledgeGap bool               `json:"knowledge_gap"`
}

// ChunkFailure records one chunk's extraction failure inside an otherwise
// continuing document run.
type ChunkFailure struct {
	ChunkIndex int    `json:"chunk_index"`
	Error      string `json:"error"`
}

// GraphBuildResult is the outcome of knowledge graph extraction for one
// document.
type GraphBuildResult struct {
	DocumentRID        uuid.UUID      `json:"document_rid"`
	Success            bool           `json:"success"`
	EntitiesExtracted  int            `json:"entities_extracted"`
	RelationsExtracted int            `json:"relations_extracted"`
	ChunksProcessed    int            `json:"chunks_processed"`
	ChunkFailures      []ChunkFailure `json:"chunk_failures,omitempty"`
	Error              string         `json:"error,omitempty"`
}

// BatchGraphResult aggregates per-document outcomes of a batch run. One
// document's failure never aborts the batch.
type BatchGraphResult struct {
	Results            []*GraphBuildResult `json:"results"`
	DocumentsProcessed int                 `json:"documents_processed"`
	DocumentsFailed    int                 `json:"documents_failed"`
	TotalEntities      int                 `json:"total_entities"`
	TotalRelations     int                 `json:"total_relations"`
}

// DuplicatePair is a pair of same-kind entities whose name similarity
// exceeds the review threshold. Flagging is advisory; the merge action is a
// separate, auditable step.
type DuplicatePair struct {
	FirstID    uuid.UUID  `json:"first_id"`
	FirstName  string     `json:"first_name"`
	SecondID   uuid.UUID  `json:"second_id"`
	SecondName string     `json:"second_name"`
	Kind       EntityKind `json:"kind"`
	Similarity float64    `json:"similarity"`
	AutoMerge  bool       `json:"auto_merge"`
}

// QualityReport is the advisory output of the graph quality analyzer.
type QualityReport struct {
	GeneratedAt          time.Time          `json:"generated_at"`
	EntityCount          int                `json:"entity_count"`
	EdgeCount            int                `json:"edge_count"`
	KindDistribution     map[EntityKind]int `json:"kind_distribution"`
	OrphanedEntities     []*Entity          `json:"orphaned_entities,omitempty"`
	PotentialDuplicates  []DuplicatePair    `json:"potential_duplicates,omitempty"`
	LowAuthorityEntities []*Entity          `json:"low_authority_entities,omitempty"`
	WeakEdges            []*Edge            `json:"weak_edges,omitempty"`
	Recommendations      []string           `json:"recommendations,omitempty"`
}
