package model

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ChunkingConfig controls how document text is split into chunks. Sizes are
// in tokens.
type ChunkingConfig struct {
	ChunkSize          int  `json:"chunk_size" yaml:"chunk_size"`
	Overlap            int  `json:"overlap" yaml:"overlap"`
	PreserveParagraphs bool `json:"preserve_paragraphs" yaml:"preserve_paragraphs"`
	PreserveSentences  bool `json:"preserve_sentences" yaml:"preserve_sentences"`
	// LookbackTokens bounds how far the chunker searches backward for a
	// paragraph, sentence or word boundary before cutting.
	LookbackTokens int `json:"lookback_tokens" yaml:"lookback_tokens"`
	// MaxChunkTokens is the hard ceiling the validation pass enforces.
	MaxChunkTokens int `json:"max_chunk_tokens" yaml:"max_chunk_tokens"`
}

// DefaultChunkingConfig returns the production chunking configuration.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:          512,
		Overlap:            64,
		PreserveParagraphs: true,
		PreserveSentences:  true,
		LookbackTokens:     128,
		MaxChunkTokens:     1024,
	}
}

// QueryConfig controls hybrid retrieval and ranking.
type QueryConfig struct {
	MaxChunks     int     `json:"max_chunks" yaml:"max_chunks"`
	MinSimilarity float64 `json:"min_similarity" yaml:"min_similarity"`
	Deduplicate   bool    `json:"deduplicate" yaml:"deduplicate"`

	// DocumentRIDs restricts retrieval to specific documents.
	DocumentRIDs []uuid.UUID `json:"document_rids,omitempty" yaml:"-"`

	// CandidateMultiplier widens the vector candidate pool before keyword
	// scoring, graph boosting and per-document deduplication shrink it back
	// to MaxChunks.
	CandidateMultiplier int `json:"candidate_multiplier" yaml:"candidate_multiplier"`

	// Ranking weights. The graph boost re-ranks, it never replaces the
	// vector ordering, so GraphBoostWeight stays well below VectorWeight.
	VectorWeight     float64 `json:"vector_weight" yaml:"vector_weight"`
	KeywordWeight    float64 `json:"keyword_weight" yaml:"keyword_weight"`
	GraphBoostWeight float64 `json:"graph_boost_weight" yaml:"graph_boost_weight"`
}

// DefaultQueryConfig returns a sensible default configuration.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		MaxChunks:           5,
		MinSimilarity:       0.3,
		Deduplicate:         true,
		CandidateMultiplier: 3,
		VectorWeight:        0.7,
		KeywordWeight:       0.2,
		GraphBoostWeight:    0.1,
	}
}

// ExtractionConfig controls LLM entity/relation extraction.
type ExtractionConfig struct {
	// ConfidenceFloor drops extracted entities and relations below it.
	ConfidenceFloor float64 `json:"confidence_floor" yaml:"confidence_floor"`
	// MaxAttempts and Backoff apply on batch paths only; the interactive
	// query path never retries.
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	Backoff     time.Duration `json:"backoff" yaml:"backoff"`
	// CallTimeout bounds a single extraction call. A timed-out call is that
	// chunk's failure, not the document's.
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`
	// RequestsPerSecond paces LLM calls across chunks and documents to stay
	// under provider rate limits.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
}

// DefaultExtractionConfig returns the default extraction configuration.
func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		ConfidenceFloor:   0.5,
		MaxAttempts:       3,
		Backoff:           500 * time.Millisecond,
		CallTimeout:       30 * time.Second,
		RequestsPerSecond: 2,
	}
}

// RAGWeightConfig holds the sub-score weights for the post-hoc groundedness
// scorer. The coefficients are heuristic and deliberately configurable.
type RAGWeightConfig struct {
	CitationDensityWeight    float64 `json:"citation_density_weight" yaml:"citation_density_weight"`
	ContextUtilizationWeight float64 `json:"context_utilization_weight" yaml:"context_utilization_weight"`
	TokenOverlapWeight       float64 `json:"token_overlap_weight" yaml:"token_overlap_weight"`
	SearchQualityWeight      float64 `json:"search_quality_weight" yaml:"search_quality_weight"`
	// KnowledgeGapThreshold marks exchanges below it as knowledge gap
	// candidates.
	KnowledgeGapThreshold float64 `json:"knowledge_gap_threshold" yaml:"knowledge_gap_threshold"`
}

// DefaultRAGWeightConfig returns the default scorer weights.
func DefaultRAGWeightConfig() RAGWeightConfig {
	return RAGWeightConfig{
		CitationDensityWeight:    0.3,
		ContextUtilizationWeight: 0.25,
		TokenOverlapWeight:       0.25,
		SearchQualityWeight:      0.2,
		KnowledgeGapThreshold:    0.4,
	}
}

// QualityConfig holds the floors and thresholds for graph quality analysis.
// DuplicateThreshold flags pairs for review; AutoMergeThreshold is the
// separate, conservative bound above which a merge may be applied without
// manual confirmation.
type QualityConfig struct {
	DuplicateThreshold float64 `json:"duplicate_threshold" yaml:"duplicate_threshold"`
	AutoMergeThreshold float64 `json:"auto_merge_threshold" yaml:"auto_merge_threshold"`
	AuthorityFloor     float64 `json:"authority_floor" yaml:"authority_floor"`
	EdgeWeightFloor    float64 `json:"edge_weight_floor" yaml:"edge_weight_floor"`
}

// DefaultQualityConfig returns the default quality analysis configuration.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		DuplicateThreshold: 0.7,
		AutoMergeThreshold: 0.92,
		AuthorityFloor:     0.2,
		EdgeWeightFloor:    0.35,
	}
}

// Config is the process-level configuration file.
type Config struct {
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Query      QueryConfig      `yaml:"query"`
	Extraction ExtractionConfig `yaml:"extraction"`
	RAGWeight  RAGWeightConfig  `yaml:"rag_weight"`
	Quality    QualityConfig    `yaml:"quality"`
}

// DefaultConfig returns a Config populated with all defaults.
func DefaultConfig() Config {
	return Config{
		Chunking:   DefaultChunkingConfig(),
		Query:      DefaultQueryConfig(),
		Extraction: DefaultExtractionConfig(),
		RAGWeight:  DefaultRAGWeightConfig(),
		Quality:    DefaultQualityConfig(),
	}
}

// LoadConfig reads a YAML configuration file, layering it over the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

// Validate checks cross-field constraints the zero value would violate.
func (c Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.overlap must be in [0, chunk_size)")
	}
	if c.Chunking.MaxChunkTokens < c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.max_chunk_tokens must be >= chunk_size")
	}
	if c.Query.MaxChunks <= 0 {
		return fmt.Errorf("query.max_chunks must be positive")
	}
	if c.Query.MinSimilarity < 0 || c.Query.MinSimilarity > 1 {
		return fmt.Errorf("query.min_similarity must be in [0, 1]")
	}
	if c.Extraction.ConfidenceFloor < 0 || c.Extraction.ConfidenceFloor > 1 {
		return fmt.Errorf("extraction.confidence_floor must be in [0, 1]")
	}
	if c.Quality.AutoMergeThreshold < c.Quality.DuplicateThreshold {
		return fmt.Errorf("quality.auto_merge_threshold must be >= duplicate_threshold")
	}
	return nil
}
