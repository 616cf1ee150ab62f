package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
)

// QueryEmbedder turns a query string into a vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChunkSearcher is the chunk retrieval slice of the database layer.
type ChunkSearcher interface {
	SelectChunksBySimilarity(embedding []float32, ownerID string, limit int, threshold float64, documentRIDs []uuid.UUID) ([]*model.Chunk, error)
	SelectChunksByKeywords(ownerID string, terms []string, limit int) ([]*model.Chunk, error)
}

// EntityMatcher finds graph entities matching query terms.
type EntityMatcher interface {
	SelectEntitiesMatchingQuery(ownerID string, terms []string) ([]*model.Entity, error)
}

// EdgeReader reads the edges around a set of entities.
type EdgeReader interface {
	SelectEdgesTouchingEntities(entityIDs []uuid.UUID) ([]*model.Edge, error)
}

// Engine performs hybrid retrieval: a wide vector candidate pool, merged
// with keyword matches, re-ranked with keyword overlap and a knowledge graph
// boost, then deduplicated per document and truncated. Keyword matches and
// the graph boost only widen or re-rank a pool the vector search opened;
// neither produces results on its own when nothing cleared the similarity
// threshold.
type Engine struct {
	embedder   QueryEmbedder
	chunks     ChunkSearcher
	entities   EntityMatcher
	edges      EdgeReader
	config     model.QueryConfig
	graphCache *helper.Cache
	logger     *slog.Logger
}

// NewEngine creates a hybrid retrieval engine. graphCache may be nil to
// disable graph boost caching.
func NewEngine(
	embedder QueryEmbedder,
	chunks ChunkSearcher,
	entities EntityMatcher,
	edges EdgeReader,
	config model.QueryConfig,
	graphCache *helper.Cache,
	logger *slog.Logger,
) (*Engine, error) {
	if embedder == nil || chunks == nil {
		return nil, helper.NewError("retrieval engine", fmt.Errorf("embedder or chunk store is nil"))
	}
	if config.MaxChunks <= 0 {
		return nil, helper.NewError("retrieval engine", fmt.Errorf("max chunks must be positive, got %d", config.MaxChunks))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder:   embedder,
		chunks:     chunks,
		entities:   entities,
		edges:      edges,
		config:     config,
		graphCache: graphCache,
		logger:     logger,
	}, nil
}

// WithDocumentScope returns a copy of the engine whose searches are
// restricted to the given documents.
func (e *Engine) WithDocumentScope(documentRIDs []uuid.UUID) *Engine {
	scoped := *e
	scoped.config.DocumentRIDs = documentRIDs
	return &scoped
}

// Search runs one hybrid retrieval pass for a query.
func (e *Engine) Search(ctx context.Context, ownerID string, query string) ([]*model.RetrievalResult, *model.SearchStats, error) {
	embedding, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, nil, helper.NewError("embed query", err)
	}

	candidateLimit := e.config.MaxChunks * e.config.CandidateMultiplier
	if candidateLimit < e.config.MaxChunks {
		candidateLimit = e.config.MaxChunks
	}

	vectorChunks, err := e.chunks.SelectChunksBySimilarity(embedding, ownerID, candidateLimit, e.config.MinSimilarity, e.config.DocumentRIDs)
	if err != nil {
		return nil, nil, helper.NewError("similarity search", err)
	}

	terms := QueryTerms(query)

	pool := map[int64]*model.RetrievalResult{}
	for _, chunk := range vectorChunks {
		pool[chunk.ID] = &model.RetrievalResult{
			Chunk:           chunk,
			SimilarityScore: chunk.Similarity,
			RetrievalMethod: model.RetrievalMethodVector,
		}
	}

	// Keyword candidates only widen a pool the vector search opened. A
	// lexical collision alone must not produce context when nothing cleared
	// the similarity threshold.
	if len(pool) > 0 && len(terms) > 0 {
		keywordChunks, err := e.chunks.SelectChunksByKeywords(ownerID, terms, candidateLimit)
		if err != nil {
			// Keyword search is additive; its failure degrades to
			// vector-only retrieval.
			e.logger.Warn("Keyword search failed", "error", err)
		} else {
			for _, chunk := range keywordChunks {
				if _, ok := pool[chunk.ID]; ok {
					continue
				}
				if len(e.config.DocumentRIDs) > 0 && !containsRID(e.config.DocumentRIDs, chunk.DocumentRID) {
					continue
				}
				pool[chunk.ID] = &model.RetrievalResult{
					Chunk:           chunk,
					RetrievalMethod: model.RetrievalMethodKeyword,
				}
			}
		}
	}

	if len(pool) == 0 {
		return nil, &model.SearchStats{}, nil
	}

	boosts := e.documentBoosts(ownerID, terms)

	results := make([]*model.RetrievalResult, 0, len(pool))
	for _, result := range pool {
		result.KeywordScore = keywordOverlap(result.Chunk.Content, terms)
		result.GraphBoost = boosts[result.Chunk.DocumentRID]
		if result.RetrievalMethod == model.RetrievalMethodVector && (result.KeywordScore > 0 || result.GraphBoost > 0) {
			result.RetrievalMethod = model.RetrievalMethodHybrid
		}
		result.Score = e.config.VectorWeight*result.SimilarityScore +
			e.config.KeywordWeight*result.KeywordScore +
			e.config.GraphBoostWeight*result.GraphBoost
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Ties go to the more recent document.
		return results[i].Chunk.DocumentDate.After(results[j].Chunk.DocumentDate)
	})

	if e.config.Deduplicate {
		results = dedupePerDocument(results)
	}
	candidateCount := len(results)
	if len(results) > e.config.MaxChunks {
		results = results[:e.config.MaxChunks]
	}

	return results, searchStats(results, candidateCount), nil
}

// documentBoosts maps document RIDs to a [0,1] boost derived from graph
// edges whose entities match the query. Matching is cached per owner and
// term set since the graph changes far more slowly than queries arrive.
func (e *Engine) documentBoosts(ownerID string, terms []string) map[uuid.UUID]float64 {
	if e.entities == nil || e.edges == nil || len(terms) == 0 {
		return nil
	}

	cacheKey := ownerID + "|" + strings.Join(terms, " ")
	if e.graphCache != nil {
		if cached, ok := e.graphCache.Get(cacheKey); ok {
			return cached.(map[uuid.UUID]float64)
		}
	}

	boosts := e.computeDocumentBoosts(ownerID, terms)
	if e.graphCache != nil {
		e.graphCache.Set(cacheKey, boosts)
	}
	return boosts
}

func (e *Engine) computeDocumentBoosts(ownerID string, terms []string) map[uuid.UUID]float64 {
	entities, err := e.entities.SelectEntitiesMatchingQuery(ownerID, terms)
	if err != nil {
		e.logger.Warn("Entity matching failed", "error", err)
		return nil
	}
	if len(entities) == 0 {
		return nil
	}

	entityIDs := make([]uuid.UUID, len(entities))
	for i, entity := range entities {
		entityIDs[i] = entity.ID
	}

	edges, err := e.edges.SelectEdgesTouchingEntities(entityIDs)
	if err != nil {
		e.logger.Warn("Edge lookup failed", "error", err)
		return nil
	}

	// Documents holding evidence for edges around matched entities get
	// boosted proportionally to the accumulated edge weight.
	accumulated := map[uuid.UUID]float64{}
	maxWeight := 0.0
	for _, edge := range edges {
		if edge.EvidenceDocumentRID == uuid.Nil {
			continue
		}
		accumulated[edge.EvidenceDocumentRID] += edge.Weight
		if accumulated[edge.EvidenceDocumentRID] > maxWeight {
			maxWeight = accumulated[edge.EvidenceDocumentRID]
		}
	}
	if maxWeight == 0 {
		return nil
	}

	boosts := make(map[uuid.UUID]float64, len(accumulated))
	for rid, weight := range accumulated {
		boosts[rid] = weight / maxWeight
	}
	return boosts
}

// keywordOverlap returns the fraction of query terms found in the content.
func keywordOverlap(content string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lowered := strings.ToLower(content)
	hits := 0
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// dedupePerDocument keeps only the best-scoring chunk of each document.
// Results must already be sorted by score.
func dedupePerDocument(results []*model.RetrievalResult) []*model.RetrievalResult {
	seen := map[uuid.UUID]bool{}
	deduped := results[:0]
	for _, result := range results {
		if seen[result.Chunk.DocumentRID] {
			continue
		}
		seen[result.Chunk.DocumentRID] = true
		deduped = append(deduped, result)
	}
	return deduped
}

func containsRID(rids []uuid.UUID, rid uuid.UUID) bool {
	for _, candidate := range rids {
		if candidate == rid {
			return true
		}
	}
	return false
}

func searchStats(results []*model.RetrievalResult, candidateCount int) *model.SearchStats {
	stats := &model.SearchStats{CandidateCount: candidateCount}
	if len(results) == 0 {
		return stats
	}

	similaritySum := 0.0
	counts := map[uuid.UUID]*model.SourceRef{}
	var order []uuid.UUID
	for _, result := range results {
		similaritySum += result.SimilarityScore
		source, ok := counts[result.Chunk.DocumentRID]
		if !ok {
			source = &model.SourceRef{
				DocumentRID: result.Chunk.DocumentRID,
				Title:       result.Chunk.DocumentTitle,
			}
			counts[result.Chunk.DocumentRID] = source
			order = append(order, result.Chunk.DocumentRID)
		}
		source.ChunkCount++
	}

	stats.AverageSimilarity = similaritySum / float64(len(results))
	stats.SourceCount = len(order)
	for _, rid := range order {
		stats.Sources = append(stats.Sources, *counts[rid])
	}
	return stats
}
