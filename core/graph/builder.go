package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/seralind/ragcore/core/pipeline"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
	"golang.org/x/time/rate"
)

// DocumentStore is the slice of the document handler the builder needs.
type DocumentStore interface {
	SelectDocument(rid uuid.UUID, ownerID string) (*model.Document, error)
	UpdateKGStatus(rid uuid.UUID, ownerID string, next model.KGStatus) error
}

// ChunkStore reads a document's stored chunks in ordinal order.
type ChunkStore interface {
	SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error)
}

// EntityStore persists entities and their chunk back-references.
type EntityStore interface {
	UpsertEntity(entity *model.Entity) error
	InsertChunkMention(mention *model.ChunkMention) error
	SelectChunksMentioningEntity(entityID uuid.UUID) ([]*model.ChunkMention, error)
	UpdateEntityAuthority(entityID uuid.UUID, authority float64) error
	DeleteEntitiesForDocument(documentRID uuid.UUID) error
}

// EdgeStore persists relation edges.
type EdgeStore interface {
	UpsertEdge(edge *model.Edge) error
	DeleteEdgesForDocument(documentRID uuid.UUID) error
}

// Builder derives a document's entity/relation set from its chunks.
// Rebuilding is destructive but strictly document-scoped: entities and
// edges whose evidence traces to other documents are never touched. Chunks
// are processed sequentially, rate limited, to bound concurrent LLM calls.
type Builder struct {
	documents DocumentStore
	chunks    ChunkStore
	entities  EntityStore
	edges     EdgeStore
	extractor pipeline.ChunkExtractor
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewBuilder creates a knowledge graph builder.
func NewBuilder(
	documents DocumentStore,
	chunks ChunkStore,
	entities EntityStore,
	edges EdgeStore,
	extractor pipeline.ChunkExtractor,
	config model.ExtractionConfig,
	logger *slog.Logger,
) (*Builder, error) {
	if documents == nil || chunks == nil || entities == nil || edges == nil {
		return nil, helper.NewError("graph builder", fmt.Errorf("store is nil"))
	}
	if extractor == nil {
		return nil, helper.NewError("graph builder", fmt.Errorf("extractor is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &Builder{
		documents: documents,
		chunks:    chunks,
		entities:  entities,
		edges:     edges,
		extractor: extractor,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}, nil
}

// mergedEntity accumulates one entity's mentions across a document's
// chunks before persisting.
type mergedEntity struct {
	name       string
	kind       model.EntityKind
	aliases    map[string]bool
	confidence float64
	chunkIDs   []int64
	stored     *model.Entity
}

// mergedRelation deduplicates (head, relation, tail) triples, keeping the
// highest-confidence evidence.
type mergedRelation struct {
	headKey    string
	tailKey    string
	relation   model.Relation
	confidence float64
	evidence   string
	chunkID    int64
}

// BuildForDocument re-derives the document's full entity/relation set from
// its current chunks. Idempotent per document: prior KG artifacts scoped to
// this document are cleared first. One chunk's failure is recorded and
// processing continues; the returned error is non-nil only for fatal,
// document-level failures.
func (b *Builder) BuildForDocument(ctx context.Context, documentRID uuid.UUID, ownerID string) (*model.GraphBuildResult, error) {
	result := &model.GraphBuildResult{DocumentRID: documentRID}

	document, err := b.documents.SelectDocument(documentRID, ownerID)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	if err := b.documents.UpdateKGStatus(documentRID, ownerID, model.KGStatusProcessing); err != nil {
		result.Error = err.Error()
		return result, err
	}

	buildErr := b.runExtraction(ctx, document, result)

	next := model.KGStatusCompleted
	if buildErr != nil || !result.Success {
		next = model.KGStatusFailed
	}
	if statusErr := b.documents.UpdateKGStatus(documentRID, ownerID, next); statusErr != nil {
		b.logger.Error("Failed to update KG status", "document", documentRID, "error", statusErr)
	}

	return result, buildErr
}

func (b *Builder) runExtraction(ctx context.Context, document *model.Document, result *model.GraphBuildResult) error {
	// Destructive clear, scoped strictly to this document's evidence.
	if err := b.edges.DeleteEdgesForDocument(document.RID); err != nil {
		result.Error = err.Error()
		return err
	}
	if err := b.entities.DeleteEntitiesForDocument(document.RID); err != nil {
		result.Error = err.Error()
		return err
	}

	chunks, err := b.chunks.SelectChunksByDocument(document.RID)
	if err != nil {
		result.Error = err.Error()
		return err
	}

	if len(chunks) == 0 {
		result.Success = true
		return nil
	}

	entities := map[string]*mergedEntity{}
	relations := map[string]*mergedRelation{}

	for _, chunk := range chunks {
		if err := b.limiter.Wait(ctx); err != nil {
			result.Error = err.Error()
			return helper.NewError("rate limit wait", err)
		}

		extraction, err := b.extractor.ExtractFromChunk(ctx, chunk.Content)
		if err != nil {
			// A timed-out or failed extraction is this chunk's failure, not
			// the document's.
			b.logger.Warn("Chunk extraction failed", "document", document.RID, "chunk_index", chunk.ChunkIndex, "error", err)
			result.ChunkFailures = append(result.ChunkFailures, model.ChunkFailure{
				ChunkIndex: chunk.ChunkIndex,
				Error:      err.Error(),
			})
			if ctx.Err() != nil {
				result.Error = ctx.Err().Error()
				return ctx.Err()
			}
			continue
		}

		b.mergeExtraction(extraction, chunk, entities, relations)
		result.ChunksProcessed++
	}

	if result.ChunksProcessed == 0 {
		result.Error = fmt.Sprintf("all %d chunks failed extraction", len(chunks))
		return nil
	}

	if err := b.persist(document, entities, relations, result); err != nil {
		result.Error = err.Error()
		return err
	}

	result.Success = true
	return nil
}

// mergeExtraction folds one chunk's extraction into the document-level
// accumulators, merging entities by normalized name + kind and relations by
// (head, relation, tail) with the highest confidence winning.
func (b *Builder) mergeExtraction(extraction *pipeline.Extraction, chunk *model.Chunk, entities map[string]*mergedEntity, relations map[string]*mergedRelation) {
	for _, extracted := range extraction.Entities {
		normalized := pipeline.NormalizeName(extracted.Name)
		if normalized == "" {
			continue
		}
		key := normalized + "|" + extracted.Kind

		merged, ok := entities[key]
		if !ok {
			merged = &mergedEntity{
				name:    extracted.Name,
				kind:    model.EntityKind(extracted.Kind),
				aliases: map[string]bool{},
			}
			entities[key] = merged
		}

		merged.aliases[extracted.Name] = true
		for _, alias := range extracted.Aliases {
			merged.aliases[alias] = true
		}
		if extracted.Confidence > merged.confidence {
			merged.confidence = extracted.Confidence
			merged.name = extracted.Name
		}
		merged.chunkIDs = append(merged.chunkIDs, chunk.ID)
	}

	for _, extracted := range extraction.Relations {
		headKey, ok := findEntityKey(entities, extracted.Head)
		if !ok {
			continue
		}
		tailKey, ok := findEntityKey(entities, extracted.Tail)
		if !ok {
			continue
		}

		key := headKey + ">" + string(extracted.Relation) + ">" + tailKey
		if existing, ok := relations[key]; ok && existing.confidence >= extracted.Confidence {
			continue
		}
		relations[key] = &mergedRelation{
			headKey:    headKey,
			tailKey:    tailKey,
			relation:   model.Relation(extracted.Relation),
			confidence: extracted.Confidence,
			evidence:   extracted.Evidence,
			chunkID:    chunk.ID,
		}
	}
}

// findEntityKey resolves a relation endpoint name to the accumulator key of
// the entity that introduced it, regardless of kind.
func findEntityKey(entities map[string]*mergedEntity, name string) (string, bool) {
	normalized := pipeline.NormalizeName(name)
	for key, merged := range entities {
		if key == normalized+"|"+string(merged.kind) {
			return key, true
		}
	}
	return "", false
}

func (b *Builder) persist(document *model.Document, entities map[string]*mergedEntity, relations map[string]*mergedRelation, result *model.GraphBuildResult) error {
	for _, merged := range entities {
		aliases := make([]string, 0, len(merged.aliases))
		for alias := range merged.aliases {
			aliases = append(aliases, alias)
		}

		entity := &model.Entity{
			OwnerID:        document.OwnerID,
			Name:           merged.name,
			NormalizedName: pipeline.NormalizeName(merged.name),
			Kind:           merged.kind,
			MentionCount:   len(merged.chunkIDs),
			Authority:      model.AuthorityFromMentions(len(merged.chunkIDs), 1),
			Aliases:        aliases,
		}

		// Concurrent builders race on the uniqueness constraint; losing the
		// race lands here as a merge into the existing row.
		if err := b.entities.UpsertEntity(entity); err != nil {
			return helper.NewError("persist entity", err)
		}
		merged.stored = entity

		for _, chunkID := range merged.chunkIDs {
			mention := &model.ChunkMention{
				EntityID:    entity.ID,
				ChunkID:     chunkID,
				DocumentRID: document.RID,
				Confidence:  merged.confidence,
			}
			if err := b.entities.InsertChunkMention(mention); err != nil {
				return helper.NewError("persist mention", err)
			}
		}

		if err := b.refreshAuthority(entity); err != nil {
			return err
		}
	}
	result.EntitiesExtracted = len(entities)

	for _, merged := range relations {
		head := entities[merged.headKey].stored
		tail := entities[merged.tailKey].stored

		edge := &model.Edge{
			OwnerID:             document.OwnerID,
			SourceID:            head.ID,
			SourceType:          model.NodeTypeEntity,
			TargetID:            tail.ID,
			TargetType:          model.NodeTypeEntity,
			Relation:            merged.relation,
			Weight:              merged.confidence,
			Evidence:            merged.evidence,
			EvidenceChunkID:     merged.chunkID,
			EvidenceDocumentRID: document.RID,
		}

		// A duplicate (src, rel, dst) insert is a found-existing case, not
		// an error; the store keeps the higher weight.
		if err := b.edges.UpsertEdge(edge); err != nil {
			return helper.NewError("persist edge", err)
		}
	}
	result.RelationsExtracted = len(relations)

	return nil
}

// refreshAuthority recomputes an entity's authority from its stored
// mentions and cross-document corroboration after this document's mentions
// landed.
func (b *Builder) refreshAuthority(entity *model.Entity) error {
	mentions, err := b.entities.SelectChunksMentioningEntity(entity.ID)
	if err != nil {
		return helper.NewError("load mentions", err)
	}

	documents := map[uuid.UUID]bool{}
	for _, mention := range mentions {
		documents[mention.DocumentRID] = true
	}

	authority := model.AuthorityFromMentions(len(mentions), len(documents))
	if err := b.entities.UpdateEntityAuthority(entity.ID, authority); err != nil {
		return helper.NewError("update authority", err)
	}

	entity.Authority = authority
	return nil
}

// BuildForDocuments runs extraction over a batch of documents, one at a
// time. Partial failure of one document never aborts the batch; each
// outcome is recorded independently.
func (b *Builder) BuildForDocuments(ctx context.Context, documentRIDs []uuid.UUID, ownerID string) *model.BatchGraphResult {
	batch := &model.BatchGraphResult{}

	for _, rid := range documentRIDs {
		result, err := b.BuildForDocument(ctx, rid, ownerID)
		if err != nil && result.Error == "" {
			result.Error = err.Error()
		}

		batch.Results = append(batch.Results, result)
		if result.Success {
			batch.DocumentsProcessed++
			batch.TotalEntities += result.EntitiesExtracted
			batch.TotalRelations += result.RelationsExtracted
		} else {
			batch.DocumentsFailed++
		}

		// Context cancellation is the one batch-level stop condition.
		if ctx.Err() != nil {
			break
		}
	}

	return batch
}
