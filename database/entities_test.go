package database

import (
	"testing"

	"github.com/google/uuid"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphTestEnv struct {
	documents *DocumentsDBHandler
	chunks    *ChunksDBHandler
	entities  *EntitiesDBHandler
	edges     *EdgesDBHandler
}

func initGraphTestEnv(t *testing.T) *graphTestEnv {
	t.Helper()
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, testEmbeddingDim)
	require.NoError(t, err)
	entitiesDbHandler, err := NewEntitiesDBHandler(database)
	require.NoError(t, err)
	edgesDbHandler, err := NewEdgesDBHandler(database)
	require.NoError(t, err)

	return &graphTestEnv{
		documents: documentsDbHandler,
		chunks:    chunksDbHandler,
		entities:  entitiesDbHandler,
		edges:     edgesDbHandler,
	}
}

func (e *graphTestEnv) insertDocumentWithChunk(t *testing.T, ownerID string, title string) (*model.Document, *model.Chunk) {
	t.Helper()
	doc := insertTestDocument(t, e.documents, ownerID, title)
	chunks := []*model.Chunk{testChunk(0, title+" content", []float32{1, 0, 0, 0})}
	err := e.chunks.InsertChunks(doc.ID, chunks)
	require.NoError(t, err)
	return doc, chunks[0]
}

func TestEntitiesNewEntitiesDBHandler(t *testing.T) {
	database := initDB(t)

	// Needed because chunk mentions reference chunks and documents
	_, err := NewDocumentsDBHandler(database)
	require.NoError(t, err)
	_, err = NewChunksDBHandler(database, testEmbeddingDim)
	require.NoError(t, err)

	t.Run("Valid call NewEntitiesDBHandler", func(t *testing.T) {
		entitiesDbHandler, err := NewEntitiesDBHandler(database)
		assert.NoError(t, err, "Expected NewEntitiesDBHandler to not return an error")
		require.NotNil(t, entitiesDbHandler, "Expected NewEntitiesDBHandler to return a non-nil instance")
	})

	t.Run("Invalid call NewEntitiesDBHandler with nil database", func(t *testing.T) {
		_, err := NewEntitiesDBHandler(nil)
		assert.Error(t, err, "Expected error when creating EntitiesDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestEntitiesUpsert(t *testing.T) {
	env := initGraphTestEnv(t)

	t.Run("Insert new entity", func(t *testing.T) {
		entity := &model.Entity{
			OwnerID:        "owner-ent",
			Name:           "OpenAI",
			NormalizedName: "openai",
			Kind:           model.EntityKindOrg,
			Authority:      0.3,
			MentionCount:   1,
			Aliases:        []string{"OpenAI"},
		}

		err := env.entities.UpsertEntity(entity)
		assert.NoError(t, err, "Expected UpsertEntity to not return an error")
		assert.NotEqual(t, uuid.Nil, entity.ID, "Expected new entity to get an ID")
		assert.Equal(t, 1, entity.MentionCount, "Expected mention count preserved on insert")
	})

	t.Run("Upsert merges into existing entity", func(t *testing.T) {
		duplicate := &model.Entity{
			OwnerID:        "owner-ent",
			Name:           "OpenAI Inc",
			NormalizedName: "openai",
			Kind:           model.EntityKindOrg,
			Authority:      0.5,
			MentionCount:   2,
			Aliases:        []string{"OpenAI", "OpenAI Inc"},
		}

		err := env.entities.UpsertEntity(duplicate)
		assert.NoError(t, err, "Expected merging upsert to not return an error")
		assert.Equal(t, 3, duplicate.MentionCount, "Expected mention counts to add up")
		assert.InDelta(t, 0.5, duplicate.Authority, 0.001, "Expected authority to keep the higher value")
		assert.ElementsMatch(t, []string{"OpenAI", "OpenAI Inc"}, duplicate.Aliases, "Expected aliases merged without duplicates")
	})

	t.Run("Same name different kind stays separate", func(t *testing.T) {
		product := &model.Entity{
			OwnerID:        "owner-ent",
			Name:           "OpenAI",
			NormalizedName: "openai",
			Kind:           model.EntityKindProduct,
			MentionCount:   1,
		}

		err := env.entities.UpsertEntity(product)
		assert.NoError(t, err)
		assert.Equal(t, 1, product.MentionCount, "Expected a fresh row for a different kind")

		all, err := env.entities.SelectAllEntities("owner-ent")
		assert.NoError(t, err)
		assert.Len(t, all, 2, "Expected two distinct entities for the two kinds")
	})

	t.Run("Select entity by name", func(t *testing.T) {
		entity, err := env.entities.SelectEntityByName("owner-ent", "openai", model.EntityKindOrg)
		assert.NoError(t, err)
		require.NotNil(t, entity, "Expected the merged entity to be found")
		assert.Equal(t, 3, entity.MentionCount)

		missing, err := env.entities.SelectEntityByName("owner-ent", "unknown", model.EntityKindOrg)
		assert.NoError(t, err, "Expected no error for a missing entity")
		assert.Nil(t, missing, "Expected nil for a missing entity")
	})

	t.Run("Select entity by id", func(t *testing.T) {
		stored, err := env.entities.SelectEntityByName("owner-ent", "openai", model.EntityKindOrg)
		require.NoError(t, err)
		require.NotNil(t, stored)

		entity, err := env.entities.SelectEntityByID(stored.ID)
		assert.NoError(t, err)
		require.NotNil(t, entity, "Expected the entity to be found by id")
		assert.Equal(t, stored.NormalizedName, entity.NormalizedName)

		_, err = env.entities.SelectEntityByID(uuid.New())
		assert.ErrorIs(t, err, helper.ErrNotFound, "Expected not found for an unknown id")
	})
}

func TestEntitiesChunkMentions(t *testing.T) {
	env := initGraphTestEnv(t)

	doc, chunk := env.insertDocumentWithChunk(t, "owner-mention", "Mention Doc")
	defer env.documents.DeleteDocument(doc.RID, doc.OwnerID)

	entity := &model.Entity{
		OwnerID:        "owner-mention",
		Name:           "Rust",
		NormalizedName: "rust",
		Kind:           model.EntityKindTechnology,
		MentionCount:   1,
	}
	err := env.entities.UpsertEntity(entity)
	require.NoError(t, err)

	mention := &model.ChunkMention{
		EntityID:    entity.ID,
		ChunkID:     chunk.ID,
		DocumentRID: doc.RID,
		Confidence:  0.8,
	}

	t.Run("Insert mention", func(t *testing.T) {
		err := env.entities.InsertChunkMention(mention)
		assert.NoError(t, err, "Expected InsertChunkMention to not return an error")

		mentions, err := env.entities.SelectChunksMentioningEntity(entity.ID)
		assert.NoError(t, err)
		require.Len(t, mentions, 1, "Expected one mention")
		assert.Equal(t, chunk.ID, mentions[0].ChunkID)
	})

	t.Run("Duplicate mention is a no-op", func(t *testing.T) {
		err := env.entities.InsertChunkMention(mention)
		assert.NoError(t, err, "Expected duplicate mention to not return an error")

		mentions, err := env.entities.SelectChunksMentioningEntity(entity.ID)
		assert.NoError(t, err)
		assert.Len(t, mentions, 1, "Expected still only one mention")
	})
}

func TestEntitiesMatchingQuery(t *testing.T) {
	env := initGraphTestEnv(t)

	gc := &model.Entity{
		OwnerID:        "owner-query",
		Name:           "Garbage Collector",
		NormalizedName: "garbage collector",
		Kind:           model.EntityKindConcept,
		Authority:      0.6,
		Aliases:        []string{"GC"},
	}
	require.NoError(t, env.entities.UpsertEntity(gc))

	unrelated := &model.Entity{
		OwnerID:        "owner-query",
		Name:           "Berlin",
		NormalizedName: "berlin",
		Kind:           model.EntityKindLocation,
	}
	require.NoError(t, env.entities.UpsertEntity(unrelated))

	t.Run("Matches normalized name", func(t *testing.T) {
		matches, err := env.entities.SelectEntitiesMatchingQuery("owner-query", []string{"garbage"})
		assert.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "Garbage Collector", matches[0].Name)
	})

	t.Run("Matches alias", func(t *testing.T) {
		matches, err := env.entities.SelectEntitiesMatchingQuery("owner-query", []string{"gc"})
		assert.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "Garbage Collector", matches[0].Name)
	})

	t.Run("No terms", func(t *testing.T) {
		matches, err := env.entities.SelectEntitiesMatchingQuery("owner-query", nil)
		assert.NoError(t, err)
		assert.Empty(t, matches)
	})
}

func TestEntitiesDeleteForDocument(t *testing.T) {
	env := initGraphTestEnv(t)

	docA, chunkA := env.insertDocumentWithChunk(t, "owner-rebuild", "Rebuild Doc A")
	docB, chunkB := env.insertDocumentWithChunk(t, "owner-rebuild", "Rebuild Doc B")
	defer func() {
		env.documents.DeleteDocument(docA.RID, docA.OwnerID)
		env.documents.DeleteDocument(docB.RID, docB.OwnerID)
	}()

	// Entity mentioned only in document A
	single := &model.Entity{
		OwnerID:        "owner-rebuild",
		Name:           "SoloCorp",
		NormalizedName: "solocorp",
		Kind:           model.EntityKindOrg,
		MentionCount:   1,
	}
	require.NoError(t, env.entities.UpsertEntity(single))
	require.NoError(t, env.entities.InsertChunkMention(&model.ChunkMention{
		EntityID: single.ID, ChunkID: chunkA.ID, DocumentRID: docA.RID, Confidence: 0.9,
	}))

	// Entity corroborated by both documents
	shared := &model.Entity{
		OwnerID:        "owner-rebuild",
		Name:           "SharedCorp",
		NormalizedName: "sharedcorp",
		Kind:           model.EntityKindOrg,
		MentionCount:   2,
	}
	require.NoError(t, env.entities.UpsertEntity(shared))
	require.NoError(t, env.entities.InsertChunkMention(&model.ChunkMention{
		EntityID: shared.ID, ChunkID: chunkA.ID, DocumentRID: docA.RID, Confidence: 0.9,
	}))
	require.NoError(t, env.entities.InsertChunkMention(&model.ChunkMention{
		EntityID: shared.ID, ChunkID: chunkB.ID, DocumentRID: docB.RID, Confidence: 0.9,
	}))

	err := env.entities.DeleteEntitiesForDocument(docA.RID)
	assert.NoError(t, err, "Expected DeleteEntitiesForDocument to not return an error")

	t.Run("Entity known only from the document is removed", func(t *testing.T) {
		entity, err := env.entities.SelectEntityByName("owner-rebuild", "solocorp", model.EntityKindOrg)
		assert.NoError(t, err)
		assert.Nil(t, entity, "Expected single-document entity to be deleted")
	})

	t.Run("Corroborated entity survives with recomputed count", func(t *testing.T) {
		entity, err := env.entities.SelectEntityByName("owner-rebuild", "sharedcorp", model.EntityKindOrg)
		assert.NoError(t, err)
		require.NotNil(t, entity, "Expected corroborated entity to survive")
		assert.Equal(t, 1, entity.MentionCount, "Expected mention count recomputed from remaining mentions")
	})

	t.Run("Delete for document without mentions is a no-op", func(t *testing.T) {
		err := env.entities.DeleteEntitiesForDocument(docA.RID)
		assert.NoError(t, err, "Expected idempotent delete")
	})
}

func TestEntitiesQualityQueries(t *testing.T) {
	env := initGraphTestEnv(t)

	doc, chunk := env.insertDocumentWithChunk(t, "owner-quality", "Quality Doc")
	defer env.documents.DeleteDocument(doc.RID, doc.OwnerID)

	connected := &model.Entity{
		OwnerID: "owner-quality", Name: "Hub", NormalizedName: "hub",
		Kind: model.EntityKindConcept, Authority: 0.8, MentionCount: 4,
	}
	orphan := &model.Entity{
		OwnerID: "owner-quality", Name: "Island", NormalizedName: "island",
		Kind: model.EntityKindConcept, Authority: 0.1, MentionCount: 1,
	}
	require.NoError(t, env.entities.UpsertEntity(connected))
	require.NoError(t, env.entities.UpsertEntity(orphan))

	edge := &model.Edge{
		OwnerID:             "owner-quality",
		SourceID:            connected.ID,
		SourceType:          model.NodeTypeEntity,
		TargetID:            doc.RID,
		TargetType:          model.NodeTypeDocument,
		Relation:            model.RelationMentions,
		Weight:              0.9,
		EvidenceChunkID:     chunk.ID,
		EvidenceDocumentRID: doc.RID,
	}
	require.NoError(t, env.edges.UpsertEdge(edge))

	t.Run("Orphaned entities", func(t *testing.T) {
		orphans, err := env.entities.SelectOrphanedEntities("owner-quality")
		assert.NoError(t, err)
		require.Len(t, orphans, 1, "Expected only the disconnected entity")
		assert.Equal(t, "Island", orphans[0].Name)
	})

	t.Run("Low authority entities", func(t *testing.T) {
		low, err := env.entities.SelectLowAuthorityEntities("owner-quality", 0.2)
		assert.NoError(t, err)
		require.Len(t, low, 1, "Expected only the entity below the floor")
		assert.Equal(t, "Island", low[0].Name)
	})

	t.Run("Entities by kind", func(t *testing.T) {
		concepts, err := env.entities.SelectEntitiesByKind("owner-quality", model.EntityKindConcept)
		assert.NoError(t, err)
		assert.Len(t, concepts, 2)
	})
}
