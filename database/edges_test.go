package database

import (
	"testing"

	"github.com/google/uuid"
	"github.com/seralind/ragcore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgesNewEdgesDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewEdgesDBHandler", func(t *testing.T) {
		edgesDbHandler, err := NewEdgesDBHandler(database)
		assert.NoError(t, err, "Expected NewEdgesDBHandler to not return an error")
		require.NotNil(t, edgesDbHandler, "Expected NewEdgesDBHandler to return a non-nil instance")
	})

	t.Run("Invalid call NewEdgesDBHandler with nil database", func(t *testing.T) {
		_, err := NewEdgesDBHandler(nil)
		assert.Error(t, err, "Expected error when creating EdgesDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestEdgesUpsert(t *testing.T) {
	env := initGraphTestEnv(t)

	doc, chunk := env.insertDocumentWithChunk(t, "owner-edge", "Edge Doc")
	defer env.documents.DeleteDocument(doc.RID, doc.OwnerID)

	source := &model.Entity{
		OwnerID: "owner-edge", Name: "Kubernetes", NormalizedName: "kubernetes",
		Kind: model.EntityKindTechnology, MentionCount: 1,
	}
	target := &model.Entity{
		OwnerID: "owner-edge", Name: "Docker", NormalizedName: "docker",
		Kind: model.EntityKindTechnology, MentionCount: 1,
	}
	require.NoError(t, env.entities.UpsertEntity(source))
	require.NoError(t, env.entities.UpsertEntity(target))

	edge := &model.Edge{
		OwnerID:             "owner-edge",
		SourceID:            source.ID,
		SourceType:          model.NodeTypeEntity,
		TargetID:            target.ID,
		TargetType:          model.NodeTypeEntity,
		Relation:            model.RelationBasedOn,
		Weight:              0.6,
		Evidence:            "Kubernetes orchestrates Docker containers",
		EvidenceChunkID:     chunk.ID,
		EvidenceDocumentRID: doc.RID,
	}

	t.Run("Insert new edge", func(t *testing.T) {
		err := env.edges.UpsertEdge(edge)
		assert.NoError(t, err, "Expected UpsertEdge to not return an error")
		assert.NotEqual(t, uuid.Nil, edge.ID, "Expected new edge to get an ID")
	})

	t.Run("Re-extraction with higher weight wins", func(t *testing.T) {
		stronger := &model.Edge{
			OwnerID:             "owner-edge",
			SourceID:            source.ID,
			SourceType:          model.NodeTypeEntity,
			TargetID:            target.ID,
			TargetType:          model.NodeTypeEntity,
			Relation:            model.RelationBasedOn,
			Weight:              0.9,
			Evidence:            "stronger evidence",
			EvidenceChunkID:     chunk.ID,
			EvidenceDocumentRID: doc.RID,
		}

		err := env.edges.UpsertEdge(stronger)
		assert.NoError(t, err, "Expected duplicate edge to merge, not error")
		assert.Equal(t, edge.ID, stronger.ID, "Expected the existing row to be kept")
		assert.InDelta(t, 0.9, stronger.Weight, 0.001, "Expected the higher weight to win")
		assert.Equal(t, "stronger evidence", stronger.Evidence, "Expected the evidence of the heavier edge")
	})

	t.Run("Re-extraction with lower weight keeps existing", func(t *testing.T) {
		weaker := &model.Edge{
			OwnerID:             "owner-edge",
			SourceID:            source.ID,
			SourceType:          model.NodeTypeEntity,
			TargetID:            target.ID,
			TargetType:          model.NodeTypeEntity,
			Relation:            model.RelationBasedOn,
			Weight:              0.2,
			Evidence:            "weaker evidence",
			EvidenceChunkID:     chunk.ID,
			EvidenceDocumentRID: doc.RID,
		}

		err := env.edges.UpsertEdge(weaker)
		assert.NoError(t, err)
		assert.InDelta(t, 0.9, weaker.Weight, 0.001, "Expected the stored weight to stay")
		assert.Equal(t, "stronger evidence", weaker.Evidence, "Expected the stored evidence to stay")
	})

	t.Run("Different relation creates a second edge", func(t *testing.T) {
		other := &model.Edge{
			OwnerID:             "owner-edge",
			SourceID:            source.ID,
			SourceType:          model.NodeTypeEntity,
			TargetID:            target.ID,
			TargetType:          model.NodeTypeEntity,
			Relation:            model.RelationRelatedTo,
			Weight:              0.4,
			EvidenceDocumentRID: doc.RID,
		}

		err := env.edges.UpsertEdge(other)
		assert.NoError(t, err)
		assert.NotEqual(t, edge.ID, other.ID, "Expected a new row for a different relation")

		count, err := env.edges.CountEdges("owner-edge")
		assert.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestEdgesSelect(t *testing.T) {
	env := initGraphTestEnv(t)

	doc, chunk := env.insertDocumentWithChunk(t, "owner-edgesel", "Edge Select Doc")
	defer env.documents.DeleteDocument(doc.RID, doc.OwnerID)

	names := []string{"alpha", "beta", "gamma"}
	entities := make([]*model.Entity, len(names))
	for i, name := range names {
		entities[i] = &model.Entity{
			OwnerID: "owner-edgesel", Name: name, NormalizedName: name,
			Kind: model.EntityKindConcept, MentionCount: 1,
		}
		require.NoError(t, env.entities.UpsertEntity(entities[i]))
	}

	insert := func(src, dst *model.Entity, relation model.Relation, weight float64) {
		require.NoError(t, env.edges.UpsertEdge(&model.Edge{
			OwnerID:             "owner-edgesel",
			SourceID:            src.ID,
			SourceType:          model.NodeTypeEntity,
			TargetID:            dst.ID,
			TargetType:          model.NodeTypeEntity,
			Relation:            relation,
			Weight:              weight,
			EvidenceChunkID:     chunk.ID,
			EvidenceDocumentRID: doc.RID,
		}))
	}

	insert(entities[0], entities[1], model.RelationRelatedTo, 0.8)
	insert(entities[1], entities[2], model.RelationPartOf, 0.3)

	t.Run("Edges for entity covers both directions", func(t *testing.T) {
		edges, err := env.edges.SelectEdgesForEntity(entities[1].ID)
		assert.NoError(t, err)
		assert.Len(t, edges, 2, "Expected edges where the entity is source or target")
	})

	t.Run("Edges touching entity set", func(t *testing.T) {
		edges, err := env.edges.SelectEdgesTouchingEntities([]uuid.UUID{entities[0].ID})
		assert.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, entities[0].ID, edges[0].SourceID)

		none, err := env.edges.SelectEdgesTouchingEntities(nil)
		assert.NoError(t, err)
		assert.Empty(t, none, "Expected no edges for an empty entity set")
	})

	t.Run("Weak edges", func(t *testing.T) {
		weak, err := env.edges.SelectWeakEdges("owner-edgesel", 0.35)
		assert.NoError(t, err)
		require.Len(t, weak, 1, "Expected only the edge below the floor")
		assert.Equal(t, model.RelationPartOf, weak[0].Relation)
	})

	t.Run("Delete edges for document", func(t *testing.T) {
		err := env.edges.DeleteEdgesForDocument(doc.RID)
		assert.NoError(t, err)

		count, err := env.edges.CountEdges("owner-edgesel")
		assert.NoError(t, err)
		assert.Zero(t, count, "Expected all evidence-scoped edges to be gone")
	})
}
