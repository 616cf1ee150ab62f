package database

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
	loadSql "github.com/seralind/ragcore/sql"
)

// EdgesDBHandlerFunctions defines the interface for edge database
// operations.
type EdgesDBHandlerFunctions interface {
	UpsertEdge(edge *model.Edge) error
	SelectEdgesForEntity(entityID uuid.UUID) ([]*model.Edge, error)
	SelectEdgesTouchingEntities(entityIDs []uuid.UUID) ([]*model.Edge, error)
	SelectAllEdges(ownerID string) ([]*model.Edge, error)
	SelectWeakEdges(ownerID string, floor float64) ([]*model.Edge, error)
	CountEdges(ownerID string) (int, error)
	DeleteEdgesForDocument(documentRID uuid.UUID) error
}

// EdgesDBHandler handles edge-related database operations.
type EdgesDBHandler struct {
	db *helper.Database
}

// NewEdgesDBHandler creates a new edges database handler and ensures the
// edges table exists.
func NewEdgesDBHandler(db *helper.Database) (*EdgesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	handler := &EdgesDBHandler{db: db}

	if err := loadSql.CreateEdgesTable(db.Instance); err != nil {
		return nil, helper.NewError("create edges table", err)
	}

	db.Logger.Info("Initialized EdgesDBHandler")

	return handler, nil
}

const edgeColumns = `id, owner_id, source_id, source_type, target_id, target_type, relation, weight, evidence, evidence_chunk_id, evidence_document_rid, metadata, created_at`

func scanEdge(row interface{ Scan(...interface{}) error }) (*model.Edge, error) {
	edge := &model.Edge{}
	err := row.Scan(
		&edge.ID,
		&edge.OwnerID,
		&edge.SourceID,
		&edge.SourceType,
		&edge.TargetID,
		&edge.TargetType,
		&edge.Relation,
		&edge.Weight,
		&edge.Evidence,
		&edge.EvidenceChunkID,
		&edge.EvidenceDocumentRID,
		&edge.Metadata,
		&edge.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// UpsertEdge inserts an edge or, when a (source, relation, target) edge
// already exists, keeps whichever of the two has the higher weight. Finding
// an existing edge is expected during re-extraction and is not an error.
func (h *EdgesDBHandler) UpsertEdge(edge *model.Edge) error {
	if edge.Metadata == nil {
		edge.Metadata = model.Metadata{}
	}

	row := h.db.Instance.QueryRow(
		`INSERT INTO edges (owner_id, source_id, source_type, target_id, target_type, relation, weight, evidence, evidence_chunk_id, evidence_document_rid, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (source_id, relation, target_id) DO UPDATE SET
		     weight = GREATEST(edges.weight, EXCLUDED.weight),
		     evidence = CASE WHEN EXCLUDED.weight > edges.weight THEN EXCLUDED.evidence ELSE edges.evidence END,
		     evidence_chunk_id = CASE WHEN EXCLUDED.weight > edges.weight THEN EXCLUDED.evidence_chunk_id ELSE edges.evidence_chunk_id END,
		     evidence_document_rid = CASE WHEN EXCLUDED.weight > edges.weight THEN EXCLUDED.evidence_document_rid ELSE edges.evidence_document_rid END
		 RETURNING `+edgeColumns,
		edge.OwnerID,
		edge.SourceID,
		edge.SourceType,
		edge.TargetID,
		edge.TargetType,
		edge.Relation,
		edge.Weight,
		edge.Evidence,
		edge.EvidenceChunkID,
		edge.EvidenceDocumentRID,
		edge.Metadata,
	)

	stored, err := scanEdge(row)
	if err != nil {
		return helper.NewError("scan", err)
	}

	*edge = *stored
	return nil
}

// SelectEdgesForEntity returns all edges where the entity appears as source
// or target.
func (h *EdgesDBHandler) SelectEdgesForEntity(entityID uuid.UUID) ([]*model.Edge, error) {
	return h.selectEdges(
		`SELECT `+edgeColumns+` FROM edges WHERE source_id = $1 OR target_id = $1 ORDER BY weight DESC`,
		entityID,
	)
}

// SelectEdgesTouchingEntities returns edges touching any of the given
// entities. Used by the graph boost to walk one hop out from query
// entities.
func (h *EdgesDBHandler) SelectEdgesTouchingEntities(entityIDs []uuid.UUID) ([]*model.Edge, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(entityIDs))
	for i, id := range entityIDs {
		ids[i] = id.String()
	}

	return h.selectEdges(
		`SELECT `+edgeColumns+` FROM edges
		 WHERE source_id = ANY($1::uuid[]) OR target_id = ANY($1::uuid[])
		 ORDER BY weight DESC`,
		pq.Array(ids),
	)
}

// SelectAllEdges lists all edges of an owner.
func (h *EdgesDBHandler) SelectAllEdges(ownerID string) ([]*model.Edge, error) {
	return h.selectEdges(
		`SELECT `+edgeColumns+` FROM edges WHERE owner_id = $1 ORDER BY weight DESC`,
		ownerID,
	)
}

// SelectWeakEdges returns edges below the weight floor.
func (h *EdgesDBHandler) SelectWeakEdges(ownerID string, floor float64) ([]*model.Edge, error) {
	return h.selectEdges(
		`SELECT `+edgeColumns+` FROM edges WHERE owner_id = $1 AND weight < $2 ORDER BY weight ASC`,
		ownerID, floor,
	)
}

// CountEdges counts an owner's edges.
func (h *EdgesDBHandler) CountEdges(ownerID string) (int, error) {
	var count int
	err := h.db.Instance.QueryRow(`SELECT COUNT(*) FROM edges WHERE owner_id = $1`, ownerID).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}

// DeleteEdgesForDocument removes all edges whose evidence came from the
// given document.
func (h *EdgesDBHandler) DeleteEdgesForDocument(documentRID uuid.UUID) error {
	_, err := h.db.Instance.Exec(`DELETE FROM edges WHERE evidence_document_rid = $1`, documentRID)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func (h *EdgesDBHandler) selectEdges(query string, args ...interface{}) ([]*model.Edge, error) {
	rows, err := h.db.Instance.Query(query, args...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var edges []*model.Edge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		edges = append(edges, edge)
	}

	return edges, rows.Err()
}
