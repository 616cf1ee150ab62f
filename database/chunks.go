package database

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
	loadSql "github.com/seralind/ragcore/sql"
)

// ChunksDBHandlerFunctions defines the interface for chunk database
// operations.
type ChunksDBHandlerFunctions interface {
	InsertChunks(documentID int64, chunks []*model.Chunk) error
	SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error)
	DeleteChunksForDocument(documentRID uuid.UUID) error
	SelectChunksBySimilarity(embedding []float32, ownerID string, limit int, threshold float64, documentRIDs []uuid.UUID) ([]*model.Chunk, error)
	SelectChunksByKeywords(ownerID string, terms []string, limit int) ([]*model.Chunk, error)
}

// ChunksDBHandler handles chunk-related database operations.
type ChunksDBHandler struct {
	db *helper.Database
}

// NewChunksDBHandler creates a new chunks database handler and ensures the
// chunks table exists with the given embedding dimension.
func NewChunksDBHandler(db *helper.Database, embeddingDim int) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	handler := &ChunksDBHandler{db: db}

	if err := loadSql.CreateChunksTable(db.Instance, embeddingDim); err != nil {
		return nil, helper.NewError("create chunks table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return handler, nil
}

// InsertChunks inserts a document's chunks in one transaction. Chunk indexes
// must form a contiguous 0..n-1 sequence; anything else is rejected before
// touching the database.
func (h *ChunksDBHandler) InsertChunks(documentID int64, chunks []*model.Chunk) error {
	for i, chunk := range chunks {
		if chunk.ChunkIndex != i {
			return helper.NewError("chunk ordinal validation", fmt.Errorf("expected chunk index %d, got %d", i, chunk.ChunkIndex))
		}
	}

	tx, err := h.db.Instance.Begin()
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	for _, chunk := range chunks {
		if chunk.Metadata == nil {
			chunk.Metadata = model.Metadata{}
		}
		// A chunk whose embedding failed is stored without one; it stays
		// reachable by keyword search and ordinal reads.
		var embedding interface{}
		if len(chunk.Embedding) > 0 {
			embedding = pgvector.NewVector(chunk.Embedding)
		}
		row := tx.QueryRow(
			`INSERT INTO chunks (document_id, chunk_index, content, token_count, overlap_tokens, start_pos, end_pos, embedding, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id, (SELECT rid FROM documents WHERE id = $1), created_at`,
			documentID,
			chunk.ChunkIndex,
			chunk.Content,
			chunk.TokenCount,
			chunk.OverlapTokens,
			chunk.StartPos,
			chunk.EndPos,
			embedding,
			chunk.Metadata,
		)
		if err := row.Scan(&chunk.ID, &chunk.DocumentRID, &chunk.CreatedAt); err != nil {
			return helper.NewError(fmt.Sprintf("insert chunk %d", chunk.ChunkIndex), err)
		}
		chunk.DocumentID = documentID
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit", err)
	}

	return nil
}

// SelectChunksByDocument returns a document's chunks in ordinal order.
func (h *ChunksDBHandler) SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT c.id, c.document_id, d.rid, c.chunk_index, c.content, c.token_count, c.overlap_tokens, c.start_pos, c.end_pos, c.metadata, c.created_at
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE d.rid = $1
		 ORDER BY c.chunk_index ASC`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.DocumentRID,
			&chunk.ChunkIndex,
			&chunk.Content,
			&chunk.TokenCount,
			&chunk.OverlapTokens,
			&chunk.StartPos,
			&chunk.EndPos,
			&chunk.Metadata,
			&chunk.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// DeleteChunksForDocument deletes all chunks of a document. Used by
// re-ingestion, which replaces a document's chunks wholesale.
func (h *ChunksDBHandler) DeleteChunksForDocument(documentRID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`DELETE FROM chunks WHERE document_id = (SELECT id FROM documents WHERE rid = $1)`,
		documentRID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectChunksBySimilarity performs cosine similarity search over the
// owner's chunks, optionally restricted to specific documents. Results above
// the threshold come back ordered by similarity, with more recently updated
// documents winning ties.
func (h *ChunksDBHandler) SelectChunksBySimilarity(embedding []float32, ownerID string, limit int, threshold float64, documentRIDs []uuid.UUID) ([]*model.Chunk, error) {
	query := `SELECT c.id, c.document_id, d.rid, c.chunk_index, c.content, c.token_count, c.overlap_tokens, c.start_pos, c.end_pos, c.metadata, c.created_at,
	                 1 - (c.embedding <=> $1) AS similarity, d.title, d.updated_at
	          FROM chunks c
	          JOIN documents d ON d.id = c.document_id
	          WHERE d.owner_id = $2 AND c.embedding IS NOT NULL AND 1 - (c.embedding <=> $1) >= $3`

	args := []interface{}{pgvector.NewVector(embedding), ownerID, threshold}

	if len(documentRIDs) > 0 {
		rids := make([]string, len(documentRIDs))
		for i, rid := range documentRIDs {
			rids[i] = rid.String()
		}
		query += ` AND d.rid = ANY($4::uuid[])`
		args = append(args, pq.Array(rids))
	}

	query += fmt.Sprintf(` ORDER BY similarity DESC, d.updated_at DESC LIMIT %d`, limit)

	return h.selectScoredChunks(query, args)
}

// SelectChunksByKeywords returns chunks containing any of the given terms,
// scoped to the owner. It feeds the keyword leg of hybrid search.
func (h *ChunksDBHandler) SelectChunksByKeywords(ownerID string, terms []string, limit int) ([]*model.Chunk, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	patterns := make([]string, len(terms))
	for i, term := range terms {
		patterns[i] = "%" + strings.ToLower(term) + "%"
	}

	query := fmt.Sprintf(
		`SELECT c.id, c.document_id, d.rid, c.chunk_index, c.content, c.token_count, c.overlap_tokens, c.start_pos, c.end_pos, c.metadata, c.created_at,
		        0.0 AS similarity, d.title, d.updated_at
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE d.owner_id = $1 AND lower(c.content) LIKE ANY($2)
		 ORDER BY d.updated_at DESC LIMIT %d`, limit)

	return h.selectScoredChunks(query, []interface{}{ownerID, pq.Array(patterns)})
}

func (h *ChunksDBHandler) selectScoredChunks(query string, args []interface{}) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(query, args...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.DocumentRID,
			&chunk.ChunkIndex,
			&chunk.Content,
			&chunk.TokenCount,
			&chunk.OverlapTokens,
			&chunk.StartPos,
			&chunk.EndPos,
			&chunk.Metadata,
			&chunk.CreatedAt,
			&chunk.Similarity,
			&chunk.DocumentTitle,
			&chunk.DocumentDate,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}
