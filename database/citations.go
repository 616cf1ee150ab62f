package database

import (
	"fmt"

	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
	loadSql "github.com/seralind/ragcore/sql"
)

// CitationsDBHandlerFunctions defines the interface for citation database
// operations.
type CitationsDBHandlerFunctions interface {
	InsertCitations(citations []*model.Citation) error
	SelectCitationsByMessage(messageID string) ([]*model.Citation, error)
}

// CitationsDBHandler handles citation-related database operations.
type CitationsDBHandler struct {
	db *helper.Database
}

// NewCitationsDBHandler creates a new citations database handler and
// ensures the citations table exists.
func NewCitationsDBHandler(db *helper.Database) (*CitationsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	handler := &CitationsDBHandler{db: db}

	if err := loadSql.CreateCitationsTable(db.Instance); err != nil {
		return nil, helper.NewError("create citations table", err)
	}

	db.Logger.Info("Initialized CitationsDBHandler")

	return handler, nil
}

// InsertCitations stores a message's citations in a single transaction.
// Re-recording a citation for the same message and chunk is a no-op.
func (h *CitationsDBHandler) InsertCitations(citations []*model.Citation) error {
	if len(citations) == 0 {
		return nil
	}

	tx, err := h.db.Instance.Begin()
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO citations (message_id, document_rid, chunk_id, marker, relevance, position)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (message_id, chunk_id) DO NOTHING`,
	)
	if err != nil {
		return helper.NewError("prepare", err)
	}
	defer stmt.Close()

	for _, citation := range citations {
		_, err := stmt.Exec(
			citation.MessageID,
			citation.DocumentRID,
			citation.ChunkID,
			citation.Marker,
			citation.Relevance,
			citation.Position,
		)
		if err != nil {
			return helper.NewError("exec", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit", err)
	}

	return nil
}

// SelectCitationsByMessage returns a message's citations in answer order.
func (h *CitationsDBHandler) SelectCitationsByMessage(messageID string) ([]*model.Citation, error) {
	rows, err := h.db.Instance.Query(
		`SELECT id, message_id, document_rid, chunk_id, marker, relevance, position, created_at
		 FROM citations WHERE message_id = $1 ORDER BY position ASC`,
		messageID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var citations []*model.Citation
	for rows.Next() {
		citation := &model.Citation{}
		err := rows.Scan(
			&citation.ID,
			&citation.MessageID,
			&citation.DocumentRID,
			&citation.ChunkID,
			&citation.Marker,
			&citation.Relevance,
			&citation.Position,
			&citation.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		citations = append(citations, citation)
	}

	return citations, rows.Err()
}
