package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
	loadSql "github.com/seralind/ragcore/sql"
)

// DocumentsDBHandlerFunctions defines the interface for document database
// operations.
type DocumentsDBHandlerFunctions interface {
	InsertDocument(document *model.Document) error
	SelectDocument(rid uuid.UUID, ownerID string) (*model.Document, error)
	SelectAllDocumentsByOwner(ownerID string) ([]*model.Document, error)
	UpdateStatus(rid uuid.UUID, ownerID string, next model.ProcessingStatus) error
	UpdateKGStatus(rid uuid.UUID, ownerID string, next model.KGStatus) error
	DeleteDocument(rid uuid.UUID, ownerID string) error
}

// DocumentsDBHandler handles document-related database operations.
type DocumentsDBHandler struct {
	db *helper.Database
}

// NewDocumentsDBHandler creates a new documents database handler and ensures
// the documents table exists.
func NewDocumentsDBHandler(db *helper.Database) (*DocumentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	handler := &DocumentsDBHandler{db: db}

	if err := loadSql.CreateDocumentsTable(db.Instance); err != nil {
		return nil, helper.NewError("create documents table", err)
	}

	db.Logger.Info("Initialized DocumentsDBHandler")

	return handler, nil
}

const documentColumns = `id, rid, owner_id, title, document_type, source, status, kg_status, metadata, created_at, updated_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*model.Document, error) {
	document := &model.Document{}
	err := row.Scan(
		&document.ID,
		&document.RID,
		&document.OwnerID,
		&document.Title,
		&document.Type,
		&document.Source,
		&document.Status,
		&document.KGStatus,
		&document.Metadata,
		&document.CreatedAt,
		&document.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return document, nil
}

// InsertDocument inserts a new document. The document's Content field is
// never persisted; only metadata goes into the row.
func (h *DocumentsDBHandler) InsertDocument(document *model.Document) error {
	if document.Status == "" {
		document.Status = model.StatusPending
	}
	if document.KGStatus == "" {
		document.KGStatus = model.KGStatusNotProcessed
	}
	if document.Metadata == nil {
		document.Metadata = model.Metadata{}
	}

	row := h.db.Instance.QueryRow(
		`INSERT INTO documents (owner_id, title, document_type, source, status, kg_status, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+documentColumns,
		document.OwnerID,
		document.Title,
		document.Type,
		document.Source,
		document.Status,
		document.KGStatus,
		document.Metadata,
	)

	inserted, err := scanDocument(row)
	if err != nil {
		return helper.NewError("scan", err)
	}

	content := document.Content
	*document = *inserted
	document.Content = content

	return nil
}

// SelectDocument selects a document by RID, scoped to its owner. A missing
// row or an ownership mismatch both surface as ErrNotFound.
func (h *DocumentsDBHandler) SelectDocument(rid uuid.UUID, ownerID string) (*model.Document, error) {
	row := h.db.Instance.QueryRow(
		`SELECT `+documentColumns+` FROM documents WHERE rid = $1 AND owner_id = $2`,
		rid, ownerID,
	)

	document, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select document", helper.ErrNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return document, nil
}

// SelectAllDocumentsByOwner lists an owner's documents, newest first.
func (h *DocumentsDBHandler) SelectAllDocumentsByOwner(ownerID string) ([]*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT `+documentColumns+` FROM documents WHERE owner_id = $1 ORDER BY updated_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var documents []*model.Document
	for rows.Next() {
		document, err := scanDocument(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		documents = append(documents, document)
	}

	return documents, rows.Err()
}

// UpdateStatus moves a document to the next processing status, enforcing the
// one-directional transition rules.
func (h *DocumentsDBHandler) UpdateStatus(rid uuid.UUID, ownerID string, next model.ProcessingStatus) error {
	return h.updateStatusColumn(rid, ownerID, "status", string(next), func(current string) bool {
		return model.ProcessingStatus(current).CanTransitionTo(next)
	})
}

// UpdateKGStatus moves a document to the next knowledge graph status,
// enforcing the transition rules.
func (h *DocumentsDBHandler) UpdateKGStatus(rid uuid.UUID, ownerID string, next model.KGStatus) error {
	return h.updateStatusColumn(rid, ownerID, "kg_status", string(next), func(current string) bool {
		return model.KGStatus(current).CanTransitionTo(next)
	})
}

func (h *DocumentsDBHandler) updateStatusColumn(rid uuid.UUID, ownerID string, column string, next string, canTransition func(string) bool) error {
	tx, err := h.db.Instance.Begin()
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow(
		`SELECT `+column+` FROM documents WHERE rid = $1 AND owner_id = $2 FOR UPDATE`,
		rid, ownerID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return helper.NewError("update "+column, helper.ErrNotFound)
	}
	if err != nil {
		return helper.NewError("scan", err)
	}

	if !canTransition(current) {
		return helper.NewError(
			fmt.Sprintf("update %s from %s to %s", column, current, next),
			helper.ErrInvalidTransition,
		)
	}

	_, err = tx.Exec(
		`UPDATE documents SET `+column+` = $1, updated_at = now() WHERE rid = $2 AND owner_id = $3`,
		next, rid, ownerID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit", err)
	}

	return nil
}

// DeleteDocument deletes a document. Chunks cascade at the schema level.
func (h *DocumentsDBHandler) DeleteDocument(rid uuid.UUID, ownerID string) error {
	result, err := h.db.Instance.Exec(
		`DELETE FROM documents WHERE rid = $1 AND owner_id = $2`,
		rid, ownerID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return helper.NewError("rows affected", err)
	}
	if affected == 0 {
		return helper.NewError("delete document", helper.ErrNotFound)
	}

	return nil
}
