package model

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DocumentType classifies the origin of a document.
type DocumentType string

const (
	DocumentTypePaper  DocumentType = "paper"
	DocumentTypePatent DocumentType = "patent"
	DocumentTypeNote   DocumentType = "note"
	DocumentTypeURL    DocumentType = "url"
	DocumentTypePDF    DocumentType = "pdf"
)

// ProcessingStatus tracks a document through ingestion. Transitions are
// one-directional except for an explicit re-ingestion, which resets a
// completed or failed document back to processing.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// CanTransitionTo reports whether next is a legal status transition.
func (s ProcessingStatus) CanTransitionTo(next ProcessingStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	case StatusCompleted, StatusFailed:
		// Re-ingestion.
		return next == StatusProcessing
	default:
		return false
	}
}

// KGStatus tracks knowledge graph extraction for a document. Reprocessing
// moves completed or failed back to processing after a destructive clear of
// the document's prior graph artifacts.
type KGStatus string

const (
	KGStatusNotProcessed KGStatus = "not_processed"
	KGStatusProcessing   KGStatus = "processing"
	KGStatusCompleted    KGStatus = "completed"
	KGStatusFailed       KGStatus = "failed"
)

// CanTransitionTo reports whether next is a legal KG status transition.
func (s KGStatus) CanTransitionTo(next KGStatus) bool {
	switch s {
	case KGStatusNotProcessed:
		return next == KGStatusProcessing
	case KGStatusProcessing:
		return next == KGStatusCompleted || next == KGStatusFailed
	case KGStatusCompleted, KGStatusFailed:
		return next == KGStatusProcessing
	default:
		return false
	}
}

// Document represents a source document. Content is only carried through
// ingestion and is never stored alongside the metadata row.
type Document struct {
	ID        int64            `json:"id"`
	RID       uuid.UUID        `json:"rid"`
	OwnerID   string           `json:"owner_id"`
	Title     string           `json:"title"`
	Type      DocumentType     `json:"document_type"`
	Source    string           `json:"source,omitempty"`
	Content   string           `json:"content,omitempty" db:"-"`
	Status    ProcessingStatus `json:"status"`
	KGStatus  KGStatus         `json:"kg_status"`
	Metadata  Metadata         `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewDocumentFromFile reads a file and creates a Document with the file
// content. The title defaults to the filename without extension, the source
// to the file path.
func NewDocumentFromFile(filePath string, metadata Metadata) (*Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(filePath)
	title := filename[:len(filename)-len(filepath.Ext(filename))]
	if title == "" {
		title = filename
	}

	docType := DocumentTypeNote
	if filepath.Ext(filePath) == ".pdf" {
		docType = DocumentTypePDF
	}

	return &Document{
		Title:    title,
		Type:     docType,
		Source:   filePath,
		Content:  string(content),
		Status:   StatusPending,
		KGStatus: KGStatusNotProcessed,
		Metadata: metadata,
	}, nil
}
