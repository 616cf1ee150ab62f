package model

import (
	"time"

	"github.com/google/uuid"
)

// Relation is the fixed vocabulary of edge labels.
type Relation string

const (
	RelationCites         Relation = "cites"
	RelationImplements    Relation = "implements"
	RelationCompetingWith Relation = "competing_with"
	RelationPartOf        Relation = "part_of"
	RelationBasedOn       Relation = "based_on"
	RelationMentions      Relation = "mentions"
	RelationRelatedTo     Relation = "related_to"
)

// Relations lists all valid relation labels.
var Relations = []Relation{
	RelationCites,
	RelationImplements,
	RelationCompetingWith,
	RelationPartOf,
	RelationBasedOn,
	RelationMentions,
	RelationRelatedTo,
}

// ValidRelation reports whether relation is part of the vocabulary.
func ValidRelation(relation Relation) bool {
	for _, r := range Relations {
		if r == relation {
			return true
		}
	}
	return false
}

// NodeType distinguishes the two node kinds an edge can connect.
type NodeType string

const (
	NodeTypeEntity   NodeType = "entity"
	NodeTypeDocument NodeType = "document"
)

// Edge represents a typed, directed, confidence-weighted link between two
// nodes. The (source, relation, target) triple is unique; inserting a
// duplicate keeps the highest-confidence evidence.
type Edge struct {
	ID                  uuid.UUID `json:"id"`
	OwnerID             string    `json:"owner_id"`
	SourceID            uuid.UUID `json:"source_id"`
	SourceType          NodeType  `json:"source_type"`
	TargetID            uuid.UUID `json:"target_id"`
	TargetType          NodeType  `json:"target_type"`
	Relation            Relation  `json:"relation"`
	Weight              float64   `json:"weight"`
	Evidence            string    `json:"evidence,omitempty"`
	EvidenceChunkID     int64     `json:"evidence_chunk_id,omitempty"`
	EvidenceDocumentRID uuid.UUID `json:"evidence_document_rid"`
	Metadata            Metadata  `json:"metadata,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}
