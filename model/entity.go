package model

import (
	"time"

	"github.com/google/uuid"
)

// EntityKind is the fixed vocabulary of entity kinds the extractor may emit.
type EntityKind string

const (
	EntityKindOrg        EntityKind = "org"
	EntityKindPerson     EntityKind = "person"
	EntityKindProduct    EntityKind = "product"
	EntityKindConcept    EntityKind = "concept"
	EntityKindTechnology EntityKind = "technology"
	EntityKindLocation   EntityKind = "location"
	EntityKindEvent      EntityKind = "event"
)

// EntityKinds lists all valid kinds.
var EntityKinds = []EntityKind{
	EntityKindOrg,
	EntityKindPerson,
	EntityKindProduct,
	EntityKindConcept,
	EntityKindTechnology,
	EntityKindLocation,
	EntityKindEvent,
}

// ValidEntityKind reports whether kind is part of the vocabulary.
func ValidEntityKind(kind EntityKind) bool {
	for _, k := range EntityKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Entity represents a deduplicated, canonical real-world object or concept.
// Entities are merged, never duplicated: mentions whose normalized names
// collapse to the same (owner, normalized name, kind) key accumulate into one
// record with aliases and a growing mention count.
type Entity struct {
	ID             uuid.UUID  `json:"id"`
	OwnerID        string     `json:"owner_id"`
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"`
	Kind           EntityKind `json:"kind"`
	Authority      float64    `json:"authority"`
	MentionCount   int        `json:"mention_count"`
	Aliases        []string   `json:"aliases,omitempty"`
	Metadata       Metadata   `json:"metadata,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ChunkMention is a back-reference from an entity to a chunk that mentions
// it. Mentions never imply ownership of the chunk.
type ChunkMention struct {
	EntityID    uuid.UUID `json:"entity_id"`
	ChunkID     int64     `json:"chunk_id"`
	DocumentRID uuid.UUID `json:"document_rid"`
	Confidence  float64   `json:"confidence"`
}

// AuthorityFromMentions derives an authority score in [0,1] from mention
// frequency and cross-document corroboration. The score grows monotonically
// with mentions and saturates instead of exceeding 1.
func AuthorityFromMentions(mentionCount int, documentCount int) float64 {
	if mentionCount <= 0 {
		return 0
	}
	score := 1.0 - 1.0/(1.0+float64(mentionCount)*0.2)
	if documentCount > 1 {
		score += 0.1 * float64(documentCount-1)
	}
	if score > 1 {
		score = 1
	}
	return score
}
