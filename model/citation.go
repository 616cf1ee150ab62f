package model

import (
	"time"

	"github.com/google/uuid"
)

// Citation links an assistant message to the chunk it cited. Citations are
// created once per assistant response and never updated.
type Citation struct {
	ID          int64     `json:"id"`
	MessageID   string    `json:"message_id"`
	DocumentRID uuid.UUID `json:"document_rid"`
	ChunkID     int64     `json:"chunk_id"`
	Marker      string    `json:"marker"`
	Relevance   float64   `json:"relevance"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}
