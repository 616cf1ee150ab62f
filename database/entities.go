package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
	loadSql "github.com/seralind/ragcore/sql"
)

// EntitiesDBHandlerFunctions defines the interface for entity database
// operations.
type EntitiesDBHandlerFunctions interface {
	UpsertEntity(entity *model.Entity) error
	InsertChunkMention(mention *model.ChunkMention) error
	SelectEntityByID(entityID uuid.UUID) (*model.Entity, error)
	SelectEntityByName(ownerID string, normalizedName string, kind model.EntityKind) (*model.Entity, error)
	SelectEntitiesByKind(ownerID string, kind model.EntityKind) ([]*model.Entity, error)
	SelectAllEntities(ownerID string) ([]*model.Entity, error)
	SelectEntitiesMatchingQuery(ownerID string, terms []string) ([]*model.Entity, error)
	SelectOrphanedEntities(ownerID string) ([]*model.Entity, error)
	SelectLowAuthorityEntities(ownerID string, floor float64) ([]*model.Entity, error)
	SelectChunksMentioningEntity(entityID uuid.UUID) ([]*model.ChunkMention, error)
	UpdateEntityAuthority(entityID uuid.UUID, authority float64) error
	DeleteEntitiesForDocument(documentRID uuid.UUID) error
}

// EntitiesDBHandler handles entity-related database operations.
type EntitiesDBHandler struct {
	db *helper.Database
}

// NewEntitiesDBHandler creates a new entities database handler and ensures
// the entities and chunk_mentions tables exist.
func NewEntitiesDBHandler(db *helper.Database) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	handler := &EntitiesDBHandler{db: db}

	if err := loadSql.CreateEntitiesTable(db.Instance); err != nil {
		return nil, helper.NewError("create entities table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return handler, nil
}

const entityColumns = `id, owner_id, name, normalized_name, kind, authority, mention_count, aliases, metadata, created_at, updated_at`

func scanEntity(row interface{ Scan(...interface{}) error }) (*model.Entity, error) {
	entity := &model.Entity{}
	err := row.Scan(
		&entity.ID,
		&entity.OwnerID,
		&entity.Name,
		&entity.NormalizedName,
		&entity.Kind,
		&entity.Authority,
		&entity.MentionCount,
		pq.Array(&entity.Aliases),
		&entity.Metadata,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// UpsertEntity inserts an entity or merges it into an existing row with the
// same (owner, normalized name, kind) key. Concurrent writers race to
// insert; the unique constraint decides the winner and the loser lands here
// as a merge, never as an error. Aliases accumulate, mention counts add up
// and authority only ever grows.
func (h *EntitiesDBHandler) UpsertEntity(entity *model.Entity) error {
	if entity.Metadata == nil {
		entity.Metadata = model.Metadata{}
	}
	if entity.Aliases == nil {
		entity.Aliases = []string{}
	}

	row := h.db.Instance.QueryRow(
		`INSERT INTO entities (owner_id, name, normalized_name, kind, authority, mention_count, aliases, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (owner_id, normalized_name, kind) DO UPDATE SET
		     mention_count = entities.mention_count + EXCLUDED.mention_count,
		     authority = GREATEST(entities.authority, EXCLUDED.authority),
		     aliases = ARRAY(SELECT DISTINCT unnest(entities.aliases || EXCLUDED.aliases)),
		     updated_at = now()
		 RETURNING `+entityColumns,
		entity.OwnerID,
		entity.Name,
		entity.NormalizedName,
		entity.Kind,
		entity.Authority,
		entity.MentionCount,
		pq.Array(entity.Aliases),
		entity.Metadata,
	)

	merged, err := scanEntity(row)
	if err != nil {
		return helper.NewError("scan", err)
	}

	*entity = *merged
	return nil
}

// InsertChunkMention records that a chunk mentions an entity. Duplicate
// mentions are a benign no-op.
func (h *EntitiesDBHandler) InsertChunkMention(mention *model.ChunkMention) error {
	_, err := h.db.Instance.Exec(
		`INSERT INTO chunk_mentions (entity_id, chunk_id, document_rid, confidence)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (entity_id, chunk_id) DO NOTHING`,
		mention.EntityID,
		mention.ChunkID,
		mention.DocumentRID,
		mention.Confidence,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectEntityByID selects an entity by its id.
func (h *EntitiesDBHandler) SelectEntityByID(entityID uuid.UUID) (*model.Entity, error) {
	row := h.db.Instance.QueryRow(
		`SELECT `+entityColumns+` FROM entities WHERE id = $1`,
		entityID,
	)

	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select entity", helper.ErrNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}
	return entity, nil
}

// SelectEntityByName selects an entity by its dedup key.
func (h *EntitiesDBHandler) SelectEntityByName(ownerID string, normalizedName string, kind model.EntityKind) (*model.Entity, error) {
	row := h.db.Instance.QueryRow(
		`SELECT `+entityColumns+` FROM entities WHERE owner_id = $1 AND normalized_name = $2 AND kind = $3`,
		ownerID, normalizedName, kind,
	)

	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}
	return entity, nil
}

// SelectEntitiesByKind lists an owner's entities of one kind.
func (h *EntitiesDBHandler) SelectEntitiesByKind(ownerID string, kind model.EntityKind) ([]*model.Entity, error) {
	return h.selectEntities(
		`SELECT `+entityColumns+` FROM entities WHERE owner_id = $1 AND kind = $2 ORDER BY mention_count DESC`,
		ownerID, kind,
	)
}

// SelectAllEntities lists all entities of an owner.
func (h *EntitiesDBHandler) SelectAllEntities(ownerID string) ([]*model.Entity, error) {
	return h.selectEntities(
		`SELECT `+entityColumns+` FROM entities WHERE owner_id = $1 ORDER BY mention_count DESC`,
		ownerID,
	)
}

// SelectEntitiesMatchingQuery returns entities whose name or aliases match
// any of the given query terms. Used by the graph boost to find entities a
// query talks about.
func (h *EntitiesDBHandler) SelectEntitiesMatchingQuery(ownerID string, terms []string) ([]*model.Entity, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	patterns := make([]string, len(terms))
	for i, term := range terms {
		patterns[i] = "%" + term + "%"
	}

	return h.selectEntities(
		`SELECT `+entityColumns+` FROM entities
		 WHERE owner_id = $1 AND (
		     lower(normalized_name) LIKE ANY($2)
		     OR EXISTS (SELECT 1 FROM unnest(aliases) a WHERE lower(a) LIKE ANY($2))
		 )
		 ORDER BY authority DESC`,
		ownerID, pq.Array(patterns),
	)
}

// SelectOrphanedEntities returns entities with no incoming or outgoing
// edges.
func (h *EntitiesDBHandler) SelectOrphanedEntities(ownerID string) ([]*model.Entity, error) {
	return h.selectEntities(
		`SELECT `+entityColumns+` FROM entities e
		 WHERE e.owner_id = $1
		   AND NOT EXISTS (SELECT 1 FROM edges WHERE source_id = e.id OR target_id = e.id)
		 ORDER BY e.mention_count DESC`,
		ownerID,
	)
}

// SelectLowAuthorityEntities returns entities below the authority floor.
func (h *EntitiesDBHandler) SelectLowAuthorityEntities(ownerID string, floor float64) ([]*model.Entity, error) {
	return h.selectEntities(
		`SELECT `+entityColumns+` FROM entities WHERE owner_id = $1 AND authority < $2 ORDER BY authority ASC`,
		ownerID, floor,
	)
}

func (h *EntitiesDBHandler) selectEntities(query string, args ...interface{}) ([]*model.Entity, error) {
	rows, err := h.db.Instance.Query(query, args...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		entities = append(entities, entity)
	}

	return entities, rows.Err()
}

// SelectChunksMentioningEntity returns the chunk back-references of an
// entity.
func (h *EntitiesDBHandler) SelectChunksMentioningEntity(entityID uuid.UUID) ([]*model.ChunkMention, error) {
	rows, err := h.db.Instance.Query(
		`SELECT entity_id, chunk_id, document_rid, confidence FROM chunk_mentions WHERE entity_id = $1`,
		entityID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var mentions []*model.ChunkMention
	for rows.Next() {
		mention := &model.ChunkMention{}
		if err := rows.Scan(&mention.EntityID, &mention.ChunkID, &mention.DocumentRID, &mention.Confidence); err != nil {
			return nil, helper.NewError("scan", err)
		}
		mentions = append(mentions, mention)
	}

	return mentions, rows.Err()
}

// UpdateEntityAuthority raises an entity's authority score. Authority is
// monotonically informed by mentions, so a lower value never overwrites a
// higher one.
func (h *EntitiesDBHandler) UpdateEntityAuthority(entityID uuid.UUID, authority float64) error {
	_, err := h.db.Instance.Exec(
		`UPDATE entities SET authority = GREATEST(authority, $2), updated_at = now() WHERE id = $1`,
		entityID, authority,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteEntitiesForDocument removes the document's mention back-references,
// recomputes mention counts for the affected entities and deletes those left
// without any mentions. Entities corroborated by other documents survive
// untouched, which keeps rebuilds strictly document-scoped.
func (h *EntitiesDBHandler) DeleteEntitiesForDocument(documentRID uuid.UUID) error {
	tx, err := h.db.Instance.Begin()
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`DELETE FROM chunk_mentions WHERE document_rid = $1 RETURNING entity_id`,
		documentRID,
	)
	if err != nil {
		return helper.NewError("delete mentions", err)
	}

	affected := make(map[uuid.UUID]bool)
	for rows.Next() {
		var entityID uuid.UUID
		if err := rows.Scan(&entityID); err != nil {
			rows.Close()
			return helper.NewError("scan", err)
		}
		affected[entityID] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return helper.NewError("rows", err)
	}

	if len(affected) == 0 {
		return tx.Commit()
	}

	ids := make([]string, 0, len(affected))
	for id := range affected {
		ids = append(ids, id.String())
	}

	_, err = tx.Exec(
		`UPDATE entities e SET
		     mention_count = (SELECT COUNT(*) FROM chunk_mentions m WHERE m.entity_id = e.id),
		     updated_at = now()
		 WHERE e.id = ANY($1::uuid[])`,
		pq.Array(ids),
	)
	if err != nil {
		return helper.NewError("recompute mention counts", err)
	}

	_, err = tx.Exec(
		`DELETE FROM entities WHERE id = ANY($1::uuid[]) AND mention_count = 0`,
		pq.Array(ids),
	)
	if err != nil {
		return helper.NewError("delete orphaned entities", err)
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit", err)
	}

	return nil
}
