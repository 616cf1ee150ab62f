package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/seralind/ragcore/core/pipeline"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
)

// memoryStore is an in-memory stand-in for the database handlers, mirroring
// their merge and transition semantics.
type memoryStore struct {
	mu        sync.Mutex
	documents map[uuid.UUID]*model.Document
	chunks    map[uuid.UUID][]*model.Chunk
	entities  map[uuid.UUID]*model.Entity
	mentions  []*model.ChunkMention
	edges     map[string]*model.Edge
	nextChunk int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		documents: map[uuid.UUID]*model.Document{},
		chunks:    map[uuid.UUID][]*model.Chunk{},
		entities:  map[uuid.UUID]*model.Entity{},
		edges:     map[string]*model.Edge{},
	}
}

func (s *memoryStore) addDocument(ownerID string, title string, contents ...string) *model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	document := &model.Document{
		RID:      uuid.New(),
		OwnerID:  ownerID,
		Title:    title,
		KGStatus: model.KGStatusNotProcessed,
	}
	s.documents[document.RID] = document

	for i, content := range contents {
		s.nextChunk++
		s.chunks[document.RID] = append(s.chunks[document.RID], &model.Chunk{
			ID:          s.nextChunk,
			DocumentRID: document.RID,
			ChunkIndex:  i,
			Content:     content,
		})
	}
	return document
}

func (s *memoryStore) SelectDocument(rid uuid.UUID, ownerID string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	document, ok := s.documents[rid]
	if !ok || document.OwnerID != ownerID {
		return nil, helper.NewError("select document", helper.ErrNotFound)
	}
	return document, nil
}

func (s *memoryStore) UpdateKGStatus(rid uuid.UUID, ownerID string, next model.KGStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	document, ok := s.documents[rid]
	if !ok || document.OwnerID != ownerID {
		return helper.NewError("update KG status", helper.ErrNotFound)
	}
	if !document.KGStatus.CanTransitionTo(next) {
		return helper.NewError("update KG status", helper.ErrInvalidTransition)
	}
	document.KGStatus = next
	return nil
}

func (s *memoryStore) SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Chunk{}, s.chunks[documentRID]...), nil
}

func (s *memoryStore) UpsertEntity(entity *model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.entities {
		if existing.OwnerID == entity.OwnerID && existing.NormalizedName == entity.NormalizedName && existing.Kind == entity.Kind {
			existing.MentionCount += entity.MentionCount
			if entity.Authority > existing.Authority {
				existing.Authority = entity.Authority
			}
			existing.Aliases = unionAliases(existing.Aliases, entity.Aliases)
			*entity = *existing
			return nil
		}
	}

	entity.ID = uuid.New()
	stored := *entity
	stored.Aliases = append([]string{}, entity.Aliases...)
	s.entities[entity.ID] = &stored
	return nil
}

func unionAliases(a []string, b []string) []string {
	seen := map[string]bool{}
	var union []string
	for _, alias := range append(append([]string{}, a...), b...) {
		if !seen[alias] {
			seen[alias] = true
			union = append(union, alias)
		}
	}
	return union
}

func (s *memoryStore) InsertChunkMention(mention *model.ChunkMention) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.mentions {
		if existing.EntityID == mention.EntityID && existing.ChunkID == mention.ChunkID {
			return nil
		}
	}
	stored := *mention
	s.mentions = append(s.mentions, &stored)
	return nil
}

func (s *memoryStore) SelectChunksMentioningEntity(entityID uuid.UUID) ([]*model.ChunkMention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mentions []*model.ChunkMention
	for _, mention := range s.mentions {
		if mention.EntityID == entityID {
			mentions = append(mentions, mention)
		}
	}
	return mentions, nil
}

func (s *memoryStore) UpdateEntityAuthority(entityID uuid.UUID, authority float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[entityID]
	if !ok {
		return helper.NewError("update authority", helper.ErrNotFound)
	}
	if authority > entity.Authority {
		entity.Authority = authority
	}
	return nil
}

func (s *memoryStore) DeleteEntitiesForDocument(documentRID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[uuid.UUID]int{}
	var kept []*model.ChunkMention
	for _, mention := range s.mentions {
		if mention.DocumentRID == documentRID {
			continue
		}
		kept = append(kept, mention)
		counts[mention.EntityID]++
	}
	s.mentions = kept

	for id, entity := range s.entities {
		remaining := counts[id]
		if remaining == 0 {
			delete(s.entities, id)
			continue
		}
		entity.MentionCount = remaining
	}
	return nil
}

func (s *memoryStore) SelectEntityByID(entityID uuid.UUID) (*model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[entityID]
	if !ok {
		return nil, helper.NewError("select entity", helper.ErrNotFound)
	}
	return entity, nil
}

func (s *memoryStore) SelectAllEntities(ownerID string) ([]*model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entities []*model.Entity
	for _, entity := range s.entities {
		if entity.OwnerID == ownerID {
			entities = append(entities, entity)
		}
	}
	return entities, nil
}

func (s *memoryStore) SelectOrphanedEntities(ownerID string) ([]*model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	connected := map[uuid.UUID]bool{}
	for _, edge := range s.edges {
		connected[edge.SourceID] = true
		connected[edge.TargetID] = true
	}

	var orphans []*model.Entity
	for id, entity := range s.entities {
		if entity.OwnerID == ownerID && !connected[id] {
			orphans = append(orphans, entity)
		}
	}
	return orphans, nil
}

func (s *memoryStore) SelectLowAuthorityEntities(ownerID string, floor float64) ([]*model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var low []*model.Entity
	for _, entity := range s.entities {
		if entity.OwnerID == ownerID && entity.Authority < floor {
			low = append(low, entity)
		}
	}
	return low, nil
}

func (s *memoryStore) entityByName(normalizedName string) *model.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entity := range s.entities {
		if entity.NormalizedName == normalizedName {
			return entity
		}
	}
	return nil
}

func edgeKey(edge *model.Edge) string {
	return edge.SourceID.String() + ">" + string(edge.Relation) + ">" + edge.TargetID.String()
}

func (s *memoryStore) UpsertEdge(edge *model.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := edgeKey(edge)
	if existing, ok := s.edges[key]; ok {
		if edge.Weight > existing.Weight {
			existing.Weight = edge.Weight
			existing.Evidence = edge.Evidence
			existing.EvidenceChunkID = edge.EvidenceChunkID
			existing.EvidenceDocumentRID = edge.EvidenceDocumentRID
		}
		*edge = *existing
		return nil
	}

	edge.ID = uuid.New()
	stored := *edge
	s.edges[key] = &stored
	return nil
}

func (s *memoryStore) SelectEdgesForEntity(entityID uuid.UUID) ([]*model.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var edges []*model.Edge
	for _, edge := range s.edges {
		if edge.SourceID == entityID || edge.TargetID == entityID {
			edges = append(edges, edge)
		}
	}
	return edges, nil
}

func (s *memoryStore) SelectWeakEdges(ownerID string, floor float64) ([]*model.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var weak []*model.Edge
	for _, edge := range s.edges {
		if edge.OwnerID == ownerID && edge.Weight < floor {
			weak = append(weak, edge)
		}
	}
	return weak, nil
}

func (s *memoryStore) CountEdges(ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, edge := range s.edges {
		if edge.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) DeleteEdgesForDocument(documentRID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, edge := range s.edges {
		if edge.EvidenceDocumentRID == documentRID {
			delete(s.edges, key)
		}
	}
	return nil
}

// fakeExtractor returns canned extractions keyed by a marker substring in
// the chunk content. Contents containing "FAIL" error out.
type fakeExtractor struct {
	mu          sync.Mutex
	extractions map[string]*pipeline.Extraction
	calls       int
}

func (f *fakeExtractor) ExtractFromChunk(_ context.Context, content string) (*pipeline.Extraction, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if strings.Contains(content, "FAIL") {
		return nil, fmt.Errorf("model unavailable")
	}
	for marker, extraction := range f.extractions {
		if strings.Contains(content, marker) {
			return extraction, nil
		}
	}
	return &pipeline.Extraction{}, nil
}
