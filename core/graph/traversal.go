package graph

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
)

// EntityResolver looks up entity records for traversal results.
type EntityResolver interface {
	SelectEntityByID(entityID uuid.UUID) (*model.Entity, error)
}

// EdgeWalker enumerates the edges touching one entity, in either direction.
type EdgeWalker interface {
	SelectEdgesForEntity(entityID uuid.UUID) ([]*model.Edge, error)
}

// Neighbor is one entity reached during a neighborhood walk, with the edge
// it was first reached through and the hop path back to the origin.
type Neighbor struct {
	Entity   *model.Entity `json:"entity"`
	Distance int           `json:"distance"`
	Via      *model.Edge   `json:"via"`
	Path     []uuid.UUID   `json:"path"`
}

// Neighborhood is the result of a bounded breadth-first walk around one
// entity.
type Neighborhood struct {
	Origin    *model.Entity `json:"origin"`
	Neighbors []Neighbor    `json:"neighbors"`
}

// Traverser walks entity-to-entity edges breadth first. Edges are followed
// in both directions; document nodes terminate a path.
type Traverser struct {
	entities EntityResolver
	edges    EdgeWalker
}

// NewTraverser creates a graph traverser.
func NewTraverser(entities EntityResolver, edges EdgeWalker) (*Traverser, error) {
	if entities == nil || edges == nil {
		return nil, helper.NewError("traverser", fmt.Errorf("store is nil"))
	}
	return &Traverser{entities: entities, edges: edges}, nil
}

type traversalStep struct {
	entityID uuid.UUID
	distance int
	path     []uuid.UUID
}

// Neighborhood walks outward from an entity up to maxHops hops, skipping
// edges whose weight is below minWeight. Each reachable entity appears once,
// at its shortest distance.
func (t *Traverser) Neighborhood(entityID uuid.UUID, maxHops int, minWeight float64) (*Neighborhood, error) {
	if maxHops <= 0 {
		maxHops = 1
	}

	origin, err := t.entities.SelectEntityByID(entityID)
	if err != nil {
		return nil, helper.NewError("resolve origin", err)
	}

	result := &Neighborhood{Origin: origin}

	visited := map[uuid.UUID]bool{entityID: true}
	queue := []traversalStep{{entityID: entityID, path: []uuid.UUID{entityID}}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.distance >= maxHops {
			continue
		}

		edges, err := t.edges.SelectEdgesForEntity(current.entityID)
		if err != nil {
			return nil, helper.NewError("walk edges", err)
		}

		for _, edge := range edges {
			if edge.Weight < minWeight {
				continue
			}

			nextID, nextType := otherEnd(edge, current.entityID)
			if nextType != model.NodeTypeEntity || visited[nextID] {
				continue
			}
			visited[nextID] = true

			entity, err := t.entities.SelectEntityByID(nextID)
			if err != nil {
				return nil, helper.NewError("resolve neighbor", err)
			}

			path := append(append([]uuid.UUID{}, current.path...), nextID)
			result.Neighbors = append(result.Neighbors, Neighbor{
				Entity:   entity,
				Distance: current.distance + 1,
				Via:      edge,
				Path:     path,
			})

			queue = append(queue, traversalStep{
				entityID: nextID,
				distance: current.distance + 1,
				path:     path,
			})
		}
	}

	return result, nil
}

// otherEnd returns the node on the far side of an edge from the given
// entity.
func otherEnd(edge *model.Edge, from uuid.UUID) (uuid.UUID, model.NodeType) {
	if edge.SourceID == from {
		return edge.TargetID, edge.TargetType
	}
	return edge.SourceID, edge.SourceType
}
