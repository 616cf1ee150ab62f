package graph

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
)

// QualityEntityStore is the read-only entity slice the analyzer needs.
type QualityEntityStore interface {
	SelectAllEntities(ownerID string) ([]*model.Entity, error)
	SelectOrphanedEntities(ownerID string) ([]*model.Entity, error)
	SelectLowAuthorityEntities(ownerID string, floor float64) ([]*model.Entity, error)
}

// QualityEdgeStore is the read-only edge slice the analyzer needs.
type QualityEdgeStore interface {
	SelectWeakEdges(ownerID string, floor float64) ([]*model.Edge, error)
	CountEdges(ownerID string) (int, error)
}

// Analyzer inspects a graph for structural weaknesses. Its report is
// advisory: no finding triggers any mutation. Duplicate pairs above the
// auto-merge threshold are marked as such, but applying the merge stays a
// separate step.
type Analyzer struct {
	entities QualityEntityStore
	edges    QualityEdgeStore
	config   model.QualityConfig
	logger   *slog.Logger
}

// NewAnalyzer creates a graph quality analyzer.
func NewAnalyzer(entities QualityEntityStore, edges QualityEdgeStore, config model.QualityConfig, logger *slog.Logger) (*Analyzer, error) {
	if entities == nil || edges == nil {
		return nil, helper.NewError("quality analyzer", fmt.Errorf("store is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		entities: entities,
		edges:    edges,
		config:   config,
		logger:   logger,
	}, nil
}

// Analyze builds a quality report for one owner's graph.
func (a *Analyzer) Analyze(ownerID string) (*model.QualityReport, error) {
	entities, err := a.entities.SelectAllEntities(ownerID)
	if err != nil {
		return nil, helper.NewError("load entities", err)
	}

	report := &model.QualityReport{
		GeneratedAt:      time.Now(),
		EntityCount:      len(entities),
		KindDistribution: map[model.EntityKind]int{},
	}

	for _, entity := range entities {
		report.KindDistribution[entity.Kind]++
	}

	report.EdgeCount, err = a.edges.CountEdges(ownerID)
	if err != nil {
		return nil, helper.NewError("count edges", err)
	}

	report.OrphanedEntities, err = a.entities.SelectOrphanedEntities(ownerID)
	if err != nil {
		return nil, helper.NewError("load orphans", err)
	}

	report.LowAuthorityEntities, err = a.entities.SelectLowAuthorityEntities(ownerID, a.config.AuthorityFloor)
	if err != nil {
		return nil, helper.NewError("load low authority entities", err)
	}

	report.WeakEdges, err = a.edges.SelectWeakEdges(ownerID, a.config.EdgeWeightFloor)
	if err != nil {
		return nil, helper.NewError("load weak edges", err)
	}

	report.PotentialDuplicates = a.findDuplicates(entities)
	report.Recommendations = a.recommend(report)

	return report, nil
}

// findDuplicates compares same-kind entity pairs by normalized-name
// similarity. Quadratic per kind, which is fine at the entity counts a
// single owner accumulates.
func (a *Analyzer) findDuplicates(entities []*model.Entity) []model.DuplicatePair {
	byKind := map[model.EntityKind][]*model.Entity{}
	for _, entity := range entities {
		byKind[entity.Kind] = append(byKind[entity.Kind], entity)
	}

	var pairs []model.DuplicatePair
	for kind, group := range byKind {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				similarity := NameSimilarity(group[i].Name, group[j].Name)
				if similarity < a.config.DuplicateThreshold {
					continue
				}
				pairs = append(pairs, model.DuplicatePair{
					FirstID:    group[i].ID,
					FirstName:  group[i].Name,
					SecondID:   group[j].ID,
					SecondName: group[j].Name,
					Kind:       kind,
					Similarity: similarity,
					AutoMerge:  similarity >= a.config.AutoMergeThreshold,
				})
			}
		}
	}
	return pairs
}

func (a *Analyzer) recommend(report *model.QualityReport) []string {
	var recommendations []string
	if n := len(report.OrphanedEntities); n > 0 {
		recommendations = append(recommendations, fmt.Sprintf("%d entities have no edges; re-running extraction on their source documents may connect them", n))
	}
	if n := len(report.PotentialDuplicates); n > 0 {
		recommendations = append(recommendations, fmt.Sprintf("%d entity pairs look like duplicates; review and merge them", n))
	}
	if n := len(report.LowAuthorityEntities); n > 0 {
		recommendations = append(recommendations, fmt.Sprintf("%d entities have authority below %.2f; they may be extraction noise", n, a.config.AuthorityFloor))
	}
	if n := len(report.WeakEdges); n > 0 {
		recommendations = append(recommendations, fmt.Sprintf("%d edges have weight below %.2f; consider pruning them", n, a.config.EdgeWeightFloor))
	}
	return recommendations
}
