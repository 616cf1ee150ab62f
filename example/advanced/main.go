package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/seralind/ragcore"
	"github.com/seralind/ragcore/core/pipeline"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
)

const ownerID = "advanced-example"

func main() {
	// Start a test PostgreSQL container with pgvector
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		User:     "postgres",
		Password: "postgres",
		DBName:   "ragcore_test",
		Schema:   "public",
	}

	// Local ONNX models for both embedding and entity extraction, so the
	// whole example runs offline.
	embedder, err := pipeline.NewHugotEmbedder()
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	extractor, err := pipeline.NewNERExtractor()
	if err != nil {
		log.Fatalf("Failed to create extractor: %v", err)
	}

	core, err := ragcore.NewRAGCore(dbConfig, model.DefaultConfig(), embedder, extractor)
	if err != nil {
		log.Fatalf("Failed to create ragcore: %v", err)
	}
	defer core.Close(context.Background())

	ctx := context.Background()

	doc1 := &model.Document{
		OwnerID: ownerID,
		Title:   "A Short History of Relational Databases",
		Type:    model.DocumentTypePaper,
		Source:  "advanced_example/relational",
		Content: `Edgar Codd published the relational model while working at IBM in San Jose.
Michael Stonebraker later built Ingres at Berkeley, and Postgres grew out of that work.
Oracle commercialized the relational model aggressively during the 1980s.
IBM answered with DB2, and the SQL language became the shared interface for all of them.`,
	}
	doc2 := &model.Document{
		OwnerID: ownerID,
		Title:   "Vector Search Notes",
		Type:    model.DocumentTypeNote,
		Source:  "advanced_example/vectors",
		Content: `Postgres gained vector similarity search through the pgvector extension.
Andrew Kane maintains pgvector as an open source project.
Companies like OpenAI popularized embedding-based retrieval,
and Postgres with pgvector became a common storage choice for it.`,
	}

	fmt.Println("=== Ingesting Documents ===")
	for _, doc := range []*model.Document{doc1, doc2} {
		numChunks, err := core.ProcessAndInsertDocument(ctx, doc)
		if err != nil {
			log.Fatalf("Failed to ingest %q: %v", doc.Title, err)
		}
		fmt.Printf("%q (RID %s): %d chunks\n", doc.Title, doc.RID, numChunks)
	}

	// 1. Build the knowledge graph for both documents
	fmt.Println("\n=== 1. Knowledge Graph Build ===")
	batch, err := core.BuildKnowledgeGraphForDocuments(ctx, []uuid.UUID{doc1.RID, doc2.RID}, ownerID)
	if err != nil {
		log.Fatalf("Graph build failed: %v", err)
	}
	fmt.Printf("Processed %d documents (%d failed): %d entities, %d relations\n",
		batch.DocumentsProcessed, batch.DocumentsFailed,
		batch.TotalEntities, batch.TotalRelations)
	for _, result := range batch.Results {
		fmt.Printf("  %s: success=%v entities=%d chunks=%d\n",
			result.DocumentRID, result.Success, result.EntitiesExtracted, result.ChunksProcessed)
	}

	// 2. Inspect graph quality
	fmt.Println("\n=== 2. Graph Quality Report ===")
	report, err := core.KnowledgeGraphQualityReport(ownerID)
	if err != nil {
		log.Fatalf("Quality report failed: %v", err)
	}
	fmt.Printf("%d entities, %d edges\n", report.EntityCount, report.EdgeCount)
	for kind, count := range report.KindDistribution {
		fmt.Printf("  %s: %d\n", kind, count)
	}
	for _, pair := range report.PotentialDuplicates {
		fmt.Printf("  possible duplicate: %q / %q (similarity %.2f, auto-merge %v)\n",
			pair.FirstName, pair.SecondName, pair.Similarity, pair.AutoMerge)
	}
	for _, recommendation := range report.Recommendations {
		fmt.Printf("  recommendation: %s\n", recommendation)
	}

	// 3. Walk the neighborhood of the most-mentioned entity
	fmt.Println("\n=== 3. Entity Neighborhood ===")
	entities, err := core.Entities.SelectAllEntities(ownerID)
	if err != nil {
		log.Fatalf("Failed to list entities: %v", err)
	}
	if len(entities) > 0 {
		origin := entities[0]
		for _, entity := range entities {
			if entity.MentionCount > origin.MentionCount {
				origin = entity
			}
		}
		neighborhood, err := core.EntityNeighborhood(origin.ID, 2, 0.0)
		if err != nil {
			log.Fatalf("Neighborhood walk failed: %v", err)
		}
		fmt.Printf("Around %q (%s, %d mentions):\n",
			origin.Name, origin.Kind, origin.MentionCount)
		for _, neighbor := range neighborhood.Neighbors {
			fmt.Printf("  distance %d: %q (%s)\n",
				neighbor.Distance, neighbor.Entity.Name, neighbor.Entity.Kind)
		}
	}

	// 4. Document-scoped retrieval
	fmt.Println("\n=== 4. Document-Scoped Retrieval ===")
	query := "Who maintains pgvector?"
	scoped := core.BuildRAGContextForDocuments(ctx, ownerID, query, []uuid.UUID{doc2.RID})
	fmt.Printf("Query %q scoped to %q: %d chunks\n", query, doc2.Title, len(scoped.Results))
	for _, marker := range scoped.Markers {
		fmt.Printf("  [%s] document %s\n", marker.Marker, marker.DocumentRID)
	}

	// 5. Record citations for an answer, asynchronously
	fmt.Println("\n=== 5. Citations ===")
	if len(scoped.Markers) > 0 {
		messageID := "msg-advanced-1"
		answer := fmt.Sprintf("Andrew Kane maintains pgvector [%s].", scoped.Markers[0].Marker)
		if err := core.RecordCitations(scoped, messageID, answer); err != nil {
			log.Fatalf("Failed to record citations: %v", err)
		}
		if err := core.Tasks.Drain(ctx); err != nil {
			log.Fatalf("Failed to drain task queue: %v", err)
		}
		citations, err := core.CitationsForMessage(messageID)
		if err != nil {
			log.Fatalf("Failed to read citations: %v", err)
		}
		for _, citation := range citations {
			fmt.Printf("  message %s cites chunk %d via [%s]\n",
				citation.MessageID, citation.ChunkID, citation.Marker)
		}

		weight := core.CalculateRAGWeight(answer, scoped)
		fmt.Printf("\nRAG weight: %.3f (knowledge gap: %v)\n", weight.Weight, weight.KnowledgeGap)
	}

	fmt.Println("\n=== Advanced Example Completed ===")
}
