package main

import (
	"context"
	"fmt"
	"log"

	"github.com/seralind/ragcore"
	"github.com/seralind/ragcore/core/pipeline"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
)

const sampleContent = `Retrieval-augmented generation grounds language model answers in stored documents.

Documents are split into overlapping chunks, each chunk is embedded into a vector,
and the vectors are stored in PostgreSQL with the pgvector extension.

At query time the question is embedded too, the nearest chunks are retrieved,
and the model answers from that context instead of from memory alone.
Each retrieved chunk carries a citation marker so the answer can point back
to the exact passage it came from.`

func main() {
	// Start a test PostgreSQL container with pgvector
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		User:     "postgres",
		Password: "postgres",
		DBName:   "ragcore_test",
		Schema:   "public",
	}

	// A local ONNX embedding model, no API key needed
	embedder, err := pipeline.NewHugotEmbedder()
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}

	core, err := ragcore.NewRAGCore(dbConfig, model.DefaultConfig(), embedder, nil)
	if err != nil {
		log.Fatalf("Failed to create ragcore: %v", err)
	}
	defer core.Close(context.Background())

	ctx := context.Background()

	// Create a document with content and ingest it in one call
	doc := &model.Document{
		OwnerID: "basic-example",
		Title:   "Introduction to Retrieval-Augmented Generation",
		Type:    model.DocumentTypeNote,
		Source:  "basic_example",
		Metadata: model.Metadata{
			"topic": "retrieval",
		},
		Content: sampleContent,
	}

	fmt.Println("Ingesting document...")
	numChunks, err := core.ProcessAndInsertDocument(ctx, doc)
	if err != nil {
		log.Fatalf("Failed to process and insert document: %v", err)
	}
	fmt.Printf("Document inserted with RID: %s\n", doc.RID)
	fmt.Printf("Inserted %d chunks\n", numChunks)

	// Not every message needs retrieval
	for _, message := range []string{"hi", "How does retrieval-augmented generation store its chunks?"} {
		fmt.Printf("\nShouldUseRAG(%q) = %v\n", message, core.ShouldUseRAG(message))
	}

	// Build a RAG context for a question
	query := "How are document chunks stored and retrieved?"
	fmt.Printf("\nQuerying: %s\n", query)

	ragContext := core.BuildRAGContext(ctx, "basic-example", query)
	if !ragContext.HasRelevantContent {
		log.Fatal("Expected relevant content for the sample question")
	}

	fmt.Printf("\nRetrieved %d chunks (avg similarity %.3f):\n",
		len(ragContext.Results), ragContext.Stats.AverageSimilarity)
	for _, marker := range ragContext.Markers {
		fmt.Printf("  [%s] chunk %d (similarity %.3f)\n",
			marker.Marker, marker.ChunkID, marker.Similarity)
	}

	fmt.Println("\nContext block to prepend to the prompt:")
	fmt.Println(ragContext.ContextBlock)

	// Score how grounded an answer is in the retrieved context
	answer := fmt.Sprintf(
		"Chunks are embedded into vectors and stored in PostgreSQL with pgvector %s. "+
			"At query time the nearest chunks are retrieved and cited %s.",
		"["+ragContext.Markers[0].Marker+"]", "["+ragContext.Markers[0].Marker+"]")
	weight := core.CalculateRAGWeight(answer, ragContext)
	fmt.Printf("\nRAG weight for a grounded answer: %.3f (knowledge gap: %v)\n",
		weight.Weight, weight.KnowledgeGap)

	weight = core.CalculateRAGWeight("I like turtles.", ragContext)
	fmt.Printf("RAG weight for an ungrounded answer: %.3f (knowledge gap: %v)\n",
		weight.Weight, weight.KnowledgeGap)
}
