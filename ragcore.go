package ragcore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/seralind/ragcore/core/graph"
	"github.com/seralind/ragcore/core/pipeline"
	"github.com/seralind/ragcore/core/retrieval"
	"github.com/seralind/ragcore/database"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
	"github.com/seralind/ragcore/queue"
	loadSql "github.com/seralind/ragcore/sql"
)

// RAGCore wires the database handlers, ingestion pipeline, knowledge graph
// builder and retrieval engine into one entry point.
type RAGCore struct {
	DB        *helper.Database
	Documents *database.DocumentsDBHandler
	Chunks    *database.ChunksDBHandler
	Entities  *database.EntitiesDBHandler
	Edges     *database.EdgesDBHandler
	Citations *database.CitationsDBHandler

	Pipeline  *pipeline.Pipeline
	Builder   *graph.Builder
	Analyzer  *graph.Analyzer
	Traverser *graph.Traverser
	Engine    *retrieval.Engine
	Context   *retrieval.ContextBuilder
	Scorer    *retrieval.Scorer
	Tasks     *queue.Queue

	config model.Config
	log    *slog.Logger
}

// NewRAGCore creates a fully wired instance. The embedder decides the
// vector dimension of the chunks table; the extractor backs knowledge graph
// builds and may be nil if graph extraction is not used.
func NewRAGCore(
	dbConfig *helper.DatabaseConfiguration,
	config model.Config,
	embedder pipeline.Embedder,
	extractor pipeline.ChunkExtractor,
) (*RAGCore, error) {
	if embedder == nil {
		return nil, helper.NewError("create ragcore", fmt.Errorf("embedder is nil"))
	}
	if err := config.Validate(); err != nil {
		return nil, helper.NewError("create ragcore", err)
	}

	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	db := helper.NewDatabase("ragcore", dbConfig, logger)
	if err := loadSql.Init(db.Instance); err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	documents, err := database.NewDocumentsDBHandler(db)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}
	chunks, err := database.NewChunksDBHandler(db, embedder.Dimension())
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}
	entities, err := database.NewEntitiesDBHandler(db)
	if err != nil {
		return nil, helper.NewError("create entities handler", err)
	}
	edges, err := database.NewEdgesDBHandler(db)
	if err != nil {
		return nil, helper.NewError("create edges handler", err)
	}
	citations, err := database.NewCitationsDBHandler(db)
	if err != nil {
		return nil, helper.NewError("create citations handler", err)
	}

	chunker, err := pipeline.NewChunker(config.Chunking)
	if err != nil {
		return nil, helper.NewError("create chunker", err)
	}
	embeddingService, err := pipeline.NewEmbeddingService(embedder, 32, logger)
	if err != nil {
		return nil, helper.NewError("create embedding service", err)
	}

	core := &RAGCore{
		DB:        db,
		Documents: documents,
		Chunks:    chunks,
		Entities:  entities,
		Edges:     edges,
		Citations: citations,
		Pipeline:  pipeline.NewPipeline(chunker, embeddingService),
		Scorer:    retrieval.NewScorer(config.RAGWeight),
		config:    config,
		log:       logger,
	}

	if extractor != nil {
		core.Builder, err = graph.NewBuilder(documents, chunks, entities, edges, extractor, config.Extraction, logger)
		if err != nil {
			return nil, helper.NewError("create graph builder", err)
		}
	}
	core.Analyzer, err = graph.NewAnalyzer(entities, edges, config.Quality, logger)
	if err != nil {
		return nil, helper.NewError("create quality analyzer", err)
	}
	core.Traverser, err = graph.NewTraverser(entities, edges)
	if err != nil {
		return nil, helper.NewError("create traverser", err)
	}

	graphCache := helper.NewCache(5 * time.Minute)
	core.Engine, err = retrieval.NewEngine(embeddingService, chunks, entities, edges, config.Query, graphCache, logger)
	if err != nil {
		return nil, helper.NewError("create retrieval engine", err)
	}
	core.Context, err = retrieval.NewContextBuilder(core.Engine, logger)
	if err != nil {
		return nil, helper.NewError("create context builder", err)
	}

	core.Tasks, err = queue.NewQueue(4, logger)
	if err != nil {
		return nil, helper.NewError("create task queue", err)
	}

	return core, nil
}

// Close drains background tasks and closes the database connection.
func (r *RAGCore) Close(ctx context.Context) error {
	var queueErr error
	if r.Tasks != nil {
		queueErr = r.Tasks.Close(ctx)
	}
	if r.DB != nil && r.DB.Instance != nil {
		if err := r.DB.Instance.Close(); err != nil {
			return helper.NewError("close database", err)
		}
	}
	return queueErr
}

// ChunkText splits text into token-bounded chunks without touching the
// database or the embedding provider.
func (r *RAGCore) ChunkText(text string) (*model.ChunkingResult, error) {
	return r.Pipeline.Chunker.ChunkText(text)
}

// ShouldUseRAG reports whether a message warrants a retrieval pass.
func (r *RAGCore) ShouldUseRAG(message string) bool {
	return retrieval.ShouldUseRAG(message)
}

// ProcessAndInsertDocument stores a document, chunks its content, embeds
// the chunks and persists them. The document moves through
// pending -> processing -> completed; any failure lands it in failed with
// the error returned.
func (r *RAGCore) ProcessAndInsertDocument(ctx context.Context, document *model.Document) (int, error) {
	if document.Content == "" {
		return 0, helper.NewError("process document", fmt.Errorf("document content is empty"))
	}

	if err := r.Documents.InsertDocument(document); err != nil {
		return 0, helper.NewError("insert document", err)
	}
	r.log.Info("Inserted document", slog.String("document_rid", document.RID.String()), slog.String("title", document.Title))

	count, err := r.ingest(ctx, document)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ReingestDocument re-chunks a stored document from its stored content,
// replacing its chunks wholesale. The knowledge graph keeps its previous
// state until the next graph build.
func (r *RAGCore) ReingestDocument(ctx context.Context, documentRID uuid.UUID, ownerID string) (int, error) {
	document, err := r.Documents.SelectDocument(documentRID, ownerID)
	if err != nil {
		return 0, err
	}
	if document.Content == "" {
		return 0, helper.NewError("reingest document", fmt.Errorf("document has no stored content"))
	}

	if err := r.Chunks.DeleteChunksForDocument(document.RID); err != nil {
		return 0, helper.NewError("delete previous chunks", err)
	}

	return r.ingest(ctx, document)
}

func (r *RAGCore) ingest(ctx context.Context, document *model.Document) (int, error) {
	if err := r.Documents.UpdateStatus(document.RID, document.OwnerID, model.StatusProcessing); err != nil {
		return 0, err
	}

	result, err := r.Pipeline.Process(ctx, document.Content)
	if err != nil {
		r.markFailed(document)
		return 0, helper.NewError("process chunks", err)
	}

	if err := r.Chunks.InsertChunks(document.ID, result.Chunks); err != nil {
		r.markFailed(document)
		return 0, helper.NewError("insert chunks", err)
	}

	if err := r.Documents.UpdateStatus(document.RID, document.OwnerID, model.StatusCompleted); err != nil {
		return 0, err
	}

	r.log.Info("Processed document into chunks",
		slog.Int("num_chunks", len(result.Chunks)),
		slog.Int("total_tokens", result.TotalTokens),
		slog.String("document_rid", document.RID.String()))

	return len(result.Chunks), nil
}

func (r *RAGCore) markFailed(document *model.Document) {
	if err := r.Documents.UpdateStatus(document.RID, document.OwnerID, model.StatusFailed); err != nil {
		r.log.Error("Failed to mark document failed", "document", document.RID, "error", err)
	}
}

// BuildKnowledgeGraphForDocument runs entity/relation extraction over one
// document's chunks, replacing the document's previous graph contribution.
func (r *RAGCore) BuildKnowledgeGraphForDocument(ctx context.Context, documentRID uuid.UUID, ownerID string) (*model.GraphBuildResult, error) {
	if r.Builder == nil {
		return nil, helper.NewError("build knowledge graph", fmt.Errorf("no extractor configured"))
	}
	return r.Builder.BuildForDocument(ctx, documentRID, ownerID)
}

// BuildKnowledgeGraphForDocuments runs extraction over a batch. One
// document failing never aborts the rest.
func (r *RAGCore) BuildKnowledgeGraphForDocuments(ctx context.Context, documentRIDs []uuid.UUID, ownerID string) (*model.BatchGraphResult, error) {
	if r.Builder == nil {
		return nil, helper.NewError("build knowledge graph", fmt.Errorf("no extractor configured"))
	}
	return r.Builder.BuildForDocuments(ctx, documentRIDs, ownerID), nil
}

// BuildRAGContext retrieves and renders context for a query. It never
// fails: when retrieval breaks the returned context has
// HasRelevantContent=false and the caller answers without augmentation.
func (r *RAGCore) BuildRAGContext(ctx context.Context, ownerID string, query string) *model.RAGContext {
	return r.Context.Build(ctx, ownerID, query)
}

// BuildRAGContextForDocuments is BuildRAGContext restricted to the given
// documents.
func (r *RAGCore) BuildRAGContextForDocuments(ctx context.Context, ownerID string, query string, documentRIDs []uuid.UUID) *model.RAGContext {
	return r.Context.BuildScoped(ctx, ownerID, query, documentRIDs)
}

// CalculateRAGWeight scores how grounded an answer is in the context it was
// given.
func (r *RAGCore) CalculateRAGWeight(answer string, ragContext *model.RAGContext) *model.RAGWeight {
	return r.Scorer.Score(answer, ragContext)
}

// RecordCitations resolves the markers cited in an answer and persists them
// in the background. The caller's response path never waits on citation
// writes.
func (r *RAGCore) RecordCitations(ragContext *model.RAGContext, messageID string, answer string) error {
	citations := retrieval.CitationsForAnswer(ragContext, messageID, answer)
	if len(citations) == 0 {
		return nil
	}
	return r.Tasks.Submit("record citations", func(_ context.Context) error {
		return r.Citations.InsertCitations(citations)
	})
}

// CitationsForMessage returns the stored citations of one assistant
// message, in citation order.
func (r *RAGCore) CitationsForMessage(messageID string) ([]*model.Citation, error) {
	return r.Citations.SelectCitationsByMessage(messageID)
}

// KnowledgeGraphQualityReport analyzes an owner's graph for orphans, likely
// duplicates, low-authority entities and weak edges.
func (r *RAGCore) KnowledgeGraphQualityReport(ownerID string) (*model.QualityReport, error) {
	return r.Analyzer.Analyze(ownerID)
}

// EntityNeighborhood walks the graph around an entity up to maxHops hops,
// skipping edges below minWeight.
func (r *RAGCore) EntityNeighborhood(entityID uuid.UUID, maxHops int, minWeight float64) (*graph.Neighborhood, error) {
	return r.Traverser.Neighborhood(entityID, maxHops, minWeight)
}
