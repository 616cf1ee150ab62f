package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/seralind/ragcore"
	"github.com/seralind/ragcore/core/pipeline"
	"github.com/seralind/ragcore/helper"
	"github.com/seralind/ragcore/model"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const ownerID = "corpus-example"

// A small public-domain corpus from Project Gutenberg, plain text.
var corpusBooks = []struct {
	Title string
	URL   string
}{
	{"The Art of War", "https://www.gutenberg.org/cache/epub/132/pg132.txt"},
	{"Meditations", "https://www.gutenberg.org/cache/epub/2680/pg2680.txt"},
	{"The Prince", "https://www.gutenberg.org/cache/epub/1232/pg1232.txt"},
}

// startPostgresContainer starts a pgvector-enabled PostgreSQL container with
// a bind-mounted data directory, so ingested books survive between runs.
func startPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	dataDir := "./data"
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create data directory: %w", err)
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get absolute path for data directory: %w", err)
	}

	// When the database already exists, PostgreSQL doesn't re-initialize,
	// so the ready message only appears once instead of twice.
	pgVersionFile := filepath.Join(absDataDir, "PG_VERSION")
	_, err = os.Stat(pgVersionFile)
	dbExists := err == nil

	waitOccurrences := 2
	if dbExists {
		waitOccurrences = 1
		fmt.Printf("Using existing persistent database in: %s\n", absDataDir)
	} else {
		fmt.Printf("Creating new persistent database in: %s\n", absDataDir)
	}

	options := []testcontainers.ContainerCustomizer{
		postgres.WithDatabase("ragcore"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(waitOccurrences),
		),
		testcontainers.WithHostConfigModifier(func(hc *container.HostConfig) {
			hc.Mounts = append(hc.Mounts, mount.Mount{
				Type:   mount.TypeBind,
				Source: absDataDir,
				Target: "/var/lib/postgresql/data",
			})
		}),
	}

	pgContainer, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg17",
		options...,
	)
	if err != nil {
		return nil, "", fmt.Errorf("error starting postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", fmt.Errorf("error getting connection string: %w", err)
	}

	u, err := url.Parse(connStr)
	if err != nil {
		return nil, "", fmt.Errorf("error parsing connection string: %v", err)
	}

	return pgContainer.Terminate, u.Port(), nil
}

func downloadBook(bookURL string, outputDir string, title string) (string, error) {
	resp, err := http.Get(bookURL)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", title, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: status %d", title, resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", title, err)
	}

	outputPath := filepath.Join(outputDir, strings.ReplaceAll(title, " ", "_")+".txt")
	if err := os.WriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", title, err)
	}

	return outputPath, nil
}

// stripGutenbergBoilerplate cuts the license header and footer that wrap
// every Project Gutenberg text.
func stripGutenbergBoilerplate(content string) string {
	if start := strings.Index(content, "*** START OF"); start >= 0 {
		if lineEnd := strings.Index(content[start:], "\n"); lineEnd >= 0 {
			content = content[start+lineEnd+1:]
		}
	}
	if end := strings.Index(content, "*** END OF"); end >= 0 {
		content = content[:end]
	}
	return strings.TrimSpace(content)
}

func main() {
	teardown, dbPort, err := startPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		User:     "postgres",
		Password: "postgres",
		DBName:   "ragcore",
		Schema:   "public",
	}

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

	tmpDir, err := os.MkdirTemp("", "corpus-books-*")
	if err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	// Check existing documents so reruns against the persistent volume
	// don't re-ingest the same books.
	existing := make(map[string]bool)
	documents, err := core.Documents.SelectAllDocumentsByOwner(ownerID)
	if err != nil {
		log.Printf("Warning: could not check existing documents: %v", err)
	}
	for _, doc := range documents {
		existing[doc.Source] = true
	}
	if len(existing) > 0 {
		fmt.Printf("Found %d existing documents in database\n", len(existing))
	}

	totalChunks := 0
	skipped := 0
	processed := 0
	for i, book := range corpusBooks {
		source := fmt.Sprintf("gutenberg/%s", book.Title)
		if existing[source] {
			fmt.Printf("Skipping %s (%d/%d) - already ingested\n", book.Title, i+1, len(corpusBooks))
			skipped++
			continue
		}

		fmt.Printf("Downloading %s (%d/%d)...\n", book.Title, i+1, len(corpusBooks))
		bookPath, err := downloadBook(book.URL, tmpDir, book.Title)
		if err != nil {
			log.Printf("Warning: %v, skipping...", err)
			continue
		}

		content, err := os.ReadFile(bookPath)
		if err != nil {
			log.Printf("Warning: failed to read %s, skipping...", book.Title)
			continue
		}

		doc := &model.Document{
			OwnerID: ownerID,
			Title:   book.Title,
			Type:    model.DocumentTypeNote,
			Source:  source,
			Metadata: model.Metadata{
				"origin": "Project Gutenberg",
			},
			Content: stripGutenbergBoilerplate(string(content)),
		}

		fmt.Printf("Ingesting %s...\n", book.Title)
		numChunks, err := core.ProcessAndInsertDocument(ctx, doc)
		if err != nil {
			log.Printf("Warning: failed to ingest %s: %v, skipping...", book.Title, err)
			continue
		}

		fmt.Printf("  ✓ Inserted %d chunks from %s\n", numChunks, book.Title)
		totalChunks += numChunks
		processed++
	}

	fmt.Printf("\n✓ Corpus status:\n")
	fmt.Printf("  - Ingested: %d books (%d chunks)\n", processed, totalChunks)
	fmt.Printf("  - Skipped (already in DB): %d books\n", skipped)
	fmt.Printf("  - Total: %d books\n\n", len(corpusBooks))

	queries := []string{
		"What does Sun Tzu say about deception in war?",
		"How should a prince balance being feared and being loved?",
		"What is within our control according to the Stoics?",
	}

	for _, query := range queries {
		fmt.Printf("Query: %q\n", query)
		fmt.Println(strings.Repeat("=", 20))

		ragContext := core.BuildRAGContext(ctx, ownerID, query)
		if !ragContext.HasRelevantContent {
			fmt.Println("No relevant content found.")
			continue
		}

		for i, result := range ragContext.Results {
			if i >= 3 {
				break
			}
			content := result.Chunk.Content
			if len(content) > 200 {
				content = content[:200] + "..."
			}
			fmt.Printf("\n[%d] Score: %.4f | %s | Method: %s\n",
				i+1, result.Score, result.Chunk.DocumentTitle, result.RetrievalMethod)
			fmt.Printf("    %s\n", strings.ReplaceAll(content, "\n", "\n    "))
		}

		fmt.Printf("\nSources: ")
		for i, sourceRef := range ragContext.Stats.Sources {
			if i > 0 {
				fmt.Print(", ")
			}
			fmt.Printf("%s (%d chunks)", sourceRef.Title, sourceRef.ChunkCount)
		}
		fmt.Println()
		fmt.Println()
	}

	fmt.Println(strings.Repeat("=", 20))
	fmt.Println("Corpus example complete!")
}
