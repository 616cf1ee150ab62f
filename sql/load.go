package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed init.sql
var initSQL string

//go:embed documents.sql
var documentsSQL string

//go:embed chunks.sql
var chunksSQL string

//go:embed entities.sql
var entitiesSQL string

//go:embed edges.sql
var edgesSQL string

//go:embed citations.sql
var citationsSQL string

// Tables lists all tables the schema creates, in dependency order.
var Tables = []string{
	"documents",
	"chunks",
	"entities",
	"chunk_mentions",
	"edges",
	"citations",
}

// Init creates the database extensions. It must run before any table setup.
func Init(db *sql.DB) error {
	if _, err := db.Exec(initSQL); err != nil {
		return fmt.Errorf("error executing init SQL: %w", err)
	}
	return nil
}

// CreateDocumentsTable creates the documents table and its indexes.
func CreateDocumentsTable(db *sql.DB) error {
	if _, err := db.Exec(documentsSQL); err != nil {
		return fmt.Errorf("error executing documents SQL: %w", err)
	}
	return nil
}

// CreateChunksTable creates the chunks table with the given embedding
// dimension. The dimension is fixed at creation; changing it requires a
// wholesale re-ingestion into a fresh table.
func CreateChunksTable(db *sql.DB, embeddingDim int) error {
	if embeddingDim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim)
	}
	if _, err := db.Exec(fmt.Sprintf(chunksSQL, embeddingDim)); err != nil {
		return fmt.Errorf("error executing chunks SQL: %w", err)
	}
	return nil
}

// CreateEntitiesTable creates the entities and chunk_mentions tables.
func CreateEntitiesTable(db *sql.DB) error {
	if _, err := db.Exec(entitiesSQL); err != nil {
		return fmt.Errorf("error executing entities SQL: %w", err)
	}
	return nil
}

// CreateEdgesTable creates the edges table and its indexes.
func CreateEdgesTable(db *sql.DB) error {
	if _, err := db.Exec(edgesSQL); err != nil {
		return fmt.Errorf("error executing edges SQL: %w", err)
	}
	return nil
}

// CreateCitationsTable creates the citations table.
func CreateCitationsTable(db *sql.DB) error {
	if _, err := db.Exec(citationsSQL); err != nil {
		return fmt.Errorf("error executing citations SQL: %w", err)
	}
	return nil
}

// TablesExist reports whether every schema table is present.
func TablesExist(db *sql.DB) (bool, error) {
	for _, table := range Tables {
		var exists bool
		err := db.QueryRow(
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			table,
		).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return false, nil
		}
	}
	return true, nil
}
