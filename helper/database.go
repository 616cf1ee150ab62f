package helper

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DatabaseConfiguration holds the connection parameters for Postgres.
type DatabaseConfiguration struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Schema   string
}

// NewDatabaseConfiguration reads the database configuration from the
// environment. A .env file is loaded if present.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	_ = godotenv.Load()

	config := &DatabaseConfiguration{
		Host:     os.Getenv("RAGCORE_DB_HOST"),
		Port:     os.Getenv("RAGCORE_DB_PORT"),
		User:     os.Getenv("RAGCORE_DB_USER"),
		Password: os.Getenv("RAGCORE_DB_PASSWORD"),
		DBName:   os.Getenv("RAGCORE_DB_DATABASE"),
		Schema:   os.Getenv("RAGCORE_DB_SCHEMA"),
	}

	if config.Host == "" || config.Port == "" || config.User == "" || config.DBName == "" {
		return nil, NewError("database configuration", fmt.Errorf("missing required environment variables (RAGCORE_DB_HOST, RAGCORE_DB_PORT, RAGCORE_DB_USER, RAGCORE_DB_DATABASE)"))
	}

	if config.Schema == "" {
		config.Schema = "public"
	}

	return config, nil
}

// Database wraps a sql.DB connection together with a named logger.
type Database struct {
	Name     string
	Instance *sql.DB
	Logger   *slog.Logger
}

// NewDatabase opens a connection to the configured database and verifies it
// with a ping. It panics if the database is unreachable, mirroring the fact
// that nothing in this module can run without its store.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) *Database {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s search_path=%s sslmode=disable",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.Schema,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Panicf("error opening database connection: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Panicf("error pinging database: %v", err)
	}

	logger.Info("Connected to database", slog.String("name", name), slog.String("host", config.Host))

	return &Database{
		Name:     name,
		Instance: db,
		Logger:   logger,
	}
}

// NewTestDatabase opens a connection for tests with a quiet logger.
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	logger := slog.New(NewPrettyHandler(os.Stdout, PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{Level: slog.LevelError},
	}))
	return NewDatabase("test", config, logger)
}

// MustStartPostgresContainer starts a pgvector-enabled Postgres container for
// tests. It returns the container teardown function and the mapped port.
func MustStartPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	container, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase("ragcore_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", err
	}

	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return container.Terminate, "", err
	}

	return container.Terminate, mappedPort.Port(), nil
}

// SetTestDatabaseConfigEnvs sets the database environment variables pointing
// at the test container for the duration of the test.
func SetTestDatabaseConfigEnvs(t *testing.T, port string) {
	t.Setenv("RAGCORE_DB_HOST", "localhost")
	t.Setenv("RAGCORE_DB_PORT", port)
	t.Setenv("RAGCORE_DB_USER", "postgres")
	t.Setenv("RAGCORE_DB_PASSWORD", "postgres")
	t.Setenv("RAGCORE_DB_DATABASE", "ragcore_test")
	t.Setenv("RAGCORE_DB_SCHEMA", "public")
}
