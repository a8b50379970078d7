// Package db provides database persistence for codecrow.
//
// A single store holds projects, branches, branch file state, code analysis
// issues, branch issue associations, and analysis locks. SQLite is the
// default backend; PostgreSQL is supported for shared deployments.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rostilos/codecrow/internal/db/driver"
)

//go:embed schema/*.sql schema/postgres/*.sql
var schemaFS embed.FS

// schemaType is the migration filename prefix (crow_NNN.sql).
const schemaType = "crow"

// embedFSAdapter wraps embed.FS to implement driver.SchemaFS.
type embedFSAdapter struct {
	fs embed.FS
}

func (e *embedFSAdapter) ReadDir(name string) ([]driver.DirEntry, error) {
	entries, err := e.fs.ReadDir(name)
	if err != nil {
		return nil, err
	}
	result := make([]driver.DirEntry, len(entries))
	for i, entry := range entries {
		result[i] = dirEntryAdapter{entry}
	}
	return result, nil
}

func (e *embedFSAdapter) ReadFile(name string) ([]byte, error) {
	return e.fs.ReadFile(name)
}

type dirEntryAdapter struct {
	fs.DirEntry
}

func (d dirEntryAdapter) Name() string {
	return d.DirEntry.Name()
}

func (d dirEntryAdapter) IsDir() bool {
	return d.DirEntry.IsDir()
}

// Store wraps a database connection with driver abstraction.
type Store struct {
	driver driver.Driver
	dsn    string
}

// Open opens a SQLite store at the given path.
// Creates the parent directory if it doesn't exist.
func Open(path string) (*Store, error) {
	return OpenWithDialect(path, driver.DialectSQLite)
}

// OpenInMemory opens an in-memory SQLite store with migrations applied.
// Each call creates a new isolated database; ideal for testing.
func OpenInMemory() (*Store, error) {
	drv, err := driver.New(driver.DialectSQLite)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(":memory:"); err != nil {
		return nil, err
	}

	s := &Store{driver: drv, dsn: ":memory:"}
	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// OpenWithDialect opens a store with a specific dialect.
func OpenWithDialect(dsn string, dialect driver.Dialect) (*Store, error) {
	// For SQLite, create the parent directory if needed.
	if dialect == driver.DialectSQLite {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	drv, err := driver.New(dialect)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(dsn); err != nil {
		return nil, err
	}

	return &Store{driver: drv, dsn: dsn}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.driver.Close()
}

// Dialect returns the database dialect.
func (s *Store) Dialect() driver.Dialect {
	return s.driver.Dialect()
}

// DB returns the underlying sql.DB for advanced operations.
func (s *Store) DB() *sql.DB {
	return s.driver.DB()
}

// Migrate applies all pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	adapter := &embedFSAdapter{fs: schemaFS}
	return s.driver.Migrate(ctx, adapter, schemaType)
}

// Exec executes a query without returning rows.
// Queries are written with ? placeholders and rebound for the dialect.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.driver.Exec(ctx, s.rebind(query), args...)
}

// Query executes a query that returns rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.driver.Query(ctx, s.rebind(query), args...)
}

// QueryRow executes a query that returns at most one row.
func (s *Store) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.driver.QueryRow(ctx, s.rebind(query), args...)
}

// rebind converts ? placeholders to the dialect's placeholder form.
func (s *Store) rebind(query string) string {
	if s.driver.Dialect() != driver.DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString(s.driver.Placeholder(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// now returns the current UTC time formatted for TEXT timestamp columns.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// parseTime parses a stored RFC3339 timestamp, returning the zero time on
// malformed input.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
