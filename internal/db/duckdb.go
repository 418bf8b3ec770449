// Package db opens the embedded DuckDB database backing the default record store.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration.
type Config struct {
	DataDir string // empty opens an in-memory database
	DBName  string
}

// Path returns the database file path, or "" for an in-memory database.
func (c Config) Path() string {
	if c.DataDir == "" {
		return ""
	}
	name := c.DBName
	if name == "" {
		name = "smokesearch"
	}
	return filepath.Join(c.DataDir, "duckdb", name+".duckdb")
}

// Open opens the DuckDB database and applies the given schema statements.
func Open(ctx context.Context, cfg Config, schema ...string) (*sql.DB, error) {
	path := cfg.Path()
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
	}

	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("duckdb ping: %w", err)
	}

	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("duckdb schema: %w", err)
		}
	}
	return conn, nil
}
