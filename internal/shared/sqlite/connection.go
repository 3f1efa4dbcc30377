package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const schema = `CREATE TABLE IF NOT EXISTS reference_cache (
	bucket     TEXT NOT NULL,
	id         TEXT NOT NULL,
	payload    BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (bucket, id)
)`

// Open opens (creating when needed) the embedded cache database at path and
// ensures the cache table exists.
func Open(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	logger = logger.With("component", "sqlite", "operation", "open", "path", path)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logger.Error("Failed to open sqlite database", "error", err)
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between concurrent batch upserts
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		logger.Error("Failed to create cache table", "error", err)
		return nil, fmt.Errorf("create cache table: %w", err)
	}

	logger.Info("SQLite cache database ready")
	return db, nil
}
