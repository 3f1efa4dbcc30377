package cache

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Dialect carries the statements that differ between SQL engines.
type Dialect struct {
	Name         string
	selectBucket string
	upsert       string
	clear        string
	payloadArg   func([]byte) any
}

var DialectSQLite = Dialect{
	Name:         "sqlite",
	selectBucket: `SELECT id, payload FROM reference_cache WHERE bucket = ? ORDER BY id`,
	upsert: `INSERT INTO reference_cache (bucket, id, payload) VALUES (?, ?, ?)
		ON CONFLICT(bucket, id) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP`,
	clear:      `DELETE FROM reference_cache`,
	payloadArg: func(b []byte) any { return b },
}

// DialectPostgres stores payloads as JSONB; lib/pq sends []byte as bytea,
// so payloads are bound as text.
var DialectPostgres = Dialect{
	Name:         "postgres",
	selectBucket: `SELECT id, payload FROM reference_cache WHERE bucket = $1 ORDER BY id`,
	upsert: `INSERT INTO reference_cache (bucket, id, payload) VALUES ($1, $2, $3)
		ON CONFLICT (bucket, id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`,
	clear:      `TRUNCATE TABLE reference_cache`,
	payloadArg: func(b []byte) any { return string(b) },
}

// SQLBackend persists cache buckets into the reference_cache table.
type SQLBackend struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

func NewSQLBackend(db *sql.DB, dialect Dialect, logger *slog.Logger) *SQLBackend {
	logger.Debug("Initializing sql cache backend", "dialect", dialect.Name)

	return &SQLBackend{
		db:      db,
		dialect: dialect,
		logger:  logger.With("component", "sql_backend", "dialect", dialect.Name),
	}
}

func (b *SQLBackend) LoadAll(ctx context.Context, bucket string) ([]Entry, error) {
	rows, err := b.db.QueryContext(ctx, b.dialect.selectBucket, bucket)
	if err != nil {
		b.logger.Error("Failed to query bucket", "bucket", bucket, "error", err)
		return nil, fmt.Errorf("failed to query bucket %s: %w", bucket, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			b.logger.Error("Failed to close rows", "error", err)
		}
	}()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Payload); err != nil {
			b.logger.Error("Failed to scan cache row", "bucket", bucket, "error", err)
			return nil, fmt.Errorf("failed to scan %s row: %w", bucket, err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bucket %s: %w", bucket, err)
	}

	return entries, nil
}

func (b *SQLBackend) PutBatch(ctx context.Context, bucket string, entries []Entry) (retErr error) {
	if len(entries) == 0 {
		return nil
	}
	logger := b.logger.With("operation", "put_batch", "bucket", bucket, "count", len(entries))

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("Failed to begin transaction", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, b.dialect.upsert)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, bucket, e.Key, b.dialect.payloadArg(e.Payload)); err != nil {
			logger.Error("Failed to upsert cache row", "id", e.Key, "error", err)
			return fmt.Errorf("failed to upsert %s %s: %w", bucket, e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.Error("Failed to commit batch", "error", err)
		return fmt.Errorf("failed to commit %s batch: %w", bucket, err)
	}

	logger.Debug("Cache batch persisted")
	return nil
}

func (b *SQLBackend) Clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, b.dialect.clear); err != nil {
		b.logger.Error("Failed to clear reference cache", "error", err)
		return fmt.Errorf("failed to clear reference cache: %w", err)
	}
	return nil
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}

func (b *SQLBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}
