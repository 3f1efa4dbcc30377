package cache

import (
	"context"
	"fmt"
	"log/slog"

	"refcache/internal/shared/config"
	"refcache/internal/shared/database"
	"refcache/internal/shared/redis"
	"refcache/internal/shared/sqlite"
)

// OpenBackend selects and connects the durable layer named by
// STORAGE_DRIVER: memory, sqlite (default), postgres or redis.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Backend, error) {
	logger.Info("Opening cache backend", "driver", cfg.Storage.Driver)

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return NewMemoryBackend(), nil
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return NewSQLBackend(db, DialectSQLite, logger), nil
	case config.DriverPostgres:
		db, err := database.Connect(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
		return NewSQLBackend(db.DB, DialectPostgres, logger), nil
	case config.DriverRedis:
		client, err := redis.Connect(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		return NewRedisBackend(client, cfg.Redis.KeyPrefix, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Storage.Driver)
	}
}
