package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"refcache/internal/shared/config"

	"github.com/redis/go-redis/v9"
)

// Options translates the configuration into go-redis universal options. A
// URL wins over the address list; several addresses select a cluster
// client.
func Options(cfg config.RedisConfig) (*redis.UniversalOptions, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		return &redis.UniversalOptions{
			Addrs:     []string{opts.Addr},
			Username:  opts.Username,
			Password:  opts.Password,
			DB:        opts.DB,
			TLSConfig: opts.TLSConfig,
		}, nil
	}

	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("no Redis address configured")
	}

	return &redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}, nil
}

// Connect opens the client behind the redis storage driver and checks it
// answers.
func Connect(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	logger = logger.With("component", "redis", "operation", "connect")

	opts, err := Options(cfg)
	if err != nil {
		logger.Error("Invalid Redis configuration", "error", err)
		return nil, err
	}

	logger.Debug("Connecting to Redis",
		"addrs", opts.Addrs,
		"db", opts.DB,
		"key_prefix", cfg.KeyPrefix)

	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("Failed to ping Redis", "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	logger.Info("Redis connection established", "addrs", opts.Addrs)
	return client, nil
}
