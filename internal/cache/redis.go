package cache

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps one hash per bucket, field = entity ID, and a set of
// the bucket names written so far. The prefix is a hash tag so all of them
// land in one cluster slot.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

func NewRedisBackend(client redis.UniversalClient, prefix string, logger *slog.Logger) *RedisBackend {
	return &RedisBackend{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "redis_backend"),
	}
}

func (b *RedisBackend) key(bucket string) string {
	return "{" + b.prefix + "}:" + bucket
}

func (b *RedisBackend) bucketsKey() string {
	return "{" + b.prefix + "}#buckets"
}

func (b *RedisBackend) LoadAll(ctx context.Context, bucket string) ([]Entry, error) {
	fields, err := b.client.HGetAll(ctx, b.key(bucket)).Result()
	if err != nil {
		b.logger.Error("Failed to load bucket", "bucket", bucket, "error", err)
		return nil, fmt.Errorf("failed to load bucket %s: %w", bucket, err)
	}

	entries := make([]Entry, 0, len(fields))
	for _, id := range slices.Sorted(maps.Keys(fields)) {
		entries = append(entries, Entry{Key: id, Payload: []byte(fields[id])})
	}
	return entries, nil
}

func (b *RedisBackend) PutBatch(ctx context.Context, bucket string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	values := make(map[string]any, len(entries))
	for _, e := range entries {
		values[e.Key] = e.Payload
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, b.key(bucket), values)
		pipe.SAdd(ctx, b.bucketsKey(), bucket)
		return nil
	})
	if err != nil {
		b.logger.Error("Failed to write bucket", "bucket", bucket, "count", len(entries), "error", err)
		return fmt.Errorf("failed to write bucket %s: %w", bucket, err)
	}
	return nil
}

// Clear deletes every bucket listed in the bucket set, and the set itself,
// with one DEL. A cluster client routes it to the node owning the slot.
func (b *RedisBackend) Clear(ctx context.Context) error {
	buckets, err := b.client.SMembers(ctx, b.bucketsKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list cache buckets: %w", err)
	}

	keys := make([]string, 0, len(buckets)+1)
	for _, bucket := range buckets {
		keys = append(keys, b.key(bucket))
	}
	keys = append(keys, b.bucketsKey())

	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		b.logger.Error("Failed to delete cache keys", "count", len(keys), "error", err)
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	b.logger.Debug("Cache buckets deleted", "buckets", len(buckets))
	return nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
