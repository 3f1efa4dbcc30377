package cache

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refcache/internal/entity"
	"refcache/internal/shared/logger"
)

// fakeRedis answers the handful of commands the backend sends from memory.
// It is installed as a hook, so the client never dials.
type fakeRedis struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	dels   [][]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (f *fakeRedis) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, fmt.Errorf("fake redis does not dial %s", addr)
	}
}

func (f *fakeRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		f.apply(cmd)
		return nil
	}
}

func (f *fakeRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			f.apply(cmd)
		}
		return nil
	}
}

func (f *fakeRedis) apply(cmd redis.Cmder) {
	f.mu.Lock()
	defer f.mu.Unlock()

	args := cmd.Args()
	str := func(i int) string {
		if b, ok := args[i].([]byte); ok {
			return string(b)
		}
		return fmt.Sprint(args[i])
	}

	switch cmd.Name() {
	case "hset":
		key := str(1)
		if f.hashes[key] == nil {
			f.hashes[key] = make(map[string]string)
		}
		for i := 2; i+1 < len(args); i += 2 {
			f.hashes[key][str(i)] = str(i + 1)
		}
	case "hgetall":
		out := make(map[string]string)
		for k, v := range f.hashes[str(1)] {
			out[k] = v
		}
		cmd.(*redis.MapStringStringCmd).SetVal(out)
	case "sadd":
		key := str(1)
		if f.sets[key] == nil {
			f.sets[key] = make(map[string]struct{})
		}
		for i := 2; i < len(args); i++ {
			f.sets[key][str(i)] = struct{}{}
		}
	case "smembers":
		var out []string
		for m := range f.sets[str(1)] {
			out = append(out, m)
		}
		cmd.(*redis.StringSliceCmd).SetVal(out)
	case "del":
		var keys []string
		for i := 1; i < len(args); i++ {
			keys = append(keys, str(i))
			delete(f.hashes, str(i))
			delete(f.sets, str(i))
		}
		f.dels = append(f.dels, keys)
		cmd.(*redis.IntCmd).SetVal(int64(len(keys)))
	case "ping":
		cmd.(*redis.StatusCmd).SetVal("PONG")
	}
}

func newFakeRedisBackend(t *testing.T) (*RedisBackend, *fakeRedis) {
	t.Helper()
	fake := newFakeRedis()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	client.AddHook(fake)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBackend(client, "refcache", logger.Discard()), fake
}

func TestRedisBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, fake := newFakeRedisBackend(t)

	require.NoError(t, backend.PutBatch(ctx, "type", []Entry{
		{Key: "34", Payload: []byte(`{"type_id":34}`)},
		{Key: "35", Payload: []byte(`{"type_id":35}`)},
	}))
	require.NoError(t, backend.PutBatch(ctx, "name", []Entry{{Key: "1", Payload: []byte(`{"id":1}`)}}))

	entries, err := backend.LoadAll(ctx, "type")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "34", entries[0].Key)
	assert.Contains(t, fake.hashes, "{refcache}:type")
	assert.Contains(t, fake.sets["{refcache}#buckets"], "name")
	require.NoError(t, backend.Ping(ctx))
}

func TestRedisBackendClearDeletesEveryBucketInOneCall(t *testing.T) {
	ctx := context.Background()
	backend, fake := newFakeRedisBackend(t)

	for _, c := range entity.Categories {
		require.NoError(t, backend.PutBatch(ctx, string(c), []Entry{{Key: "1", Payload: []byte(`{}`)}}))
	}
	require.NoError(t, backend.Clear(ctx))

	require.Len(t, fake.dels, 1)
	assert.Len(t, fake.dels[0], len(entity.Categories)+1)
	for _, key := range fake.dels[0] {
		assert.Regexp(t, `^\{refcache\}`, key, "every key shares the hash tag")
	}
	assert.Empty(t, fake.hashes)
	assert.Empty(t, fake.sets)

	entries, err := backend.LoadAll(ctx, string(entity.CategoryType))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
