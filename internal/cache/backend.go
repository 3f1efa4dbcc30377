package cache

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// Entry is one durable record: its key within a bucket and its JSON payload.
type Entry struct {
	Key     string
	Payload []byte
}

// Backend is the durable layer behind the in-memory mirror. It knows nothing
// about record types; every category is an opaque bucket of keyed payloads.
type Backend interface {
	LoadAll(ctx context.Context, bucket string) ([]Entry, error)
	PutBatch(ctx context.Context, bucket string, entries []Entry) error
	Clear(ctx context.Context) error
	Close() error
}

// MemoryBackend keeps payloads in process memory. It backs the memory
// storage driver and the tests.
type MemoryBackend struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	puts    map[string]int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		buckets: make(map[string]map[string][]byte),
		puts:    make(map[string]int),
	}
}

func (m *MemoryBackend) LoadAll(_ context.Context, bucket string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.buckets[bucket]
	entries := make([]Entry, 0, len(stored))
	for _, key := range slices.Sorted(maps.Keys(stored)) {
		entries = append(entries, Entry{Key: key, Payload: slices.Clone(stored[key])})
	}
	return entries, nil
}

func (m *MemoryBackend) PutBatch(_ context.Context, bucket string, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.buckets[bucket]
	if !ok {
		stored = make(map[string][]byte)
		m.buckets[bucket] = stored
	}
	for _, e := range entries {
		stored[e.Key] = slices.Clone(e.Payload)
	}
	m.puts[bucket]++
	return nil
}

func (m *MemoryBackend) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buckets = make(map[string]map[string][]byte)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// PutCalls returns how many batches were written to bucket.
func (m *MemoryBackend) PutCalls(bucket string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts[bucket]
}
