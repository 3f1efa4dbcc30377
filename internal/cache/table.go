package cache

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"refcache/internal/entity"
)

// Table is the cache of one category: an in-memory mirror in front of a
// durable bucket. Reads never touch the backend.
type Table[K cmp.Ordered, V any] struct {
	category entity.Category
	keyOf    func(V) K
	backend  Backend
	notify   func(Change)

	mu    sync.RWMutex
	items map[K]V
}

func newTable[K cmp.Ordered, V any](category entity.Category, keyOf func(V) K, backend Backend, notify func(Change)) *Table[K, V] {
	return &Table[K, V]{
		category: category,
		keyOf:    keyOf,
		backend:  backend,
		notify:   notify,
		items:    make(map[K]V),
	}
}

func (t *Table[K, V]) Category() entity.Category { return t.category }

func (t *Table[K, V]) Has(id K) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.items[id]
	return ok
}

func (t *Table[K, V]) Get(id K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.items[id]
	return v, ok
}

func (t *Table[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// Keys returns the cached IDs in ascending order.
func (t *Table[K, V]) Keys() []K {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Sorted(maps.Keys(t.items))
}

// Values returns a snapshot of the cached records in no particular order.
func (t *Table[K, V]) Values() []V {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Collect(maps.Values(t.items))
}

// PutBatch upserts records wholesale. The mirror is updated before the
// durable write so callers observe the records as soon as PutBatch returns,
// even when the durable write fails. Subscribers are notified only after a
// successful write. An empty batch does nothing.
func (t *Table[K, V]) PutBatch(ctx context.Context, records []V) error {
	if len(records) == 0 {
		return nil
	}

	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode %s %v: %w", t.category, t.keyOf(r), err)
		}
		entries = append(entries, Entry{Key: fmt.Sprint(t.keyOf(r)), Payload: payload})
	}

	t.mu.Lock()
	for _, r := range records {
		t.items[t.keyOf(r)] = r
	}
	t.mu.Unlock()

	if err := t.backend.PutBatch(ctx, string(t.category), entries); err != nil {
		return fmt.Errorf("persist %s batch: %w", t.category, err)
	}

	if t.notify != nil {
		t.notify(Change{Category: t.category, Count: len(records)})
	}
	return nil
}

func (t *Table[K, V]) hydrate(ctx context.Context) (int, error) {
	entries, err := t.backend.LoadAll(ctx, string(t.category))
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", t.category, err)
	}

	items := make(map[K]V, len(entries))
	for _, e := range entries {
		var v V
		if err := json.Unmarshal(e.Payload, &v); err != nil {
			return 0, fmt.Errorf("decode %s %s: %w", t.category, e.Key, err)
		}
		items[t.keyOf(v)] = v
	}

	t.mu.Lock()
	t.items = items
	t.mu.Unlock()
	return len(items), nil
}

func (t *Table[K, V]) reset() {
	t.mu.Lock()
	t.items = make(map[K]V)
	t.mu.Unlock()
}
