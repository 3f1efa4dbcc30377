// Package owner holds the owner-scoped collections (assets, contracts,
// orders...) whose foreign keys drive reference-data resolution.
package owner

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"refcache/internal/resolver"
	"refcache/internal/shared/errors"
)

// Trigger is notified whenever a collection changes.
type Trigger interface {
	TriggerResolution()
}

// ScanOwnerFunc reports the foreign keys of ownerID's collection.
type ScanOwnerFunc[T any] func(ownerID int64, items []T, acc *resolver.Accumulator)

// EachItem adapts a per-item scanner for collections whose items reference
// nothing in each other.
func EachItem[T any](fn func(ownerID int64, item T, acc *resolver.Accumulator)) ScanOwnerFunc[T] {
	return func(ownerID int64, items []T, acc *resolver.Accumulator) {
		for _, item := range items {
			fn(ownerID, item, acc)
		}
	}
}

// Source is one owner-scoped collection. Each owner's items are replaced
// wholesale; any replacement triggers a resolution pass.
type Source[T any] struct {
	name    string
	scan    ScanOwnerFunc[T]
	trigger Trigger
	logger  *slog.Logger

	mu    sync.RWMutex
	items map[int64][]T
}

func NewSource[T any](name string, scan ScanOwnerFunc[T], trigger Trigger, logger *slog.Logger) *Source[T] {
	return &Source[T]{
		name:    name,
		scan:    scan,
		trigger: trigger,
		logger:  logger.With("component", "owner_source", "source", name),
		items:   make(map[int64][]T),
	}
}

func (s *Source[T]) Name() string { return s.name }

// Replace swaps ownerID's collection for items.
func (s *Source[T]) Replace(ownerID int64, items []T) {
	s.mu.Lock()
	s.items[ownerID] = slices.Clone(items)
	s.mu.Unlock()

	s.logger.Debug("Collection replaced", "owner_id", ownerID, "items", len(items))
	if s.trigger != nil {
		s.trigger.TriggerResolution()
	}
}

func (s *Source[T]) Items(ownerID int64) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items[ownerID])
}

func (s *Source[T]) Owners() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.items))
}

func (s *Source[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, items := range s.items {
		n += len(items)
	}
	return n
}

// Scan is the source's resolver.ScanFunc. It only reads the collection.
func (s *Source[T]) Scan(ctx context.Context, acc *resolver.Accumulator) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ownerID := range slices.Sorted(maps.Keys(s.items)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.scan(ownerID, s.items[ownerID], acc)
	}
	return nil
}

// Ingest decodes a JSON array of items and replaces ownerID's collection
// with it.
func (s *Source[T]) Ingest(ownerID int64, r io.Reader) (int, error) {
	if ownerID <= 0 {
		return 0, errors.Validationf("owner ID must be positive, got %d", ownerID)
	}

	var items []T
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return 0, errors.WrapValidation("invalid "+s.name+" payload", err)
	}

	s.Replace(ownerID, items)
	return len(items), nil
}
