// Package cache holds the reference-data entity store: one keyed table per
// category, mirrored in memory and persisted through a Backend.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"refcache/internal/entity"
)

const (
	metaBucket = "meta"
	versionKey = "cache_version"
)

// Change is delivered to subscribers after a successful write.
type Change struct {
	Category entity.Category
	Count    int
	Cleared  bool
}

type Stats struct {
	Counts   map[entity.Category]int `json:"counts"`
	Revision uint64                  `json:"revision"`
}

// Store is the process-wide entity store. It is constructed once with Open,
// hydrated before use and shared explicitly with everything that reads or
// writes reference data.
type Store struct {
	Types           *Table[int64, entity.Type]
	Structures      *Table[int64, entity.Structure]
	Locations       *Table[int64, entity.Location]
	Names           *Table[int64, entity.Name]
	AuxiliaryPrices *Table[int64, entity.AuxiliaryPrice]
	ContractItems   *Table[int64, entity.ContractItemSet]

	backend  Backend
	version  string
	logger   *slog.Logger
	revision atomic.Uint64

	mu        sync.Mutex
	listeners map[int]func(Change)
	nextID    int
}

// Open builds the store over backend and hydrates every table. When the
// persisted cache version differs from version the durable layer is cleared
// first, so a schema bump starts from an empty cache.
func Open(ctx context.Context, backend Backend, version string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		backend:   backend,
		version:   version,
		logger:    logger.With("component", "entity_store"),
		listeners: make(map[int]func(Change)),
	}
	s.Types = newTable(entity.CategoryType, func(v entity.Type) int64 { return v.ID }, backend, s.publish)
	s.Structures = newTable(entity.CategoryStructure, func(v entity.Structure) int64 { return v.ID }, backend, s.publish)
	s.Locations = newTable(entity.CategoryLocation, func(v entity.Location) int64 { return v.ID }, backend, s.publish)
	s.Names = newTable(entity.CategoryName, func(v entity.Name) int64 { return v.ID }, backend, s.publish)
	s.AuxiliaryPrices = newTable(entity.CategoryAuxiliary, func(v entity.AuxiliaryPrice) int64 { return v.ItemID }, backend, s.publish)
	s.ContractItems = newTable(entity.CategoryContractItems, func(v entity.ContractItemSet) int64 { return v.ContractID }, backend, s.publish)

	if err := s.checkVersion(ctx); err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) checkVersion(ctx context.Context) error {
	logger := s.logger.With("operation", "check_version")

	if s.version == "" {
		return nil
	}

	entries, err := s.backend.LoadAll(ctx, metaBucket)
	if err != nil {
		return fmt.Errorf("load cache metadata: %w", err)
	}

	stored := ""
	for _, e := range entries {
		if e.Key == versionKey {
			if err := json.Unmarshal(e.Payload, &stored); err != nil {
				return fmt.Errorf("decode cache version: %w", err)
			}
		}
	}

	if stored == s.version {
		return nil
	}

	if stored != "" {
		logger.Info("Cache version changed, clearing reference cache",
			"stored_version", stored,
			"version", s.version)
		if err := s.backend.Clear(ctx); err != nil {
			return fmt.Errorf("clear cache for version %s: %w", s.version, err)
		}
	}
	return s.writeVersion(ctx)
}

func (s *Store) writeVersion(ctx context.Context) error {
	if s.version == "" {
		return nil
	}
	payload, err := json.Marshal(s.version)
	if err != nil {
		return err
	}
	if err := s.backend.PutBatch(ctx, metaBucket, []Entry{{Key: versionKey, Payload: payload}}); err != nil {
		return fmt.Errorf("write cache version: %w", err)
	}
	return nil
}

func (s *Store) hydrate(ctx context.Context) error {
	counts := make(map[string]int, len(entity.Categories))
	for _, t := range s.tables() {
		n, err := t.hydrate(ctx)
		if err != nil {
			return err
		}
		counts[string(t.Category())] = n
	}
	s.logger.Info("Entity store hydrated", "counts", counts, "version", s.version)
	return nil
}

type hydratable interface {
	Category() entity.Category
	Len() int
	hydrate(ctx context.Context) (int, error)
	reset()
}

func (s *Store) tables() []hydratable {
	return []hydratable{s.Types, s.Structures, s.Locations, s.Names, s.AuxiliaryPrices, s.ContractItems}
}

// Has reports whether id is cached in category.
func (s *Store) Has(category entity.Category, id int64) bool {
	switch category {
	case entity.CategoryType:
		return s.Types.Has(id)
	case entity.CategoryStructure:
		return s.Structures.Has(id)
	case entity.CategoryLocation:
		return s.Locations.Has(id)
	case entity.CategoryName:
		return s.Names.Has(id)
	case entity.CategoryAuxiliary:
		return s.AuxiliaryPrices.Has(id)
	case entity.CategoryContractItems:
		return s.ContractItems.Has(id)
	default:
		return false
	}
}

// Lookup returns the cached record for id in category as an untyped value.
func (s *Store) Lookup(category entity.Category, id int64) (any, bool) {
	switch category {
	case entity.CategoryType:
		return lookup(s.Types, id)
	case entity.CategoryStructure:
		return lookup(s.Structures, id)
	case entity.CategoryLocation:
		return lookup(s.Locations, id)
	case entity.CategoryName:
		return lookup(s.Names, id)
	case entity.CategoryAuxiliary:
		return lookup(s.AuxiliaryPrices, id)
	case entity.CategoryContractItems:
		return lookup(s.ContractItems, id)
	default:
		return nil, false
	}
}

func lookup[V any](t *Table[int64, V], id int64) (any, bool) {
	v, ok := t.Get(id)
	if !ok {
		return nil, false
	}
	return v, true
}

// Label returns a display name for id, falling back to a deterministic
// "Unknown <category> <id>" until the entity is resolved.
func (s *Store) Label(category entity.Category, id int64) string {
	switch category {
	case entity.CategoryType:
		if v, ok := s.Types.Get(id); ok && v.Name != "" {
			return v.Name
		}
	case entity.CategoryStructure:
		if v, ok := s.Structures.Get(id); ok && v.Name != "" {
			return v.Name
		}
	case entity.CategoryLocation:
		if v, ok := s.Locations.Get(id); ok && v.Name != "" {
			return v.Name
		}
		if entity.IsStructureID(id) {
			return s.Label(entity.CategoryStructure, id)
		}
	case entity.CategoryName:
		if v, ok := s.Names.Get(id); ok && v.Name != "" {
			return v.Name
		}
	}
	return entity.FallbackLabel(category, id)
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. fn runs on the writer's goroutine and must not block.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) publish(change Change) {
	s.revision.Add(1)

	s.mu.Lock()
	listeners := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
}

func (s *Store) Stats() Stats {
	counts := make(map[entity.Category]int, len(entity.Categories))
	for _, t := range s.tables() {
		counts[t.Category()] = t.Len()
	}
	return Stats{Counts: counts, Revision: s.revision.Load()}
}

// Clear drops every cached entity from memory and from the durable layer.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear reference cache: %w", err)
	}
	for _, t := range s.tables() {
		t.reset()
	}
	if err := s.writeVersion(ctx); err != nil {
		return err
	}

	s.logger.Info("Reference cache cleared")
	s.publish(Change{Cleared: true})
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks the durable layer. Backends without a connection always
// succeed.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.backend.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}
