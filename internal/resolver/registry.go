package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// ScanFunc inspects one owner-scoped data source and adds the foreign keys
// it references to acc. It must not mutate its own collection.
type ScanFunc func(ctx context.Context, acc *Accumulator) error

// Registry holds the scanners of every registered data source, keyed by
// source name.
type Registry struct {
	mu       sync.RWMutex
	scanners map[string]ScanFunc
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		scanners: make(map[string]ScanFunc),
		logger:   logger.With("component", "collector_registry"),
	}
}

func (r *Registry) Register(name string, fn ScanFunc) error {
	if name == "" {
		return fmt.Errorf("scanner name is required")
	}
	if fn == nil {
		return fmt.Errorf("scanner %s: nil scan function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scanners[name]; exists {
		return fmt.Errorf("scanner %s already registered", name)
	}
	r.scanners[name] = fn

	r.logger.Debug("Scanner registered", "scanner", name)
	return nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.scanners))
}

// Collect runs every scanner against one shared accumulator and returns the
// union of what they found. A failing scanner is logged; whatever it added
// before failing is kept and the other scanners still run.
func (r *Registry) Collect(ctx context.Context, known KnownFunc) *MissingIDs {
	logger := r.logger.With("operation", "collect")
	acc := NewAccumulator(known)

	r.mu.RLock()
	names := slices.Sorted(maps.Keys(r.scanners))
	scanners := maps.Clone(r.scanners)
	r.mu.RUnlock()

	for _, name := range names {
		if err := scan(ctx, scanners[name], acc); err != nil {
			logger.Error("Scanner failed", "scanner", name, "error", err)
		}
	}

	missing := acc.Missing()
	logger.Debug("Collected missing IDs", "total", missing.Len(), "scanners", len(names))
	return missing
}

func scan(ctx context.Context, fn ScanFunc, acc *Accumulator) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scanner panic: %v", r)
		}
	}()
	return fn(ctx, acc)
}
