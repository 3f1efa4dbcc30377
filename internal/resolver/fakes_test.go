package resolver

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"refcache/internal/cache"
	"refcache/internal/entity"
	"refcache/internal/shared/logger"
)

var errNamesDown = errors.New("names endpoint unavailable")

// fakeFetcher serves records from fixed tables and records every request.
type fakeFetcher struct {
	mu         sync.Mutex
	types      map[int64]entity.Type
	names      map[int64]entity.Name
	locations  map[int64]entity.Location
	structures map[int64]entity.Structure
	contracts  map[int64]entity.ContractItemSet
	namesErr   error
	calls      map[string][][]int64
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		types:      make(map[int64]entity.Type),
		names:      make(map[int64]entity.Name),
		locations:  make(map[int64]entity.Location),
		structures: make(map[int64]entity.Structure),
		contracts:  make(map[int64]entity.ContractItemSet),
		calls:      make(map[string][][]int64),
	}
}

func (f *fakeFetcher) record(method string, ids []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method] = append(f.calls[method], slices.Clone(ids))
}

func (f *fakeFetcher) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[method])
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += len(c)
	}
	return n
}

func (f *fakeFetcher) requested(method string) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for _, c := range f.calls[method] {
		ids = append(ids, c...)
	}
	slices.Sort(ids)
	return ids
}

func (f *fakeFetcher) setNamesErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.namesErr = err
}

func pick[V any](table map[int64]V, ids []int64) []V {
	var out []V
	for _, id := range ids {
		if v, ok := table[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

func (f *fakeFetcher) FetchTypes(_ context.Context, ids []int64) ([]entity.Type, error) {
	f.record("types", ids)
	return pick(f.types, ids), nil
}

func (f *fakeFetcher) FetchNames(_ context.Context, ids []int64) ([]entity.Name, error) {
	f.record("names", ids)
	f.mu.Lock()
	err := f.namesErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return pick(f.names, ids), nil
}

func (f *fakeFetcher) FetchLocations(_ context.Context, ids []int64) ([]entity.Location, error) {
	f.record("locations", ids)
	return pick(f.locations, ids), nil
}

func (f *fakeFetcher) FetchStructures(_ context.Context, characterID int64, ids []int64) ([]entity.Structure, error) {
	f.record("structures", ids)
	out := pick(f.structures, ids)
	for i := range out {
		out[i].ResolvedBy = characterID
	}
	return out, nil
}

func (f *fakeFetcher) FetchAuxiliaryPrices(_ context.Context, items map[int64]int64) ([]entity.AuxiliaryPrice, error) {
	ids := slices.Sorted(maps.Keys(items))
	f.record("auxiliary", ids)
	out := make([]entity.AuxiliaryPrice, 0, len(ids))
	for _, id := range ids {
		out = append(out, entity.AuxiliaryPrice{ItemID: id, TypeID: items[id], Price: 1000})
	}
	return out, nil
}

func (f *fakeFetcher) FetchContractItems(_ context.Context, characterID int64, contractIDs []int64) ([]entity.ContractItemSet, error) {
	f.record("contracts", contractIDs)
	out := pick(f.contracts, contractIDs)
	for i := range out {
		out[i].ResolvedBy = characterID
	}
	return out, nil
}

const (
	tritanium     int64 = 34
	astrahus      int64 = 35832
	jita          int64 = 30000142
	forge         int64 = 10000002
	jitaStation   int64 = 60003760
	structureID   int64 = 1000000000123
	characterID   int64 = 95465499
	corporationID int64 = 98000001
)

// seededFetcher knows a small universe around one citadel in Jita.
func seededFetcher() *fakeFetcher {
	f := newFakeFetcher()
	f.types[tritanium] = entity.Type{ID: tritanium, Name: "Tritanium", Volume: 0.01}
	f.types[astrahus] = entity.Type{ID: astrahus, Name: "Astrahus"}
	f.names[corporationID] = entity.Name{ID: corporationID, Name: "Test Corp", Category: "corporation"}
	f.locations[jita] = entity.Location{ID: jita, Name: "Jita", Kind: entity.LocationSolarSystem, SolarSystemID: jita, RegionID: forge}
	f.locations[forge] = entity.Location{ID: forge, Name: "The Forge", Kind: entity.LocationRegion, RegionID: forge}
	f.locations[jitaStation] = entity.Location{ID: jitaStation, Name: "Jita IV - Moon 4", Kind: entity.LocationStation, SolarSystemID: jita}
	f.structures[structureID] = entity.Structure{
		ID:            structureID,
		Name:          "Jita - Test Citadel",
		SolarSystemID: jita,
		TypeID:        astrahus,
		OwnerID:       corporationID,
	}
	return f
}

func newTestStore(t *testing.T) (*cache.Store, *cache.MemoryBackend) {
	t.Helper()
	backend := cache.NewMemoryBackend()
	store, err := cache.Open(context.Background(), backend, "test", logger.Discard())
	require.NoError(t, err)
	return store, backend
}
