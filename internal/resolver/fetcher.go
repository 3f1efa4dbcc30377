package resolver

import (
	"context"

	"refcache/internal/entity"
)

// Fetcher is the remote reference-data API. Each call resolves one batch of
// one category and either returns the records it found or fails as a whole.
type Fetcher interface {
	FetchTypes(ctx context.Context, ids []int64) ([]entity.Type, error)
	FetchNames(ctx context.Context, ids []int64) ([]entity.Name, error)
	FetchLocations(ctx context.Context, ids []int64) ([]entity.Location, error)
	FetchStructures(ctx context.Context, characterID int64, ids []int64) ([]entity.Structure, error)
	FetchAuxiliaryPrices(ctx context.Context, items map[int64]int64) ([]entity.AuxiliaryPrice, error)
	FetchContractItems(ctx context.Context, characterID int64, contractIDs []int64) ([]entity.ContractItemSet, error)
}

// Fetched collects the records a pass has resolved but not yet persisted.
type Fetched struct {
	Types           []entity.Type
	Names           []entity.Name
	Locations       []entity.Location
	Structures      []entity.Structure
	AuxiliaryPrices []entity.AuxiliaryPrice
	ContractItems   []entity.ContractItemSet
}

func NewFetched() *Fetched {
	return &Fetched{}
}

func (f *Fetched) Len() int {
	return len(f.Types) + len(f.Names) + len(f.Locations) +
		len(f.Structures) + len(f.AuxiliaryPrices) + len(f.ContractItems)
}

func (f *Fetched) Merge(other *Fetched) {
	if other == nil {
		return
	}
	f.Types = append(f.Types, other.Types...)
	f.Names = append(f.Names, other.Names...)
	f.Locations = append(f.Locations, other.Locations...)
	f.Structures = append(f.Structures, other.Structures...)
	f.AuxiliaryPrices = append(f.AuxiliaryPrices, other.AuxiliaryPrices...)
	f.ContractItems = append(f.ContractItems, other.ContractItems...)
}

// TypeIDs returns the IDs of the types fetched in this pass.
func (f *Fetched) TypeIDs() []int64 {
	ids := make([]int64, 0, len(f.Types))
	for _, t := range f.Types {
		ids = append(ids, t.ID)
	}
	return ids
}
