package resolver

import (
	"context"
	"fmt"
	"maps"

	"refcache/internal/entity"
)

// Job is one independent fetch of a pass. Jobs of the same wave run
// concurrently and fail independently.
type Job struct {
	Category  entity.Category
	Label     string
	Requested int
	Fetch     func(ctx context.Context) (*Fetched, error)
}

// Stage turns its category's slice of a MissingIDs set into jobs. Stages
// are configuration: the executor knows nothing about specific categories.
type Stage struct {
	Category entity.Category
	Jobs     func(missing *MissingIDs) []Job
}

// DefaultStages resolves every category through f.
func DefaultStages(f Fetcher) []Stage {
	return []Stage{
		TypeStage(f),
		NameStage(f),
		LocationStage(f),
		StructureStage(f),
		AuxiliaryStage(f),
		ContractItemsStage(f),
	}
}

func TypeStage(f Fetcher) Stage {
	return Stage{
		Category: entity.CategoryType,
		Jobs: func(m *MissingIDs) []Job {
			if len(m.Types) == 0 {
				return nil
			}
			ids := m.Types.Sorted()
			return []Job{{
				Category:  entity.CategoryType,
				Label:     "types",
				Requested: len(ids),
				Fetch: func(ctx context.Context) (*Fetched, error) {
					types, err := f.FetchTypes(ctx, ids)
					if err != nil {
						return nil, err
					}
					return &Fetched{Types: types}, nil
				},
			}}
		},
	}
}

func NameStage(f Fetcher) Stage {
	return Stage{
		Category: entity.CategoryName,
		Jobs: func(m *MissingIDs) []Job {
			if len(m.Names) == 0 {
				return nil
			}
			ids := m.Names.Sorted()
			return []Job{{
				Category:  entity.CategoryName,
				Label:     "names",
				Requested: len(ids),
				Fetch: func(ctx context.Context) (*Fetched, error) {
					names, err := f.FetchNames(ctx, ids)
					if err != nil {
						return nil, err
					}
					return &Fetched{Names: names}, nil
				},
			}}
		},
	}
}

func LocationStage(f Fetcher) Stage {
	return Stage{
		Category: entity.CategoryLocation,
		Jobs: func(m *MissingIDs) []Job {
			if len(m.Locations) == 0 {
				return nil
			}
			ids := m.Locations.Sorted()
			return []Job{{
				Category:  entity.CategoryLocation,
				Label:     "locations",
				Requested: len(ids),
				Fetch: func(ctx context.Context) (*Fetched, error) {
					locations, err := f.FetchLocations(ctx, ids)
					if err != nil {
						return nil, err
					}
					return &Fetched{Locations: locations}, nil
				},
			}}
		},
	}
}

// StructureStage issues one job per resolving character, since each
// character's credentials only see its own structures.
func StructureStage(f Fetcher) Stage {
	return Stage{
		Category: entity.CategoryStructure,
		Jobs: func(m *MissingIDs) []Job {
			characters, grouped := groupByOwner(m.Structures)
			jobs := make([]Job, 0, len(characters))
			for _, characterID := range characters {
				ids := grouped[characterID]
				jobs = append(jobs, Job{
					Category:  entity.CategoryStructure,
					Label:     fmt.Sprintf("structures/%d", characterID),
					Requested: len(ids),
					Fetch: func(ctx context.Context) (*Fetched, error) {
						structures, err := f.FetchStructures(ctx, characterID, ids)
						if err != nil {
							return nil, err
						}
						return &Fetched{Structures: structures}, nil
					},
				})
			}
			return jobs
		},
	}
}

func AuxiliaryStage(f Fetcher) Stage {
	return Stage{
		Category: entity.CategoryAuxiliary,
		Jobs: func(m *MissingIDs) []Job {
			if len(m.Auxiliary) == 0 {
				return nil
			}
			items := maps.Clone(m.Auxiliary)
			return []Job{{
				Category:  entity.CategoryAuxiliary,
				Label:     "auxiliary_prices",
				Requested: len(items),
				Fetch: func(ctx context.Context) (*Fetched, error) {
					prices, err := f.FetchAuxiliaryPrices(ctx, items)
					if err != nil {
						return nil, err
					}
					return &Fetched{AuxiliaryPrices: prices}, nil
				},
			}}
		},
	}
}

func ContractItemsStage(f Fetcher) Stage {
	return Stage{
		Category: entity.CategoryContractItems,
		Jobs: func(m *MissingIDs) []Job {
			characters, grouped := groupByOwner(m.Contracts)
			jobs := make([]Job, 0, len(characters))
			for _, characterID := range characters {
				ids := grouped[characterID]
				jobs = append(jobs, Job{
					Category:  entity.CategoryContractItems,
					Label:     fmt.Sprintf("contract_items/%d", characterID),
					Requested: len(ids),
					Fetch: func(ctx context.Context) (*Fetched, error) {
						sets, err := f.FetchContractItems(ctx, characterID, ids)
						if err != nil {
							return nil, err
						}
						return &Fetched{ContractItems: sets}, nil
					},
				})
			}
			return jobs
		},
	}
}
