package resolver

import (
	"context"

	"refcache/internal/entity"
)

// FollowUp inspects the records of one wave and adds the IDs they reference
// to acc. Whatever it adds becomes the next wave.
type FollowUp struct {
	Name string
	Find func(wave *Fetched, acc *Accumulator)
}

// PostProcessor runs once per pass after persisting, with everything the
// pass fetched. Failures are logged and reported, never propagated.
type PostProcessor struct {
	Name string
	Run  func(ctx context.Context, fetched *Fetched) error
}

func DefaultFollowUps() []FollowUp {
	return []FollowUp{
		StructureSystems(),
		StructureOwners(),
		LocationSystems(),
		ContractItemTypes(),
	}
}

// StructureSystems resolves the solar system a structure sits in.
func StructureSystems() FollowUp {
	return FollowUp{
		Name: "structure_systems",
		Find: func(wave *Fetched, acc *Accumulator) {
			for _, s := range wave.Structures {
				if s.SolarSystemID > 0 {
					acc.AddLocation(s.SolarSystemID, s.ResolvedBy)
				}
			}
		},
	}
}

// StructureOwners resolves the name of a structure's owning corporation.
func StructureOwners() FollowUp {
	return FollowUp{
		Name: "structure_owners",
		Find: func(wave *Fetched, acc *Accumulator) {
			for _, s := range wave.Structures {
				acc.AddName(s.OwnerID)
				acc.AddType(s.TypeID)
			}
		},
	}
}

// LocationSystems resolves the solar system of stations and celestials.
func LocationSystems() FollowUp {
	return FollowUp{
		Name: "location_systems",
		Find: func(wave *Fetched, acc *Accumulator) {
			for _, l := range wave.Locations {
				if l.Kind != entity.LocationSolarSystem && l.SolarSystemID > 0 {
					acc.AddLocation(l.SolarSystemID, 0)
				}
			}
		},
	}
}

// ContractItemTypes resolves the item types listed in contracts.
func ContractItemTypes() FollowUp {
	return FollowUp{
		Name: "contract_item_types",
		Find: func(wave *Fetched, acc *Accumulator) {
			for _, set := range wave.ContractItems {
				for _, item := range set.Items {
					acc.AddType(item.TypeID)
				}
			}
		},
	}
}
