package resolver

import (
	"maps"
	"slices"

	"refcache/internal/entity"
)

type IDSet map[int64]struct{}

func (s IDSet) Add(id int64) { s[id] = struct{}{} }

func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s IDSet) Sorted() []int64 {
	return slices.Sorted(maps.Keys(s))
}

// MissingIDs is the set of foreign keys a pass has to resolve, partitioned
// by category. Structures and contracts carry the character whose
// credentials can see them.
type MissingIDs struct {
	Types      IDSet
	Locations  IDSet
	Names      IDSet
	Structures map[int64]int64 // structure ID -> resolving character ID
	Auxiliary  map[int64]int64 // item ID -> type ID
	Contracts  map[int64]int64 // contract ID -> resolving character ID
}

func NewMissingIDs() *MissingIDs {
	return &MissingIDs{
		Types:      make(IDSet),
		Locations:  make(IDSet),
		Names:      make(IDSet),
		Structures: make(map[int64]int64),
		Auxiliary:  make(map[int64]int64),
		Contracts:  make(map[int64]int64),
	}
}

func (m *MissingIDs) IsEmpty() bool {
	return m.Len() == 0
}

func (m *MissingIDs) Len() int {
	return len(m.Types) + len(m.Locations) + len(m.Names) +
		len(m.Structures) + len(m.Auxiliary) + len(m.Contracts)
}

// Counts reports the set size per category, for logs and metrics.
func (m *MissingIDs) Counts() map[entity.Category]int {
	return map[entity.Category]int{
		entity.CategoryType:          len(m.Types),
		entity.CategoryLocation:      len(m.Locations),
		entity.CategoryName:          len(m.Names),
		entity.CategoryStructure:     len(m.Structures),
		entity.CategoryAuxiliary:     len(m.Auxiliary),
		entity.CategoryContractItems: len(m.Contracts),
	}
}

// Merge adds every ID of other. For keyed maps the first recorded context
// wins.
func (m *MissingIDs) Merge(other *MissingIDs) {
	if other == nil {
		return
	}
	maps.Copy(m.Types, other.Types)
	maps.Copy(m.Locations, other.Locations)
	maps.Copy(m.Names, other.Names)
	mergeFirst(m.Structures, other.Structures)
	mergeFirst(m.Auxiliary, other.Auxiliary)
	mergeFirst(m.Contracts, other.Contracts)
}

func mergeFirst(dst, src map[int64]int64) {
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}

// groupByOwner inverts an ID -> character map into sorted ID lists per
// character, in ascending character order.
func groupByOwner(ids map[int64]int64) (owners []int64, grouped map[int64][]int64) {
	grouped = make(map[int64][]int64)
	for id, owner := range ids {
		grouped[owner] = append(grouped[owner], id)
	}
	for _, list := range grouped {
		slices.Sort(list)
	}
	return slices.Sorted(maps.Keys(grouped)), grouped
}
