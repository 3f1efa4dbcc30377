package resolver

import (
	"refcache/internal/entity"
)

// KnownFunc reports whether id is already cached in category.
// cache.Store.Has satisfies it.
type KnownFunc func(category entity.Category, id int64) bool

// Accumulator is what scanners see. Every Add method checks the cache first
// and silently drops known or unresolvable IDs, so a scanner can only ever
// contribute IDs whose presence check failed.
type Accumulator struct {
	known   KnownFunc
	missing *MissingIDs
}

func NewAccumulator(known KnownFunc) *Accumulator {
	return &Accumulator{known: known, missing: NewMissingIDs()}
}

// Has exposes the read-only presence check to scanners.
func (a *Accumulator) Has(category entity.Category, id int64) bool {
	return a.known(category, id)
}

func (a *Accumulator) Missing() *MissingIDs {
	return a.missing
}

func (a *Accumulator) AddType(id int64) {
	if id <= 0 || a.known(entity.CategoryType, id) {
		return
	}
	a.missing.Types.Add(id)
}

func (a *Accumulator) AddName(id int64) {
	if id <= 0 || a.known(entity.CategoryName, id) {
		return
	}
	a.missing.Names.Add(id)
}

// AddLocation routes id by the structure threshold: structures need the
// character that can see them, NPC locations go to the public lookup, and
// anything else (asset safety, containers) is ignored.
func (a *Accumulator) AddLocation(id, characterID int64) {
	if entity.IsStructureID(id) {
		a.AddStructure(id, characterID)
		return
	}
	if !entity.IsLocationID(id) || a.known(entity.CategoryLocation, id) {
		return
	}
	a.missing.Locations.Add(id)
}

// AddStructure records a structure together with the character whose
// credentials will be used to look it up. A structure without a character
// cannot be fetched and is dropped.
func (a *Accumulator) AddStructure(id, characterID int64) {
	if !entity.IsStructureID(id) || characterID <= 0 || a.known(entity.CategoryStructure, id) {
		return
	}
	if _, ok := a.missing.Structures[id]; !ok {
		a.missing.Structures[id] = characterID
	}
}

func (a *Accumulator) AddAuxiliary(itemID, typeID int64) {
	if itemID <= 0 || typeID <= 0 || a.known(entity.CategoryAuxiliary, itemID) {
		return
	}
	if _, ok := a.missing.Auxiliary[itemID]; !ok {
		a.missing.Auxiliary[itemID] = typeID
	}
}

func (a *Accumulator) AddContractItems(contractID, characterID int64) {
	if contractID <= 0 || characterID <= 0 || a.known(entity.CategoryContractItems, contractID) {
		return
	}
	if _, ok := a.missing.Contracts[contractID]; !ok {
		a.missing.Contracts[contractID] = characterID
	}
}
