package entity

import "fmt"

// StructureIDThreshold separates player-owned structure IDs from NPC
// location IDs. Everything at or above it is routed through the
// authenticated structure lookup.
const StructureIDThreshold int64 = 1_000_000_000_000

func IsStructureID(id int64) bool {
	return id >= StructureIDThreshold
}

// LocationKindOf derives the kind of an NPC location from its ID range.
func LocationKindOf(id int64) LocationKind {
	switch {
	case id >= 10_000_000 && id < 13_000_000:
		return LocationRegion
	case id >= 20_000_000 && id < 23_000_000:
		return LocationConstellation
	case id >= 30_000_000 && id < 33_000_000:
		return LocationSolarSystem
	case id >= 40_000_000 && id < 50_000_000:
		return LocationCelestial
	case id >= 60_000_000 && id < 64_000_000:
		return LocationStation
	default:
		return LocationUnknown
	}
}

// IsLocationID reports whether id is an NPC location the universe endpoints
// can resolve. Pseudo locations such as asset safety (2004) are not.
func IsLocationID(id int64) bool {
	return !IsStructureID(id) && LocationKindOf(id) != LocationUnknown
}

var fallbackNouns = map[Category]string{
	CategoryType:          "type",
	CategoryStructure:     "structure",
	CategoryLocation:      "location",
	CategoryName:          "entity",
	CategoryAuxiliary:     "item",
	CategoryContractItems: "contract",
}

// FallbackLabel is the label shown for an ID that is not resolved yet.
func FallbackLabel(category Category, id int64) string {
	noun, ok := fallbackNouns[category]
	if !ok {
		noun = string(category)
	}
	return fmt.Sprintf("Unknown %s %d", noun, id)
}
