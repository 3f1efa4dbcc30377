package entity

import (
	"time"
)

// Category names one keyed cache of reference data.
type Category string

const (
	CategoryType          Category = "type"
	CategoryStructure     Category = "structure"
	CategoryLocation      Category = "location"
	CategoryName          Category = "name"
	CategoryAuxiliary     Category = "auxiliary_price"
	CategoryContractItems Category = "contract_items"
)

// Categories lists every category in persist order.
var Categories = []Category{
	CategoryType,
	CategoryStructure,
	CategoryLocation,
	CategoryName,
	CategoryAuxiliary,
	CategoryContractItems,
}

// ParseCategory maps a category name, as used in URLs, to a Category.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

type Type struct {
	ID             int64   `json:"type_id"`
	Name           string  `json:"name"`
	GroupID        int64   `json:"group_id"`
	GroupName      string  `json:"group_name"`
	CategoryID     int64   `json:"category_id"`
	CategoryName   string  `json:"category_name"`
	Volume         float64 `json:"volume"`
	PackagedVolume float64 `json:"packaged_volume"`
	ImplantSlot    *int    `json:"implant_slot,omitempty"`
	MetaLevel      *int    `json:"meta_level,omitempty"`
	// Unknown marks an ID ESI does not know. It is cached so it is not
	// requested again.
	Unknown bool `json:"unknown,omitempty"`
}

type Structure struct {
	ID            int64     `json:"structure_id"`
	Name          string    `json:"name"`
	SolarSystemID int64     `json:"solar_system_id"`
	TypeID        int64     `json:"type_id"`
	OwnerID       int64     `json:"owner_id"`
	ResolvedBy    int64     `json:"resolved_by"`
	Inaccessible  bool      `json:"inaccessible"`
	FetchedAt     time.Time `json:"fetched_at"`
}

type LocationKind string

const (
	LocationRegion        LocationKind = "region"
	LocationConstellation LocationKind = "constellation"
	LocationSolarSystem   LocationKind = "solar_system"
	LocationCelestial     LocationKind = "celestial"
	LocationStation       LocationKind = "station"
	LocationUnknown       LocationKind = "unknown"
)

type Location struct {
	ID              int64        `json:"location_id"`
	Name            string       `json:"name"`
	Kind            LocationKind `json:"kind"`
	SolarSystemID   int64        `json:"solar_system_id,omitempty"`
	SolarSystemName string       `json:"solar_system_name,omitempty"`
	ConstellationID int64        `json:"constellation_id,omitempty"`
	RegionID        int64        `json:"region_id,omitempty"`
	RegionName      string       `json:"region_name,omitempty"`
	SecurityStatus  float64      `json:"security_status,omitempty"`
	Unknown         bool         `json:"unknown,omitempty"`
}

type Name struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Unknown  bool   `json:"unknown,omitempty"`
}

// AuxiliaryPrice is an appraised price for a single item instance, such as a
// mutated module whose value cannot be derived from its type.
type AuxiliaryPrice struct {
	ItemID    int64     `json:"item_id"`
	TypeID    int64     `json:"type_id"`
	Price     float64   `json:"price"`
	FetchedAt time.Time `json:"fetched_at"`
}

type ContractItem struct {
	RecordID   int64 `json:"record_id"`
	TypeID     int64 `json:"type_id"`
	Quantity   int64 `json:"quantity"`
	IsIncluded bool  `json:"is_included"`
	Singleton  bool  `json:"is_singleton"`
}

type ContractItemSet struct {
	ContractID int64          `json:"contract_id"`
	ResolvedBy int64          `json:"resolved_by"`
	Items      []ContractItem `json:"items"`
}

// MarketPrice is the region-independent market price ESI publishes per type.
type MarketPrice struct {
	TypeID        int64   `json:"type_id"`
	AveragePrice  float64 `json:"average_price"`
	AdjustedPrice float64 `json:"adjusted_price"`
}
