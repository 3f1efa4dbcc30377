package owner

// Item shapes follow the ESI responses they are ingested from.

type Asset struct {
	ItemID       int64  `json:"item_id"`
	TypeID       int64  `json:"type_id"`
	LocationID   int64  `json:"location_id"`
	LocationFlag string `json:"location_flag"`
	LocationType string `json:"location_type"`
	Quantity     int64  `json:"quantity"`
	IsSingleton  bool   `json:"is_singleton"`
	// IsMutated marks dynamic items whose value has to be appraised per
	// instance.
	IsMutated bool `json:"is_mutated,omitempty"`
}

type Contract struct {
	ContractID          int64  `json:"contract_id"`
	Type                string `json:"type"`
	Status              string `json:"status"`
	IssuerID            int64  `json:"issuer_id"`
	IssuerCorporationID int64  `json:"issuer_corporation_id"`
	AssigneeID          int64  `json:"assignee_id"`
	AcceptorID          int64  `json:"acceptor_id"`
	StartLocationID     int64  `json:"start_location_id"`
	EndLocationID       int64  `json:"end_location_id"`
}

type MarketOrder struct {
	OrderID    int64   `json:"order_id"`
	TypeID     int64   `json:"type_id"`
	LocationID int64   `json:"location_id"`
	RegionID   int64   `json:"region_id"`
	Price      float64 `json:"price"`
	IsBuyOrder bool    `json:"is_buy_order"`
}

type IndustryJob struct {
	JobID            int64 `json:"job_id"`
	InstallerID      int64 `json:"installer_id"`
	BlueprintTypeID  int64 `json:"blueprint_type_id"`
	ProductTypeID    int64 `json:"product_type_id"`
	FacilityID       int64 `json:"facility_id"`
	StationID        int64 `json:"station_id"`
	OutputLocationID int64 `json:"output_location_id"`
}

// CorporationStructure is a structure listed for its owning corporation. It
// already carries its own name, so only its type and system are resolved.
type CorporationStructure struct {
	StructureID int64  `json:"structure_id"`
	Name        string `json:"name"`
	TypeID      int64  `json:"type_id"`
	SystemID    int64  `json:"system_id"`
}

type Starbase struct {
	StarbaseID int64 `json:"starbase_id"`
	TypeID     int64 `json:"type_id"`
	SystemID   int64 `json:"system_id"`
	MoonID     int64 `json:"moon_id"`
}

type Clone struct {
	JumpCloneID  int64   `json:"jump_clone_id"`
	LocationID   int64   `json:"location_id"`
	LocationType string  `json:"location_type"`
	Implants     []int64 `json:"implants"`
}

type LoyaltyPoints struct {
	CorporationID int64 `json:"corporation_id"`
	LoyaltyPoints int64 `json:"loyalty_points"`
}
