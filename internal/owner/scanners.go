package owner

import (
	"refcache/internal/resolver"
)

// maxContainerDepth bounds the container walk so a malformed collection
// with a location cycle cannot loop forever.
const maxContainerDepth = 16

// scanAssets resolves every asset's type and its root location: the
// station, structure or system at the top of its container chain. Mutated
// items are also queued for per-item pricing.
func scanAssets(ownerID int64, assets []Asset, acc *resolver.Accumulator) {
	byItem := make(map[int64]Asset, len(assets))
	for _, a := range assets {
		byItem[a.ItemID] = a
	}

	for _, a := range assets {
		acc.AddType(a.TypeID)
		acc.AddLocation(rootLocation(a, byItem), ownerID)
		if a.IsMutated {
			acc.AddAuxiliary(a.ItemID, a.TypeID)
		}
	}
}

func rootLocation(a Asset, byItem map[int64]Asset) int64 {
	location := a.LocationID
	for range maxContainerDepth {
		container, ok := byItem[location]
		if !ok {
			break
		}
		location = container.LocationID
	}
	return location
}

func scanContract(ownerID int64, c Contract, acc *resolver.Accumulator) {
	acc.AddName(c.IssuerID)
	acc.AddName(c.IssuerCorporationID)
	acc.AddName(c.AssigneeID)
	acc.AddName(c.AcceptorID)
	acc.AddLocation(c.StartLocationID, ownerID)
	acc.AddLocation(c.EndLocationID, ownerID)
	if c.Type != "loan" {
		acc.AddContractItems(c.ContractID, ownerID)
	}
}

func scanMarketOrder(ownerID int64, o MarketOrder, acc *resolver.Accumulator) {
	acc.AddType(o.TypeID)
	acc.AddLocation(o.LocationID, ownerID)
	acc.AddLocation(o.RegionID, ownerID)
}

func scanIndustryJob(ownerID int64, j IndustryJob, acc *resolver.Accumulator) {
	acc.AddType(j.BlueprintTypeID)
	acc.AddType(j.ProductTypeID)
	acc.AddName(j.InstallerID)
	acc.AddLocation(j.FacilityID, ownerID)
	acc.AddLocation(j.StationID, ownerID)
	acc.AddLocation(j.OutputLocationID, ownerID)
}

// Corporation-scoped sources are keyed by corporation ID, which cannot
// authenticate structure lookups; their locations are only resolved when
// public.
func scanCorporationStructure(corporationID int64, s CorporationStructure, acc *resolver.Accumulator) {
	acc.AddName(corporationID)
	acc.AddType(s.TypeID)
	acc.AddLocation(s.SystemID, 0)
}

func scanStarbase(corporationID int64, s Starbase, acc *resolver.Accumulator) {
	acc.AddName(corporationID)
	acc.AddType(s.TypeID)
	acc.AddLocation(s.SystemID, 0)
	acc.AddLocation(s.MoonID, 0)
}

func scanClone(ownerID int64, c Clone, acc *resolver.Accumulator) {
	acc.AddLocation(c.LocationID, ownerID)
	for _, implant := range c.Implants {
		acc.AddType(implant)
	}
}

func scanLoyaltyPoints(_ int64, lp LoyaltyPoints, acc *resolver.Accumulator) {
	acc.AddName(lp.CorporationID)
}
