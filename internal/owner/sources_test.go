package owner

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refcache/internal/entity"
	"refcache/internal/resolver"
	"refcache/internal/shared/errors"
	"refcache/internal/shared/logger"
)

const (
	characterID int64 = 95465499
	structureID int64 = 1000000000123
	jitaStation int64 = 60003760
	jita        int64 = 30000142
)

type countingTrigger struct{ n atomic.Int32 }

func (c *countingTrigger) TriggerResolution() { c.n.Add(1) }

func nothingKnown(entity.Category, int64) bool { return false }

func collect(t *testing.T, sources *Sources) *resolver.MissingIDs {
	t.Helper()
	registry := resolver.NewRegistry(logger.Discard())
	require.NoError(t, sources.Register(registry))
	return registry.Collect(context.Background(), nothingKnown)
}

func TestAssetsResolveRootContainer(t *testing.T) {
	trigger := &countingTrigger{}
	sources := NewSources(trigger, logger.Discard())

	sources.Assets.Replace(characterID, []Asset{
		{ItemID: 1, TypeID: 3467, LocationID: structureID, LocationType: "item"},      // container in a citadel
		{ItemID: 2, TypeID: 34, LocationID: 1, Quantity: 5000},                        // tritanium inside it
		{ItemID: 3, TypeID: 47702, LocationID: 1, IsMutated: true, IsSingleton: true}, // mutated module inside it
		{ItemID: 4, TypeID: 35, LocationID: jitaStation, LocationType: "station"},     // station hangar
		{ItemID: 5, TypeID: 36, LocationID: 2004, LocationFlag: "AssetSafety"},        // asset safety
	})

	assert.Equal(t, int32(1), trigger.n.Load())

	m := collect(t, sources)
	assert.Equal(t, []int64{34, 35, 36, 3467, 47702}, m.Types.Sorted())
	assert.Equal(t, map[int64]int64{structureID: characterID}, m.Structures)
	assert.Equal(t, []int64{jitaStation}, m.Locations.Sorted())
	assert.Equal(t, map[int64]int64{3: 47702}, m.Auxiliary)
}

func TestRootLocationStopsOnCycles(t *testing.T) {
	byItem := map[int64]Asset{
		1: {ItemID: 1, LocationID: 2},
		2: {ItemID: 2, LocationID: 1},
	}
	assert.NotPanics(t, func() { rootLocation(byItem[1], byItem) })
}

func TestContractsAndOrders(t *testing.T) {
	sources := NewSources(nil, logger.Discard())

	sources.Contracts.Replace(characterID, []Contract{
		{ContractID: 190000001, Type: "item_exchange", IssuerID: characterID, IssuerCorporationID: 98000001, StartLocationID: structureID},
		{ContractID: 190000002, Type: "loan", IssuerID: 2112000000, StartLocationID: jitaStation},
	})
	sources.MarketOrders.Replace(characterID, []MarketOrder{
		{OrderID: 1, TypeID: 34, LocationID: jitaStation, RegionID: 10000002},
	})

	m := collect(t, sources)
	assert.Equal(t, []int64{characterID, 98000001, 2112000000}, m.Names.Sorted())
	assert.Equal(t, map[int64]int64{190000001: characterID}, m.Contracts)
	assert.Equal(t, []int64{10000002, jitaStation}, m.Locations.Sorted())
	assert.Equal(t, []int64{34}, m.Types.Sorted())
	assert.Equal(t, characterID, m.Structures[structureID])
}

func TestCorporationSourcesAndClones(t *testing.T) {
	sources := NewSources(nil, logger.Discard())
	const corp int64 = 98000001

	sources.CorporationStructures.Replace(corp, []CorporationStructure{{StructureID: structureID, TypeID: 35832, SystemID: jita}})
	sources.Starbases.Replace(corp, []Starbase{{StarbaseID: 1, TypeID: 12235, SystemID: jita, MoonID: 40009081}})
	sources.Clones.Replace(characterID, []Clone{{JumpCloneID: 1, LocationID: jitaStation, Implants: []int64{22118}}})
	sources.LoyaltyPoints.Replace(characterID, []LoyaltyPoints{{CorporationID: 1000035, LoyaltyPoints: 12000}})
	sources.IndustryJobs.Replace(characterID, []IndustryJob{{JobID: 1, InstallerID: characterID, BlueprintTypeID: 691, ProductTypeID: 587, FacilityID: jitaStation}})

	m := collect(t, sources)
	assert.Equal(t, []int64{587, 691, 12235, 22118, 35832}, m.Types.Sorted())
	assert.Equal(t, []int64{jita, 40009081, jitaStation}, m.Locations.Sorted())
	assert.Equal(t, []int64{1000035, characterID, corp}, m.Names.Sorted())
	assert.Empty(t, m.Structures)
}

func TestScanSkipsKnownIDs(t *testing.T) {
	sources := NewSources(nil, logger.Discard())
	sources.MarketOrders.Replace(characterID, []MarketOrder{{OrderID: 1, TypeID: 34, LocationID: jitaStation}})

	registry := resolver.NewRegistry(logger.Discard())
	require.NoError(t, sources.Register(registry))
	m := registry.Collect(context.Background(), func(c entity.Category, id int64) bool {
		return c == entity.CategoryType && id == 34
	})

	assert.Empty(t, m.Types)
	assert.Equal(t, []int64{jitaStation}, m.Locations.Sorted())
}

func TestIngest(t *testing.T) {
	trigger := &countingTrigger{}
	sources := NewSources(trigger, logger.Discard())

	n, err := sources.Ingest(SourceAssets, characterID, strings.NewReader(`[
		{"item_id": 1, "type_id": 34, "location_id": 60003760, "location_flag": "Hangar", "location_type": "station", "quantity": 100}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(1), trigger.n.Load())
	assert.Equal(t, []Asset{{ItemID: 1, TypeID: 34, LocationID: jitaStation, LocationFlag: "Hangar", LocationType: "station", Quantity: 100}},
		sources.Assets.Items(characterID))
	assert.Equal(t, 1, sources.Counts()[SourceAssets])

	_, err = sources.Ingest("wallets", characterID, strings.NewReader(`[]`))
	assert.True(t, errors.Is(err, errors.ErrorTypeNotFound))

	_, err = sources.Ingest(SourceAssets, characterID, strings.NewReader(`{"not": "an array"}`))
	assert.True(t, errors.Is(err, errors.ErrorTypeValidation))

	_, err = sources.Ingest(SourceAssets, 0, strings.NewReader(`[]`))
	assert.True(t, errors.Is(err, errors.ErrorTypeValidation))
	assert.Equal(t, int32(1), trigger.n.Load(), "rejected payloads do not trigger")
}

func TestScanStopsOnCancelledContext(t *testing.T) {
	sources := NewSources(nil, logger.Discard())
	sources.Assets.Replace(characterID, []Asset{{ItemID: 1, TypeID: 34, LocationID: jitaStation}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	acc := resolver.NewAccumulator(nothingKnown)
	assert.ErrorIs(t, sources.Assets.Scan(ctx, acc), context.Canceled)
	assert.True(t, acc.Missing().IsEmpty())
}
