package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refcache/internal/entity"
	"refcache/internal/shared/logger"
)

func TestExecuteEmptySetShortCircuits(t *testing.T) {
	store, backend := newTestStore(t)
	fetcher := seededFetcher()
	exec := NewExecutor(store, fetcher, logger.Discard())

	report := exec.Execute(context.Background(), NewMissingIDs())

	assert.Zero(t, report.Waves)
	assert.Empty(t, report.Outcomes)
	assert.Zero(t, fetcher.totalCalls())
	for _, c := range entity.Categories {
		assert.Zero(t, backend.PutCalls(string(c)), "category %s", c)
	}

	report = exec.Execute(context.Background(), nil)
	assert.Zero(t, report.Waves)
}

func TestExecuteIsolatesFailingCategory(t *testing.T) {
	store, _ := newTestStore(t)
	fetcher := seededFetcher()
	fetcher.setNamesErr(errNamesDown)
	exec := NewExecutor(store, fetcher, logger.Discard())

	missing := NewMissingIDs()
	missing.Types.Add(tritanium)
	missing.Locations.Add(jitaStation)
	missing.Names.Add(corporationID)

	report := exec.Execute(context.Background(), missing)

	assert.True(t, store.Types.Has(tritanium))
	assert.True(t, store.Locations.Has(jitaStation))
	assert.False(t, store.Names.Has(corporationID))

	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, entity.CategoryName, failures[0].Category)
	assert.ErrorIs(t, failures[0].Err, errNamesDown)
	assert.Equal(t, errNamesDown.Error(), failures[0].Error)
	assert.True(t, failures[0].Retryable)
}

func TestExecuteResolvesStructureSystemInSecondWave(t *testing.T) {
	store, _ := newTestStore(t)
	fetcher := seededFetcher()
	exec := NewExecutor(store, fetcher, logger.Discard())

	missing := NewMissingIDs()
	missing.Structures[structureID] = characterID

	report := exec.Execute(context.Background(), missing)

	assert.Equal(t, 2, report.Waves)
	assert.Empty(t, report.Failures())

	s, ok := store.Structures.Get(structureID)
	require.True(t, ok)
	assert.Equal(t, characterID, s.ResolvedBy)
	assert.True(t, store.Locations.Has(jita), "structure system resolved in the same pass")
	assert.True(t, store.Names.Has(corporationID), "structure owner resolved in the same pass")
	assert.True(t, store.Types.Has(astrahus), "structure type resolved in the same pass")
	assert.Equal(t, "Jita - Test Citadel", store.Label(entity.CategoryLocation, structureID))
}

func TestExecuteSkipsFollowUpsAlreadyCached(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Locations.PutBatch(ctx, []entity.Location{{ID: jita, Name: "Jita", Kind: entity.LocationSolarSystem}}))
	require.NoError(t, store.Names.PutBatch(ctx, []entity.Name{{ID: corporationID, Name: "Test Corp"}}))
	require.NoError(t, store.Types.PutBatch(ctx, []entity.Type{{ID: astrahus, Name: "Astrahus"}}))

	fetcher := seededFetcher()
	exec := NewExecutor(store, fetcher, logger.Discard())

	missing := NewMissingIDs()
	missing.Structures[structureID] = characterID
	report := exec.Execute(ctx, missing)

	assert.Equal(t, 1, report.Waves)
	assert.Zero(t, fetcher.callCount("locations"))
	assert.Zero(t, fetcher.callCount("names"))
}

func TestExecuteWritesOneBatchPerCategory(t *testing.T) {
	store, backend := newTestStore(t)
	fetcher := seededFetcher()
	const otherStructure int64 = 1000000000456
	const otherCharacter int64 = 2112000000
	fetcher.structures[otherStructure] = entity.Structure{ID: otherStructure, Name: "Other", SolarSystemID: jita}
	exec := NewExecutor(store, fetcher, logger.Discard())

	missing := NewMissingIDs()
	missing.Structures[structureID] = characterID
	missing.Structures[otherStructure] = otherCharacter

	report := exec.Execute(context.Background(), missing)

	assert.Equal(t, 2, fetcher.callCount("structures"), "one job per resolving character")
	assert.Equal(t, 1, backend.PutCalls(string(entity.CategoryStructure)))
	assert.Equal(t, 1, backend.PutCalls(string(entity.CategoryLocation)))
	assert.Equal(t, 2, report.Persisted[entity.CategoryStructure])

	other, ok := store.Structures.Get(otherStructure)
	require.True(t, ok)
	assert.Equal(t, otherCharacter, other.ResolvedBy)
}

func TestExecuteContractItemTypesFollowUp(t *testing.T) {
	store, _ := newTestStore(t)
	fetcher := seededFetcher()
	const contractID int64 = 190000001
	fetcher.contracts[contractID] = entity.ContractItemSet{
		ContractID: contractID,
		Items: []entity.ContractItem{
			{RecordID: 1, TypeID: tritanium, Quantity: 1000, IsIncluded: true},
		},
	}
	exec := NewExecutor(store, fetcher, logger.Discard())

	missing := NewMissingIDs()
	missing.Contracts[contractID] = characterID
	report := exec.Execute(context.Background(), missing)

	assert.Equal(t, 2, report.Waves)
	assert.True(t, store.ContractItems.Has(contractID))
	assert.True(t, store.Types.Has(tritanium))
}

func TestExecuteWaveLimitDefersFollowUps(t *testing.T) {
	store, _ := newTestStore(t)
	fetcher := seededFetcher()
	s := fetcher.structures[structureID]
	s.OwnerID, s.TypeID = 0, 0
	fetcher.structures[structureID] = s
	exec := NewExecutor(store, fetcher, logger.Discard(), WithMaxWaves(1))

	missing := NewMissingIDs()
	missing.Structures[structureID] = characterID
	report := exec.Execute(context.Background(), missing)

	assert.Equal(t, 1, report.Waves)
	assert.Equal(t, 1, report.Deferred)
	assert.True(t, store.Structures.Has(structureID))
	assert.False(t, store.Locations.Has(jita))
}

func TestExecuteRecoversPanickingJob(t *testing.T) {
	store, _ := newTestStore(t)
	fetcher := seededFetcher()
	panicking := Stage{
		Category: entity.CategoryName,
		Jobs: func(m *MissingIDs) []Job {
			if len(m.Names) == 0 {
				return nil
			}
			return []Job{{
				Category: entity.CategoryName,
				Label:    "names",
				Fetch: func(context.Context) (*Fetched, error) {
					panic("boom")
				},
			}}
		},
	}
	exec := NewExecutor(store, fetcher, logger.Discard(),
		WithStages(TypeStage(fetcher), panicking))

	missing := NewMissingIDs()
	missing.Types.Add(tritanium)
	missing.Names.Add(corporationID)
	report := exec.Execute(context.Background(), missing)

	require.Len(t, report.Failures(), 1)
	assert.Contains(t, report.Failures()[0].Error, "panic")
	assert.True(t, store.Types.Has(tritanium))
}

func TestExecuteRunsPostProcessorsBestEffort(t *testing.T) {
	store, _ := newTestStore(t)
	fetcher := seededFetcher()

	var seen []int64
	exec := NewExecutor(store, fetcher, logger.Discard(),
		WithPostProcessor(PostProcessor{
			Name: "failing",
			Run: func(context.Context, *Fetched) error {
				return errors.New("price service down")
			},
		}),
		WithPostProcessor(PostProcessor{
			Name: "collect_types",
			Run: func(_ context.Context, f *Fetched) error {
				seen = f.TypeIDs()
				return nil
			},
		}),
	)

	missing := NewMissingIDs()
	missing.Types.Add(tritanium)
	report := exec.Execute(context.Background(), missing)

	assert.Equal(t, []int64{tritanium}, seen)
	assert.Equal(t, map[string]string{"failing": "price service down"}, report.PostProcessErrors)
	assert.True(t, store.Types.Has(tritanium))
}

func TestExecuteAuxiliaryPrices(t *testing.T) {
	store, _ := newTestStore(t)
	fetcher := seededFetcher()
	exec := NewExecutor(store, fetcher, logger.Discard())

	missing := NewMissingIDs()
	missing.Auxiliary[1040000000001] = 47702
	exec.Execute(context.Background(), missing)

	price, ok := store.AuxiliaryPrices.Get(1040000000001)
	require.True(t, ok)
	assert.Equal(t, int64(47702), price.TypeID)
}
