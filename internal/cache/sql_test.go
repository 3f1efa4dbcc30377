package cache

import (
	"context"
	"path/filepath"
	"testing"

	"refcache/internal/entity"
	"refcache/internal/shared/logger"
	"refcache/internal/shared/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteBackend(t *testing.T, path string) *SQLBackend {
	t.Helper()
	db, err := sqlite.Open(context.Background(), path, logger.Discard())
	require.NoError(t, err)
	return NewSQLBackend(db, DialectSQLite, logger.Discard())
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	backend := newSQLiteBackend(t, path)

	require.NoError(t, backend.PutBatch(ctx, "type", []Entry{
		{Key: "34", Payload: []byte(`{"type_id":34,"name":"Tritanium"}`)},
		{Key: "35", Payload: []byte(`{"type_id":35,"name":"Pyerite"}`)},
	}))
	require.NoError(t, backend.PutBatch(ctx, "type", []Entry{
		{Key: "34", Payload: []byte(`{"type_id":34,"name":"Tritanium II"}`)},
	}))

	entries, err := backend.LoadAll(ctx, "type")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "34", entries[0].Key)
	assert.JSONEq(t, `{"type_id":34,"name":"Tritanium II"}`, string(entries[0].Payload))

	empty, err := backend.LoadAll(ctx, "location")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, backend.Clear(ctx))
	entries, err = backend.LoadAll(ctx, "type")
	require.NoError(t, err)
	assert.Empty(t, entries)
	require.NoError(t, backend.Close())
}

func TestStoreOverSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	first, err := Open(ctx, newSQLiteBackend(t, path), "1", logger.Discard())
	require.NoError(t, err)
	require.NoError(t, first.Locations.PutBatch(ctx, []entity.Location{
		{ID: 30000142, Name: "Jita", Kind: entity.LocationSolarSystem, RegionID: 10000002, RegionName: "The Forge"},
	}))
	require.NoError(t, first.Close())

	second, err := Open(ctx, newSQLiteBackend(t, path), "1", logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	got, ok := second.Locations.Get(30000142)
	require.True(t, ok)
	assert.Equal(t, "The Forge", got.RegionName)
	assert.Equal(t, entity.LocationSolarSystem, got.Kind)
}
