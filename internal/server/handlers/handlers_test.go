package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"refcache/internal/cache"
	"refcache/internal/entity"
	"refcache/internal/owner"
	"refcache/internal/resolver"
	"refcache/internal/shared/errors"
	"refcache/internal/shared/logger"
	"refcache/internal/shared/response"
)

const characterID int64 = 95465499

type fakeResolution struct {
	triggers atomic.Int32
	report   *resolver.Report
	store    *cache.Store
}

func (f *fakeResolution) TriggerResolution()    { f.triggers.Add(1) }
func (f *fakeResolution) State() resolver.State { return resolver.StateIdle }
func (f *fakeResolution) Passes() uint64        { return 3 }
func (f *fakeResolution) Reset(ctx context.Context) error {
	if f.store != nil {
		if err := f.store.Clear(ctx); err != nil {
			return err
		}
	}
	f.TriggerResolution()
	return nil
}
func (f *fakeResolution) LastReport() (resolver.Report, bool) {
	if f.report == nil {
		return resolver.Report{}, false
	}
	return *f.report, true
}

type fakeTokens struct {
	mu         sync.Mutex
	characters []int64
	codes      map[string]int64
}

func (f *fakeTokens) AuthCodeURL(state string) string {
	return "https://login.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeTokens) Exchange(_ context.Context, code string) (int64, error) {
	id, ok := f.codes[code]
	if !ok {
		return 0, errors.Externalf("bad code")
	}
	f.add(id)
	return id, nil
}

func (f *fakeTokens) Register(_ context.Context, token *oauth2.Token) (int64, error) {
	if token.AccessToken == "" {
		return 0, errors.Validationf("access token is required")
	}
	if token.AccessToken == "forged" {
		return 0, errors.Unauthorizedf("invalid SSO access token")
	}
	f.add(characterID)
	return characterID, nil
}

func (f *fakeTokens) add(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.characters = append(f.characters, id)
}

func (f *fakeTokens) Characters() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.characters...)
}

type fixedState struct{ issued []string }

func (s *fixedState) Generate() (string, error) {
	s.issued = append(s.issued, "state-1")
	return "state-1", nil
}

func (s *fixedState) Validate(state string) error {
	if state != "state-1" {
		return errors.Validationf("invalid state")
	}
	return nil
}

type brokenPinger struct{}

func (brokenPinger) Ping(context.Context) error { return fmt.Errorf("connection refused") }

func newStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(context.Background(), cache.NewMemoryBackend(), "1", logger.Discard())
	require.NoError(t, err)
	return store
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	res := &fakeResolution{}

	rec := httptest.NewRecorder()
	NewHealthHandler(newStore(t), res).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/server/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "connected", body.Storage)
	assert.Equal(t, "idle", body.Resolver)

	rec = httptest.NewRecorder()
	NewHealthHandler(brokenPinger{}, res).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/server/health", nil))
	assert.Equal(t, "degraded", decode[HealthResponse](t, rec).Status)

	rec = httptest.NewRecorder()
	NewHealthHandler(brokenPinger{}, res).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/server/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func cacheMux(h *CacheHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cache/stats", h.GetStats)
	mux.HandleFunc("/api/cache/resolve", h.Resolve)
	mux.HandleFunc("/api/cache/reset", h.Reset)
	mux.HandleFunc("/api/cache/{category}/{id}", h.GetEntity)
	return mux
}

func TestGetEntity(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Types.PutBatch(context.Background(), []entity.Type{{ID: 34, Name: "Tritanium"}}))
	mux := cacheMux(NewCacheHandler(store, &fakeResolution{}, owner.NewSources(nil, logger.Discard())))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cache/type/34", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "Tritanium", body["label"])
	assert.Equal(t, "type", body["category"])

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cache/location/30000142", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	errBody := decode[response.ErrorResponse](t, rec)
	assert.Equal(t, entity.FallbackLabel(entity.CategoryLocation, 30000142), errBody.Details["label"])

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cache/planet/1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cache/type/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsResolveAndReset(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Types.PutBatch(context.Background(), []entity.Type{{ID: 34, Name: "Tritanium"}}))
	res := &fakeResolution{report: &resolver.Report{Waves: 2}, store: store}
	sources := owner.NewSources(nil, logger.Discard())
	sources.MarketOrders.Replace(characterID, []owner.MarketOrder{{OrderID: 1, TypeID: 34}})
	mux := cacheMux(NewCacheHandler(store, res, sources))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[StatsResponse](t, rec)
	assert.Equal(t, 1, stats.Cache.Counts[entity.CategoryType])
	assert.Equal(t, "idle", stats.State)
	assert.Equal(t, uint64(3), stats.Passes)
	assert.Equal(t, 1, stats.Sources[owner.SourceMarketOrders])
	require.NotNil(t, stats.LastReport)
	assert.Equal(t, 2, stats.LastReport.Waves)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cache/resolve", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, int32(1), res.triggers.Load())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cache/resolve", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, int32(1), res.triggers.Load())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cache/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, store.Types.Has(34))
	assert.Equal(t, int32(2), res.triggers.Load(), "reset schedules a rebuild")
}

func TestReplaceCollection(t *testing.T) {
	res := &fakeResolution{}
	sources := owner.NewSources(res, logger.Discard())
	mux := http.NewServeMux()
	mux.HandleFunc("/api/owners/{ownerID}/{source}", NewOwnersHandler(sources).ReplaceCollection)

	body := `[{"item_id": 1, "type_id": 34, "location_id": 60003760, "quantity": 10}]`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/owners/95465499/assets", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, IngestResponse{Source: owner.SourceAssets, OwnerID: characterID, Items: 1}, decode[IngestResponse](t, rec))
	assert.Len(t, sources.Assets.Items(characterID), 1)
	assert.Equal(t, int32(1), res.triggers.Load())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"unknown source", http.MethodPut, "/api/owners/95465499/wallets", `[]`, http.StatusNotFound},
		{"bad owner", http.MethodPut, "/api/owners/me/assets", `[]`, http.StatusBadRequest},
		{"bad payload", http.MethodPut, "/api/owners/95465499/assets", `{}`, http.StatusBadRequest},
		{"wrong method", http.MethodPost, "/api/owners/95465499/assets", `[]`, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
	assert.Equal(t, int32(1), res.triggers.Load())
}

func TestSSOFlow(t *testing.T) {
	res := &fakeResolution{}
	tokens := &fakeTokens{codes: map[string]int64{"good": characterID}}
	states := &fixedState{}
	h := NewSSOHandler(tokens, states, res, "http://app.example", true)

	rec := httptest.NewRecorder()
	h.HandleLogin(rec, httptest.NewRequest(http.MethodGet, "/sso/login", nil))
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "state=state-1")

	rec = httptest.NewRecorder()
	h.HandleCallback(rec, httptest.NewRequest(http.MethodGet, "/sso/callback?code=good&state=state-1", nil))
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "http://app.example/characters?character_id=95465499", rec.Header().Get("Location"))
	assert.Equal(t, int32(1), res.triggers.Load())

	rec = httptest.NewRecorder()
	h.HandleCallback(rec, httptest.NewRequest(http.MethodGet, "/sso/callback?code=good&state=forged", nil))
	assert.Equal(t, "http://app.example/characters?error=invalid_state", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	h.HandleCallback(rec, httptest.NewRequest(http.MethodGet, "/sso/callback?code=bad&state=state-1", nil))
	assert.Equal(t, "http://app.example/characters?error=sso_error", rec.Header().Get("Location"))
	assert.Equal(t, int32(1), res.triggers.Load())

	unconfigured := NewSSOHandler(tokens, states, res, "http://app.example", false)
	rec = httptest.NewRecorder()
	unconfigured.HandleLogin(rec, httptest.NewRequest(http.MethodGet, "/sso/login", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRegisterToken(t *testing.T) {
	res := &fakeResolution{}
	tokens := &fakeTokens{}
	h := NewSSOHandler(tokens, &fixedState{}, res, "http://app.example", true)

	rec := httptest.NewRecorder()
	h.RegisterToken(rec, httptest.NewRequest(http.MethodPost, "/api/characters/tokens",
		strings.NewReader(`{"access_token": "jwt", "refresh_token": "r", "expires_in": 1200}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, CharacterResponse{CharacterID: characterID, Characters: []int64{characterID}}, decode[CharacterResponse](t, rec))
	assert.Equal(t, int32(1), res.triggers.Load())

	rec = httptest.NewRecorder()
	h.RegisterToken(rec, httptest.NewRequest(http.MethodPost, "/api/characters/tokens", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.RegisterToken(rec, httptest.NewRequest(http.MethodPost, "/api/characters/tokens", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.RegisterToken(rec, httptest.NewRequest(http.MethodPost, "/api/characters/tokens",
		strings.NewReader(`{"access_token": "forged", "refresh_token": "r"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, int32(1), res.triggers.Load(), "rejected token triggers nothing")

	rec = httptest.NewRecorder()
	h.ListCharacters(rec, httptest.NewRequest(http.MethodGet, "/api/characters", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{characterID}, decode[CharacterResponse](t, rec).Characters)
}

type priceMap map[int64]entity.MarketPrice

func (p priceMap) Get(typeID int64) (entity.MarketPrice, bool) {
	v, ok := p[typeID]
	return v, ok
}

func TestGetPrice(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/market/prices/{typeID}", NewMarketHandler(priceMap{
		34: {TypeID: 34, AveragePrice: 4.2, AdjustedPrice: 4.1},
	}).GetPrice)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/market/prices/34", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4.1, decode[entity.MarketPrice](t, rec).AdjustedPrice)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/market/prices/35", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
