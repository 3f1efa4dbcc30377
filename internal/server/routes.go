package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"refcache/internal/cache"
	"refcache/internal/esi"
	"refcache/internal/market"
	"refcache/internal/owner"
	"refcache/internal/resolver"
	serverHandlers "refcache/internal/server/handlers"
	"refcache/internal/shared/config"
)

type Routes struct {
	store    *cache.Store
	resolver *resolver.Resolver
	sources  *owner.Sources
	tokens   *esi.TokenStore
	states   *esi.StateManager
	prices   *market.PriceCache
	gatherer prometheus.Gatherer
	cfg      *config.Config
	logger   *slog.Logger
}

// NewRoutes collects the API's dependencies. prices may be nil when market
// prices are disabled.
func NewRoutes(
	store *cache.Store,
	resolver *resolver.Resolver,
	sources *owner.Sources,
	tokens *esi.TokenStore,
	states *esi.StateManager,
	prices *market.PriceCache,
	gatherer prometheus.Gatherer,
	cfg *config.Config,
	logger *slog.Logger,
) *Routes {
	return &Routes{
		store:    store,
		resolver: resolver,
		sources:  sources,
		tokens:   tokens,
		states:   states,
		prices:   prices,
		gatherer: gatherer,
		cfg:      cfg,
		logger:   logger,
	}
}

func (r *Routes) Setup() *http.ServeMux {
	logger := r.logger.With("component", "routes", "operation", "setup")
	logger.Debug("Setting up application routes")

	mux := http.NewServeMux()

	healthHandler := serverHandlers.NewHealthHandler(r.store, r.resolver)
	cacheHandler := serverHandlers.NewCacheHandler(r.store, r.resolver, r.sources)
	ownersHandler := serverHandlers.NewOwnersHandler(r.sources)
	ssoHandler := serverHandlers.NewSSOHandler(r.tokens, r.states, r.resolver, r.cfg.Frontend.URL, r.cfg.SSOConfigured())

	// Cache endpoints
	mux.Handle("/api/server/health", healthHandler)
	mux.HandleFunc("/api/cache/stats", cacheHandler.GetStats)
	mux.HandleFunc("/api/cache/resolve", cacheHandler.Resolve)
	mux.HandleFunc("/api/cache/reset", cacheHandler.Reset)
	mux.HandleFunc("/api/cache/{category}/{id}", cacheHandler.GetEntity)

	// Owner collections
	mux.HandleFunc("/api/owners/{ownerID}/{source}", ownersHandler.ReplaceCollection)

	// Characters and SSO
	mux.HandleFunc("/api/characters", ssoHandler.ListCharacters)
	mux.HandleFunc("/api/characters/tokens", ssoHandler.RegisterToken)
	mux.HandleFunc("/sso/login", ssoHandler.HandleLogin)
	mux.HandleFunc("/sso/callback", ssoHandler.HandleCallback)

	marketEndpoints := []string{}
	if r.prices != nil {
		marketHandler := serverHandlers.NewMarketHandler(r.prices)
		mux.HandleFunc("/api/market/prices/{typeID}", marketHandler.GetPrice)
		marketEndpoints = append(marketEndpoints, "/api/market/prices/{typeID}")
	}

	mux.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))

	logger.Info("Routes configured successfully",
		"cache_endpoints", []string{"/api/server/health", "/api/cache/stats", "/api/cache/resolve", "/api/cache/reset", "/api/cache/{category}/{id}"},
		"owner_endpoints", []string{"/api/owners/{ownerID}/{source}"},
		"sso_endpoints", []string{"/api/characters", "/api/characters/tokens", "/sso/login", "/sso/callback"},
		"market_endpoints", marketEndpoints,
		"sso_configured", r.cfg.SSOConfigured(),
	)

	return mux
}
