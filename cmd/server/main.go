package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"refcache/internal/cache"
	"refcache/internal/esi"
	"refcache/internal/market"
	"refcache/internal/middleware"
	"refcache/internal/owner"
	"refcache/internal/resolver"
	"refcache/internal/server"
	"refcache/internal/shared/config"
	"refcache/internal/shared/logger"
)

func main() {
	cfg, err := config.Init()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("Starting refcache",
		"port", cfg.Server.Port,
		"environment", cfg.Server.Environment,
		"storage_driver", cfg.Storage.Driver,
	)

	backend, err := cache.OpenBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open cache backend: %w", err)
	}

	store, err := cache.Open(ctx, backend, cfg.Storage.CacheVersion, log)
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("open entity store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close entity store", "error", err)
		}
	}()

	tokens := esi.NewTokenStore(cfg.ESI, log)
	client, err := esi.NewClient(cfg.ESI, tokens, log)
	if err != nil {
		return fmt.Errorf("create ESI client: %w", err)
	}
	if !cfg.SSOConfigured() {
		log.Warn("EVE SSO is not configured, structures and contract items will not resolve")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	executorOpts := []resolver.Option{
		resolver.WithMaxWaves(cfg.Resolver.MaxWaves),
		resolver.WithConcurrency(cfg.Resolver.Concurrency),
		resolver.WithMetrics(resolver.NewMetrics(reg)),
	}

	var prices *market.PriceCache
	if cfg.Market.Enabled {
		prices, err = market.NewPriceCache(client, cfg.Market.PriceCacheSize, log)
		if err != nil {
			return err
		}
		executorOpts = append(executorOpts, resolver.WithPostProcessor(prices.PostProcessor()))
	}

	registry := resolver.NewRegistry(log)
	executor := resolver.NewExecutor(store, client, log, executorOpts...)

	// Passes run on their own context so a shutdown lets an in-flight pass
	// persist what it fetched.
	passCtx, cancelPasses := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelPasses()

	res := resolver.New(passCtx, store, registry, executor, cfg.Resolver.DebounceDelay, log)

	sources := owner.NewSources(res, log)
	if err := sources.Register(registry); err != nil {
		return err
	}

	routes := server.NewRoutes(store, res, sources, tokens, esi.NewStateManager(nil, log), prices, reg, cfg, log)
	mux := routes.Setup()

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)
	defer rateLimiter.Stop()
	cors := middleware.NewCORS(cfg.Frontend, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      cors.Middleware(rateLimiter.Middleware(mux)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Collections restored by other processes may already reference
	// unknown IDs.
	res.TriggerResolution()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	}

	res.Close()
	if err := res.WaitIdle(shutdownCtx); err != nil {
		log.Warn("Resolution pass still running at shutdown", "error", err)
	}

	log.Info("Server stopped")
	return nil
}
