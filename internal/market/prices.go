// Package market keeps a bounded cache of market prices for the item types
// the entity store knows about.
package market

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"refcache/internal/entity"
	"refcache/internal/resolver"
)

type PriceSource interface {
	FetchMarketPrices(ctx context.Context) ([]entity.MarketPrice, error)
}

type PriceCache struct {
	source PriceSource
	prices *lru.Cache[int64, entity.MarketPrice]
	logger *slog.Logger
}

func NewPriceCache(source PriceSource, size int, logger *slog.Logger) (*PriceCache, error) {
	prices, err := lru.New[int64, entity.MarketPrice](size)
	if err != nil {
		return nil, fmt.Errorf("create price cache: %w", err)
	}
	return &PriceCache{
		source: source,
		prices: prices,
		logger: logger.With("component", "market_prices"),
	}, nil
}

// Refresh loads current prices and caches those of typeIDs. It returns how
// many of them had a price.
func (p *PriceCache) Refresh(ctx context.Context, typeIDs []int64) (int, error) {
	logger := p.logger.With("operation", "refresh")

	all, err := p.source.FetchMarketPrices(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch market prices: %w", err)
	}

	byType := make(map[int64]entity.MarketPrice, len(all))
	for _, price := range all {
		byType[price.TypeID] = price
	}

	n := 0
	for _, id := range typeIDs {
		if price, ok := byType[id]; ok {
			p.prices.Add(id, price)
			n++
		}
	}

	logger.Debug("Market prices refreshed", "requested", len(typeIDs), "priced", n)
	return n, nil
}

func (p *PriceCache) Get(typeID int64) (entity.MarketPrice, bool) {
	return p.prices.Get(typeID)
}

func (p *PriceCache) Len() int {
	return p.prices.Len()
}

// PostProcessor refreshes prices for the types a resolution pass fetched.
func (p *PriceCache) PostProcessor() resolver.PostProcessor {
	return resolver.PostProcessor{
		Name: "market_prices",
		Run: func(ctx context.Context, fetched *resolver.Fetched) error {
			ids := fetched.TypeIDs()
			if len(ids) == 0 {
				return nil
			}
			_, err := p.Refresh(ctx, ids)
			return err
		},
	}
}
