package owner

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"refcache/internal/resolver"
	"refcache/internal/shared/errors"
)

const (
	SourceAssets                = "assets"
	SourceContracts             = "contracts"
	SourceMarketOrders          = "market_orders"
	SourceIndustryJobs          = "industry_jobs"
	SourceCorporationStructures = "corporation_structures"
	SourceStarbases             = "starbases"
	SourceClones                = "clones"
	SourceLoyaltyPoints         = "loyalty_points"
)

type collection interface {
	Name() string
	Len() int
	Scan(ctx context.Context, acc *resolver.Accumulator) error
	Ingest(ownerID int64, r io.Reader) (int, error)
}

// Sources is the set of owner-scoped collections the service tracks.
type Sources struct {
	Assets                *Source[Asset]
	Contracts             *Source[Contract]
	MarketOrders          *Source[MarketOrder]
	IndustryJobs          *Source[IndustryJob]
	CorporationStructures *Source[CorporationStructure]
	Starbases             *Source[Starbase]
	Clones                *Source[Clone]
	LoyaltyPoints         *Source[LoyaltyPoints]

	byName map[string]collection
}

func NewSources(trigger Trigger, logger *slog.Logger) *Sources {
	s := &Sources{
		Assets:                NewSource(SourceAssets, scanAssets, trigger, logger),
		Contracts:             NewSource(SourceContracts, EachItem(scanContract), trigger, logger),
		MarketOrders:          NewSource(SourceMarketOrders, EachItem(scanMarketOrder), trigger, logger),
		IndustryJobs:          NewSource(SourceIndustryJobs, EachItem(scanIndustryJob), trigger, logger),
		CorporationStructures: NewSource(SourceCorporationStructures, EachItem(scanCorporationStructure), trigger, logger),
		Starbases:             NewSource(SourceStarbases, EachItem(scanStarbase), trigger, logger),
		Clones:                NewSource(SourceClones, EachItem(scanClone), trigger, logger),
		LoyaltyPoints:         NewSource(SourceLoyaltyPoints, EachItem(scanLoyaltyPoints), trigger, logger),
	}

	s.byName = make(map[string]collection)
	for _, c := range []collection{
		s.Assets, s.Contracts, s.MarketOrders, s.IndustryJobs,
		s.CorporationStructures, s.Starbases, s.Clones, s.LoyaltyPoints,
	} {
		s.byName[c.Name()] = c
	}
	return s
}

// Register adds every collection's scanner to registry.
func (s *Sources) Register(registry *resolver.Registry) error {
	for name, c := range s.byName {
		if err := registry.Register(name, c.Scan); err != nil {
			return fmt.Errorf("register %s scanner: %w", name, err)
		}
	}
	return nil
}

// Ingest replaces ownerID's collection in the named source with the JSON
// array read from r.
func (s *Sources) Ingest(source string, ownerID int64, r io.Reader) (int, error) {
	c, ok := s.byName[source]
	if !ok {
		return 0, errors.NotFoundf("unknown owner source %q", source)
	}
	return c.Ingest(ownerID, r)
}

// Counts returns the number of items held per source.
func (s *Sources) Counts() map[string]int {
	counts := make(map[string]int, len(s.byName))
	for name, c := range s.byName {
		counts[name] = c.Len()
	}
	return counts
}
