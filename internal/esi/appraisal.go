package esi

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"refcache/internal/entity"
)

type appraisalItem struct {
	ItemID int64 `json:"item_id"`
	TypeID int64 `json:"type_id"`
}

type appraisalRequest struct {
	Items []appraisalItem `json:"items"`
}

type appraisalResponse struct {
	Prices []struct {
		ItemID int64   `json:"item_id"`
		Price  float64 `json:"price"`
	} `json:"prices"`
}

type dynamicItemResponse struct {
	SourceTypeID  int64 `json:"source_type_id"`
	MutatorTypeID int64 `json:"mutator_type_id"`
}

// FetchAuxiliaryPrices prices individual item instances. With an appraisal
// service configured the items are sent there in one request; otherwise a
// mutated item is priced at the adjusted market price of its source type.
func (c *Client) FetchAuxiliaryPrices(ctx context.Context, items map[int64]int64) ([]entity.AuxiliaryPrice, error) {
	if c.appraisalURL != "" {
		return c.appraise(ctx, items)
	}
	return c.priceFromSourceTypes(ctx, items)
}

func (c *Client) appraise(ctx context.Context, items map[int64]int64) ([]entity.AuxiliaryPrice, error) {
	req := appraisalRequest{Items: make([]appraisalItem, 0, len(items))}
	for _, itemID := range slices.Sorted(maps.Keys(items)) {
		req.Items = append(req.Items, appraisalItem{ItemID: itemID, TypeID: items[itemID]})
	}

	var resp appraisalResponse
	if err := c.post(ctx, c.appraisalURL, req, &resp); err != nil {
		return nil, fmt.Errorf("appraise %d items: %w", len(items), err)
	}

	now := time.Now().UTC()
	out := make([]entity.AuxiliaryPrice, 0, len(resp.Prices))
	for _, p := range resp.Prices {
		typeID, ok := items[p.ItemID]
		if !ok {
			continue
		}
		out = append(out, entity.AuxiliaryPrice{ItemID: p.ItemID, TypeID: typeID, Price: p.Price, FetchedAt: now})
	}
	return out, nil
}

func (c *Client) priceFromSourceTypes(ctx context.Context, items map[int64]int64) ([]entity.AuxiliaryPrice, error) {
	prices, err := c.FetchMarketPrices(ctx)
	if err != nil {
		return nil, err
	}
	adjusted := make(map[int64]float64, len(prices))
	for _, p := range prices {
		adjusted[p.TypeID] = p.AdjustedPrice
	}

	now := time.Now().UTC()
	return fetchEach(ctx, c, "dynamic item", slices.Sorted(maps.Keys(items)), func(ctx context.Context, itemID int64) (entity.AuxiliaryPrice, error) {
		typeID := items[itemID]
		var raw dynamicItemResponse
		if err := c.get(ctx, fmt.Sprintf("/dogma/dynamic/items/%d/%d/", typeID, itemID), nil, &raw); err != nil {
			return entity.AuxiliaryPrice{}, err
		}
		return entity.AuxiliaryPrice{ItemID: itemID, TypeID: typeID, Price: adjusted[raw.SourceTypeID], FetchedAt: now}, nil
	}, func(itemID int64) entity.AuxiliaryPrice {
		typeID := items[itemID]
		return entity.AuxiliaryPrice{ItemID: itemID, TypeID: typeID, Price: adjusted[typeID], FetchedAt: now}
	})
}
