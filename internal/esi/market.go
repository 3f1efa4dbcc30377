package esi

import (
	"context"

	"refcache/internal/entity"
)

// FetchMarketPrices returns the average and adjusted price of every traded
// type.
func (c *Client) FetchMarketPrices(ctx context.Context) ([]entity.MarketPrice, error) {
	var raw []entity.MarketPrice
	if err := c.get(ctx, "/markets/prices/", nil, &raw); err != nil {
		return nil, err
	}
	c.logger.Debug("Fetched market prices", "types", len(raw))
	return raw, nil
}
