package esi

import (
	"context"

	"refcache/internal/entity"
	"refcache/internal/shared/errors"
)

const namesChunkSize = 1000

type nameResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// FetchNames resolves IDs through POST /universe/names/. ESI rejects a whole
// request with 404 when any ID in it is invalid, so failing chunks are split
// until the invalid IDs are isolated. Those come back as unknown names.
func (c *Client) FetchNames(ctx context.Context, ids []int64) ([]entity.Name, error) {
	out := make([]entity.Name, 0, len(ids))
	for start := 0; start < len(ids); start += namesChunkSize {
		end := min(start+namesChunkSize, len(ids))
		names, err := c.fetchNameChunk(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	c.logger.Debug("Fetched names", "requested", len(ids), "resolved", len(out))
	return out, nil
}

func (c *Client) fetchNameChunk(ctx context.Context, ids []int64) ([]entity.Name, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var raw []nameResponse
	err := c.post(ctx, c.baseURL+"/universe/names/", ids, &raw)
	if errors.Is(err, errors.ErrorTypeNotFound) {
		if len(ids) == 1 {
			c.logger.Warn("Recording unknown ID", "kind", "name", "id", ids[0])
			return []entity.Name{{ID: ids[0], Unknown: true}}, nil
		}
		mid := len(ids) / 2
		left, err := c.fetchNameChunk(ctx, ids[:mid])
		if err != nil {
			return nil, err
		}
		right, err := c.fetchNameChunk(ctx, ids[mid:])
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]entity.Name, 0, len(raw))
	for _, r := range raw {
		names = append(names, entity.Name{ID: r.ID, Name: r.Name, Category: r.Category})
	}
	return names, nil
}
