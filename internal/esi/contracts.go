package esi

import (
	"context"
	"fmt"

	"refcache/internal/entity"
	"refcache/internal/shared/errors"
)

type contractItemResponse struct {
	RecordID    int64 `json:"record_id"`
	TypeID      int64 `json:"type_id"`
	Quantity    int64 `json:"quantity"`
	IsIncluded  bool  `json:"is_included"`
	IsSingleton bool  `json:"is_singleton"`
}

// FetchContractItems loads the line items of contracts visible to
// characterID. Expired contracts answer 404 and are recorded with no items.
func (c *Client) FetchContractItems(ctx context.Context, characterID int64, contractIDs []int64) ([]entity.ContractItemSet, error) {
	auth, ok := c.tokens.Source(characterID)
	if !ok {
		return nil, errors.Unauthorizedf("no ESI token registered for character %d", characterID)
	}

	out, err := fetchEach(ctx, c, "contract", contractIDs, func(ctx context.Context, id int64) (entity.ContractItemSet, error) {
		var raw []contractItemResponse
		path := fmt.Sprintf("/characters/%d/contracts/%d/items/", characterID, id)
		if err := c.get(ctx, path, auth, &raw); err != nil {
			return entity.ContractItemSet{}, err
		}
		set := entity.ContractItemSet{ContractID: id, ResolvedBy: characterID, Items: make([]entity.ContractItem, 0, len(raw))}
		for _, r := range raw {
			set.Items = append(set.Items, entity.ContractItem{
				RecordID:   r.RecordID,
				TypeID:     r.TypeID,
				Quantity:   r.Quantity,
				IsIncluded: r.IsIncluded,
				Singleton:  r.IsSingleton,
			})
		}
		return set, nil
	}, func(id int64) entity.ContractItemSet {
		return entity.ContractItemSet{ContractID: id, ResolvedBy: characterID, Items: []entity.ContractItem{}}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
