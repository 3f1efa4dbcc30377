package esi

import (
	"context"
	"fmt"
	"time"

	"refcache/internal/entity"
	"refcache/internal/shared/errors"
)

type structureResponse struct {
	Name          string `json:"name"`
	OwnerID       int64  `json:"owner_id"`
	SolarSystemID int64  `json:"solar_system_id"`
	TypeID        int64  `json:"type_id"`
}

// FetchStructures looks structures up with characterID's credentials. A
// structure the character has no docking access to, or that no longer
// exists, yields an inaccessible record so it is not requested again.
func (c *Client) FetchStructures(ctx context.Context, characterID int64, ids []int64) ([]entity.Structure, error) {
	auth, ok := c.tokens.Source(characterID)
	if !ok {
		return nil, errors.Unauthorizedf("no ESI token registered for character %d", characterID)
	}

	now := time.Now().UTC()
	out, err := fetchEach(ctx, c, "structure", ids, func(ctx context.Context, id int64) (entity.Structure, error) {
		s := entity.Structure{ID: id, ResolvedBy: characterID, FetchedAt: now}

		var raw structureResponse
		err := c.get(ctx, fmt.Sprintf("/universe/structures/%d/", id), auth, &raw)
		switch {
		case errors.Is(err, errors.ErrorTypeForbidden):
			c.logger.Info("Structure is not accessible to character",
				"structure_id", id,
				"character_id", characterID)
			s.Inaccessible = true
		case err != nil:
			return entity.Structure{}, err
		default:
			s.Name = raw.Name
			s.OwnerID = raw.OwnerID
			s.SolarSystemID = raw.SolarSystemID
			s.TypeID = raw.TypeID
		}
		return s, nil
	}, func(id int64) entity.Structure {
		// destroyed or never existed
		return entity.Structure{ID: id, ResolvedBy: characterID, Inaccessible: true, FetchedAt: now}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
