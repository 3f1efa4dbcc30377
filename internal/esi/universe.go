package esi

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"refcache/internal/entity"
	"refcache/internal/shared/errors"
)

// Dogma attributes carried onto entity.Type.
const (
	attributeImplantSlot = 331
	attributeMetaLevel   = 633
)

type dogmaAttribute struct {
	AttributeID int     `json:"attribute_id"`
	Value       float64 `json:"value"`
}

type typeResponse struct {
	TypeID          int64            `json:"type_id"`
	Name            string           `json:"name"`
	GroupID         int64            `json:"group_id"`
	Volume          float64          `json:"volume"`
	PackagedVolume  float64          `json:"packaged_volume"`
	DogmaAttributes []dogmaAttribute `json:"dogma_attributes"`
}

type group struct {
	GroupID    int64  `json:"group_id"`
	Name       string `json:"name"`
	CategoryID int64  `json:"category_id"`
}

type category struct {
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
}

type region struct {
	RegionID int64  `json:"region_id"`
	Name     string `json:"name"`
}

type constellation struct {
	ConstellationID int64  `json:"constellation_id"`
	Name            string `json:"name"`
	RegionID        int64  `json:"region_id"`
}

type system struct {
	SystemID        int64   `json:"system_id"`
	Name            string  `json:"name"`
	ConstellationID int64   `json:"constellation_id"`
	SecurityStatus  float64 `json:"security_status"`
}

type station struct {
	StationID int64  `json:"station_id"`
	Name      string `json:"name"`
	SystemID  int64  `json:"system_id"`
}

// fetchEach fetches ids with bounded concurrency. IDs ESI reports as
// unknown are replaced by unknown(id) so they are cached and not requested
// again; any other error fails the batch.
func fetchEach[T any](ctx context.Context, c *Client, what string, ids []int64,
	fetch func(ctx context.Context, id int64) (T, error), unknown func(id int64) T) ([]T, error) {
	var (
		mu  sync.Mutex
		out = make([]T, 0, len(ids))
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			v, err := fetch(ctx, id)
			if errors.Is(err, errors.ErrorTypeNotFound) {
				c.logger.Warn("Recording unknown ID", "kind", what, "id", id, "error", err)
				v, err = unknown(id), nil
			}
			if err != nil {
				return fmt.Errorf("fetch %s %d: %w", what, id, err)
			}
			mu.Lock()
			out = append(out, v)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchTypes(ctx context.Context, ids []int64) ([]entity.Type, error) {
	out, err := fetchEach(ctx, c, "type", ids, c.fetchType, func(id int64) entity.Type {
		return entity.Type{ID: id, Unknown: true}
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Fetched types", "requested", len(ids), "resolved", len(out))
	return out, nil
}

func (c *Client) fetchType(ctx context.Context, id int64) (entity.Type, error) {
	var raw typeResponse
	if err := c.get(ctx, fmt.Sprintf("/universe/types/%d/", id), nil, &raw); err != nil {
		return entity.Type{}, err
	}

	t := entity.Type{
		ID:             raw.TypeID,
		Name:           raw.Name,
		GroupID:        raw.GroupID,
		Volume:         raw.Volume,
		PackagedVolume: raw.PackagedVolume,
	}
	for _, attr := range raw.DogmaAttributes {
		v := int(attr.Value)
		switch attr.AttributeID {
		case attributeImplantSlot:
			t.ImplantSlot = &v
		case attributeMetaLevel:
			t.MetaLevel = &v
		}
	}

	// a missing group or category is an ESI fault, not an unknown type
	g, err := c.group(ctx, raw.GroupID)
	if err != nil {
		return entity.Type{}, errors.WrapExternal(fmt.Sprintf("group of type %d", id), err)
	}
	t.GroupName = g.Name
	t.CategoryID = g.CategoryID

	cat, err := c.category(ctx, g.CategoryID)
	if err != nil {
		return entity.Type{}, errors.WrapExternal(fmt.Sprintf("category of type %d", id), err)
	}
	t.CategoryName = cat.Name
	return t, nil
}

func (c *Client) group(ctx context.Context, id int64) (group, error) {
	if g, ok := c.groups.Get(id); ok {
		return g, nil
	}
	var g group
	if err := c.get(ctx, fmt.Sprintf("/universe/groups/%d/", id), nil, &g); err != nil {
		return group{}, err
	}
	c.groups.Add(id, g)
	return g, nil
}

func (c *Client) category(ctx context.Context, id int64) (category, error) {
	if cat, ok := c.categories.Get(id); ok {
		return cat, nil
	}
	var cat category
	if err := c.get(ctx, fmt.Sprintf("/universe/categories/%d/", id), nil, &cat); err != nil {
		return category{}, err
	}
	c.categories.Add(id, cat)
	return cat, nil
}

func (c *Client) region(ctx context.Context, id int64) (region, error) {
	if r, ok := c.regions.Get(id); ok {
		return r, nil
	}
	var r region
	if err := c.get(ctx, fmt.Sprintf("/universe/regions/%d/", id), nil, &r); err != nil {
		return region{}, err
	}
	c.regions.Add(id, r)
	return r, nil
}

func (c *Client) solarSystem(ctx context.Context, id int64) (system, error) {
	if s, ok := c.systems.Get(id); ok {
		return s, nil
	}
	var s system
	if err := c.get(ctx, fmt.Sprintf("/universe/systems/%d/", id), nil, &s); err != nil {
		return system{}, err
	}
	c.systems.Add(id, s)
	return s, nil
}

func (c *Client) constellation(ctx context.Context, id int64) (constellation, error) {
	if con, ok := c.constellations.Get(id); ok {
		return con, nil
	}
	var con constellation
	if err := c.get(ctx, fmt.Sprintf("/universe/constellations/%d/", id), nil, &con); err != nil {
		return constellation{}, err
	}
	c.constellations.Add(id, con)
	return con, nil
}

// FetchLocations resolves NPC locations by ID range. Every location below a
// solar system carries its system, constellation and region. Celestials
// have no common detail endpoint: they are named through the bulk names
// lookup and placed through the endpoint their name suggests.
func (c *Client) FetchLocations(ctx context.Context, ids []int64) ([]entity.Location, error) {
	var direct, celestials []int64
	for _, id := range ids {
		switch entity.LocationKindOf(id) {
		case entity.LocationCelestial:
			celestials = append(celestials, id)
		case entity.LocationUnknown:
			c.logger.Warn("Skipping unresolvable location", "id", id)
		default:
			direct = append(direct, id)
		}
	}

	out, err := fetchEach(ctx, c, "location", direct, c.fetchLocation, unknownLocation)
	if err != nil {
		return nil, err
	}

	if len(celestials) > 0 {
		names, err := c.FetchNames(ctx, celestials)
		if err != nil {
			return nil, err
		}
		byID := make(map[int64]string, len(names))
		for _, n := range names {
			if !n.Unknown {
				byID[n.ID] = n.Name
			}
		}
		placed, err := fetchEach(ctx, c, "celestial", celestials, func(ctx context.Context, id int64) (entity.Location, error) {
			name, ok := byID[id]
			if !ok {
				return entity.Location{}, errors.NotFoundf("celestial %d has no name", id)
			}
			return c.fetchCelestial(ctx, id, name)
		}, unknownLocation)
		if err != nil {
			return nil, err
		}
		out = append(out, placed...)
	}

	c.logger.Debug("Fetched locations", "requested", len(ids), "resolved", len(out))
	return out, nil
}

func unknownLocation(id int64) entity.Location {
	return entity.Location{ID: id, Kind: entity.LocationKindOf(id), Unknown: true}
}

// placeInSystem fills loc's solar system, constellation and region.
func (c *Client) placeInSystem(ctx context.Context, loc *entity.Location, systemID int64) error {
	s, err := c.solarSystem(ctx, systemID)
	if err != nil {
		return err
	}
	loc.SolarSystemID = systemID
	loc.SolarSystemName = s.Name
	loc.ConstellationID = s.ConstellationID
	loc.SecurityStatus = s.SecurityStatus

	con, err := c.constellation(ctx, s.ConstellationID)
	if err != nil {
		return err
	}
	loc.RegionID = con.RegionID

	r, err := c.region(ctx, con.RegionID)
	if err != nil {
		return err
	}
	loc.RegionName = r.Name
	return nil
}

func (c *Client) fetchLocation(ctx context.Context, id int64) (entity.Location, error) {
	switch kind := entity.LocationKindOf(id); kind {
	case entity.LocationRegion:
		r, err := c.region(ctx, id)
		if err != nil {
			return entity.Location{}, err
		}
		return entity.Location{ID: id, Name: r.Name, Kind: kind, RegionID: id, RegionName: r.Name}, nil

	case entity.LocationConstellation:
		con, err := c.constellation(ctx, id)
		if err != nil {
			return entity.Location{}, err
		}
		loc := entity.Location{ID: id, Name: con.Name, Kind: kind, ConstellationID: id, RegionID: con.RegionID}
		r, err := c.region(ctx, con.RegionID)
		if err != nil {
			return entity.Location{}, err
		}
		loc.RegionName = r.Name
		return loc, nil

	case entity.LocationSolarSystem:
		loc := entity.Location{ID: id, Kind: kind}
		if err := c.placeInSystem(ctx, &loc, id); err != nil {
			return entity.Location{}, err
		}
		loc.Name = loc.SolarSystemName
		return loc, nil

	case entity.LocationStation:
		var st station
		if err := c.get(ctx, fmt.Sprintf("/universe/stations/%d/", id), nil, &st); err != nil {
			return entity.Location{}, err
		}
		loc := entity.Location{ID: id, Name: st.Name, Kind: kind}
		if err := c.placeInSystem(ctx, &loc, st.SystemID); err != nil {
			return entity.Location{}, err
		}
		return loc, nil

	default:
		return entity.Location{}, errors.NotFoundf("location %d has no lookup endpoint", id)
	}
}

type celestialResponse struct {
	SystemID int64 `json:"system_id"`
}

// celestialEndpoints lists the detail endpoints a celestial may live under,
// most likely first given its name.
func celestialEndpoints(name string) []string {
	switch {
	case strings.Contains(name, "Moon"):
		return []string{"moons", "planets"}
	case strings.Contains(name, "Asteroid Belt"):
		return []string{"asteroid_belts"}
	case strings.HasPrefix(name, "Stargate"):
		return []string{"stargates"}
	default:
		return []string{"planets", "moons"}
	}
}

// fetchCelestial places a named celestial in its solar system. A celestial
// no endpoint knows is kept with its name only.
func (c *Client) fetchCelestial(ctx context.Context, id int64, name string) (entity.Location, error) {
	loc := entity.Location{ID: id, Name: name, Kind: entity.LocationCelestial}
	for _, endpoint := range celestialEndpoints(name) {
		var raw celestialResponse
		err := c.get(ctx, fmt.Sprintf("/universe/%s/%d/", endpoint, id), nil, &raw)
		if errors.Is(err, errors.ErrorTypeNotFound) {
			continue
		}
		if err != nil {
			return entity.Location{}, err
		}
		if raw.SystemID > 0 {
			if err := c.placeInSystem(ctx, &loc, raw.SystemID); err != nil {
				return entity.Location{}, err
			}
		}
		return loc, nil
	}
	c.logger.Debug("Celestial has no known parent", "id", id, "name", name)
	return loc, nil
}
