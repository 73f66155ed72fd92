// README: Driver geo index backed by Redis GEO sets.
package location

import (
	"context"
	"math"

	"github.com/redis/go-redis/v9"

	"taxidispatch/internal/types"
)

const (
	driverGeoKey = "dispatch:drivers:geo"
	// Redis GEO rejects latitudes beyond the Web Mercator limit.
	maxGeoLat = 85.05112878
)

type GeoIndex struct {
	redis *redis.Client
	key   string
}

func NewGeoIndex(redis *redis.Client) *GeoIndex {
	return &GeoIndex{redis: redis, key: driverGeoKey}
}

// Sync replaces the whole index with positions in one pipeline. Positions
// Redis cannot store are left out.
func (g *GeoIndex) Sync(ctx context.Context, positions []Position) error {
	locs := make([]*redis.GeoLocation, 0, len(positions))
	for _, p := range positions {
		if !indexable(p.Point) {
			continue
		}
		locs = append(locs, geoLocation(p))
	}
	pipe := g.redis.TxPipeline()
	pipe.Del(ctx, g.key)
	if len(locs) > 0 {
		pipe.GeoAdd(ctx, g.key, locs...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Nearby returns drivers within radiusKm of p, closest first.
func (g *GeoIndex) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]Nearby, error) {
	results, err := g.redis.GeoSearchLocation(ctx, g.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Nearby, len(results))
	for i, r := range results {
		out[i] = Nearby{
			DriverID:   types.ID(r.Name),
			Point:      types.Point{Lat: r.Latitude, Lng: r.Longitude},
			DistanceKm: r.Dist,
		}
	}
	return out, nil
}

func geoLocation(p Position) *redis.GeoLocation {
	return &redis.GeoLocation{
		Name:      string(p.DriverID),
		Longitude: p.Point.Lng,
		Latitude:  p.Point.Lat,
	}
}

func indexable(p types.Point) bool {
	return math.Abs(p.Lat) <= maxGeoLat && math.Abs(p.Lng) <= 180
}
