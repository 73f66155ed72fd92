// README: Location service answers nearby-driver queries from the geo index or a full scan.
package location

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/types"
)

var ErrBadRadius = errors.New("radius must be positive")

type DriverSource interface {
	ListDrivers(ctx context.Context) ([]*driver.Driver, error)
}

// Index is implemented by GeoIndex.
type Index interface {
	Sync(ctx context.Context, positions []Position) error
	Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]Nearby, error)
}

type Service struct {
	drivers DriverSource
	index   Index
	log     *zap.Logger
}

// NewService builds a Service. index may be nil, in which case every query
// scans the driver table.
func NewService(drivers DriverSource, index Index, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{drivers: drivers, index: index, log: log.Named("location")}
}

// Reindex loads every driver position into the index and returns how many
// drivers were read.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	drivers, err := s.drivers.ListDrivers(ctx)
	if err != nil {
		return 0, err
	}
	positions := make([]Position, len(drivers))
	for i, d := range drivers {
		positions[i] = Position{DriverID: d.ID, Point: d.Location}
	}
	if err := s.index.Sync(ctx, positions); err != nil {
		return 0, err
	}
	s.log.Info("driver geo index rebuilt", zap.Int("drivers", len(positions)))
	return len(positions), nil
}

// Nearby lists drivers within radiusKm of p, closest first. An index failure
// falls back to scanning the driver table.
func (s *Service) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]Nearby, error) {
	if radiusKm <= 0 {
		return nil, ErrBadRadius
	}
	if s.index != nil {
		res, err := s.index.Nearby(ctx, p, radiusKm)
		if err == nil {
			return res, nil
		}
		s.log.Warn("geo index query failed, scanning drivers", zap.Error(err))
	}

	drivers, err := s.drivers.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}
	var out []Nearby
	for _, d := range drivers {
		dist := DistanceKm(p, d.Location)
		if dist <= radiusKm {
			out = append(out, Nearby{DriverID: d.ID, Point: d.Location, DistanceKm: dist})
		}
	}
	SortByDistance(out, func(n Nearby) float64 { return n.DistanceKm })
	return out, nil
}
