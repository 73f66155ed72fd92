// README: Assignment engine picks the nearest available driver and ranks alternatives.
package dispatch

import (
	"fmt"
	"math"
	"slices"
	"time"

	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/modules/location"
	"taxidispatch/internal/types"
)

// Request is what the engine needs to know about a trip.
type Request struct {
	Pickup types.Point
	Date   string
	Time   string
}

func RequestFor(b *booking.Booking) Request {
	return Request{Pickup: b.Pickup.Point, Date: b.Date, Time: b.Time}
}

// InvalidScheduleError is returned when a request's date or time does not parse.
type InvalidScheduleError struct {
	Date string
	Time string
	Err  error
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule %q %q: %v", e.Date, e.Time, e.Err)
}

func (e *InvalidScheduleError) Unwrap() error { return e.Err }

func (r Request) scheduledAt() (time.Time, error) {
	t, err := booking.ParseSchedule(r.Date, r.Time)
	if err != nil {
		return time.Time{}, &InvalidScheduleError{Date: r.Date, Time: r.Time, Err: err}
	}
	return t, nil
}

type Recommendation struct {
	Driver     *driver.Driver
	DistanceKm float64
	Available  bool
	// ETA is the estimated drive time to the pickup, when an estimator is configured.
	ETA *time.Duration
}

// FindBestDriver returns the available driver closest to the pickup point.
// Equal distances keep the order drivers were given in. ok is false when no
// driver is available.
func FindBestDriver(req Request, drivers []*driver.Driver, bookingsByDriver map[types.ID][]*booking.Booking) (id types.ID, ok bool, err error) {
	at, err := req.scheduledAt()
	if err != nil {
		return "", false, err
	}

	var best float64
	for _, d := range drivers {
		if !IsAvailable(at, bookingsByDriver[d.ID]) {
			continue
		}
		dist := location.DistanceKm(d.Location, req.Pickup)
		if math.IsNaN(dist) {
			continue
		}
		if !ok || dist < best {
			id, best, ok = d.ID, dist, true
		}
	}
	return id, ok, nil
}

// Recommend ranks every driver, available ones first and then by distance to
// the pickup, and returns at most topN of them. Inputs are not modified.
func Recommend(req Request, drivers []*driver.Driver, bookingsByDriver map[types.ID][]*booking.Booking, topN int) ([]Recommendation, error) {
	at, err := req.scheduledAt()
	if err != nil {
		return nil, err
	}
	if topN <= 0 {
		return []Recommendation{}, nil
	}

	ranked := make([]Recommendation, 0, len(drivers))
	for _, d := range drivers {
		ranked = append(ranked, Recommendation{
			Driver:     d,
			DistanceKm: location.DistanceKm(d.Location, req.Pickup),
			Available:  IsAvailable(at, bookingsByDriver[d.ID]),
		})
	}
	slices.SortStableFunc(ranked, func(a, b Recommendation) int {
		if a.Available != b.Available {
			if a.Available {
				return -1
			}
			return 1
		}
		switch {
		case a.DistanceKm < b.DistanceKm:
			return -1
		case a.DistanceKm > b.DistanceKm:
			return 1
		default:
			return 0
		}
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked, nil
}
