// README: Driver position values used by the nearby-driver index.
package location

import "taxidispatch/internal/types"

type Position struct {
	DriverID types.ID
	Point    types.Point
}

// Nearby is a driver position with its distance from a queried origin.
type Nearby struct {
	DriverID   types.ID
	Point      types.Point
	DistanceKm float64
}
