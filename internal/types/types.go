// README: Shared identifier and coordinate value objects used across modules.
package types

import "strconv"

type ID string

// Point is a WGS84 coordinate in signed decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// LatLngString renders the point as "lat,lng", the form map APIs accept.
func (p Point) LatLngString() string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}

// Valid reports whether the point lies within latitude/longitude bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
