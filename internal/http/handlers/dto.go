package handlers

import (
	"time"

	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/modules/customer"
	"taxidispatch/internal/modules/dispatch"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/modules/location"
	"taxidispatch/internal/types"
)

type pointDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p pointDTO) point() types.Point { return types.Point{Lat: p.Lat, Lng: p.Lng} }

func toPoint(p types.Point) pointDTO { return pointDTO{Lat: p.Lat, Lng: p.Lng} }

type placeDTO struct {
	Label string   `json:"label"`
	Point pointDTO `json:"location"`
}

func (p placeDTO) place() booking.Place {
	return booking.Place{Label: p.Label, Point: p.Point.point()}
}

type bookingResponse struct {
	ID         types.ID `json:"id"`
	CustomerID types.ID `json:"customer_id"`
	Pickup     placeDTO `json:"pickup"`
	Dropoff    placeDTO `json:"dropoff"`
	Date       string   `json:"date"`
	Time       string   `json:"time"`
	Status     string   `json:"status"`
	DriverID   types.ID `json:"driver_id,omitempty"`
}

func toBooking(b *booking.Booking) bookingResponse {
	return bookingResponse{
		ID:         b.ID,
		CustomerID: b.CustomerID,
		Pickup:     placeDTO{Label: b.Pickup.Label, Point: toPoint(b.Pickup.Point)},
		Dropoff:    placeDTO{Label: b.Dropoff.Label, Point: toPoint(b.Dropoff.Point)},
		Date:       b.Date,
		Time:       b.Time,
		Status:     string(b.Status),
		DriverID:   b.DriverID,
	}
}

func toBookings(bs []*booking.Booking) []bookingResponse {
	out := make([]bookingResponse, len(bs))
	for i, b := range bs {
		out[i] = toBooking(b)
	}
	return out
}

// driverResponse leaves out credentials.
type driverResponse struct {
	ID       types.ID `json:"id"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone"`
	License  string   `json:"license"`
	Location pointDTO `json:"location"`
}

func toDriver(d *driver.Driver) driverResponse {
	return driverResponse{ID: d.ID, Name: d.Name, Phone: d.Phone, License: d.License, Location: toPoint(d.Location)}
}

type recommendationResponse struct {
	Driver     driverResponse `json:"driver"`
	DistanceKm float64        `json:"distance_km"`
	Available  bool           `json:"available"`
	ETASeconds *int64         `json:"eta_seconds,omitempty"`
}

func toRecommendation(r dispatch.Recommendation) recommendationResponse {
	out := recommendationResponse{Driver: toDriver(r.Driver), DistanceKm: r.DistanceKm, Available: r.Available}
	if r.ETA != nil {
		secs := int64(*r.ETA / time.Second)
		out.ETASeconds = &secs
	}
	return out
}

type nearbyResponse struct {
	DriverID   types.ID `json:"driver_id"`
	Location   pointDTO `json:"location"`
	DistanceKm float64  `json:"distance_km"`
}

func toNearby(n location.Nearby) nearbyResponse {
	return nearbyResponse{DriverID: n.DriverID, Location: toPoint(n.Point), DistanceKm: n.DistanceKm}
}

// customerResponse leaves out credentials.
type customerResponse struct {
	ID      types.ID `json:"id"`
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Phone   string   `json:"phone"`
	Email   string   `json:"email"`
}

func toCustomer(c *customer.Customer) customerResponse {
	return customerResponse{ID: c.ID, Name: c.Name, Address: c.Address, Phone: c.Phone, Email: c.Email}
}

type statsResponse struct {
	Customers int              `json:"customers"`
	Drivers   int              `json:"drivers"`
	Bookings  int              `json:"bookings"`
	ByStatus  map[string]int   `json:"by_status"`
	Trips     map[types.ID]int `json:"trips"`
}

func toStats(st dispatch.Statistics) statsResponse {
	out := statsResponse{
		Customers: st.Customers,
		Drivers:   st.Drivers,
		Bookings:  st.Bookings,
		ByStatus:  make(map[string]int, len(st.ByStatus)),
		Trips:     st.Trips,
	}
	for status, n := range st.ByStatus {
		out.ByStatus[string(status)] = n
	}
	return out
}
