// README: Pipe-delimited encoding of driver, customer and booking records.
package flatfile

import (
	"fmt"
	"math"
	"strconv"

	"taxidispatch/internal/modules/account"
	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/modules/customer"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/types"
)

const (
	driverFields   = 8
	customerFields = 7
	bookingFields  = 12
)

// credentialFields is the id|username|password_hash prefix shared by drivers and customers.
func credentialFields(a account.Account) []string {
	return []string{string(a.AccountID()), a.AccountUsername(), a.AccountPasswordHash()}
}

func decodeCredentials(f []string) account.Credentials {
	return account.Credentials{ID: types.ID(f[0]), Username: f[1], PasswordHash: f[2]}
}

// id|username|password_hash|name|phone|license|latitude|longitude
func encodeDriver(d *driver.Driver) []string {
	return append(credentialFields(d),
		d.Name, d.Phone, d.License,
		formatCoord(d.Location.Lat), formatCoord(d.Location.Lng),
	)
}

func decodeDriver(f []string) (*driver.Driver, error) {
	lat, err := parseCoord("latitude", f[6])
	if err != nil {
		return nil, err
	}
	lng, err := parseCoord("longitude", f[7])
	if err != nil {
		return nil, err
	}
	return &driver.Driver{
		Credentials: decodeCredentials(f),
		Name:        f[3],
		Phone:       f[4],
		License:     f[5],
		Location:    types.Point{Lat: lat, Lng: lng},
	}, nil
}

// id|username|password_hash|name|address|phone|email
func encodeCustomer(c *customer.Customer) []string {
	return append(credentialFields(c), c.Name, c.Address, c.Phone, c.Email)
}

func decodeCustomer(f []string) (*customer.Customer, error) {
	return &customer.Customer{
		Credentials: decodeCredentials(f),
		Name:        f[3],
		Address:     f[4],
		Phone:       f[5],
		Email:       f[6],
	}, nil
}

// id|customer_id|pickup_label|dropoff_label|date|time|status|driver_id|pickup_lat|pickup_lon|dropoff_lat|dropoff_lon
func encodeBooking(b *booking.Booking) []string {
	return []string{
		string(b.ID), string(b.CustomerID), b.Pickup.Label, b.Dropoff.Label,
		b.Date, b.Time, string(b.Status), string(b.DriverID),
		formatCoord(b.Pickup.Point.Lat), formatCoord(b.Pickup.Point.Lng),
		formatCoord(b.Dropoff.Point.Lat), formatCoord(b.Dropoff.Point.Lng),
	}
}

// decodeBooking keeps date and time verbatim: availability checks treat a
// booking with an unparseable schedule as non-blocking rather than dropping it.
func decodeBooking(f []string) (*booking.Booking, error) {
	status, err := booking.ParseStatus(f[6])
	if err != nil {
		return nil, err
	}
	coords := make([]float64, 4)
	names := []string{"pickup_lat", "pickup_lon", "dropoff_lat", "dropoff_lon"}
	for i := range coords {
		if coords[i], err = parseCoord(names[i], f[8+i]); err != nil {
			return nil, err
		}
	}
	return &booking.Booking{
		ID:         types.ID(f[0]),
		CustomerID: types.ID(f[1]),
		Pickup:     booking.Place{Label: f[2], Point: types.Point{Lat: coords[0], Lng: coords[1]}},
		Dropoff:    booking.Place{Label: f[3], Point: types.Point{Lat: coords[2], Lng: coords[3]}},
		Date:       f[4],
		Time:       f[5],
		Status:     status,
		DriverID:   types.ID(f[7]),
	}, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseCoord(name, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return f, nil
}
