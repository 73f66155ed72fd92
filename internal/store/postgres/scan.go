package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/modules/customer"
	"taxidispatch/internal/modules/driver"
)

func scanDriver(row pgx.Row) (*driver.Driver, error) {
	var d driver.Driver
	err := row.Scan(&d.ID, &d.Username, &d.PasswordHash, &d.Name, &d.Phone, &d.License, &d.Location.Lat, &d.Location.Lng)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanCustomer(row pgx.Row) (*customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(&c.ID, &c.Username, &c.PasswordHash, &c.Name, &c.Address, &c.Phone, &c.Email)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanBooking(row pgx.Row) (*booking.Booking, error) {
	var b booking.Booking
	var status string
	err := row.Scan(
		&b.ID, &b.CustomerID, &b.Pickup.Label, &b.Dropoff.Label, &b.Date, &b.Time,
		&status, &b.DriverID,
		&b.Pickup.Point.Lat, &b.Pickup.Point.Lng, &b.Dropoff.Point.Lat, &b.Dropoff.Point.Lng,
	)
	if err != nil {
		return nil, err
	}
	if b.Status, err = booking.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("booking %s: %w", b.ID, err)
	}
	return &b, nil
}
