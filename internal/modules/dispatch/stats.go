package dispatch

import (
	"context"

	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/types"
)

type Statistics struct {
	Customers int
	Drivers   int
	Bookings  int
	ByStatus  map[booking.Status]int
	// Trips counts each driver's non-cancelled bookings, including drivers with none.
	Trips map[types.ID]int
}

func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	customers, err := s.store.ListCustomers(ctx)
	if err != nil {
		return Statistics{}, err
	}
	drivers, err := s.store.ListDrivers(ctx)
	if err != nil {
		return Statistics{}, err
	}
	bookings, err := s.store.ListBookings(ctx)
	if err != nil {
		return Statistics{}, err
	}
	byDriver, err := s.store.BookingsByDriver(ctx)
	if err != nil {
		return Statistics{}, err
	}

	st := Statistics{
		Customers: len(customers),
		Drivers:   len(drivers),
		Bookings:  len(bookings),
		ByStatus: map[booking.Status]int{
			booking.StatusPending:   0,
			booking.StatusAssigned:  0,
			booking.StatusCompleted: 0,
			booking.StatusCancelled: 0,
		},
		Trips: make(map[types.ID]int, len(drivers)),
	}
	for _, b := range bookings {
		st.ByStatus[b.Status]++
	}
	for _, d := range drivers {
		st.Trips[d.ID] = len(byDriver[d.ID])
	}
	return st, nil
}
