// README: Flat-file record store for drivers, customers and bookings in an injected data directory.
package flatfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/modules/customer"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/store"
	"taxidispatch/internal/types"
)

const (
	driversFile   = "drivers.txt"
	customersFile = "customers.txt"
	bookingsFile  = "bookings.txt"
)

// Store keeps one file per record kind. Each table is guarded by its own
// mutex, so a single Store value is safe for concurrent use within a process.
type Store struct {
	dir       string
	drivers   *table[*driver.Driver]
	customers *table[*customer.Customer]
	bookings  *table[*booking.Booking]
}

// Open prepares dir and its table files, creating any that are missing.
func Open(dir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &store.StorageError{Op: "mkdir", Path: dir, Err: err}
	}
	log = log.Named("flatfile")

	s := &Store{
		dir: dir,
		drivers: &table[*driver.Driver]{
			kind:   store.KindDriver,
			path:   filepath.Join(dir, driversFile),
			fields: driverFields,
			encode: encodeDriver,
			decode: decodeDriver,
			id:     func(d *driver.Driver) types.ID { return d.ID },
			setID:  func(d *driver.Driver, id types.ID) { d.ID = id },
			log:    log,
		},
		customers: &table[*customer.Customer]{
			kind:   store.KindCustomer,
			path:   filepath.Join(dir, customersFile),
			fields: customerFields,
			encode: encodeCustomer,
			decode: decodeCustomer,
			id:     func(c *customer.Customer) types.ID { return c.ID },
			setID:  func(c *customer.Customer, id types.ID) { c.ID = id },
			log:    log,
		},
		bookings: &table[*booking.Booking]{
			kind:   store.KindBooking,
			path:   filepath.Join(dir, bookingsFile),
			fields: bookingFields,
			encode: encodeBooking,
			decode: decodeBooking,
			id:     func(b *booking.Booking) types.ID { return b.ID },
			setID:  func(b *booking.Booking, id types.ID) { b.ID = id },
			check:  func(b *booking.Booking) error { return b.CheckInvariants() },
			log:    log,
		},
	}
	for _, ensure := range []func() error{s.drivers.ensure, s.customers.ensure, s.bookings.ensure} {
		if err := ensure(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

// Drivers

func (s *Store) CreateDriver(ctx context.Context, d *driver.Driver) error {
	return s.drivers.insert(ctx, d)
}

func (s *Store) ListDrivers(ctx context.Context) ([]*driver.Driver, error) {
	return s.drivers.all(ctx)
}

func (s *Store) GetDriver(ctx context.Context, id types.ID) (*driver.Driver, bool, error) {
	return s.drivers.get(ctx, id)
}

func (s *Store) UpdateDriver(ctx context.Context, d *driver.Driver) error {
	_, err := s.drivers.replace(ctx, d.ID, func(*driver.Driver) (*driver.Driver, error) { return d, nil })
	return err
}

// Customers

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	return s.customers.insert(ctx, c)
}

func (s *Store) ListCustomers(ctx context.Context) ([]*customer.Customer, error) {
	return s.customers.all(ctx)
}

func (s *Store) GetCustomer(ctx context.Context, id types.ID) (*customer.Customer, bool, error) {
	return s.customers.get(ctx, id)
}

func (s *Store) UpdateCustomer(ctx context.Context, c *customer.Customer) error {
	_, err := s.customers.replace(ctx, c.ID, func(*customer.Customer) (*customer.Customer, error) { return c, nil })
	return err
}

// Bookings

func (s *Store) CreateBooking(ctx context.Context, b *booking.Booking) error {
	return s.bookings.insert(ctx, b)
}

func (s *Store) ListBookings(ctx context.Context) ([]*booking.Booking, error) {
	return s.bookings.all(ctx)
}

func (s *Store) GetBooking(ctx context.Context, id types.ID) (*booking.Booking, bool, error) {
	return s.bookings.get(ctx, id)
}

// UpdateBooking replaces the stored booking with the same id.
func (s *Store) UpdateBooking(ctx context.Context, b *booking.Booking) error {
	_, err := s.bookings.replace(ctx, b.ID, func(*booking.Booking) (*booking.Booking, error) { return b, nil })
	return err
}

// MutateBooking applies fn to the current stored booking and persists the
// result while holding the bookings table lock.
func (s *Store) MutateBooking(ctx context.Context, id types.ID, fn func(*booking.Booking) error) (*booking.Booking, error) {
	return s.bookings.replace(ctx, id, func(b *booking.Booking) (*booking.Booking, error) {
		if err := fn(b); err != nil {
			return nil, err
		}
		return b, nil
	})
}

// BookingsForDriver returns the driver's non-cancelled bookings in file order.
func (s *Store) BookingsForDriver(ctx context.Context, driverID types.ID) ([]*booking.Booking, error) {
	all, err := s.bookings.all(ctx)
	if err != nil {
		return nil, err
	}
	var out []*booking.Booking
	for _, b := range all {
		if b.DriverID == driverID && b.Active() {
			out = append(out, b)
		}
	}
	return out, nil
}

// BookingsByDriver groups every non-cancelled assigned booking by driver in one pass.
func (s *Store) BookingsByDriver(ctx context.Context) (map[types.ID][]*booking.Booking, error) {
	all, err := s.bookings.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[types.ID][]*booking.Booking)
	for _, b := range all {
		if b.DriverID != "" && b.Active() {
			out[b.DriverID] = append(out[b.DriverID], b)
		}
	}
	return out, nil
}

func (s *Store) BookingsForCustomer(ctx context.Context, customerID types.ID) ([]*booking.Booking, error) {
	all, err := s.bookings.all(ctx)
	if err != nil {
		return nil, err
	}
	var out []*booking.Booking
	for _, b := range all {
		if b.CustomerID == customerID {
			out = append(out, b)
		}
	}
	return out, nil
}

// NextID reports the identifier the next Create of that kind would receive.
// Create allocates under the table lock, so prefer leaving the id empty.
func (s *Store) NextID(ctx context.Context, kind store.Kind) (types.ID, error) {
	switch kind {
	case store.KindDriver:
		return s.drivers.nextID(ctx)
	case store.KindCustomer:
		return s.customers.nextID(ctx)
	case store.KindBooking:
		return s.bookings.nextID(ctx)
	default:
		return "", fmt.Errorf("unknown record kind %q", kind)
	}
}
