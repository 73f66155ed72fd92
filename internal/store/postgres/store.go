// README: Record store backed by PostgreSQL, same contract as the flat-file store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/modules/customer"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/store"
	"taxidispatch/internal/types"
)

const uniqueViolation = "23505"

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewStore(db *pgxpool.Pool, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log.Named("postgres")}
}

// Drivers

const driverColumns = `id, username, password_hash, name, phone, license, lat, lng`

func (s *Store) CreateDriver(ctx context.Context, d *driver.Driver) error {
	if err := store.ValidateFields(driverFields(d)...); err != nil {
		return err
	}
	return s.insert(ctx, store.KindDriver, "drivers", string(d.ID), func(q querier, id types.ID) error {
		_, err := q.Exec(ctx, `
			INSERT INTO drivers (`+driverColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			string(id), d.Username, d.PasswordHash, d.Name, d.Phone, d.License, d.Location.Lat, d.Location.Lng,
		)
		if err == nil {
			d.ID = id
		}
		return err
	})
}

func (s *Store) ListDrivers(ctx context.Context) ([]*driver.Driver, error) {
	rows, err := s.db.Query(ctx, `SELECT `+driverColumns+` FROM drivers ORDER BY seq`)
	if err != nil {
		return nil, storageErr("list drivers", err)
	}
	return collect(rows, scanDriver)
}

func (s *Store) GetDriver(ctx context.Context, id types.ID) (*driver.Driver, bool, error) {
	d, err := scanDriver(s.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, string(id)))
	return found(d, err, "get driver")
}

func (s *Store) UpdateDriver(ctx context.Context, d *driver.Driver) error {
	if err := store.ValidateFields(driverFields(d)...); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers
		SET username = $2, password_hash = $3, name = $4, phone = $5, license = $6, lat = $7, lng = $8
		WHERE id = $1`,
		string(d.ID), d.Username, d.PasswordHash, d.Name, d.Phone, d.License, d.Location.Lat, d.Location.Lng,
	)
	return affected(tag, err, store.KindDriver, d.ID)
}

// Customers

const customerColumns = `id, username, password_hash, name, address, phone, email`

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	if err := store.ValidateFields(customerFields(c)...); err != nil {
		return err
	}
	return s.insert(ctx, store.KindCustomer, "customers", string(c.ID), func(q querier, id types.ID) error {
		_, err := q.Exec(ctx, `
			INSERT INTO customers (`+customerColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			string(id), c.Username, c.PasswordHash, c.Name, c.Address, c.Phone, c.Email,
		)
		if err == nil {
			c.ID = id
		}
		return err
	})
}

func (s *Store) ListCustomers(ctx context.Context) ([]*customer.Customer, error) {
	rows, err := s.db.Query(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY seq`)
	if err != nil {
		return nil, storageErr("list customers", err)
	}
	return collect(rows, scanCustomer)
}

func (s *Store) GetCustomer(ctx context.Context, id types.ID) (*customer.Customer, bool, error) {
	c, err := scanCustomer(s.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, string(id)))
	return found(c, err, "get customer")
}

func (s *Store) UpdateCustomer(ctx context.Context, c *customer.Customer) error {
	if err := store.ValidateFields(customerFields(c)...); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE customers
		SET username = $2, password_hash = $3, name = $4, address = $5, phone = $6, email = $7
		WHERE id = $1`,
		string(c.ID), c.Username, c.PasswordHash, c.Name, c.Address, c.Phone, c.Email,
	)
	return affected(tag, err, store.KindCustomer, c.ID)
}

// Bookings

const bookingColumns = `id, customer_id, pickup_label, dropoff_label, scheduled_date, scheduled_time,
	status, driver_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng`

func (s *Store) CreateBooking(ctx context.Context, b *booking.Booking) error {
	if err := checkBooking(b); err != nil {
		return err
	}
	return s.insert(ctx, store.KindBooking, "bookings", string(b.ID), func(q querier, id types.ID) error {
		_, err := q.Exec(ctx, `
			INSERT INTO bookings (`+bookingColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			string(id), string(b.CustomerID), b.Pickup.Label, b.Dropoff.Label, b.Date, b.Time,
			string(b.Status), string(b.DriverID),
			b.Pickup.Point.Lat, b.Pickup.Point.Lng, b.Dropoff.Point.Lat, b.Dropoff.Point.Lng,
		)
		if err == nil {
			b.ID = id
		}
		return err
	})
}

func (s *Store) ListBookings(ctx context.Context) ([]*booking.Booking, error) {
	return s.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY seq`)
}

func (s *Store) GetBooking(ctx context.Context, id types.ID) (*booking.Booking, bool, error) {
	b, err := scanBooking(s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, string(id)))
	return found(b, err, "get booking")
}

func (s *Store) UpdateBooking(ctx context.Context, b *booking.Booking) error {
	if err := checkBooking(b); err != nil {
		return err
	}
	tag, err := updateBooking(ctx, s.db, b)
	return affected(tag, err, store.KindBooking, b.ID)
}

// MutateBooking locks the booking row, applies fn and writes the result in
// one transaction.
func (s *Store) MutateBooking(ctx context.Context, id types.ID, fn func(*booking.Booking) error) (*booking.Booking, error) {
	var out *booking.Booking
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, string(id)))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s %s", store.ErrNotFound, store.KindBooking, id)
		}
		if err != nil {
			return storageErr("lock booking", err)
		}
		if err := fn(b); err != nil {
			return err
		}
		if b.ID != id {
			return fmt.Errorf("%w: %s id is immutable", store.ErrInvalidField, store.KindBooking)
		}
		if err := checkBooking(b); err != nil {
			return err
		}
		if _, err := updateBooking(ctx, tx, b); err != nil {
			return storageErr("update booking", err)
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BookingsForDriver returns the driver's non-cancelled bookings in insertion order.
func (s *Store) BookingsForDriver(ctx context.Context, driverID types.ID) ([]*booking.Booking, error) {
	return s.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE driver_id = $1 AND status <> $2
		ORDER BY seq`, string(driverID), string(booking.StatusCancelled))
}

func (s *Store) BookingsByDriver(ctx context.Context) (map[types.ID][]*booking.Booking, error) {
	all, err := s.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE driver_id <> '' AND status <> $1
		ORDER BY seq`, string(booking.StatusCancelled))
	if err != nil {
		return nil, err
	}
	out := make(map[types.ID][]*booking.Booking)
	for _, b := range all {
		out[b.DriverID] = append(out[b.DriverID], b)
	}
	return out, nil
}

func (s *Store) BookingsForCustomer(ctx context.Context, customerID types.ID) ([]*booking.Booking, error) {
	return s.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE customer_id = $1
		ORDER BY seq`, string(customerID))
}

func (s *Store) NextID(ctx context.Context, kind store.Kind) (types.ID, error) {
	table, err := tableFor(kind)
	if err != nil {
		return "", err
	}
	ids, err := existingIDs(ctx, s.db, table)
	if err != nil {
		return "", err
	}
	return store.NextID(kind, ids), nil
}

// insert runs write inside a transaction. An empty id is allocated while
// holding a per-kind advisory lock, so concurrent creators never collide.
func (s *Store) insert(ctx context.Context, kind store.Kind, table, id string, write func(querier, types.ID) error) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		next := types.ID(id)
		if next == "" {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, table); err != nil {
				return storageErr("lock "+table, err)
			}
			ids, err := existingIDs(ctx, tx, table)
			if err != nil {
				return err
			}
			next = store.NextID(kind, ids)
		}
		return write(tx, next)
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrDuplicateID, id)
	}
	if err != nil && !isDomainErr(err) {
		s.log.Error("insert failed", zap.String("table", table), zap.Error(err))
		return storageErr("insert "+table, err)
	}
	return err
}

func (s *Store) queryBookings(ctx context.Context, sql string, args ...any) ([]*booking.Booking, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageErr("query bookings", err)
	}
	return collect(rows, scanBooking)
}

func updateBooking(ctx context.Context, q querier, b *booking.Booking) (pgconn.CommandTag, error) {
	return q.Exec(ctx, `
		UPDATE bookings
		SET customer_id = $2, pickup_label = $3, dropoff_label = $4,
		    scheduled_date = $5, scheduled_time = $6, status = $7, driver_id = $8,
		    pickup_lat = $9, pickup_lng = $10, dropoff_lat = $11, dropoff_lng = $12
		WHERE id = $1`,
		string(b.ID), string(b.CustomerID), b.Pickup.Label, b.Dropoff.Label, b.Date, b.Time,
		string(b.Status), string(b.DriverID),
		b.Pickup.Point.Lat, b.Pickup.Point.Lng, b.Dropoff.Point.Lat, b.Dropoff.Point.Lng,
	)
}

func existingIDs(ctx context.Context, q querier, table string) ([]types.ID, error) {
	rows, err := q.Query(ctx, `SELECT id FROM `+table)
	if err != nil {
		return nil, storageErr("list ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storageErr("list ids", err)
	}
	out := make([]types.ID, len(ids))
	for i, id := range ids {
		out[i] = types.ID(id)
	}
	return out, nil
}

func tableFor(kind store.Kind) (string, error) {
	switch kind {
	case store.KindDriver:
		return "drivers", nil
	case store.KindCustomer:
		return "customers", nil
	case store.KindBooking:
		return "bookings", nil
	default:
		return "", fmt.Errorf("unknown record kind %q", kind)
	}
}

func checkBooking(b *booking.Booking) error {
	if err := b.CheckInvariants(); err != nil {
		return err
	}
	return store.ValidateFields(string(b.CustomerID), b.Pickup.Label, b.Dropoff.Label, b.Date, b.Time)
}

func driverFields(d *driver.Driver) []string {
	return []string{string(d.ID), d.Username, d.PasswordHash, d.Name, d.Phone, d.License}
}

func customerFields(c *customer.Customer) []string {
	return []string{string(c.ID), c.Username, c.PasswordHash, c.Name, c.Address, c.Phone, c.Email}
}

func isDomainErr(err error) bool {
	return errors.Is(err, store.ErrInvalidField) ||
		errors.Is(err, booking.ErrInvalidState) ||
		errors.Is(err, booking.ErrBadRequest)
}

func affected(tag pgconn.CommandTag, err error, kind store.Kind, id types.ID) error {
	if err != nil {
		return storageErr("update "+string(kind), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, kind, id)
	}
	return nil
}

func found[T any](rec *T, err error, op string) (*T, bool, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr(op, err)
	}
	return rec, true, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, storageErr("scan", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("rows", err)
	}
	return out, nil
}

func storageErr(op string, err error) error {
	var se *store.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &store.StorageError{Op: op, Err: err}
}
