// README: Booking service validates requests, applies lifecycle transitions and emits events.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"taxidispatch/internal/events"
	"taxidispatch/internal/modules/customer"
	"taxidispatch/internal/store"
	"taxidispatch/internal/types"
)

var (
	ErrBadRequest       = errors.New("bad request")
	ErrNotFound         = errors.New("booking not found")
	ErrInvalidState     = errors.New("invalid state transition")
	ErrNotEditable      = errors.New("only pending bookings can be edited")
	ErrCustomerNotFound = errors.New("customer not found")
)

// Repository is the slice of the record store the booking service needs.
type Repository interface {
	CreateBooking(ctx context.Context, b *Booking) error
	GetBooking(ctx context.Context, id types.ID) (*Booking, bool, error)
	ListBookings(ctx context.Context) ([]*Booking, error)
	MutateBooking(ctx context.Context, id types.ID, fn func(*Booking) error) (*Booking, error)
	BookingsForCustomer(ctx context.Context, customerID types.ID) ([]*Booking, error)
	BookingsForDriver(ctx context.Context, driverID types.ID) ([]*Booking, error)
}

type Customers interface {
	GetCustomer(ctx context.Context, id types.ID) (*customer.Customer, bool, error)
}

type Service struct {
	repo      Repository
	customers Customers
	events    events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewService(repo Repository, customers Customers, pub events.Publisher, log *zap.Logger) *Service {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, customers: customers, events: pub, log: log.Named("booking"), now: time.Now}
}

type CreateCommand struct {
	CustomerID types.ID
	Pickup     Place
	Dropoff    Place
	Date       string
	Time       string
}

// EditCommand changes the fields that are set and leaves the rest alone.
type EditCommand struct {
	ID      types.ID
	Pickup  *Place
	Dropoff *Place
	Date    *string
	Time    *string
}

func (c EditCommand) empty() bool {
	return c.Pickup == nil && c.Dropoff == nil && c.Date == nil && c.Time == nil
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Booking, error) {
	if cmd.CustomerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrBadRequest)
	}
	if err := validatePlace("pickup", cmd.Pickup); err != nil {
		return nil, err
	}
	if err := validatePlace("dropoff", cmd.Dropoff); err != nil {
		return nil, err
	}
	if err := ValidateDate(cmd.Date); err != nil {
		return nil, err
	}
	if err := ValidateTime(cmd.Time); err != nil {
		return nil, err
	}
	_, ok, err := s.customers.GetCustomer(ctx, cmd.CustomerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, cmd.CustomerID)
	}

	b := &Booking{
		CustomerID: cmd.CustomerID,
		Pickup:     cmd.Pickup,
		Dropoff:    cmd.Dropoff,
		Date:       cmd.Date,
		Time:       cmd.Time,
		Status:     StatusPending,
	}
	if err := s.repo.CreateBooking(ctx, b); err != nil {
		return nil, err
	}
	s.log.Info("booking created", zap.String("booking_id", string(b.ID)), zap.String("customer_id", string(b.CustomerID)))
	s.publish(ctx, events.BookingCreated, b, false)
	return b, nil
}

func (s *Service) Edit(ctx context.Context, cmd EditCommand) (*Booking, error) {
	if cmd.ID == "" || cmd.empty() {
		return nil, ErrBadRequest
	}
	if cmd.Pickup != nil {
		if err := validatePlace("pickup", *cmd.Pickup); err != nil {
			return nil, err
		}
	}
	if cmd.Dropoff != nil {
		if err := validatePlace("dropoff", *cmd.Dropoff); err != nil {
			return nil, err
		}
	}
	if cmd.Date != nil {
		if err := ValidateDate(*cmd.Date); err != nil {
			return nil, err
		}
	}
	if cmd.Time != nil {
		if err := ValidateTime(*cmd.Time); err != nil {
			return nil, err
		}
	}

	b, err := s.mutate(ctx, cmd.ID, func(b *Booking) error {
		if !b.Editable() {
			return fmt.Errorf("%w: booking is %s", ErrNotEditable, b.Status)
		}
		if cmd.Pickup != nil {
			b.Pickup = *cmd.Pickup
		}
		if cmd.Dropoff != nil {
			b.Dropoff = *cmd.Dropoff
		}
		if cmd.Date != nil {
			b.Date = *cmd.Date
		}
		if cmd.Time != nil {
			b.Time = *cmd.Time
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BookingUpdated, b, false)
	return b, nil
}

func (s *Service) Cancel(ctx context.Context, id types.ID) (*Booking, error) {
	var released types.ID
	b, err := s.mutate(ctx, id, func(b *Booking) error {
		released = b.DriverID
		return b.Cancel()
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("booking cancelled", zap.String("booking_id", string(id)), zap.String("released_driver", string(released)))
	s.publish(ctx, events.BookingCancelled, b, false)
	return b, nil
}

func (s *Service) Complete(ctx context.Context, id types.ID) (*Booking, error) {
	b, err := s.mutate(ctx, id, func(b *Booking) error { return b.Complete() })
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BookingCompleted, b, false)
	return b, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	b, ok, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, nil
}

func (s *Service) List(ctx context.Context) ([]*Booking, error) {
	return s.repo.ListBookings(ctx)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID types.ID) ([]*Booking, error) {
	return s.repo.BookingsForCustomer(ctx, customerID)
}

// ListByDriver returns the driver's bookings that still occupy its schedule.
func (s *Service) ListByDriver(ctx context.Context, driverID types.ID) ([]*Booking, error) {
	return s.repo.BookingsForDriver(ctx, driverID)
}

// Publish emits a lifecycle event for b. Delivery failures are logged only.
func (s *Service) Publish(ctx context.Context, typ events.Type, b *Booking, override bool) {
	s.publish(ctx, typ, b, override)
}

func (s *Service) mutate(ctx context.Context, id types.ID, fn func(*Booking) error) (*Booking, error) {
	if id == "" {
		return nil, ErrBadRequest
	}
	b, err := s.repo.MutateBooking(ctx, id, fn)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, err
}

func (s *Service) publish(ctx context.Context, typ events.Type, b *Booking, override bool) {
	err := s.events.Publish(ctx, events.Event{
		Type:       typ,
		BookingID:  b.ID,
		CustomerID: b.CustomerID,
		DriverID:   b.DriverID,
		Status:     string(b.Status),
		Override:   override,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		s.log.Warn("publish booking event failed", zap.String("type", string(typ)), zap.String("booking_id", string(b.ID)), zap.Error(err))
	}
}

func validatePlace(name string, p Place) error {
	if strings.TrimSpace(p.Label) == "" {
		return fmt.Errorf("%w: %s label is required", ErrBadRequest, name)
	}
	if err := store.ValidateFields(p.Label); err != nil {
		return fmt.Errorf("%w: %s label: %v", ErrBadRequest, name, err)
	}
	if !p.Point.Valid() {
		return fmt.Errorf("%w: %s coordinates out of range", ErrBadRequest, name)
	}
	return nil
}
