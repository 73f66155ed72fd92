// README: Dispatch service turns engine decisions into persisted assignments.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"taxidispatch/internal/events"
	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/modules/customer"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/store"
	"taxidispatch/internal/types"
)

var (
	ErrNoDriverAvailable = errors.New("no driver available")
	ErrDriverUnavailable = errors.New("driver has a conflicting booking")
	ErrDriverNotFound    = errors.New("driver not found")
)

// Store is the record access the dispatch service needs.
type Store interface {
	ListDrivers(ctx context.Context) ([]*driver.Driver, error)
	GetDriver(ctx context.Context, id types.ID) (*driver.Driver, bool, error)
	GetBooking(ctx context.Context, id types.ID) (*booking.Booking, bool, error)
	ListBookings(ctx context.Context) ([]*booking.Booking, error)
	ListCustomers(ctx context.Context) ([]*customer.Customer, error)
	BookingsForDriver(ctx context.Context, driverID types.ID) ([]*booking.Booking, error)
	BookingsByDriver(ctx context.Context) (map[types.ID][]*booking.Booking, error)
	MutateBooking(ctx context.Context, id types.ID, fn func(*booking.Booking) error) (*booking.Booking, error)
}

// Notifier is implemented by booking.Service.
type Notifier interface {
	Publish(ctx context.Context, typ events.Type, b *booking.Booking, override bool)
}

// ETAEstimator estimates drive time between two points.
type ETAEstimator interface {
	DriveEstimate(ctx context.Context, from, to types.Point) (time.Duration, error)
}

type Config struct {
	// Recommendations is the list length used when a caller asks for none.
	Recommendations int
}

type Service struct {
	store    Store
	notifier Notifier
	eta      ETAEstimator
	cfg      Config
	log      *zap.Logger

	// mu serializes assignment decisions so two requests cannot both take
	// the same free slot of one driver.
	mu sync.Mutex
}

// NewService builds a dispatch service. notifier and eta may be nil.
func NewService(st Store, notifier Notifier, eta ETAEstimator, cfg Config, log *zap.Logger) *Service {
	if cfg.Recommendations <= 0 {
		cfg.Recommendations = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: st, notifier: notifier, eta: eta, cfg: cfg, log: log.Named("dispatch")}
}

type AssignCommand struct {
	BookingID types.ID
	DriverID  types.ID
	// Override assigns even when the driver has a conflicting booking.
	Override bool
}

type Availability struct {
	DriverID  types.ID
	Available bool
	Conflicts []types.ID
}

// AutoAssign binds the nearest available driver to a pending booking.
func (s *Service) AutoAssign(ctx context.Context, bookingID types.ID) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.pendingBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	drivers, err := s.store.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}
	byDriver, err := s.store.BookingsByDriver(ctx)
	if err != nil {
		return nil, err
	}
	driverID, ok, err := FindBestDriver(RequestFor(b), drivers, byDriver)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.log.Info("no driver available", zap.String("booking_id", string(bookingID)))
		return nil, fmt.Errorf("%w for booking %s", ErrNoDriverAvailable, bookingID)
	}
	return s.assign(ctx, b, driverID, false)
}

// PendingResult reports one AutoAssignPending pass.
type PendingResult struct {
	Pending    int
	Assigned   []*booking.Booking
	Unassigned []types.ID
}

// AutoAssignPending assigns every pending booking in store order. Each
// assignment counts against its driver for the bookings that follow.
func (s *Service) AutoAssignPending(ctx context.Context) (PendingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res PendingResult
	all, err := s.store.ListBookings(ctx)
	if err != nil {
		return res, err
	}
	drivers, err := s.store.ListDrivers(ctx)
	if err != nil {
		return res, err
	}
	byDriver, err := s.store.BookingsByDriver(ctx)
	if err != nil {
		return res, err
	}

	for _, b := range all {
		if b.Status != booking.StatusPending {
			continue
		}
		res.Pending++
		driverID, ok, err := FindBestDriver(RequestFor(b), drivers, byDriver)
		if err != nil {
			s.log.Warn("pending booking has an invalid schedule", zap.String("booking_id", string(b.ID)), zap.Error(err))
			res.Unassigned = append(res.Unassigned, b.ID)
			continue
		}
		if !ok {
			res.Unassigned = append(res.Unassigned, b.ID)
			continue
		}
		assigned, err := s.assign(ctx, b, driverID, false)
		if errors.Is(err, booking.ErrInvalidState) {
			res.Unassigned = append(res.Unassigned, b.ID)
			continue
		}
		if err != nil {
			return res, err
		}
		byDriver[driverID] = append(byDriver[driverID], assigned)
		res.Assigned = append(res.Assigned, assigned)
	}
	s.log.Info("pending bookings assigned",
		zap.Int("pending", res.Pending),
		zap.Int("assigned", len(res.Assigned)),
	)
	return res, nil
}

// AssignDriver binds a chosen driver. A schedule conflict fails with
// ErrDriverUnavailable unless the command overrides it.
func (s *Service) AssignDriver(ctx context.Context, cmd AssignCommand) (*booking.Booking, error) {
	if cmd.BookingID == "" || cmd.DriverID == "" {
		return nil, booking.ErrBadRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.pendingBooking(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if _, ok, err := s.store.GetDriver(ctx, cmd.DriverID); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDriverNotFound, cmd.DriverID)
	}
	at, err := RequestFor(b).scheduledAt()
	if err != nil {
		return nil, err
	}
	held, err := s.store.BookingsForDriver(ctx, cmd.DriverID)
	if err != nil {
		return nil, err
	}
	if conflicts := Conflicting(at, held); len(conflicts) > 0 {
		if !cmd.Override {
			return nil, fmt.Errorf("%w: %s conflicts with %s", ErrDriverUnavailable, cmd.DriverID, conflicts[0].ID)
		}
		s.log.Warn("assignment overrides schedule conflict",
			zap.String("booking_id", string(cmd.BookingID)),
			zap.String("driver_id", string(cmd.DriverID)),
			zap.Int("conflicts", len(conflicts)),
		)
	}
	return s.assign(ctx, b, cmd.DriverID, cmd.Override)
}

// Recommend ranks drivers for a stored booking. n <= 0 uses the configured length.
func (s *Service) Recommend(ctx context.Context, bookingID types.ID, n int) ([]Recommendation, error) {
	if n <= 0 {
		n = s.cfg.Recommendations
	}
	b, err := s.booking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	drivers, err := s.store.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}
	byDriver, err := s.store.BookingsByDriver(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := Recommend(RequestFor(b), drivers, byDriver, n)
	if err != nil {
		return nil, err
	}
	s.estimate(ctx, b.Pickup.Point, recs)
	return recs, nil
}

// CheckAvailability reports whether a driver is free at the given date and time.
func (s *Service) CheckAvailability(ctx context.Context, driverID types.ID, date, clock string) (Availability, error) {
	at, err := Request{Date: date, Time: clock}.scheduledAt()
	if err != nil {
		return Availability{}, err
	}
	if _, ok, err := s.store.GetDriver(ctx, driverID); err != nil {
		return Availability{}, err
	} else if !ok {
		return Availability{}, fmt.Errorf("%w: %s", ErrDriverNotFound, driverID)
	}
	held, err := s.store.BookingsForDriver(ctx, driverID)
	if err != nil {
		return Availability{}, err
	}
	res := Availability{DriverID: driverID, Available: true}
	for _, c := range Conflicting(at, held) {
		res.Available = false
		res.Conflicts = append(res.Conflicts, c.ID)
	}
	return res, nil
}

func (s *Service) Customers(ctx context.Context) ([]*customer.Customer, error) {
	return s.store.ListCustomers(ctx)
}

func (s *Service) Drivers(ctx context.Context) ([]*driver.Driver, error) {
	return s.store.ListDrivers(ctx)
}

func (s *Service) Driver(ctx context.Context, id types.ID) (*driver.Driver, error) {
	d, ok, err := s.store.GetDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDriverNotFound, id)
	}
	return d, nil
}

// assign persists a decision made on snapshot. The write is refused when the
// stored booking no longer has the schedule and pickup the decision was based on.
func (s *Service) assign(ctx context.Context, snapshot *booking.Booking, driverID types.ID, override bool) (*booking.Booking, error) {
	bookingID := snapshot.ID
	b, err := s.store.MutateBooking(ctx, bookingID, func(b *booking.Booking) error {
		if b.Date != snapshot.Date || b.Time != snapshot.Time || b.Pickup.Point != snapshot.Pickup.Point {
			return fmt.Errorf("%w: booking %s changed while assigning", booking.ErrInvalidState, bookingID)
		}
		return b.Assign(driverID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", booking.ErrNotFound, bookingID)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("booking assigned",
		zap.String("booking_id", string(bookingID)),
		zap.String("driver_id", string(driverID)),
		zap.Bool("override", override),
	)
	if s.notifier != nil {
		s.notifier.Publish(ctx, events.BookingAssigned, b, override)
	}
	return b, nil
}

func (s *Service) booking(ctx context.Context, id types.ID) (*booking.Booking, error) {
	b, ok, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", booking.ErrNotFound, id)
	}
	return b, nil
}

func (s *Service) pendingBooking(ctx context.Context, id types.ID) (*booking.Booking, error) {
	b, err := s.booking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != booking.StatusPending {
		return nil, fmt.Errorf("%w: booking %s is %s", booking.ErrInvalidState, id, b.Status)
	}
	return b, nil
}

// estimate fills in ETAs. A failed estimate leaves that entry without one.
func (s *Service) estimate(ctx context.Context, pickup types.Point, recs []Recommendation) {
	if s.eta == nil {
		return
	}
	for i := range recs {
		d, err := s.eta.DriveEstimate(ctx, recs[i].Driver.Location, pickup)
		if err != nil {
			s.log.Debug("eta estimate failed", zap.String("driver_id", string(recs[i].Driver.ID)), zap.Error(err))
			continue
		}
		recs[i].ETA = &d
	}
}
