package booking_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taxidispatch/internal/events"
	"taxidispatch/internal/modules/account"
	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/modules/customer"
	"taxidispatch/internal/store/flatfile"
	"taxidispatch/internal/types"
)

type fixture struct {
	svc   *booking.Service
	store *flatfile.Store
	rec   *events.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st, err := flatfile.Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.CreateCustomer(context.Background(), &customer.Customer{
		Credentials: account.Credentials{Username: "alice", PasswordHash: "x"},
		Name:        "Alice",
	}))
	rec := &events.Recorder{}
	return fixture{svc: booking.NewService(st, st, rec, zap.NewNop()), store: st, rec: rec}
}

func validCreate() booking.CreateCommand {
	return booking.CreateCommand{
		CustomerID: "C001",
		Pickup:     booking.Place{Label: "Times Square", Point: types.Point{Lat: 40.7580, Lng: -73.9855}},
		Dropoff:    booking.Place{Label: "JFK", Point: types.Point{Lat: 40.6413, Lng: -73.7781}},
		Date:       "2024-01-01",
		Time:       "10:00",
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, validCreate())
	require.NoError(t, err)
	assert.Equal(t, types.ID("B001"), b.ID)
	assert.Equal(t, booking.StatusPending, b.Status)
	assert.Empty(t, b.DriverID)

	b2, err := f.svc.Create(ctx, validCreate())
	require.NoError(t, err)
	assert.Equal(t, types.ID("B002"), b2.ID)

	got, err := f.svc.Get(ctx, "B001")
	require.NoError(t, err)
	assert.Equal(t, b, got)
	assert.Equal(t, []events.Type{events.BookingCreated, events.BookingCreated}, f.rec.Types())
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*booking.CreateCommand)
		want   error
	}{
		{"missing customer", func(c *booking.CreateCommand) { c.CustomerID = "" }, booking.ErrBadRequest},
		{"unknown customer", func(c *booking.CreateCommand) { c.CustomerID = "C099" }, booking.ErrCustomerNotFound},
		{"empty pickup label", func(c *booking.CreateCommand) { c.Pickup.Label = "  " }, booking.ErrBadRequest},
		{"delimiter in label", func(c *booking.CreateCommand) { c.Dropoff.Label = "A|B" }, booking.ErrBadRequest},
		{"latitude out of range", func(c *booking.CreateCommand) { c.Pickup.Point.Lat = 91 }, booking.ErrBadRequest},
		{"bad date", func(c *booking.CreateCommand) { c.Date = "2024/01/01" }, booking.ErrBadRequest},
		{"bad time", func(c *booking.CreateCommand) { c.Time = "7pm" }, booking.ErrBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := validCreate()
			tc.mutate(&cmd)
			_, err := f.svc.Create(ctx, cmd)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	all, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.rec.Events())
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.svc.Create(ctx, validCreate())
	require.NoError(t, err)

	newTime := "14:30"
	newDrop := booking.Place{Label: "LaGuardia", Point: types.Point{Lat: 40.7769, Lng: -73.8740}}
	edited, err := f.svc.Edit(ctx, booking.EditCommand{ID: b.ID, Time: &newTime, Dropoff: &newDrop})
	require.NoError(t, err)
	assert.Equal(t, "14:30", edited.Time)
	assert.Equal(t, "2024-01-01", edited.Date)
	assert.Equal(t, newDrop, edited.Dropoff)
	assert.Equal(t, b.Pickup, edited.Pickup)

	bad := "25:00"
	_, err = f.svc.Edit(ctx, booking.EditCommand{ID: b.ID, Time: &bad})
	assert.ErrorIs(t, err, booking.ErrBadRequest)

	_, err = f.svc.Edit(ctx, booking.EditCommand{ID: b.ID})
	assert.ErrorIs(t, err, booking.ErrBadRequest)

	_, err = f.svc.Edit(ctx, booking.EditCommand{ID: "B404", Time: &newTime})
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestEditRejectsNonPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.svc.Create(ctx, validCreate())
	require.NoError(t, err)

	_, err = f.store.MutateBooking(ctx, b.ID, func(b *booking.Booking) error { return b.Assign("D001") })
	require.NoError(t, err)

	date := "2024-02-02"
	_, err = f.svc.Edit(ctx, booking.EditCommand{ID: b.ID, Date: &date})
	assert.ErrorIs(t, err, booking.ErrNotEditable)

	got, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", got.Date)
}

func TestCancelAndComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending, err := f.svc.Create(ctx, validCreate())
	require.NoError(t, err)
	assigned, err := f.svc.Create(ctx, validCreate())
	require.NoError(t, err)
	_, err = f.store.MutateBooking(ctx, assigned.ID, func(b *booking.Booking) error { return b.Assign("D001") })
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, pending.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidState)

	done, err := f.svc.Complete(ctx, assigned.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, done.Status)
	assert.Equal(t, types.ID("D001"), done.DriverID)

	_, err = f.svc.Cancel(ctx, assigned.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidState)

	cancelled, err := f.svc.Cancel(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, cancelled.Status)

	_, err = f.svc.Cancel(ctx, pending.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidState)

	_, err = f.svc.Cancel(ctx, "B404")
	assert.ErrorIs(t, err, booking.ErrNotFound)

	assert.Equal(t, []events.Type{
		events.BookingCreated, events.BookingCreated, events.BookingCompleted, events.BookingCancelled,
	}, f.rec.Types())
}

func TestCancelAssignedReleasesDriver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.svc.Create(ctx, validCreate())
	require.NoError(t, err)
	_, err = f.store.MutateBooking(ctx, b.ID, func(b *booking.Booking) error { return b.Assign("D001") })
	require.NoError(t, err)

	byDriver, err := f.svc.ListByDriver(ctx, "D001")
	require.NoError(t, err)
	require.Len(t, byDriver, 1)

	cancelled, err := f.svc.Cancel(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, cancelled.DriverID)

	byDriver, err = f.svc.ListByDriver(ctx, "D001")
	require.NoError(t, err)
	assert.Empty(t, byDriver)

	byCustomer, err := f.svc.ListByCustomer(ctx, "C001")
	require.NoError(t, err)
	require.Len(t, byCustomer, 1)
	assert.Equal(t, booking.StatusCancelled, byCustomer[0].Status)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker unavailable")
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	st, err := flatfile.Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.CreateCustomer(context.Background(), &customer.Customer{Name: "Bob"}))
	svc := booking.NewService(st, st, failingPublisher{}, zap.NewNop())

	b, err := svc.Create(context.Background(), validCreate())
	require.NoError(t, err)
	assert.Equal(t, types.ID("B001"), b.ID)
}
