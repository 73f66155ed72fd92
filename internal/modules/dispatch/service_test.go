package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taxidispatch/internal/events"
	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/modules/customer"
	"taxidispatch/internal/modules/dispatch"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/store/flatfile"
	"taxidispatch/internal/types"
)

type fixture struct {
	store    *flatfile.Store
	bookings *booking.Service
	dispatch *dispatch.Service
	rec      *events.Recorder
}

func newFixture(t *testing.T, eta dispatch.ETAEstimator) fixture {
	t.Helper()
	ctx := context.Background()
	st, err := flatfile.Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.CreateCustomer(ctx, &customer.Customer{Name: "Alice"}))
	for _, d := range []*driver.Driver{
		{Name: "Near", Location: types.Point{Lat: 40.7580, Lng: -73.9855}},
		{Name: "Mid", Location: types.Point{Lat: 40.7484, Lng: -73.9857}},
		{Name: "Far", Location: types.Point{Lat: 42.3601, Lng: -71.0589}},
	} {
		require.NoError(t, st.CreateDriver(ctx, d))
	}
	rec := &events.Recorder{}
	bs := booking.NewService(st, st, rec, zap.NewNop())
	ds := dispatch.NewService(st, bs, eta, dispatch.Config{Recommendations: 2}, zap.NewNop())
	return fixture{store: st, bookings: bs, dispatch: ds, rec: rec}
}

func (f fixture) book(t *testing.T, date, clock string) *booking.Booking {
	t.Helper()
	b, err := f.bookings.Create(context.Background(), booking.CreateCommand{
		CustomerID: "C001",
		Pickup:     booking.Place{Label: "Times Square", Point: types.Point{Lat: 40.7580, Lng: -73.9855}},
		Dropoff:    booking.Place{Label: "Penn Station", Point: types.Point{Lat: 40.7506, Lng: -73.9935}},
		Date:       date,
		Time:       clock,
	})
	require.NoError(t, err)
	return b
}

func TestAutoAssign_NearestThenNext(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.book(t, "2024-01-01", "10:00")
	got, err := f.dispatch.AutoAssign(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusAssigned, got.Status)
	assert.Equal(t, types.ID("D001"), got.DriverID)

	second := f.book(t, "2024-01-01", "11:00")
	got, err = f.dispatch.AutoAssign(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ID("D002"), got.DriverID)

	third := f.book(t, "2024-01-01", "11:30")
	got, err = f.dispatch.AutoAssign(ctx, third.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ID("D003"), got.DriverID)

	fourth := f.book(t, "2024-01-01", "10:45")
	_, err = f.dispatch.AutoAssign(ctx, fourth.ID)
	assert.ErrorIs(t, err, dispatch.ErrNoDriverAvailable)

	stored, err := f.bookings.Get(ctx, fourth.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, stored.Status)

	_, err = f.dispatch.AutoAssign(ctx, first.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidState)

	_, err = f.dispatch.AutoAssign(ctx, "B404")
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestAutoAssign_CancelFreesDriver(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.book(t, "2024-01-01", "10:00")
	_, err := f.dispatch.AutoAssign(ctx, first.ID)
	require.NoError(t, err)
	_, err = f.bookings.Cancel(ctx, first.ID)
	require.NoError(t, err)

	second := f.book(t, "2024-01-01", "10:30")
	got, err := f.dispatch.AutoAssign(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ID("D001"), got.DriverID)
}

func TestAutoAssign_ConcurrentRequestsDoNotDoubleBook(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const n = 3
	ids := make([]types.ID, n)
	for i := range ids {
		ids[i] = f.book(t, "2024-01-01", "10:00").ID
	}

	var wg sync.WaitGroup
	results := make([]*booking.Booking, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id types.ID) {
			defer wg.Done()
			b, err := f.dispatch.AutoAssign(ctx, id)
			assert.NoError(t, err)
			results[i] = b
		}(i, id)
	}
	wg.Wait()

	seen := map[types.ID]bool{}
	for _, b := range results {
		require.NotNil(t, b)
		assert.False(t, seen[b.DriverID], "driver %s assigned twice", b.DriverID)
		seen[b.DriverID] = true
	}
}

func TestAssignDriver_ConflictAndOverride(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.book(t, "2024-01-01", "10:00")
	_, err := f.dispatch.AssignDriver(ctx, dispatch.AssignCommand{BookingID: first.ID, DriverID: "D003"})
	require.NoError(t, err)

	second := f.book(t, "2024-01-01", "11:00")
	_, err = f.dispatch.AssignDriver(ctx, dispatch.AssignCommand{BookingID: second.ID, DriverID: "D003"})
	assert.ErrorIs(t, err, dispatch.ErrDriverUnavailable)

	got, err := f.dispatch.AssignDriver(ctx, dispatch.AssignCommand{BookingID: second.ID, DriverID: "D003", Override: true})
	require.NoError(t, err)
	assert.Equal(t, types.ID("D003"), got.DriverID)

	evs := f.rec.Events()
	last := evs[len(evs)-1]
	assert.Equal(t, events.BookingAssigned, last.Type)
	assert.True(t, last.Override)
}

func TestAssignDriver_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	b := f.book(t, "2024-01-01", "10:00")

	_, err := f.dispatch.AssignDriver(ctx, dispatch.AssignCommand{BookingID: b.ID})
	assert.ErrorIs(t, err, booking.ErrBadRequest)

	_, err = f.dispatch.AssignDriver(ctx, dispatch.AssignCommand{BookingID: b.ID, DriverID: "D404"})
	assert.ErrorIs(t, err, dispatch.ErrDriverNotFound)

	_, err = f.dispatch.AssignDriver(ctx, dispatch.AssignCommand{BookingID: "B404", DriverID: "D001"})
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	b := f.book(t, "2024-01-01", "10:00")
	_, err := f.dispatch.AssignDriver(ctx, dispatch.AssignCommand{BookingID: b.ID, DriverID: "D002"})
	require.NoError(t, err)

	res, err := f.dispatch.CheckAvailability(ctx, "D002", "2024-01-01", "10:30")
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, []types.ID{b.ID}, res.Conflicts)

	res, err = f.dispatch.CheckAvailability(ctx, "D002", "2024-01-01", "13:00")
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Empty(t, res.Conflicts)

	_, err = f.dispatch.CheckAvailability(ctx, "D002", "2024-01-01", "noon")
	var se *dispatch.InvalidScheduleError
	assert.ErrorAs(t, err, &se)

	_, err = f.dispatch.CheckAvailability(ctx, "D404", "2024-01-01", "10:00")
	assert.ErrorIs(t, err, dispatch.ErrDriverNotFound)
}

type stubETA struct {
	failFor types.Point
}

func (s stubETA) DriveEstimate(_ context.Context, from, _ types.Point) (time.Duration, error) {
	if from == s.failFor {
		return 0, errors.New("quota exceeded")
	}
	return 7 * time.Minute, nil
}

func TestRecommend(t *testing.T) {
	f := newFixture(t, stubETA{failFor: types.Point{Lat: 40.7484, Lng: -73.9857}})
	ctx := context.Background()

	blocker := f.book(t, "2024-01-01", "10:00")
	_, err := f.dispatch.AssignDriver(ctx, dispatch.AssignCommand{BookingID: blocker.ID, DriverID: "D001"})
	require.NoError(t, err)

	b := f.book(t, "2024-01-01", "10:30")
	recs, err := f.dispatch.Recommend(ctx, b.ID, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, types.ID("D002"), recs[0].Driver.ID)
	assert.Nil(t, recs[0].ETA)
	assert.Equal(t, types.ID("D003"), recs[1].Driver.ID)
	require.NotNil(t, recs[1].ETA)
	assert.Equal(t, 7*time.Minute, *recs[1].ETA)

	recs, err = f.dispatch.Recommend(ctx, b.ID, 5)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.False(t, recs[2].Available)
	assert.Equal(t, types.ID("D001"), recs[2].Driver.ID)

	_, err = f.dispatch.Recommend(ctx, "B404", 3)
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

// editingStore changes a booking's time while an assignment decision is in flight.
type editingStore struct {
	*flatfile.Store
	once   sync.Once
	onRead func()
}

func (s *editingStore) BookingsByDriver(ctx context.Context) (map[types.ID][]*booking.Booking, error) {
	out, err := s.Store.BookingsByDriver(ctx)
	s.once.Do(s.onRead)
	return out, err
}

func TestAutoAssign_RefusesBookingEditedMidDecision(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	held := f.book(t, "2024-01-01", "14:00")
	_, err := f.dispatch.AutoAssign(ctx, held.ID)
	require.NoError(t, err)

	b := f.book(t, "2024-01-01", "09:00")
	later := "14:30"
	st := &editingStore{Store: f.store, onRead: func() {
		_, err := f.bookings.Edit(ctx, booking.EditCommand{ID: b.ID, Time: &later})
		require.NoError(t, err)
	}}
	ds := dispatch.NewService(st, f.bookings, nil, dispatch.Config{}, zap.NewNop())

	_, err = ds.AutoAssign(ctx, b.ID)
	require.ErrorIs(t, err, booking.ErrInvalidState)

	stored, err := f.bookings.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, stored.Status)
	assert.Equal(t, "14:30", stored.Time)

	// a fresh decision sees the new time and skips the busy driver
	got, err := ds.AutoAssign(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ID("D002"), got.DriverID)

	avail, err := f.dispatch.CheckAvailability(ctx, "D001", "2024-01-01", "14:30")
	require.NoError(t, err)
	assert.Equal(t, []types.ID{held.ID}, avail.Conflicts)
}

func TestAutoAssignPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	done := f.book(t, "2024-01-01", "08:00")
	_, err := f.dispatch.AutoAssign(ctx, done.ID)
	require.NoError(t, err)
	cancelled := f.book(t, "2024-01-01", "12:00")
	_, err = f.bookings.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)

	for _, clock := range []string{"09:00", "09:30", "10:00", "10:30", "20:00"} {
		f.book(t, "2024-01-01", clock)
	}

	res, err := f.dispatch.AutoAssignPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Pending)

	got := map[types.ID]types.ID{}
	for _, b := range res.Assigned {
		assert.Equal(t, booking.StatusAssigned, b.Status)
		got[b.ID] = b.DriverID
	}
	// D001 holds 08:00, so the 09:00 run starts with D002
	assert.Equal(t, map[types.ID]types.ID{
		"B003": "D002",
		"B004": "D003",
		"B005": "D001",
		"B007": "D001",
	}, got)
	assert.Equal(t, []types.ID{"B006"}, res.Unassigned)

	again, err := f.dispatch.AutoAssignPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Pending)
	assert.Empty(t, again.Assigned)
}

func TestStatistics(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.book(t, "2024-01-01", "10:00")
	_, err := f.dispatch.AutoAssign(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.bookings.Complete(ctx, a.ID)
	require.NoError(t, err)
	b := f.book(t, "2024-01-01", "15:00")
	_, err = f.bookings.Cancel(ctx, b.ID)
	require.NoError(t, err)
	f.book(t, "2024-01-02", "10:00")

	st, err := f.dispatch.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Customers)
	assert.Equal(t, 3, st.Drivers)
	assert.Equal(t, 3, st.Bookings)
	assert.Equal(t, map[booking.Status]int{
		booking.StatusPending:   1,
		booking.StatusAssigned:  0,
		booking.StatusCompleted: 1,
		booking.StatusCancelled: 1,
	}, st.ByStatus)
	assert.Equal(t, map[types.ID]int{"D001": 1, "D002": 0, "D003": 0}, st.Trips)

	customers, err := f.dispatch.Customers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "Alice", customers[0].Name)
}
