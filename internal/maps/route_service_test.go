package maps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"

	"taxidispatch/internal/types"
)

type fakeDirections struct {
	got    *maps.DirectionsRequest
	routes []maps.Route
	err    error
}

func (f *fakeDirections) Directions(_ context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error) {
	f.got = r
	return f.routes, nil, f.err
}

func TestDriveEstimate(t *testing.T) {
	fake := &fakeDirections{routes: []maps.Route{{Legs: []*maps.Leg{{Duration: 7 * time.Minute}}}}}
	svc := &RouteService{client: fake}

	d, err := svc.DriveEstimate(context.Background(),
		types.Point{Lat: 40.7484, Lng: -73.9857},
		types.Point{Lat: 40.758, Lng: -73.9855},
	)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Minute, d)
	assert.Equal(t, "40.7484,-73.9857", fake.got.Origin)
	assert.Equal(t, "40.758,-73.9855", fake.got.Destination)
	assert.Equal(t, maps.TravelModeDriving, fake.got.Mode)
}

func TestDriveEstimate_NoRoute(t *testing.T) {
	svc := &RouteService{client: &fakeDirections{}}
	_, err := svc.DriveEstimate(context.Background(), types.Point{}, types.Point{Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestDriveEstimate_APIError(t *testing.T) {
	cause := errors.New("OVER_QUERY_LIMIT")
	svc := &RouteService{client: &fakeDirections{err: cause}, timeout: time.Second}
	_, err := svc.DriveEstimate(context.Background(), types.Point{}, types.Point{Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, cause)
}
