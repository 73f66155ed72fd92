// README: Driver handlers for listing, schedules, availability and nearby search.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/modules/dispatch"
	"taxidispatch/internal/modules/location"
	"taxidispatch/internal/types"
)

type DriverHandler struct {
	dispatch *dispatch.Service
	booking  *booking.Service
	location *location.Service
	radiusKm float64
}

// NewDriverHandler builds the handler. radiusKm is the nearby search radius
// used when a request does not give one.
func NewDriverHandler(dispatchSvc *dispatch.Service, bookingSvc *booking.Service, locationSvc *location.Service, radiusKm float64) *DriverHandler {
	return &DriverHandler{dispatch: dispatchSvc, booking: bookingSvc, location: locationSvc, radiusKm: radiusKm}
}

func (h *DriverHandler) List(c *gin.Context) {
	drivers, err := h.dispatch.Drivers(c.Request.Context())
	if err != nil {
		writeBookingError(c, err)
		return
	}
	out := make([]driverResponse, len(drivers))
	for i, d := range drivers {
		out[i] = toDriver(d)
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": out})
}

func (h *DriverHandler) Bookings(c *gin.Context) {
	id := types.ID(c.Param("id"))
	if _, err := h.dispatch.Driver(c.Request.Context(), id); err != nil {
		writeBookingError(c, err)
		return
	}
	bs, err := h.booking.ListByDriver(c.Request.Context(), id)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": toBookings(bs)})
}

func (h *DriverHandler) Availability(c *gin.Context) {
	date, clock := c.Query("date"), c.Query("time")
	if date == "" || clock == "" {
		writeError(c, http.StatusBadRequest, "date and time are required")
		return
	}
	res, err := h.dispatch.CheckAvailability(c.Request.Context(), types.ID(c.Param("id")), date, clock)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	conflicts := res.Conflicts
	if conflicts == nil {
		conflicts = []types.ID{}
	}
	writeJSON(c, http.StatusOK, gin.H{
		"driver_id": res.DriverID,
		"available": res.Available,
		"conflicts": conflicts,
	})
}

func (h *DriverHandler) Nearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	p := types.Point{Lat: lat, Lng: lng}
	if errLat != nil || errLng != nil || !p.Valid() {
		writeError(c, http.StatusBadRequest, "lat and lng are required coordinates")
		return
	}
	radius := h.radiusKm
	if v := c.Query("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
		radius = r
	}
	res, err := h.location.Nearby(c.Request.Context(), p, radius)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	out := make([]nearbyResponse, len(res))
	for i, n := range res {
		out[i] = toNearby(n)
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": out})
}
