// README: Booking handlers for create, read, edit, cancel and complete.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/modules/dispatch"
	"taxidispatch/internal/types"
)

type BookingHandler struct {
	booking  *booking.Service
	dispatch *dispatch.Service
}

func NewBookingHandler(bookingSvc *booking.Service, dispatchSvc *dispatch.Service) *BookingHandler {
	return &BookingHandler{booking: bookingSvc, dispatch: dispatchSvc}
}

type createBookingReq struct {
	CustomerID string   `json:"customer_id"`
	Pickup     placeDTO `json:"pickup"`
	Dropoff    placeDTO `json:"dropoff"`
	Date       string   `json:"date"`
	Time       string   `json:"time"`
	// AutoAssign binds the nearest available driver right away. The booking
	// stays pending when nobody is free.
	AutoAssign bool `json:"auto_assign"`
}

type editBookingReq struct {
	Pickup  *placeDTO `json:"pickup"`
	Dropoff *placeDTO `json:"dropoff"`
	Date    *string   `json:"date"`
	Time    *string   `json:"time"`
}

func (h *BookingHandler) Create(c *gin.Context) {
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	b, err := h.booking.Create(c.Request.Context(), booking.CreateCommand{
		CustomerID: types.ID(req.CustomerID),
		Pickup:     req.Pickup.place(),
		Dropoff:    req.Dropoff.place(),
		Date:       req.Date,
		Time:       req.Time,
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	if req.AutoAssign {
		assigned, err := h.dispatch.AutoAssign(c.Request.Context(), b.ID)
		switch {
		case err == nil:
			b = assigned
		case errors.Is(err, dispatch.ErrNoDriverAvailable):
		default:
			writeBookingError(c, err)
			return
		}
	}
	writeJSON(c, http.StatusCreated, toBooking(b))
}

func (h *BookingHandler) List(c *gin.Context) {
	bs, err := h.booking.List(c.Request.Context())
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": toBookings(bs)})
}

func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.booking.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBooking(b))
}

func (h *BookingHandler) Edit(c *gin.Context) {
	var req editBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := booking.EditCommand{ID: types.ID(c.Param("id")), Date: req.Date, Time: req.Time}
	if req.Pickup != nil {
		p := req.Pickup.place()
		cmd.Pickup = &p
	}
	if req.Dropoff != nil {
		p := req.Dropoff.place()
		cmd.Dropoff = &p
	}
	b, err := h.booking.Edit(c.Request.Context(), cmd)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBooking(b))
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	b, err := h.booking.Cancel(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBooking(b))
}

func (h *BookingHandler) Complete(c *gin.Context) {
	b, err := h.booking.Complete(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBooking(b))
}

// ListByCustomer serves GET /api/customers/:id/bookings.
func (h *BookingHandler) ListByCustomer(c *gin.Context) {
	bs, err := h.booking.ListByCustomer(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": toBookings(bs)})
}
