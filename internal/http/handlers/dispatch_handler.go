// README: Dispatch handlers for assignment, recommendations and system statistics.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/modules/dispatch"
	"taxidispatch/internal/types"
)

type DispatchHandler struct {
	dispatch *dispatch.Service
}

func NewDispatchHandler(svc *dispatch.Service) *DispatchHandler {
	return &DispatchHandler{dispatch: svc}
}

type assignReq struct {
	DriverID string `json:"driver_id"`
	Override bool   `json:"override"`
}

// Assign binds a driver. Without driver_id the nearest available driver is chosen.
func (h *DispatchHandler) Assign(c *gin.Context) {
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	id := types.ID(c.Param("id"))
	ctx := c.Request.Context()

	var b *booking.Booking
	var err error
	if req.DriverID == "" {
		b, err = h.dispatch.AutoAssign(ctx, id)
	} else {
		b, err = h.dispatch.AssignDriver(ctx, dispatch.AssignCommand{
			BookingID: id,
			DriverID:  types.ID(req.DriverID),
			Override:  req.Override,
		})
	}
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBooking(b))
}

func (h *DispatchHandler) Recommendations(c *gin.Context) {
	n := 0
	if v := c.Query("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(c, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	recs, err := h.dispatch.Recommend(c.Request.Context(), types.ID(c.Param("id")), n)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	out := make([]recommendationResponse, len(recs))
	for i, r := range recs {
		out[i] = toRecommendation(r)
	}
	writeJSON(c, http.StatusOK, gin.H{"recommendations": out})
}

// AssignPending runs one auto-assign pass over every pending booking.
func (h *DispatchHandler) AssignPending(c *gin.Context) {
	res, err := h.dispatch.AutoAssignPending(c.Request.Context())
	if err != nil {
		writeBookingError(c, err)
		return
	}
	unassigned := res.Unassigned
	if unassigned == nil {
		unassigned = []types.ID{}
	}
	writeJSON(c, http.StatusOK, gin.H{
		"pending":    res.Pending,
		"assigned":   toBookings(res.Assigned),
		"unassigned": unassigned,
	})
}

func (h *DispatchHandler) Stats(c *gin.Context) {
	st, err := h.dispatch.Statistics(c.Request.Context())
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toStats(st))
}
