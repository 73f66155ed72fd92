// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/modules/dispatch"
	"taxidispatch/internal/modules/location"
	"taxidispatch/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeBookingError(c *gin.Context, err error) {
	var schedErr *dispatch.InvalidScheduleError
	switch {
	case errors.As(err, &schedErr),
		errors.Is(err, booking.ErrBadRequest),
		errors.Is(err, store.ErrInvalidField),
		errors.Is(err, location.ErrBadRadius):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrNotFound),
		errors.Is(err, booking.ErrCustomerNotFound),
		errors.Is(err, dispatch.ErrDriverNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrInvalidState),
		errors.Is(err, booking.ErrNotEditable),
		errors.Is(err, dispatch.ErrDriverUnavailable),
		errors.Is(err, dispatch.ErrNoDriverAvailable),
		errors.Is(err, store.ErrDuplicateID):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
