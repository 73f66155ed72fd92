package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxidispatch/internal/modules/dispatch"
)

type CustomerHandler struct {
	dispatch *dispatch.Service
}

func NewCustomerHandler(svc *dispatch.Service) *CustomerHandler {
	return &CustomerHandler{dispatch: svc}
}

func (h *CustomerHandler) List(c *gin.Context) {
	customers, err := h.dispatch.Customers(c.Request.Context())
	if err != nil {
		writeBookingError(c, err)
		return
	}
	out := make([]customerResponse, len(customers))
	for i, cu := range customers {
		out[i] = toCustomer(cu)
	}
	writeJSON(c, http.StatusOK, gin.H{"customers": out})
}
