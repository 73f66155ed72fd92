// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxidispatch/internal/http/handlers"
	"taxidispatch/internal/http/middleware"
)

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logging(s.log), middleware.Recovery(s.log))

	api := r.Group("/api")

	bookingHandler := handlers.NewBookingHandler(s.booking, s.dispatch)
	api.POST("/bookings", bookingHandler.Create)
	api.GET("/bookings", bookingHandler.List)
	api.GET("/bookings/:id", bookingHandler.Get)
	api.PATCH("/bookings/:id", bookingHandler.Edit)
	api.POST("/bookings/:id/cancel", bookingHandler.Cancel)
	api.POST("/bookings/:id/complete", bookingHandler.Complete)
	api.GET("/customers/:id/bookings", bookingHandler.ListByCustomer)

	dispatchHandler := handlers.NewDispatchHandler(s.dispatch)
	api.POST("/bookings/:id/assign", dispatchHandler.Assign)
	api.GET("/bookings/:id/recommendations", dispatchHandler.Recommendations)
	api.POST("/bookings/assign-pending", dispatchHandler.AssignPending)
	api.GET("/stats", dispatchHandler.Stats)

	customerHandler := handlers.NewCustomerHandler(s.dispatch)
	api.GET("/customers", customerHandler.List)

	driverHandler := handlers.NewDriverHandler(s.dispatch, s.booking, s.location, s.radiusKm)
	api.GET("/drivers", driverHandler.List)
	api.GET("/drivers/nearby", driverHandler.Nearby)
	api.GET("/drivers/:id/bookings", driverHandler.Bookings)
	api.GET("/drivers/:id/availability", driverHandler.Availability)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
