// README: API gateway; holds module services and runs the HTTP server with graceful shutdown.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/modules/dispatch"
	"taxidispatch/internal/modules/location"
)

type ServerDeps struct {
	Booking  *booking.Service
	Dispatch *dispatch.Service
	Location *location.Service
	Log      *zap.Logger
	// NearbyRadiusKm is the default radius for nearby-driver queries.
	NearbyRadiusKm float64
}

type Server struct {
	booking  *booking.Service
	dispatch *dispatch.Service
	location *location.Service
	log      *zap.Logger
	radiusKm float64
}

func NewServer(deps ServerDeps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		booking:  deps.Booking,
		dispatch: deps.Dispatch,
		location: deps.Location,
		log:      log.Named("http"),
		radiusKm: deps.NearbyRadiusKm,
	}
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
