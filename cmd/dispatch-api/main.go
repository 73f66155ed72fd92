// README: Entry point; loads config, opens the record store, wires services and serves the dispatch API.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"taxidispatch/internal/config"
	"taxidispatch/internal/events"
	httptransport "taxidispatch/internal/http"
	"taxidispatch/internal/infra"
	"taxidispatch/internal/maps"
	"taxidispatch/internal/modules/booking"
	"taxidispatch/internal/modules/dispatch"
	"taxidispatch/internal/modules/location"
	"taxidispatch/internal/store/flatfile"
	"taxidispatch/internal/store/postgres"
)

// recordStore is satisfied by both the flat-file and the Postgres store.
type recordStore interface {
	booking.Repository
	booking.Customers
	dispatch.Store
	location.DriverSource
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger(cfg.Log.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("dispatch api stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(infra.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		defer func() { _ = kp.Close() }()
		publisher = kp
		logger.Info("publishing booking events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	var eta dispatch.ETAEstimator
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			return fmt.Errorf("maps client: %w", err)
		}
		eta = routes
	}

	var index location.Index
	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		index = location.NewGeoIndex(rdb)
	}

	bookingSvc := booking.NewService(st, st, publisher, logger)
	dispatchSvc := dispatch.NewService(st, bookingSvc, eta,
		dispatch.Config{Recommendations: cfg.Dispatch.Recommendations}, logger)
	locationSvc := location.NewService(st, index, logger)

	if _, err := locationSvc.Reindex(ctx); err != nil {
		logger.Warn("driver index not loaded, nearby queries will scan", zap.Error(err))
	}

	server := httptransport.NewServer(httptransport.ServerDeps{
		Booking:        bookingSvc,
		Dispatch:       dispatchSvc,
		Location:       locationSvc,
		Log:            logger,
		NearbyRadiusKm: cfg.Dispatch.NearbyRadiusKm,
	})

	logger.Info("dispatch api listening",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("store", cfg.Store.Backend),
	)
	return server.Run(ctx, cfg.HTTP.Addr)
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (recordStore, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewStore(pool, logger), pool.Close, nil
	default:
		st, err := flatfile.Open(cfg.Store.DataDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	}
}
