// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/broker"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/database"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/handler"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/idempotency"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/realtime"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type publisher interface {
	service.Publisher
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := config.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Storage ────────────────────────────────────────────────────────
	var (
		events   service.EventStore
		bookings service.BookingStore
	)
	switch cfg.Store.Driver {
	case config.DriverMemory:
		store := repository.NewMemoryStore()
		events, bookings = store.Events(), store.Bookings()
		logger.Warn("using in-memory store, data is lost on restart")

	default:
		pool, err := database.NewPool(ctx, cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		logger.Info("connected to postgres", zap.String("host", cfg.Postgres.Host), zap.String("db", cfg.Postgres.DBName))

		if cfg.Postgres.Migrate {
			if err := database.Migrate(database.MigrateURL(cfg.Postgres), logger); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}

		events, bookings = repository.NewEventRepository(pool), repository.NewBookingRepository(pool)
	}

	// ── 2. Idempotency window ─────────────────────────────────────────────
	var idem idempotency.Store
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable yet, idempotency claims will fail open", zap.Error(err))
		}
		idem = idempotency.NewRedisStore(rdb, cfg.Booking.IdempotencyTTL)
	} else {
		idem = idempotency.NewMemoryStore(cfg.Booking.IdempotencyTTL)
	}

	// ── 3. Booking events ─────────────────────────────────────────────────
	var pub publisher = broker.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		logger.Info("publishing booking events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Warn("close broker producer", zap.Error(err))
		}
	}()

	// ── 4. Realtime hub ───────────────────────────────────────────────────
	hub := realtime.NewHub(logger)
	go hub.Run()
	defer hub.Stop()

	// ── 5. Wire up layers ─────────────────────────────────────────────────
	inventory := service.NewInventory(events, hub, logger)
	eventSvc := service.NewEventService(events, bookings, inventory, hub, logger)
	bookingSvc := service.NewBookingService(inventory, bookings, idem, hub, pub, logger)
	// Booking events still in flight are flushed before the producer closes.
	defer bookingSvc.Wait()

	router := handler.NewRouter(handler.Routes{
		Events:         handler.NewEventHandler(eventSvc, logger),
		Bookings:       handler.NewBookingHandler(bookingSvc, logger),
		Realtime:       hub.ServeWS(realtime.Upgrader(cfg.HTTP.AllowedOrigins)),
		Limiter:        handler.NewRateLimiter(cfg.Booking.RateLimitRPS, cfg.Booking.RateLimitBurst),
		Logger:         logger,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		TrustProxy:     cfg.HTTP.TrustProxy,
	})

	// ── 6. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Websocket connections are hijacked and not tracked by Shutdown.
	hub.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
