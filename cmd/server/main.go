package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/app"
	"github.com/Freeeeeet/tutorbook/internal/clock"
	"github.com/Freeeeeet/tutorbook/internal/config"
	"github.com/Freeeeeet/tutorbook/internal/events"
	"github.com/Freeeeeet/tutorbook/internal/handler"
	"github.com/Freeeeeet/tutorbook/internal/middleware"
	"github.com/Freeeeeet/tutorbook/internal/repository"
	"github.com/Freeeeeet/tutorbook/internal/repository/base"
	"github.com/Freeeeeet/tutorbook/internal/repository/memory"
	"github.com/Freeeeeet/tutorbook/internal/router"
	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/Freeeeeet/tutorbook/internal/validator"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel, "tutorbook-server")
	defer logger.Sync()

	logger.Info("Starting tutorbook server",
		zap.String("environment", cfg.Environment),
		zap.String("store", cfg.Store),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("timezone", cfg.Timezone.String()))

	validator.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.HealthCheck{}

	var stores service.Stores
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := app.NewPostgresPool(ctx, cfg.DBDSN, cfg.DBMaxConns, logger)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer pool.Close()

		if cfg.MigrationsEnabled {
			migrator, err := app.NewMigrator(pool, logger)
			if err != nil {
				logger.Fatal("Failed to init migrator", zap.Error(err))
			}
			if err := migrator.Run(ctx); err != nil {
				logger.Fatal("Failed to apply migrations", zap.Error(err))
			}
			_ = migrator.Close()
		}

		stores = service.Stores{
			Tx:       base.NewTxManager(pool),
			Classes:  repository.NewClassRepository(pool),
			Bookings: repository.NewBookingRepository(pool),
			Users:    repository.NewUserRepository(pool),
		}
		checks["postgres"] = pool.Ping
	case config.StoreMemory:
		logger.Warn("Using in-memory store, data is lost on restart")
		store := memory.NewStore(clock.System{})
		stores = service.Stores{
			Tx:       store.TxManager(),
			Classes:  store.Classes(),
			Bookings: store.Bookings(),
			Users:    store.Users(),
		}
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = app.NewRedisClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		logger.Warn("REDIS_URL not set, rate limiting disabled")
	}

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if cfg.AMQPURL != "" {
		amqpPublisher := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	scheduling := service.NewSchedulingService(stores, service.Options{
		Clock:                 clock.System{},
		Location:              cfg.Timezone,
		Publisher:             publisher,
		EnforceTutorConflicts: cfg.EnforceTutorConflicts,
	}, logger)

	limiter := middleware.NewRateLimiter(rdb, middleware.RateLimitConfig{
		Capacity:       cfg.RateLimitCapacity,
		RefillTokens:   cfg.RateLimitRefill,
		RefillInterval: cfg.RateLimitInterval,
	}, logger)

	r := router.SetupRouter(cfg, &router.Handlers{
		Class:   handler.NewClassHandler(scheduling, logger),
		Booking: handler.NewBookingHandler(scheduling, logger),
		User:    handler.NewUserHandler(scheduling.Users, logger),
		System:  handler.NewSystemHandler(checks),
	}, limiter, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheduler := app.NewScheduler(scheduling, cfg.SchedulerInterval, cfg.AutoCompleteBookings, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")

		scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return
	}

	logger.Info("Shutdown complete")
}
