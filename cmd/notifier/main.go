package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/Freeeeeet/tutorbook/internal/app"
	"github.com/Freeeeeet/tutorbook/internal/config"
	"github.com/Freeeeeet/tutorbook/internal/events"
	"github.com/Freeeeeet/tutorbook/internal/notify"
	"github.com/Freeeeeet/tutorbook/internal/repository"
	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/go-telegram/bot"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateNotifier(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel, "tutorbook-notifier")
	defer logger.Sync()

	logger.Sugar().Infow("Starting notifier",
		"environment", cfg.Environment,
		"queue", cfg.AMQPQueue,
		"token_length", len(cfg.TelegramToken))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := app.NewPostgresPool(ctx, cfg.DBDSN, cfg.DBMaxConns, logger)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	users := service.NewUserService(userRepo, logger)

	b, err := bot.New(cfg.TelegramToken)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	controller := notify.NewBotController(b, users, logger)
	if err := controller.RegisterHandlers(ctx); err != nil {
		logger.Warn("Bot commands were not registered", zap.Error(err))
	}

	dispatcher := notify.NewDispatcher(userRepo, b, logger)
	consumer := events.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, nil, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return controller.Start(gctx)
	})
	g.Go(func() error {
		return consumer.Run(gctx, dispatcher.Handle)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Notifier stopped with error", zap.Error(err))
		return
	}
	logger.Info("Notifier stopped")
}
