package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"feeledger/internal/amqp"
	"feeledger/internal/auth"
	"feeledger/internal/cache"
	"feeledger/internal/cli"
	"feeledger/internal/config"
	apphttp "feeledger/internal/http"
	"feeledger/internal/ledger"
	"feeledger/internal/log"
	"feeledger/internal/services"
)

const scheduleCacheSize = 256

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadConfig((*config.Config).ValidateServer)
	logger := cli.SetupLogger(cfg, "feeledger")

	logger.Info("Starting feeledger",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend)

	store := cli.OpenBackend(context.Background(), logger, cfg)
	defer store.Close()

	schedules := ledger.NewCachedSchedules(store.Stores, scheduleCacheSize, cfg.ScheduleCacheTTL)
	caches := cache.NewManager(logger)
	caches.Register(schedules.Cleaner())
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	engine := ledger.NewEngine(store.Stores, store.Stores, schedules, ledger.Options{
		Classes:        cfg.ClassSet(),
		StrictPayments: cfg.StrictPayments,
	})

	// Events are optional: without a broker the API still serves every route,
	// only the sheet mirror falls behind.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, ledger events disabled", log.FieldError, err)
		} else {
			publisher = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, ledger events will not be published")
	}
	fees := services.NewFeeService(engine, publisher)
	defer fees.Close()

	directory := services.NewDirectoryService(store.Stores, schedules, engine.Classes())

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("Failed to create token issuer", log.FieldError, err)
		os.Exit(1)
	}
	authService := auth.NewService(store.Stores, issuer)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	}, apphttp.Deps{
		Ledger:    fees,
		Directory: directory,
		Auth:      authService,
		Checks:    map[string]apphttp.Pinger{"storage": store},
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", log.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
