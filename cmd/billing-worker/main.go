package main

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"feeledger/internal/amqp"
	"feeledger/internal/cli"
	"feeledger/internal/config"
	"feeledger/internal/core"
	"feeledger/internal/ledger"
	"feeledger/internal/log"
	"feeledger/internal/services"
)

// cronLogger routes cron's own messages through the process logger.
type cronLogger struct{ logger *log.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Error(msg, append(keysAndValues, log.FieldError, err)...)
}

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg, "billing-worker").WithComponent(log.ComponentBilling)

	scheme, _ := core.ParseScheme(cfg.BillingScheme)
	logger.Info("Starting billing-worker",
		log.FieldOperation, log.OpStartup,
		"cron", cfg.BillingCron,
		"scheme", scheme)

	store := cli.OpenBackend(context.Background(), logger, cfg)
	defer store.Close()

	engine := ledger.NewEngine(store.Stores, store.Stores, store.Stores, ledger.Options{
		Classes:        cfg.ClassSet(),
		StrictPayments: cfg.StrictPayments,
	})

	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, generated records will not sync", log.FieldError, err)
		} else {
			publisher = client
		}
	}
	fees := services.NewFeeService(engine, publisher)
	defer fees.Close()

	processor, err := services.NewBillingProcessor(store.Stores, fees, scheme)
	if err != nil {
		logger.Error("Failed to create billing processor", log.FieldError, err)
		os.Exit(1)
	}

	scheduler := cron.New(cron.WithChain(
		cron.Recover(cronLogger{logger}),
		cron.SkipIfStillRunning(cronLogger{logger}),
	))

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
		}
	})
	ctx = log.NewContext(ctx, logger)

	run := func() {
		if _, err := processor.ProcessDueFees(ctx, time.Now().UTC()); err != nil {
			logger.Error("Billing run failed", log.FieldError, err, log.FieldOperation, log.OpGenerate)
		}
	}

	if _, err := scheduler.AddFunc(cfg.BillingCron, run); err != nil {
		logger.Error("Invalid billing schedule", log.FieldError, err, "cron", cfg.BillingCron)
		os.Exit(1)
	}

	// Records are keyed by period, so catching up on start never duplicates.
	run()
	scheduler.Start()

	cli.WaitForShutdown(ctx, done)
}
