package main

import (
	"context"
	"errors"
	"os"
	"time"

	"feeledger/internal/amqp"
	"feeledger/internal/cli"
	"feeledger/internal/config"
	"feeledger/internal/core"
	"feeledger/internal/log"
	"feeledger/internal/sheets"
	gsheet "feeledger/internal/sheets/google"
	sheetsmem "feeledger/internal/sheets/memory"
	"feeledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg, "feeledger-worker")

	logger.Info("Starting feeledger-worker", log.FieldOperation, log.OpStartup, "backend", cfg.DataBackend)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the sync worker")
		os.Exit(1)
	}

	store := cli.OpenBackend(context.Background(), logger, cfg)
	defer store.Close()

	var writer sheets.FeeRowWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			SheetName:     cfg.GoogleSheetName,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Mirroring fee records to Google Sheets", "sheet", cfg.GoogleSheetName)
	} else {
		writer = sheetsmem.New()
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, mirroring to memory only")
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer consumer.Close()

	syncWorker := worker.NewSyncWorker(store.Stores, writer)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	ctx = log.NewContext(ctx, logger)

	if cfg.SheetsResyncOnStart {
		now := time.Now().UTC()
		ay := core.AcademicYearOf(int(now.Month()), now.Year())
		synced, err := syncWorker.ResyncAcademicYear(ctx, ay)
		if err != nil {
			logger.Error("Startup resync incomplete", log.FieldError, err, log.FieldAcademicYear, ay.String(), log.FieldCount, synced)
		} else {
			logger.Info("Startup resync complete", log.FieldAcademicYear, ay.String(), log.FieldCount, synced)
		}
	}

	go func() {
		err := consumer.ConsumeLedgerEvents(ctx, syncWorker.HandleLedgerEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Ledger event consumer stopped", log.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
