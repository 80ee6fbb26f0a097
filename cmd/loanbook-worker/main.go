package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"loanbook/internal/amqp"
	"loanbook/internal/backend"
	"loanbook/internal/cli"
	"loanbook/internal/ledger/google"
	"loanbook/internal/services"
	"loanbook/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap()
	logger.Info("Starting loanbook-worker")

	if !cfg.SheetsEnabled() {
		logger.Error("GOOGLE_SPREADSHEET_ID is required for the sync worker")
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the sync worker")
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err == nil {
		err = backendCfg.ValidateShared()
	}
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	store, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	sheets, err := google.New(ctx, google.Options{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	if err := sheets.EnsureHeader(ctx); err != nil {
		logger.Error("Failed to write sheet header", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, "")
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	rule, err := services.GetDueDateRule(cfg.DueDateRule)
	if err != nil {
		logger.Error("Invalid due date rule", "error", err)
		os.Exit(1)
	}
	syncWorker := worker.NewSyncWorker(store.Store, sheets, services.NewStatusEngine(rule), cfg.SyncBatchSize)

	// Catch up on anything missed while the worker was down
	logger.Info("Performing startup resync...")
	if _, err := syncWorker.ResyncAll(ctx); err != nil {
		logger.Error("Startup resync failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeLoanSync(gctx, syncWorker.HandleSyncMessage)
	})
	g.Go(func() error {
		return syncWorker.RunPeriodicResync(gctx, cfg.SyncInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
