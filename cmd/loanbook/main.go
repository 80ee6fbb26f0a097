package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"loanbook/internal/amqp"
	"loanbook/internal/backend"
	"loanbook/internal/cli"
	apphttp "loanbook/internal/http"
	"loanbook/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap()

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	store, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer store.Close()

	rule, err := services.GetDueDateRule(cfg.DueDateRule)
	if err != nil {
		logger.Error("Invalid due date rule", "error", err)
		os.Exit(1)
	}

	// Sync publishing is optional; loans are saved either way
	var publisher services.SyncPublisher
	opts := []apphttp.Option{
		apphttp.WithReadinessCheck(cfg.DataBackend, store.Ping),
	}
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, "")
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without sync", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	loans := services.NewLoanService(store.Store, publisher, services.NewStatusEngine(rule))
	srv := apphttp.NewServer(":"+cfg.Port, loans, opts...)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting loanbook server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"due_date_rule", cfg.DueDateRule,
			"sync_enabled", publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
