package main

import (
	"context"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"loanbook/internal/amqp"
	"loanbook/internal/backend"
	"loanbook/internal/cli"
	"loanbook/internal/notify/email"
	"loanbook/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap()
	logger.Info("Starting reminder-worker")

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

	rule, err := services.GetDueDateRule(cfg.DueDateRule)
	if err != nil {
		logger.Error("Invalid due date rule", "error", err)
		os.Exit(1)
	}

	notifiers := []services.Notifier{services.LogNotifier{}}
	if cfg.EmailEnabled() {
		notifiers = append(notifiers, email.NewSender(cfg))
		logger.Info("Email reminders enabled", "to", cfg.ReminderEmailTo, "smtp_host", cfg.SMTPHost)
	}
	if cfg.AMQPURL != "" && cfg.AMQPReminderQueue != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPReminderQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, reminders will not be published", "error", err)
		} else {
			defer amqpClient.Close()
			notifiers = append(notifiers, services.PublishNotifier{Publisher: amqpClient})
			logger.Info("Publishing reminders", "queue", cfg.AMQPReminderQueue)
		}
	}

	processor := services.NewReminderProcessor(store.Store, store.Reminders,
		services.NewStatusEngine(rule), cfg.ReminderLeadDays, notifiers...)

	loc := cfg.Location()
	run := func() {
		now := time.Now().In(loc)
		count, err := processor.ProcessReminders(ctx, now)
		if err != nil {
			logger.Error("Reminder processing failed", "error", err)
			return
		}
		logger.Info("Reminder processing complete", "sent", count, "date", now.Format("2006-01-02"))
	}

	// Run once on startup so a restart after the scheduled time still reminds
	logger.Info("Running initial reminder processing...")
	run()

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(cfg.ReminderSchedule, run); err != nil {
		logger.Error("Invalid reminder schedule", "error", err, "schedule", cfg.ReminderSchedule)
		os.Exit(1)
	}
	c.Start()
	logger.Info("Reminder schedule configured",
		"schedule", cfg.ReminderSchedule,
		"timezone", loc.String(),
		"lead_days", cfg.ReminderLeadDays)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	select {
	case <-c.Stop().Done():
		logger.Info("Reminder worker shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout reached")
	}
}
