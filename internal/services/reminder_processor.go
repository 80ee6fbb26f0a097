package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"loanbook/internal/core"
	"loanbook/internal/ledger"
)

// Notifier delivers a single reminder.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, r core.Reminder) error
}

// ReminderProcessor sends reminders for loans that need attention. Each loan
// is reminded at most once per day.
type ReminderProcessor struct {
	store     ledger.Store
	log       ledger.ReminderLog
	engine    *StatusEngine
	notifiers []Notifier
	leadDays  int
}

// NewReminderProcessor creates a processor. leadDays > 0 also reminds about
// upcoming loans due within that many days.
func NewReminderProcessor(store ledger.Store, log ledger.ReminderLog, engine *StatusEngine, leadDays int, notifiers ...Notifier) *ReminderProcessor {
	if engine == nil {
		engine = NewStatusEngine(nil)
	}
	return &ReminderProcessor{
		store:     store,
		log:       log,
		engine:    engine,
		notifiers: notifiers,
		leadDays:  leadDays,
	}
}

// Due returns the reminders that apply on the day now falls on, in
// collection order: action-required loans first, then upcoming loans inside
// the lead window.
func (p *ReminderProcessor) Due(loans []core.Loan, now time.Time) []core.Reminder {
	dash := p.engine.Partition(loans, now)
	out := make([]core.Reminder, 0, len(dash.ActionRequired))
	for _, item := range dash.ActionRequired {
		out = append(out, core.NewReminder(core.LoanView{
			Loan:    item.Loan,
			Status:  item.Status,
			DueDate: p.engine.DueDate(item.Loan, now),
		}))
	}
	if p.leadDays <= 0 {
		return out
	}
	today := core.DateOf(now)
	for _, item := range dash.Upcoming {
		days := int(item.DueDate.Sub(today.Time).Hours() / 24)
		if days <= p.leadDays {
			out = append(out, core.NewReminder(core.LoanView{
				Loan:    item.Loan,
				Status:  core.StatusUpcoming,
				DueDate: item.DueDate,
			}))
		}
	}
	return out
}

// ProcessReminders sends every due reminder not yet sent today and returns
// how many were delivered.
func (p *ReminderProcessor) ProcessReminders(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.log == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	loans, err := p.store.LoadLoans(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load loans: %w", err)
	}

	reminders := p.Due(loans, now)
	today := core.DateOf(now)

	slog.InfoContext(ctx, "Processing reminders",
		"total_loans", len(loans),
		"due_reminders", len(reminders),
		"processing_date", today.String())

	sent := 0
	for _, r := range reminders {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		done, err := p.log.WasReminded(ctx, r.LoanID, today)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to check reminder log",
				"loan_id", r.LoanID,
				"error", err)
			continue
		}
		if done {
			continue
		}

		if err := p.notify(ctx, r); err != nil {
			slog.ErrorContext(ctx, "Failed to deliver reminder",
				"loan_id", r.LoanID,
				"error", err)
			continue
		}

		if err := p.log.MarkReminded(ctx, r.LoanID, today); err != nil {
			slog.ErrorContext(ctx, "Failed to record reminder",
				"loan_id", r.LoanID,
				"error", err)
			// Continue anyway - reminder was delivered
		}

		sent++
		slog.InfoContext(ctx, "Sent reminder",
			"loan_id", r.LoanID,
			"status", r.Status,
			"due_date", r.DueDate.String())
	}

	slog.InfoContext(ctx, "Reminder processing complete",
		"sent", sent,
		"total_checked", len(reminders))

	return sent, nil
}

// notify succeeds when at least one notifier delivered the reminder.
func (p *ReminderProcessor) notify(ctx context.Context, r core.Reminder) error {
	if len(p.notifiers) == 0 {
		return nil
	}
	var errs []error
	for _, n := range p.notifiers {
		if err := n.Notify(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	if len(errs) == len(p.notifiers) {
		return errors.Join(errs...)
	}
	for _, err := range errs {
		slog.WarnContext(ctx, "Reminder notifier failed", "loan_id", r.LoanID, "error", err)
	}
	return nil
}

// LogNotifier writes reminders to the structured log.
type LogNotifier struct{}

func (LogNotifier) Name() string { return "log" }

func (LogNotifier) Notify(ctx context.Context, r core.Reminder) error {
	slog.InfoContext(ctx, "Loan payment reminder",
		"loan_id", r.LoanID,
		"name", r.Name,
		"interest", r.Interest.String(),
		"status", r.Status,
		"due_date", r.DueDate.String())
	return nil
}

// ReminderPublisher is satisfied by the AMQP client.
type ReminderPublisher interface {
	PublishReminder(ctx context.Context, r core.Reminder) error
}

// PublishNotifier forwards reminders to a message broker.
type PublishNotifier struct {
	Publisher ReminderPublisher
}

func (PublishNotifier) Name() string { return "amqp" }

func (n PublishNotifier) Notify(ctx context.Context, r core.Reminder) error {
	return n.Publisher.PublishReminder(ctx, r)
}
