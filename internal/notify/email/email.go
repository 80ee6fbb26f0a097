// Package email delivers loan payment reminders over SMTP.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strconv"

	"github.com/jordan-wright/email"

	"loanbook/internal/config"
	"loanbook/internal/core"
)

// Sender handles sending reminder emails via SMTP.
type Sender struct {
	from     string
	to       []string
	currency string
	send     func(e *email.Email) error
}

// NewSender creates a sender from the SMTP and reminder settings.
func NewSender(cfg *config.Config) *Sender {
	addr := cfg.SMTPHost + ":" + strconv.Itoa(cfg.SMTPPort)
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &Sender{
		from:     cfg.SMTPFrom,
		to:       []string{cfg.ReminderEmailTo},
		currency: cfg.CurrencySymbol,
		send: func(e *email.Email) error {
			return e.Send(addr, auth)
		},
	}
}

func (s *Sender) Name() string { return "email" }

// Notify implements services.Notifier.
func (s *Sender) Notify(ctx context.Context, r core.Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.compose(r)
	if err := s.send(e); err != nil {
		slog.ErrorContext(ctx, "Failed to send reminder email", "to", s.to, "loan_id", r.LoanID, "error", err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	slog.InfoContext(ctx, "Reminder email sent", "to", s.to, "subject", e.Subject)
	return nil
}

func (s *Sender) compose(r core.Reminder) *email.Email {
	e := email.NewEmail()
	e.From = s.from
	e.To = s.to
	e.Subject = Subject(r)
	e.Text = []byte(Body(r, s.currency))
	return e
}

// Subject returns the mail subject for r.
func Subject(r core.Reminder) string {
	switch r.Status {
	case core.StatusOverdue:
		return fmt.Sprintf("Overdue interest payment: %s", r.Name)
	case core.StatusPending:
		return fmt.Sprintf("Interest payment due today: %s", r.Name)
	default:
		return fmt.Sprintf("Upcoming interest payment: %s", r.Name)
	}
}

// Body returns the plain text mail body for r.
func Body(r core.Reminder, currency string) string {
	body := fmt.Sprintf("Loan to %s (%s%s).\n\n", r.Name, currency, r.Amount.String())
	switch r.Status {
	case core.StatusOverdue:
		body += fmt.Sprintf(
			"The interest payment of %s%s was due on %s and has not been collected.\n",
			currency, r.Interest.String(), r.DueDate.String(),
		)
	case core.StatusPending:
		body += fmt.Sprintf(
			"The interest payment of %s%s is due today, %s.\n",
			currency, r.Interest.String(), r.DueDate.String(),
		)
	default:
		body += fmt.Sprintf(
			"The interest payment of %s%s is due on %s.\n",
			currency, r.Interest.String(), r.DueDate.String(),
		)
	}
	body += "\nMark it as collected once the payment arrives.\n"
	return body
}
