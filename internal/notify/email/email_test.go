package email

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jordan-wright/email"

	"loanbook/internal/config"
	"loanbook/internal/core"
)

func reminder(status core.Status) core.Reminder {
	return core.Reminder{
		LoanID:   7,
		Name:     "Alice",
		Amount:   core.Money{Cents: 100000},
		Interest: core.Money{Cents: 2550},
		Status:   status,
		DueDate:  core.NewDate(2024, 2, 29),
	}
}

func TestSubjectAndBody(t *testing.T) {
	tests := []struct {
		status      core.Status
		wantSubject string
		wantBody    string
	}{
		{core.StatusOverdue, "Overdue interest payment: Alice", "€25.5 was due on 2024-02-29"},
		{core.StatusPending, "Interest payment due today: Alice", "€25.5 is due today, 2024-02-29"},
		{core.StatusUpcoming, "Upcoming interest payment: Alice", "€25.5 is due on 2024-02-29"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			r := reminder(tt.status)
			if got := Subject(r); got != tt.wantSubject {
				t.Errorf("Subject() = %q, want %q", got, tt.wantSubject)
			}
			body := Body(r, "€")
			if !strings.Contains(body, tt.wantBody) {
				t.Errorf("Body() = %q, want it to contain %q", body, tt.wantBody)
			}
			if !strings.HasPrefix(body, "Loan to Alice (€1000).") {
				t.Errorf("Body() = %q, missing loan line", body)
			}
		})
	}
}

func TestNotify(t *testing.T) {
	s := NewSender(&config.Config{
		SMTPHost:        "smtp.example.com",
		SMTPPort:        587,
		SMTPFrom:        "loanbook@example.com",
		ReminderEmailTo: "me@example.com",
		CurrencySymbol:  "$",
	})

	var sent *email.Email
	s.send = func(e *email.Email) error {
		sent = e
		return nil
	}

	if err := s.Notify(context.Background(), reminder(core.StatusOverdue)); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if sent == nil {
		t.Fatal("Notify() sent nothing")
	}
	if sent.From != "loanbook@example.com" || len(sent.To) != 1 || sent.To[0] != "me@example.com" {
		t.Errorf("envelope = %s -> %v", sent.From, sent.To)
	}
	if !strings.Contains(string(sent.Text), "$25.5") {
		t.Errorf("text = %q, want currency $", sent.Text)
	}
	if s.Name() != "email" {
		t.Errorf("Name() = %q", s.Name())
	}
}

func TestNotifyError(t *testing.T) {
	s := NewSender(&config.Config{SMTPHost: "localhost", SMTPPort: 25})
	boom := errors.New("connection refused")
	s.send = func(*email.Email) error { return boom }

	if err := s.Notify(context.Background(), reminder(core.StatusPending)); !errors.Is(err, boom) {
		t.Errorf("Notify() error = %v, want %v", err, boom)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Notify(ctx, reminder(core.StatusPending)); !errors.Is(err, context.Canceled) {
		t.Errorf("Notify() error = %v, want context.Canceled", err)
	}
}
