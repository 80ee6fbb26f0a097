package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"loanbook/internal/amqp"
	"loanbook/internal/backup"
	"loanbook/internal/core"
	"loanbook/internal/ledger"
)

// SyncPublisher announces loan changes to the mirror worker.
type SyncPublisher interface {
	PublishLoanSync(ctx context.Context, id int64, op amqp.SyncOp) error
}

// EditSession marks which loan, if any, the caller is editing. The zero
// value is a fresh session that creates new loans.
type EditSession struct {
	id      int64
	editing bool
}

// NewSession returns a session that creates a new loan on submit.
func NewSession() EditSession {
	return EditSession{}
}

// EditLoan returns a session that replaces loan id on submit.
func EditLoan(id int64) EditSession {
	return EditSession{id: id, editing: true}
}

// LoanID returns the loan being edited.
func (s EditSession) LoanID() (int64, bool) {
	return s.id, s.editing
}

// LoanService orchestrates loan operations over a ledger store. Every write
// is a load-modify-save cycle of the whole collection, serialised by mu.
type LoanService struct {
	mu        sync.Mutex
	store     ledger.Store
	publisher SyncPublisher
	engine    *StatusEngine
	now       func() time.Time
}

// NewLoanService wires a service. publisher may be nil when sync is disabled;
// engine may be nil for the default rule.
func NewLoanService(store ledger.Store, publisher SyncPublisher, engine *StatusEngine) *LoanService {
	if engine == nil {
		engine = NewStatusEngine(nil)
	}
	return &LoanService{
		store:     store,
		publisher: publisher,
		engine:    engine,
		now:       time.Now,
	}
}

// WithClock replaces the time source, for tests and the reminder worker.
func (s *LoanService) WithClock(now func() time.Time) *LoanService {
	s.now = now
	return s
}

// Now returns the service's current time.
func (s *LoanService) Now() time.Time {
	return s.now()
}

// Submit creates a loan, or replaces the one the session is editing.
// An edit replaces every field but the id, as a fresh submission would.
func (s *LoanService) Submit(ctx context.Context, session EditSession, in core.LoanInput) (core.Loan, error) {
	if err := in.Validate(); err != nil {
		return core.Loan{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loans, err := s.store.LoadLoans(ctx)
	if err != nil {
		return core.Loan{}, fmt.Errorf("load loans: %w", err)
	}

	var loan core.Loan
	if id, editing := session.LoanID(); editing {
		if _, ok := core.FindLoan(loans, id); !ok {
			return core.Loan{}, fmt.Errorf("%w: id %d", core.ErrLoanNotFound, id)
		}
		loan = core.NewLoan(id, in)
	} else {
		loan = core.NewLoan(core.NextID(loans, s.now().UnixMilli()), in)
	}

	if err := s.store.SaveLoans(ctx, core.UpsertLoan(loans, loan)); err != nil {
		return core.Loan{}, fmt.Errorf("save loans: %w", err)
	}

	slog.InfoContext(ctx, "Saved loan",
		"id", loan.ID,
		"edit", session.editing,
		"due_day", loan.DueDay)
	s.publish(ctx, loan.ID, amqp.OpUpsert)
	return loan, nil
}

// Collect marks the loan as collected for the current month.
func (s *LoanService) Collect(ctx context.Context, id int64) (core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loans, err := s.store.LoadLoans(ctx)
	if err != nil {
		return core.Loan{}, fmt.Errorf("load loans: %w", err)
	}
	month := core.MonthKeyOf(s.now())
	updated, err := core.CollectLoan(loans, id, month)
	if err != nil {
		return core.Loan{}, err
	}
	if err := s.store.SaveLoans(ctx, updated); err != nil {
		return core.Loan{}, fmt.Errorf("save loans: %w", err)
	}

	loan, _ := core.FindLoan(updated, id)
	slog.InfoContext(ctx, "Collected loan payment", "id", id, "month", month.String())
	s.publish(ctx, id, amqp.OpUpsert)
	return loan, nil
}

// Delete removes the loan. Unknown ids return ErrLoanNotFound.
func (s *LoanService) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loans, err := s.store.LoadLoans(ctx)
	if err != nil {
		return fmt.Errorf("load loans: %w", err)
	}
	if _, ok := core.FindLoan(loans, id); !ok {
		return fmt.Errorf("%w: id %d", core.ErrLoanNotFound, id)
	}
	if err := s.store.SaveLoans(ctx, core.RemoveLoan(loans, id)); err != nil {
		return fmt.Errorf("save loans: %w", err)
	}

	slog.InfoContext(ctx, "Deleted loan", "id", id)
	s.publish(ctx, id, amqp.OpDelete)
	return nil
}

// Loan returns a single loan, e.g. to prefill an edit form.
func (s *LoanService) Loan(ctx context.Context, id int64) (core.Loan, error) {
	if finder, ok := s.store.(ledger.LoanFinder); ok {
		return finder.FindLoan(ctx, id)
	}
	loans, err := s.store.LoadLoans(ctx)
	if err != nil {
		return core.Loan{}, fmt.Errorf("load loans: %w", err)
	}
	loan, ok := core.FindLoan(loans, id)
	if !ok {
		return core.Loan{}, fmt.Errorf("%w: id %d", core.ErrLoanNotFound, id)
	}
	return loan, nil
}

// View returns a single loan with its current status.
func (s *LoanService) View(ctx context.Context, id int64) (core.LoanView, error) {
	loan, err := s.Loan(ctx, id)
	if err != nil {
		return core.LoanView{}, err
	}
	return s.engine.View(loan, s.now()), nil
}

// Loans returns every loan with its status, in collection order.
func (s *LoanService) Loans(ctx context.Context) ([]core.LoanView, error) {
	loans, err := s.store.LoadLoans(ctx)
	if err != nil {
		return nil, fmt.Errorf("load loans: %w", err)
	}
	return s.engine.ClassifyAll(loans, s.now()), nil
}

// Dashboard partitions the collection for today.
func (s *LoanService) Dashboard(ctx context.Context) (core.Dashboard, error) {
	loans, err := s.store.LoadLoans(ctx)
	if err != nil {
		return core.Dashboard{}, fmt.Errorf("load loans: %w", err)
	}
	return s.engine.Partition(loans, s.now()), nil
}

// Export returns the whole collection in backup form.
func (s *LoanService) Export(ctx context.Context) ([]byte, error) {
	loans, err := s.store.LoadLoans(ctx)
	if err != nil {
		return nil, fmt.Errorf("load loans: %w", err)
	}
	return backup.Encode(loans)
}

// Import replaces the whole collection with a backup and returns the number
// of loans restored. Invalid payloads leave the collection untouched.
func (s *LoanService) Import(ctx context.Context, data []byte) (int, error) {
	loans, err := backup.Decode(data, core.MonthKeyOf(s.now()))
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.store.LoadLoans(ctx)
	if err != nil {
		return 0, fmt.Errorf("load loans: %w", err)
	}
	if err := s.store.SaveLoans(ctx, loans); err != nil {
		return 0, fmt.Errorf("save loans: %w", err)
	}

	slog.InfoContext(ctx, "Restored backup", "loans", len(loans), "replaced", len(previous))
	for _, l := range previous {
		if _, kept := core.FindLoan(loans, l.ID); !kept {
			s.publish(ctx, l.ID, amqp.OpDelete)
		}
	}
	for _, l := range loans {
		s.publish(ctx, l.ID, amqp.OpUpsert)
	}
	return len(loans), nil
}

// publish is best-effort: the local write already succeeded.
func (s *LoanService) publish(ctx context.Context, id int64, op amqp.SyncOp) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLoanSync(ctx, id, op); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"id", id,
			"op", op,
			"error", err)
	}
}
