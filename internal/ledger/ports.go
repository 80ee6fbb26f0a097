package ledger

import (
	"context"
	"loanbook/internal/core"
)

// Ports for outbound adapters.
type (
	// Store persists the loan collection as a whole. LoadLoans returns the
	// collection in stored order; SaveLoans replaces it atomically.
	Store interface {
		LoadLoans(ctx context.Context) ([]core.Loan, error)
		SaveLoans(ctx context.Context, loans []core.Loan) error
	}

	// LoanFinder is implemented by stores that can fetch one loan without
	// loading the collection. Unknown ids return core.ErrLoanNotFound.
	LoanFinder interface {
		FindLoan(ctx context.Context, id int64) (core.Loan, error)
	}

	// Mirror keeps an external, read-only copy of the loans (e.g. a sheet).
	Mirror interface {
		UpsertLoan(ctx context.Context, v core.LoanView) error
		DeleteLoan(ctx context.Context, id int64) error
	}

	// ReminderLog remembers which loans were already reminded on which day.
	ReminderLog interface {
		WasReminded(ctx context.Context, loanID int64, day core.Date) (bool, error)
		MarkReminded(ctx context.Context, loanID int64, day core.Date) error
	}
)
