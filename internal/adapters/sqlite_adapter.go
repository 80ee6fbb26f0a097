package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"loanbook/internal/core"
	"loanbook/internal/ledger"
	"loanbook/internal/storage"
)

// SQLiteAdapter adapts SQLiteRepository rows to the ledger interfaces so the
// loan service works unchanged on the SQLite backend.
type SQLiteAdapter struct {
	storage *storage.SQLiteRepository
}

var (
	_ ledger.Store       = (*SQLiteAdapter)(nil)
	_ ledger.ReminderLog = (*SQLiteAdapter)(nil)
	_ ledger.LoanFinder  = (*SQLiteAdapter)(nil)
)

func NewSQLiteAdapter(storage *storage.SQLiteRepository) *SQLiteAdapter {
	return &SQLiteAdapter{storage: storage}
}

// LoadLoans implements ledger.Store
func (a *SQLiteAdapter) LoadLoans(ctx context.Context) ([]core.Loan, error) {
	rows, err := a.storage.ListLoans(ctx)
	if err != nil {
		return nil, err
	}
	loans := make([]core.Loan, 0, len(rows))
	for _, row := range rows {
		l, err := RowToLoan(row)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, nil
}

// FindLoan implements ledger.LoanFinder
func (a *SQLiteAdapter) FindLoan(ctx context.Context, id int64) (core.Loan, error) {
	row, err := a.storage.GetLoan(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Loan{}, fmt.Errorf("%w: id %d", core.ErrLoanNotFound, id)
	}
	if err != nil {
		return core.Loan{}, err
	}
	return RowToLoan(row)
}

// SaveLoans implements ledger.Store
func (a *SQLiteAdapter) SaveLoans(ctx context.Context, loans []core.Loan) error {
	params := make([]storage.InsertLoanParams, 0, len(loans))
	for _, l := range loans {
		params = append(params, LoanToParams(l))
	}
	return a.storage.ReplaceLoans(ctx, params)
}

// WasReminded implements ledger.ReminderLog
func (a *SQLiteAdapter) WasReminded(ctx context.Context, loanID int64, day core.Date) (bool, error) {
	return a.storage.WasReminded(ctx, loanID, day.String())
}

// MarkReminded implements ledger.ReminderLog
func (a *SQLiteAdapter) MarkReminded(ctx context.Context, loanID int64, day core.Date) error {
	return a.storage.MarkReminded(ctx, loanID, day.String())
}

// Ping reports whether the database is reachable and the loans table can be
// read.
func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	if err := a.storage.Ping(ctx); err != nil {
		return err
	}
	_, err := a.storage.CountLoans(ctx)
	return err
}

// RowToLoan converts a storage row. An empty start date stays the zero date.
func RowToLoan(row storage.Loan) (core.Loan, error) {
	l := core.Loan{
		ID:       row.ID,
		Name:     row.Name,
		Amount:   core.Money{Cents: row.AmountCents},
		Interest: core.Money{Cents: row.InterestCents},
		DueDay:   int(row.DueDay),
	}
	if row.StartDate != "" {
		d, err := core.ParseDate(row.StartDate)
		if err != nil {
			return core.Loan{}, fmt.Errorf("loan %d: %w", row.ID, err)
		}
		l.StartDate = d
	}
	if row.LastCollectedMonth.Valid {
		k := core.MonthKey(row.LastCollectedMonth.Int64)
		l.LastCollectedMonth = &k
	}
	return l, nil
}

// LoanToParams converts a loan into insert parameters.
func LoanToParams(l core.Loan) storage.InsertLoanParams {
	p := storage.InsertLoanParams{
		ID:            l.ID,
		Name:          l.Name,
		AmountCents:   l.Amount.Cents,
		InterestCents: l.Interest.Cents,
		StartDate:     l.StartDate.String(),
		DueDay:        int64(l.DueDay),
	}
	if l.LastCollectedMonth != nil {
		p.LastCollectedMonth = sql.NullInt64{Int64: int64(*l.LastCollectedMonth), Valid: true}
	}
	return p
}
