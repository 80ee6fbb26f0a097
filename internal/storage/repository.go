package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a loan row does not exist.
var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps transactions serial.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListLoans returns every loan row in collection order.
func (r *SQLiteRepository) ListLoans(ctx context.Context) ([]Loan, error) {
	rows, err := r.queries.ListLoans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return rows, nil
}

// CountLoans returns the number of stored loans.
func (r *SQLiteRepository) CountLoans(ctx context.Context) (int64, error) {
	n, err := r.queries.CountLoans(ctx)
	if err != nil {
		return 0, fmt.Errorf("count loans: %w", err)
	}
	return n, nil
}

// GetLoan returns a single loan row.
func (r *SQLiteRepository) GetLoan(ctx context.Context, id int64) (Loan, error) {
	row, err := r.queries.GetLoan(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Loan{}, fmt.Errorf("loan %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Loan{}, fmt.Errorf("get loan %d: %w", id, err)
	}
	return row, nil
}

// ReplaceLoans swaps the whole collection in one transaction. Positions are
// taken from slice order.
func (r *SQLiteRepository) ReplaceLoans(ctx context.Context, loans []InsertLoanParams) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.DeleteAllLoans(ctx); err != nil {
		return fmt.Errorf("clear loans: %w", err)
	}
	for i, l := range loans {
		l.Position = int64(i)
		if err := q.InsertLoan(ctx, l); err != nil {
			return fmt.Errorf("insert loan %d: %w", l.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.DebugContext(ctx, "Loans saved to SQLite", "count", len(loans))
	return nil
}

// WasReminded reports whether a reminder for loanID was logged on day (YYYY-MM-DD).
func (r *SQLiteRepository) WasReminded(ctx context.Context, loanID int64, day string) (bool, error) {
	ok, err := r.queries.HasReminder(ctx, ReminderLog{LoanID: loanID, Day: day})
	if err != nil {
		return false, fmt.Errorf("check reminder log: %w", err)
	}
	return ok, nil
}

// MarkReminded logs a reminder and prunes entries from earlier days.
func (r *SQLiteRepository) MarkReminded(ctx context.Context, loanID int64, day string) error {
	if err := r.queries.InsertReminder(ctx, ReminderLog{LoanID: loanID, Day: day}); err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	n, err := r.queries.DeleteRemindersBefore(ctx, day)
	if err != nil {
		slog.WarnContext(ctx, "Failed to prune reminder log", "error", err)
		return nil
	}
	if n > 0 {
		slog.DebugContext(ctx, "Pruned reminder log", "removed", n)
	}
	return nil
}
