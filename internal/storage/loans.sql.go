package storage

import (
	"context"
	"database/sql"
)

const listLoans = `
SELECT id, position, name, amount_cents, interest_cents, start_date, due_day, last_collected_month
FROM loans
ORDER BY position, id
`

func (q *Queries) ListLoans(ctx context.Context) ([]Loan, error) {
	rows, err := q.db.QueryContext(ctx, listLoans)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Loan
	for rows.Next() {
		var i Loan
		if err := rows.Scan(
			&i.ID,
			&i.Position,
			&i.Name,
			&i.AmountCents,
			&i.InterestCents,
			&i.StartDate,
			&i.DueDay,
			&i.LastCollectedMonth,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getLoan = `
SELECT id, position, name, amount_cents, interest_cents, start_date, due_day, last_collected_month
FROM loans
WHERE id = ?
`

func (q *Queries) GetLoan(ctx context.Context, id int64) (Loan, error) {
	row := q.db.QueryRowContext(ctx, getLoan, id)
	var i Loan
	err := row.Scan(
		&i.ID,
		&i.Position,
		&i.Name,
		&i.AmountCents,
		&i.InterestCents,
		&i.StartDate,
		&i.DueDay,
		&i.LastCollectedMonth,
	)
	return i, err
}

const deleteAllLoans = `DELETE FROM loans`

func (q *Queries) DeleteAllLoans(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllLoans)
	return err
}

const insertLoan = `
INSERT INTO loans (id, position, name, amount_cents, interest_cents, start_date, due_day, last_collected_month)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertLoanParams struct {
	ID                 int64
	Position           int64
	Name               string
	AmountCents        int64
	InterestCents      int64
	StartDate          string
	DueDay             int64
	LastCollectedMonth sql.NullInt64
}

func (q *Queries) InsertLoan(ctx context.Context, arg InsertLoanParams) error {
	_, err := q.db.ExecContext(ctx, insertLoan,
		arg.ID,
		arg.Position,
		arg.Name,
		arg.AmountCents,
		arg.InterestCents,
		arg.StartDate,
		arg.DueDay,
		arg.LastCollectedMonth,
	)
	return err
}

const countLoans = `SELECT COUNT(*) FROM loans`

func (q *Queries) CountLoans(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countLoans)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const hasReminder = `SELECT COUNT(*) FROM reminder_log WHERE loan_id = ? AND day = ?`

func (q *Queries) HasReminder(ctx context.Context, arg ReminderLog) (bool, error) {
	row := q.db.QueryRowContext(ctx, hasReminder, arg.LoanID, arg.Day)
	var count int64
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

const insertReminder = `INSERT OR IGNORE INTO reminder_log (loan_id, day) VALUES (?, ?)`

func (q *Queries) InsertReminder(ctx context.Context, arg ReminderLog) error {
	_, err := q.db.ExecContext(ctx, insertReminder, arg.LoanID, arg.Day)
	return err
}

const deleteRemindersBefore = `DELETE FROM reminder_log WHERE day < ?`

func (q *Queries) DeleteRemindersBefore(ctx context.Context, day string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteRemindersBefore, day)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
