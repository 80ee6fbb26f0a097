package storage

import "database/sql"

// Loan is a row of the loans table.
type Loan struct {
	ID                 int64
	Position           int64
	Name               string
	AmountCents        int64
	InterestCents      int64
	StartDate          string
	DueDay             int64
	LastCollectedMonth sql.NullInt64
}

type ReminderLog struct {
	LoanID int64
	Day    string
}
