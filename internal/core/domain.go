package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxNameLength bounds a borrower name, in characters.
const MaxNameLength = 200

const (
	StatusCollected Status = "collected"
	StatusUpcoming  Status = "upcoming"
	StatusPending   Status = "pending"
	StatusOverdue   Status = "overdue"
)

type (
	Status string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Loan is a single borrower record. DueDay is taken from StartDate when
	// the record is built and is not touched by collection.
	Loan struct {
		ID                 int64
		Name               string
		Amount             Money // principal
		Interest           Money // flat amount expected every month
		StartDate          Date
		DueDay             int
		LastCollectedMonth *MonthKey
	}

	// LoanInput carries the user-editable fields of a loan.
	LoanInput struct {
		Name      string
		Amount    Money
		Interest  Money
		StartDate Date
	}
)

var (
	ErrInvalidDay    = errors.New("invalid day")
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyName     = errors.New("empty borrower name")
	ErrNameTooLong   = errors.New("borrower name too long (max 200 characters)")
	ErrLoanNotFound  = errors.New("loan not found")
)

const dateLayout = "2006-01-02"

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date t falls on in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// String formats the date as YYYY-MM-DD; the zero date formats as "".
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD". An empty string decodes to the zero date.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, data)
	}
	if strings.TrimSpace(s) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// SafeDueDate returns the due date for year/month with dueDay clamped into
// the month, so a 31st due day lands on the last day of shorter months.
func SafeDueDate(year int, month time.Month, dueDay int) Date {
	day := min(dueDay, DaysIn(year, month))
	if day < 1 {
		day = 1
	}
	return NewDate(year, month, day)
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// NewLoan builds a loan record from user input.
func NewLoan(id int64, in LoanInput) Loan {
	return Loan{
		ID:        id,
		Name:      strings.TrimSpace(in.Name),
		Amount:    in.Amount,
		Interest:  in.Interest,
		StartDate: in.StartDate,
		DueDay:    in.StartDate.Day(),
	}
}

// ValidateName checks a borrower name once surrounding spaces are trimmed.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func (in LoanInput) Validate() error {
	if err := ValidateName(in.Name); err != nil {
		return err
	}
	if err := in.Amount.Validate(); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if err := in.Interest.Validate(); err != nil {
		return fmt.Errorf("interest: %w", err)
	}
	if err := in.StartDate.Validate(); err != nil {
		return fmt.Errorf("start date: %w", err)
	}
	return nil
}

// CollectedIn reports whether collection was confirmed for month key k.
func (l Loan) CollectedIn(k MonthKey) bool {
	return l.LastCollectedMonth != nil && *l.LastCollectedMonth == k
}

type loanJSON struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Amount             Money     `json:"amount"`
	Interest           Money     `json:"interest"`
	StartDate          Date      `json:"startDate"`
	DueDay             int       `json:"dueDay"`
	LastCollectedMonth *MonthKey `json:"lastCollectedMonth"`
}

func (l Loan) MarshalJSON() ([]byte, error) {
	return json.Marshal(loanJSON(l))
}

func (l *Loan) UnmarshalJSON(data []byte) error {
	var raw loanJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = Loan(raw)
	return nil
}
