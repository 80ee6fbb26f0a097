package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"loanbook/internal/core"
)

const lastColumn = "J"

var header = []string{
	"ID", "Borrower", "Amount", "Monthly interest", "Start date",
	"Due day", "Last collected", "Status", "Due date", "Updated",
}

func headerRow() []any {
	out := make([]any, len(header))
	for i, h := range header {
		out[i] = h
	}
	return out
}

// loanToRow renders one sheet row. Amounts are written as plain numbers so
// the sheet can sum them.
func loanToRow(v core.LoanView, now time.Time) []any {
	lastCollected := ""
	if m := v.Loan.LastCollectedMonth; m != nil {
		lastCollected = fmt.Sprintf("%d-%02d", m.Year(), int(m.Month()))
	}
	return []any{
		strconv.FormatInt(v.Loan.ID, 10),
		v.Loan.Name,
		v.Loan.Amount.Decimal(),
		v.Loan.Interest.Decimal(),
		v.Loan.StartDate.String(),
		v.Loan.DueDay,
		lastCollected,
		string(v.Status),
		v.DueDate.String(),
		now.UTC().Format(time.RFC3339),
	}
}

// findRowByID returns the 1-based row holding id in column A, or 0.
func findRowByID(values [][]any, id int64) int {
	want := strconv.FormatInt(id, 10)
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if cellString(row[0]) == want {
			return i + 1
		}
	}
	return 0
}

// firstFreeRow returns the first blank row below the header.
func firstFreeRow(values [][]any) int {
	for i, row := range values {
		if i == 0 {
			continue
		}
		if len(row) == 0 || cellString(row[0]) == "" {
			return i + 1
		}
	}
	if len(values) == 0 {
		return 2
	}
	return len(values) + 1
}

func cellString(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
