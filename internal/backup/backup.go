// Package backup reads and writes the portable loan backup: a JSON array of
// loan records, the same layout the blob store keeps under its "loans" key.
package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"loanbook/internal/core"
)

// FileName is the suggested name for downloaded backups.
const FileName = "loan-backup.json"

// ErrInvalidData is returned for any payload that is not a valid backup.
var ErrInvalidData = errors.New("invalid backup file")

// Encode serialises loans in collection order. An empty collection is "[]".
func Encode(loans []core.Loan) ([]byte, error) {
	if loans == nil {
		loans = []core.Loan{}
	}
	b, err := json.Marshal(loans)
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}
	return b, nil
}

// Decode parses and validates a backup payload restored during month current.
func Decode(data []byte, current core.MonthKey) ([]core.Loan, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrInvalidData)
	}

	var loans []core.Loan
	if err := json.Unmarshal(trimmed, &loans); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if loans == nil {
		loans = []core.Loan{}
	}
	if err := Validate(loans, current); err != nil {
		return nil, err
	}
	return loans, nil
}

// Validate checks the record invariants that the status engine relies on.
// No loan may be marked collected for a month after current.
func Validate(loans []core.Loan, current core.MonthKey) error {
	seen := make(map[int64]struct{}, len(loans))
	for i, l := range loans {
		if _, dup := seen[l.ID]; dup {
			return fmt.Errorf("%w: duplicate id %d", ErrInvalidData, l.ID)
		}
		seen[l.ID] = struct{}{}

		if strings.TrimSpace(l.Name) == "" {
			return fmt.Errorf("%w: record %d has no name", ErrInvalidData, i)
		}
		if l.DueDay < 1 || l.DueDay > 31 {
			return fmt.Errorf("%w: record %d has due day %d", ErrInvalidData, i, l.DueDay)
		}
		if l.Amount.Validate() != nil || l.Interest.Validate() != nil {
			return fmt.Errorf("%w: record %d has a negative amount", ErrInvalidData, i)
		}
		if m := l.LastCollectedMonth; m != nil && *m > current {
			return fmt.Errorf("%w: record %d collected in future month %s", ErrInvalidData, i, m)
		}
	}
	return nil
}
