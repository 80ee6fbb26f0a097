package core

import "fmt"

// Collection operations never modify their input; each returns a fresh slice.

// FindLoan returns the loan with the given id.
func FindLoan(loans []Loan, id int64) (Loan, bool) {
	for _, l := range loans {
		if l.ID == id {
			return l, true
		}
	}
	return Loan{}, false
}

// UpsertLoan replaces the loan with the same id in place, or appends it.
func UpsertLoan(loans []Loan, loan Loan) []Loan {
	out := make([]Loan, 0, len(loans)+1)
	replaced := false
	for _, l := range loans {
		if l.ID == loan.ID {
			out = append(out, loan)
			replaced = true
			continue
		}
		out = append(out, l)
	}
	if !replaced {
		out = append(out, loan)
	}
	return out
}

// RemoveLoan drops the loan with the given id. Removing an unknown id is a no-op.
func RemoveLoan(loans []Loan, id int64) []Loan {
	out := make([]Loan, 0, len(loans))
	for _, l := range loans {
		if l.ID != id {
			out = append(out, l)
		}
	}
	return out
}

// CollectLoan marks the loan as collected for month k.
func CollectLoan(loans []Loan, id int64, k MonthKey) ([]Loan, error) {
	out := make([]Loan, len(loans))
	copy(out, loans)
	for i := range out {
		if out[i].ID == id {
			key := k
			out[i].LastCollectedMonth = &key
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: id %d", ErrLoanNotFound, id)
}

// NextID returns a creation-time id that is not used by any loan.
func NextID(loans []Loan, nowMillis int64) int64 {
	id := nowMillis
	for {
		if _, taken := FindLoan(loans, id); !taken {
			return id
		}
		id++
	}
}
