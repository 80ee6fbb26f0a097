// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for computing the due date of a
// loan's current cycle. Each rule encapsulates one way of deriving that date
// from the loan's due day or start date.

package services

import (
	"fmt"
	"loanbook/internal/core"
	"sort"
)

const (
	RuleMonthClamped = "month_clamped"
	RuleFirstCycle   = "first_cycle"

	DefaultDueDateRule = RuleMonthClamped
)

// DueDateRule is the strategy interface for computing the due date a loan is
// measured against on a given day.
type DueDateRule interface {
	// DueDate returns the due date of the cycle that today belongs to.
	DueDate(loan core.Loan, today core.Date) core.Date
}

// MonthClampedRule places the due date on the loan's due day in today's month,
// clamped to the month's last day.
type MonthClampedRule struct{}

// DueDate returns SafeDueDate for today's year and month.
func (MonthClampedRule) DueDate(loan core.Loan, today core.Date) core.Date {
	return core.SafeDueDate(today.Year(), today.Month(), loan.DueDay)
}

// FirstCycleRule expects the first payment one calendar month after the start
// date and repeats that date monthly. Dates are normalised rather than clamped,
// so a January 31 start first falls due on March 3 (March 2 in leap years).
type FirstCycleRule struct{}

// DueDate returns the first due date until it has passed a month boundary,
// then the first due date advanced by whole months into today's month.
func (FirstCycleRule) DueDate(loan core.Loan, today core.Date) core.Date {
	if loan.StartDate.IsZero() {
		return core.SafeDueDate(today.Year(), today.Month(), loan.DueDay)
	}
	first := loan.StartDate.AddDate(0, 1, 0)
	months := int(core.MonthKeyOf(today.Time) - core.MonthKeyOf(first))
	if months <= 0 {
		return core.DateOf(first)
	}
	return core.DateOf(first.AddDate(0, months, 0))
}

// dueDateRules maps rule names to their implementations.
var dueDateRules = map[string]DueDateRule{
	RuleMonthClamped: MonthClampedRule{},
	RuleFirstCycle:   FirstCycleRule{},
}

// GetDueDateRule returns the rule registered under name.
// An empty name selects the default rule.
func GetDueDateRule(name string) (DueDateRule, error) {
	if name == "" {
		name = DefaultDueDateRule
	}
	rule, ok := dueDateRules[name]
	if !ok {
		return nil, fmt.Errorf("unknown due date rule: %s", name)
	}
	return rule, nil
}

// RegisterDueDateRule allows registering custom due date rules.
func RegisterDueDateRule(name string, rule DueDateRule) {
	dueDateRules[name] = rule
}

// DueDateRuleNames lists the registered rule names in sorted order.
func DueDateRuleNames() []string {
	names := make([]string, 0, len(dueDateRules))
	for name := range dueDateRules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
