package services

import (
	"loanbook/internal/core"
	"time"
)

// StatusEngine derives per-loan status and the dashboard partition from a
// loan collection and a reference time. It performs no I/O and never
// modifies its inputs.
type StatusEngine struct {
	rule DueDateRule
}

// NewStatusEngine returns an engine using rule, or the default rule when nil.
func NewStatusEngine(rule DueDateRule) *StatusEngine {
	if rule == nil {
		rule = MonthClampedRule{}
	}
	return &StatusEngine{rule: rule}
}

var defaultEngine = NewStatusEngine(nil)

// Classify classifies loan with the default month-clamped rule.
func Classify(loan core.Loan, now time.Time) core.Status {
	return defaultEngine.Classify(loan, now)
}

// Partition partitions loans with the default month-clamped rule.
func Partition(loans []core.Loan, now time.Time) core.Dashboard {
	return defaultEngine.Partition(loans, now)
}

// DueDate returns the due date of the loan's current cycle. Only the calendar
// date of now, in now's location, is used.
func (e *StatusEngine) DueDate(loan core.Loan, now time.Time) core.Date {
	return e.rule.DueDate(loan, core.DateOf(now))
}

// Classify returns the loan's status on the day now falls on.
// A collection confirmed this month wins over any date comparison.
func (e *StatusEngine) Classify(loan core.Loan, now time.Time) core.Status {
	return e.View(loan, now).Status
}

// View returns the loan with its status and current due date.
func (e *StatusEngine) View(loan core.Loan, now time.Time) core.LoanView {
	day := core.DateOf(now)
	due := e.rule.DueDate(loan, day)
	v := core.LoanView{Loan: loan, DueDate: due}

	switch {
	case loan.CollectedIn(core.MonthKeyOf(now)):
		v.Status = core.StatusCollected
	case day.Before(due.Time):
		v.Status = core.StatusUpcoming
	case day.Equal(due.Time):
		v.Status = core.StatusPending
	default:
		v.Status = core.StatusOverdue
	}
	return v
}

// ClassifyAll returns a view for every loan, in collection order.
func (e *StatusEngine) ClassifyAll(loans []core.Loan, now time.Time) []core.LoanView {
	views := make([]core.LoanView, 0, len(loans))
	for _, l := range loans {
		views = append(views, e.View(l, now))
	}
	return views
}

// Partition splits loans into action-required (pending or overdue) and
// upcoming lists. Collected loans are left out. Order follows the input.
func (e *StatusEngine) Partition(loans []core.Loan, now time.Time) core.Dashboard {
	d := core.Dashboard{
		ActionRequired: []core.ActionItem{},
		Upcoming:       []core.UpcomingItem{},
	}
	for _, v := range e.ClassifyAll(loans, now) {
		switch v.Status {
		case core.StatusPending, core.StatusOverdue:
			d.ActionRequired = append(d.ActionRequired, core.ActionItem{Loan: v.Loan, Status: v.Status})
		case core.StatusUpcoming:
			d.Upcoming = append(d.Upcoming, core.UpcomingItem{Loan: v.Loan, DueDate: v.DueDate})
		}
	}
	return d
}
