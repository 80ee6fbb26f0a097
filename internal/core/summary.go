package core

// LoanView is a loan together with its status for a given day.
type LoanView struct {
	Loan    Loan
	Status  Status
	DueDate Date // due date of the current cycle
}

// ActionItem is a loan whose payment for the current month needs attention.
type ActionItem struct {
	Loan   Loan
	Status Status // pending or overdue
}

// UpcomingItem is a loan whose due date this month has not arrived yet.
type UpcomingItem struct {
	Loan    Loan
	DueDate Date
}

// Dashboard splits the collection for a given day. Collected loans are in
// neither list; both lists keep collection order.
type Dashboard struct {
	ActionRequired []ActionItem
	Upcoming       []UpcomingItem
}

// IsEmpty reports whether there is nothing to show.
func (d Dashboard) IsEmpty() bool {
	return len(d.ActionRequired) == 0 && len(d.Upcoming) == 0
}

// Reminder is a single notification about a loan payment.
type Reminder struct {
	LoanID   int64  `json:"loan_id"`
	Name     string `json:"name"`
	Amount   Money  `json:"amount"`
	Interest Money  `json:"interest"`
	Status   Status `json:"status"`
	DueDate  Date   `json:"due_date"`
}

// NewReminder builds a reminder from a classified loan.
func NewReminder(v LoanView) Reminder {
	return Reminder{
		LoanID:   v.Loan.ID,
		Name:     v.Loan.Name,
		Amount:   v.Loan.Amount,
		Interest: v.Loan.Interest,
		Status:   v.Status,
		DueDate:  v.DueDate,
	}
}
