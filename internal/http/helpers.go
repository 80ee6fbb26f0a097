package http

import (
	"strings"

	"loanbook/internal/core"
)

// sanitizeInput strips control characters except tab and newlines, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// loanResponse is a loan as the API returns it: the stored fields plus,
// where known, its status and the due date of the current cycle.
type loanResponse struct {
	ID                 int64          `json:"id"`
	Name               string         `json:"name"`
	Amount             core.Money     `json:"amount"`
	Interest           core.Money     `json:"interest"`
	StartDate          core.Date      `json:"startDate"`
	DueDay             int            `json:"dueDay"`
	LastCollectedMonth *core.MonthKey `json:"lastCollectedMonth"`
	Status             core.Status    `json:"status,omitempty"`
	DueDate            *core.Date     `json:"dueDate,omitempty"`
}

func newLoanResponse(l core.Loan) loanResponse {
	return loanResponse{
		ID:                 l.ID,
		Name:               l.Name,
		Amount:             l.Amount,
		Interest:           l.Interest,
		StartDate:          l.StartDate,
		DueDay:             l.DueDay,
		LastCollectedMonth: l.LastCollectedMonth,
	}
}

type dashboardResponse struct {
	ActionRequired []loanResponse `json:"actionRequired"`
	Upcoming       []loanResponse `json:"upcoming"`
	Empty          bool           `json:"empty"`
}

func newLoanView(v core.LoanView) loanResponse {
	resp := newLoanResponse(v.Loan)
	due := v.DueDate
	resp.Status = v.Status
	resp.DueDate = &due
	return resp
}

func newLoanViews(views []core.LoanView) []loanResponse {
	out := make([]loanResponse, 0, len(views))
	for _, v := range views {
		out = append(out, newLoanView(v))
	}
	return out
}

func newDashboardResponse(d core.Dashboard) dashboardResponse {
	resp := dashboardResponse{
		ActionRequired: make([]loanResponse, 0, len(d.ActionRequired)),
		Upcoming:       make([]loanResponse, 0, len(d.Upcoming)),
		Empty:          d.IsEmpty(),
	}
	for _, item := range d.ActionRequired {
		r := newLoanResponse(item.Loan)
		r.Status = item.Status
		resp.ActionRequired = append(resp.ActionRequired, r)
	}
	for _, item := range d.Upcoming {
		r := newLoanResponse(item.Loan)
		due := item.DueDate
		r.Status = core.StatusUpcoming
		r.DueDate = &due
		resp.Upcoming = append(resp.Upcoming, r)
	}
	return resp
}
