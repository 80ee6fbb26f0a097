package http

import (
	"errors"
	"net/http"
	"sync/atomic"

	"loanbook/internal/backup"
	"loanbook/internal/core"
	"loanbook/internal/log"
	"loanbook/internal/services"
)

func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrEmptyName,
		core.ErrNameTooLong,
		core.ErrInvalidAmount,
		core.ErrInvalidDate,
		core.ErrInvalidDay,
		core.ErrInvalidMonth,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return errors.Is(err, core.ErrLoanNotFound)
}

func isInvalidBackup(err error) bool {
	return errors.Is(err, backup.ErrInvalidData)
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	views, err := s.loans.Loans(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().JSON(newLoanViews(views)).Write(w)
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		NotFoundError(err.Error()).Write(w)
		return
	}
	view, err := s.loans.View(r.Context(), id)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().JSON(newLoanView(view)).Write(w)
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	s.submitLoan(w, r, services.NewSession(), http.StatusCreated)
}

func (s *Server) handleUpdateLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		NotFoundError(err.Error()).Write(w)
		return
	}
	s.submitLoan(w, r, services.EditLoan(id), http.StatusOK)
}

func (s *Server) submitLoan(w http.ResponseWriter, r *http.Request, session services.EditSession, status int) {
	op := log.OpCreate
	if _, editing := session.LoanID(); editing {
		op = log.OpUpdate
	}

	in, err := ParseLoanInput(NewRequestBodyParser(r))
	if err != nil {
		var fields FieldErrors
		if !errors.As(err, &fields) && !errors.Is(err, errBodyTooLarge) {
			BadRequestError("malformed request body").Write(w)
			return
		}
		s.writeError(w, r, op, err)
		return
	}

	loan, err := s.loans.Submit(r.Context(), session, in)
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	s.afterWrite()
	s.events.LogLoanEvent(r.Context(), "Loan saved", op, loan.ID, loan.Name, loan.Amount.Cents)

	view, err := s.loans.View(r.Context(), loan.ID)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Status(status).JSON(newLoanView(view)).Write(w)
}

func (s *Server) handleDeleteLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		NotFoundError(err.Error()).Write(w)
		return
	}
	if err := s.loans.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	s.afterWrite()
	s.events.LogLoanEvent(r.Context(), "Loan deleted", log.OpDelete, id, "", 0)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCollectLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		NotFoundError(err.Error()).Write(w)
		return
	}
	loan, err := s.loans.Collect(r.Context(), id)
	if err != nil {
		s.writeError(w, r, log.OpCollect, err)
		return
	}
	s.afterWrite()
	s.events.LogLoanEvent(r.Context(), "Loan collected", log.OpCollect, loan.ID, loan.Name, loan.Interest.Cents)

	view, err := s.loans.View(r.Context(), id)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().JSON(newLoanView(view)).Write(w)
}

func (s *Server) afterWrite() {
	atomic.AddInt64(&s.appMetrics.loansSaved, 1)
	s.invalidateDashboard()
}
