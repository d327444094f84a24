package http

import (
	"context"
	"fmt"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type debtRequest struct {
	Name           string        `json:"name"`
	Original       decimalString `json:"original_amount"`
	InterestRate   decimalString `json:"interest_rate"`
	MonthlyPayment decimalString `json:"monthly_payment"`
	DueDate        string        `json:"due_date"`
	Priority       int           `json:"priority"`
}

func (req debtRequest) input() (services.DebtInput, error) {
	var in services.DebtInput
	original, err := amountOf("original_amount", req.Original)
	if err != nil {
		return in, err
	}
	rate, err := rateOf(req.InterestRate)
	if err != nil {
		return in, err
	}
	monthly, err := optionalAmountOf("monthly_payment", req.MonthlyPayment)
	if err != nil {
		return in, err
	}
	due, err := dateOf("due_date", req.DueDate)
	if err != nil {
		return in, err
	}
	in = services.DebtInput{
		Name:           sanitizeInput(req.Name),
		Original:       original,
		InterestRateBP: rate,
		DueDate:        due,
		Priority:       req.Priority,
	}
	if monthly.Cents > 0 {
		in.MonthlyPayment = &monthly
	}
	return in, nil
}

// debtPatchRequest leaves nil fields untouched. A zero or empty monthly
// payment or due date clears it.
type debtPatchRequest struct {
	Name           *string        `json:"name"`
	Original       *decimalString `json:"original_amount"`
	InterestRate   *decimalString `json:"interest_rate"`
	MonthlyPayment *decimalString `json:"monthly_payment"`
	DueDate        *string        `json:"due_date"`
	Priority       *int           `json:"priority"`
}

func (req debtPatchRequest) patch() (services.DebtPatch, error) {
	var p services.DebtPatch
	if req.Name != nil {
		name := sanitizeInput(*req.Name)
		p.Name = &name
	}
	if req.Original != nil {
		original, err := amountOf("original_amount", *req.Original)
		if err != nil {
			return p, err
		}
		p.Original = &original
	}
	if req.InterestRate != nil {
		rate, err := rateOf(*req.InterestRate)
		if err != nil {
			return p, err
		}
		p.InterestRateBP = &rate
	}
	if req.MonthlyPayment != nil {
		monthly, err := optionalAmountOf("monthly_payment", *req.MonthlyPayment)
		if err != nil {
			return p, err
		}
		p.MonthlyPayment = &monthly
	}
	if req.DueDate != nil {
		d, err := dateOf("due_date", *req.DueDate)
		if err != nil {
			return p, err
		}
		p.DueDate = &d
	}
	p.Priority = req.Priority
	return p, nil
}

func (s *Server) handleListDebts(w http.ResponseWriter, r *http.Request, owner string) {
	statuses, err := parseStatuses(r.URL.Query().Get("status"), core.DebtStatus.Valid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	debts, err := s.deps.Ledger.ListDebts(r.Context(), owner, statuses...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if debts == nil {
		debts = []core.Debt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"debts": debts})
}

func (s *Server) handleCreateDebt(w http.ResponseWriter, r *http.Request, owner string) {
	var req debtRequest
	if err := decodeJSON(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.deps.Ledger.CreateDebt(r.Context(), owner, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusCreated, d)
}

func (s *Server) handleGetDebt(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.deps.Ledger.GetDebt(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleUpdateDebt(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req debtPatchRequest
	if err := decodeJSON(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := req.patch()
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.deps.Ledger.UpdateDebt(r.Context(), owner, id, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDebt(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Ledger.DeleteDebt(r.Context(), owner, id); err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusNoContent, nil)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.deps.Ledger.ListPayments(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []core.DebtPayment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": list})
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := s.decodeEntry(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Ledger.PayDebt(r.Context(), owner, services.Ref{ID: id}, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusCreated, res)
}

func (s *Server) handleRevisePayment(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := s.decodeEntry(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Ledger.RevisePayment(r.Context(), owner, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusOK, res)
}

func (s *Server) handleRemovePayment(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.deps.Ledger.RemovePayment(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusOK, map[string]any{"debt": d})
}

type debtTransition func(ctx context.Context, owner string, id int64) (core.Debt, error)

func (s *Server) debtActions() map[string]debtTransition {
	return map[string]debtTransition{
		"pay-off": s.deps.Ledger.ForcePayDebt,
		"pause":   s.deps.Ledger.PauseDebt,
		"resume":  s.deps.Ledger.ResumeDebt,
		"reopen":  s.deps.Ledger.ReopenDebt,
	}
}

func (s *Server) handleDebtAction(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	action := r.PathValue("action")
	fn, ok := s.debtActions()[action]
	if !ok {
		_ = ErrorResponse(http.StatusNotFound, fmt.Sprintf("unknown debt action %q", sanitizeInput(action))).Write(w)
		return
	}
	d, err := fn(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusOK, d)
}
