package http

import (
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type categoryRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Segment string `json:"segment"`
}

type transactionRequest struct {
	Amount     decimalString `json:"amount"`
	Concept    string        `json:"concept"`
	Type       string        `json:"type"`
	CategoryID int64         `json:"category_id"`
	Date       string        `json:"operation_date"`
}

// input converts the request; a missing date means today.
func (req transactionRequest) input(today core.Date) (services.TransactionInput, error) {
	amount, err := amountOf("amount", req.Amount)
	if err != nil {
		return services.TransactionInput{}, err
	}
	kind, err := core.ParseKind(req.Type)
	if err != nil {
		return services.TransactionInput{}, err
	}
	date, err := dateOf("operation_date", req.Date)
	if err != nil {
		return services.TransactionInput{}, err
	}
	if date.IsEmpty() {
		date = today
	}
	return services.TransactionInput{
		Amount:     amount,
		Concept:    sanitizeInput(req.Concept),
		Kind:       kind,
		CategoryID: req.CategoryID,
		Date:       date,
	}, nil
}

// mutated counts a successful mutation and writes v.
func (s *Server) mutated(w http.ResponseWriter, status int, v any) {
	s.metrics.add(&s.metrics.mutations)
	if v == nil {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, v)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, owner string) {
	cats, err := s.deps.Ledger.Categories(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cats == nil {
		cats = []core.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, owner string) {
	var req categoryRequest
	if err := decodeJSON(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	kind, err := core.ParseKind(req.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cat, err := s.deps.Ledger.CreateCategory(r.Context(), owner, sanitizeInput(req.Name), kind, sanitizeInput(req.Segment))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusCreated, cat)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, owner string) {
	filter, err := parseTransactionFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.deps.Ledger.ListTransactions(r.Context(), owner, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": txs})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, owner string) {
	var req transactionRequest
	if err := decodeJSON(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input(core.DateOf(s.deps.Now()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.deps.Ledger.CreateTransaction(r.Context(), owner, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusCreated, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.deps.Ledger.DeleteTransaction(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusOK, tx)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, owner string) {
	snap, err := s.deps.Snapshots.Build(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type summaryResponse struct {
	core.MonthTotals
	Balance    core.Money            `json:"balance"`
	ByCategory []core.CategoryAmount `json:"expenses_by_category"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, owner string) {
	params, err := ParseMonthParams(r.URL.Query(), s.deps.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	totals, byCat, err := s.deps.Snapshots.Month(r.Context(), owner, params.Day())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if byCat == nil {
		byCat = []core.CategoryAmount{}
	}
	writeJSON(w, http.StatusOK, summaryResponse{MonthTotals: totals, Balance: totals.Balance(), ByCategory: byCat})
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request, owner string) {
	report, err := s.deps.Ledger.RecomputeAll(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusOK, report)
}
