package http

import (
	"context"
	"fmt"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type goalRequest struct {
	Name       string        `json:"name"`
	Target     decimalString `json:"target_amount"`
	TargetDate string        `json:"target_date"`
	Priority   int           `json:"priority"`
}

// goalPatchRequest distinguishes absent fields (nil) from cleared ones.
type goalPatchRequest struct {
	Name       *string        `json:"name"`
	Target     *decimalString `json:"target_amount"`
	TargetDate *string        `json:"target_date"`
	Priority   *int           `json:"priority"`
}

func (req goalPatchRequest) patch() (services.GoalPatch, error) {
	var p services.GoalPatch
	if req.Name != nil {
		name := sanitizeInput(*req.Name)
		p.Name = &name
	}
	if req.Target != nil {
		target, err := amountOf("target_amount", *req.Target)
		if err != nil {
			return p, err
		}
		p.Target = &target
	}
	if req.TargetDate != nil {
		d, err := dateOf("target_date", *req.TargetDate)
		if err != nil {
			return p, err
		}
		p.TargetDate = &d
	}
	p.Priority = req.Priority
	return p, nil
}

// entryRequest is the body of a contribution or a debt payment.
type entryRequest struct {
	Amount decimalString `json:"amount"`
	Date   string        `json:"date"`
	Note   string        `json:"note"`
}

func (req entryRequest) input() (services.ContributionInput, error) {
	amount, err := amountOf("amount", req.Amount)
	if err != nil {
		return services.ContributionInput{}, err
	}
	date, err := dateOf("date", req.Date)
	if err != nil {
		return services.ContributionInput{}, err
	}
	return services.ContributionInput{Amount: amount, Date: date, Note: sanitizeInput(req.Note)}, nil
}

// decodeEntry reads and converts an entry body.
func (s *Server) decodeEntry(w http.ResponseWriter, r *http.Request) (services.ContributionInput, error) {
	var req entryRequest
	if err := decodeJSON(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		return services.ContributionInput{}, err
	}
	return req.input()
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request, owner string) {
	statuses, err := parseStatuses(r.URL.Query().Get("status"), core.GoalStatus.Valid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	goals, err := s.deps.Ledger.ListGoals(r.Context(), owner, statuses...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if goals == nil {
		goals = []core.SavingsGoal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": goals})
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request, owner string) {
	var req goalRequest
	if err := decodeJSON(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	target, err := amountOf("target_amount", req.Target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	targetDate, err := dateOf("target_date", req.TargetDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.deps.Ledger.CreateGoal(r.Context(), owner, services.GoalInput{
		Name:       sanitizeInput(req.Name),
		Target:     target,
		TargetDate: targetDate,
		Priority:   req.Priority,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusCreated, g)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.deps.Ledger.GetGoal(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req goalPatchRequest
	if err := decodeJSON(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := req.patch()
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.deps.Ledger.UpdateGoal(r.Context(), owner, id, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusOK, g)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Ledger.DeleteGoal(r.Context(), owner, id); err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusNoContent, nil)
}

func (s *Server) handleListContributions(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.deps.Ledger.ListContributions(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []core.SavingsContribution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"contributions": list})
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request, owner string) {
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
	res, err := s.deps.Ledger.ContributeToGoal(r.Context(), owner, services.Ref{ID: id}, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusCreated, res)
}

func (s *Server) handleReviseContribution(w http.ResponseWriter, r *http.Request, owner string) {
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
	res, err := s.deps.Ledger.ReviseContribution(r.Context(), owner, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusOK, res)
}

func (s *Server) handleRemoveContribution(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.deps.Ledger.RemoveContribution(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusOK, map[string]any{"goal": g})
}

type goalTransition func(ctx context.Context, owner string, id int64) (core.SavingsGoal, error)

func (s *Server) goalActions() map[string]goalTransition {
	return map[string]goalTransition{
		"complete": s.deps.Ledger.ForceCompleteGoal,
		"pause":    s.deps.Ledger.PauseGoal,
		"resume":   s.deps.Ledger.ResumeGoal,
		"cancel":   s.deps.Ledger.CancelGoal,
		"reopen":   s.deps.Ledger.ReopenGoal,
	}
}

func (s *Server) handleGoalAction(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	action := r.PathValue("action")
	fn, ok := s.goalActions()[action]
	if !ok {
		_ = ErrorResponse(http.StatusNotFound, fmt.Sprintf("unknown goal action %q", sanitizeInput(action))).Write(w)
		return
	}
	g, err := fn(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutated(w, http.StatusOK, g)
}
