package agent

import (
	"encoding/json"

	"fintrack/internal/core"
)

// genericFailure replaces infrastructure errors in tool results so the
// model never sees driver or network details.
const genericFailure = "the operation could not be completed because of an internal error"

// ToolResult is the JSON object handed back to the model for each call.
type ToolResult struct {
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind core.ErrorKind `json:"error_kind,omitempty"`
}

func success(data any) ToolResult {
	return ToolResult{Success: true, Data: data}
}

func failure(err error) ToolResult {
	res := ToolResult{ErrorKind: core.KindOf(err), Error: genericFailure}
	if core.IsDomainError(err) {
		res.Error = err.Error()
	}
	return res
}

// JSON never fails: every Data value is built from plain types.
func (r ToolResult) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(ToolResult{Error: genericFailure, ErrorKind: core.KindInternal})
	}
	return string(b)
}

type operationSummary struct {
	ID         int64  `json:"operation_id"`
	Amount     string `json:"amount"`
	Concept    string `json:"concept"`
	Type       string `json:"type"`
	CategoryID int64  `json:"category_id"`
	Date       string `json:"operation_date"`
}

func operationSummaryOf(t core.Transaction) operationSummary {
	return operationSummary{
		ID:         t.ID,
		Amount:     t.Amount.String(),
		Concept:    t.Concept,
		Type:       string(t.Kind),
		CategoryID: t.CategoryID,
		Date:       t.Date.String(),
	}
}

type goalSummary struct {
	ID         int64   `json:"savings_goal_id"`
	Name       string  `json:"name"`
	Target     string  `json:"target_amount"`
	Current    string  `json:"current_amount"`
	Remaining  string  `json:"remaining_amount"`
	Progress   float64 `json:"progress_percent"`
	Status     string  `json:"status"`
	TargetDate string  `json:"target_date,omitempty"`
}

func goalSummaryOf(g core.SavingsGoal) goalSummary {
	return goalSummary{
		ID:         g.ID,
		Name:       g.Name,
		Target:     g.Target.String(),
		Current:    g.Current.String(),
		Remaining:  g.Remaining().String(),
		Progress:   g.Progress(),
		Status:     string(g.Status),
		TargetDate: g.TargetDate.String(),
	}
}

type debtSummary struct {
	ID           int64   `json:"debt_id"`
	Name         string  `json:"name"`
	Original     string  `json:"initial_amount"`
	Balance      string  `json:"current_balance"`
	Progress     float64 `json:"payoff_percent"`
	InterestRate string  `json:"interest_rate"`
	Status       string  `json:"status"`
	DueDate      string  `json:"due_date,omitempty"`
}

func debtSummaryOf(d core.Debt) debtSummary {
	return debtSummary{
		ID:           d.ID,
		Name:         d.Name,
		Original:     d.Original.String(),
		Balance:      d.Balance.String(),
		Progress:     d.Progress(),
		InterestRate: core.FormatRate(d.InterestRateBP),
		Status:       string(d.Status),
		DueDate:      d.DueDate.String(),
	}
}
