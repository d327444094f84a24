package core

import "time"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
	Amount     Money  `json:"amount"`
}

// MonthTotals is a compact summary for a specific year+month.
type MonthTotals struct {
	Year    int   `json:"year"`
	Month   int   `json:"month"`
	Income  Money `json:"income"`
	Expense Money `json:"expense"`
	Savings Money `json:"savings"`
}

// Balance is income minus expenses and money moved to savings.
func (m MonthTotals) Balance() Money {
	return m.Income.Sub(m.Expense).Sub(m.Savings)
}

type (
	GoalProgress struct {
		ID         int64      `json:"id"`
		Name       string     `json:"name"`
		Target     Money      `json:"target_amount"`
		Current    Money      `json:"current_amount"`
		Remaining  Money      `json:"remaining_amount"`
		Progress   float64    `json:"progress_percent"`
		Status     GoalStatus `json:"status"`
		TargetDate Date       `json:"target_date"`
	}

	DebtProgress struct {
		ID           int64      `json:"id"`
		Name         string     `json:"name"`
		Original     Money      `json:"original_amount"`
		Balance      Money      `json:"current_balance"`
		Progress     float64    `json:"payoff_percent"`
		InterestRate string     `json:"interest_rate"`
		Status       DebtStatus `json:"status"`
		DueDate      Date       `json:"due_date"`
	}

	// Snapshot is the read-only financial context handed to the agent.
	Snapshot struct {
		GeneratedAt time.Time        `json:"generated_at"`
		Today       Date             `json:"today"`
		Month       MonthTotals      `json:"current_month"`
		ByCategory  []CategoryAmount `json:"expenses_by_category"`
		Categories  []Category       `json:"categories"`
		Goals       []GoalProgress   `json:"savings_goals"`
		Debts       []DebtProgress   `json:"debts"`
		Recent      []Transaction    `json:"recent_operations"`
	}
)

// ProgressOf summarises a goal for display.
func ProgressOf(g SavingsGoal) GoalProgress {
	return GoalProgress{
		ID:         g.ID,
		Name:       g.Name,
		Target:     g.Target,
		Current:    g.Current,
		Remaining:  g.Remaining(),
		Progress:   g.Progress(),
		Status:     g.Status,
		TargetDate: g.TargetDate,
	}
}

// DebtProgressOf summarises a debt for display.
func DebtProgressOf(d Debt) DebtProgress {
	return DebtProgress{
		ID:           d.ID,
		Name:         d.Name,
		Original:     d.Original,
		Balance:      d.Balance,
		Progress:     d.Progress(),
		InterestRate: FormatRate(d.InterestRateBP),
		Status:       d.Status,
		DueDate:      d.DueDate,
	}
}
