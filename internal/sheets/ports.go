// Package sheets defines the spreadsheet mirror of ledger activity and
// goal and debt progress.
package sheets

import (
	"context"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

type (
	// ActivityRow is one committed mutation as shown in the activity sheet.
	ActivityRow struct {
		Time     time.Time
		Owner    string
		Event    string
		Entity   string
		EntityID int64
		Name     string
		Amount   core.Money
		Status   string
	}

	// ProgressRow is the current state of one goal or debt.
	ProgressRow struct {
		Owner   string
		Entity  string
		ID      int64
		Name    string
		Total   core.Money // goal target or original debt
		Done    core.Money // saved so far or paid off
		Percent float64
		Status  string
		Date    core.Date // target date or due date
	}
)

// Ports for outbound adapters.
type (
	ActivityWriter interface {
		AppendActivity(ctx context.Context, rows []ActivityRow) error
	}

	// ProgressWriter replaces the whole progress table on each call.
	ProgressWriter interface {
		ReplaceProgress(ctx context.Context, rows []ProgressRow) error
	}
)

// ActivityFromEvent converts a ledger event into a sheet row.
func ActivityFromEvent(ev *amqp.LedgerEvent) ActivityRow {
	return ActivityRow{
		Time:     ev.Timestamp.UTC(),
		Owner:    ev.OwnerID,
		Event:    string(ev.Type),
		Entity:   ev.Entity,
		EntityID: ev.EntityID,
		Name:     ev.Name,
		Amount:   core.Money{Cents: ev.AmountCents},
		Status:   ev.Status,
	}
}

// GoalProgressRow summarises a goal for the progress sheet.
func GoalProgressRow(owner string, g core.SavingsGoal) ProgressRow {
	return ProgressRow{
		Owner:   owner,
		Entity:  "savings_goal",
		ID:      g.ID,
		Name:    g.Name,
		Total:   g.Target,
		Done:    g.Current,
		Percent: g.Progress(),
		Status:  string(g.Status),
		Date:    g.TargetDate,
	}
}

// DebtProgressRow summarises a debt for the progress sheet.
func DebtProgressRow(owner string, d core.Debt) ProgressRow {
	return ProgressRow{
		Owner:   owner,
		Entity:  "debt",
		ID:      d.ID,
		Name:    d.Name,
		Total:   d.Original,
		Done:    d.PaidOff(),
		Percent: d.Progress(),
		Status:  string(d.Status),
		Date:    d.DueDate,
	}
}
