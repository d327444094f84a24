package memory

import (
	"context"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

func TestStoreAppendAndReplace(t *testing.T) {
	s := New()
	ctx := context.Background()

	ev := amqp.NewLedgerEvent(amqp.EventContributionAdded, "o1", "savings_goal", 7)
	ev.AmountCents = 900
	if err := s.AppendActivity(ctx, []ports.ActivityRow{ports.ActivityFromEvent(ev)}); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendActivity(ctx, []ports.ActivityRow{{Owner: "o2", Time: time.Now()}}); err != nil {
		t.Fatal(err)
	}
	act := s.Activity()
	if len(act) != 2 || act[0].EntityID != 7 || act[0].Amount.Cents != 900 {
		t.Fatalf("activity = %+v", act)
	}

	goal := core.SavingsGoal{ID: 1, Name: "Car", Target: core.Money{Cents: 1000}, Current: core.Money{Cents: 250}, Status: core.GoalActive}
	_ = s.ReplaceProgress(ctx, []ports.ProgressRow{ports.GoalProgressRow("o1", goal)})
	debt := core.Debt{ID: 2, Name: "Loan", Original: core.Money{Cents: 400}, Balance: core.Money{Cents: 100}, Status: core.DebtActive}
	_ = s.ReplaceProgress(ctx, []ports.ProgressRow{ports.DebtProgressRow("o1", debt)})

	rows, writes := s.Progress()
	if writes != 2 || len(rows) != 1 {
		t.Fatalf("writes=%d rows=%+v", writes, rows)
	}
	if rows[0].Entity != "debt" || rows[0].Done.Cents != 300 || rows[0].Percent != 75 {
		t.Fatalf("debt row = %+v", rows[0])
	}
}
