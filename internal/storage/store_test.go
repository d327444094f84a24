package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fintrack/internal/core"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), SQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createOwner(t *testing.T, q *Queries, id string) {
	t.Helper()
	if err := q.CreateOwner(context.Background(), core.Owner{ID: id, CreatedAt: testNow}); err != nil {
		t.Fatalf("create owner: %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := New(nil, Postgres)
	got := pg.rebind(`SELECT a FROM t WHERE x = ? AND y = ?`)
	if got != `SELECT a FROM t WHERE x = $1 AND y = $2` {
		t.Fatalf("rebind = %q", got)
	}
	lite := New(nil, SQLite)
	if got := lite.rebind(`x = ?`); got != `x = ?` {
		t.Fatalf("sqlite rebind changed query: %q", got)
	}
}

func TestParseDialect(t *testing.T) {
	cases := map[string]Dialect{"": SQLite, "sqlite": SQLite, "Postgres": Postgres, "pgx": Postgres}
	for in, want := range cases {
		got, err := ParseDialect(in)
		if err != nil || got != want {
			t.Fatalf("ParseDialect(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDialect("mysql"); err == nil {
		t.Fatalf("expected error for mysql")
	}
}

func TestMigrationsAreApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	s, err := Open(context.Background(), SQLite, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	v, dirty, err := MigrationVersion(SQLite, path)
	if err != nil || dirty || v != 2 {
		t.Fatalf("version = %d dirty=%v err=%v", v, dirty, err)
	}
	// Running again is a no-op.
	if err := RunMigrations(SQLite, path); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
}

func TestSessions(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries()
	ctx := context.Background()
	createOwner(t, q, "owner-a")

	expired := testNow.Add(-time.Minute)
	if err := q.CreateSession(ctx, "live", "owner-a", testNow, nil); err != nil {
		t.Fatal(err)
	}
	if err := q.CreateSession(ctx, "old", "owner-a", testNow, &expired); err != nil {
		t.Fatal(err)
	}

	if owner, err := q.SessionOwner(ctx, "live", testNow); err != nil || owner != "owner-a" {
		t.Fatalf("live session: %q %v", owner, err)
	}
	if _, err := q.SessionOwner(ctx, "old", testNow); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expired session should be rejected, got %v", err)
	}
	if _, err := q.SessionOwner(ctx, "nope", testNow); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown session should be rejected, got %v", err)
	}
}

func TestCategoriesAreScopedToOwner(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries()
	ctx := context.Background()
	createOwner(t, q, "owner-a")
	createOwner(t, q, "owner-b")

	shared, err := q.ListCategories(ctx, "owner-a")
	if err != nil || len(shared) == 0 {
		t.Fatalf("seeded categories missing: %d %v", len(shared), err)
	}

	own, err := q.CreateCategory(ctx, core.Category{Owner: "owner-a", Name: "Pets", Kind: core.KindExpense})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.GetCategory(ctx, "owner-a", own.ID); err != nil {
		t.Fatalf("owner should see own category: %v", err)
	}
	if _, err := q.GetCategory(ctx, "owner-b", own.ID); !errors.Is(err, core.ErrCategoryNotFound) {
		t.Fatalf("other owner must not see category, got %v", err)
	}
	listB, _ := q.ListCategories(ctx, "owner-b")
	if len(listB) != len(shared) {
		t.Fatalf("owner-b sees %d categories, want %d", len(listB), len(shared))
	}
}

func TestTransactionsAndTotals(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries()
	ctx := context.Background()
	createOwner(t, q, "owner-a")
	createOwner(t, q, "owner-b")

	cats, _ := q.ListCategories(ctx, "owner-a")
	byKind := map[core.Kind]core.Category{}
	for _, c := range cats {
		byKind[c.Kind] = c
	}

	insert := func(owner string, cents int64, kind core.Kind, date core.Date) core.Transaction {
		t.Helper()
		tx, err := q.InsertTransaction(ctx, core.Transaction{
			Owner: owner, Amount: core.Money{Cents: cents}, Concept: "x",
			Kind: kind, CategoryID: byKind[kind].ID, Date: date, CreatedAt: testNow,
		})
		if err != nil {
			t.Fatal(err)
		}
		return tx
	}

	june := core.NewDate(2025, 6, 10)
	insert("owner-a", 300000, core.KindIncome, june)
	insert("owner-a", 4550, core.KindExpense, june)
	insert("owner-a", 1000, core.KindExpense, core.NewDate(2025, 6, 30))
	insert("owner-a", 20000, core.KindSavings, june)
	insert("owner-a", 999, core.KindExpense, core.NewDate(2025, 5, 31))
	foreign := insert("owner-b", 777, core.KindExpense, june)

	from, to := june.MonthRange()
	totals, err := q.MonthTotals(ctx, "owner-a", from, to)
	if err != nil {
		t.Fatal(err)
	}
	if totals.Income.Cents != 300000 || totals.Expense.Cents != 5550 || totals.Savings.Cents != 20000 {
		t.Fatalf("totals = %+v", totals)
	}
	if totals.Balance().Cents != 300000-5550-20000 {
		t.Fatalf("balance = %d", totals.Balance().Cents)
	}

	byCat, err := q.ExpensesByCategory(ctx, "owner-a", from, to)
	if err != nil || len(byCat) != 1 || byCat[0].Amount.Cents != 5550 {
		t.Fatalf("by category = %+v %v", byCat, err)
	}

	recent, err := q.ListTransactions(ctx, "owner-a", TransactionFilter{Limit: 2})
	if err != nil || len(recent) != 2 || recent[0].Date.String() != "2025-06-30" {
		t.Fatalf("recent = %+v %v", recent, err)
	}

	if _, err := q.DeleteTransaction(ctx, "owner-a", foreign.ID); !errors.Is(err, core.ErrNotOwned) {
		t.Fatalf("deleting another owner's row: %v", err)
	}
	if _, err := q.DeleteTransaction(ctx, "owner-a", 9999); !errors.Is(err, core.ErrTransactionNotFound) {
		t.Fatalf("deleting missing row: %v", err)
	}
	deleted, err := q.DeleteTransaction(ctx, "owner-b", foreign.ID)
	if err != nil || deleted.Amount.Cents != 777 {
		t.Fatalf("delete own row: %+v %v", deleted, err)
	}
}

func TestGoalLedgerRoundTrip(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries()
	ctx := context.Background()
	createOwner(t, q, "owner-a")

	g, err := q.InsertGoal(ctx, core.SavingsGoal{
		Owner: "owner-a", Name: "Trip", Target: core.Money{Cents: 100000},
		TargetDate: core.NewDate(2026, 1, 1), Status: core.GoalActive, Priority: 2,
		CreatedAt: testNow, UpdatedAt: testNow,
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, cents := range []int64{1000, 2500} {
		if _, err := q.InsertContribution(ctx, core.SavingsContribution{
			GoalID: g.ID, Owner: "owner-a", Amount: core.Money{Cents: cents},
			Date: core.NewDate(2025, 6, 1), CreatedAt: testNow,
		}); err != nil {
			t.Fatal(err)
		}
	}
	sum, err := q.SumContributions(ctx, "owner-a", g.ID)
	if err != nil || sum.Cents != 3500 {
		t.Fatalf("sum = %d %v", sum.Cents, err)
	}
	if sum, _ := q.SumContributions(ctx, "owner-b", g.ID); sum.Cents != 0 {
		t.Fatalf("sum leaked across owners: %d", sum.Cents)
	}

	stamp := testNow.Add(time.Hour)
	g.Current, g.Status, g.CompletedAt, g.UpdatedAt = sum, core.GoalCompleted, &stamp, stamp
	if err := q.SaveGoal(ctx, g); err != nil {
		t.Fatal(err)
	}
	back, err := q.GetGoal(ctx, "owner-a", g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if back.Current.Cents != 3500 || back.Status != core.GoalCompleted || back.CompletedAt == nil ||
		!back.CompletedAt.Equal(stamp) || back.TargetDate.String() != "2026-01-01" {
		t.Fatalf("round trip = %+v", back)
	}

	if err := q.LockGoal(ctx, "owner-b", g.ID, testNow); !errors.Is(err, core.ErrGoalNotFound) {
		t.Fatalf("lock by other owner: %v", err)
	}
	if err := q.DeleteGoal(ctx, "owner-a", g.ID); err != nil {
		t.Fatal(err)
	}
	if list, _ := q.ListContributions(ctx, "owner-a", g.ID); len(list) != 0 {
		t.Fatalf("contributions survived goal deletion: %d", len(list))
	}
}

func TestDebtNullableColumns(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries()
	ctx := context.Background()
	createOwner(t, q, "owner-a")

	monthly := core.Money{Cents: 15000}
	d, err := q.InsertDebt(ctx, core.Debt{
		Owner: "owner-a", Name: "Car", Original: core.Money{Cents: 500000},
		Balance: core.Money{Cents: 500000}, InterestRateBP: 525, MonthlyPayment: &monthly,
		Status: core.DebtActive, Priority: 3, CreatedAt: testNow, UpdatedAt: testNow,
	})
	if err != nil {
		t.Fatal(err)
	}
	back, err := q.GetDebt(ctx, "owner-a", d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if back.MonthlyPayment == nil || back.MonthlyPayment.Cents != 15000 || !back.DueDate.IsEmpty() || back.PaidAt != nil {
		t.Fatalf("nullable columns = %+v", back)
	}
}

func TestInTxRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(q *Queries) error {
		if err := q.CreateOwner(ctx, core.Owner{ID: "ghost", CreatedAt: testNow}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.Queries().GetOwner(ctx, "ghost"); !errors.Is(err, core.ErrOwnerNotFound) {
		t.Fatalf("owner survived rollback: %v", err)
	}
}
