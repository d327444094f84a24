package services

import (
	"context"
	"errors"
	"testing"

	"fintrack/internal/core"
)

func TestPaymentEditRevertsPaidDebt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.debt(t, "Car loan", 50000)

	res, err := env.exec.PayDebt(ctx, env.owner, Ref{ID: d.ID}, PaymentInput{Amount: cents(50000)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Debt.Balance != cents(0) || res.Debt.Status != core.DebtPaid || res.Debt.PaidAt == nil {
		t.Fatalf("after full payment: %+v", res.Debt)
	}

	rev, err := env.exec.RevisePayment(ctx, env.owner, res.Payment.ID, PaymentInput{Amount: cents(30000)})
	if err != nil {
		t.Fatal(err)
	}
	if rev.Debt.Balance != cents(20000) || rev.Debt.Status != core.DebtActive || rev.Debt.PaidAt != nil {
		t.Fatalf("after revision: %+v", rev.Debt)
	}
}

func TestOverpaymentClampsBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.debt(t, "Phone", 50000)

	res, err := env.exec.PayDebt(ctx, env.owner, Ref{Name: "phone"}, PaymentInput{Amount: cents(70000)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Debt.ID != d.ID || res.Debt.Balance != cents(0) || res.Debt.Status != core.DebtPaid {
		t.Fatalf("overpayment: %+v", res.Debt)
	}
	if res.Debt.Progress() != 100 {
		t.Fatalf("progress = %v", res.Debt.Progress())
	}

	after, err := env.exec.RemovePayment(ctx, env.owner, res.Payment.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Balance != cents(50000) || after.Status != core.DebtActive {
		t.Fatalf("after removal: %+v", after)
	}
}

func TestDebtTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.debt(t, "Credit card", 80000)
	if _, err := env.exec.PayDebt(ctx, env.owner, Ref{ID: d.ID}, PaymentInput{Amount: cents(10000)}); err != nil {
		t.Fatal(err)
	}

	paused, err := env.exec.PauseDebt(ctx, env.owner, d.ID)
	if err != nil || paused.Status != core.DebtPaused {
		t.Fatalf("pause: %v %s", err, paused.Status)
	}
	resumed, err := env.exec.ResumeDebt(ctx, env.owner, d.ID)
	if err != nil || resumed.Status != core.DebtActive {
		t.Fatalf("resume: %v %s", err, resumed.Status)
	}

	if _, err := env.exec.ReopenDebt(ctx, env.owner, d.ID); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("reopen unforced debt: %v", err)
	}

	forced, err := env.exec.ForcePayDebt(ctx, env.owner, d.ID)
	if err != nil || forced.Status != core.DebtPaid || forced.Balance != cents(0) {
		t.Fatalf("force pay: %v %+v", err, forced)
	}
	if _, err := env.exec.PauseDebt(ctx, env.owner, d.ID); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("pause paid debt: %v", err)
	}

	reopened, err := env.exec.ReopenDebt(ctx, env.owner, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Balance != cents(70000) || reopened.Status != core.DebtActive {
		t.Fatalf("reopen: %+v", reopened)
	}
}

func TestUpdateDebtRederivesBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.debt(t, "Loan", 100000)
	if _, err := env.exec.PayDebt(ctx, env.owner, Ref{ID: d.ID}, PaymentInput{Amount: cents(60000)}); err != nil {
		t.Fatal(err)
	}

	lower := cents(60000)
	got, err := env.exec.UpdateDebt(ctx, env.owner, d.ID, DebtPatch{Original: &lower})
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance != cents(0) || got.Status != core.DebtPaid {
		t.Fatalf("lowered original: %+v", got)
	}

	monthly := cents(5000)
	rate := int64(750)
	got, err = env.exec.UpdateDebt(ctx, env.owner, d.ID, DebtPatch{MonthlyPayment: &monthly, InterestRateBP: &rate})
	if err != nil {
		t.Fatal(err)
	}
	if got.MonthlyPayment == nil || *got.MonthlyPayment != monthly || got.InterestRateBP != 750 {
		t.Fatalf("patch fields: %+v", got)
	}

	zero := cents(0)
	if got, err = env.exec.UpdateDebt(ctx, env.owner, d.ID, DebtPatch{MonthlyPayment: &zero}); err != nil || got.MonthlyPayment != nil {
		t.Fatalf("clear monthly payment: %v %+v", err, got.MonthlyPayment)
	}

	bad := int64(-1)
	if _, err := env.exec.UpdateDebt(ctx, env.owner, d.ID, DebtPatch{InterestRateBP: &bad}); !errors.Is(err, core.ErrInvalidRate) {
		t.Fatalf("negative rate: %v", err)
	}
}

func TestDebtOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.debt(t, "Mortgage", 1000000)
	res, err := env.exec.PayDebt(ctx, env.owner, Ref{ID: d.ID}, PaymentInput{Amount: cents(100)})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.exec.PayDebt(ctx, env.intruder, Ref{ID: d.ID}, PaymentInput{Amount: cents(100)}); !errors.Is(err, core.ErrDebtNotFound) {
		t.Fatalf("intruder payment: %v", err)
	}
	if _, err := env.exec.RemovePayment(ctx, env.intruder, res.Payment.ID); !errors.Is(err, core.ErrPaymentNotFound) {
		t.Fatalf("intruder removal: %v", err)
	}
	if _, err := env.exec.ListPayments(ctx, env.intruder, d.ID); !errors.Is(err, core.ErrDebtNotFound) {
		t.Fatalf("intruder listing: %v", err)
	}
	if err := env.exec.DeleteDebt(ctx, env.owner, d.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.exec.GetDebt(ctx, env.owner, d.ID); !errors.Is(err, core.ErrDebtNotFound) {
		t.Fatalf("deleted debt still there: %v", err)
	}
}
