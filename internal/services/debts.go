package services

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// DebtAggregate keeps one debt consistent with its payment ledger. The
// locking discipline matches GoalAggregate.
type DebtAggregate struct {
	store *storage.Store
	now   func() time.Time
}

func NewDebtAggregate(store *storage.Store, now func() time.Time) *DebtAggregate {
	if now == nil {
		now = time.Now
	}
	return &DebtAggregate{store: store, now: now}
}

// PaymentInput is a new or revised payment. A zero date means today.
type PaymentInput = ContributionInput

func (a *DebtAggregate) Recompute(ctx context.Context, owner string, debtID int64) (core.Debt, error) {
	var d core.Debt
	err := a.store.InTx(ctx, func(q *storage.Queries) error {
		if err := q.LockDebt(ctx, owner, debtID, a.now()); err != nil {
			return err
		}
		var err error
		d, err = a.recompute(ctx, q, owner, debtID)
		return err
	})
	return d, err
}

func (a *DebtAggregate) ApplyPayment(ctx context.Context, owner string, debtID int64, in PaymentInput) (core.DebtPayment, core.Debt, error) {
	var (
		p core.DebtPayment
		d core.Debt
	)
	err := a.store.InTx(ctx, func(q *storage.Queries) error {
		var err error
		p, d, err = a.applyPayment(ctx, q, owner, debtID, in)
		return err
	})
	return p, d, err
}

func (a *DebtAggregate) RevisePayment(ctx context.Context, owner string, paymentID int64, in PaymentInput) (core.DebtPayment, core.Debt, error) {
	var (
		p core.DebtPayment
		d core.Debt
	)
	err := a.store.InTx(ctx, func(q *storage.Queries) error {
		var err error
		p, d, err = a.revisePayment(ctx, q, owner, paymentID, in)
		return err
	})
	return p, d, err
}

func (a *DebtAggregate) RemovePayment(ctx context.Context, owner string, paymentID int64) (core.DebtPayment, core.Debt, error) {
	var (
		p core.DebtPayment
		d core.Debt
	)
	err := a.store.InTx(ctx, func(q *storage.Queries) error {
		var err error
		p, d, err = a.removePayment(ctx, q, owner, paymentID)
		return err
	})
	return p, d, err
}

func (a *DebtAggregate) ForcePaid(ctx context.Context, owner string, debtID int64) (core.Debt, error) {
	return a.transition(ctx, owner, debtID, func(d core.Debt, paid core.Money) (core.Debt, error) {
		return d.WithForcedPayoff(paid, a.now()), nil
	})
}

func (a *DebtAggregate) SetPaused(ctx context.Context, owner string, debtID int64, paused bool) (core.Debt, error) {
	return a.transition(ctx, owner, debtID, func(d core.Debt, _ core.Money) (core.Debt, error) {
		return d.WithPaused(paused)
	})
}

func (a *DebtAggregate) Reopen(ctx context.Context, owner string, debtID int64) (core.Debt, error) {
	return a.transition(ctx, owner, debtID, func(d core.Debt, paid core.Money) (core.Debt, error) {
		return d.WithReopened(paid, a.now())
	})
}

func (a *DebtAggregate) transition(ctx context.Context, owner string, debtID int64, fn func(core.Debt, core.Money) (core.Debt, error)) (core.Debt, error) {
	var d core.Debt
	err := a.store.InTx(ctx, func(q *storage.Queries) error {
		now := a.now()
		if err := q.LockDebt(ctx, owner, debtID, now); err != nil {
			return err
		}
		cur, err := q.GetDebt(ctx, owner, debtID)
		if err != nil {
			return err
		}
		paid, err := q.SumPayments(ctx, owner, debtID)
		if err != nil {
			return err
		}
		next, err := fn(cur, paid)
		if err != nil {
			return fmt.Errorf("debt %d is %s: %w", debtID, cur.Status, err)
		}
		next.UpdatedAt = now
		if err := q.SaveDebt(ctx, next); err != nil {
			return err
		}
		d = next
		return nil
	})
	return d, err
}

func (a *DebtAggregate) applyPayment(ctx context.Context, q *storage.Queries, owner string, debtID int64, in PaymentInput) (core.DebtPayment, core.Debt, error) {
	now := a.now()
	in, err := in.validate(core.DateOf(now))
	if err != nil {
		return core.DebtPayment{}, core.Debt{}, err
	}
	if err := q.LockDebt(ctx, owner, debtID, now); err != nil {
		return core.DebtPayment{}, core.Debt{}, err
	}
	p, err := q.InsertPayment(ctx, core.DebtPayment{
		DebtID:    debtID,
		Owner:     owner,
		Amount:    in.Amount,
		Date:      in.Date,
		Note:      in.Note,
		CreatedAt: now,
	})
	if err != nil {
		return p, core.Debt{}, err
	}
	d, err := a.recompute(ctx, q, owner, debtID)
	return p, d, err
}

func (a *DebtAggregate) revisePayment(ctx context.Context, q *storage.Queries, owner string, paymentID int64, in PaymentInput) (core.DebtPayment, core.Debt, error) {
	now := a.now()
	in, err := in.validate(core.DateOf(now))
	if err != nil {
		return core.DebtPayment{}, core.Debt{}, err
	}
	p, err := a.lockByPayment(ctx, q, owner, paymentID, now)
	if err != nil {
		return p, core.Debt{}, err
	}
	p.Amount, p.Date, p.Note = in.Amount, in.Date, in.Note
	if err := q.UpdatePayment(ctx, p); err != nil {
		return p, core.Debt{}, err
	}
	d, err := a.recompute(ctx, q, owner, p.DebtID)
	return p, d, err
}

func (a *DebtAggregate) removePayment(ctx context.Context, q *storage.Queries, owner string, paymentID int64) (core.DebtPayment, core.Debt, error) {
	p, err := a.lockByPayment(ctx, q, owner, paymentID, a.now())
	if err != nil {
		return p, core.Debt{}, err
	}
	if err := q.DeletePayment(ctx, owner, paymentID); err != nil {
		return p, core.Debt{}, err
	}
	d, err := a.recompute(ctx, q, owner, p.DebtID)
	return p, d, err
}

func (a *DebtAggregate) lockByPayment(ctx context.Context, q *storage.Queries, owner string, paymentID int64, now time.Time) (core.DebtPayment, error) {
	p, err := q.GetPayment(ctx, owner, paymentID)
	if err != nil {
		return p, err
	}
	if err := q.LockDebt(ctx, owner, p.DebtID, now); err != nil {
		return p, err
	}
	return q.GetPayment(ctx, owner, paymentID)
}

// recompute sets balance and status from the payment ledger. The debt row
// must already be locked.
func (a *DebtAggregate) recompute(ctx context.Context, q *storage.Queries, owner string, debtID int64) (core.Debt, error) {
	d, err := q.GetDebt(ctx, owner, debtID)
	if err != nil {
		return d, err
	}
	paid, err := q.SumPayments(ctx, owner, debtID)
	if err != nil {
		return d, err
	}
	now := a.now()
	next := d.Derive(paid, now)
	if next.Balance == d.Balance && next.Status == d.Status && sameTime(next.PaidAt, d.PaidAt) {
		return d, nil
	}
	next.UpdatedAt = now
	if err := q.SaveDebt(ctx, next); err != nil {
		return d, err
	}
	return next, nil
}
