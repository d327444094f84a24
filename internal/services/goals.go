package services

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// GoalAggregate keeps one savings goal consistent with its contribution
// ledger. Every exported method runs in its own transaction; the
// unexported ones expect the caller's transaction and always lock the goal
// row before reading anything.
type GoalAggregate struct {
	store *storage.Store
	now   func() time.Time
}

func NewGoalAggregate(store *storage.Store, now func() time.Time) *GoalAggregate {
	if now == nil {
		now = time.Now
	}
	return &GoalAggregate{store: store, now: now}
}

// ContributionInput is a new or revised ledger entry. A zero date means today.
type ContributionInput struct {
	Amount core.Money
	Date   core.Date
	Note   string
}

func (in ContributionInput) validate(today core.Date) (ContributionInput, error) {
	if err := in.Amount.Validate(); err != nil {
		return in, err
	}
	if err := core.ValidateNote(in.Note); err != nil {
		return in, err
	}
	if in.Date.IsEmpty() {
		in.Date = today
	}
	return in, nil
}

// Recompute re-derives the goal from its ledger. Calling it twice without
// an intervening mutation yields the same result.
func (a *GoalAggregate) Recompute(ctx context.Context, owner string, goalID int64) (core.SavingsGoal, error) {
	var g core.SavingsGoal
	err := a.store.InTx(ctx, func(q *storage.Queries) error {
		if err := q.LockGoal(ctx, owner, goalID, a.now()); err != nil {
			return err
		}
		var err error
		g, err = a.recompute(ctx, q, owner, goalID)
		return err
	})
	return g, err
}

func (a *GoalAggregate) ApplyContribution(ctx context.Context, owner string, goalID int64, in ContributionInput) (core.SavingsContribution, core.SavingsGoal, error) {
	var (
		c core.SavingsContribution
		g core.SavingsGoal
	)
	err := a.store.InTx(ctx, func(q *storage.Queries) error {
		var err error
		c, g, err = a.applyContribution(ctx, q, owner, goalID, in)
		return err
	})
	return c, g, err
}

func (a *GoalAggregate) ReviseContribution(ctx context.Context, owner string, contributionID int64, in ContributionInput) (core.SavingsContribution, core.SavingsGoal, error) {
	var (
		c core.SavingsContribution
		g core.SavingsGoal
	)
	err := a.store.InTx(ctx, func(q *storage.Queries) error {
		var err error
		c, g, err = a.reviseContribution(ctx, q, owner, contributionID, in)
		return err
	})
	return c, g, err
}

func (a *GoalAggregate) RemoveContribution(ctx context.Context, owner string, contributionID int64) (core.SavingsContribution, core.SavingsGoal, error) {
	var (
		c core.SavingsContribution
		g core.SavingsGoal
	)
	err := a.store.InTx(ctx, func(q *storage.Queries) error {
		var err error
		c, g, err = a.removeContribution(ctx, q, owner, contributionID)
		return err
	})
	return c, g, err
}

func (a *GoalAggregate) ForceComplete(ctx context.Context, owner string, goalID int64) (core.SavingsGoal, error) {
	return a.transition(ctx, owner, goalID, func(g core.SavingsGoal) (core.SavingsGoal, error) {
		return g.WithForcedCompletion(a.now())
	})
}

func (a *GoalAggregate) SetPaused(ctx context.Context, owner string, goalID int64, paused bool) (core.SavingsGoal, error) {
	return a.transition(ctx, owner, goalID, func(g core.SavingsGoal) (core.SavingsGoal, error) {
		return g.WithPaused(paused)
	})
}

func (a *GoalAggregate) Cancel(ctx context.Context, owner string, goalID int64) (core.SavingsGoal, error) {
	return a.transition(ctx, owner, goalID, core.SavingsGoal.WithCancelled)
}

func (a *GoalAggregate) Reopen(ctx context.Context, owner string, goalID int64) (core.SavingsGoal, error) {
	return a.transition(ctx, owner, goalID, func(g core.SavingsGoal) (core.SavingsGoal, error) {
		return g.WithReopened(a.now())
	})
}

func (a *GoalAggregate) transition(ctx context.Context, owner string, goalID int64, fn func(core.SavingsGoal) (core.SavingsGoal, error)) (core.SavingsGoal, error) {
	var g core.SavingsGoal
	err := a.store.InTx(ctx, func(q *storage.Queries) error {
		now := a.now()
		if err := q.LockGoal(ctx, owner, goalID, now); err != nil {
			return err
		}
		cur, err := q.GetGoal(ctx, owner, goalID)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return fmt.Errorf("goal %d is %s: %w", goalID, cur.Status, err)
		}
		if err := q.SaveGoal(ctx, next); err != nil {
			return err
		}
		// Forced flags and statuses feed derivation; settle it from the ledger.
		g, err = a.recompute(ctx, q, owner, goalID)
		return err
	})
	return g, err
}

func (a *GoalAggregate) applyContribution(ctx context.Context, q *storage.Queries, owner string, goalID int64, in ContributionInput) (core.SavingsContribution, core.SavingsGoal, error) {
	now := a.now()
	in, err := in.validate(core.DateOf(now))
	if err != nil {
		return core.SavingsContribution{}, core.SavingsGoal{}, err
	}
	if err := q.LockGoal(ctx, owner, goalID, now); err != nil {
		return core.SavingsContribution{}, core.SavingsGoal{}, err
	}
	g, err := q.GetGoal(ctx, owner, goalID)
	if err != nil {
		return core.SavingsContribution{}, core.SavingsGoal{}, err
	}
	if err := g.CheckContributable(); err != nil {
		return core.SavingsContribution{}, g, fmt.Errorf("goal %q is %s: %w", g.Name, g.Status, err)
	}

	sum, err := q.SumContributions(ctx, owner, goalID)
	if err != nil {
		return core.SavingsContribution{}, g, err
	}
	if err := g.CheckWithinTarget(sum.Add(in.Amount)); err != nil {
		return core.SavingsContribution{}, g, fmt.Errorf("goal %q has %s left: %w", g.Name, g.Target.Sub(sum), err)
	}

	c, err := q.InsertContribution(ctx, core.SavingsContribution{
		GoalID:    goalID,
		Owner:     owner,
		Amount:    in.Amount,
		Date:      in.Date,
		Note:      in.Note,
		CreatedAt: now,
	})
	if err != nil {
		return c, g, err
	}
	g, err = a.recompute(ctx, q, owner, goalID)
	return c, g, err
}

func (a *GoalAggregate) reviseContribution(ctx context.Context, q *storage.Queries, owner string, contributionID int64, in ContributionInput) (core.SavingsContribution, core.SavingsGoal, error) {
	now := a.now()
	in, err := in.validate(core.DateOf(now))
	if err != nil {
		return core.SavingsContribution{}, core.SavingsGoal{}, err
	}
	c, g, err := a.lockByContribution(ctx, q, owner, contributionID, now)
	if err != nil {
		return c, g, err
	}
	if err := g.CheckContributable(); err != nil {
		return c, g, fmt.Errorf("goal %q is %s: %w", g.Name, g.Status, err)
	}

	sum, err := q.SumContributions(ctx, owner, g.ID)
	if err != nil {
		return c, g, err
	}
	// Shrinking an entry is always allowed, even if the target was lowered
	// below the current amount in the meantime.
	if in.Amount.Cents > c.Amount.Cents {
		if err := g.CheckWithinTarget(sum.Sub(c.Amount).Add(in.Amount)); err != nil {
			return c, g, fmt.Errorf("goal %q has %s left: %w", g.Name, g.Target.Sub(sum), err)
		}
	}

	c.Amount, c.Date, c.Note = in.Amount, in.Date, in.Note
	if err := q.UpdateContribution(ctx, c); err != nil {
		return c, g, err
	}
	g, err = a.recompute(ctx, q, owner, g.ID)
	return c, g, err
}

func (a *GoalAggregate) removeContribution(ctx context.Context, q *storage.Queries, owner string, contributionID int64) (core.SavingsContribution, core.SavingsGoal, error) {
	now := a.now()
	c, g, err := a.lockByContribution(ctx, q, owner, contributionID, now)
	if err != nil {
		return c, g, err
	}
	if err := q.DeleteContribution(ctx, owner, contributionID); err != nil {
		return c, g, err
	}
	g, err = a.recompute(ctx, q, owner, g.ID)
	return c, g, err
}

// lockByContribution locks the goal owning the contribution, then reads
// both. The contribution is read again after the lock so a concurrent
// revision is never overwritten with stale values.
func (a *GoalAggregate) lockByContribution(ctx context.Context, q *storage.Queries, owner string, contributionID int64, now time.Time) (core.SavingsContribution, core.SavingsGoal, error) {
	c, err := q.GetContribution(ctx, owner, contributionID)
	if err != nil {
		return c, core.SavingsGoal{}, err
	}
	if err := q.LockGoal(ctx, owner, c.GoalID, now); err != nil {
		return c, core.SavingsGoal{}, err
	}
	if c, err = q.GetContribution(ctx, owner, contributionID); err != nil {
		return c, core.SavingsGoal{}, err
	}
	g, err := q.GetGoal(ctx, owner, c.GoalID)
	return c, g, err
}

// recompute sets current amount and status from the ledger sum. The goal
// row must already be locked by the caller's transaction.
func (a *GoalAggregate) recompute(ctx context.Context, q *storage.Queries, owner string, goalID int64) (core.SavingsGoal, error) {
	g, err := q.GetGoal(ctx, owner, goalID)
	if err != nil {
		return g, err
	}
	sum, err := q.SumContributions(ctx, owner, goalID)
	if err != nil {
		return g, err
	}
	now := a.now()
	next := g.Derive(sum, now)
	if next.Current == g.Current && next.Status == g.Status && sameTime(next.CompletedAt, g.CompletedAt) {
		return g, nil
	}
	next.UpdatedAt = now
	if err := q.SaveGoal(ctx, next); err != nil {
		return g, err
	}
	return next, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
