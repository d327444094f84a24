package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// DefaultRecentTransactions is how many recent operations a snapshot carries.
const DefaultRecentTransactions = 10

const snapshotBuildTimeout = 30 * time.Second

// SnapshotBuilder assembles the read-only view of an owner's finances that
// the agent receives with every request. Concurrent builds for the same
// owner share one set of queries.
type SnapshotBuilder struct {
	queries    *storage.Queries
	categories *CategoryCatalog
	recent     int
	now        func() time.Time
	group      singleflight.Group
}

func NewSnapshotBuilder(queries *storage.Queries, categories *CategoryCatalog, recent int, now func() time.Time) *SnapshotBuilder {
	if recent <= 0 {
		recent = DefaultRecentTransactions
	}
	if now == nil {
		now = time.Now
	}
	return &SnapshotBuilder{queries: queries, categories: categories, recent: recent, now: now}
}

// Build returns the current snapshot for owner. It reads committed data
// only, so it is never newer than the last finished mutation.
func (b *SnapshotBuilder) Build(ctx context.Context, owner string) (core.Snapshot, error) {
	if err := requireOwner(owner); err != nil {
		return core.Snapshot{}, err
	}
	// The shared build outlives any single caller; each caller still
	// stops waiting when its own context ends.
	ch := b.group.DoChan(owner, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotBuildTimeout)
		defer cancel()
		return b.build(ctx, owner)
	})
	select {
	case <-ctx.Done():
		return core.Snapshot{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return core.Snapshot{}, r.Err
		}
		return r.Val.(core.Snapshot), nil
	}
}

func (b *SnapshotBuilder) build(ctx context.Context, owner string) (core.Snapshot, error) {
	now := b.now().UTC()
	snap := core.Snapshot{GeneratedAt: now, Today: core.DateOf(now)}

	var err error
	snap.Month, snap.ByCategory, err = b.Month(ctx, owner, snap.Today)
	if err != nil {
		return snap, err
	}

	if snap.Categories, err = b.categories.List(ctx, owner); err != nil {
		return snap, fmt.Errorf("snapshot categories: %w", err)
	}

	goals, err := b.queries.ListGoals(ctx, owner, core.GoalActive, core.GoalPaused)
	if err != nil {
		return snap, fmt.Errorf("snapshot goals: %w", err)
	}
	snap.Goals = make([]core.GoalProgress, 0, len(goals))
	for _, g := range goals {
		snap.Goals = append(snap.Goals, core.ProgressOf(g))
	}

	debts, err := b.queries.ListDebts(ctx, owner, core.DebtActive, core.DebtPaused)
	if err != nil {
		return snap, fmt.Errorf("snapshot debts: %w", err)
	}
	snap.Debts = make([]core.DebtProgress, 0, len(debts))
	for _, d := range debts {
		snap.Debts = append(snap.Debts, core.DebtProgressOf(d))
	}

	if snap.Recent, err = b.queries.ListTransactions(ctx, owner, storage.TransactionFilter{Limit: b.recent}); err != nil {
		return snap, fmt.Errorf("snapshot transactions: %w", err)
	}
	return snap, nil
}

// Month returns the totals and the expense breakdown for the month
// containing day.
func (b *SnapshotBuilder) Month(ctx context.Context, owner string, day core.Date) (core.MonthTotals, []core.CategoryAmount, error) {
	from, to := day.MonthRange()
	totals, err := b.queries.MonthTotals(ctx, owner, from, to)
	if err != nil {
		return totals, nil, err
	}
	byCat, err := b.queries.ExpensesByCategory(ctx, owner, from, to)
	if err != nil {
		return totals, nil, err
	}
	return totals, byCat, nil
}
