package storage

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/core"
)

const goalColumns = `id, owner_id, name, target_cents, current_cents, target_date, status,
	priority, forced, completed_at, created_at, updated_at`

func scanGoal(s interface{ Scan(...any) error }) (core.SavingsGoal, error) {
	var g core.SavingsGoal
	err := s.Scan(&g.ID, &g.Owner, &g.Name, &g.Target.Cents, &g.Current.Cents,
		dateCol{&g.TargetDate}, &g.Status, &g.Priority, &g.Forced,
		optTimeCol{&g.CompletedAt}, timeCol{&g.CreatedAt}, timeCol{&g.UpdatedAt})
	return g, err
}

func (q *Queries) InsertGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	err := q.queryRow(ctx,
		`INSERT INTO savings_goals (owner_id, name, target_cents, current_cents, target_date, status,
		                            priority, forced, completed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		g.Owner, g.Name, g.Target.Cents, g.Current.Cents, dateArg(g.TargetDate), string(g.Status),
		g.Priority, g.Forced, optTimeArg(g.CompletedAt), timeArg(g.CreatedAt), timeArg(g.UpdatedAt)).
		Scan(&g.ID)
	if err != nil {
		return g, fmt.Errorf("insert savings goal: %w", err)
	}
	return g, nil
}

func (q *Queries) GetGoal(ctx context.Context, ownerID string, id int64) (core.SavingsGoal, error) {
	g, err := scanGoal(q.queryRow(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE id = ? AND owner_id = ?`, id, ownerID))
	if isNoRows(err) {
		return g, core.ErrGoalNotFound
	}
	if err != nil {
		return g, fmt.Errorf("get savings goal: %w", err)
	}
	return g, nil
}

// LockGoal is the first statement of every goal mutation. The write takes
// the row lock on PostgreSQL and the database write lock on SQLite, so
// concurrent mutations of one goal run one after another.
func (q *Queries) LockGoal(ctx context.Context, ownerID string, id int64, now time.Time) error {
	res, err := q.exec(ctx,
		`UPDATE savings_goals SET updated_at = ? WHERE id = ? AND owner_id = ?`,
		timeArg(now), id, ownerID)
	if err != nil {
		return fmt.Errorf("lock savings goal: %w", err)
	}
	return affected(res, core.ErrGoalNotFound)
}

// ListGoals returns the owner's goals by priority then name. Statuses
// filters when non-empty.
func (q *Queries) ListGoals(ctx context.Context, ownerID string, statuses ...core.GoalStatus) ([]core.SavingsGoal, error) {
	rows, err := q.query(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE owner_id = ? ORDER BY priority, name, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list savings goals: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan savings goal: %w", err)
		}
		if len(statuses) > 0 && !hasStatus(statuses, g.Status) {
			continue
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func hasStatus[S comparable](set []S, s S) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// SaveGoal writes every mutable column of g.
func (q *Queries) SaveGoal(ctx context.Context, g core.SavingsGoal) error {
	res, err := q.exec(ctx,
		`UPDATE savings_goals
		 SET name = ?, target_cents = ?, current_cents = ?, target_date = ?, status = ?,
		     priority = ?, forced = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		g.Name, g.Target.Cents, g.Current.Cents, dateArg(g.TargetDate), string(g.Status),
		g.Priority, g.Forced, optTimeArg(g.CompletedAt), timeArg(g.UpdatedAt),
		g.ID, g.Owner)
	if err != nil {
		return fmt.Errorf("update savings goal: %w", err)
	}
	return affected(res, core.ErrGoalNotFound)
}

// DeleteGoal removes the goal and its contributions.
func (q *Queries) DeleteGoal(ctx context.Context, ownerID string, id int64) error {
	if _, err := q.exec(ctx,
		`DELETE FROM savings_contributions WHERE goal_id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return fmt.Errorf("delete savings contributions: %w", err)
	}
	res, err := q.exec(ctx, `DELETE FROM savings_goals WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete savings goal: %w", err)
	}
	return affected(res, core.ErrGoalNotFound)
}

const contributionColumns = `id, goal_id, owner_id, amount_cents, date, note, created_at`

func scanContribution(s interface{ Scan(...any) error }) (core.SavingsContribution, error) {
	var c core.SavingsContribution
	err := s.Scan(&c.ID, &c.GoalID, &c.Owner, &c.Amount.Cents, dateCol{&c.Date}, &c.Note, timeCol{&c.CreatedAt})
	return c, err
}

func (q *Queries) InsertContribution(ctx context.Context, c core.SavingsContribution) (core.SavingsContribution, error) {
	err := q.queryRow(ctx,
		`INSERT INTO savings_contributions (goal_id, owner_id, amount_cents, date, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		c.GoalID, c.Owner, c.Amount.Cents, dateArg(c.Date), c.Note, timeArg(c.CreatedAt)).Scan(&c.ID)
	if err != nil {
		return c, fmt.Errorf("insert savings contribution: %w", err)
	}
	return c, nil
}

func (q *Queries) GetContribution(ctx context.Context, ownerID string, id int64) (core.SavingsContribution, error) {
	c, err := scanContribution(q.queryRow(ctx,
		`SELECT `+contributionColumns+` FROM savings_contributions WHERE id = ? AND owner_id = ?`, id, ownerID))
	if isNoRows(err) {
		return c, core.ErrContributionNotFound
	}
	if err != nil {
		return c, fmt.Errorf("get savings contribution: %w", err)
	}
	return c, nil
}

func (q *Queries) UpdateContribution(ctx context.Context, c core.SavingsContribution) error {
	res, err := q.exec(ctx,
		`UPDATE savings_contributions SET amount_cents = ?, date = ?, note = ?
		 WHERE id = ? AND owner_id = ?`,
		c.Amount.Cents, dateArg(c.Date), c.Note, c.ID, c.Owner)
	if err != nil {
		return fmt.Errorf("update savings contribution: %w", err)
	}
	return affected(res, core.ErrContributionNotFound)
}

func (q *Queries) DeleteContribution(ctx context.Context, ownerID string, id int64) error {
	res, err := q.exec(ctx,
		`DELETE FROM savings_contributions WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete savings contribution: %w", err)
	}
	return affected(res, core.ErrContributionNotFound)
}

func (q *Queries) ListContributions(ctx context.Context, ownerID string, goalID int64) ([]core.SavingsContribution, error) {
	rows, err := q.query(ctx,
		`SELECT `+contributionColumns+` FROM savings_contributions
		 WHERE goal_id = ? AND owner_id = ? ORDER BY date DESC, id DESC`, goalID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list savings contributions: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsContribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan savings contribution: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SumContributions is the ledger total a goal's current amount derives from.
func (q *Queries) SumContributions(ctx context.Context, ownerID string, goalID int64) (core.Money, error) {
	var cents int64
	err := q.queryRow(ctx,
		`SELECT CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT)
		 FROM savings_contributions WHERE goal_id = ? AND owner_id = ?`, goalID, ownerID).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum savings contributions: %w", err)
	}
	return core.Money{Cents: cents}, nil
}
