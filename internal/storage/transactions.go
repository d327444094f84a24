package storage

import (
	"context"
	"fmt"

	"fintrack/internal/core"
)

const transactionColumns = `id, owner_id, amount_cents, concept, kind, category_id, operation_date, created_at`

func scanTransaction(s interface{ Scan(...any) error }) (core.Transaction, error) {
	var t core.Transaction
	err := s.Scan(&t.ID, &t.Owner, &t.Amount.Cents, &t.Concept, &t.Kind,
		&t.CategoryID, dateCol{&t.Date}, timeCol{&t.CreatedAt})
	return t, err
}

func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	err := q.queryRow(ctx,
		`INSERT INTO transactions (owner_id, amount_cents, concept, kind, category_id, operation_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		t.Owner, t.Amount.Cents, t.Concept, string(t.Kind), t.CategoryID, dateArg(t.Date), timeArg(t.CreatedAt)).
		Scan(&t.ID)
	if err != nil {
		return t, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

// DeleteTransaction removes an owned transaction. A row that exists under
// another owner yields ErrNotOwned.
func (q *Queries) DeleteTransaction(ctx context.Context, ownerID string, id int64) (core.Transaction, error) {
	t, err := scanTransaction(q.queryRow(ctx,
		`DELETE FROM transactions WHERE id = ? AND owner_id = ? RETURNING `+transactionColumns, id, ownerID))
	if err == nil {
		return t, nil
	}
	if !isNoRows(err) {
		return t, fmt.Errorf("delete transaction: %w", err)
	}

	var exists bool
	if err := q.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = ?)`, id).Scan(&exists); err != nil {
		return t, fmt.Errorf("check transaction: %w", err)
	}
	if exists {
		return t, core.ErrNotOwned
	}
	return t, core.ErrTransactionNotFound
}

// TransactionFilter narrows ListTransactions. Zero values mean no filter.
type TransactionFilter struct {
	From  core.Date // inclusive
	To    core.Date // exclusive
	Kind  core.Kind
	Limit int
}

func (q *Queries) ListTransactions(ctx context.Context, ownerID string, f TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE owner_id = ?`
	args := []any{ownerID}
	if !f.From.IsEmpty() {
		query += ` AND operation_date >= ?`
		args = append(args, dateArg(f.From))
	}
	if !f.To.IsEmpty() {
		query += ` AND operation_date < ?`
		args = append(args, dateArg(f.To))
	}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(f.Kind))
	}
	query += ` ORDER BY operation_date DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MonthTotals sums the owner's transactions per kind in [from, to).
func (q *Queries) MonthTotals(ctx context.Context, ownerID string, from, to core.Date) (core.MonthTotals, error) {
	totals := core.MonthTotals{Year: from.Year(), Month: int(from.Month())}
	rows, err := q.query(ctx,
		`SELECT kind, CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT)
		 FROM transactions
		 WHERE owner_id = ? AND operation_date >= ? AND operation_date < ?
		 GROUP BY kind`, ownerID, dateArg(from), dateArg(to))
	if err != nil {
		return totals, fmt.Errorf("month totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind  core.Kind
			cents int64
		)
		if err := rows.Scan(&kind, &cents); err != nil {
			return totals, fmt.Errorf("scan month totals: %w", err)
		}
		switch kind {
		case core.KindIncome:
			totals.Income = core.Money{Cents: cents}
		case core.KindExpense:
			totals.Expense = core.Money{Cents: cents}
		case core.KindSavings:
			totals.Savings = core.Money{Cents: cents}
		}
	}
	return totals, rows.Err()
}

// ExpensesByCategory sums the owner's expenses per category in [from, to),
// largest first.
func (q *Queries) ExpensesByCategory(ctx context.Context, ownerID string, from, to core.Date) ([]core.CategoryAmount, error) {
	rows, err := q.query(ctx,
		`SELECT c.id, c.name, CAST(SUM(t.amount_cents) AS BIGINT) AS total
		 FROM transactions t
		 JOIN categories c ON c.id = t.category_id
		 WHERE t.owner_id = ? AND t.kind = 'expense'
		   AND t.operation_date >= ? AND t.operation_date < ?
		 GROUP BY c.id, c.name
		 ORDER BY total DESC, c.name`, ownerID, dateArg(from), dateArg(to))
	if err != nil {
		return nil, fmt.Errorf("expenses by category: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryAmount
	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.CategoryID, &ca.Name, &ca.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan category amount: %w", err)
		}
		out = append(out, ca)
	}
	return out, rows.Err()
}
