package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fintrack/internal/core"
)

const debtColumns = `id, owner_id, name, original_cents, current_balance_cents, interest_rate_bp,
	monthly_payment_cents, due_date, status, priority, forced, paid_at, created_at, updated_at`

func scanDebt(s interface{ Scan(...any) error }) (core.Debt, error) {
	var (
		d       core.Debt
		monthly sql.NullInt64
	)
	err := s.Scan(&d.ID, &d.Owner, &d.Name, &d.Original.Cents, &d.Balance.Cents, &d.InterestRateBP,
		&monthly, dateCol{&d.DueDate}, &d.Status, &d.Priority, &d.Forced,
		optTimeCol{&d.PaidAt}, timeCol{&d.CreatedAt}, timeCol{&d.UpdatedAt})
	if monthly.Valid {
		d.MonthlyPayment = &core.Money{Cents: monthly.Int64}
	}
	return d, err
}

func monthlyArg(m *core.Money) any {
	if m == nil {
		return nil
	}
	return m.Cents
}

func (q *Queries) InsertDebt(ctx context.Context, d core.Debt) (core.Debt, error) {
	err := q.queryRow(ctx,
		`INSERT INTO debts (owner_id, name, original_cents, current_balance_cents, interest_rate_bp,
		                    monthly_payment_cents, due_date, status, priority, forced, paid_at,
		                    created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		d.Owner, d.Name, d.Original.Cents, d.Balance.Cents, d.InterestRateBP,
		monthlyArg(d.MonthlyPayment), dateArg(d.DueDate), string(d.Status), d.Priority, d.Forced,
		optTimeArg(d.PaidAt), timeArg(d.CreatedAt), timeArg(d.UpdatedAt)).Scan(&d.ID)
	if err != nil {
		return d, fmt.Errorf("insert debt: %w", err)
	}
	return d, nil
}

func (q *Queries) GetDebt(ctx context.Context, ownerID string, id int64) (core.Debt, error) {
	d, err := scanDebt(q.queryRow(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE id = ? AND owner_id = ?`, id, ownerID))
	if isNoRows(err) {
		return d, core.ErrDebtNotFound
	}
	if err != nil {
		return d, fmt.Errorf("get debt: %w", err)
	}
	return d, nil
}

// LockDebt serializes mutations of one debt; see LockGoal.
func (q *Queries) LockDebt(ctx context.Context, ownerID string, id int64, now time.Time) error {
	res, err := q.exec(ctx,
		`UPDATE debts SET updated_at = ? WHERE id = ? AND owner_id = ?`,
		timeArg(now), id, ownerID)
	if err != nil {
		return fmt.Errorf("lock debt: %w", err)
	}
	return affected(res, core.ErrDebtNotFound)
}

func (q *Queries) ListDebts(ctx context.Context, ownerID string, statuses ...core.DebtStatus) ([]core.Debt, error) {
	rows, err := q.query(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE owner_id = ? ORDER BY priority, name, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()

	var out []core.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		if len(statuses) > 0 && !hasStatus(statuses, d.Status) {
			continue
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (q *Queries) SaveDebt(ctx context.Context, d core.Debt) error {
	res, err := q.exec(ctx,
		`UPDATE debts
		 SET name = ?, original_cents = ?, current_balance_cents = ?, interest_rate_bp = ?,
		     monthly_payment_cents = ?, due_date = ?, status = ?, priority = ?, forced = ?,
		     paid_at = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		d.Name, d.Original.Cents, d.Balance.Cents, d.InterestRateBP,
		monthlyArg(d.MonthlyPayment), dateArg(d.DueDate), string(d.Status), d.Priority, d.Forced,
		optTimeArg(d.PaidAt), timeArg(d.UpdatedAt),
		d.ID, d.Owner)
	if err != nil {
		return fmt.Errorf("update debt: %w", err)
	}
	return affected(res, core.ErrDebtNotFound)
}

// DeleteDebt removes the debt and its payments.
func (q *Queries) DeleteDebt(ctx context.Context, ownerID string, id int64) error {
	if _, err := q.exec(ctx,
		`DELETE FROM debt_payments WHERE debt_id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return fmt.Errorf("delete debt payments: %w", err)
	}
	res, err := q.exec(ctx, `DELETE FROM debts WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete debt: %w", err)
	}
	return affected(res, core.ErrDebtNotFound)
}

const paymentColumns = `id, debt_id, owner_id, amount_cents, date, note, created_at`

func scanPayment(s interface{ Scan(...any) error }) (core.DebtPayment, error) {
	var p core.DebtPayment
	err := s.Scan(&p.ID, &p.DebtID, &p.Owner, &p.Amount.Cents, dateCol{&p.Date}, &p.Note, timeCol{&p.CreatedAt})
	return p, err
}

func (q *Queries) InsertPayment(ctx context.Context, p core.DebtPayment) (core.DebtPayment, error) {
	err := q.queryRow(ctx,
		`INSERT INTO debt_payments (debt_id, owner_id, amount_cents, date, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		p.DebtID, p.Owner, p.Amount.Cents, dateArg(p.Date), p.Note, timeArg(p.CreatedAt)).Scan(&p.ID)
	if err != nil {
		return p, fmt.Errorf("insert debt payment: %w", err)
	}
	return p, nil
}

func (q *Queries) GetPayment(ctx context.Context, ownerID string, id int64) (core.DebtPayment, error) {
	p, err := scanPayment(q.queryRow(ctx,
		`SELECT `+paymentColumns+` FROM debt_payments WHERE id = ? AND owner_id = ?`, id, ownerID))
	if isNoRows(err) {
		return p, core.ErrPaymentNotFound
	}
	if err != nil {
		return p, fmt.Errorf("get debt payment: %w", err)
	}
	return p, nil
}

func (q *Queries) UpdatePayment(ctx context.Context, p core.DebtPayment) error {
	res, err := q.exec(ctx,
		`UPDATE debt_payments SET amount_cents = ?, date = ?, note = ?
		 WHERE id = ? AND owner_id = ?`,
		p.Amount.Cents, dateArg(p.Date), p.Note, p.ID, p.Owner)
	if err != nil {
		return fmt.Errorf("update debt payment: %w", err)
	}
	return affected(res, core.ErrPaymentNotFound)
}

func (q *Queries) DeletePayment(ctx context.Context, ownerID string, id int64) error {
	res, err := q.exec(ctx, `DELETE FROM debt_payments WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete debt payment: %w", err)
	}
	return affected(res, core.ErrPaymentNotFound)
}

func (q *Queries) ListPayments(ctx context.Context, ownerID string, debtID int64) ([]core.DebtPayment, error) {
	rows, err := q.query(ctx,
		`SELECT `+paymentColumns+` FROM debt_payments
		 WHERE debt_id = ? AND owner_id = ? ORDER BY date DESC, id DESC`, debtID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list debt payments: %w", err)
	}
	defer rows.Close()

	var out []core.DebtPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SumPayments is the ledger total a debt's balance derives from.
func (q *Queries) SumPayments(ctx context.Context, ownerID string, debtID int64) (core.Money, error) {
	var cents int64
	err := q.queryRow(ctx,
		`SELECT CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT)
		 FROM debt_payments WHERE debt_id = ? AND owner_id = ?`, debtID, ownerID).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum debt payments: %w", err)
	}
	return core.Money{Cents: cents}, nil
}
