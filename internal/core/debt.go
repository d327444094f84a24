package core

import "time"

// DebtStatus is the lifecycle state of a debt.
type DebtStatus string

const (
	DebtActive DebtStatus = "active"
	DebtPaused DebtStatus = "paused"
	DebtPaid   DebtStatus = "paid"
)

func (s DebtStatus) Valid() bool {
	switch s {
	case DebtActive, DebtPaused, DebtPaid:
		return true
	}
	return false
}

type (
	Debt struct {
		ID             int64      `json:"id"`
		Owner          string     `json:"-"`
		Name           string     `json:"name"`
		Original       Money      `json:"original_amount"`
		Balance        Money      `json:"current_balance"`
		InterestRateBP int64      `json:"interest_rate_bp"`
		MonthlyPayment *Money     `json:"monthly_payment,omitempty"`
		DueDate        Date       `json:"due_date"`
		Status         DebtStatus `json:"status"`
		Priority       int        `json:"priority"`
		Forced         bool       `json:"forced_paid"`
		PaidAt         *time.Time `json:"paid_at,omitempty"`
		CreatedAt      time.Time  `json:"created_at"`
		UpdatedAt      time.Time  `json:"updated_at"`
	}

	DebtPayment struct {
		ID        int64     `json:"id"`
		DebtID    int64     `json:"debt_id"`
		Owner     string    `json:"-"`
		Amount    Money     `json:"amount"`
		Date      Date      `json:"date"`
		Note      string    `json:"note,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}
)

// PaidOff is how much of the original amount has been repaid.
func (d Debt) PaidOff() Money {
	return d.Original.Sub(d.Balance)
}

// Progress is the payoff percentage in [0, 100].
func (d Debt) Progress() float64 {
	return Percent(d.PaidOff(), d.Original)
}

// ClampBalance computes original - paid clamped to [0, original].
func ClampBalance(original, paid Money) Money {
	b := original.Sub(paid)
	if b.Cents < 0 {
		return Money{}
	}
	if b.Cents > original.Cents {
		return original
	}
	return b
}

// Derive recomputes balance and status of d from the sum of its live
// payments. A forced payoff pins the balance at zero.
func (d Debt) Derive(ledgerSum Money, now time.Time) Debt {
	out := d
	out.Balance = ClampBalance(out.Original, ledgerSum)
	if out.Forced {
		out.Balance = Money{}
	}

	switch {
	case out.Balance.Cents <= 0:
		out.Status = DebtPaid
		if out.PaidAt == nil {
			t := now.UTC()
			out.PaidAt = &t
		}
	case d.Status == DebtPaid:
		out.Status = DebtActive
		out.PaidAt = nil
	default:
		if !out.Status.Valid() {
			out.Status = DebtActive
		}
		out.PaidAt = nil
	}
	return out
}

// WithPaused toggles between active and paused.
func (d Debt) WithPaused(paused bool) (Debt, error) {
	if d.Status == DebtPaid {
		return d, ErrInvalidTransition
	}
	if paused {
		d.Status = DebtPaused
	} else {
		d.Status = DebtActive
	}
	return d, nil
}

// WithForcedPayoff marks the debt paid regardless of remaining balance.
func (d Debt) WithForcedPayoff(ledgerSum Money, now time.Time) Debt {
	d.Forced = true
	return d.Derive(ledgerSum, now)
}

// WithReopened clears a forced payoff so the ledger decides again.
func (d Debt) WithReopened(ledgerSum Money, now time.Time) (Debt, error) {
	if !d.Forced {
		return d, ErrInvalidTransition
	}
	d.Forced = false
	return d.Derive(ledgerSum, now), nil
}
