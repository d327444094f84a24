package core

import "time"

// GoalStatus is the lifecycle state of a savings goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalPaused    GoalStatus = "paused"
	GoalCompleted GoalStatus = "completed"
	GoalCancelled GoalStatus = "cancelled"
)

// Valid reports whether s is one of the four goal states.
func (s GoalStatus) Valid() bool {
	switch s {
	case GoalActive, GoalPaused, GoalCompleted, GoalCancelled:
		return true
	}
	return false
}

// Open goals accept contributions and show up in the agent context.
func (s GoalStatus) Open() bool {
	return s == GoalActive || s == GoalPaused
}

type (
	SavingsGoal struct {
		ID          int64      `json:"id"`
		Owner       string     `json:"-"`
		Name        string     `json:"name"`
		Target      Money      `json:"target_amount"`
		Current     Money      `json:"current_amount"`
		TargetDate  Date       `json:"target_date"`
		Status      GoalStatus `json:"status"`
		Priority    int        `json:"priority"`
		Forced      bool       `json:"forced_completion"`
		CompletedAt *time.Time `json:"completed_at,omitempty"`
		CreatedAt   time.Time  `json:"created_at"`
		UpdatedAt   time.Time  `json:"updated_at"`
	}

	SavingsContribution struct {
		ID        int64     `json:"id"`
		GoalID    int64     `json:"goal_id"`
		Owner     string    `json:"-"`
		Amount    Money     `json:"amount"`
		Date      Date      `json:"date"`
		Note      string    `json:"note,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}
)

// Remaining is how much is left until the target, never negative.
func (g SavingsGoal) Remaining() Money {
	if g.Current.Cents >= g.Target.Cents {
		return Money{}
	}
	return g.Target.Sub(g.Current)
}

// Progress is the completion percentage in [0, 100].
func (g SavingsGoal) Progress() float64 {
	return Percent(g.Current, g.Target)
}

// Derive recomputes the derived fields of g from the sum of its live
// contributions. The result depends only on ledgerSum, the target, the
// forced flag and the previous status; now is used only to stamp a
// fresh completion.
func (g SavingsGoal) Derive(ledgerSum Money, now time.Time) SavingsGoal {
	out := g
	out.Current = ledgerSum
	if out.Current.Cents < 0 {
		out.Current = Money{}
	}

	switch {
	case out.Forced || out.Current.Cents >= out.Target.Cents:
		out.Status = GoalCompleted
		if out.CompletedAt == nil {
			t := now.UTC()
			out.CompletedAt = &t
		}
	case g.Status == GoalCompleted:
		out.Status = GoalActive
		out.CompletedAt = nil
	default:
		if !out.Status.Valid() {
			out.Status = GoalActive
		}
		out.CompletedAt = nil
	}
	return out
}

// CheckContributable rejects ledger additions on goals that cannot take money.
func (g SavingsGoal) CheckContributable() error {
	if g.Status == GoalCancelled {
		return ErrInvalidTransition
	}
	return nil
}

// CheckWithinTarget enforces the no-overshoot rule for a prospective sum.
func (g SavingsGoal) CheckWithinTarget(prospective Money) error {
	if prospective.Cents > g.Target.Cents {
		return ErrOverTarget
	}
	return nil
}

// WithPaused toggles between active and paused.
func (g SavingsGoal) WithPaused(paused bool) (SavingsGoal, error) {
	switch g.Status {
	case GoalCompleted, GoalCancelled:
		return g, ErrInvalidTransition
	}
	if paused {
		g.Status = GoalPaused
	} else {
		g.Status = GoalActive
	}
	return g, nil
}

// WithForcedCompletion closes the goal regardless of its balance.
func (g SavingsGoal) WithForcedCompletion(now time.Time) (SavingsGoal, error) {
	if g.Status == GoalCancelled {
		return g, ErrInvalidTransition
	}
	g.Forced = true
	return g.Derive(g.Current, now), nil
}

// WithCancelled cancels an open goal. Goals that already reached their
// target are completed and cannot be cancelled.
func (g SavingsGoal) WithCancelled() (SavingsGoal, error) {
	if !g.Status.Open() || g.Current.Cents >= g.Target.Cents {
		return g, ErrInvalidTransition
	}
	g.Status = GoalCancelled
	g.CompletedAt = nil
	return g, nil
}

// WithReopened clears a cancellation or a forced completion and lets the
// balance decide the status again.
func (g SavingsGoal) WithReopened(now time.Time) (SavingsGoal, error) {
	if g.Status != GoalCancelled && !g.Forced {
		return g, ErrInvalidTransition
	}
	wasForced := g.Forced
	g.Forced = false
	if g.Status == GoalCancelled {
		g.Status = GoalActive
	}
	if wasForced {
		// A forced completion must fall back through the completed branch.
		g.Status = GoalCompleted
	}
	return g.Derive(g.Current, now), nil
}
