package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// Entity names used in ledger events and logs.
const (
	EntityTransaction  = "transaction"
	EntityGoal         = "savings_goal"
	EntityContribution = "savings_contribution"
	EntityDebt         = "debt"
	EntityPayment      = "debt_payment"
)

const maxInterestRateBP = 100000

// EventPublisher receives an event after each committed mutation.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.LedgerEvent) error
}

type (
	TransactionInput struct {
		Amount     core.Money
		Concept    string
		Kind       core.Kind
		CategoryID int64
		Date       core.Date
	}

	GoalInput struct {
		Name       string
		Target     core.Money
		TargetDate core.Date
		Priority   int // 0 means default
	}

	// GoalPatch changes the non-nil fields. A pointer to a zero date
	// clears the target date.
	GoalPatch struct {
		Name       *string
		Target     *core.Money
		TargetDate *core.Date
		Priority   *int
	}

	DebtInput struct {
		Name           string
		Original       core.Money
		InterestRateBP int64
		MonthlyPayment *core.Money
		DueDate        core.Date
		Priority       int
	}

	// DebtPatch changes the non-nil fields. A zero monthly payment or due
	// date clears the value.
	DebtPatch struct {
		Name           *string
		Original       *core.Money
		InterestRateBP *int64
		MonthlyPayment *core.Money
		DueDate        *core.Date
		Priority       *int
	}

	// Ref names a goal or debt by id, or by a fuzzy name when ID is zero.
	Ref struct {
		ID   int64
		Name string
	}

	ContributionResult struct {
		Contribution core.SavingsContribution `json:"contribution"`
		Goal         core.SavingsGoal         `json:"goal"`
	}

	PaymentResult struct {
		Payment core.DebtPayment `json:"payment"`
		Debt    core.Debt        `json:"debt"`
	}

	RecomputeReport struct {
		Goals   int `json:"goals"`
		Debts   int `json:"debts"`
		Changed int `json:"changed"`
	}
)

// ActionExecutor is the only way to mutate ledger data. The HTTP handlers
// and the agent call the same methods, so validation and the aggregate
// invariants are enforced in one place.
type ActionExecutor struct {
	store      *storage.Store
	goals      *GoalAggregate
	debts      *DebtAggregate
	categories *CategoryCatalog
	events     EventPublisher
	now        func() time.Time
	logger     *log.Logger
	audit      *log.StructuredLogger
}

type Option func(*ActionExecutor)

func WithClock(now func() time.Time) Option {
	return func(e *ActionExecutor) { e.now = now }
}

// WithEvents enables ledger event publishing. A nil publisher is ignored.
func WithEvents(p EventPublisher) Option {
	return func(e *ActionExecutor) { e.events = p }
}

func WithLogger(l *log.Logger) Option {
	return func(e *ActionExecutor) { e.logger = l }
}

func NewActionExecutor(store *storage.Store, categories *CategoryCatalog, opts ...Option) *ActionExecutor {
	e := &ActionExecutor{
		store:      store,
		categories: categories,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.New(log.DefaultConfig())
	}
	e.logger = e.logger.WithComponent(log.ComponentActions)
	e.audit = log.NewStructuredLogger(e.logger)
	e.goals = NewGoalAggregate(store, e.now)
	e.debts = NewDebtAggregate(store, e.now)
	return e
}

func (e *ActionExecutor) Goals() *GoalAggregate { return e.goals }
func (e *ActionExecutor) Debts() *DebtAggregate { return e.debts }

func requireOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("%w: owner", core.ErrMissingField)
	}
	return nil
}

// committed logs and publishes a mutation. Publishing never fails the
// mutation; it already happened.
func (e *ActionExecutor) committed(ctx context.Context, typ amqp.EventType, op, owner, entity string, id int64, name string, amount core.Money, status string) {
	e.audit.LogMutation(ctx, op, owner, entity, id, amount.Cents)
	if e.events == nil {
		return
	}
	ev := amqp.NewLedgerEvent(typ, owner, entity, id)
	ev.Name = name
	ev.AmountCents = amount.Cents
	ev.Status = status
	ev.Timestamp = e.now().UTC()
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish ledger event",
			log.FieldEventType, typ,
			log.FieldEntityID, id,
			log.FieldError, err)
	}
}

// Categories exposes the catalog used to validate transactions.
func (e *ActionExecutor) Categories(ctx context.Context, owner string) ([]core.Category, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	return e.categories.List(ctx, owner)
}

func (e *ActionExecutor) CreateCategory(ctx context.Context, owner, name string, kind core.Kind, segment string) (core.Category, error) {
	if err := requireOwner(owner); err != nil {
		return core.Category{}, err
	}
	return e.categories.Create(ctx, owner, strings.TrimSpace(name), kind, strings.TrimSpace(segment))
}

// CreateTransaction records an income, expense or savings movement.
func (e *ActionExecutor) CreateTransaction(ctx context.Context, owner string, in TransactionInput) (core.Transaction, error) {
	if err := requireOwner(owner); err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		Owner:      owner,
		Amount:     in.Amount,
		Concept:    strings.TrimSpace(in.Concept),
		Kind:       in.Kind,
		CategoryID: in.CategoryID,
		Date:       in.Date,
		CreatedAt:  e.now().UTC(),
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	cat, err := e.categories.Lookup(ctx, owner, in.CategoryID)
	if err != nil {
		return t, err
	}
	if cat.Kind != t.Kind {
		return t, fmt.Errorf("%w: category %q is %s, operation is %s", core.ErrCategoryMismatch, cat.Name, cat.Kind, t.Kind)
	}

	t, err = e.store.Queries().InsertTransaction(ctx, t)
	if err != nil {
		return t, err
	}
	e.committed(ctx, amqp.EventTransactionCreated, log.OpCreate, owner, EntityTransaction, t.ID, t.Concept, t.Amount, string(t.Kind))
	return t, nil
}

// DeleteTransaction removes an owned transaction and returns what was deleted.
func (e *ActionExecutor) DeleteTransaction(ctx context.Context, owner string, id int64) (core.Transaction, error) {
	if err := requireOwner(owner); err != nil {
		return core.Transaction{}, err
	}
	if id <= 0 {
		return core.Transaction{}, fmt.Errorf("%w: operation_id", core.ErrMissingField)
	}
	t, err := e.store.Queries().DeleteTransaction(ctx, owner, id)
	if err != nil {
		return t, err
	}
	e.committed(ctx, amqp.EventTransactionDeleted, log.OpDelete, owner, EntityTransaction, t.ID, t.Concept, t.Amount, string(t.Kind))
	return t, nil
}

func (e *ActionExecutor) ListTransactions(ctx context.Context, owner string, f storage.TransactionFilter) ([]core.Transaction, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	return e.store.Queries().ListTransactions(ctx, owner, f)
}

func validPriority(p int) (int, error) {
	if p == 0 {
		return core.DefaultPriority, nil
	}
	return p, core.ValidatePriority(p)
}

// CreateGoal opens an active goal with nothing saved yet.
func (e *ActionExecutor) CreateGoal(ctx context.Context, owner string, in GoalInput) (core.SavingsGoal, error) {
	if err := requireOwner(owner); err != nil {
		return core.SavingsGoal{}, err
	}
	name := strings.TrimSpace(in.Name)
	if err := core.ValidateName(name); err != nil {
		return core.SavingsGoal{}, err
	}
	if err := in.Target.Validate(); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("target_amount: %w", err)
	}
	priority, err := validPriority(in.Priority)
	if err != nil {
		return core.SavingsGoal{}, err
	}

	now := e.now().UTC()
	g, err := e.store.Queries().InsertGoal(ctx, core.SavingsGoal{
		Owner:      owner,
		Name:       name,
		Target:     in.Target,
		TargetDate: in.TargetDate,
		Status:     core.GoalActive,
		Priority:   priority,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return g, err
	}
	e.committed(ctx, amqp.EventGoalCreated, log.OpCreate, owner, EntityGoal, g.ID, g.Name, g.Target, string(g.Status))
	return g, nil
}

// UpdateGoal edits a goal's fields. A new target re-derives the status and
// may not drop below the amount already contributed.
func (e *ActionExecutor) UpdateGoal(ctx context.Context, owner string, id int64, p GoalPatch) (core.SavingsGoal, error) {
	if err := requireOwner(owner); err != nil {
		return core.SavingsGoal{}, err
	}
	var g core.SavingsGoal
	err := e.store.InTx(ctx, func(q *storage.Queries) error {
		now := e.now().UTC()
		if err := q.LockGoal(ctx, owner, id, now); err != nil {
			return err
		}
		cur, err := q.GetGoal(ctx, owner, id)
		if err != nil {
			return err
		}
		if p.Name != nil {
			name := strings.TrimSpace(*p.Name)
			if err := core.ValidateName(name); err != nil {
				return err
			}
			cur.Name = name
		}
		if p.Target != nil {
			if err := p.Target.Validate(); err != nil {
				return fmt.Errorf("target_amount: %w", err)
			}
			cur.Target = *p.Target
		}
		if p.TargetDate != nil {
			cur.TargetDate = *p.TargetDate
		}
		if p.Priority != nil {
			if err := core.ValidatePriority(*p.Priority); err != nil {
				return err
			}
			cur.Priority = *p.Priority
		}
		cur.UpdatedAt = now
		if err := q.SaveGoal(ctx, cur); err != nil {
			return err
		}
		if g, err = e.goals.recompute(ctx, q, owner, id); err != nil {
			return err
		}
		if g.Current.Cents > g.Target.Cents {
			return fmt.Errorf("%w: target %s is below the %s already saved", core.ErrOverTarget, g.Target, g.Current)
		}
		return nil
	})
	if err != nil {
		return g, err
	}
	e.committed(ctx, amqp.EventGoalUpdated, log.OpUpdate, owner, EntityGoal, g.ID, g.Name, g.Current, string(g.Status))
	return g, nil
}

// DeleteGoal removes the goal together with its contributions.
func (e *ActionExecutor) DeleteGoal(ctx context.Context, owner string, id int64) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	var g core.SavingsGoal
	err := e.store.InTx(ctx, func(q *storage.Queries) error {
		if err := q.LockGoal(ctx, owner, id, e.now()); err != nil {
			return err
		}
		var err error
		if g, err = q.GetGoal(ctx, owner, id); err != nil {
			return err
		}
		return q.DeleteGoal(ctx, owner, id)
	})
	if err != nil {
		return err
	}
	e.committed(ctx, amqp.EventGoalDeleted, log.OpDelete, owner, EntityGoal, g.ID, g.Name, g.Current, string(g.Status))
	return nil
}

func (e *ActionExecutor) GetGoal(ctx context.Context, owner string, id int64) (core.SavingsGoal, error) {
	if err := requireOwner(owner); err != nil {
		return core.SavingsGoal{}, err
	}
	return e.store.Queries().GetGoal(ctx, owner, id)
}

func (e *ActionExecutor) ListGoals(ctx context.Context, owner string, statuses ...core.GoalStatus) ([]core.SavingsGoal, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	return e.store.Queries().ListGoals(ctx, owner, statuses...)
}

func (e *ActionExecutor) ListContributions(ctx context.Context, owner string, goalID int64) ([]core.SavingsContribution, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if _, err := e.store.Queries().GetGoal(ctx, owner, goalID); err != nil {
		return nil, err
	}
	return e.store.Queries().ListContributions(ctx, owner, goalID)
}

// resolveGoal turns a Ref into an id. Cancelled goals are not candidates
// for name matches.
func resolveGoal(ctx context.Context, q *storage.Queries, owner string, ref Ref) (int64, error) {
	if ref.ID > 0 {
		return ref.ID, nil
	}
	goals, err := q.ListGoals(ctx, owner, core.GoalActive, core.GoalPaused, core.GoalCompleted)
	if err != nil {
		return 0, err
	}
	g, err := core.MatchByName(goals, func(g core.SavingsGoal) string { return g.Name },
		ref.Name, core.ErrGoalNotFound, core.ErrAmbiguousGoal)
	return g.ID, err
}

func resolveDebt(ctx context.Context, q *storage.Queries, owner string, ref Ref) (int64, error) {
	if ref.ID > 0 {
		return ref.ID, nil
	}
	debts, err := q.ListDebts(ctx, owner)
	if err != nil {
		return 0, err
	}
	d, err := core.MatchByName(debts, func(d core.Debt) string { return d.Name },
		ref.Name, core.ErrDebtNotFound, core.ErrAmbiguousDebt)
	return d.ID, err
}

// ContributeToGoal adds money to a goal found by id or name. The goal can
// never go above its target, whoever calls.
func (e *ActionExecutor) ContributeToGoal(ctx context.Context, owner string, ref Ref, in ContributionInput) (ContributionResult, error) {
	if err := requireOwner(owner); err != nil {
		return ContributionResult{}, err
	}
	var res ContributionResult
	err := e.store.InTx(ctx, func(q *storage.Queries) error {
		id, err := resolveGoal(ctx, q, owner, ref)
		if err != nil {
			return err
		}
		res.Contribution, res.Goal, err = e.goals.applyContribution(ctx, q, owner, id, in)
		return err
	})
	if err != nil {
		return res, err
	}
	c := res.Contribution
	e.committed(ctx, amqp.EventContributionAdded, log.OpContribute, owner, EntityContribution, c.ID, res.Goal.Name, c.Amount, string(res.Goal.Status))
	return res, nil
}

func (e *ActionExecutor) ReviseContribution(ctx context.Context, owner string, id int64, in ContributionInput) (ContributionResult, error) {
	if err := requireOwner(owner); err != nil {
		return ContributionResult{}, err
	}
	c, g, err := e.goals.ReviseContribution(ctx, owner, id, in)
	if err != nil {
		return ContributionResult{}, err
	}
	e.committed(ctx, amqp.EventContributionRevised, log.OpUpdate, owner, EntityContribution, c.ID, g.Name, c.Amount, string(g.Status))
	return ContributionResult{Contribution: c, Goal: g}, nil
}

func (e *ActionExecutor) RemoveContribution(ctx context.Context, owner string, id int64) (core.SavingsGoal, error) {
	if err := requireOwner(owner); err != nil {
		return core.SavingsGoal{}, err
	}
	c, g, err := e.goals.RemoveContribution(ctx, owner, id)
	if err != nil {
		return g, err
	}
	e.committed(ctx, amqp.EventContributionRemoved, log.OpDelete, owner, EntityContribution, c.ID, g.Name, c.Amount, string(g.Status))
	return g, nil
}

func (e *ActionExecutor) goalTransition(ctx context.Context, owner string, id int64, op string, fn func(context.Context, string, int64) (core.SavingsGoal, error)) (core.SavingsGoal, error) {
	if err := requireOwner(owner); err != nil {
		return core.SavingsGoal{}, err
	}
	g, err := fn(ctx, owner, id)
	if err != nil {
		return g, err
	}
	e.committed(ctx, amqp.EventGoalUpdated, op, owner, EntityGoal, g.ID, g.Name, g.Current, string(g.Status))
	return g, nil
}

func (e *ActionExecutor) ForceCompleteGoal(ctx context.Context, owner string, id int64) (core.SavingsGoal, error) {
	return e.goalTransition(ctx, owner, id, log.OpComplete, e.goals.ForceComplete)
}

func (e *ActionExecutor) PauseGoal(ctx context.Context, owner string, id int64) (core.SavingsGoal, error) {
	return e.goalTransition(ctx, owner, id, log.OpUpdate, func(ctx context.Context, owner string, id int64) (core.SavingsGoal, error) {
		return e.goals.SetPaused(ctx, owner, id, true)
	})
}

func (e *ActionExecutor) ResumeGoal(ctx context.Context, owner string, id int64) (core.SavingsGoal, error) {
	return e.goalTransition(ctx, owner, id, log.OpUpdate, func(ctx context.Context, owner string, id int64) (core.SavingsGoal, error) {
		return e.goals.SetPaused(ctx, owner, id, false)
	})
}

func (e *ActionExecutor) CancelGoal(ctx context.Context, owner string, id int64) (core.SavingsGoal, error) {
	return e.goalTransition(ctx, owner, id, log.OpUpdate, e.goals.Cancel)
}

func (e *ActionExecutor) ReopenGoal(ctx context.Context, owner string, id int64) (core.SavingsGoal, error) {
	return e.goalTransition(ctx, owner, id, log.OpUpdate, e.goals.Reopen)
}

func validRate(bp int64) error {
	if bp < 0 || bp > maxInterestRateBP {
		return core.ErrInvalidRate
	}
	return nil
}

func validMonthly(m *core.Money) (*core.Money, error) {
	if m == nil || m.Cents == 0 {
		return nil, nil
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("monthly_payment: %w", err)
	}
	v := *m
	return &v, nil
}

// CreateDebt records a debt whose balance starts at the original amount.
func (e *ActionExecutor) CreateDebt(ctx context.Context, owner string, in DebtInput) (core.Debt, error) {
	if err := requireOwner(owner); err != nil {
		return core.Debt{}, err
	}
	name := strings.TrimSpace(in.Name)
	if err := core.ValidateName(name); err != nil {
		return core.Debt{}, err
	}
	if err := in.Original.Validate(); err != nil {
		return core.Debt{}, fmt.Errorf("initial_amount: %w", err)
	}
	if err := validRate(in.InterestRateBP); err != nil {
		return core.Debt{}, err
	}
	monthly, err := validMonthly(in.MonthlyPayment)
	if err != nil {
		return core.Debt{}, err
	}
	priority, err := validPriority(in.Priority)
	if err != nil {
		return core.Debt{}, err
	}

	now := e.now().UTC()
	d, err := e.store.Queries().InsertDebt(ctx, core.Debt{
		Owner:          owner,
		Name:           name,
		Original:       in.Original,
		Balance:        in.Original,
		InterestRateBP: in.InterestRateBP,
		MonthlyPayment: monthly,
		DueDate:        in.DueDate,
		Status:         core.DebtActive,
		Priority:       priority,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return d, err
	}
	e.committed(ctx, amqp.EventDebtCreated, log.OpCreate, owner, EntityDebt, d.ID, d.Name, d.Original, string(d.Status))
	return d, nil
}

// UpdateDebt edits a debt. A new original amount re-derives the balance.
func (e *ActionExecutor) UpdateDebt(ctx context.Context, owner string, id int64, p DebtPatch) (core.Debt, error) {
	if err := requireOwner(owner); err != nil {
		return core.Debt{}, err
	}
	var d core.Debt
	err := e.store.InTx(ctx, func(q *storage.Queries) error {
		now := e.now().UTC()
		if err := q.LockDebt(ctx, owner, id, now); err != nil {
			return err
		}
		cur, err := q.GetDebt(ctx, owner, id)
		if err != nil {
			return err
		}
		if p.Name != nil {
			name := strings.TrimSpace(*p.Name)
			if err := core.ValidateName(name); err != nil {
				return err
			}
			cur.Name = name
		}
		if p.Original != nil {
			if err := p.Original.Validate(); err != nil {
				return fmt.Errorf("original_amount: %w", err)
			}
			cur.Original = *p.Original
		}
		if p.InterestRateBP != nil {
			if err := validRate(*p.InterestRateBP); err != nil {
				return err
			}
			cur.InterestRateBP = *p.InterestRateBP
		}
		if p.MonthlyPayment != nil {
			if cur.MonthlyPayment, err = validMonthly(p.MonthlyPayment); err != nil {
				return err
			}
		}
		if p.DueDate != nil {
			cur.DueDate = *p.DueDate
		}
		if p.Priority != nil {
			if err := core.ValidatePriority(*p.Priority); err != nil {
				return err
			}
			cur.Priority = *p.Priority
		}
		cur.UpdatedAt = now
		if err := q.SaveDebt(ctx, cur); err != nil {
			return err
		}
		d, err = e.debts.recompute(ctx, q, owner, id)
		return err
	})
	if err != nil {
		return d, err
	}
	e.committed(ctx, amqp.EventDebtUpdated, log.OpUpdate, owner, EntityDebt, d.ID, d.Name, d.Balance, string(d.Status))
	return d, nil
}

func (e *ActionExecutor) DeleteDebt(ctx context.Context, owner string, id int64) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	var d core.Debt
	err := e.store.InTx(ctx, func(q *storage.Queries) error {
		if err := q.LockDebt(ctx, owner, id, e.now()); err != nil {
			return err
		}
		var err error
		if d, err = q.GetDebt(ctx, owner, id); err != nil {
			return err
		}
		return q.DeleteDebt(ctx, owner, id)
	})
	if err != nil {
		return err
	}
	e.committed(ctx, amqp.EventDebtDeleted, log.OpDelete, owner, EntityDebt, d.ID, d.Name, d.Balance, string(d.Status))
	return nil
}

func (e *ActionExecutor) GetDebt(ctx context.Context, owner string, id int64) (core.Debt, error) {
	if err := requireOwner(owner); err != nil {
		return core.Debt{}, err
	}
	return e.store.Queries().GetDebt(ctx, owner, id)
}

func (e *ActionExecutor) ListDebts(ctx context.Context, owner string, statuses ...core.DebtStatus) ([]core.Debt, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	return e.store.Queries().ListDebts(ctx, owner, statuses...)
}

func (e *ActionExecutor) ListPayments(ctx context.Context, owner string, debtID int64) ([]core.DebtPayment, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if _, err := e.store.Queries().GetDebt(ctx, owner, debtID); err != nil {
		return nil, err
	}
	return e.store.Queries().ListPayments(ctx, owner, debtID)
}

// PayDebt records a payment against a debt found by id or name. Paying more
// than the balance is accepted; the balance stops at zero.
func (e *ActionExecutor) PayDebt(ctx context.Context, owner string, ref Ref, in PaymentInput) (PaymentResult, error) {
	if err := requireOwner(owner); err != nil {
		return PaymentResult{}, err
	}
	var res PaymentResult
	err := e.store.InTx(ctx, func(q *storage.Queries) error {
		id, err := resolveDebt(ctx, q, owner, ref)
		if err != nil {
			return err
		}
		res.Payment, res.Debt, err = e.debts.applyPayment(ctx, q, owner, id, in)
		return err
	})
	if err != nil {
		return res, err
	}
	p := res.Payment
	e.committed(ctx, amqp.EventPaymentAdded, log.OpPay, owner, EntityPayment, p.ID, res.Debt.Name, p.Amount, string(res.Debt.Status))
	return res, nil
}

func (e *ActionExecutor) RevisePayment(ctx context.Context, owner string, id int64, in PaymentInput) (PaymentResult, error) {
	if err := requireOwner(owner); err != nil {
		return PaymentResult{}, err
	}
	p, d, err := e.debts.RevisePayment(ctx, owner, id, in)
	if err != nil {
		return PaymentResult{}, err
	}
	e.committed(ctx, amqp.EventPaymentRevised, log.OpUpdate, owner, EntityPayment, p.ID, d.Name, p.Amount, string(d.Status))
	return PaymentResult{Payment: p, Debt: d}, nil
}

func (e *ActionExecutor) RemovePayment(ctx context.Context, owner string, id int64) (core.Debt, error) {
	if err := requireOwner(owner); err != nil {
		return core.Debt{}, err
	}
	p, d, err := e.debts.RemovePayment(ctx, owner, id)
	if err != nil {
		return d, err
	}
	e.committed(ctx, amqp.EventPaymentRemoved, log.OpDelete, owner, EntityPayment, p.ID, d.Name, p.Amount, string(d.Status))
	return d, nil
}

func (e *ActionExecutor) debtTransition(ctx context.Context, owner string, id int64, op string, fn func(context.Context, string, int64) (core.Debt, error)) (core.Debt, error) {
	if err := requireOwner(owner); err != nil {
		return core.Debt{}, err
	}
	d, err := fn(ctx, owner, id)
	if err != nil {
		return d, err
	}
	e.committed(ctx, amqp.EventDebtUpdated, op, owner, EntityDebt, d.ID, d.Name, d.Balance, string(d.Status))
	return d, nil
}

func (e *ActionExecutor) ForcePayDebt(ctx context.Context, owner string, id int64) (core.Debt, error) {
	return e.debtTransition(ctx, owner, id, log.OpComplete, e.debts.ForcePaid)
}

func (e *ActionExecutor) PauseDebt(ctx context.Context, owner string, id int64) (core.Debt, error) {
	return e.debtTransition(ctx, owner, id, log.OpUpdate, func(ctx context.Context, owner string, id int64) (core.Debt, error) {
		return e.debts.SetPaused(ctx, owner, id, true)
	})
}

func (e *ActionExecutor) ResumeDebt(ctx context.Context, owner string, id int64) (core.Debt, error) {
	return e.debtTransition(ctx, owner, id, log.OpUpdate, func(ctx context.Context, owner string, id int64) (core.Debt, error) {
		return e.debts.SetPaused(ctx, owner, id, false)
	})
}

func (e *ActionExecutor) ReopenDebt(ctx context.Context, owner string, id int64) (core.Debt, error) {
	return e.debtTransition(ctx, owner, id, log.OpUpdate, e.debts.Reopen)
}

// RecomputeAll re-derives every goal and debt of owner from the ledgers.
// Used to repair rows written before derivation was enforced.
func (e *ActionExecutor) RecomputeAll(ctx context.Context, owner string) (RecomputeReport, error) {
	var report RecomputeReport
	if err := requireOwner(owner); err != nil {
		return report, err
	}

	goals, err := e.store.Queries().ListGoals(ctx, owner)
	if err != nil {
		return report, err
	}
	for _, g := range goals {
		next, err := e.goals.Recompute(ctx, owner, g.ID)
		if err != nil {
			return report, fmt.Errorf("recompute goal %d: %w", g.ID, err)
		}
		report.Goals++
		if next.Current != g.Current || next.Status != g.Status {
			report.Changed++
		}
	}

	debts, err := e.store.Queries().ListDebts(ctx, owner)
	if err != nil {
		return report, err
	}
	for _, d := range debts {
		next, err := e.debts.Recompute(ctx, owner, d.ID)
		if err != nil {
			return report, fmt.Errorf("recompute debt %d: %w", d.ID, err)
		}
		report.Debts++
		if next.Balance != d.Balance || next.Status != d.Status {
			report.Changed++
		}
	}

	e.logger.InfoContext(ctx, "Recomputed aggregates",
		log.FieldOwner, owner,
		log.FieldOperation, log.OpRecompute,
		"goals", report.Goals,
		"debts", report.Debts,
		"changed", report.Changed)
	return report, nil
}
