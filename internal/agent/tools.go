package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/llm"
	"fintrack/internal/services"
)

// Executor is the part of services.ActionExecutor the tools drive.
type Executor interface {
	CreateTransaction(ctx context.Context, owner string, in services.TransactionInput) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, owner string, id int64) (core.Transaction, error)
	CreateGoal(ctx context.Context, owner string, in services.GoalInput) (core.SavingsGoal, error)
	ContributeToGoal(ctx context.Context, owner string, ref services.Ref, in services.ContributionInput) (services.ContributionResult, error)
	CreateDebt(ctx context.Context, owner string, in services.DebtInput) (core.Debt, error)
	PayDebt(ctx context.Context, owner string, ref services.Ref, in services.PaymentInput) (services.PaymentResult, error)
}

type tool struct {
	def llm.ToolDef
	run func(ctx context.Context, x Executor, owner string, args json.RawMessage) (any, error)
}

var tools = []tool{
	{
		def: llm.ToolDef{
			Name:        "create_operation",
			Description: "Record an income, expense or savings operation. The category must be one of the listed categories and its type must match.",
			Params: []llm.Param{
				{Name: "amount", Type: "number", Description: "Positive amount with up to two decimals", Required: true},
				{Name: "concept", Type: "string", Description: "Short description", Required: true},
				{Name: "type", Type: "string", Enum: []string{"expense", "income", "savings"}, Required: true},
				{Name: "category_id", Type: "integer", Description: "Id of a listed category", Required: true},
				{Name: "operation_date", Type: "string", Description: "YYYY-MM-DD", Required: true},
			},
		},
		run: createOperation,
	},
	{
		def: llm.ToolDef{
			Name:        "delete_operation",
			Description: "Delete one of the user's operations by id.",
			Params: []llm.Param{
				{Name: "operation_id", Type: "integer", Required: true},
			},
		},
		run: deleteOperation,
	},
	{
		def: llm.ToolDef{
			Name:        "create_savings_goal",
			Description: "Create a savings goal.",
			Params: []llm.Param{
				{Name: "name", Type: "string", Required: true},
				{Name: "target_amount", Type: "number", Required: true},
				{Name: "target_date", Type: "string", Description: "YYYY-MM-DD"},
			},
		},
		run: createSavingsGoal,
	},
	{
		def: llm.ToolDef{
			Name:        "add_savings_contribution",
			Description: "Add money to an existing savings goal, referenced by name. Contributions above the remaining target are rejected.",
			Params: []llm.Param{
				{Name: "savings_goal_name", Type: "string", Required: true},
				{Name: "amount", Type: "number", Required: true},
				{Name: "note", Type: "string"},
			},
		},
		run: addSavingsContribution,
	},
	{
		def: llm.ToolDef{
			Name:        "create_debt",
			Description: "Register a debt.",
			Params: []llm.Param{
				{Name: "name", Type: "string", Required: true},
				{Name: "initial_amount", Type: "number", Required: true},
				{Name: "interest_rate", Type: "number", Description: "Annual percentage, for example 5.25"},
				{Name: "due_date", Type: "string", Description: "YYYY-MM-DD"},
			},
		},
		run: createDebt,
	},
	{
		def: llm.ToolDef{
			Name:        "add_debt_payment",
			Description: "Record a payment against an existing debt, referenced by name.",
			Params: []llm.Param{
				{Name: "debt_name", Type: "string", Required: true},
				{Name: "amount", Type: "number", Required: true},
				{Name: "note", Type: "string"},
			},
		},
		run: addDebtPayment,
	},
}

var toolIndex = func() map[string]tool {
	m := make(map[string]tool, len(tools))
	for _, t := range tools {
		m[t.def.Name] = t
	}
	return m
}()

// Definitions lists the tools offered to the model, in a stable order.
func Definitions() []llm.ToolDef {
	out := make([]llm.ToolDef, len(tools))
	for i, t := range tools {
		out[i] = t.def
	}
	return out
}

// decodeArgs decodes untrusted tool arguments into dst. Unknown fields,
// trailing data and type mismatches are validation errors.
func decodeArgs(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidArgument, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after arguments", core.ErrInvalidArgument)
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s", core.ErrMissingField, field)
	}
	return nil
}

func amountArg(field string, n json.Number) (core.Money, error) {
	if err := required(field, n.String()); err != nil {
		return core.Money{}, err
	}
	cents, err := core.ParseDecimalToCents(n.String())
	if err != nil {
		return core.Money{}, fmt.Errorf("%s: %w", field, err)
	}
	return core.Money{Cents: cents}, nil
}

func idArg(field string, n json.Number) (int64, error) {
	if err := required(field, n.String()); err != nil {
		return 0, err
	}
	id, err := n.Int64()
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", core.ErrInvalidArgument, field)
	}
	return id, nil
}

func dateArg(field, s string, optional bool) (core.Date, error) {
	if strings.TrimSpace(s) == "" {
		if optional {
			return core.Date{}, nil
		}
		return core.Date{}, fmt.Errorf("%w: %s", core.ErrMissingField, field)
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return d, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

type createOperationArgs struct {
	Amount        json.Number `json:"amount"`
	Concept       string      `json:"concept"`
	Type          string      `json:"type"`
	CategoryID    json.Number `json:"category_id"`
	OperationDate string      `json:"operation_date"`
}

func createOperation(ctx context.Context, x Executor, owner string, raw json.RawMessage) (any, error) {
	var args createOperationArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	amount, err := amountArg("amount", args.Amount)
	if err != nil {
		return nil, err
	}
	if err := required("concept", args.Concept); err != nil {
		return nil, err
	}
	if err := required("type", args.Type); err != nil {
		return nil, err
	}
	kind, err := core.ParseKind(args.Type)
	if err != nil {
		return nil, err
	}
	categoryID, err := idArg("category_id", args.CategoryID)
	if err != nil {
		return nil, err
	}
	date, err := dateArg("operation_date", args.OperationDate, false)
	if err != nil {
		return nil, err
	}

	t, err := x.CreateTransaction(ctx, owner, services.TransactionInput{
		Amount:     amount,
		Concept:    args.Concept,
		Kind:       kind,
		CategoryID: categoryID,
		Date:       date,
	})
	if err != nil {
		return nil, err
	}
	return operationSummaryOf(t), nil
}

type deleteOperationArgs struct {
	OperationID json.Number `json:"operation_id"`
}

func deleteOperation(ctx context.Context, x Executor, owner string, raw json.RawMessage) (any, error) {
	var args deleteOperationArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	id, err := idArg("operation_id", args.OperationID)
	if err != nil {
		return nil, err
	}
	t, err := x.DeleteTransaction(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": operationSummaryOf(t)}, nil
}

type createSavingsGoalArgs struct {
	Name         string      `json:"name"`
	TargetAmount json.Number `json:"target_amount"`
	TargetDate   string      `json:"target_date"`
}

func createSavingsGoal(ctx context.Context, x Executor, owner string, raw json.RawMessage) (any, error) {
	var args createSavingsGoalArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("name", args.Name); err != nil {
		return nil, err
	}
	target, err := amountArg("target_amount", args.TargetAmount)
	if err != nil {
		return nil, err
	}
	date, err := dateArg("target_date", args.TargetDate, true)
	if err != nil {
		return nil, err
	}
	g, err := x.CreateGoal(ctx, owner, services.GoalInput{Name: args.Name, Target: target, TargetDate: date})
	if err != nil {
		return nil, err
	}
	return goalSummaryOf(g), nil
}

type addSavingsContributionArgs struct {
	SavingsGoalName string      `json:"savings_goal_name"`
	Amount          json.Number `json:"amount"`
	Note            string      `json:"note"`
}

func addSavingsContribution(ctx context.Context, x Executor, owner string, raw json.RawMessage) (any, error) {
	var args addSavingsContributionArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("savings_goal_name", args.SavingsGoalName); err != nil {
		return nil, err
	}
	amount, err := amountArg("amount", args.Amount)
	if err != nil {
		return nil, err
	}
	res, err := x.ContributeToGoal(ctx, owner, services.Ref{Name: args.SavingsGoalName},
		services.ContributionInput{Amount: amount, Note: strings.TrimSpace(args.Note)})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"contribution_id": res.Contribution.ID,
		"amount":          res.Contribution.Amount.String(),
		"goal":            goalSummaryOf(res.Goal),
	}, nil
}

type createDebtArgs struct {
	Name          string      `json:"name"`
	InitialAmount json.Number `json:"initial_amount"`
	InterestRate  json.Number `json:"interest_rate"`
	DueDate       string      `json:"due_date"`
}

func createDebt(ctx context.Context, x Executor, owner string, raw json.RawMessage) (any, error) {
	var args createDebtArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("name", args.Name); err != nil {
		return nil, err
	}
	original, err := amountArg("initial_amount", args.InitialAmount)
	if err != nil {
		return nil, err
	}
	rate, err := core.ParseRateToBasisPoints(args.InterestRate.String())
	if err != nil {
		return nil, err
	}
	due, err := dateArg("due_date", args.DueDate, true)
	if err != nil {
		return nil, err
	}
	d, err := x.CreateDebt(ctx, owner, services.DebtInput{
		Name:           args.Name,
		Original:       original,
		InterestRateBP: rate,
		DueDate:        due,
	})
	if err != nil {
		return nil, err
	}
	return debtSummaryOf(d), nil
}

type addDebtPaymentArgs struct {
	DebtName string      `json:"debt_name"`
	Amount   json.Number `json:"amount"`
	Note     string      `json:"note"`
}

func addDebtPayment(ctx context.Context, x Executor, owner string, raw json.RawMessage) (any, error) {
	var args addDebtPaymentArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("debt_name", args.DebtName); err != nil {
		return nil, err
	}
	amount, err := amountArg("amount", args.Amount)
	if err != nil {
		return nil, err
	}
	res, err := x.PayDebt(ctx, owner, services.Ref{Name: args.DebtName},
		services.PaymentInput{Amount: amount, Note: strings.TrimSpace(args.Note)})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"payment_id": res.Payment.ID,
		"amount":     res.Payment.Amount.String(),
		"debt":       debtSummaryOf(res.Debt),
	}, nil
}
