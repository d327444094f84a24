package core

import (
	"context"
	"errors"
)

// Validation errors.
var (
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrInvalidDate      = errors.New("date must be a valid YYYY-MM-DD date")
	ErrInvalidRate      = errors.New("interest rate must be a percentage between 0 and 1000")
	ErrInvalidKind      = errors.New("type must be one of expense, income, savings")
	ErrInvalidPriority  = errors.New("priority must be between 1 and 5")
	ErrEmptyName        = errors.New("name cannot be empty")
	ErrNameTooLong      = errors.New("name too long (max 100 characters)")
	ErrEmptyConcept     = errors.New("concept cannot be empty")
	ErrConceptTooLong   = errors.New("concept too long (max 200 characters)")
	ErrNoteTooLong      = errors.New("note too long (max 500 characters)")
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrCategoryMismatch = errors.New("category type does not match operation type")
)

// Lookup errors.
var (
	ErrTransactionNotFound  = errors.New("operation not found")
	ErrNotOwned             = errors.New("operation belongs to another account")
	ErrCategoryNotFound     = errors.New("category not found")
	ErrGoalNotFound         = errors.New("savings goal not found")
	ErrContributionNotFound = errors.New("contribution not found")
	ErrDebtNotFound         = errors.New("debt not found")
	ErrPaymentNotFound      = errors.New("debt payment not found")
	ErrOwnerNotFound        = errors.New("owner not found")
	ErrAmbiguousGoal        = errors.New("more than one savings goal matches")
	ErrAmbiguousDebt        = errors.New("more than one debt matches")
)

// Invariant errors.
var (
	ErrOverTarget        = errors.New("contribution would exceed the goal target")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// ErrExternalService marks failures of the store or the language model.
var ErrExternalService = errors.New("external service unavailable")

// ErrorKind classifies an error for callers that only need the category:
// HTTP status mapping and tool results.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindNotFound           ErrorKind = "not_found"
	KindAmbiguousReference ErrorKind = "ambiguous_reference"
	KindInvariantViolation ErrorKind = "invariant_violation"
	KindExternalService    ErrorKind = "external_service"
	KindInternal           ErrorKind = "internal"
)

var kinds = []struct {
	kind ErrorKind
	errs []error
}{
	{KindValidation, []error{
		ErrInvalidAmount, ErrInvalidDate, ErrInvalidRate, ErrInvalidKind,
		ErrInvalidPriority, ErrEmptyName, ErrNameTooLong, ErrEmptyConcept,
		ErrConceptTooLong, ErrNoteTooLong, ErrMissingField, ErrInvalidArgument,
		ErrCategoryMismatch,
	}},
	{KindNotFound, []error{
		ErrTransactionNotFound, ErrNotOwned, ErrCategoryNotFound, ErrGoalNotFound,
		ErrContributionNotFound, ErrDebtNotFound, ErrPaymentNotFound, ErrOwnerNotFound,
	}},
	{KindAmbiguousReference, []error{ErrAmbiguousGoal, ErrAmbiguousDebt}},
	{KindInvariantViolation, []error{ErrOverTarget, ErrInvalidTransition}},
	{KindExternalService, []error{ErrExternalService, context.DeadlineExceeded}},
}

// KindOf returns the category of err. Anything unrecognised is internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindInternal
}

// IsDomainError reports whether err is safe to show to an end user
// verbatim. Infrastructure errors are not.
func IsDomainError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindAmbiguousReference, KindInvariantViolation:
		return true
	}
	return false
}
