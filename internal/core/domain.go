package core

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind is the type of a transaction or category.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
	KindSavings Kind = "savings"
)

// ParseKind accepts the three kinds case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindIncome, KindExpense, KindSavings:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

const (
	maxNameLen    = 100
	maxConceptLen = 200
	maxNoteLen    = 500
)

type (
	Owner struct {
		ID          string
		DisplayName string
		CreatedAt   time.Time
	}

	// Category is shared when Owner is empty.
	Category struct {
		ID      int64  `json:"id"`
		Owner   string `json:"-"`
		Name    string `json:"name"`
		Kind    Kind   `json:"type"`
		Segment string `json:"segment,omitempty"`
	}

	Transaction struct {
		ID         int64     `json:"id"`
		Owner      string    `json:"-"`
		Amount     Money     `json:"amount"`
		Concept    string    `json:"concept"`
		Kind       Kind      `json:"type"`
		CategoryID int64     `json:"category_id"`
		Date       Date      `json:"operation_date"`
		CreatedAt  time.Time `json:"-"`
	}
)

// Validate checks the fields a caller supplies for a new transaction.
func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := ValidateText(t.Concept, maxConceptLen, ErrEmptyConcept, ErrConceptTooLong); err != nil {
		return err
	}
	if _, err := ParseKind(string(t.Kind)); err != nil {
		return err
	}
	if t.CategoryID <= 0 {
		return fmt.Errorf("%w: category_id", ErrMissingField)
	}
	if t.Date.IsEmpty() {
		return fmt.Errorf("%w: operation_date", ErrMissingField)
	}
	return nil
}

// ValidateName checks a goal or debt name.
func ValidateName(name string) error {
	return ValidateText(name, maxNameLen, ErrEmptyName, ErrNameTooLong)
}

// ValidateNote allows empty notes.
func ValidateNote(note string) error {
	if utf8.RuneCountInString(note) > maxNoteLen {
		return ErrNoteTooLong
	}
	return nil
}

// ValidateText rejects blank and overlong strings with the given errors.
func ValidateText(s string, max int, empty, tooLong error) error {
	if strings.TrimSpace(s) == "" {
		return empty
	}
	if utf8.RuneCountInString(s) > max {
		return tooLong
	}
	return nil
}

// ValidatePriority accepts 1..5.
func ValidatePriority(p int) error {
	if p < 1 || p > 5 {
		return ErrInvalidPriority
	}
	return nil
}

// DefaultPriority is used when a caller does not supply one.
const DefaultPriority = 3
