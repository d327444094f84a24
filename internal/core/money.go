// Package core provides money parsing and handling utilities.
//
// Amounts are carried as integer cents everywhere below the HTTP and tool
// boundaries. Decimal input (form fields, JSON numbers produced by the
// language model) is converted once, here.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Money is an amount in cents.
type Money struct {
	Cents int64
}

// Validate reports ErrInvalidAmount for zero or negative amounts.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with two decimals and a dot separator.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns an error for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil (half-up)
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	if strings.Count(s, ".") > 1 {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return DecimalToCents(d)
}

// maxCents bounds every amount accepted from outside. Keeps sums of
// many ledger entries far away from int64 overflow.
const maxCents = int64(1e15)

// DecimalToCents rounds d half-up to two places and returns it in cents.
// Zero, negative, and absurdly large values are rejected.
func DecimalToCents(d decimal.Decimal) (int64, error) {
	c, err := boundedCents(d)
	if err != nil {
		return 0, err
	}
	if c <= 0 {
		return 0, ErrInvalidAmount
	}
	return c, nil
}

// boundedCents rounds d half-up to cents and rejects magnitudes above
// maxCents, so IntPart never wraps.
func boundedCents(d decimal.Decimal) (int64, error) {
	shifted := d.Shift(2).Round(0)
	if shifted.Abs().GreaterThan(decimal.NewFromInt(maxCents)) {
		return 0, fmt.Errorf("%w: amount too large", ErrInvalidAmount)
	}
	return shifted.IntPart(), nil
}

// ParseRateToBasisPoints parses an interest rate percentage ("5.25" -> 525).
// Zero is allowed; negative rates are not.
func ParseRateToBasisPoints(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	s = strings.TrimSuffix(s, "%")
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	return RateToBasisPoints(d)
}

// RateToBasisPoints converts a percentage to basis points.
func RateToBasisPoints(d decimal.Decimal) (int64, error) {
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1000)) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidRate, d.String())
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

// FormatRate renders basis points as a percentage string ("5.25%").
func FormatRate(bp int64) string {
	return decimal.New(bp, -2).String() + "%"
}

// Percent returns part/whole as a percentage rounded to one decimal,
// capped to [0, 100]. A zero whole yields 0.
func Percent(part, whole Money) float64 {
	if whole.Cents <= 0 || part.Cents <= 0 {
		return 0
	}
	if part.Cents >= whole.Cents {
		return 100
	}
	p := decimal.NewFromInt(part.Cents).Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(whole.Cents)).Round(1)
	f, _ := p.Float64()
	return f
}

// Euros returns the value as a float64 for display purposes only.
func (m Money) Euros() float64 {
	f, _ := strconv.ParseFloat(m.String(), 64)
	return f
}

// MarshalJSON encodes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string, as written by
// MarshalJSON. Derived figures such as a month balance can be zero or
// negative, so only the magnitude is bounded.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*m = Money{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}
	c, err := boundedCents(d)
	if err != nil {
		return err
	}
	m.Cents = c
	return nil
}
