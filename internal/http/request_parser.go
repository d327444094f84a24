package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

const defaultMaxBodyBytes int64 = 1 << 20

var errMalformedBody = errors.New(msgBadBody)

// decodeJSON reads exactly one JSON object into dst. Unknown fields are
// rejected so typos surface instead of being silently dropped.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, core.ErrInvalidDate) || errors.Is(err, core.ErrInvalidAmount) {
			return err
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errMalformedBody
	}
	return nil
}

// decimalString holds a number sent either as a JSON number or as a
// string, so "12,50" from a form and 12.5 from a script both work.
type decimalString string

func (d *decimalString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = decimalString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: %s", core.ErrInvalidAmount, b)
	}
	*d = decimalString(n.String())
	return nil
}

// amountOf parses a strictly positive amount.
func amountOf(field string, v decimalString) (core.Money, error) {
	if v == "" {
		return core.Money{}, fmt.Errorf("%w: %s", core.ErrMissingField, field)
	}
	cents, err := core.ParseDecimalToCents(string(v))
	if err != nil {
		return core.Money{}, fmt.Errorf("%w: %s", err, field)
	}
	return core.Money{Cents: cents}, nil
}

// optionalAmountOf parses an amount that may be empty or zero to clear a
// value.
func optionalAmountOf(field string, v decimalString) (core.Money, error) {
	s := strings.ReplaceAll(strings.TrimSpace(string(v)), ",", ".")
	if s == "" {
		return core.Money{}, nil
	}
	if d, err := decimal.NewFromString(s); err == nil && d.IsZero() {
		return core.Money{}, nil
	}
	return amountOf(field, v)
}

func rateOf(v decimalString) (int64, error) {
	return core.ParseRateToBasisPoints(string(v))
}

// dateOf parses an optional YYYY-MM-DD value; "" yields the zero date.
func dateOf(field, s string) (core.Date, error) {
	if strings.TrimSpace(s) == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, fmt.Errorf("%w: %s", err, field)
	}
	return d, nil
}

// pathID reads a positive integer path wildcard.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", core.ErrInvalidArgument, name)
	}
	return id, nil
}

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// Day returns the first day of the month.
func (p MonthParams) Day() core.Date {
	return core.NewDate(p.Year, p.Month, 1)
}

// ParseMonthParams extracts year and month from query parameters, using
// the month of now as the default.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{Year: now.Year(), Month: int(now.Month())}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1900 || y > 3000 {
			return params, fmt.Errorf("%w: year", core.ErrInvalidArgument)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return params, fmt.Errorf("%w: month must be between 1 and 12", core.ErrInvalidArgument)
		}
		params.Month = m
	}
	return params, nil
}

const maxListLimit = 500

// parseTransactionFilter reads from, to, type and limit query parameters.
func parseTransactionFilter(query url.Values) (storage.TransactionFilter, error) {
	var (
		f   storage.TransactionFilter
		err error
	)
	if f.From, err = dateOf("from", query.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = dateOf("to", query.Get("to")); err != nil {
		return f, err
	}
	if v := query.Get("type"); v != "" {
		if f.Kind, err = core.ParseKind(v); err != nil {
			return f, err
		}
	}
	f.Limit = 100
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			return f, fmt.Errorf("%w: limit must be between 1 and %d", core.ErrInvalidArgument, maxListLimit)
		}
		f.Limit = n
	}
	return f, nil
}

// parseStatuses splits a comma-separated status filter.
func parseStatuses[S ~string](raw string, valid func(S) bool) ([]S, error) {
	var out []S
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		s := S(part)
		if !valid(s) {
			return nil, fmt.Errorf("%w: unknown status %q", core.ErrInvalidArgument, part)
		}
		out = append(out, s)
	}
	return out, nil
}
