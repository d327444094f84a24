package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"0.004", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"1e3", 0, false},
		{"", 0, false},
		{"99999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestDecimalToCents(t *testing.T) {
	got, err := DecimalToCents(decimal.RequireFromString("19.999"))
	if err != nil || got != 2000 {
		t.Fatalf("expected 2000, got %d (err=%v)", got, err)
	}
	if _, err := DecimalToCents(decimal.RequireFromString("-3")); err == nil {
		t.Fatalf("expected error for negative")
	}
}

func TestParseRateToBasisPoints(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"5.25", 525, true},
		{"5,25%", 525, true},
		{"", 0, true},
		{"0", 0, true},
		{"-1", 0, false},
		{"x", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseRateToBasisPoints(tc.in)
		if tc.ok != (err == nil) || got != tc.out {
			t.Fatalf("%q: got %d err=%v", tc.in, got, err)
		}
	}
	if s := FormatRate(525); s != "5.25%" {
		t.Fatalf("FormatRate = %q", s)
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := Money{Cents: 1050}.MarshalJSON()
	if err != nil || string(b) != "10.50" {
		t.Fatalf("marshal = %s (err=%v)", b, err)
	}
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{`"7.5"`, 750, true},
		{`10.50`, 1050, true},
		{`-20.00`, -2000, true},
		{`0`, 0, true},
		{`null`, 0, true},
		{`"abc"`, 0, false},
		{`10000000000000.01`, 0, false},
		{`-99999999999999999999999`, 0, false},
	}
	for _, tc := range cases {
		m := Money{Cents: 1}
		err := m.UnmarshalJSON([]byte(tc.in))
		if tc.ok != (err == nil) {
			t.Fatalf("%s: err=%v", tc.in, err)
		}
		if tc.ok && m.Cents != tc.want {
			t.Fatalf("%s: got %d want %d", tc.in, m.Cents, tc.want)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%s: err=%v, want ErrInvalidAmount", tc.in, err)
		}
	}
}

func TestPercent(t *testing.T) {
	cases := []struct {
		part, whole int64
		want        float64
	}{
		{400, 1000, 40},
		{1, 3, 33.3},
		{0, 1000, 0},
		{1500, 1000, 100},
		{10, 0, 0},
	}
	for _, tc := range cases {
		if got := Percent(Money{tc.part}, Money{tc.whole}); got != tc.want {
			t.Fatalf("Percent(%d,%d) = %v, want %v", tc.part, tc.whole, got, tc.want)
		}
	}
}
