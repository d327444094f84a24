package core

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// FoldName normalises a name for fuzzy comparison: accents stripped,
// case folded, inner whitespace collapsed.
func FoldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(folder.String(stripped)), " ")
}

// AmbiguousError reports a fuzzy reference that matched several entities.
type AmbiguousError struct {
	Err        error
	Query      string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%s: %q matches %s", e.Err, e.Query, strings.Join(quoteAll(e.Candidates), ", "))
}

func (e *AmbiguousError) Unwrap() error { return e.Err }

func quoteAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

// MatchByName resolves query against items. A single exact folded match
// wins; otherwise exactly one substring match is required. More than one
// match fails with an *AmbiguousError wrapping ambiguous, none with notFound.
func MatchByName[T any](items []T, name func(T) string, query string, notFound, ambiguous error) (T, error) {
	var zero T
	q := FoldName(query)
	if q == "" {
		return zero, fmt.Errorf("%w: name", ErrMissingField)
	}

	var exact, partial []T
	for _, it := range items {
		n := FoldName(name(it))
		switch {
		case n == q:
			exact = append(exact, it)
		case strings.Contains(n, q):
			partial = append(partial, it)
		}
	}

	switch {
	case len(exact) == 1:
		return exact[0], nil
	case len(exact) > 1:
		return zero, ambiguousOf(exact, name, query, ambiguous)
	case len(partial) == 1:
		return partial[0], nil
	case len(partial) > 1:
		return zero, ambiguousOf(partial, name, query, ambiguous)
	}
	return zero, fmt.Errorf("%w: %q", notFound, query)
}

func ambiguousOf[T any](items []T, name func(T) string, query string, ambiguous error) error {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = name(it)
	}
	return &AmbiguousError{Err: ambiguous, Query: query, Candidates: names}
}
