package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/llm"
	"fintrack/internal/services"
)

func TestJSONResponseBuilder(t *testing.T) {
	w := httptest.NewRecorder()
	err := NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Test", "1").
		Body(map[string]any{"amount": core.Money{Cents: 1250}}).
		Write(w)
	if err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusCreated || w.Header().Get("X-Test") != "1" {
		t.Fatalf("code=%d headers=%v", w.Code, w.Header())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	if got := w.Body.String(); got != "{\"amount\":12.50}\n" {
		t.Fatalf("body = %q", got)
	}
}

func TestJSONResponseBuilder_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	err := NewJSONResponse().Status(http.StatusOK).Body(map[string]any{"ch": make(chan int)}).Write(w)
	if err == nil {
		t.Fatal("expected encode error")
	}
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestErrorResponseMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		kind    core.ErrorKind
		message string
	}{
		{"validation", fmt.Errorf("%w: amount", core.ErrInvalidAmount), http.StatusUnprocessableEntity, core.KindValidation, "amount must be greater than zero: amount"},
		{"not found", core.ErrGoalNotFound, http.StatusNotFound, core.KindNotFound, "savings goal not found"},
		{"not owned hides as not found", core.ErrNotOwned, http.StatusNotFound, core.KindNotFound, ""},
		{"ambiguous", &core.AmbiguousError{Err: core.ErrAmbiguousGoal, Candidates: []string{"Car", "Card"}}, http.StatusConflict, core.KindAmbiguousReference, ""},
		{"invariant", core.ErrOverTarget, http.StatusConflict, core.KindInvariantViolation, ""},
		{"store failure", fmt.Errorf("insert: %w", core.ErrExternalService), http.StatusServiceUnavailable, core.KindExternalService, msgUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, core.KindExternalService, msgUnavailable},
		{"provider", &llm.ProviderError{Provider: "openai", StatusCode: 500, Err: errors.New("boom")}, http.StatusBadGateway, core.KindExternalService, msgAssistant},
		{"unauthenticated", services.ErrUnauthenticated, http.StatusUnauthorized, "", "missing or invalid session"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, core.KindInternal, msgInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorResponse(tt.err)
			if status != tt.status || body.Kind != tt.kind {
				t.Fatalf("got %d/%s, want %d/%s", status, body.Kind, tt.status, tt.kind)
			}
			if tt.message != "" && body.Error != tt.message {
				t.Fatalf("message = %q, want %q", body.Error, tt.message)
			}
		})
	}
}

func TestWriteErrorHidesInternals(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/goals", nil)
	writeError(w, r, errors.New("pq: password authentication failed for user fintrack"))

	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusInternalServerError || body.Error != msgInternal {
		t.Fatalf("code=%d body=%+v", w.Code, body)
	}
}
