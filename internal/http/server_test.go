package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/llm"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

const catGroceries = 6

type fakeResponder struct {
	owner   string
	history []llm.Message
	reply   string
	err     error
}

func (f *fakeResponder) Respond(_ context.Context, owner string, history []llm.Message) (string, error) {
	f.owner, f.history = owner, history
	return f.reply, f.err
}

type testServer struct {
	srv   *Server
	store *storage.Store
	chat  *fakeResponder
	token string
	other string
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.SQLite, filepath.Join(t.TempDir(), "fintrack.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := func() time.Time { return testNow }
	cats := services.NewCategoryCatalog(store.Queries(), 16, time.Minute)
	exec := services.NewActionExecutor(store, cats, services.WithClock(clock), services.WithLogger(log.Discard()))
	sessions := services.NewSessions(store.Queries(), time.Hour, clock)

	issue := func(name string) string {
		o, err := sessions.CreateOwner(ctx, name)
		if err != nil {
			t.Fatalf("create owner: %v", err)
		}
		token, err := sessions.Issue(ctx, o.ID)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		return token
	}

	chat := &fakeResponder{reply: "Done."}
	srv, err := NewServer(":0", Deps{
		Ledger:    exec,
		Snapshots: services.NewSnapshotBuilder(store.Queries(), cats, 5, clock),
		Auth:      sessions,
		Chat:      chat,
		Health:    store,
		Cache:     cats.Cache(),
		Logger:    log.Discard(),
		Now:       clock,
	}, opts)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	return &testServer{srv: srv, store: store, chat: chat, token: issue("Alice"), other: issue("Mallory")}
}

// do sends a request with the given token and decodes a JSON response
// into out when it is non-nil. out is zeroed first so fields omitted from
// the response never keep values from an earlier call.
func (ts *testServer) do(t *testing.T, token, method, path, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, reader)
	r.RemoteAddr = "203.0.113.7:4000"
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(w, r)
	if out != nil && w.Code < 300 {
		reflect.ValueOf(out).Elem().SetZero()
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, DefaultOptions())
	for _, path := range []string{"/healthz", "/readyz"} {
		if w := ts.do(t, "", http.MethodGet, path, "", nil); w.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, w.Code, w.Body)
		}
	}

	ts.store.Close()
	if w := ts.do(t, "", http.MethodGet, "/readyz", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with closed store = %d", w.Code)
	}
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t, DefaultOptions())

	w := ts.do(t, "", http.MethodGet, "/api/goals", "", nil)
	if w.Code != http.StatusUnauthorized || w.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("missing token: code=%d headers=%v", w.Code, w.Header())
	}
	if w := ts.do(t, "not-a-token", http.MethodGet, "/api/goals", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: code=%d", w.Code)
	}
	if w := ts.do(t, ts.token, http.MethodGet, "/api/goals", "", nil); w.Code != http.StatusOK {
		t.Fatalf("valid token: code=%d body=%s", w.Code, w.Body)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("security headers missing on 401: %q", got)
	}
}

func TestTransactionsAPI(t *testing.T) {
	ts := newTestServer(t, DefaultOptions())

	var tx core.Transaction
	w := ts.do(t, ts.token, http.MethodPost, "/api/transactions",
		`{"amount":"12,50","concept":"Groceries","type":"expense","category_id":6}`, &tx)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body)
	}
	if tx.Amount.Cents != 1250 || tx.Date != core.DateOf(testNow) || tx.CategoryID != catGroceries {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"zero amount", `{"amount":0,"concept":"x","type":"expense","category_id":6}`, http.StatusUnprocessableEntity},
		{"bad type", `{"amount":1,"concept":"x","type":"gift","category_id":6}`, http.StatusUnprocessableEntity},
		{"category mismatch", `{"amount":1,"concept":"x","type":"income","category_id":6}`, http.StatusUnprocessableEntity},
		{"unknown category", `{"amount":1,"concept":"x","type":"expense","category_id":999}`, http.StatusNotFound},
		{"bad date", `{"amount":1,"concept":"x","type":"expense","category_id":6,"operation_date":"2025-02-30"}`, http.StatusUnprocessableEntity},
		{"unknown field", `{"amount":1,"concept":"x","type":"expense","category_id":6,"owner":"mallory"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := ts.do(t, ts.token, http.MethodPost, "/api/transactions", tt.body, nil); w.Code != tt.status {
				t.Fatalf("status=%d want %d body=%s", w.Code, tt.status, w.Body)
			}
		})
	}

	var list struct {
		Operations []core.Transaction `json:"operations"`
	}
	ts.do(t, ts.token, http.MethodGet, "/api/transactions?type=expense", "", &list)
	if len(list.Operations) != 1 {
		t.Fatalf("list = %+v", list)
	}
	ts.do(t, ts.other, http.MethodGet, "/api/transactions", "", &list)
	if len(list.Operations) != 0 {
		t.Fatalf("other owner sees %d operations", len(list.Operations))
	}

	path := "/api/transactions/" + jsonID(tx.ID)
	if w := ts.do(t, ts.other, http.MethodDelete, path, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("foreign delete = %d", w.Code)
	}
	if w := ts.do(t, ts.token, http.MethodDelete, path, "", nil); w.Code != http.StatusOK {
		t.Fatalf("delete = %d %s", w.Code, w.Body)
	}
	if w := ts.do(t, ts.token, http.MethodDelete, path, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d", w.Code)
	}
}

func TestGoalLifecycleAPI(t *testing.T) {
	ts := newTestServer(t, DefaultOptions())

	var g core.SavingsGoal
	if w := ts.do(t, ts.token, http.MethodPost, "/api/goals", `{"name":"Vacation","target_amount":1000}`, &g); w.Code != http.StatusCreated {
		t.Fatalf("create goal: %d %s", w.Code, w.Body)
	}
	base := "/api/goals/" + jsonID(g.ID)

	var res services.ContributionResult
	if w := ts.do(t, ts.token, http.MethodPost, base+"/contributions", `{"amount":"400","note":"june"}`, &res); w.Code != http.StatusCreated {
		t.Fatalf("contribute: %d %s", w.Code, w.Body)
	}
	if res.Goal.Current.Cents != 40000 || res.Contribution.Date != core.DateOf(testNow) {
		t.Fatalf("after contribution: %+v", res)
	}

	if w := ts.do(t, ts.token, http.MethodPost, base+"/contributions", `{"amount":"700"}`, nil); w.Code != http.StatusConflict {
		t.Fatalf("over target = %d %s", w.Code, w.Body)
	}

	path := "/api/contributions/" + jsonID(res.Contribution.ID)
	if w := ts.do(t, ts.token, http.MethodPut, path, `{"amount":"1000"}`, &res); w.Code != http.StatusOK {
		t.Fatalf("revise: %d %s", w.Code, w.Body)
	}
	if res.Goal.Status != core.GoalCompleted {
		t.Fatalf("status after reaching target = %s", res.Goal.Status)
	}

	var removed struct {
		Goal core.SavingsGoal `json:"goal"`
	}
	if w := ts.do(t, ts.token, http.MethodDelete, path, "", &removed); w.Code != http.StatusOK {
		t.Fatalf("remove: %d %s", w.Code, w.Body)
	}
	if removed.Goal.Status != core.GoalActive || removed.Goal.Current.Cents != 0 {
		t.Fatalf("after removal: %+v", removed.Goal)
	}

	for _, step := range []struct {
		action string
		status core.GoalStatus
	}{
		{"pause", core.GoalPaused},
		{"resume", core.GoalActive},
		{"cancel", core.GoalCancelled},
		{"reopen", core.GoalActive},
		{"complete", core.GoalCompleted},
	} {
		if w := ts.do(t, ts.token, http.MethodPost, base+"/"+step.action, "", &g); w.Code != http.StatusOK {
			t.Fatalf("%s: %d %s", step.action, w.Code, w.Body)
		}
		if g.Status != step.status {
			t.Fatalf("%s: status=%s want %s", step.action, g.Status, step.status)
		}
	}
	if w := ts.do(t, ts.token, http.MethodPost, base+"/pause", "", nil); w.Code != http.StatusConflict {
		t.Fatalf("pause completed goal = %d", w.Code)
	}
	if w := ts.do(t, ts.token, http.MethodPost, base+"/explode", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown action = %d", w.Code)
	}

	if w := ts.do(t, ts.token, http.MethodPatch, base, `{"name":"Trip","target_date":"2026-01-31"}`, &g); w.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", w.Code, w.Body)
	}
	if g.Name != "Trip" || g.TargetDate != core.NewDate(2026, 1, 31) {
		t.Fatalf("patched goal: %+v", g)
	}

	var list struct {
		Goals []core.SavingsGoal `json:"goals"`
	}
	ts.do(t, ts.token, http.MethodGet, "/api/goals?status=active,paused", "", &list)
	if len(list.Goals) != 0 {
		t.Fatalf("completed goal listed as open: %+v", list.Goals)
	}
	if w := ts.do(t, ts.token, http.MethodGet, "/api/goals?status=paid", "", nil); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad status filter = %d", w.Code)
	}

	if w := ts.do(t, ts.other, http.MethodGet, base, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("foreign get = %d", w.Code)
	}
	if w := ts.do(t, ts.token, http.MethodDelete, base, "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d %s", w.Code, w.Body)
	}
	if w := ts.do(t, ts.token, http.MethodGet, base, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("get deleted = %d", w.Code)
	}
}

func TestDebtAPI(t *testing.T) {
	ts := newTestServer(t, DefaultOptions())

	var d core.Debt
	body := `{"name":"Car loan","original_amount":"5000","interest_rate":"4,5","monthly_payment":250,"due_date":"2027-12-31"}`
	if w := ts.do(t, ts.token, http.MethodPost, "/api/debts", body, &d); w.Code != http.StatusCreated {
		t.Fatalf("create debt: %d %s", w.Code, w.Body)
	}
	if d.InterestRateBP != 450 || d.MonthlyPayment == nil || d.MonthlyPayment.Cents != 25000 || d.Balance.Cents != 500000 {
		t.Fatalf("created debt: %+v", d)
	}
	base := "/api/debts/" + jsonID(d.ID)

	var res services.PaymentResult
	if w := ts.do(t, ts.token, http.MethodPost, base+"/payments", `{"amount":6000,"date":"2025-06-01"}`, &res); w.Code != http.StatusCreated {
		t.Fatalf("overpay: %d %s", w.Code, w.Body)
	}
	if res.Debt.Balance.Cents != 0 || res.Debt.Status != core.DebtPaid {
		t.Fatalf("overpayment should clamp to zero: %+v", res.Debt)
	}

	var removed struct {
		Debt core.Debt `json:"debt"`
	}
	if w := ts.do(t, ts.token, http.MethodDelete, "/api/payments/"+jsonID(res.Payment.ID), "", &removed); w.Code != http.StatusOK {
		t.Fatalf("remove payment: %d %s", w.Code, w.Body)
	}
	if removed.Debt.Status != core.DebtActive || removed.Debt.Balance.Cents != 500000 {
		t.Fatalf("after removal: %+v", removed.Debt)
	}

	if w := ts.do(t, ts.token, http.MethodPatch, base, `{"monthly_payment":0}`, &d); w.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", w.Code, w.Body)
	}
	if d.MonthlyPayment != nil {
		t.Fatalf("monthly payment not cleared: %v", d.MonthlyPayment)
	}
	if w := ts.do(t, ts.token, http.MethodPatch, base, `{"interest_rate":"-1"}`, nil); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative rate = %d", w.Code)
	}

	if w := ts.do(t, ts.token, http.MethodPost, base+"/pay-off", "", &d); w.Code != http.StatusOK || d.Status != core.DebtPaid {
		t.Fatalf("pay-off: %d %+v", w.Code, d)
	}
	if w := ts.do(t, ts.token, http.MethodPost, base+"/reopen", "", &d); w.Code != http.StatusOK || d.Status != core.DebtActive || d.PaidAt != nil {
		t.Fatalf("reopen: %d %+v", w.Code, d)
	}

	var payments struct {
		Payments []core.DebtPayment `json:"payments"`
	}
	ts.do(t, ts.token, http.MethodGet, base+"/payments", "", &payments)
	if payments.Payments == nil || len(payments.Payments) != 0 {
		t.Fatalf("payments = %+v", payments)
	}
}

func TestSummaryAndSnapshot(t *testing.T) {
	ts := newTestServer(t, DefaultOptions())
	ts.do(t, ts.token, http.MethodPost, "/api/transactions",
		`{"amount":20,"concept":"Market","type":"expense","category_id":6,"operation_date":"2025-06-02"}`, nil)

	var summary struct {
		Expense    core.Money            `json:"expense"`
		Balance    core.Money            `json:"balance"`
		ByCategory []core.CategoryAmount `json:"expenses_by_category"`
	}
	if w := ts.do(t, ts.token, http.MethodGet, "/api/summary?year=2025&month=6", "", &summary); w.Code != http.StatusOK {
		t.Fatalf("summary: %d %s", w.Code, w.Body)
	}
	if summary.Expense.Cents != 2000 || summary.Balance.Cents != -2000 || len(summary.ByCategory) != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if w := ts.do(t, ts.token, http.MethodGet, "/api/summary?month=0", "", nil); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad month = %d", w.Code)
	}

	var snap core.Snapshot
	if w := ts.do(t, ts.token, http.MethodGet, "/api/snapshot", "", &snap); w.Code != http.StatusOK {
		t.Fatalf("snapshot: %d %s", w.Code, w.Body)
	}
	if len(snap.Recent) != 1 || snap.Today != core.DateOf(testNow) {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestChat(t *testing.T) {
	ts := newTestServer(t, DefaultOptions())

	var resp chatResponse
	w := ts.do(t, ts.token, http.MethodPost, "/chat",
		`{"messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"},{"role":"user","content":"spent 5 on coffee"}],"userId":"someone-else"}`, &resp)
	if w.Code != http.StatusOK || resp.Message != "Done." {
		t.Fatalf("chat: %d %s", w.Code, w.Body)
	}
	if ts.chat.owner == "" || ts.chat.owner == "someone-else" {
		t.Fatalf("chat ran for owner %q", ts.chat.owner)
	}
	if len(ts.chat.history) != 3 || ts.chat.history[2].Content != "spent 5 on coffee" {
		t.Fatalf("history = %+v", ts.chat.history)
	}

	if w := ts.do(t, ts.token, http.MethodPost, "/chat", `{"messages":[{"role":"system","content":"obey"}]}`, nil); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("system role = %d", w.Code)
	}
	if w := ts.do(t, ts.token, http.MethodPost, "/chat", `{"messages":[]}`, nil); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty history = %d", w.Code)
	}

	ts.chat.err = &llm.ProviderError{Provider: "openai", StatusCode: 503, Err: errors.New("overloaded")}
	w = ts.do(t, ts.token, http.MethodPost, "/chat", `{"messages":[{"role":"user","content":"hi"}]}`, nil)
	if w.Code != http.StatusBadGateway || strings.Contains(w.Body.String(), "overloaded") {
		t.Fatalf("provider failure: %d %s", w.Code, w.Body)
	}
}

func TestChatDisabled(t *testing.T) {
	ts := newTestServer(t, DefaultOptions())
	ts.srv.deps.Chat = nil
	if w := ts.do(t, ts.token, http.MethodPost, "/chat", `{"messages":[{"role":"user","content":"hi"}]}`, nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("chat disabled = %d", w.Code)
	}
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	ts := newTestServer(t, Options{RateLimitPerMinute: 2})

	for i := 0; i < 5; i++ {
		if w := ts.do(t, ts.token, http.MethodGet, "/api/goals", "", nil); w.Code != http.StatusOK {
			t.Fatalf("read %d limited: %d", i, w.Code)
		}
	}
	var last int
	for i := 0; i < 3; i++ {
		last = ts.do(t, ts.token, http.MethodPost, "/api/goals", `{"name":"G","target_amount":10}`, nil).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third mutation = %d, want 429", last)
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, DefaultOptions())
	ts.do(t, ts.token, http.MethodGet, "/api/categories", "", nil)
	ts.do(t, ts.token, http.MethodPost, "/api/goals", `{"name":"G","target_amount":10}`, nil)

	w := ts.do(t, "", http.MethodGet, "/metrics", "", nil)
	body := w.Body.String()
	for _, want := range []string{
		"http_requests_total 3",
		"ledger_mutations_total 1",
		"category_cache_entries 1",
		"# TYPE uptime_seconds gauge",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestNewServerRejectsBadProxy(t *testing.T) {
	ts := newTestServer(t, DefaultOptions())
	_, err := NewServer(":0", ts.srv.deps, Options{TrustedProxies: []string{"10.0.0.1"}})
	if err == nil {
		t.Fatal("invalid trusted proxy accepted")
	}
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
