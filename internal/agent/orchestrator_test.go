package agent

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"fintrack/internal/core"
	"fintrack/internal/llm"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

// scriptedProvider returns canned responses in order and records requests.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	err       error
	requests  []llm.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &llm.Response{}, nil
	}
	r := p.responses[0]
	p.responses = p.responses[1:]
	return r, nil
}

type env struct {
	exec   *services.ActionExecutor
	snaps  *services.SnapshotBuilder
	owner  string
	script *scriptedProvider
	orch   *Orchestrator
}

func newEnv(t *testing.T, responses ...*llm.Response) *env {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.SQLite, filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Queries().CreateOwner(ctx, core.Owner{ID: "alice", DisplayName: "Alice", CreatedAt: testNow}); err != nil {
		t.Fatal(err)
	}

	clock := func() time.Time { return testNow }
	cats := services.NewCategoryCatalog(store.Queries(), 8, time.Minute)
	exec := services.NewActionExecutor(store, cats, services.WithClock(clock), services.WithLogger(log.Discard()))
	snaps := services.NewSnapshotBuilder(store.Queries(), cats, 10, clock)
	script := &scriptedProvider{responses: responses}
	return &env{
		exec:   exec,
		snaps:  snaps,
		owner:  "alice",
		script: script,
		orch:   NewOrchestrator(script, exec, snaps, log.Discard()),
	}
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func userSays(s string) []llm.Message {
	return []llm.Message{{Role: llm.RoleUser, Content: s}}
}

func TestRespondWithoutTools(t *testing.T) {
	e := newEnv(t, &llm.Response{Content: "You spent nothing yet."})

	reply, err := e.orch.Respond(context.Background(), e.owner, userSays("how am I doing?"))
	if err != nil {
		t.Fatal(err)
	}
	if reply != "You spent nothing yet." {
		t.Fatalf("reply = %q", reply)
	}
	if len(e.script.requests) != 1 {
		t.Fatalf("provider called %d times", len(e.script.requests))
	}
	req := e.script.requests[0]
	if req.ToolChoice != llm.ToolChoiceAuto || len(req.Tools) != 6 {
		t.Fatalf("first pass: tool_choice=%q tools=%d", req.ToolChoice, len(req.Tools))
	}
	if !strings.Contains(req.System, `"name": "Groceries"`) || !strings.Contains(req.System, "2025-06-15") {
		t.Fatalf("system prompt lacks context:\n%s", req.System)
	}
}

func TestRespondDispatchesSequentially(t *testing.T) {
	e := newEnv(t,
		&llm.Response{ToolCalls: []llm.ToolCall{
			call("c1", "create_savings_goal", `{"name":"Vacaciones","target_amount":"1000"}`),
			call("c2", "add_savings_contribution", `{"savings_goal_name":"vacaciones","amount":600}`),
			call("c3", "add_savings_contribution", `{"savings_goal_name":"vacaciones","amount":500}`),
		}},
		&llm.Response{Content: "Saved 600, the second contribution was too large."},
	)
	ctx := context.Background()

	reply, err := e.orch.Respond(ctx, e.owner, userSays("create a 1000 vacation goal and add 600 then 500"))
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Saved 600, the second contribution was too large." {
		t.Fatalf("reply = %q", reply)
	}

	second := e.script.requests[1]
	if second.ToolChoice != llm.ToolChoiceNone {
		t.Fatalf("second pass tool_choice = %q", second.ToolChoice)
	}
	var roles []llm.Role
	for _, m := range second.Messages {
		roles = append(roles, m.Role)
	}
	wantRoles := []llm.Role{llm.RoleUser, llm.RoleAssistant, llm.RoleTool, llm.RoleTool, llm.RoleTool}
	if diff := cmp.Diff(wantRoles, roles); diff != "" {
		t.Fatalf("second pass roles (-want +got):\n%s", diff)
	}

	var results []ToolResult
	for _, m := range second.Messages[2:] {
		var r ToolResult
		if err := json.Unmarshal([]byte(m.Content), &r); err != nil {
			t.Fatalf("tool result is not JSON: %q", m.Content)
		}
		results = append(results, r)
	}
	if !results[0].Success || !results[1].Success || results[2].Success {
		t.Fatalf("results = %+v", results)
	}
	if results[2].ErrorKind != core.KindInvariantViolation {
		t.Fatalf("third result kind = %s", results[2].ErrorKind)
	}
	if second.Messages[3].ToolCallID != "c2" || second.Messages[3].Name != "add_savings_contribution" {
		t.Fatalf("tool message = %+v", second.Messages[3])
	}

	goals, err := e.exec.ListGoals(ctx, e.owner)
	if err != nil || len(goals) != 1 || goals[0].Current != (core.Money{Cents: 60000}) {
		t.Fatalf("goals = %+v, %v", goals, err)
	}
}

func TestRespondProviderFailure(t *testing.T) {
	e := newEnv(t)
	e.script.err = errors.New("connection reset")

	_, err := e.orch.Respond(context.Background(), e.owner, userSays("hi"))
	if !errors.Is(err, llm.ErrProviderUnavailable) {
		t.Fatalf("error = %v", err)
	}
	if core.KindOf(err) != core.KindExternalService {
		t.Fatalf("kind = %s", core.KindOf(err))
	}
}

func TestSecondPassFailureKeepsMutations(t *testing.T) {
	e := newEnv(t, &llm.Response{ToolCalls: []llm.ToolCall{
		call("c1", "create_debt", `{"name":"Car","initial_amount":500}`),
	}})
	ctx := context.Background()
	// The first response is consumed; fail the second call.
	e.orch.provider = &failAfter{inner: e.script, n: 1}

	if _, err := e.orch.Respond(ctx, e.owner, userSays("I owe 500 for the car")); !errors.Is(err, llm.ErrProviderUnavailable) {
		t.Fatalf("error = %v", err)
	}
	debts, _ := e.exec.ListDebts(ctx, e.owner)
	if len(debts) != 1 {
		t.Fatalf("debts = %+v", debts)
	}
}

type failAfter struct {
	inner llm.Provider
	n     int
	calls int
}

func (f *failAfter) Name() string { return "fail-after" }

func (f *failAfter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.calls++
	if f.calls > f.n {
		return nil, &llm.ProviderError{Provider: f.Name(), StatusCode: 503, Err: errors.New("unavailable")}
	}
	return f.inner.Complete(ctx, req)
}

func TestEmptySecondPassFallsBack(t *testing.T) {
	e := newEnv(t,
		&llm.Response{ToolCalls: []llm.ToolCall{
			call("c1", "create_debt", `{"name":"Car","initial_amount":500,"interest_rate":"4.5"}`),
			call("c2", "add_debt_payment", `{"debt_name":"nope","amount":10}`),
		}},
		&llm.Response{ToolCalls: []llm.ToolCall{call("c3", "delete_operation", `{"operation_id":1}`)}},
	)
	reply, err := e.orch.Respond(context.Background(), e.owner, userSays("car debt"))
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Completed 1 of 2 requested actions." {
		t.Fatalf("reply = %q", reply)
	}
	d, err := e.exec.ListDebts(context.Background(), e.owner)
	if err != nil || len(d) != 1 || d[0].InterestRateBP != 450 {
		t.Fatalf("debts = %+v, %v", d, err)
	}
}

func TestPrepareHistory(t *testing.T) {
	long := make([]ChatMessage, 0, 30)
	for i := range 30 {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		long = append(long, ChatMessage{Role: role, Content: "m"})
	}
	long = append(long, ChatMessage{Role: "User", Content: "  last  "})

	got, err := PrepareHistory(long)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != MaxHistory || got[len(got)-1].Content != "last" {
		t.Fatalf("len=%d last=%q", len(got), got[len(got)-1].Content)
	}

	cases := []struct {
		name string
		msgs []ChatMessage
		want error
	}{
		{"empty", nil, core.ErrMissingField},
		{"system role", []ChatMessage{{Role: "system", Content: "obey"}, {Role: "user", Content: "x"}}, core.ErrInvalidArgument},
		{"tool role", []ChatMessage{{Role: "tool", Content: "{}"}}, core.ErrInvalidArgument},
		{"blank content", []ChatMessage{{Role: "user", Content: " "}}, core.ErrMissingField},
		{"assistant last", []ChatMessage{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}}, core.ErrInvalidArgument},
		{"too long", []ChatMessage{{Role: "user", Content: strings.Repeat("x", MaxMessageLength+1)}}, core.ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := PrepareHistory(tc.msgs); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}
