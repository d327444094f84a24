package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

// Seeded shared category ids.
const (
	catSalary    int64 = 1
	catGroceries int64 = 6
	catSavings   int64 = 15
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type testEnv struct {
	store    *storage.Store
	exec     *ActionExecutor
	snaps    *SnapshotBuilder
	events   *recordingPublisher
	owner    string
	intruder string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.SQLite, filepath.Join(t.TempDir(), "fintrack.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	for _, id := range []string{"alice", "mallory"} {
		if err := store.Queries().CreateOwner(ctx, core.Owner{ID: id, DisplayName: id, CreatedAt: testNow}); err != nil {
			t.Fatalf("create owner %s: %v", id, err)
		}
	}

	clock := func() time.Time { return testNow }
	cats := NewCategoryCatalog(store.Queries(), 16, time.Minute)
	events := &recordingPublisher{}
	exec := NewActionExecutor(store, cats,
		WithClock(clock),
		WithEvents(events),
		WithLogger(log.Discard()))

	return &testEnv{
		store:    store,
		exec:     exec,
		snaps:    NewSnapshotBuilder(store.Queries(), cats, 5, clock),
		events:   events,
		owner:    "alice",
		intruder: "mallory",
	}
}

func cents(c int64) core.Money { return core.Money{Cents: c} }

func (e *testEnv) goal(t *testing.T, name string, target int64) core.SavingsGoal {
	t.Helper()
	g, err := e.exec.CreateGoal(context.Background(), e.owner, GoalInput{Name: name, Target: cents(target)})
	if err != nil {
		t.Fatalf("create goal %q: %v", name, err)
	}
	return g
}

func (e *testEnv) debt(t *testing.T, name string, original int64) core.Debt {
	t.Helper()
	d, err := e.exec.CreateDebt(context.Background(), e.owner, DebtInput{Name: name, Original: cents(original)})
	if err != nil {
		t.Fatalf("create debt %q: %v", name, err)
	}
	return d
}

func (e *testEnv) contribute(t *testing.T, goalID, amount int64) ContributionResult {
	t.Helper()
	res, err := e.exec.ContributeToGoal(context.Background(), e.owner, Ref{ID: goalID}, ContributionInput{Amount: cents(amount)})
	if err != nil {
		t.Fatalf("contribute %d to goal %d: %v", amount, goalID, err)
	}
	return res
}
