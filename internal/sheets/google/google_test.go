package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	goption "google.golang.org/api/option"

	"fintrack/internal/core"
	"fintrack/internal/log"
	ports "fintrack/internal/sheets"
)

type recordedCall struct {
	Method string
	Path   string
	Query  url.Values
	Values [][]any
}

type fakeSheetsAPI struct {
	mu     sync.Mutex
	calls  []recordedCall
	header [][]any
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var vr struct {
		Values [][]any `json:"values"`
	}
	_ = json.Unmarshal(body, &vr)

	path, _ := url.PathUnescape(r.URL.EscapedPath())
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Method: r.Method, Path: path, Query: r.URL.Query(), Values: vr.Values})
	header := f.header
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet {
		_ = json.NewEncoder(w).Encode(map[string]any{"values": header})
		return
	}
	_, _ = io.WriteString(w, `{}`)
}

func (f *fakeSheetsAPI) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func newTestClient(t *testing.T, api *fakeSheetsAPI, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	if cfg.SpreadsheetID == "" {
		cfg.SpreadsheetID = "sheet-1"
	}
	c, err := NewFromConfig(context.Background(), cfg, log.Discard(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewFromConfig_MissingSpreadsheetID(t *testing.T) {
	_, err := NewFromConfig(context.Background(), Config{}, log.Discard())
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("err = %v", err)
	}
}

func TestNewFromConfig_MissingCredentialFile(t *testing.T) {
	_, err := NewFromConfig(context.Background(), Config{
		SpreadsheetID:      "x",
		ServiceAccountFile: filepath.Join(t.TempDir(), "nope.json"),
	}, log.Discard())
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("err = %v", err)
	}
}

func TestAppendActivity_GroupsByYear(t *testing.T) {
	api := &fakeSheetsAPI{}
	c := newTestClient(t, api, Config{ActivitySheet: "Activity"})

	rows := []ports.ActivityRow{
		{Time: time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC), Owner: "o1", Event: "goal.contribution.added", Entity: "savings_goal", EntityID: 3, Name: "Car", Amount: core.Money{Cents: 1250}, Status: "active"},
		{Time: time.Date(2025, 1, 1, 8, 30, 0, 0, time.UTC), Owner: "o1", Event: "debt.payment.added", Entity: "debt", EntityID: 4, Name: "Loan", Amount: core.Money{Cents: 500}, Status: "active"},
		{Time: time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC), Owner: "o2", Event: "transaction.created", Entity: "transaction", EntityID: 9, Amount: core.Money{Cents: 100}},
	}
	if err := c.AppendActivity(context.Background(), rows); err != nil {
		t.Fatal(err)
	}

	calls := api.recorded()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	for i, want := range []string{"2024 Activity!A:H:append", "2025 Activity!A:H:append"} {
		if !strings.HasSuffix(calls[i].Path, want) {
			t.Errorf("call %d path = %q, want suffix %q", i, calls[i].Path, want)
		}
		if got := calls[i].Query.Get("valueInputOption"); got != "USER_ENTERED" {
			t.Errorf("call %d valueInputOption = %q", i, got)
		}
		if got := calls[i].Query.Get("insertDataOption"); got != "INSERT_ROWS" {
			t.Errorf("call %d insertDataOption = %q", i, got)
		}
	}
	want := [][]any{{"2024-12-31 23:00:00", "o1", "goal.contribution.added", "savings_goal", float64(3), "Car", 12.5, "active"}}
	if diff := cmp.Diff(want, calls[0].Values); diff != "" {
		t.Fatalf("values (-want +got):\n%s", diff)
	}
	if len(calls[1].Values) != 2 {
		t.Fatalf("2025 rows = %d", len(calls[1].Values))
	}
}

func TestAppendActivity_EmptyIsNoop(t *testing.T) {
	api := &fakeSheetsAPI{}
	c := newTestClient(t, api, Config{})
	if err := c.AppendActivity(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if n := len(api.recorded()); n != 0 {
		t.Fatalf("calls = %d", n)
	}
}

func TestReplaceProgress(t *testing.T) {
	api := &fakeSheetsAPI{}
	c := newTestClient(t, api, Config{ProgressSheet: "Progress"})

	rows := []ports.ProgressRow{
		{Owner: "o1", Entity: "savings_goal", ID: 1, Name: "Car", Total: core.Money{Cents: 100000}, Done: core.Money{Cents: 25000}, Percent: 25, Status: "active", Date: core.NewDate(2026, 6, 1)},
		{Owner: "o1", Entity: "debt", ID: 2, Name: "Loan", Total: core.Money{Cents: 5000}, Done: core.Money{}, Status: "active"},
	}
	if err := c.ReplaceProgress(context.Background(), rows); err != nil {
		t.Fatal(err)
	}

	calls := api.recorded()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want clear+update", len(calls))
	}
	if !strings.HasSuffix(calls[0].Path, "Progress!A:I:clear") {
		t.Errorf("clear path = %q", calls[0].Path)
	}
	if calls[1].Method != http.MethodPut || !strings.HasSuffix(calls[1].Path, "Progress!A1:I3") {
		t.Errorf("update = %s %q", calls[1].Method, calls[1].Path)
	}
	got := calls[1].Values
	if len(got) != 3 || got[0][0] != "Owner" {
		t.Fatalf("values = %v", got)
	}
	if got[1][8] != "2026-06-01" || got[2][8] != "" {
		t.Fatalf("dates = %v / %v", got[1][8], got[2][8])
	}
}

func TestReplaceProgress_DisabledWithoutSheet(t *testing.T) {
	api := &fakeSheetsAPI{}
	c := newTestClient(t, api, Config{})
	if err := c.ReplaceProgress(context.Background(), []ports.ProgressRow{{Owner: "o"}}); err != nil {
		t.Fatal(err)
	}
	if n := len(api.recorded()); n != 0 {
		t.Fatalf("calls = %d", n)
	}
}

func TestEnsureHeaders(t *testing.T) {
	api := &fakeSheetsAPI{}
	c := newTestClient(t, api, Config{ActivitySheet: "Activity"})
	if err := c.EnsureHeaders(context.Background(), 2025); err != nil {
		t.Fatal(err)
	}
	calls := api.recorded()
	if len(calls) != 2 || calls[1].Method != http.MethodPut {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[1].Values[0][0] != "Time" {
		t.Fatalf("header = %v", calls[1].Values)
	}

	api2 := &fakeSheetsAPI{header: [][]any{{"Time"}}}
	c2 := newTestClient(t, api2, Config{ActivitySheet: "Activity"})
	if err := c2.EnsureHeaders(context.Background(), 2025); err != nil {
		t.Fatal(err)
	}
	if n := len(api2.recorded()); n != 1 {
		t.Fatalf("existing header rewritten: %d calls", n)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Activity", 2025, "2025 Activity"},
		{"2024 Activity", 2025, "2024 Activity"},
		{"  Progress ", 2023, "2023 Progress"},
		{"", 2025, ""},
		{"1234Activity", 2025, "2025 1234Activity"},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}
