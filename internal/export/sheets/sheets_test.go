package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"bally/internal/aggregate"
	"bally/internal/core"
)

// fakeSheets serves the handful of Sheets endpoints the exporter calls.
type fakeSheets struct {
	mu       sync.Mutex
	titles   []string
	columnA  [][]any
	added    []string
	cleared  []string
	updates  map[string][][]any
	requests []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/sheet-id")
	f.requests = append(f.requests, r.Method+" "+path)

	switch {
	case r.Method == http.MethodGet && path == "":
		ss := gsheet.Spreadsheet{}
		for _, t := range f.titles {
			ss.Sheets = append(ss.Sheets, &gsheet.Sheet{Properties: &gsheet.SheetProperties{Title: t}})
		}
		json.NewEncoder(w).Encode(ss)
	case r.Method == http.MethodPost && path == ":batchUpdate":
		var req gsheet.BatchUpdateSpreadsheetRequest
		json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			f.added = append(f.added, rq.AddSheet.Properties.Title)
			f.titles = append(f.titles, rq.AddSheet.Properties.Title)
		}
		w.Write([]byte(`{}`))
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/values/"):
		json.NewEncoder(w).Encode(gsheet.ValueRange{Values: f.columnA})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		f.cleared = append(f.cleared, strings.TrimSuffix(strings.TrimPrefix(path, "/values/"), ":clear"))
		w.Write([]byte(`{}`))
	case r.Method == http.MethodPut && strings.HasPrefix(path, "/values/"):
		var vr gsheet.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		f.updates[strings.TrimPrefix(path, "/values/")] = vr.Values
		w.Write([]byte(`{}`))
	default:
		http.Error(w, "unexpected request", http.StatusNotFound)
	}
}

func newTestExporter(t *testing.T, fake *fakeSheets) *Exporter {
	t.Helper()
	fake.updates = make(map[string][][]any)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	e := NewWithService(svc, "sheet-id", "VAT")
	e.now = func() time.Time { return time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC) }
	return e
}

func marchSummary() aggregate.VATSummary {
	sub := core.Cents(10000)
	inv := core.Invoice{
		ID: "i1", SupplierID: "s1", Date: core.NewDate(2024, 3, 15),
		Subtotal: sub, VATRate: 21, VATAmount: core.ComputeVAT(sub, 21),
	}
	inv.Total = inv.Subtotal.Add(inv.VATAmount)
	return aggregate.CalculateVATForPeriod([]core.Invoice{inv}, aggregate.MonthPeriod(2024, time.March))
}

func TestPushVATSummaryCreatesSheetAndAppends(t *testing.T) {
	fake := &fakeSheets{columnA: [][]any{{"Period"}, {"January 2024"}}}
	e := newTestExporter(t, fake)

	if err := e.PushVATSummary(context.Background(), marchSummary()); err != nil {
		t.Fatalf("push: %v", err)
	}

	if diff := cmp.Diff([]string{"2024 VAT"}, fake.added); diff != "" {
		t.Errorf("added sheets (-want +got):\n%s", diff)
	}
	if got := fake.updates["'2024 VAT'!A1"]; len(got) != 1 || got[0][0] != "Period" {
		t.Errorf("header not written: %v", got)
	}
	row, ok := fake.updates["'2024 VAT'!A3"]
	if !ok {
		t.Fatalf("row 3 not written, updates: %v", fake.updates)
	}
	want := [][]any{{"March 2024", "2024-03-01", "2024-03-31", float64(1), 100.0, 21.0, 121.0, float64(1), "2024-03-20T12:00:00Z", "21%", 21.0, 100.0, float64(1)}}
	if diff := cmp.Diff(want, row); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
	if len(fake.cleared) != 0 {
		t.Errorf("nothing should be cleared on append, got %v", fake.cleared)
	}

	// The sheet is remembered.
	if err := e.PushVATSummary(context.Background(), marchSummary()); err != nil {
		t.Fatal(err)
	}
	if len(fake.added) != 1 {
		t.Errorf("sheet created twice: %v", fake.added)
	}
}

func TestPushVATSummaryReplacesExistingRow(t *testing.T) {
	fake := &fakeSheets{
		titles:  []string{"2024 VAT"},
		columnA: [][]any{{"Period"}, {"February 2024"}, {"March 2024"}},
	}
	e := newTestExporter(t, fake)

	if err := e.PushVATSummary(context.Background(), marchSummary()); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(fake.added) != 0 {
		t.Errorf("existing sheet recreated: %v", fake.added)
	}
	if diff := cmp.Diff([]string{"'2024 VAT'!A3:ZZ3"}, fake.cleared); diff != "" {
		t.Errorf("cleared (-want +got):\n%s", diff)
	}
	if _, ok := fake.updates["'2024 VAT'!A3"]; !ok {
		t.Errorf("row 3 not rewritten: %v", fake.updates)
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err != ErrNotConfigured {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	_, err := New(context.Background(), Config{SpreadsheetID: "x", CredentialsFile: "/nonexistent/creds.json"})
	if err == nil || !strings.Contains(err.Error(), "service account file") {
		t.Errorf("expected credentials file error, got %v", err)
	}
}

func TestSummaryRowRateOrder(t *testing.T) {
	s := aggregate.VATSummary{
		Period: "Q1 2024",
		Start:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
		VATByRate: map[core.Rate]aggregate.RateTotals{
			21: {VAT: core.Cents(2100), Subtotal: core.Cents(10000), Count: 1},
			6:  {VAT: core.Cents(60), Subtotal: core.Cents(1000), Count: 2},
		},
	}
	row := SummaryRow(s, time.Time{})
	if got := row[9:]; got[0] != "6%" || got[4] != "21%" {
		t.Errorf("rates out of order: %v", got)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := map[string]string{
		"VAT":          "2024 VAT",
		" VAT ":        "2024 VAT",
		"2023 Summary": "2023 Summary",
		"":             "",
	}
	for in, want := range tests {
		if got := yearPrefixedName(in, 2024); got != want {
			t.Errorf("yearPrefixedName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestA1QuotesSheetNames(t *testing.T) {
	if got := a1("Bob's 2024", "A:A"); got != "'Bob''s 2024'!A:A" {
		t.Errorf("a1 = %q", got)
	}
}
