package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"bally/internal/cache"
	"bally/internal/core"
	applog "bally/internal/log"
	"bally/internal/records/memory"
	"bally/internal/services"
)

var testNow = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	store := memory.New()
	clock := func() time.Time { return testNow }

	reports := services.NewReportService(store,
		services.WithReportClock(clock),
		services.WithReportCache(cache.NewLRUCache[*services.VATReport](8, time.Hour)))

	n := 0
	recs := services.NewRecordService(store,
		services.WithRecordClock(clock),
		services.WithInvalidator(reports),
		services.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }))

	if opts.RateLimitPerMinute == 0 {
		opts.RateLimitPerMinute = 1000
	}
	srv, err := NewServer(":0", recs, reports, applog.New(applog.Config{Output: io.Discard}), opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(srv.limiter.Stop)
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d, body %s", rr.Code, want, rr.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/healthz", "")
	expectStatus(t, rr, http.StatusOK)
	if got := decode[map[string]string](t, rr)["status"]; got != "ok" {
		t.Errorf("health status = %q", got)
	}

	rr = do(t, srv, http.MethodGet, "/readyz", "")
	expectStatus(t, rr, http.StatusOK)
	ready := decode[readiness](t, rr)
	if ready.Status != "ready" || ready.Requests.TotalRequests < 1 {
		t.Errorf("readiness = %+v", ready)
	}

	down := newTestServer(t, Options{Ready: func(context.Context) error { return errors.New("db locked") }})
	rr = do(t, down, http.MethodGet, "/readyz", "")
	expectStatus(t, rr, http.StatusServiceUnavailable)
	if got := decode[readiness](t, rr); got.Status != "unavailable" || !strings.Contains(got.Error, "db locked") {
		t.Errorf("readiness = %+v", got)
	}
}

func TestSupplierInvoiceLifecycle(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPost, "/api/suppliers", `{"name":" Acme ","paymentTerms":30}`)
	expectStatus(t, rr, http.StatusCreated)
	if loc := rr.Header().Get("Location"); loc != "/api/suppliers/id-1" {
		t.Errorf("Location = %q", loc)
	}
	if sup := decode[core.Supplier](t, rr); sup.Name != "Acme" {
		t.Errorf("name = %q", sup.Name)
	}

	rr = do(t, srv, http.MethodPost, "/api/invoices",
		`{"supplierId":"id-1","invoiceNumber":"INV-1","date":"2024-03-15","subtotal":100,"vatRate":21}`)
	expectStatus(t, rr, http.StatusCreated)
	inv := decode[invoiceView](t, rr)
	if inv.ID != "id-2" || inv.VATAmount != core.Cents(2100) || inv.Total != core.Cents(12100) {
		t.Errorf("amounts = %+v", inv.Invoice)
	}
	if inv.DueDate.String() != "2024-04-14" || inv.EffectiveStatus != core.StatusPending {
		t.Errorf("due %s, status %s", inv.DueDate, inv.EffectiveStatus)
	}

	rr = do(t, srv, http.MethodGet, "/api/vat?period=month&year=2024&month=3", "")
	expectStatus(t, rr, http.StatusOK)
	report := decode[services.VATReport](t, rr)
	if report.Summary.TotalVAT != core.Cents(2100) || report.Summary.InvoiceCount != 1 {
		t.Errorf("summary = %+v", report.Summary)
	}
	if got := report.Summary.VATByRate[21].Count; got != 1 {
		t.Errorf("21%% bucket count = %d", got)
	}

	rr = do(t, srv, http.MethodGet, "/api/vat/export?period=month&year=2024&month=3", "")
	expectStatus(t, rr, http.StatusOK)
	_, params, err := mime.ParseMediaType(rr.Header().Get("Content-Disposition"))
	if err != nil {
		t.Fatalf("Content-Disposition: %v", err)
	}
	if params["filename"] != "vat-report-2024-03-2024-03-20.txt" {
		t.Errorf("filename = %q", params["filename"])
	}
	if !strings.HasPrefix(rr.Body.String(), "VAT Report\n") || !strings.Contains(rr.Body.String(), "INV-1,2024-03-15,Acme,100.00,21%,21.00,121.00") {
		t.Errorf("export body:\n%s", rr.Body.String())
	}

	rr = do(t, srv, http.MethodPost, "/api/invoices/id-2/status", `{"status":"paid"}`)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[invoiceView](t, rr); got.Status != core.StatusPaid {
		t.Errorf("status = %s", got.Status)
	}

	expectStatus(t, do(t, srv, http.MethodDelete, "/api/suppliers/id-1", ""), http.StatusConflict)
	expectStatus(t, do(t, srv, http.MethodDelete, "/api/invoices/id-2", ""), http.StatusNoContent)
	expectStatus(t, do(t, srv, http.MethodDelete, "/api/suppliers/id-1", ""), http.StatusNoContent)
	expectStatus(t, do(t, srv, http.MethodGet, "/api/suppliers/id-1", ""), http.StatusNotFound)

	rr = do(t, srv, http.MethodGet, "/api/vat?period=month&year=2024&month=3", "")
	if got := decode[services.VATReport](t, rr).Summary.InvoiceCount; got != 0 {
		t.Errorf("deleted invoice still reported: %d", got)
	}
}

func TestUpdateRecords(t *testing.T) {
	srv := newTestServer(t, Options{})
	do(t, srv, http.MethodPost, "/api/suppliers", `{"name":"Acme","paymentTerms":10}`)
	do(t, srv, http.MethodPost, "/api/invoices",
		`{"supplierId":"id-1","invoiceNumber":"A","date":"2024-03-01","subtotal":"50.00","vatRate":21}`)

	rr := do(t, srv, http.MethodPut, "/api/suppliers/id-1", `{"name":"Acme Ltd","email":"ap@acme.test"}`)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[core.Supplier](t, rr); got.Name != "Acme Ltd" || got.PaymentTerms != 0 {
		t.Errorf("supplier = %+v", got)
	}

	rr = do(t, srv, http.MethodPut, "/api/invoices/id-2",
		`{"supplierId":"id-1","invoiceNumber":"A","date":"2024-03-01","dueDate":"2024-04-30","subtotal":200,"vatRate":5.5}`)
	expectStatus(t, rr, http.StatusOK)
	inv := decode[invoiceView](t, rr)
	if inv.VATAmount != core.Cents(1100) || inv.DueDate.String() != "2024-04-30" {
		t.Errorf("invoice = %+v", inv.Invoice)
	}

	rr = do(t, srv, http.MethodGet, "/api/invoices/id-2", "")
	expectStatus(t, rr, http.StatusOK)
	if got := decode[invoiceView](t, rr); got.VATRate != 5.5 {
		t.Errorf("rate = %v", got.VATRate)
	}
}

func TestListInvoicesFilters(t *testing.T) {
	srv := newTestServer(t, Options{})
	do(t, srv, http.MethodPost, "/api/suppliers", `{"name":"Acme","paymentTerms":30}`)
	do(t, srv, http.MethodPost, "/api/suppliers", `{"name":"Globex","paymentTerms":30}`)
	do(t, srv, http.MethodPost, "/api/invoices",
		`{"supplierId":"id-1","invoiceNumber":"OLD","date":"2024-01-01","subtotal":10,"vatRate":21}`)
	do(t, srv, http.MethodPost, "/api/invoices",
		`{"supplierId":"id-2","invoiceNumber":"NEW","date":"2024-03-10","subtotal":10,"vatRate":21}`)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"OLD", "NEW"}},
		{"?status=overdue", []string{"OLD"}},
		{"?status=PENDING", []string{"NEW"}},
		{"?supplierId=id-2", []string{"NEW"}},
		{"?supplierId=id-2&status=overdue", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, "/api/invoices"+tt.query, "")
			expectStatus(t, rr, http.StatusOK)
			var got []string
			for _, inv := range decode[[]invoiceView](t, rr) {
				got = append(got, inv.InvoiceNumber)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, Options{})
	do(t, srv, http.MethodPost, "/api/suppliers", `{"name":"Acme"}`)

	tests := []struct {
		name         string
		method, path string
		body         string
		want         int
	}{
		{"broken json", http.MethodPost, "/api/suppliers", `{`, http.StatusBadRequest},
		{"empty body", http.MethodPost, "/api/suppliers", ``, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/suppliers", `{"name":"A","vat":1}`, http.StatusBadRequest},
		{"wrong type", http.MethodPost, "/api/suppliers", `{"name":"A","paymentTerms":"30"}`, http.StatusBadRequest},
		{"empty name", http.MethodPost, "/api/suppliers", `{"name":" "}`, http.StatusUnprocessableEntity},
		{"bad email", http.MethodPost, "/api/suppliers", `{"name":"A","email":"nope"}`, http.StatusUnprocessableEntity},
		{"unknown supplier", http.MethodPost, "/api/invoices",
			`{"supplierId":"ghost","invoiceNumber":"X","date":"2024-03-01","subtotal":1,"vatRate":21}`, http.StatusUnprocessableEntity},
		{"missing supplier", http.MethodPost, "/api/invoices",
			`{"invoiceNumber":"X","date":"2024-03-01","subtotal":1,"vatRate":21}`, http.StatusUnprocessableEntity},
		{"zero subtotal", http.MethodPost, "/api/invoices",
			`{"supplierId":"id-1","invoiceNumber":"X","date":"2024-03-01","subtotal":0,"vatRate":21}`, http.StatusUnprocessableEntity},
		{"rate over 100", http.MethodPost, "/api/invoices",
			`{"supplierId":"id-1","invoiceNumber":"X","date":"2024-03-01","subtotal":1,"vatRate":120}`, http.StatusUnprocessableEntity},
		{"NaN rate", http.MethodPost, "/api/invoices",
			`{"supplierId":"id-1","invoiceNumber":"X","date":"2024-03-01","subtotal":1,"vatRate":"NaN"}`, http.StatusUnprocessableEntity},
		{"missing date", http.MethodPost, "/api/invoices",
			`{"supplierId":"id-1","invoiceNumber":"X","subtotal":1,"vatRate":21}`, http.StatusUnprocessableEntity},
		{"bad status", http.MethodPost, "/api/invoices/id-9/status", `{"status":"lost"}`, http.StatusUnprocessableEntity},
		{"missing invoice", http.MethodGet, "/api/invoices/id-9", ``, http.StatusNotFound},
		{"missing supplier record", http.MethodPut, "/api/suppliers/id-9", `{"name":"A"}`, http.StatusNotFound},
		{"status filter", http.MethodGet, "/api/invoices?status=lost", ``, http.StatusUnprocessableEntity},
		{"unknown period", http.MethodGet, "/api/vat?period=decade", ``, http.StatusUnprocessableEntity},
		{"month 13", http.MethodGet, "/api/vat?period=month&year=2024&month=13", ``, http.StatusUnprocessableEntity},
		{"year not a number", http.MethodGet, "/api/vat?period=year&year=abc", ``, http.StatusUnprocessableEntity},
		{"inverted range", http.MethodGet, "/api/vat/export?period=range&from=2024-03-10&to=2024-03-01", ``, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.path, tt.body)
			expectStatus(t, rr, tt.want)
			body := decode[ErrorBody](t, rr)
			if body.Error == "" || body.RequestID == "" {
				t.Errorf("error body = %+v", body)
			}
		})
	}
}

func TestReportFormats(t *testing.T) {
	srv := newTestServer(t, Options{})
	do(t, srv, http.MethodPost, "/api/suppliers", `{"name":"Acme","paymentTerms":30}`)
	do(t, srv, http.MethodPost, "/api/invoices",
		`{"supplierId":"id-1","invoiceNumber":"A","date":"2024-03-01","subtotal":100,"vatRate":21,"status":"paid"}`)

	tests := []struct {
		path     string
		filename string
		heading  string
	}{
		{"/api/reports/suppliers", "supplier-performance-report-2024-03-20.txt", "Supplier Performance Report"},
		{"/api/reports/payments", "payment-analysis-report-2024-03-20.txt", "Payment Analysis Report"},
		{"/api/reports/financial", "financial-summary-report-2024-03-20.txt", "Financial Summary Report"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, tt.path, "")
			expectStatus(t, rr, http.StatusOK)
			if ct := rr.Header().Get("Content-Type"); ct != contentTypeJSON {
				t.Errorf("json Content-Type = %q", ct)
			}
			if !json.Valid(rr.Body.Bytes()) {
				t.Errorf("invalid JSON: %s", rr.Body.String())
			}

			rr = do(t, srv, http.MethodGet, tt.path+"?format=text", "")
			expectStatus(t, rr, http.StatusOK)
			if ct := rr.Header().Get("Content-Type"); ct != contentTypeText {
				t.Errorf("text Content-Type = %q", ct)
			}
			_, params, _ := mime.ParseMediaType(rr.Header().Get("Content-Disposition"))
			if params["filename"] != tt.filename {
				t.Errorf("filename = %q", params["filename"])
			}
			if !strings.HasPrefix(rr.Body.String(), tt.heading+"\n") {
				t.Errorf("body:\n%s", rr.Body.String())
			}
		})
	}

	rr := do(t, srv, http.MethodGet, "/api/reports/payments", "")
	if got := decode[map[string]any](t, rr)["totalPaid"]; got != 121.0 {
		t.Errorf("totalPaid = %v", got)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/api/suppliers", "")
	expectStatus(t, rr, http.StatusOK)
	if id := rr.Header().Get("X-Request-ID"); !strings.HasPrefix(id, "req_") {
		t.Errorf("generated request id = %q", id)
	}
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rr.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must only be sent over TLS")
	}

	rr = do(t, srv, http.MethodGet, "/api/suppliers", "", "X-Request-ID", "client-42")
	if id := rr.Header().Get("X-Request-ID"); id != "client-42" {
		t.Errorf("client request id not kept: %q", id)
	}
	rr = do(t, srv, http.MethodGet, "/api/suppliers", "", "X-Request-ID", "bad id\n")
	if id := rr.Header().Get("X-Request-ID"); id == "bad id\n" || id == "" {
		t.Errorf("invalid client request id echoed: %q", id)
	}

	do(t, srv, http.MethodGet, "/.env", "")
	if got := srv.detector.GetMetrics().SuspiciousRequests; got != 1 {
		t.Errorf("suspicious requests = %d", got)
	}
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		expectStatus(t, do(t, srv, http.MethodPost, "/api/suppliers", `{"name":"A"}`), http.StatusCreated)
	}
	rr := do(t, srv, http.MethodPost, "/api/suppliers", `{"name":"A"}`)
	expectStatus(t, rr, http.StatusTooManyRequests)
	if secs, err := strconv.Atoi(rr.Header().Get("Retry-After")); err != nil || secs < 1 || secs > 60 {
		t.Errorf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}
	expectStatus(t, do(t, srv, http.MethodGet, "/api/suppliers", ""), http.StatusOK)
	if got := srv.limiter.GetMetrics().TotalHits; got != 1 {
		t.Errorf("rate limit hits = %d", got)
	}
}

func TestTrustedProxies(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitPerMinute: 1, TrustedProxies: []string{"192.0.2.0/24"}})

	// httptest requests come from 192.0.2.1, so each forwarded client gets its own budget.
	for _, client := range []string{"203.0.113.7", "203.0.113.8"} {
		rr := do(t, srv, http.MethodPost, "/api/suppliers", `{"name":"A"}`, "X-Forwarded-For", client)
		expectStatus(t, rr, http.StatusCreated)
	}
	rr := do(t, srv, http.MethodPost, "/api/suppliers", `{"name":"A"}`, "X-Forwarded-For", "203.0.113.7")
	expectStatus(t, rr, http.StatusTooManyRequests)

	if _, err := NewServer(":0", nil, nil, applog.New(applog.Config{Output: io.Discard}), Options{TrustedProxies: []string{"nope"}}); err == nil {
		t.Error("expected error for invalid trusted proxy")
	}
}
