package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Component: ComponentReports, Output: &buf})

	logger.DebugContext(context.Background(), "computed", FieldPeriod, "March 2024")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry[FieldComponent] != ComponentReports || entry[FieldPeriod] != "March 2024" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestRequestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "text", Output: &buf})

	var got *Logger
	h := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req-42" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
			got.Info("inside handler")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if got == nil {
		t.Fatal("handler did not run")
	}
	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Errorf("request id missing from %q", buf.String())
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Format: "text", Output: &buf}))
	req := httptest.NewRequest(http.MethodGet, "/api/vat", nil)

	sl.LogHTTPEnd(context.Background(), req, 503, 12, "127.0.0.1")
	sl.LogError(context.Background(), "push failed", errors.New("boom"), ComponentSheets, OpExport, nil)

	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "status_code=503") {
		t.Errorf("unexpected http log: %q", out)
	}
	if !strings.Contains(out, "component=sheets") || !strings.Contains(out, "error=boom") {
		t.Errorf("unexpected error log: %q", out)
	}
}
