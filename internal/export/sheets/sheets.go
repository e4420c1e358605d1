// Package sheets publishes VAT summaries to a Google spreadsheet, one row
// per period in a year-prefixed sheet (e.g. "2024 VAT").
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"bally/internal/aggregate"
)

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID   string
	SheetName       string // base name, the year is prefixed
	CredentialsFile string
	CredentialsJSON string
}

// Header is written to a sheet when it is created. Rate blocks follow the
// fixed columns: rate, VAT, subtotal, invoices.
var Header = []any{"Period", "Start", "End", "Invoices", "Subtotal", "VAT", "Total", "Suppliers", "Updated"}

var ErrNotConfigured = errors.New("sheets: spreadsheet id not configured")

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	now           func() time.Time

	mu    sync.Mutex
	known map[string]bool // sheets known to exist
}

// New creates an exporter authenticated with a service account. Inline JSON
// credentials win over the file; with neither, Application Default
// Credentials are used.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, ErrNotConfigured
	}

	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		opts = append(opts, goption.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Reading credentials from file", "path", cfg.CredentialsFile)
		opts = append(opts, goption.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, goption.WithScopes(gsheet.SpreadsheetsScope))

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetBase string) *Exporter {
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = "VAT"
	}
	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
		now:           time.Now,
		known:         make(map[string]bool),
	}
}

// PushVATSummary writes the summary to the sheet of its start year,
// replacing the row that already holds the same period.
func (e *Exporter) PushVATSummary(ctx context.Context, s aggregate.VATSummary) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sheet := yearPrefixedName(e.sheetBase, s.Start.Year())
	if err := e.ensureSheet(ctx, sheet); err != nil {
		return err
	}

	resp, err := e.svc.Spreadsheets.Values.Get(e.spreadsheetID, a1(sheet, "A:A")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", sheet, err)
	}
	row, exists := findRow(resp.Values, s.Period)

	if exists {
		rng := a1(sheet, fmt.Sprintf("A%d:ZZ%d", row, row))
		if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
			return fmt.Errorf("clear %s: %w", rng, err)
		}
	}

	rng := a1(sheet, fmt.Sprintf("A%d", row))
	vr := &gsheet.ValueRange{Values: [][]any{SummaryRow(s, e.now())}}
	_, err = e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", rng, err)
	}

	slog.DebugContext(ctx, "VAT summary exported",
		"sheet", sheet,
		"row", row,
		"period", s.Period,
		"replaced", exists)
	return nil
}

// ensureSheet creates the sheet with its header row when it does not exist.
func (e *Exporter) ensureSheet(ctx context.Context, title string) error {
	if e.known[title] {
		return nil
	}
	ss, err := e.svc.Spreadsheets.Get(e.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			e.known[sh.Properties.Title] = true
		}
	}
	if e.known[title] {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("create sheet %s: %w", title, err)
	}
	vr := &gsheet.ValueRange{Values: [][]any{Header}}
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, a1(title, "A1"), vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write header %s: %w", title, err)
	}
	slog.InfoContext(ctx, "Created export sheet", "sheet", title)
	e.known[title] = true
	return nil
}

// SummaryRow lays out one period. Amounts are euros.
func SummaryRow(s aggregate.VATSummary, updated time.Time) []any {
	row := []any{
		s.Period,
		s.Start.Format("2006-01-02"),
		s.End.Format("2006-01-02"),
		s.InvoiceCount,
		s.TotalSubtotal.Euros(),
		s.TotalVAT.Euros(),
		s.TotalAmount.Euros(),
		len(s.Suppliers),
		updated.UTC().Format(time.RFC3339),
	}
	for _, rate := range s.Rates() {
		rt := s.VATByRate[rate]
		row = append(row, rate.String()+"%", rt.VAT.Euros(), rt.Subtotal.Euros(), rt.Count)
	}
	return row
}

// findRow returns the 1-based row holding label in column A, or the first
// free row.
func findRow(values [][]any, label string) (int, bool) {
	for i, r := range values {
		if len(r) > 0 && strings.TrimSpace(fmt.Sprint(r[0])) == label {
			return i + 1, true
		}
	}
	return len(values) + 1, false
}

func a1(sheet, rng string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + rng
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
