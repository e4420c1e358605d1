// Package worker keeps the spreadsheet export in step with the record store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bally/internal/aggregate"
	"bally/internal/amqp"
	"bally/internal/records"
	"bally/internal/services"
)

// Reports is the part of services.ReportService the worker needs.
type Reports interface {
	VAT(ctx context.Context, p aggregate.Period) (*services.VATReport, error)
	Invalidate()
	Now() time.Time
}

// Pusher is satisfied by *sheets.Exporter.
type Pusher interface {
	PushVATSummary(ctx context.Context, s aggregate.VATSummary) error
}

// ExportWorker recomputes the VAT summary of every month a record event
// touches and pushes it to the spreadsheet.
type ExportWorker struct {
	reports Reports
	pusher  Pusher
}

func NewExportWorker(reports Reports, pusher Pusher) *ExportWorker {
	return &ExportWorker{reports: reports, pusher: pusher}
}

// HandleRecordEvent is an amqp.Handler. Returning an error requeues the event.
func (w *ExportWorker) HandleRecordEvent(ctx context.Context, e *amqp.RecordEvent) error {
	if e.Kind != records.KindInvoice {
		// Supplier changes do not move VAT totals; cascaded invoice
		// deletions arrive as invoice events of their own.
		slog.DebugContext(ctx, "Ignoring record event", "kind", e.Kind, "id", e.ID, "type", e.Type)
		return nil
	}

	slog.InfoContext(ctx, "Processing record event",
		"kind", e.Kind,
		"id", e.ID,
		"type", e.Type,
		"timestamp", e.Timestamp)

	// Other processes write the store; anything cached here may be stale.
	w.reports.Invalidate()

	months := affectedMonths(e)
	if len(months) == 0 {
		return w.ExportCurrentMonth(ctx)
	}
	var errs []error
	for _, m := range months {
		if err := w.ExportMonth(ctx, m.Year(), m.Month()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExportMonth pushes the VAT summary of one calendar month.
func (w *ExportWorker) ExportMonth(ctx context.Context, year int, month time.Month) error {
	p := aggregate.MonthPeriod(year, month)
	r, err := w.reports.VAT(ctx, p)
	if err != nil {
		return fmt.Errorf("compute VAT for %s: %w", p.Label, err)
	}
	if err := w.pusher.PushVATSummary(ctx, r.Summary); err != nil {
		return fmt.Errorf("push VAT for %s: %w", p.Label, err)
	}
	slog.InfoContext(ctx, "Exported VAT summary",
		"period", p.Label,
		"count", r.Summary.InvoiceCount,
		"amount_cents", r.Summary.TotalVAT.Cents)
	return nil
}

// ExportCurrentMonth re-exports the month containing the reports clock.
// It recovers from events missed while the worker was down.
func (w *ExportWorker) ExportCurrentMonth(ctx context.Context) error {
	now := w.reports.Now().UTC()
	return w.ExportMonth(ctx, now.Year(), now.Month())
}

// Run re-exports the current month every interval until ctx is done.
func (w *ExportWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reports.Invalidate()
			if err := w.ExportCurrentMonth(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic export failed", "error", err)
			}
		}
	}
}

// affectedMonths returns the first day of each distinct month the event touches.
func affectedMonths(e *amqp.RecordEvent) []time.Time {
	var months []time.Time
	seen := make(map[time.Time]bool)
	for _, d := range e.AffectedDates() {
		m := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		if !seen[m] {
			seen[m] = true
			months = append(months, m)
		}
	}
	return months
}
