// Package export renders reports as plain-text downloads: a short header
// block followed by CSV sections.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"bally/internal/aggregate"
	"bally/internal/core"
	"bally/internal/services"
)

// Report titles, also used to build download filenames.
const (
	TitleVAT                 = "VAT"
	TitleSupplierPerformance = "Supplier Performance"
	TitlePaymentAnalysis     = "Payment Analysis"
	TitleFinancialSummary    = "Financial Summary"
)

// TimestampLayout formats the "Generated:" line.
const TimestampLayout = "2006-01-02 15:04:05 MST"

// SupplierNames resolves supplier ids for display.
type SupplierNames map[string]string

// Name returns the supplier name, or core.UnknownSupplierName for ids that
// are not known (e.g. orphaned invoices).
func (n SupplierNames) Name(id string) string {
	if name, ok := n[id]; ok && name != "" {
		return name
	}
	return core.UnknownSupplierName
}

// WriteVATReport writes the period summary, the per-rate breakdown in
// ascending rate order and the invoice list as CSV.
func WriteVATReport(w io.Writer, r *services.VATReport, names SupplierNames) error {
	bw := bufio.NewWriter(w)
	s := r.Summary

	fmt.Fprintln(bw, "VAT Report")
	fmt.Fprintf(bw, "Generated: %s\n", r.GeneratedAt.UTC().Format(TimestampLayout))
	fmt.Fprintf(bw, "Period: %s\n", s.Period)
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Summary:")
	fmt.Fprintf(bw, "Total Invoices: %d\n", s.InvoiceCount)
	fmt.Fprintf(bw, "Total Subtotal: %s\n", s.TotalSubtotal.FormatEuro())
	fmt.Fprintf(bw, "Total VAT: %s\n", s.TotalVAT.FormatEuro())
	fmt.Fprintf(bw, "Total Amount: %s\n", s.TotalAmount.FormatEuro())
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "VAT by Rate:")
	for _, rate := range s.Rates() {
		rt := s.VATByRate[rate]
		fmt.Fprintf(bw, "%s%%: %s (%d invoices, %s subtotal)\n",
			rate, rt.VAT.FormatEuro(), rt.Count, rt.Subtotal.FormatEuro())
	}
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Invoice Details:")

	cw := csv.NewWriter(bw)
	cw.Write([]string{"Invoice Number", "Date", "Supplier", "Subtotal", "VAT Rate", "VAT Amount", "Total"})
	for _, inv := range r.Invoices {
		cw.Write([]string{
			inv.InvoiceNumber,
			inv.Date.String(),
			names.Name(inv.SupplierID),
			inv.Subtotal.String(),
			inv.VATRate.String() + "%",
			inv.VATAmount.String(),
			inv.Total.String(),
		})
	}
	return flush(cw, bw)
}

// WriteSupplierPerformance writes one CSV row per supplier report.
func WriteSupplierPerformance(w io.Writer, reports []aggregate.SupplierReport, now time.Time) error {
	bw := bufio.NewWriter(w)
	writeHeader(bw, TitleSupplierPerformance, now)

	cw := csv.NewWriter(bw)
	cw.Write([]string{"Supplier", "Total Invoices", "Total Amount", "Average Invoice", "Last Invoice", "Payment Compliance"})
	for _, r := range reports {
		last := "N/A"
		if r.LastInvoiceDate != nil {
			last = r.LastInvoiceDate.String()
		}
		cw.Write([]string{
			r.Supplier.Name,
			strconv.Itoa(r.TotalInvoices),
			r.TotalAmount.FormatEuro(),
			r.AverageInvoiceValue.FormatEuro(),
			last,
			strconv.FormatFloat(r.PaymentTermsCompliance, 'f', 1, 64) + "%",
		})
	}
	return flush(cw, bw)
}

// WritePaymentAnalysis writes the payment totals and the monthly trend.
func WritePaymentAnalysis(w io.Writer, r aggregate.PaymentReport, now time.Time) error {
	bw := bufio.NewWriter(w)
	writeHeader(bw, TitlePaymentAnalysis, now)

	fmt.Fprintf(bw, "Total Paid: %s\n", r.TotalPaid.FormatEuro())
	fmt.Fprintf(bw, "Total Pending: %s\n", r.TotalPending.FormatEuro())
	fmt.Fprintf(bw, "Overdue Invoices: %d\n", r.TotalOverdue)
	fmt.Fprintf(bw, "Overdue Amount: %s\n", r.OverdueAmount.FormatEuro())
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Monthly Trends:")

	cw := csv.NewWriter(bw)
	cw.Write([]string{"Month", "Paid", "Pending"})
	for _, t := range r.PaymentTrends {
		cw.Write([]string{t.Month, t.Paid.FormatEuro(), t.Pending.FormatEuro()})
	}
	return flush(cw, bw)
}

// WriteFinancialSummary writes the overall totals, the top suppliers and the
// VAT split by rate.
func WriteFinancialSummary(w io.Writer, fs aggregate.FinancialSummary, now time.Time) error {
	bw := bufio.NewWriter(w)
	writeHeader(bw, TitleFinancialSummary, now)

	fmt.Fprintf(bw, "Total Revenue: %s\n", fs.TotalRevenue.FormatEuro())
	fmt.Fprintf(bw, "Total VAT: %s\n", fs.TotalVAT.FormatEuro())
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Top Suppliers:")
	for _, s := range fs.TopSuppliers {
		fmt.Fprintf(bw, "%s: %s\n", s.Supplier.Name, s.Amount.FormatEuro())
	}
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "VAT by Rate:")

	cw := csv.NewWriter(bw)
	cw.Write([]string{"Rate", "VAT", "Share"})
	for _, rs := range fs.VATByRate {
		cw.Write([]string{
			rs.Rate.String() + "%",
			rs.Amount.FormatEuro(),
			strconv.FormatFloat(rs.Percentage, 'f', 1, 64) + "%",
		})
	}
	return flush(cw, bw)
}

// Filename returns the download name of a report, e.g.
// "supplier-performance-report-2024-03-20.txt".
func Filename(title string, now time.Time) string {
	return slug(title) + "-report-" + now.UTC().Format(core.DateLayout) + ".txt"
}

// VATFilename names a VAT export after the period selector it was requested
// with, e.g. "vat-report-current-month-2024-03-20.txt".
func VATFilename(selector string, now time.Time) string {
	return "vat-report-" + slug(selector) + "-" + now.UTC().Format(core.DateLayout) + ".txt"
}

func writeHeader(w io.Writer, title string, now time.Time) {
	fmt.Fprintf(w, "%s Report\n", title)
	fmt.Fprintf(w, "Generated: %s\n", now.UTC().Format(TimestampLayout))
	fmt.Fprintln(w)
}

func flush(cw *csv.Writer, bw *bufio.Writer) error {
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return bw.Flush()
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}
