package aggregate

import (
	"time"

	"bally/internal/core"
)

// SupplierReport is the performance line of one supplier.
type SupplierReport struct {
	Supplier            core.Supplier `json:"supplier"`
	TotalInvoices       int           `json:"totalInvoices"`
	TotalAmount         core.Money    `json:"totalAmount"`
	TotalVAT            core.Money    `json:"totalVAT"`
	AverageInvoiceValue core.Money    `json:"averageInvoiceValue"`
	LastInvoiceDate     *core.Date    `json:"lastInvoiceDate"`

	// PaymentTermsCompliance is the percentage of paid invoices whose due date
	// is not a full day behind ComplianceEvaluatedAt. It measures "not overdue
	// as of now", not "paid before the due date": invoices carry no payment date.
	PaymentTermsCompliance float64   `json:"paymentTermsCompliance"`
	ComplianceEvaluatedAt  time.Time `json:"complianceEvaluatedAt"`
}

type supplierTally struct {
	count      int
	amount     core.Money
	vat        core.Money
	last       core.Date
	paid       int
	paidOnTime int
}

// SupplierReports returns one report per supplier, in input order. Invoices
// referencing unknown suppliers are ignored.
func SupplierReports(suppliers []core.Supplier, invoices []core.Invoice, now time.Time) []SupplierReport {
	tallies := make(map[string]*supplierTally, len(suppliers))
	for _, s := range suppliers {
		tallies[s.ID] = &supplierTally{}
	}

	for _, inv := range invoices {
		t, ok := tallies[inv.SupplierID]
		if !ok {
			continue
		}
		t.count++
		t.amount = t.amount.Add(inv.Total)
		t.vat = t.vat.Add(inv.VATAmount)
		if inv.Date.After(t.last.Time) {
			t.last = inv.Date
		}
		if inv.Status == core.StatusPaid {
			t.paid++
			if paidOnTime(inv, now) {
				t.paidOnTime++
			}
		}
	}

	out := make([]SupplierReport, 0, len(suppliers))
	for _, s := range suppliers {
		t := tallies[s.ID]
		r := SupplierReport{
			Supplier:              s,
			TotalInvoices:         t.count,
			TotalAmount:           t.amount,
			TotalVAT:              t.vat,
			AverageInvoiceValue:   t.amount.DivRound(t.count),
			ComplianceEvaluatedAt: now,
		}
		if t.count > 0 {
			last := t.last
			r.LastInvoiceDate = &last
		}
		if t.paid > 0 {
			r.PaymentTermsCompliance = float64(t.paidOnTime) / float64(t.paid) * 100
		}
		out = append(out, r)
	}
	return out
}

// paidOnTime counts whole days elapsed since the due date; zero or fewer is on time.
func paidOnTime(inv core.Invoice, now time.Time) bool {
	return now.Sub(inv.DueDate.Time) < 24*time.Hour
}
