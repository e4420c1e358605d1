package aggregate

import (
	"slices"
	"time"

	"bally/internal/core"
)

// RateTotals accumulates the invoices filed under one VAT rate.
type RateTotals struct {
	VAT      core.Money `json:"vat"`
	Subtotal core.Money `json:"subtotal"`
	Count    int        `json:"count"`
}

// VATSummary is the VAT position of a period.
type VATSummary struct {
	Period        string                   `json:"period"`
	Start         time.Time                `json:"start"`
	End           time.Time                `json:"end"`
	TotalVAT      core.Money               `json:"totalVAT"`
	TotalSubtotal core.Money               `json:"totalSubtotal"`
	TotalAmount   core.Money               `json:"totalAmount"`
	InvoiceCount  int                      `json:"invoiceCount"`
	VATByRate     map[core.Rate]RateTotals `json:"vatByRate"`
	Suppliers     []string                 `json:"suppliers"`
}

// Rates returns the rates present in the summary in ascending order.
func (s VATSummary) Rates() []core.Rate {
	rates := make([]core.Rate, 0, len(s.VATByRate))
	for r := range s.VATByRate {
		rates = append(rates, r)
	}
	slices.Sort(rates)
	return rates
}

// InPeriod returns the invoices dated within p, in input order.
func InPeriod(invoices []core.Invoice, p Period) []core.Invoice {
	var out []core.Invoice
	for _, inv := range invoices {
		if p.Contains(inv.Date.Time) {
			out = append(out, inv)
		}
	}
	return out
}

// CalculateVATForPeriod totals the invoices dated within p in a single pass.
// Suppliers lists distinct supplier ids in first-seen order.
func CalculateVATForPeriod(invoices []core.Invoice, p Period) VATSummary {
	sum := VATSummary{
		Period:    p.Label,
		Start:     p.Start,
		End:       p.End,
		VATByRate: make(map[core.Rate]RateTotals),
		Suppliers: []string{},
	}
	seen := make(map[string]struct{})

	for _, inv := range invoices {
		if !p.Contains(inv.Date.Time) {
			continue
		}
		sum.TotalVAT = sum.TotalVAT.Add(inv.VATAmount)
		sum.TotalSubtotal = sum.TotalSubtotal.Add(inv.Subtotal)
		sum.TotalAmount = sum.TotalAmount.Add(inv.Total)
		sum.InvoiceCount++

		if _, ok := seen[inv.SupplierID]; !ok {
			seen[inv.SupplierID] = struct{}{}
			sum.Suppliers = append(sum.Suppliers, inv.SupplierID)
		}

		rt := sum.VATByRate[inv.VATRate]
		rt.VAT = rt.VAT.Add(inv.VATAmount)
		rt.Subtotal = rt.Subtotal.Add(inv.Subtotal)
		rt.Count++
		sum.VATByRate[inv.VATRate] = rt
	}
	return sum
}

// MonthlyVAT summarises the invoices dated in the given calendar month.
func MonthlyVAT(invoices []core.Invoice, year int, month time.Month) VATSummary {
	return CalculateVATForPeriod(invoices, MonthPeriod(year, month))
}

// QuarterlyVAT summarises quarter 1-4 of year; Q1 is January to March.
func QuarterlyVAT(invoices []core.Invoice, year, quarter int) VATSummary {
	return CalculateVATForPeriod(invoices, QuarterPeriod(year, quarter))
}

// YearlyVAT summarises January 1st to December 31st of year.
func YearlyVAT(invoices []core.Invoice, year int) VATSummary {
	return CalculateVATForPeriod(invoices, YearPeriod(year))
}
