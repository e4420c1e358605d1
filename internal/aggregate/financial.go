package aggregate

import (
	"cmp"
	"slices"
	"time"

	"bally/internal/core"
)

const (
	financialTrendMonths = 12
	topSupplierCount     = 5
)

type (
	// MonthlyFinancials is one month of the financial trend series.
	MonthlyFinancials struct {
		Month    string     `json:"month"` // e.g. "Jan"
		Revenue  core.Money `json:"revenue"`
		VAT      core.Money `json:"vat"`
		Invoices int        `json:"invoices"`
	}

	SupplierAmount struct {
		Supplier core.Supplier `json:"supplier"`
		Amount   core.Money    `json:"amount"`
	}

	// RateShare is the VAT collected under one rate and its share of total VAT.
	RateShare struct {
		Rate       core.Rate  `json:"rate"`
		Amount     core.Money `json:"amount"`
		Percentage float64    `json:"percentage"`
	}

	FinancialSummary struct {
		TotalRevenue  core.Money          `json:"totalRevenue"`
		TotalVAT      core.Money          `json:"totalVAT"`
		MonthlyTrends []MonthlyFinancials `json:"monthlyTrends"`
		TopSuppliers  []SupplierAmount    `json:"topSuppliers"`
		VATByRate     []RateShare         `json:"vatByRate"`
	}
)

// SummarizeFinancials builds revenue and VAT totals, the trailing
// twelve-month series ending with now's month, the five suppliers with the
// highest invoice totals and the VAT split by rate (ascending).
//
// Supplier ranking is stable: ties keep the order of suppliers.
func SummarizeFinancials(invoices []core.Invoice, suppliers []core.Supplier, now time.Time) FinancialSummary {
	var fs FinancialSummary
	bySupplier := make(map[string]core.Money)
	byRate := make(map[core.Rate]core.Money)

	for _, inv := range invoices {
		fs.TotalRevenue = fs.TotalRevenue.Add(inv.Total)
		fs.TotalVAT = fs.TotalVAT.Add(inv.VATAmount)
		bySupplier[inv.SupplierID] = bySupplier[inv.SupplierID].Add(inv.Total)
		byRate[inv.VATRate] = byRate[inv.VATRate].Add(inv.VATAmount)
	}

	months := trailingMonths(now, financialTrendMonths)
	fs.MonthlyTrends = make([]MonthlyFinancials, len(months))
	for i, m := range months {
		mf := MonthlyFinancials{Month: m.Format("Jan")}
		for _, inv := range invoices {
			if sameMonth(inv.Date, m) {
				mf.Revenue = mf.Revenue.Add(inv.Total)
				mf.VAT = mf.VAT.Add(inv.VATAmount)
				mf.Invoices++
			}
		}
		fs.MonthlyTrends[i] = mf
	}

	ranked := make([]SupplierAmount, len(suppliers))
	for i, s := range suppliers {
		ranked[i] = SupplierAmount{Supplier: s, Amount: bySupplier[s.ID]}
	}
	slices.SortStableFunc(ranked, func(a, b SupplierAmount) int {
		return cmp.Compare(b.Amount.Cents, a.Amount.Cents)
	})
	fs.TopSuppliers = ranked[:min(topSupplierCount, len(ranked))]

	fs.VATByRate = make([]RateShare, 0, len(byRate))
	for rate, amount := range byRate {
		share := RateShare{Rate: rate, Amount: amount}
		if fs.TotalVAT.Cents > 0 {
			share.Percentage = float64(amount.Cents) / float64(fs.TotalVAT.Cents) * 100
		}
		fs.VATByRate = append(fs.VATByRate, share)
	}
	slices.SortFunc(fs.VATByRate, func(a, b RateShare) int {
		return cmp.Compare(a.Rate, b.Rate)
	})
	return fs
}
