package aggregate

import (
	"time"

	"bally/internal/core"
)

const paymentTrendMonths = 6

// PaymentTrend holds the paid and unpaid totals of invoices dated in one month.
type PaymentTrend struct {
	Month   string     `json:"month"` // e.g. "Jan 24"
	Paid    core.Money `json:"paid"`
	Pending core.Money `json:"pending"`
}

// PaymentReport summarises payment status across all invoices.
type PaymentReport struct {
	TotalPaid     core.Money     `json:"totalPaid"`
	TotalPending  core.Money     `json:"totalPending"`
	TotalOverdue  int            `json:"totalOverdue"`
	OverdueAmount core.Money     `json:"overdueAmount"`
	PaymentTrends []PaymentTrend `json:"paymentTrends"`
}

// PaymentStatusReport totals paid, pending (pending or approved) and overdue
// invoices and builds the trailing six-month series ending with now's month.
// Overdue invoices also count towards their persisted status bucket.
func PaymentStatusReport(invoices []core.Invoice, now time.Time) PaymentReport {
	var r PaymentReport
	for _, inv := range invoices {
		switch inv.Status {
		case core.StatusPaid:
			r.TotalPaid = r.TotalPaid.Add(inv.Total)
		case core.StatusPending, core.StatusApproved:
			r.TotalPending = r.TotalPending.Add(inv.Total)
		}
		if inv.IsOverdue(now) {
			r.TotalOverdue++
			r.OverdueAmount = r.OverdueAmount.Add(inv.Total)
		}
	}

	months := trailingMonths(now, paymentTrendMonths)
	r.PaymentTrends = make([]PaymentTrend, len(months))
	for i, m := range months {
		trend := PaymentTrend{Month: m.Format("Jan 06")}
		for _, inv := range invoices {
			if !sameMonth(inv.Date, m) {
				continue
			}
			if inv.Status == core.StatusPaid {
				trend.Paid = trend.Paid.Add(inv.Total)
			} else {
				trend.Pending = trend.Pending.Add(inv.Total)
			}
		}
		r.PaymentTrends[i] = trend
	}
	return r
}
