package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"bally/internal/export"
	"bally/internal/services"
)

func newVATCmd(s *session) *cobra.Command {
	var (
		kind   string
		params services.PeriodParams
		format string
	)

	cmd := &cobra.Command{
		Use:   "vat",
		Short: "Print the VAT report of a period",
		Long: `Print the VAT report of a month, quarter, year or date range.

Missing year, month or quarter values default to today's.`,
		Example: `  # Current month
  ballyctl vat

  # First quarter of 2024 as JSON
  ballyctl vat --period quarter --year 2024 --quarter 1 --format json

  # Arbitrary range, both days included
  ballyctl vat --period range --from 2024-01-15 --to 2024-02-14`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(format); err != nil {
				return err
			}
			period, err := services.ResolvePeriod(kind, params, s.app.Reports.Now())
			if err != nil {
				return err
			}
			report, err := s.app.Reports.VAT(cmd.Context(), period)
			if err != nil {
				return err
			}
			s.logger.Debug("VAT report computed", "period", period.Label, "count", report.Summary.InvoiceCount)
			return writeReport(cmd.OutOrStdout(), format, report, func(w io.Writer) error {
				return export.WriteVATReport(w, report, report.SupplierNames)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&kind, "period", services.PeriodCurrentMonth, "current-month, month, quarter, year or range")
	flags.IntVar(&params.Year, "year", 0, "calendar year")
	flags.IntVar(&params.Month, "month", 0, "month number, 1-12")
	flags.IntVar(&params.Quarter, "quarter", 0, "quarter number, 1-4")
	flags.StringVar(&params.From, "from", "", "first day of a range (YYYY-MM-DD)")
	flags.StringVar(&params.To, "to", "", "last day of a range (YYYY-MM-DD)")
	flags.StringVar(&format, "format", "text", "output format: text or json")
	return cmd
}

func writeReport(w io.Writer, format string, v any, text func(io.Writer) error) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}
