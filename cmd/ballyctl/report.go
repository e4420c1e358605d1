package main

import (
	"io"

	"github.com/spf13/cobra"

	"bally/internal/export"
)

func newReportCmd(s *session) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print business reports over all invoices",
	}
	cmd.PersistentFlags().StringVar(&format, "format", "text", "output format: text or json")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "suppliers",
			Short: "Supplier performance: invoice counts, amounts and payment compliance",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := validFormat(format); err != nil {
					return err
				}
				reports, err := s.app.Reports.SupplierPerformance(cmd.Context())
				if err != nil {
					return err
				}
				now := s.app.Reports.Now()
				return writeReport(cmd.OutOrStdout(), format, reports, func(w io.Writer) error {
					return export.WriteSupplierPerformance(w, reports, now)
				})
			},
		},
		&cobra.Command{
			Use:   "payments",
			Short: "Paid, pending and overdue amounts with a six month trend",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := validFormat(format); err != nil {
					return err
				}
				report, err := s.app.Reports.PaymentStatus(cmd.Context())
				if err != nil {
					return err
				}
				now := s.app.Reports.Now()
				return writeReport(cmd.OutOrStdout(), format, report, func(w io.Writer) error {
					return export.WritePaymentAnalysis(w, report, now)
				})
			},
		},
		&cobra.Command{
			Use:   "financial",
			Short: "Revenue, VAT, monthly trends, top suppliers and VAT by rate",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := validFormat(format); err != nil {
					return err
				}
				summary, err := s.app.Reports.Financial(cmd.Context())
				if err != nil {
					return err
				}
				now := s.app.Reports.Now()
				return writeReport(cmd.OutOrStdout(), format, summary, func(w io.Writer) error {
					return export.WriteFinancialSummary(w, summary, now)
				})
			},
		},
	)
	return cmd
}
