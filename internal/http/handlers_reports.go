package http

import (
	"bytes"
	"net/http"

	"bally/internal/export"
	applog "bally/internal/log"
	"bally/internal/services"
)

func (s *Server) vatReport(r *http.Request) (*services.VATReport, PeriodSelector, error) {
	sel, err := ParsePeriodSelector(r.URL.Query())
	if err != nil {
		return nil, sel, err
	}
	period, err := services.ResolvePeriod(sel.Kind, sel.Params, s.reports.Now())
	if err != nil {
		return nil, sel, err
	}
	report, err := s.reports.VAT(r.Context(), period)
	return report, sel, err
}

func (s *Server) handleVAT(w http.ResponseWriter, r *http.Request) {
	report, _, err := s.vatReport(r)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	NewResponse().JSON(report).Write(w)
}

func (s *Server) handleVATExport(w http.ResponseWriter, r *http.Request) {
	report, sel, err := s.vatReport(r)
	if err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteVATReport(&buf, report, report.SupplierNames); err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}
	NewResponse().
		Attachment(export.VATFilename(sel.Name(), s.reports.Now())).
		Text(buf.Bytes()).
		Write(w)
}

func (s *Server) handleSupplierReport(w http.ResponseWriter, r *http.Request) {
	reports, err := s.reports.SupplierPerformance(r.Context())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	if !wantsText(r) {
		NewResponse().JSON(reports).Write(w)
		return
	}
	now := s.reports.Now()
	s.writeText(w, r, export.TitleSupplierPerformance, func(buf *bytes.Buffer) error {
		return export.WriteSupplierPerformance(buf, reports, now)
	})
}

func (s *Server) handlePaymentReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.PaymentStatus(r.Context())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	if !wantsText(r) {
		NewResponse().JSON(report).Write(w)
		return
	}
	now := s.reports.Now()
	s.writeText(w, r, export.TitlePaymentAnalysis, func(buf *bytes.Buffer) error {
		return export.WritePaymentAnalysis(buf, report, now)
	})
}

func (s *Server) handleFinancialReport(w http.ResponseWriter, r *http.Request) {
	summary, err := s.reports.Financial(r.Context())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	if !wantsText(r) {
		NewResponse().JSON(summary).Write(w)
		return
	}
	now := s.reports.Now()
	s.writeText(w, r, export.TitleFinancialSummary, func(buf *bytes.Buffer) error {
		return export.WriteFinancialSummary(buf, summary, now)
	})
}

func (s *Server) writeText(w http.ResponseWriter, r *http.Request, title string, write func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}
	NewResponse().
		Attachment(export.Filename(title, s.reports.Now())).
		Text(buf.Bytes()).
		Write(w)
}
