package http

import (
	"net/http"
	"time"

	"bally/internal/core"
	applog "bally/internal/log"
	"bally/internal/records"
	"bally/internal/services"
)

// invoiceView adds the status an invoice has today, which differs from the
// stored one once an unpaid invoice passes its due date.
type invoiceView struct {
	core.Invoice
	EffectiveStatus core.Status `json:"effectiveStatus"`
}

type statusRequest struct {
	Status core.Status `json:"status"`
}

func viewOf(inv core.Invoice, now time.Time) invoiceView {
	return invoiceView{Invoice: inv, EffectiveStatus: inv.EffectiveStatus(now)}
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseInvoiceFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	invoices, err := s.records.ListInvoices(r.Context(), filter)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	now := s.reports.Now()
	views := make([]invoiceView, 0, len(invoices))
	for _, inv := range invoices {
		views = append(views, viewOf(inv, now))
	}
	NewResponse().JSON(views).Write(w)
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.records.GetInvoice(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	NewResponse().JSON(viewOf(inv, s.reports.Now())).Write(w)
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var in services.InvoiceInput
	if err := DecodeJSON(w, r, &in); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	inv, err := s.records.CreateInvoice(r.Context(), in)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	s.events.LogRecordChanged(r.Context(), applog.OpCreate, records.KindInvoice, inv.ID)
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/invoices/"+inv.ID).
		JSON(viewOf(inv, s.reports.Now())).
		Write(w)
}

func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var in services.InvoiceInput
	if err := DecodeJSON(w, r, &in); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	inv, err := s.records.UpdateInvoice(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	s.events.LogRecordChanged(r.Context(), applog.OpUpdate, records.KindInvoice, inv.ID)
	NewResponse().JSON(viewOf(inv, s.reports.Now())).Write(w)
}

func (s *Server) handleSetInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	inv, err := s.records.SetInvoiceStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	s.events.LogRecordChanged(r.Context(), applog.OpUpdate, records.KindInvoice, inv.ID)
	NewResponse().JSON(viewOf(inv, s.reports.Now())).Write(w)
}

func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.records.DeleteInvoice(r.Context(), id); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	s.events.LogRecordChanged(r.Context(), applog.OpDelete, records.KindInvoice, id)
	NewResponse().Status(http.StatusNoContent).Write(w)
}
