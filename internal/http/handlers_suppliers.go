package http

import (
	"net/http"

	applog "bally/internal/log"
	"bally/internal/records"
	"bally/internal/services"
)

func (s *Server) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := s.records.ListSuppliers(r.Context())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	NewResponse().JSON(suppliers).Write(w)
}

func (s *Server) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	sup, err := s.records.GetSupplier(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	NewResponse().JSON(sup).Write(w)
}

func (s *Server) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var in services.SupplierInput
	if err := DecodeJSON(w, r, &in); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	sup, err := s.records.CreateSupplier(r.Context(), in)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	s.events.LogRecordChanged(r.Context(), applog.OpCreate, records.KindSupplier, sup.ID)
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/suppliers/"+sup.ID).
		JSON(sup).
		Write(w)
}

func (s *Server) handleUpdateSupplier(w http.ResponseWriter, r *http.Request) {
	var in services.SupplierInput
	if err := DecodeJSON(w, r, &in); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	sup, err := s.records.UpdateSupplier(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	s.events.LogRecordChanged(r.Context(), applog.OpUpdate, records.KindSupplier, sup.ID)
	NewResponse().JSON(sup).Write(w)
}

func (s *Server) handleDeleteSupplier(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.records.DeleteSupplier(r.Context(), id); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	s.events.LogRecordChanged(r.Context(), applog.OpDelete, records.KindSupplier, id)
	NewResponse().Status(http.StatusNoContent).Write(w)
}
