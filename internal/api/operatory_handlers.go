package api

import (
	"net/http"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/scheduling"
)

func (h *Handlers) ListOperatories(w http.ResponseWriter, r *http.Request) {
	ops, err := h.svc.ListOperatories(r.Context(), identity(r).ClinicID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, mapSlice(ops, toOperatoryResponse))
}

func (h *Handlers) CreateOperatory(w http.ResponseWriter, r *http.Request) {
	var req CreateOperatoryRequest
	if !decode(w, r, &req) {
		return
	}

	op, err := h.svc.CreateOperatory(r.Context(), scheduling.OperatoryInput{
		ClinicID:    identity(r).ClinicID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toOperatoryResponse(*op))
}

func (h *Handlers) GetOperatory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	op, err := h.svc.GetOperatory(r.Context(), identity(r).ClinicID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toOperatoryResponse(*op))
}

func (h *Handlers) UpdateOperatory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateOperatoryRequest
	if !decode(w, r, &req) {
		return
	}

	op, err := h.svc.UpdateOperatory(r.Context(), scheduling.OperatoryUpdate{
		ClinicID:    identity(r).ClinicID,
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toOperatoryResponse(*op))
}
