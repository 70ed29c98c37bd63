package api

import (
	"net/http"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/scheduling"
)

func (h *Handlers) ListWaitlist(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := scheduling.WaitlistFilter{
		ClinicID:   identity(r).ClinicID,
		PatientID:  q.uuidParam("patientId", false),
		ProviderID: q.uuidParam("providerId", false),
		Limit:      q.intParam("limit"),
		Offset:     q.intParam("offset"),
	}
	if raw := q.get("status"); raw != "" {
		st := scheduling.WaitlistStatus(raw)
		f.Status = &st
	}
	if raw := q.get("priority"); raw != "" {
		p := scheduling.Priority(raw)
		f.Priority = &p
	}
	if err := q.err(); err != nil {
		h.fail(w, r, err)
		return
	}

	entries, err := h.svc.ListWaitlist(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ListResponse[WaitlistEntryResponse]{
		Items:  mapSlice(entries, toWaitlistEntryResponse),
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

func (h *Handlers) CreateWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateWaitlistRequest
	if !decode(w, r, &req) {
		return
	}

	caller := identity(r)
	var verr scheduling.ValidationError
	wreq := scheduling.WaitlistRequest{
		ClinicID:          caller.ClinicID,
		PatientID:         req.Patient.resolve("patient", &verr),
		ProviderID:        resolveOptional(req.Provider, "provider", &verr),
		AppointmentTypeID: req.AppointmentType.resolve("appointmentType", &verr),
		PreferredDates:    req.PreferredDates,
		PreferredTimes:    req.PreferredTimes,
		Priority:          scheduling.Priority(req.Priority),
		Notes:             req.Notes,
		ExpiresAt:         req.ExpiresAt,
		CreatedBy:         caller.UserID,
	}
	if err := verr.Err(); err != nil {
		h.fail(w, r, err)
		return
	}

	entry, err := h.svc.CreateWaitlistEntry(r.Context(), wreq)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toWaitlistEntryResponse(*entry))
}

func (h *Handlers) GetWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	entry, err := h.svc.GetWaitlistEntry(r.Context(), identity(r).ClinicID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toWaitlistEntryResponse(*entry))
}

func (h *Handlers) UpdateWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateWaitlistRequest
	if !decode(w, r, &req) {
		return
	}

	caller := identity(r)
	u := scheduling.WaitlistUpdate{
		ClinicID:       caller.ClinicID,
		ID:             id,
		Notes:          req.Notes,
		PreferredDates: req.PreferredDates,
		PreferredTimes: req.PreferredTimes,
		ExpiresAt:      req.ExpiresAt,
		ActorID:        caller.UserID,
	}
	if req.Priority != nil {
		p := scheduling.Priority(*req.Priority)
		u.Priority = &p
	}
	if req.Status != nil {
		st := scheduling.WaitlistStatus(*req.Status)
		u.Status = &st
	}

	entry, err := h.svc.UpdateWaitlistEntry(r.Context(), u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toWaitlistEntryResponse(*entry))
}

// WaitlistMatches lists candidate slots for an entry; ?limit caps them.
func (h *Handlers) WaitlistMatches(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := newQuery(r)
	limit := q.intParam("limit")
	if err := q.err(); err != nil {
		h.fail(w, r, err)
		return
	}

	slots, err := h.svc.MatchWaitlistEntry(r.Context(), identity(r).ClinicID, id, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, mapSlice(slots, toSlotResponse))
}

func (h *Handlers) PromoteWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req PromoteWaitlistRequest
	if !decode(w, r, &req) {
		return
	}

	caller := identity(r)
	var verr scheduling.ValidationError
	preq := scheduling.PromoteRequest{
		ClinicID:       caller.ClinicID,
		EntryID:        id,
		ProviderID:     resolveOptional(req.Provider, "provider", &verr),
		OperatoryID:    resolveOptional(req.Operatory, "operatory", &verr),
		ScheduledStart: req.ScheduledStart,
		ActorID:        caller.UserID,
	}
	if err := verr.Err(); err != nil {
		h.fail(w, r, err)
		return
	}

	appt, entry, err := h.svc.PromoteWaitlistEntry(r.Context(), preq)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, PromoteWaitlistResponse{
		Appointment: toAppointmentResponse(*appt),
		Entry:       toWaitlistEntryResponse(*entry),
	})
}
