package api

import (
	"net/http"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/scheduling"
)

func (h *Handlers) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := scheduling.AppointmentFilter{
		ClinicID:   identity(r).ClinicID,
		ProviderID: q.uuidParam("providerId", false),
		PatientID:  q.uuidParam("patientId", false),
		From:       q.timeParam("from"),
		To:         q.timeParam("to"),
		Limit:      q.intParam("limit"),
		Offset:     q.intParam("offset"),
	}
	if raw := q.get("status"); raw != "" {
		st := scheduling.Status(raw)
		if !st.Valid() {
			q.verr.Add("status", "unknown appointment status")
		}
		f.Status = &st
	}
	if err := q.err(); err != nil {
		h.fail(w, r, err)
		return
	}

	appts, err := h.svc.ListAppointments(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ListResponse[AppointmentResponse]{
		Items:  mapSlice(appts, toAppointmentResponse),
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

func (h *Handlers) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if !decode(w, r, &req) {
		return
	}

	breq, err := bookingRequest(req, identity(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	appt, err := h.svc.CreateBooking(r.Context(), breq)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toAppointmentResponse(*appt))
}

func (h *Handlers) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), identity(r).ClinicID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *Handlers) UpdateAppointmentNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateNotesRequest
	if !decode(w, r, &req) {
		return
	}

	caller := identity(r)
	appt, err := h.svc.UpdateNotes(r.Context(), caller.ClinicID, id, req.Notes, caller.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *Handlers) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !decode(w, r, &req) {
		return
	}

	caller := identity(r)
	appt, err := h.svc.UpdateStatus(r.Context(), scheduling.StatusChange{
		ClinicID:           caller.ClinicID,
		AppointmentID:      id,
		Status:             scheduling.Status(req.Status),
		CancellationReason: req.CancellationReason,
		ActorID:            caller.UserID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *Handlers) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req RescheduleAppointmentRequest
	if !decode(w, r, &req) {
		return
	}

	caller := identity(r)
	appt, err := h.svc.Reschedule(r.Context(), scheduling.RescheduleRequest{
		ClinicID:      caller.ClinicID,
		AppointmentID: id,
		NewStart:      req.ScheduledStart,
		Reason:        req.Reason,
		RescheduleBy:  caller.UserID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toAppointmentResponse(*appt))
}
