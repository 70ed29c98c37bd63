package api

import (
	"net/http"
	"time"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/auth"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/scheduling"
)

// AppointmentTypes lists the clinic's online-bookable types.
func (h *Handlers) AppointmentTypes(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	clinicID := q.uuidParam("clinicId", true)
	if err := q.err(); err != nil {
		h.fail(w, r, err)
		return
	}

	types, err := h.svc.AppointmentTypes(r.Context(), *clinicID, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, mapSlice(types, toAppointmentTypeResponse))
}

// AvailableSlots answers ?clinicId&appointmentTypeId&date[&providerId][&granularity].
// granularity is in minutes.
func (h *Handlers) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	clinicID := q.uuidParam("clinicId", true)
	typeID := q.uuidParam("appointmentTypeId", true)
	providerID := q.uuidParam("providerId", false)
	date := q.dateParam("date")
	granularity := q.intParam("granularity")
	if granularity < 0 {
		q.verr.Add("granularity", "must be positive")
	}
	if err := q.err(); err != nil {
		h.fail(w, r, err)
		return
	}

	slots, err := h.svc.AvailableSlots(r.Context(), scheduling.SlotQuery{
		ClinicID:          *clinicID,
		AppointmentTypeID: *typeID,
		Date:              date,
		ProviderID:        providerID,
		Granularity:       time.Duration(granularity) * time.Minute,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, mapSlice(slots, toSlotResponse))
}

// Book creates an appointment for any authenticated caller. Patients may
// only book for themselves.
func (h *Handlers) Book(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if !decode(w, r, &req) {
		return
	}

	caller := identity(r)
	breq, err := bookingRequest(req, caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if caller.Role == auth.RolePatient && breq.PatientID != caller.UserID {
		writeError(w, http.StatusForbidden, "forbidden", "patients may only book for themselves")
		return
	}

	appt, err := h.svc.CreateBooking(r.Context(), breq)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toAppointmentResponse(*appt))
}

func bookingRequest(req BookAppointmentRequest, caller auth.Identity) (scheduling.BookingRequest, error) {
	var verr scheduling.ValidationError
	out := scheduling.BookingRequest{
		ClinicID:          caller.ClinicID,
		PatientID:         req.Patient.resolve("patient", &verr),
		ProviderID:        req.Provider.resolve("provider", &verr),
		AppointmentTypeID: req.AppointmentType.resolve("appointmentType", &verr),
		OperatoryID:       resolveOptional(req.Operatory, "operatory", &verr),
		ScheduledStart:    req.ScheduledStart,
		Notes:             req.Notes,
		CreatedBy:         caller.UserID,
	}
	return out, verr.Err()
}
