package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/auth"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/scheduling"
)

// Envelope is the body shape of every response.
type Envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
	Code    string            `json:"code,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Envelope{Success: false, Code: code, Message: message})
}

func writeValidation(w http.ResponseWriter, verr *scheduling.ValidationError) {
	writeJSON(w, http.StatusBadRequest, Envelope{
		Success: false,
		Code:    "validation_failed",
		Message: "request validation failed",
		Errors:  verr.Fields,
	})
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{scheduling.ErrClinicNotFound, http.StatusNotFound, "clinic_not_found"},
	{scheduling.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
	{scheduling.ErrProviderNotFound, http.StatusNotFound, "provider_not_found"},
	{scheduling.ErrAppointmentTypeNotFound, http.StatusNotFound, "appointment_type_not_found"},
	{scheduling.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
	{scheduling.ErrOperatoryNotFound, http.StatusNotFound, "operatory_not_found"},
	{scheduling.ErrWaitlistEntryNotFound, http.StatusNotFound, "waitlist_entry_not_found"},

	{scheduling.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
	{scheduling.ErrOutsideWorkingHours, http.StatusConflict, "outside_working_hours"},
	{scheduling.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
	{scheduling.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
	{scheduling.ErrAppointmentModified, http.StatusConflict, "appointment_modified"},
	{scheduling.ErrWaitlistEntryModified, http.StatusConflict, "waitlist_entry_modified"},
	{scheduling.ErrOperatoryExists, http.StatusConflict, "operatory_exists"},

	{auth.ErrMissingToken, http.StatusUnauthorized, "unauthorized"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
}

// writeServiceError maps a service error onto its status and code.
// Unrecognised errors are logged and reported as 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	var verr *scheduling.ValidationError
	if errors.As(err, &verr) {
		writeValidation(w, verr)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, m.target.Error())
			return
		}
	}

	logger.Error().
		Err(err).
		Str("request_id", GetRequestID(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
