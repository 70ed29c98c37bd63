package scheduling

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrClinicNotFound          = errors.New("clinic not found")
	ErrPatientNotFound         = errors.New("patient not found")
	ErrProviderNotFound        = errors.New("provider not found")
	ErrAppointmentTypeNotFound = errors.New("appointment type not found")
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrOperatoryNotFound       = errors.New("operatory not found")
	ErrWaitlistEntryNotFound   = errors.New("waitlist entry not found")
)

var (
	ErrSlotUnavailable         = errors.New("requested time slot is no longer available")
	ErrOutsideWorkingHours     = errors.New("requested time is outside the provider's working hours")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrAppointmentModified     = errors.New("appointment was modified by another request")
	ErrWaitlistEntryModified   = errors.New("waitlist entry was modified by another request")
	ErrOperatoryExists         = errors.New("operatory with this name already exists")
)

// ValidationError carries per-field messages for malformed input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err returns nil when no field failed.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
