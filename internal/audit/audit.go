package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	EventAppointmentBooked        = "APPOINTMENT_BOOKED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentRescheduled   = "APPOINTMENT_RESCHEDULED"
	EventAppointmentUpdated       = "APPOINTMENT_UPDATED"
	EventWaitlistCreated          = "WAITLIST_CREATED"
	EventWaitlistUpdated          = "WAITLIST_UPDATED"
	EventWaitlistPromoted         = "WAITLIST_PROMOTED"
	EventWaitlistExpired          = "WAITLIST_EXPIRED"
)

type Event struct {
	Type          string         `json:"type"`
	ClinicID      uuid.UUID      `json:"clinicId"`
	AppointmentID *uuid.UUID     `json:"appointmentId,omitempty"`
	ProviderID    *uuid.UUID     `json:"providerId,omitempty"`
	ActorID       *uuid.UUID     `json:"actorId,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Recorder receives state-change events. Callers treat failures as
// non-fatal.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

type multi []Recorder

// Multi fans an event out to every recorder and joins their errors.
func Multi(recorders ...Recorder) Recorder {
	var m multi
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multi) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
