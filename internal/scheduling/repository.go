package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type AppointmentFilter struct {
	ClinicID   uuid.UUID
	ProviderID *uuid.UUID
	PatientID  *uuid.UUID
	Status     *Status
	From       *time.Time // scheduled_start >= From
	To         *time.Time // scheduled_start < To
	Limit      int
	Offset     int
}

// OccupancyFilter selects slot-holding appointments overlapping [From, To)
// for one provider or one operatory.
type OccupancyFilter struct {
	ClinicID    uuid.UUID
	ProviderID  *uuid.UUID
	OperatoryID *uuid.UUID
	From        time.Time
	To          time.Time
}

type WaitlistFilter struct {
	ClinicID   uuid.UUID
	PatientID  *uuid.UUID
	ProviderID *uuid.UUID
	Status     *WaitlistStatus
	Priority   *Priority
	Limit      int
	Offset     int
}

// Repository contains all storage interactions needed by the service.
// Lookups are clinic scoped: a record outside clinicID is not found.
type Repository interface {
	GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetPatient(ctx context.Context, clinicID, id uuid.UUID) (*Patient, error)
	GetProvider(ctx context.Context, clinicID, id uuid.UUID) (*Provider, error)
	ListProviders(ctx context.Context, clinicID uuid.UUID) ([]Provider, error)
	GetAppointmentType(ctx context.Context, clinicID, id uuid.UUID) (*AppointmentType, error)
	ListAppointmentTypes(ctx context.Context, clinicID uuid.UUID) ([]AppointmentType, error)

	GetOperatory(ctx context.Context, clinicID, id uuid.UUID) (*Operatory, error)
	ListOperatories(ctx context.Context, clinicID uuid.UUID) ([]Operatory, error)
	CreateOperatory(ctx context.Context, o *Operatory) error
	UpdateOperatory(ctx context.Context, o *Operatory) error

	GetAppointment(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)
	ListOccupying(ctx context.Context, f OccupancyFilter) ([]Appointment, error)

	// CreateAppointment fails with ErrSlotUnavailable when a slot-holding
	// appointment for the same provider or operatory overlaps a.
	CreateAppointment(ctx context.Context, a *Appointment) error
	// UpdateAppointment writes a only if the stored version equals
	// a.Version, then bumps a.Version. A stale version yields
	// ErrAppointmentModified.
	UpdateAppointment(ctx context.Context, a *Appointment) error

	CreateWaitlistEntry(ctx context.Context, e *WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, clinicID, id uuid.UUID) (*WaitlistEntry, error)
	ListWaitlist(ctx context.Context, f WaitlistFilter) ([]WaitlistEntry, error)
	// UpdateWaitlistEntry has the same version check as UpdateAppointment
	// and yields ErrWaitlistEntryModified when stale.
	UpdateWaitlistEntry(ctx context.Context, e *WaitlistEntry) error
	// ExpireWaitlist marks active entries with expires_at <= now as expired
	// and returns them.
	ExpireWaitlist(ctx context.Context, now time.Time) ([]WaitlistEntry, error)
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
