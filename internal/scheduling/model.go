package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusCheckedIn  Status = "checked_in"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

type Priority string

const (
	PriorityRoutine   Priority = "routine"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

type WaitlistStatus string

const (
	WaitlistActive    WaitlistStatus = "active"
	WaitlistScheduled WaitlistStatus = "scheduled"
	WaitlistCancelled WaitlistStatus = "cancelled"
	WaitlistExpired   WaitlistStatus = "expired"
)

type Clinic struct {
	ID        uuid.UUID
	Name      string
	TimeZone  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type Provider struct {
	ID               uuid.UUID
	ClinicID         uuid.UUID
	Name             string
	Specialties      []string
	WorkingHours     WorkingHours
	TimeZone         string
	BufferTimeBefore int // minutes
	BufferTimeAfter  int // minutes
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Qualified reports whether the provider may be booked for the given type.
func (p Provider) Qualified(t AppointmentType) bool {
	if t.Specialty == "" {
		return true
	}
	for _, s := range p.Specialties {
		if strings.EqualFold(s, t.Specialty) {
			return true
		}
	}
	return false
}

type AppointmentType struct {
	ID                 uuid.UUID
	ClinicID           uuid.UUID
	Name               string
	Duration           int // minutes
	PriceCents         int64
	Category           string
	Specialty          string
	Color              string
	BufferBefore       *int // overrides the provider buffer when set
	BufferAfter        *int
	AllowOnlineBooking bool
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (t AppointmentType) Length() time.Duration {
	return time.Duration(t.Duration) * time.Minute
}

// Buffers returns the padding applied around existing appointments when
// offering or booking this type with provider p.
func (t AppointmentType) Buffers(p Provider) (before, after time.Duration) {
	b, a := p.BufferTimeBefore, p.BufferTimeAfter
	if t.BufferBefore != nil {
		b = *t.BufferBefore
	}
	if t.BufferAfter != nil {
		a = *t.BufferAfter
	}
	return time.Duration(max(b, 0)) * time.Minute, time.Duration(max(a, 0)) * time.Minute
}

type Operatory struct {
	ID          uuid.UUID
	ClinicID    uuid.UUID
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type RescheduleRecord struct {
	OldDate      time.Time
	NewDate      time.Time
	Reason       string
	RescheduleBy uuid.UUID
	Timestamp    time.Time
}

type Appointment struct {
	ID                 uuid.UUID
	ClinicID           uuid.UUID
	PatientID          uuid.UUID
	ProviderID         uuid.UUID
	AppointmentTypeID  uuid.UUID
	OperatoryID        *uuid.UUID
	ScheduledStart     time.Time
	ScheduledEnd       time.Time
	Status             Status
	Notes              string
	CancellationReason string
	CheckedInAt        *time.Time
	ActualStart        *time.Time
	ActualEnd          *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	RescheduleHistory  []RescheduleRecord
	CreatedBy          uuid.UUID
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.ScheduledStart, End: a.ScheduledEnd}
}

// ActualDuration is the observed length in minutes, when both ends were stamped.
func (a Appointment) ActualDuration() (int, bool) {
	if a.ActualStart == nil || a.ActualEnd == nil {
		return 0, false
	}
	return int(a.ActualEnd.Sub(*a.ActualStart).Minutes()), true
}

type WaitlistEntry struct {
	ID                uuid.UUID
	ClinicID          uuid.UUID
	PatientID         uuid.UUID
	ProviderID        *uuid.UUID
	AppointmentTypeID uuid.UUID
	PreferredDates    []Date
	PreferredTimes    []TimeRange
	Priority          Priority
	Status            WaitlistStatus
	Notes             string
	AppointmentID     *uuid.UUID
	ExpiresAt         time.Time
	CreatedBy         uuid.UUID
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Slot is a bookable interval offered to clients.
type Slot struct {
	Start        time.Time
	End          time.Time
	ProviderID   uuid.UUID
	ProviderName string
	Available    bool
}
