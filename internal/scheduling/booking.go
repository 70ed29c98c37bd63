package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/audit"
)

type BookingRequest struct {
	ClinicID          uuid.UUID
	PatientID         uuid.UUID
	ProviderID        uuid.UUID
	AppointmentTypeID uuid.UUID
	OperatoryID       *uuid.UUID
	ScheduledStart    time.Time
	Notes             string
	CreatedBy         uuid.UUID
}

type StatusChange struct {
	ClinicID           uuid.UUID
	AppointmentID      uuid.UUID
	Status             Status
	CancellationReason string
	ActorID            uuid.UUID
}

type RescheduleRequest struct {
	ClinicID      uuid.UUID
	AppointmentID uuid.UUID
	NewStart      time.Time
	Reason        string
	RescheduleBy  uuid.UUID
}

func (r BookingRequest) validate(now time.Time) error {
	var verr ValidationError
	if r.PatientID == uuid.Nil {
		verr.Add("patient", "is required")
	}
	if r.ProviderID == uuid.Nil {
		verr.Add("provider", "is required")
	}
	if r.AppointmentTypeID == uuid.Nil {
		verr.Add("appointmentType", "is required")
	}
	if r.ScheduledStart.IsZero() {
		verr.Add("scheduledStart", "is required")
	} else if r.ScheduledStart.Before(now) {
		verr.Add("scheduledStart", "must not be in the past")
	}
	return verr.Err()
}

// CreateBooking persists a new appointment in status scheduled. The
// conflict check is repeated under the provider (and operatory) lock so a
// slot seen by the client but taken since yields ErrSlotUnavailable.
func (s *Service) CreateBooking(ctx context.Context, req BookingRequest) (*Appointment, error) {
	now := s.clock.Now()
	if err := req.validate(now); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetClinic(ctx, req.ClinicID); err != nil {
		return nil, fmt.Errorf("load clinic: %w", err)
	}
	if _, err := s.repo.GetPatient(ctx, req.ClinicID, req.PatientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	provider, err := s.repo.GetProvider(ctx, req.ClinicID, req.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	typ, err := s.repo.GetAppointmentType(ctx, req.ClinicID, req.AppointmentTypeID)
	if err != nil {
		return nil, fmt.Errorf("load appointment type: %w", err)
	}

	var verr ValidationError
	if !provider.IsActive {
		verr.Add("provider", "is not active")
	} else if !provider.Qualified(*typ) {
		verr.Add("provider", "is not qualified for this appointment type")
	}
	if !typ.IsActive {
		verr.Add("appointmentType", "is not active")
	} else if typ.Duration <= 0 {
		verr.Add("appointmentType", "has no duration")
	}
	if req.OperatoryID != nil {
		op, err := s.repo.GetOperatory(ctx, req.ClinicID, *req.OperatoryID)
		if err != nil {
			return nil, fmt.Errorf("load operatory: %w", err)
		}
		if !op.IsActive {
			verr.Add("operatory", "is not active")
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	iv := Interval{Start: req.ScheduledStart, End: req.ScheduledStart.Add(typ.Length())}
	if !IsWorkingDuring(*provider, iv) {
		return nil, ErrOutsideWorkingHours
	}

	appt := &Appointment{
		ID:                uuid.New(),
		ClinicID:          req.ClinicID,
		PatientID:         req.PatientID,
		ProviderID:        provider.ID,
		AppointmentTypeID: typ.ID,
		OperatoryID:       req.OperatoryID,
		ScheduledStart:    iv.Start,
		ScheduledEnd:      iv.End,
		Status:            StatusScheduled,
		Notes:             strings.TrimSpace(req.Notes),
		CreatedBy:         req.CreatedBy,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.withLock(ctx, bookingLockKeys(provider.ID, req.OperatoryID), func(lockCtx context.Context) error {
		if err := s.checkConflicts(lockCtx, *provider, *typ, iv, req.OperatoryID, uuid.Nil); err != nil {
			return err
		}
		if err := s.repo.CreateAppointment(lockCtx, appt); err != nil {
			if errors.Is(err, ErrSlotUnavailable) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateProvider(provider.ID)
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("provider_id", provider.ID.String()).
		Time("start", appt.ScheduledStart).
		Msg("appointment booked")

	s.record(ctx, audit.Event{
		Type:          audit.EventAppointmentBooked,
		ClinicID:      appt.ClinicID,
		AppointmentID: &appt.ID,
		ProviderID:    &appt.ProviderID,
		ActorID:       uuidPtr(req.CreatedBy),
		Payload: map[string]any{
			"patientId":         appt.PatientID.String(),
			"appointmentTypeId": appt.AppointmentTypeID.String(),
			"scheduledStart":    appt.ScheduledStart,
			"scheduledEnd":      appt.ScheduledEnd,
		},
	})

	return appt, nil
}

// checkConflicts reports ErrSlotUnavailable when iv, padded by the type's
// buffers, meets another slot-holding appointment of the provider, or when
// iv meets another appointment in the operatory. exclude is skipped.
func (s *Service) checkConflicts(ctx context.Context, p Provider, typ AppointmentType, iv Interval, operatoryID *uuid.UUID, exclude uuid.UUID) error {
	before, after := typ.Buffers(p)

	appts, err := s.repo.ListOccupying(ctx, OccupancyFilter{
		ClinicID:   p.ClinicID,
		ProviderID: &p.ID,
		From:       iv.Start.Add(-after),
		To:         iv.End.Add(before),
	})
	if err != nil {
		return fmt.Errorf("list provider appointments: %w", err)
	}
	for _, a := range appts {
		if a.ID != exclude && a.Interval().Widen(before, after).Overlaps(iv) {
			return ErrSlotUnavailable
		}
	}

	if operatoryID == nil {
		return nil
	}
	appts, err = s.repo.ListOccupying(ctx, OccupancyFilter{
		ClinicID:    p.ClinicID,
		OperatoryID: operatoryID,
		From:        iv.Start,
		To:          iv.End,
	})
	if err != nil {
		return fmt.Errorf("list operatory appointments: %w", err)
	}
	for _, a := range appts {
		if a.ID != exclude {
			return ErrSlotUnavailable
		}
	}
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, clinicID, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, invalid("status", "unknown status")
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, invalid("to", "must be after from")
	}
	f.Limit, f.Offset = normalizePage(f.Limit, f.Offset)

	appts, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// UpdateStatus moves an appointment along its lifecycle and stamps the
// check-in, start and completion times on the way.
func (s *Service) UpdateStatus(ctx context.Context, ch StatusChange) (*Appointment, error) {
	if !ch.Status.Valid() {
		return nil, invalid("status", "unknown status")
	}
	reason := strings.TrimSpace(ch.CancellationReason)
	if ch.Status == StatusCancelled && reason == "" {
		return nil, invalid("cancellationReason", "is required when cancelling")
	}

	appt, err := s.repo.GetAppointment(ctx, ch.ClinicID, ch.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	from := appt.Status
	if !CanTransition(from, ch.Status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, from, ch.Status)
	}

	now := s.clock.Now()
	applyStatus(appt, ch.Status, reason, now)

	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.cache.InvalidateProvider(appt.ProviderID)
	s.record(ctx, audit.Event{
		Type:          audit.EventAppointmentStatusChanged,
		ClinicID:      appt.ClinicID,
		AppointmentID: &appt.ID,
		ProviderID:    &appt.ProviderID,
		ActorID:       uuidPtr(ch.ActorID),
		Payload: map[string]any{
			"from":   string(from),
			"to":     string(ch.Status),
			"reason": reason,
		},
	})

	return appt, nil
}

func applyStatus(a *Appointment, to Status, reason string, now time.Time) {
	a.Status = to
	a.UpdatedAt = now

	switch to {
	case StatusCheckedIn:
		a.CheckedInAt = &now
	case StatusInProgress:
		if a.CheckedInAt == nil {
			a.CheckedInAt = &now
		}
		a.ActualStart = &now
	case StatusCompleted:
		if a.ActualStart == nil {
			if a.CheckedInAt != nil {
				start := *a.CheckedInAt
				a.ActualStart = &start
			} else {
				a.ActualStart = &now
			}
		}
		a.ActualEnd = &now
		a.CompletedAt = &now
	case StatusCancelled:
		a.CancellationReason = reason
		a.CancelledAt = &now
	}
}

// Cancel is UpdateStatus to cancelled.
func (s *Service) Cancel(ctx context.Context, clinicID, id uuid.UUID, reason string, actorID uuid.UUID) (*Appointment, error) {
	return s.UpdateStatus(ctx, StatusChange{
		ClinicID:           clinicID,
		AppointmentID:      id,
		Status:             StatusCancelled,
		CancellationReason: reason,
		ActorID:            actorID,
	})
}

// Reschedule moves an appointment in place. Its own current interval is
// ignored by the conflict check and the move is appended to its history.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (*Appointment, error) {
	now := s.clock.Now()
	if req.NewStart.IsZero() {
		return nil, invalid("scheduledStart", "is required")
	}
	if req.NewStart.Before(now) {
		return nil, invalid("scheduledStart", "must not be in the past")
	}

	appt, err := s.repo.GetAppointment(ctx, req.ClinicID, req.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !appt.Status.Reschedulable() {
		return nil, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidStatusTransition, appt.Status)
	}

	provider, err := s.repo.GetProvider(ctx, req.ClinicID, appt.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	typ, err := s.repo.GetAppointmentType(ctx, req.ClinicID, appt.AppointmentTypeID)
	if err != nil {
		return nil, fmt.Errorf("load appointment type: %w", err)
	}

	iv := Interval{Start: req.NewStart, End: req.NewStart.Add(typ.Length())}
	if !IsWorkingDuring(*provider, iv) {
		return nil, ErrOutsideWorkingHours
	}

	oldStart := appt.ScheduledStart
	err = s.withLock(ctx, bookingLockKeys(provider.ID, appt.OperatoryID), func(lockCtx context.Context) error {
		if err := s.checkConflicts(lockCtx, *provider, *typ, iv, appt.OperatoryID, appt.ID); err != nil {
			return err
		}

		appt.RescheduleHistory = append(appt.RescheduleHistory, RescheduleRecord{
			OldDate:      oldStart,
			NewDate:      iv.Start,
			Reason:       strings.TrimSpace(req.Reason),
			RescheduleBy: req.RescheduleBy,
			Timestamp:    now,
		})
		appt.ScheduledStart = iv.Start
		appt.ScheduledEnd = iv.End
		appt.UpdatedAt = now

		if err := s.repo.UpdateAppointment(lockCtx, appt); err != nil {
			if errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrAppointmentModified) {
				return err
			}
			return fmt.Errorf("update appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateProvider(provider.ID)
	s.record(ctx, audit.Event{
		Type:          audit.EventAppointmentRescheduled,
		ClinicID:      appt.ClinicID,
		AppointmentID: &appt.ID,
		ProviderID:    &appt.ProviderID,
		ActorID:       uuidPtr(req.RescheduleBy),
		Payload: map[string]any{
			"oldDate": oldStart,
			"newDate": iv.Start,
			"reason":  strings.TrimSpace(req.Reason),
		},
	})

	return appt, nil
}

// UpdateNotes replaces the free-text notes of an appointment.
func (s *Service) UpdateNotes(ctx context.Context, clinicID, id uuid.UUID, notes string, actorID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, clinicID, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	appt.Notes = strings.TrimSpace(notes)
	appt.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("update appointment notes: %w", err)
	}

	s.record(ctx, audit.Event{
		Type:          audit.EventAppointmentUpdated,
		ClinicID:      appt.ClinicID,
		AppointmentID: &appt.ID,
		ActorID:       uuidPtr(actorID),
	})
	return appt, nil
}
