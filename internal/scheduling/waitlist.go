package scheduling

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/audit"
)

const (
	defaultMatchDays  = 7
	defaultMatchLimit = 20
)

var priorityRank = map[Priority]int{
	PriorityRoutine:   0,
	PriorityUrgent:    1,
	PriorityEmergency: 2,
}

func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

func (s WaitlistStatus) Valid() bool {
	switch s {
	case WaitlistActive, WaitlistScheduled, WaitlistCancelled, WaitlistExpired:
		return true
	}
	return false
}

// compareWaitlist orders the most urgent entries first, oldest first
// within a priority.
func compareWaitlist(a, b WaitlistEntry) int {
	if c := cmp.Compare(priorityRank[b.Priority], priorityRank[a.Priority]); c != 0 {
		return c
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}

type WaitlistRequest struct {
	ClinicID          uuid.UUID
	PatientID         uuid.UUID
	ProviderID        *uuid.UUID
	AppointmentTypeID uuid.UUID
	PreferredDates    []string
	PreferredTimes    []string
	Priority          Priority
	Notes             string
	ExpiresAt         *time.Time
	CreatedBy         uuid.UUID
}

// WaitlistUpdate changes the fields that are set.
type WaitlistUpdate struct {
	ClinicID       uuid.UUID
	ID             uuid.UUID
	Priority       *Priority
	Status         *WaitlistStatus
	Notes          *string
	PreferredDates []string // nil leaves unchanged
	PreferredTimes []string
	ExpiresAt      *time.Time
	ActorID        uuid.UUID
}

type PromoteRequest struct {
	ClinicID       uuid.UUID
	EntryID        uuid.UUID
	ProviderID     *uuid.UUID // required when the entry names no provider
	OperatoryID    *uuid.UUID
	ScheduledStart time.Time
	ActorID        uuid.UUID
}

func parsePreferences(dates, times []string, verr *ValidationError) ([]Date, []TimeRange) {
	ds := make([]Date, 0, len(dates))
	for _, raw := range dates {
		d, err := ParseDate(raw)
		if err != nil {
			verr.Add("preferredDates", err.Error())
			continue
		}
		ds = append(ds, d)
	}
	ts := make([]TimeRange, 0, len(times))
	for _, raw := range times {
		r, err := ParseTimeRange(raw)
		if err != nil {
			verr.Add("preferredTimes", err.Error())
			continue
		}
		ts = append(ts, r)
	}
	return ds, ts
}

func (s *Service) CreateWaitlistEntry(ctx context.Context, req WaitlistRequest) (*WaitlistEntry, error) {
	now := s.clock.Now()

	var verr ValidationError
	if req.PatientID == uuid.Nil {
		verr.Add("patient", "is required")
	}
	if req.AppointmentTypeID == uuid.Nil {
		verr.Add("appointmentType", "is required")
	}
	if req.Priority == "" {
		req.Priority = PriorityRoutine
	}
	if !req.Priority.Valid() {
		verr.Add("priority", "must be routine, urgent or emergency")
	}
	expiresAt := now.Add(s.waitlistTTL)
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(now) {
			verr.Add("expiresAt", "must be in the future")
		}
		expiresAt = *req.ExpiresAt
	}
	dates, times := parsePreferences(req.PreferredDates, req.PreferredTimes, &verr)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetPatient(ctx, req.ClinicID, req.PatientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.repo.GetAppointmentType(ctx, req.ClinicID, req.AppointmentTypeID); err != nil {
		return nil, fmt.Errorf("load appointment type: %w", err)
	}
	if req.ProviderID != nil {
		if _, err := s.repo.GetProvider(ctx, req.ClinicID, *req.ProviderID); err != nil {
			return nil, fmt.Errorf("load provider: %w", err)
		}
	}

	e := &WaitlistEntry{
		ID:                uuid.New(),
		ClinicID:          req.ClinicID,
		PatientID:         req.PatientID,
		ProviderID:        req.ProviderID,
		AppointmentTypeID: req.AppointmentTypeID,
		PreferredDates:    dates,
		PreferredTimes:    times,
		Priority:          req.Priority,
		Status:            WaitlistActive,
		Notes:             strings.TrimSpace(req.Notes),
		ExpiresAt:         expiresAt,
		CreatedBy:         req.CreatedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.CreateWaitlistEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("create waitlist entry: %w", err)
	}

	s.record(ctx, audit.Event{
		Type:     audit.EventWaitlistCreated,
		ClinicID: e.ClinicID,
		ActorID:  uuidPtr(req.CreatedBy),
		Payload: map[string]any{
			"waitlistEntryId": e.ID.String(),
			"patientId":       e.PatientID.String(),
			"priority":        string(e.Priority),
		},
	})
	return e, nil
}

func (s *Service) GetWaitlistEntry(ctx context.Context, clinicID, id uuid.UUID) (*WaitlistEntry, error) {
	e, err := s.repo.GetWaitlistEntry(ctx, clinicID, id)
	if err != nil {
		return nil, fmt.Errorf("get waitlist entry: %w", err)
	}
	return e, nil
}

func (s *Service) ListWaitlist(ctx context.Context, f WaitlistFilter) ([]WaitlistEntry, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, invalid("status", "unknown waitlist status")
	}
	if f.Priority != nil && !f.Priority.Valid() {
		return nil, invalid("priority", "unknown priority")
	}
	f.Limit, f.Offset = normalizePage(f.Limit, f.Offset)

	entries, err := s.repo.ListWaitlist(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return entries, nil
}

// UpdateWaitlistEntry edits an active entry. Once an entry has left the
// active state it is read-only.
func (s *Service) UpdateWaitlistEntry(ctx context.Context, u WaitlistUpdate) (*WaitlistEntry, error) {
	e, err := s.repo.GetWaitlistEntry(ctx, u.ClinicID, u.ID)
	if err != nil {
		return nil, fmt.Errorf("load waitlist entry: %w", err)
	}
	if e.Status != WaitlistActive {
		return nil, fmt.Errorf("%w: waitlist entry is %s", ErrInvalidStatusTransition, e.Status)
	}

	now := s.clock.Now()
	var verr ValidationError
	if u.Priority != nil {
		if !u.Priority.Valid() {
			verr.Add("priority", "must be routine, urgent or emergency")
		}
		e.Priority = *u.Priority
	}
	if u.Status != nil {
		// Entries become scheduled only through promotion and expired only
		// through the reaper.
		switch *u.Status {
		case WaitlistActive, WaitlistCancelled:
			e.Status = *u.Status
		default:
			verr.Add("status", "can only be set to cancelled")
		}
	}
	if u.Notes != nil {
		e.Notes = strings.TrimSpace(*u.Notes)
	}
	if u.ExpiresAt != nil {
		if !u.ExpiresAt.After(now) {
			verr.Add("expiresAt", "must be in the future")
		}
		e.ExpiresAt = *u.ExpiresAt
	}
	if u.PreferredDates != nil || u.PreferredTimes != nil {
		dates, times := parsePreferences(u.PreferredDates, u.PreferredTimes, &verr)
		if u.PreferredDates != nil {
			e.PreferredDates = dates
		}
		if u.PreferredTimes != nil {
			e.PreferredTimes = times
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	e.UpdatedAt = now
	if err := s.repo.UpdateWaitlistEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("update waitlist entry: %w", err)
	}

	s.record(ctx, audit.Event{
		Type:     audit.EventWaitlistUpdated,
		ClinicID: e.ClinicID,
		ActorID:  uuidPtr(u.ActorID),
		Payload: map[string]any{
			"waitlistEntryId": e.ID.String(),
			"status":          string(e.Status),
			"priority":        string(e.Priority),
		},
	})
	return e, nil
}

// MatchWaitlistEntry offers open slots over the entry's preferred dates
// (the next week when none are left) filtered by its preferred times of
// day in the clinic's zone.
func (s *Service) MatchWaitlistEntry(ctx context.Context, clinicID, id uuid.UUID, limit int) ([]Slot, error) {
	e, err := s.repo.GetWaitlistEntry(ctx, clinicID, id)
	if err != nil {
		return nil, fmt.Errorf("load waitlist entry: %w", err)
	}
	if e.Status != WaitlistActive {
		return []Slot{}, nil
	}
	clinic, err := s.repo.GetClinic(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("load clinic: %w", err)
	}
	loc, err := time.LoadLocation(clinic.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	if limit <= 0 {
		limit = defaultMatchLimit
	}

	now := s.clock.Now()
	today := DateOf(now.In(loc))

	var dates []Date
	for _, d := range e.PreferredDates {
		if !d.Before(today) {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		for i := 0; i < defaultMatchDays; i++ {
			dates = append(dates, today.AddDays(i))
		}
	}
	slices.SortFunc(dates, func(a, b Date) int {
		if a.Before(b) {
			return -1
		}
		if b.Before(a) {
			return 1
		}
		return 0
	})
	dates = slices.Compact(dates)

	out := []Slot{}
	for _, d := range dates {
		slots, err := s.AvailableSlots(ctx, SlotQuery{
			ClinicID:          clinicID,
			AppointmentTypeID: e.AppointmentTypeID,
			Date:              d,
			ProviderID:        e.ProviderID,
		})
		if err != nil {
			return nil, err
		}
		for _, slot := range slots {
			if !matchesTimes(e.PreferredTimes, slot.Start.In(loc)) {
				continue
			}
			out = append(out, slot)
			if len(out) == limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func matchesTimes(ranges []TimeRange, t time.Time) bool {
	if len(ranges) == 0 {
		return true
	}
	for _, r := range ranges {
		if r.Includes(t) {
			return true
		}
	}
	return false
}

// PromoteWaitlistEntry books the entry's patient into the requested slot
// and marks the entry scheduled.
func (s *Service) PromoteWaitlistEntry(ctx context.Context, req PromoteRequest) (*Appointment, *WaitlistEntry, error) {
	e, err := s.repo.GetWaitlistEntry(ctx, req.ClinicID, req.EntryID)
	if err != nil {
		return nil, nil, fmt.Errorf("load waitlist entry: %w", err)
	}
	if e.Status != WaitlistActive {
		return nil, nil, fmt.Errorf("%w: waitlist entry is %s", ErrInvalidStatusTransition, e.Status)
	}

	providerID := e.ProviderID
	if req.ProviderID != nil {
		providerID = req.ProviderID
	}
	if providerID == nil {
		return nil, nil, invalid("provider", "is required when the entry names no provider")
	}

	// Claim the entry first. A concurrent promotion or edit holding the
	// same version fails with ErrWaitlistEntryModified.
	e.Status = WaitlistScheduled
	e.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateWaitlistEntry(ctx, e); err != nil {
		return nil, nil, fmt.Errorf("claim waitlist entry: %w", err)
	}

	appt, err := s.CreateBooking(ctx, BookingRequest{
		ClinicID:          req.ClinicID,
		PatientID:         e.PatientID,
		ProviderID:        *providerID,
		AppointmentTypeID: e.AppointmentTypeID,
		OperatoryID:       req.OperatoryID,
		ScheduledStart:    req.ScheduledStart,
		Notes:             e.Notes,
		CreatedBy:         req.ActorID,
	})
	if err != nil {
		s.releaseWaitlistEntry(ctx, e)
		return nil, nil, err
	}

	e.AppointmentID = &appt.ID
	e.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateWaitlistEntry(ctx, e); err != nil {
		// The appointment stands; the entry can be linked by hand.
		s.logger.Error().Err(err).
			Str("waitlist_entry_id", e.ID.String()).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to link waitlist entry to appointment")
	}

	s.record(ctx, audit.Event{
		Type:          audit.EventWaitlistPromoted,
		ClinicID:      e.ClinicID,
		AppointmentID: &appt.ID,
		ProviderID:    &appt.ProviderID,
		ActorID:       uuidPtr(req.ActorID),
		Payload: map[string]any{
			"waitlistEntryId": e.ID.String(),
		},
	})
	return appt, e, nil
}

// releaseWaitlistEntry reopens an entry claimed by a promotion whose
// booking failed.
func (s *Service) releaseWaitlistEntry(ctx context.Context, e *WaitlistEntry) {
	e.Status = WaitlistActive
	e.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateWaitlistEntry(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Error().Err(err).
			Str("waitlist_entry_id", e.ID.String()).
			Msg("failed to reopen waitlist entry")
	}
}

// ExpireWaitlist reaps active entries whose expiry has passed and returns
// how many were expired.
func (s *Service) ExpireWaitlist(ctx context.Context) (int, error) {
	now := s.clock.Now()
	expired, err := s.repo.ExpireWaitlist(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expire waitlist: %w", err)
	}

	for _, e := range expired {
		s.record(ctx, audit.Event{
			Type:     audit.EventWaitlistExpired,
			ClinicID: e.ClinicID,
			Payload: map[string]any{
				"waitlistEntryId": e.ID.String(),
				"expiresAt":       e.ExpiresAt,
			},
		})
	}
	return len(expired), nil
}
