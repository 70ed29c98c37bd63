package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func (f *fixture) waitlist(t *testing.T, req WaitlistRequest) *WaitlistEntry {
	t.Helper()
	req.ClinicID = f.clinic.ID
	req.PatientID = f.patient.ID
	req.AppointmentTypeID = f.checkup.ID
	req.CreatedBy = f.staff

	e, err := f.svc.CreateWaitlistEntry(context.Background(), req)
	if err != nil {
		t.Fatalf("create waitlist entry: %v", err)
	}
	return e
}

func TestCreateWaitlistEntry_Defaults(t *testing.T) {
	f := newFixture(t)
	f.svc.waitlistTTL = 48 * time.Hour

	e := f.waitlist(t, WaitlistRequest{})
	if e.Status != WaitlistActive || e.Priority != PriorityRoutine {
		t.Fatalf("unexpected defaults %s/%s", e.Status, e.Priority)
	}
	if want := at(monday, 7, 0).Add(48 * time.Hour); !e.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want, e.ExpiresAt)
	}
}

func TestCreateWaitlistEntry_Validation(t *testing.T) {
	f := newFixture(t)

	past := at(monday, 6, 0)
	_, err := f.svc.CreateWaitlistEntry(context.Background(), WaitlistRequest{
		ClinicID:          f.clinic.ID,
		PatientID:         f.patient.ID,
		AppointmentTypeID: f.checkup.ID,
		Priority:          "whenever",
		PreferredDates:    []string{"next tuesday"},
		PreferredTimes:    []string{"morning"},
		ExpiresAt:         &past,
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"priority", "preferredDates", "preferredTimes", "expiresAt"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Errorf("expected an error for %s", field)
		}
	}
}

func TestListWaitlist_PriorityOrder(t *testing.T) {
	f := newFixture(t)

	f.waitlist(t, WaitlistRequest{Priority: PriorityRoutine})
	f.setClock(at(monday, 7, 5))
	f.waitlist(t, WaitlistRequest{Priority: PriorityEmergency})
	f.setClock(at(monday, 7, 10))
	f.waitlist(t, WaitlistRequest{Priority: PriorityUrgent})

	got, err := f.svc.ListWaitlist(context.Background(), WaitlistFilter{ClinicID: f.clinic.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []Priority{PriorityEmergency, PriorityUrgent, PriorityRoutine}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Priority != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], got[i].Priority)
		}
	}
}

func TestExpireWaitlist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	soon := at(monday, 8, 0)
	later := at(monday, 20, 0)
	expiring := f.waitlist(t, WaitlistRequest{ExpiresAt: &soon})
	keeping := f.waitlist(t, WaitlistRequest{ExpiresAt: &later})
	closed := f.waitlist(t, WaitlistRequest{ExpiresAt: &soon})

	cancelled := WaitlistCancelled
	if _, err := f.svc.UpdateWaitlistEntry(ctx, WaitlistUpdate{ClinicID: f.clinic.ID, ID: closed.ID, Status: &cancelled}); err != nil {
		t.Fatalf("cancel entry: %v", err)
	}

	f.setClock(at(monday, 9, 0))
	n, err := f.svc.ExpireWaitlist(ctx)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired entry, got %d", n)
	}

	check := func(id uuid.UUID, want WaitlistStatus) {
		t.Helper()
		e, err := f.svc.GetWaitlistEntry(ctx, f.clinic.ID, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if e.Status != want {
			t.Errorf("entry %s: expected %s, got %s", id, want, e.Status)
		}
	}
	check(expiring.ID, WaitlistExpired)
	check(keeping.ID, WaitlistActive)
	check(closed.ID, WaitlistCancelled)

	if n, _ := f.svc.ExpireWaitlist(ctx); n != 0 {
		t.Fatalf("second run should expire nothing, got %d", n)
	}
}

func TestUpdateWaitlistEntry_ClosedIsReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.waitlist(t, WaitlistRequest{})

	cancelled := WaitlistCancelled
	if _, err := f.svc.UpdateWaitlistEntry(ctx, WaitlistUpdate{ClinicID: f.clinic.ID, ID: e.ID, Status: &cancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	urgent := PriorityUrgent
	_, err := f.svc.UpdateWaitlistEntry(ctx, WaitlistUpdate{ClinicID: f.clinic.ID, ID: e.ID, Priority: &urgent})
	if !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestMatchWaitlistEntry(t *testing.T) {
	f := newFixture(t)
	f.book(t, at(monday, 14, 0))

	e := f.waitlist(t, WaitlistRequest{
		PreferredDates: []string{"2030-06-03", "2030-06-08"},
		PreferredTimes: []string{"13:00-16:00"},
	})

	slots, err := f.svc.MatchWaitlistEntry(context.Background(), f.clinic.ID, e.ID, 0)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	got := startsAt(slots)
	want := []string{"13:00", "15:00"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestMatchWaitlistEntry_DefaultsToNextWeek(t *testing.T) {
	f := newFixture(t)
	e := f.waitlist(t, WaitlistRequest{PreferredDates: []string{"2030-05-01"}})

	slots, err := f.svc.MatchWaitlistEntry(context.Background(), f.clinic.ID, e.ID, 12)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(slots) != 12 {
		t.Fatalf("expected the limit to cap results, got %d", len(slots))
	}
	if !slots[0].Start.Equal(at(monday, 9, 0)) || !slots[8].Start.Equal(at(monday.AddDays(1), 9, 0)) {
		t.Fatal("expected today's slots followed by tomorrow's")
	}
}

func TestPromoteWaitlistEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.waitlist(t, WaitlistRequest{ProviderID: &f.provider.ID})

	appt, entry, err := f.svc.PromoteWaitlistEntry(ctx, PromoteRequest{
		ClinicID:       f.clinic.ID,
		EntryID:        e.ID,
		ScheduledStart: at(monday, 15, 0),
		ActorID:        f.staff,
	})
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if appt.PatientID != f.patient.ID || appt.Status != StatusScheduled {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if entry.Status != WaitlistScheduled || entry.AppointmentID == nil || *entry.AppointmentID != appt.ID {
		t.Fatalf("entry not linked to appointment: %+v", entry)
	}

	_, _, err = f.svc.PromoteWaitlistEntry(ctx, PromoteRequest{ClinicID: f.clinic.ID, EntryID: e.ID, ScheduledStart: at(monday, 16, 0)})
	if !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("promoting twice should fail, got %v", err)
	}
}

func TestPromoteWaitlistEntry_NeedsProvider(t *testing.T) {
	f := newFixture(t)
	e := f.waitlist(t, WaitlistRequest{})

	_, _, err := f.svc.PromoteWaitlistEntry(context.Background(), PromoteRequest{
		ClinicID:       f.clinic.ID,
		EntryID:        e.ID,
		ScheduledStart: at(monday, 15, 0),
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestPromoteWaitlistEntry_SlotTaken(t *testing.T) {
	f := newFixture(t)
	f.book(t, at(monday, 15, 0))
	e := f.waitlist(t, WaitlistRequest{ProviderID: &f.provider.ID})

	_, _, err := f.svc.PromoteWaitlistEntry(context.Background(), PromoteRequest{
		ClinicID:       f.clinic.ID,
		EntryID:        e.ID,
		ScheduledStart: at(monday, 15, 30),
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}

	stored, _ := f.svc.GetWaitlistEntry(context.Background(), f.clinic.ID, e.ID)
	if stored.Status != WaitlistActive {
		t.Fatalf("entry should stay active, got %s", stored.Status)
	}
}

func TestPromoteWaitlistEntry_ConcurrentPromotionBooksOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.waitlist(t, WaitlistRequest{ProviderID: &f.provider.ID})

	h := &hookRepo{}
	svc := f.hooked(h, nil)

	// A second promotion runs to completion after the first has read the
	// entry but before it claims it.
	var secondErr error
	h.beforeUpdateWaitlistEntry = func() {
		_, _, secondErr = svc.PromoteWaitlistEntry(ctx, PromoteRequest{
			ClinicID:       f.clinic.ID,
			EntryID:        e.ID,
			ScheduledStart: at(monday, 14, 0),
			ActorID:        f.staff,
		})
	}

	_, _, firstErr := svc.PromoteWaitlistEntry(ctx, PromoteRequest{
		ClinicID:       f.clinic.ID,
		EntryID:        e.ID,
		ScheduledStart: at(monday, 10, 0),
		ActorID:        f.staff,
	})
	if secondErr != nil {
		t.Fatalf("second promotion: %v", secondErr)
	}
	if !errors.Is(firstErr, ErrWaitlistEntryModified) {
		t.Fatalf("expected ErrWaitlistEntryModified, got %v", firstErr)
	}

	appts, err := f.svc.ListAppointments(ctx, AppointmentFilter{ClinicID: f.clinic.ID, PatientID: &f.patient.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(appts) != 1 || !appts[0].ScheduledStart.Equal(at(monday, 14, 0)) {
		t.Fatalf("expected one appointment at 14:00, got %d", len(appts))
	}

	stored, _ := f.svc.GetWaitlistEntry(ctx, f.clinic.ID, e.ID)
	if stored.Status != WaitlistScheduled || stored.AppointmentID == nil || *stored.AppointmentID != appts[0].ID {
		t.Fatalf("entry not linked to the booked appointment: %+v", stored)
	}
}

func TestUpdateWaitlistEntry_StatusRestricted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, status := range []WaitlistStatus{WaitlistScheduled, WaitlistExpired, "paused"} {
		e := f.waitlist(t, WaitlistRequest{})
		_, err := f.svc.UpdateWaitlistEntry(ctx, WaitlistUpdate{ClinicID: f.clinic.ID, ID: e.ID, Status: &status})
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Fields["status"] == "" {
			t.Errorf("status %s: expected a status ValidationError, got %v", status, err)
		}
		stored, _ := f.svc.GetWaitlistEntry(ctx, f.clinic.ID, e.ID)
		if stored.Status != WaitlistActive {
			t.Errorf("status %s: entry changed to %s", status, stored.Status)
		}
	}
}

func TestUpdateWaitlistEntry_StaleVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.waitlist(t, WaitlistRequest{})

	stale, _ := f.repo.GetWaitlistEntry(ctx, f.clinic.ID, e.ID)
	urgent := PriorityUrgent
	if _, err := f.svc.UpdateWaitlistEntry(ctx, WaitlistUpdate{ClinicID: f.clinic.ID, ID: e.ID, Priority: &urgent}); err != nil {
		t.Fatalf("update: %v", err)
	}

	stale.Notes = "late write"
	if err := f.repo.UpdateWaitlistEntry(ctx, stale); !errors.Is(err, ErrWaitlistEntryModified) {
		t.Fatalf("expected ErrWaitlistEntryModified, got %v", err)
	}
}
