package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/audit"
)

// 2030-06-03 is a Monday.
var monday = Date{Year: 2030, Month: time.June, Day: 3}

func at(d Date, hour, minute int) time.Time {
	return d.At(hour, minute, time.UTC)
}

type captureRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureRecorder) Record(_ context.Context, ev audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureRecorder) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	repo     *MemoryRepository
	svc      *Service
	audit    *captureRecorder
	clinic   Clinic
	provider Provider
	patient  Patient
	checkup  AppointmentType
	staff    uuid.UUID
	locker   Locker
}

func weekdayHours(start, end string) WorkingHours {
	wh := WorkingHours{}
	for _, d := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		wh[d] = DayHours{Start: start, End: end, IsWorking: true}
	}
	wh["saturday"] = DayHours{IsWorking: false}
	return wh
}

type fixtureOption func(*fixture, *Options)

func withLocker(l Locker) fixtureOption {
	return func(f *fixture, _ *Options) {
		f.locker = l
	}
}

func withCache(c *SlotCache) fixtureOption {
	return func(_ *fixture, o *Options) {
		o.Cache = c
	}
}

// newFixture seeds one clinic with a provider working 09:00-17:00 UTC on
// weekdays, no buffers, a patient and a 60 minute check-up type. The clock
// reads 07:00 on monday.
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	repo := NewMemoryRepository()
	f := &fixture{
		repo:  repo,
		audit: &captureRecorder{},
		staff: uuid.New(),
		clinic: Clinic{
			ID:       uuid.New(),
			Name:     "Downtown Dental",
			TimeZone: "UTC",
			IsActive: true,
		},
	}
	f.provider = Provider{
		ID:           uuid.New(),
		ClinicID:     f.clinic.ID,
		Name:         "Dr. Ana Souza",
		Specialties:  []string{"general"},
		WorkingHours: weekdayHours("09:00", "17:00"),
		TimeZone:     "UTC",
		IsActive:     true,
	}
	f.patient = Patient{ID: uuid.New(), ClinicID: f.clinic.ID, FirstName: "Joao", LastName: "Lima"}
	f.checkup = AppointmentType{
		ID:                 uuid.New(),
		ClinicID:           f.clinic.ID,
		Name:               "Check-up",
		Duration:           60,
		AllowOnlineBooking: true,
		IsActive:           true,
	}

	repo.AddClinic(f.clinic)
	repo.AddProvider(f.provider)
	repo.AddPatient(f.patient)
	repo.AddAppointmentType(f.checkup)

	o := Options{
		Clock:  FixedClock(at(monday, 7, 0)),
		Audit:  f.audit,
		Logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f, &o)
	}
	if f.locker == nil {
		f.locker = NewLocalLocker(time.Second)
	}
	f.svc = NewService(repo, f.locker, o)
	return f
}

func (f *fixture) setClock(t time.Time) {
	f.svc.clock = FixedClock(t)
}

func (f *fixture) book(t *testing.T, start time.Time) *Appointment {
	t.Helper()
	appt, err := f.svc.CreateBooking(context.Background(), f.request(start))
	if err != nil {
		t.Fatalf("book %s: %v", start.Format(time.RFC3339), err)
	}
	return appt
}

func (f *fixture) request(start time.Time) BookingRequest {
	return BookingRequest{
		ClinicID:          f.clinic.ID,
		PatientID:         f.patient.ID,
		ProviderID:        f.provider.ID,
		AppointmentTypeID: f.checkup.ID,
		ScheduledStart:    start,
		CreatedBy:         f.staff,
	}
}

func (f *fixture) slots(t *testing.T, d Date) []Slot {
	t.Helper()
	slots, err := f.svc.AvailableSlots(context.Background(), SlotQuery{
		ClinicID:          f.clinic.ID,
		AppointmentTypeID: f.checkup.ID,
		Date:              d,
		ProviderID:        &f.provider.ID,
	})
	if err != nil {
		t.Fatalf("available slots: %v", err)
	}
	return slots
}

func startsAt(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Start.UTC().Format("15:04")
	}
	return out
}

// hookRepo lets a test run code in the middle of a repository call. Each
// hook fires once.
type hookRepo struct {
	Repository

	afterListOccupying        func()
	beforeUpdateWaitlistEntry func()
}

func (h *hookRepo) ListOccupying(ctx context.Context, f OccupancyFilter) ([]Appointment, error) {
	appts, err := h.Repository.ListOccupying(ctx, f)
	if fn := h.afterListOccupying; fn != nil {
		h.afterListOccupying = nil
		fn()
	}
	return appts, err
}

func (h *hookRepo) UpdateWaitlistEntry(ctx context.Context, e *WaitlistEntry) error {
	if fn := h.beforeUpdateWaitlistEntry; fn != nil {
		h.beforeUpdateWaitlistEntry = nil
		fn()
	}
	return h.Repository.UpdateWaitlistEntry(ctx, e)
}

// hooked returns a service over the fixture's data whose repository calls
// pass through h.
func (f *fixture) hooked(h *hookRepo, cache *SlotCache) *Service {
	h.Repository = f.repo
	return NewService(h, f.locker, Options{
		Clock:  f.svc.clock,
		Audit:  f.audit,
		Logger: zerolog.Nop(),
		Cache:  cache,
	})
}
