package scheduling

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a Repository held in process memory. It enforces the
// same no-overlap rule as the Postgres exclusion constraints, under its
// write lock.
type MemoryRepository struct {
	mu               sync.RWMutex
	clinics          map[uuid.UUID]Clinic
	patients         map[uuid.UUID]Patient
	providers        map[uuid.UUID]Provider
	appointmentTypes map[uuid.UUID]AppointmentType
	operatories      map[uuid.UUID]Operatory
	appointments     map[uuid.UUID]Appointment
	waitlist         map[uuid.UUID]WaitlistEntry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		clinics:          make(map[uuid.UUID]Clinic),
		patients:         make(map[uuid.UUID]Patient),
		providers:        make(map[uuid.UUID]Provider),
		appointmentTypes: make(map[uuid.UUID]AppointmentType),
		operatories:      make(map[uuid.UUID]Operatory),
		appointments:     make(map[uuid.UUID]Appointment),
		waitlist:         make(map[uuid.UUID]WaitlistEntry),
	}
}

// Seeding

func (r *MemoryRepository) AddClinic(c Clinic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clinics[c.ID] = c
}

func (r *MemoryRepository) AddPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

func (r *MemoryRepository) AddProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.Specialties = slices.Clone(p.Specialties)
	r.providers[p.ID] = p
}

func (r *MemoryRepository) AddAppointmentType(t AppointmentType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointmentTypes[t.ID] = t
}

// Reference data

func (r *MemoryRepository) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) GetPatient(ctx context.Context, clinicID, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[id]
	if !ok || p.ClinicID != clinicID {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetProvider(ctx context.Context, clinicID, id uuid.UUID) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	if !ok || p.ClinicID != clinicID {
		return nil, ErrProviderNotFound
	}
	p.Specialties = slices.Clone(p.Specialties)
	return &p, nil
}

func (r *MemoryRepository) ListProviders(ctx context.Context, clinicID uuid.UUID) ([]Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Provider
	for _, p := range r.providers {
		if p.ClinicID == clinicID {
			p.Specialties = slices.Clone(p.Specialties)
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b Provider) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (r *MemoryRepository) GetAppointmentType(ctx context.Context, clinicID, id uuid.UUID) (*AppointmentType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.appointmentTypes[id]
	if !ok || t.ClinicID != clinicID {
		return nil, ErrAppointmentTypeNotFound
	}
	return &t, nil
}

func (r *MemoryRepository) ListAppointmentTypes(ctx context.Context, clinicID uuid.UUID) ([]AppointmentType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []AppointmentType
	for _, t := range r.appointmentTypes {
		if t.ClinicID == clinicID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b AppointmentType) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Operatories

func (r *MemoryRepository) GetOperatory(ctx context.Context, clinicID, id uuid.UUID) (*Operatory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.operatories[id]
	if !ok || o.ClinicID != clinicID {
		return nil, ErrOperatoryNotFound
	}
	return &o, nil
}

func (r *MemoryRepository) ListOperatories(ctx context.Context, clinicID uuid.UUID) ([]Operatory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Operatory
	for _, o := range r.operatories {
		if o.ClinicID == clinicID {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b Operatory) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (r *MemoryRepository) operatoryNameTaken(o *Operatory) bool {
	for _, other := range r.operatories {
		if other.ID != o.ID && other.ClinicID == o.ClinicID && strings.EqualFold(other.Name, o.Name) {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) CreateOperatory(ctx context.Context, o *Operatory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.operatoryNameTaken(o) {
		return ErrOperatoryExists
	}
	r.operatories[o.ID] = *o
	return nil
}

func (r *MemoryRepository) UpdateOperatory(ctx context.Context, o *Operatory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.operatories[o.ID]
	if !ok || cur.ClinicID != o.ClinicID {
		return ErrOperatoryNotFound
	}
	if r.operatoryNameTaken(o) {
		return ErrOperatoryExists
	}
	r.operatories[o.ID] = *o
	return nil
}

// Appointments

func cloneAppointment(a Appointment) Appointment {
	a.RescheduleHistory = slices.Clone(a.RescheduleHistory)
	return a
}

func (r *MemoryRepository) GetAppointment(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok || a.ClinicID != clinicID {
		return nil, ErrAppointmentNotFound
	}
	a = cloneAppointment(a)
	return &a, nil
}

func (r *MemoryRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.ClinicID != f.ClinicID {
			continue
		}
		if f.ProviderID != nil && a.ProviderID != *f.ProviderID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.From != nil && a.ScheduledStart.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.ScheduledStart.Before(*f.To) {
			continue
		}
		out = append(out, cloneAppointment(a))
	}
	slices.SortFunc(out, func(a, b Appointment) int {
		if c := a.ScheduledStart.Compare(b.ScheduledStart); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	limit, offset := normalizePage(f.Limit, f.Offset)
	if offset >= len(out) {
		return []Appointment{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListOccupying(ctx context.Context, f OccupancyFilter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.occupying(f, uuid.Nil), nil
}

func (r *MemoryRepository) occupying(f OccupancyFilter, exclude uuid.UUID) []Appointment {
	rng := Interval{Start: f.From, End: f.To}
	var out []Appointment
	for _, a := range r.appointments {
		if a.ID == exclude || a.ClinicID != f.ClinicID || !a.Status.Occupies() {
			continue
		}
		if f.ProviderID != nil && a.ProviderID != *f.ProviderID {
			continue
		}
		if f.OperatoryID != nil && (a.OperatoryID == nil || *a.OperatoryID != *f.OperatoryID) {
			continue
		}
		if a.Interval().Overlaps(rng) {
			out = append(out, cloneAppointment(a))
		}
	}
	slices.SortFunc(out, func(a, b Appointment) int { return a.ScheduledStart.Compare(b.ScheduledStart) })
	return out
}

// overlapsExisting mirrors the provider and operatory exclusion constraints.
func (r *MemoryRepository) overlapsExisting(a *Appointment) bool {
	if !a.Status.Occupies() {
		return false
	}
	f := OccupancyFilter{
		ClinicID:   a.ClinicID,
		ProviderID: &a.ProviderID,
		From:       a.ScheduledStart,
		To:         a.ScheduledEnd,
	}
	if len(r.occupying(f, a.ID)) > 0 {
		return true
	}
	if a.OperatoryID != nil {
		f.ProviderID = nil
		f.OperatoryID = a.OperatoryID
		if len(r.occupying(f, a.ID)) > 0 {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.overlapsExisting(a) {
		return ErrSlotUnavailable
	}
	if a.Version == 0 {
		a.Version = 1
	}
	r.appointments[a.ID] = cloneAppointment(*a)
	return nil
}

func (r *MemoryRepository) UpdateAppointment(ctx context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.appointments[a.ID]
	if !ok || cur.ClinicID != a.ClinicID {
		return ErrAppointmentNotFound
	}
	if cur.Version != a.Version {
		return ErrAppointmentModified
	}
	if r.overlapsExisting(a) {
		return ErrSlotUnavailable
	}
	a.Version++
	r.appointments[a.ID] = cloneAppointment(*a)
	return nil
}

// Waitlist

func cloneWaitlistEntry(e WaitlistEntry) WaitlistEntry {
	e.PreferredDates = slices.Clone(e.PreferredDates)
	e.PreferredTimes = slices.Clone(e.PreferredTimes)
	return e
}

func (r *MemoryRepository) CreateWaitlistEntry(ctx context.Context, e *WaitlistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.Version == 0 {
		e.Version = 1
	}
	r.waitlist[e.ID] = cloneWaitlistEntry(*e)
	return nil
}

func (r *MemoryRepository) GetWaitlistEntry(ctx context.Context, clinicID, id uuid.UUID) (*WaitlistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.waitlist[id]
	if !ok || e.ClinicID != clinicID {
		return nil, ErrWaitlistEntryNotFound
	}
	e = cloneWaitlistEntry(e)
	return &e, nil
}

func (r *MemoryRepository) ListWaitlist(ctx context.Context, f WaitlistFilter) ([]WaitlistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []WaitlistEntry
	for _, e := range r.waitlist {
		if e.ClinicID != f.ClinicID {
			continue
		}
		if f.PatientID != nil && e.PatientID != *f.PatientID {
			continue
		}
		if f.ProviderID != nil && (e.ProviderID == nil || *e.ProviderID != *f.ProviderID) {
			continue
		}
		if f.Status != nil && e.Status != *f.Status {
			continue
		}
		if f.Priority != nil && e.Priority != *f.Priority {
			continue
		}
		out = append(out, cloneWaitlistEntry(e))
	}
	slices.SortFunc(out, compareWaitlist)

	limit, offset := normalizePage(f.Limit, f.Offset)
	if offset >= len(out) {
		return []WaitlistEntry{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) UpdateWaitlistEntry(ctx context.Context, e *WaitlistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.waitlist[e.ID]
	if !ok || cur.ClinicID != e.ClinicID {
		return ErrWaitlistEntryNotFound
	}
	if cur.Version != e.Version {
		return ErrWaitlistEntryModified
	}
	e.Version++
	r.waitlist[e.ID] = cloneWaitlistEntry(*e)
	return nil
}

func (r *MemoryRepository) ExpireWaitlist(ctx context.Context, now time.Time) ([]WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []WaitlistEntry
	for id, e := range r.waitlist {
		if e.Status != WaitlistActive || e.ExpiresAt.After(now) {
			continue
		}
		e.Status = WaitlistExpired
		e.UpdatedAt = now
		e.Version++
		r.waitlist[id] = e
		out = append(out, cloneWaitlistEntry(e))
	}
	return out, nil
}
