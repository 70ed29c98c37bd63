package scheduling

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SlotQuery struct {
	ClinicID          uuid.UUID
	AppointmentTypeID uuid.UUID
	Date              Date
	ProviderID        *uuid.UUID // nil searches every qualified provider
	Granularity       time.Duration
}

// AppointmentTypes lists the clinic's active types. With onlineOnly set,
// only types open to patient self-booking are returned.
func (s *Service) AppointmentTypes(ctx context.Context, clinicID uuid.UUID, onlineOnly bool) ([]AppointmentType, error) {
	if _, err := s.repo.GetClinic(ctx, clinicID); err != nil {
		return nil, fmt.Errorf("load clinic: %w", err)
	}

	types, err := s.repo.ListAppointmentTypes(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list appointment types: %w", err)
	}

	out := make([]AppointmentType, 0, len(types))
	for _, t := range types {
		if !t.IsActive || (onlineOnly && !t.AllowOnlineBooking) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// BusyIntervals returns the merged intervals during which the provider is
// committed on date d, widened by nothing. A non-working day has none.
func (s *Service) BusyIntervals(ctx context.Context, clinicID, providerID uuid.UUID, d Date) ([]Interval, error) {
	provider, err := s.repo.GetProvider(ctx, clinicID, providerID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	window, ok := WorkingWindow(*provider, d)
	if !ok {
		return nil, nil
	}
	return s.busy(ctx, clinicID, provider.ID, window)
}

func (s *Service) busy(ctx context.Context, clinicID, providerID uuid.UUID, rng Interval) ([]Interval, error) {
	appts, err := s.repo.ListOccupying(ctx, OccupancyFilter{
		ClinicID:   clinicID,
		ProviderID: &providerID,
		From:       rng.Start,
		To:         rng.End,
	})
	if err != nil {
		return nil, fmt.Errorf("list provider appointments: %w", err)
	}

	ivs := make([]Interval, 0, len(appts))
	for _, a := range appts {
		ivs = append(ivs, a.Interval())
	}
	return MergeIntervals(ivs), nil
}

// AvailableSlots returns bookable slots for the query ordered by start
// time. Without a provider filter, results from every active provider
// qualified for the type are merged.
func (s *Service) AvailableSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	if q.Date.IsZero() {
		return nil, invalid("date", "is required")
	}
	if q.Granularity < 0 {
		return nil, invalid("granularity", "must be positive")
	}

	if _, err := s.repo.GetClinic(ctx, q.ClinicID); err != nil {
		return nil, fmt.Errorf("load clinic: %w", err)
	}
	typ, err := s.repo.GetAppointmentType(ctx, q.ClinicID, q.AppointmentTypeID)
	if err != nil {
		return nil, fmt.Errorf("load appointment type: %w", err)
	}
	if !typ.IsActive {
		return []Slot{}, nil
	}

	var providers []Provider
	if q.ProviderID != nil {
		p, err := s.repo.GetProvider(ctx, q.ClinicID, *q.ProviderID)
		if err != nil {
			return nil, fmt.Errorf("load provider: %w", err)
		}
		providers = []Provider{*p}
	} else {
		providers, err = s.repo.ListProviders(ctx, q.ClinicID)
		if err != nil {
			return nil, fmt.Errorf("list providers: %w", err)
		}
	}

	step := q.Granularity
	if step == 0 {
		step = s.granularity
	}
	if step <= 0 {
		step = typ.Length()
	}

	now := s.clock.Now()
	out := []Slot{}
	for _, p := range providers {
		if !p.IsActive || !p.Qualified(*typ) {
			continue
		}
		slots, err := s.providerSlots(ctx, p, *typ, q.Date, step, now)
		if err != nil {
			return nil, err
		}
		out = append(out, slots...)
	}

	if len(providers) > 1 {
		slices.SortStableFunc(out, func(a, b Slot) int {
			if c := a.Start.Compare(b.Start); c != 0 {
				return c
			}
			return strings.Compare(a.ProviderName, b.ProviderName)
		})
	}
	return out, nil
}

func (s *Service) providerSlots(ctx context.Context, p Provider, typ AppointmentType, d Date, step time.Duration, now time.Time) ([]Slot, error) {
	key := slotCacheKey{providerID: p.ID, typeID: typ.ID, date: d, granularity: step}
	if cached, ok := s.cache.get(key, now); ok {
		return cached, nil
	}
	gen := s.cache.generation(p.ID)

	window, ok := WorkingWindow(p, d)
	if !ok {
		return nil, nil
	}

	before, after := typ.Buffers(p)
	busy, err := s.busy(ctx, p.ClinicID, p.ID, window.Widen(after, before))
	if err != nil {
		return nil, err
	}

	var slots []Slot
	for iv := range GenerateSlots(SlotParams{
		Window:      window,
		Busy:        widenAll(busy, before, after),
		Duration:    typ.Length(),
		Granularity: step,
		Now:         now,
	}) {
		slots = append(slots, Slot{
			Start:        iv.Start,
			End:          iv.End,
			ProviderID:   p.ID,
			ProviderName: p.Name,
			Available:    true,
		})
	}

	s.cache.put(key, gen, slots)
	return slots, nil
}
