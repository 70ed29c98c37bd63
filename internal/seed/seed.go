// Package seed builds fake clinic data for local development and load
// simulation.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/db"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/scheduling"
)

type Options struct {
	Providers   int
	Patients    int
	Operatories int
	TimeZone    string
	Seed        uint64 // 0 picks a random seed
}

// Dataset is one fully populated clinic.
type Dataset struct {
	Clinic           scheduling.Clinic
	Providers        []scheduling.Provider
	Patients         []scheduling.Patient
	AppointmentTypes []scheduling.AppointmentType
	Operatories      []scheduling.Operatory
}

var specialties = []string{"general", "orthodontics", "endodontics", "periodontics", "pediatric"}

type typeTemplate struct {
	name      string
	duration  int
	price     int64
	category  string
	specialty string
	color     string
	online    bool
}

var typeTemplates = []typeTemplate{
	{"Check-up", 30, 12000, "preventive", "", "#4caf50", true},
	{"Cleaning", 45, 15000, "preventive", "", "#2196f3", true},
	{"Filling", 60, 25000, "restorative", "general", "#ff9800", false},
	{"Root canal", 90, 90000, "restorative", "endodontics", "#f44336", false},
	{"Braces adjustment", 30, 8000, "orthodontic", "orthodontics", "#9c27b0", true},
	{"Emergency visit", 30, 20000, "emergency", "", "#e91e63", false},
}

// Generate builds a dataset. Providers work 08:00-18:00 on weekdays and
// 08:00-12:00 on Saturdays; the first provider always covers general work
// so every type has at least one qualified provider.
func Generate(opts Options) Dataset {
	if opts.TimeZone == "" {
		opts.TimeZone = "UTC"
	}
	f := gofakeit.New(opts.Seed)
	now := time.Now().UTC()

	ds := Dataset{
		Clinic: scheduling.Clinic{
			ID:        uuid.New(),
			Name:      f.Company() + " Dental",
			TimeZone:  opts.TimeZone,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	for i := 0; i < opts.Providers; i++ {
		specs := []string{specialties[f.Number(0, len(specialties)-1)]}
		if i == 0 {
			specs = specialties
		}
		ds.Providers = append(ds.Providers, scheduling.Provider{
			ID:               uuid.New(),
			ClinicID:         ds.Clinic.ID,
			Name:             "Dr. " + f.Name(),
			Specialties:      specs,
			WorkingHours:     standardHours(),
			TimeZone:         opts.TimeZone,
			BufferTimeBefore: f.RandomInt([]int{0, 0, 5, 10}),
			BufferTimeAfter:  f.RandomInt([]int{0, 5, 10, 15}),
			IsActive:         true,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}

	for i := 0; i < opts.Patients; i++ {
		ds.Patients = append(ds.Patients, scheduling.Patient{
			ID:        uuid.New(),
			ClinicID:  ds.Clinic.ID,
			FirstName: f.FirstName(),
			LastName:  f.LastName(),
			Email:     f.Email(),
			Phone:     f.Phone(),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	for _, tt := range typeTemplates {
		ds.AppointmentTypes = append(ds.AppointmentTypes, scheduling.AppointmentType{
			ID:                 uuid.New(),
			ClinicID:           ds.Clinic.ID,
			Name:               tt.name,
			Duration:           tt.duration,
			PriceCents:         tt.price,
			Category:           tt.category,
			Specialty:          tt.specialty,
			Color:              tt.color,
			AllowOnlineBooking: tt.online,
			IsActive:           true,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}

	for i := 0; i < opts.Operatories; i++ {
		ds.Operatories = append(ds.Operatories, scheduling.Operatory{
			ID:          uuid.New(),
			ClinicID:    ds.Clinic.ID,
			Name:        fmt.Sprintf("Room %d", i+1),
			Description: "Treatment room " + f.Color(),
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	return ds
}

func standardHours() scheduling.WorkingHours {
	wh := scheduling.WorkingHours{}
	for _, d := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		wh[d] = scheduling.DayHours{Start: "08:00", End: "18:00", IsWorking: true}
	}
	wh["saturday"] = scheduling.DayHours{Start: "08:00", End: "12:00", IsWorking: true}
	wh["sunday"] = scheduling.DayHours{IsWorking: false}
	return wh
}

// LoadMemory registers the dataset with an in-memory repository.
func (d Dataset) LoadMemory(ctx context.Context, repo *scheduling.MemoryRepository) error {
	repo.AddClinic(d.Clinic)
	for _, p := range d.Providers {
		repo.AddProvider(p)
	}
	for _, p := range d.Patients {
		repo.AddPatient(p)
	}
	for _, t := range d.AppointmentTypes {
		repo.AddAppointmentType(t)
	}
	for i := range d.Operatories {
		if err := repo.CreateOperatory(ctx, &d.Operatories[i]); err != nil {
			return fmt.Errorf("create operatory %s: %w", d.Operatories[i].Name, err)
		}
	}
	return nil
}

const batchSize = 500

// InsertPostgres writes the dataset. Patients go in batches of 500, one
// transaction per batch.
func (d Dataset) InsertPostgres(ctx context.Context, pool *pgxpool.Pool) error {
	err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
		c := d.Clinic
		if _, err := tx.Exec(ctx, `
			INSERT INTO clinics (id, name, time_zone, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, c.ID, c.Name, c.TimeZone, c.IsActive, c.CreatedAt, c.UpdatedAt); err != nil {
			return fmt.Errorf("insert clinic: %w", err)
		}

		for _, p := range d.Providers {
			if _, err := tx.Exec(ctx, `
				INSERT INTO providers (id, clinic_id, name, specialties, working_hours, time_zone,
					buffer_time_before, buffer_time_after, is_active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			`, p.ID, p.ClinicID, p.Name, p.Specialties, p.WorkingHours, p.TimeZone,
				p.BufferTimeBefore, p.BufferTimeAfter, p.IsActive, p.CreatedAt, p.UpdatedAt); err != nil {
				return fmt.Errorf("insert provider: %w", err)
			}
		}

		for _, t := range d.AppointmentTypes {
			if _, err := tx.Exec(ctx, `
				INSERT INTO appointment_types (id, clinic_id, name, duration, price_cents, category,
					specialty, color, buffer_before, buffer_after, allow_online_booking, is_active,
					created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			`, t.ID, t.ClinicID, t.Name, t.Duration, t.PriceCents, t.Category, t.Specialty, t.Color,
				t.BufferBefore, t.BufferAfter, t.AllowOnlineBooking, t.IsActive, t.CreatedAt, t.UpdatedAt); err != nil {
				return fmt.Errorf("insert appointment type: %w", err)
			}
		}

		for _, o := range d.Operatories {
			if _, err := tx.Exec(ctx, `
				INSERT INTO operatories (id, clinic_id, name, description, is_active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, o.ID, o.ClinicID, o.Name, o.Description, o.IsActive, o.CreatedAt, o.UpdatedAt); err != nil {
				return fmt.Errorf("insert operatory: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for offset := 0; offset < len(d.Patients); offset += batchSize {
		batch := d.Patients[offset:min(offset+batchSize, len(d.Patients))]
		err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
			for _, p := range batch {
				if _, err := tx.Exec(ctx, `
					INSERT INTO patients (id, clinic_id, first_name, last_name, email, phone, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				`, p.ID, p.ClinicID, p.FirstName, p.LastName, p.Email, p.Phone, p.CreatedAt, p.UpdatedAt); err != nil {
					return fmt.Errorf("insert patient: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
