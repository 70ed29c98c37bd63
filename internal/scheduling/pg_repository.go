package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Helpers

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	err := row.Scan(&c.ID, &c.Name, &c.TimeZone, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}
	return &c, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email, phone *string

	err := row.Scan(&p.ID, &p.ClinicID, &p.FirstName, &p.LastName, &email, &phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	if email != nil {
		p.Email = *email
	}
	if phone != nil {
		p.Phone = *phone
	}
	return &p, nil
}

const providerColumns = `id, clinic_id, name, specialties, working_hours, time_zone,
	buffer_time_before, buffer_time_after, is_active, created_at, updated_at`

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var hours []byte

	err := row.Scan(
		&p.ID,
		&p.ClinicID,
		&p.Name,
		&p.Specialties,
		&hours,
		&p.TimeZone,
		&p.BufferTimeBefore,
		&p.BufferTimeAfter,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	// A malformed document leaves the provider without working days.
	if len(hours) > 0 {
		_ = json.Unmarshal(hours, &p.WorkingHours)
	}
	return &p, nil
}

const appointmentTypeColumns = `id, clinic_id, name, duration, price_cents, category, specialty, color,
	buffer_before, buffer_after, allow_online_booking, is_active, created_at, updated_at`

func scanAppointmentType(row pgx.Row) (*AppointmentType, error) {
	var t AppointmentType
	err := row.Scan(
		&t.ID,
		&t.ClinicID,
		&t.Name,
		&t.Duration,
		&t.PriceCents,
		&t.Category,
		&t.Specialty,
		&t.Color,
		&t.BufferBefore,
		&t.BufferAfter,
		&t.AllowOnlineBooking,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentTypeNotFound
		}
		return nil, err
	}
	return &t, nil
}

const operatoryColumns = `id, clinic_id, name, description, is_active, created_at, updated_at`

func scanOperatory(row pgx.Row) (*Operatory, error) {
	var o Operatory
	err := row.Scan(&o.ID, &o.ClinicID, &o.Name, &o.Description, &o.IsActive, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOperatoryNotFound
		}
		return nil, err
	}
	return &o, nil
}

type rescheduleJSON struct {
	OldDate      time.Time `json:"oldDate"`
	NewDate      time.Time `json:"newDate"`
	Reason       string    `json:"reason"`
	RescheduleBy uuid.UUID `json:"rescheduleBy"`
	Timestamp    time.Time `json:"timestamp"`
}

func encodeHistory(h []RescheduleRecord) ([]byte, error) {
	out := make([]rescheduleJSON, len(h))
	for i, r := range h {
		out[i] = rescheduleJSON(r)
	}
	return json.Marshal(out)
}

func decodeHistory(data []byte) ([]RescheduleRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var in []rescheduleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	out := make([]RescheduleRecord, len(in))
	for i, r := range in {
		out[i] = RescheduleRecord(r)
	}
	return out, nil
}

const appointmentColumns = `id, clinic_id, patient_id, provider_id, appointment_type_id, operatory_id,
	scheduled_start, scheduled_end, status, notes, cancellation_reason,
	checked_in_at, actual_start, actual_end, completed_at, cancelled_at,
	reschedule_history, created_by, version, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var history []byte

	err := row.Scan(
		&a.ID,
		&a.ClinicID,
		&a.PatientID,
		&a.ProviderID,
		&a.AppointmentTypeID,
		&a.OperatoryID,
		&a.ScheduledStart,
		&a.ScheduledEnd,
		&a.Status,
		&a.Notes,
		&a.CancellationReason,
		&a.CheckedInAt,
		&a.ActualStart,
		&a.ActualEnd,
		&a.CompletedAt,
		&a.CancelledAt,
		&history,
		&a.CreatedBy,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.RescheduleHistory, err = decodeHistory(history)
	if err != nil {
		return nil, fmt.Errorf("decode reschedule history: %w", err)
	}
	return &a, nil
}

const waitlistColumns = `id, clinic_id, patient_id, provider_id, appointment_type_id,
	preferred_dates, preferred_times, priority, status, notes, appointment_id,
	expires_at, created_by, version, created_at, updated_at`

func scanWaitlistEntry(row pgx.Row) (*WaitlistEntry, error) {
	var e WaitlistEntry
	var dates, times []string

	err := row.Scan(
		&e.ID,
		&e.ClinicID,
		&e.PatientID,
		&e.ProviderID,
		&e.AppointmentTypeID,
		&dates,
		&times,
		&e.Priority,
		&e.Status,
		&e.Notes,
		&e.AppointmentID,
		&e.ExpiresAt,
		&e.CreatedBy,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWaitlistEntryNotFound
		}
		return nil, err
	}

	for _, raw := range dates {
		if d, err := ParseDate(raw); err == nil {
			e.PreferredDates = append(e.PreferredDates, d)
		}
	}
	for _, raw := range times {
		if r, err := ParseTimeRange(raw); err == nil {
			e.PreferredTimes = append(e.PreferredTimes, r)
		}
	}
	return &e, nil
}

func waitlistPreferenceStrings(e *WaitlistEntry) ([]string, []string) {
	dates := make([]string, len(e.PreferredDates))
	for i, d := range e.PreferredDates {
		dates[i] = d.String()
	}
	times := make([]string, len(e.PreferredTimes))
	for i, r := range e.PreferredTimes {
		times[i] = r.String()
	}
	return dates, times
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	result := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Reference data

func (r *PgRepository) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, time_zone, is_active, created_at, updated_at
		FROM clinics
		WHERE id = $1
	`, id)
	return scanClinic(row)
}

func (r *PgRepository) GetPatient(ctx context.Context, clinicID, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, first_name, last_name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1 AND clinic_id = $2
	`, id, clinicID)
	return scanPatient(row)
}

func (r *PgRepository) GetProvider(ctx context.Context, clinicID, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE id = $1 AND clinic_id = $2
	`, id, clinicID)
	return scanProvider(row)
}

func (r *PgRepository) ListProviders(ctx context.Context, clinicID uuid.UUID) ([]Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE clinic_id = $1
		ORDER BY name
	`, clinicID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanProvider)
}

func (r *PgRepository) GetAppointmentType(ctx context.Context, clinicID, id uuid.UUID) (*AppointmentType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentTypeColumns+`
		FROM appointment_types
		WHERE id = $1 AND clinic_id = $2
	`, id, clinicID)
	return scanAppointmentType(row)
}

func (r *PgRepository) ListAppointmentTypes(ctx context.Context, clinicID uuid.UUID) ([]AppointmentType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentTypeColumns+`
		FROM appointment_types
		WHERE clinic_id = $1
		ORDER BY name
	`, clinicID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointmentType)
}

// Operatories

func (r *PgRepository) GetOperatory(ctx context.Context, clinicID, id uuid.UUID) (*Operatory, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+operatoryColumns+`
		FROM operatories
		WHERE id = $1 AND clinic_id = $2
	`, id, clinicID)
	return scanOperatory(row)
}

func (r *PgRepository) ListOperatories(ctx context.Context, clinicID uuid.UUID) ([]Operatory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+operatoryColumns+`
		FROM operatories
		WHERE clinic_id = $1
		ORDER BY name
	`, clinicID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOperatory)
}

func (r *PgRepository) CreateOperatory(ctx context.Context, o *Operatory) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO operatories (id, clinic_id, name, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, o.ID, o.ClinicID, o.Name, o.Description, o.IsActive, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if pgErrCode(err) == pgUniqueViolation {
			return ErrOperatoryExists
		}
		return err
	}
	return nil
}

func (r *PgRepository) UpdateOperatory(ctx context.Context, o *Operatory) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE operatories
		SET name = $3,
		    description = $4,
		    is_active = $5,
		    updated_at = $6
		WHERE id = $1 AND clinic_id = $2
	`, o.ID, o.ClinicID, o.Name, o.Description, o.IsActive, o.UpdatedAt)
	if err != nil {
		if pgErrCode(err) == pgUniqueViolation {
			return ErrOperatoryExists
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOperatoryNotFound
	}
	return nil
}

// Appointments

func (r *PgRepository) GetAppointment(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND clinic_id = $2
	`, id, clinicID)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	where := []string{"clinic_id = $1"}
	args := []any{f.ClinicID}

	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ProviderID != nil {
		add("provider_id = $%d", *f.ProviderID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.From != nil {
		add("scheduled_start >= $%d", *f.From)
	}
	if f.To != nil {
		add("scheduled_start < $%d", *f.To)
	}

	limit, offset := normalizePage(f.Limit, f.Offset)
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT %s
		FROM appointments
		WHERE %s
		ORDER BY scheduled_start, id
		LIMIT $%d OFFSET $%d
	`, appointmentColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) ListOccupying(ctx context.Context, f OccupancyFilter) ([]Appointment, error) {
	column, id := "provider_id", f.ProviderID
	if f.OperatoryID != nil {
		column, id = "operatory_id", f.OperatoryID
	}
	if id == nil {
		return nil, errors.New("occupancy filter needs a provider or an operatory")
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1
		  AND `+column+` = $2
		  AND status NOT IN ('cancelled', 'no_show')
		  AND tstzrange(scheduled_start, scheduled_end, '[)') && tstzrange($3, $4, '[)')
		ORDER BY scheduled_start
	`, f.ClinicID, *id, f.From, f.To)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	history, err := encodeHistory(a.RescheduleHistory)
	if err != nil {
		return fmt.Errorf("encode reschedule history: %w", err)
	}
	if a.Version == 0 {
		a.Version = 1
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO appointments (
			id, clinic_id, patient_id, provider_id, appointment_type_id, operatory_id,
			scheduled_start, scheduled_end, status, notes, cancellation_reason,
			checked_in_at, actual_start, actual_end, completed_at, cancelled_at,
			reschedule_history, created_by, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		a.ID, a.ClinicID, a.PatientID, a.ProviderID, a.AppointmentTypeID, a.OperatoryID,
		a.ScheduledStart, a.ScheduledEnd, string(a.Status), a.Notes, a.CancellationReason,
		a.CheckedInAt, a.ActualStart, a.ActualEnd, a.CompletedAt, a.CancelledAt,
		history, a.CreatedBy, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if pgErrCode(err) == pgExclusionViolation {
			return ErrSlotUnavailable
		}
		return err
	}
	return nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment) error {
	history, err := encodeHistory(a.RescheduleHistory)
	if err != nil {
		return fmt.Errorf("encode reschedule history: %w", err)
	}

	var version int
	err = r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET operatory_id = $4,
		    scheduled_start = $5,
		    scheduled_end = $6,
		    status = $7,
		    notes = $8,
		    cancellation_reason = $9,
		    checked_in_at = $10,
		    actual_start = $11,
		    actual_end = $12,
		    completed_at = $13,
		    cancelled_at = $14,
		    reschedule_history = $15,
		    updated_at = $16,
		    version = version + 1
		WHERE id = $1
		  AND clinic_id = $2
		  AND version = $3
		RETURNING version
	`,
		a.ID, a.ClinicID, a.Version, a.OperatoryID,
		a.ScheduledStart, a.ScheduledEnd, string(a.Status), a.Notes, a.CancellationReason,
		a.CheckedInAt, a.ActualStart, a.ActualEnd, a.CompletedAt, a.CancelledAt,
		history, a.UpdatedAt,
	).Scan(&version)
	if err != nil {
		if pgErrCode(err) == pgExclusionViolation {
			return ErrSlotUnavailable
		}
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetAppointment(ctx, a.ClinicID, a.ID); getErr != nil {
				return getErr
			}
			return ErrAppointmentModified
		}
		return err
	}

	a.Version = version
	return nil
}

// Waitlist

func (r *PgRepository) CreateWaitlistEntry(ctx context.Context, e *WaitlistEntry) error {
	dates, times := waitlistPreferenceStrings(e)
	if e.Version == 0 {
		e.Version = 1
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO waitlist_entries (
			id, clinic_id, patient_id, provider_id, appointment_type_id,
			preferred_dates, preferred_times, priority, status, notes, appointment_id,
			expires_at, created_by, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		e.ID, e.ClinicID, e.PatientID, e.ProviderID, e.AppointmentTypeID,
		dates, times, string(e.Priority), string(e.Status), e.Notes, e.AppointmentID,
		e.ExpiresAt, e.CreatedBy, e.Version, e.CreatedAt, e.UpdatedAt,
	)
	return err
}

func (r *PgRepository) GetWaitlistEntry(ctx context.Context, clinicID, id uuid.UUID) (*WaitlistEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE id = $1 AND clinic_id = $2
	`, id, clinicID)
	return scanWaitlistEntry(row)
}

func (r *PgRepository) ListWaitlist(ctx context.Context, f WaitlistFilter) ([]WaitlistEntry, error) {
	where := []string{"clinic_id = $1"}
	args := []any{f.ClinicID}

	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.ProviderID != nil {
		add("provider_id = $%d", *f.ProviderID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.Priority != nil {
		add("priority = $%d", string(*f.Priority))
	}

	limit, offset := normalizePage(f.Limit, f.Offset)
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT %s
		FROM waitlist_entries
		WHERE %s
		ORDER BY CASE priority WHEN 'emergency' THEN 0 WHEN 'urgent' THEN 1 ELSE 2 END, created_at
		LIMIT $%d OFFSET $%d
	`, waitlistColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanWaitlistEntry)
}

func (r *PgRepository) UpdateWaitlistEntry(ctx context.Context, e *WaitlistEntry) error {
	dates, times := waitlistPreferenceStrings(e)

	var version int
	err := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET provider_id = $4,
		    preferred_dates = $5,
		    preferred_times = $6,
		    priority = $7,
		    status = $8,
		    notes = $9,
		    appointment_id = $10,
		    expires_at = $11,
		    updated_at = $12,
		    version = version + 1
		WHERE id = $1
		  AND clinic_id = $2
		  AND version = $3
		RETURNING version
	`,
		e.ID, e.ClinicID, e.Version, e.ProviderID, dates, times, string(e.Priority), string(e.Status),
		e.Notes, e.AppointmentID, e.ExpiresAt, e.UpdatedAt,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetWaitlistEntry(ctx, e.ClinicID, e.ID); getErr != nil {
				return getErr
			}
			return ErrWaitlistEntryModified
		}
		return err
	}

	e.Version = version
	return nil
}

func (r *PgRepository) ExpireWaitlist(ctx context.Context, now time.Time) ([]WaitlistEntry, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE waitlist_entries
		SET status = 'expired',
		    updated_at = $1,
		    version = version + 1
		WHERE status = 'active'
		  AND expires_at <= $1
		RETURNING `+waitlistColumns, now)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanWaitlistEntry)
}
