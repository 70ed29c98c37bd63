package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRecorder appends events to the event_logs table.
type PgRecorder struct {
	pool *pgxpool.Pool
}

func NewPgRecorder(pool *pgxpool.Pool) *PgRecorder {
	return &PgRecorder{pool: pool}
}

func (r *PgRecorder) Record(ctx context.Context, ev Event) error {
	var payload []byte
	if ev.Payload != nil {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		payload = data
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, clinic_id, appointment_id, actor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`, ev.Type, ev.ClinicID, ev.AppointmentID, ev.ActorID, payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}
