package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/audit"
)

func TestRoutingKey(t *testing.T) {
	cases := map[string]string{
		audit.EventAppointmentBooked:        "appointment.booked",
		audit.EventAppointmentStatusChanged: "appointment.status_changed",
		audit.EventWaitlistExpired:          "waitlist.expired",
		"PING":                              "ping",
	}
	for in, want := range cases {
		if got := RoutingKey(in); got != want {
			t.Errorf("RoutingKey(%q) = %q, want %q", in, got, want)
		}
	}
}

type recordingInvalidator struct {
	ids []uuid.UUID
}

func (r *recordingInvalidator) InvalidateProvider(id uuid.UUID) {
	r.ids = append(r.ids, id)
}

func TestListener_Handle(t *testing.T) {
	inv := &recordingInvalidator{}
	l := &Listener{invalidator: inv, logger: zerolog.Nop()}

	providerID := uuid.New()
	body, _ := json.Marshal(audit.Event{Type: audit.EventAppointmentBooked, ProviderID: &providerID})

	l.handle(body)
	l.handle([]byte("not json"))
	noProvider, _ := json.Marshal(audit.Event{Type: audit.EventAppointmentUpdated})
	l.handle(noProvider)

	if len(inv.ids) != 1 || inv.ids[0] != providerID {
		t.Fatalf("expected one invalidation for %s, got %v", providerID, inv.ids)
	}
}
