package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/auth"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/scheduling"
)

// 2030-06-03 is a Monday; the service clock reads 07:00 UTC that day.
var monday = scheduling.Date{Year: 2030, Month: time.June, Day: 3}

type testEnv struct {
	handler  http.Handler
	tokens   *auth.Tokens
	clinic   scheduling.Clinic
	provider scheduling.Provider
	patient  scheduling.Patient
	checkup  scheduling.AppointmentType
	staff    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := scheduling.NewMemoryRepository()
	env := &testEnv{
		tokens: auth.NewTokens("test-secret", "topsmile"),
		clinic: scheduling.Clinic{ID: uuid.New(), Name: "Downtown Dental", TimeZone: "UTC", IsActive: true},
	}
	hours := scheduling.WorkingHours{}
	for _, d := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		hours[d] = scheduling.DayHours{Start: "09:00", End: "17:00", IsWorking: true}
	}
	env.provider = scheduling.Provider{
		ID:           uuid.New(),
		ClinicID:     env.clinic.ID,
		Name:         "Dr. Ana Souza",
		WorkingHours: hours,
		TimeZone:     "UTC",
		IsActive:     true,
	}
	env.patient = scheduling.Patient{ID: uuid.New(), ClinicID: env.clinic.ID, FirstName: "Joao", LastName: "Lima"}
	env.checkup = scheduling.AppointmentType{
		ID:                 uuid.New(),
		ClinicID:           env.clinic.ID,
		Name:               "Check-up",
		Duration:           60,
		PriceCents:         12000,
		AllowOnlineBooking: true,
		IsActive:           true,
	}
	repo.AddClinic(env.clinic)
	repo.AddProvider(env.provider)
	repo.AddPatient(env.patient)
	repo.AddAppointmentType(env.checkup)

	svc := scheduling.NewService(repo, scheduling.NewLocalLocker(time.Second), scheduling.Options{
		Clock:  scheduling.FixedClock(monday.At(7, 0, time.UTC)),
		Logger: zerolog.Nop(),
	})
	env.handler = NewRouter(RouterConfig{
		Service: svc,
		Tokens:  env.tokens,
		Logger:  zerolog.Nop(),
		Env:     "test",
		Version: "test",
	})
	env.staff = env.token(t, auth.RoleReceptionist, uuid.New())
	return env
}

func (e *testEnv) token(t *testing.T, role auth.Role, userID uuid.UUID) string {
	t.Helper()
	tok, err := e.tokens.Issue(auth.Identity{UserID: userID, Role: role, ClinicID: e.clinic.ID}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, BasePath+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope %q: %v", rec.Body.String(), err)
	}
	return rec, env
}

// data re-decodes the envelope payload into dst.
func data(t *testing.T, env Envelope, dst any) {
	t.Helper()
	raw, err := json.Marshal(env.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
}

func (e *testEnv) bookBody(hour int) map[string]any {
	return map[string]any{
		"patient":         e.patient.ID.String(),
		"provider":        e.provider.ID.String(),
		"appointmentType": e.checkup.ID.String(),
		"scheduledStart":  monday.At(hour, 0, time.UTC).Format(time.RFC3339),
	}
}

func (e *testEnv) createAppointment(t *testing.T, hour int) AppointmentResponse {
	t.Helper()
	rec, env := e.do(t, http.MethodPost, "/appointments", e.staff, e.bookBody(hour))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var appt AppointmentResponse
	data(t, env, &appt)
	return appt
}

func TestHealthLiveness(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, BasePath+"/health/live", nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestReadiness_DependencyStates(t *testing.T) {
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })
	up := PingFunc(func(context.Context) error { return nil })

	tests := []struct {
		name     string
		postgres Pinger
		redis    Pinger
		want     int
		status   string
	}{
		{"memory mode", nil, nil, http.StatusOK, "ok"},
		{"all up", up, up, http.StatusOK, "ok"},
		{"redis down", up, down, http.StatusOK, "degraded"},
		{"postgres down", down, up, http.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.postgres, tt.redis, "test", "v1")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			var resp ReadinessResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.status {
				t.Errorf("expected status %s, got %s", tt.status, resp.Status)
			}
		})
	}
}

func TestAppointmentTypes_Public(t *testing.T) {
	e := newTestEnv(t)

	rec, env := e.do(t, http.MethodGet, "/booking/appointment-types?clinicId="+e.clinic.ID.String(), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var types []AppointmentTypeResponse
	data(t, env, &types)
	if len(types) != 1 || types[0].Price != 120 {
		t.Fatalf("unexpected types %+v", types)
	}
}

func TestAvailableSlots_Public(t *testing.T) {
	e := newTestEnv(t)
	path := fmt.Sprintf("/booking/available-slots?clinicId=%s&appointmentTypeId=%s&date=%s",
		e.clinic.ID, e.checkup.ID, monday)

	rec, env := e.do(t, http.MethodGet, path, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var slots []SlotResponse
	data(t, env, &slots)
	if len(slots) != 8 {
		t.Fatalf("expected 8 hourly slots, got %d", len(slots))
	}
	if slots[0].ProviderName != e.provider.Name {
		t.Errorf("expected provider name %q, got %q", e.provider.Name, slots[0].ProviderName)
	}
}

func TestAvailableSlots_ValidatesQuery(t *testing.T) {
	e := newTestEnv(t)

	rec, env := e.do(t, http.MethodGet, "/booking/available-slots?clinicId=nope&date=06/03/2030", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.Code != "validation_failed" {
		t.Errorf("expected validation_failed, got %s", env.Code)
	}
	for _, field := range []string{"clinicId", "appointmentTypeId", "date"} {
		if _, ok := env.Errors[field]; !ok {
			t.Errorf("expected field error for %s, got %v", field, env.Errors)
		}
	}
}

func TestBook_RequiresToken(t *testing.T) {
	e := newTestEnv(t)

	rec, env := e.do(t, http.MethodPost, "/booking/book", "", e.bookBody(10))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if env.Success {
		t.Error("expected success=false")
	}
}

func TestBook_PatientOnlyForThemselves(t *testing.T) {
	e := newTestEnv(t)

	other := e.token(t, auth.RolePatient, uuid.New())
	rec, _ := e.do(t, http.MethodPost, "/booking/book", other, e.bookBody(10))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign patient, got %d", rec.Code)
	}

	self := e.token(t, auth.RolePatient, e.patient.ID)
	rec, env := e.do(t, http.MethodPost, "/booking/book", self, e.bookBody(10))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var appt AppointmentResponse
	data(t, env, &appt)
	if appt.Status != "scheduled" || appt.PatientID != e.patient.ID {
		t.Errorf("unexpected appointment %+v", appt)
	}
}

func TestBook_AcceptsEmbeddedReferences(t *testing.T) {
	e := newTestEnv(t)
	body := map[string]any{
		"patient":         map[string]string{"_id": e.patient.ID.String()},
		"provider":        map[string]string{"id": e.provider.ID.String(), "name": e.provider.Name},
		"appointmentType": e.checkup.ID.String(),
		"scheduledStart":  monday.At(11, 0, time.UTC).Format(time.RFC3339),
	}

	rec, _ := e.do(t, http.MethodPost, "/booking/book", e.staff, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateAppointment_ErrorMapping(t *testing.T) {
	e := newTestEnv(t)
	e.createAppointment(t, 10)

	tests := []struct {
		name string
		body map[string]any
		want int
		code string
	}{
		{"overlap", e.bookBody(10), http.StatusConflict, "slot_unavailable"},
		{"outside hours", e.bookBody(18), http.StatusConflict, "outside_working_hours"},
		{"past start", e.bookBody(6), http.StatusBadRequest, "validation_failed"},
		{"unknown provider", func() map[string]any {
			b := e.bookBody(12)
			b["provider"] = uuid.NewString()
			return b
		}(), http.StatusNotFound, "provider_not_found"},
		{"missing refs", map[string]any{}, http.StatusBadRequest, "validation_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := e.do(t, http.MethodPost, "/appointments", e.staff, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if env.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, env.Code)
			}
		})
	}
}

func TestStaffRoutes_RejectPatients(t *testing.T) {
	e := newTestEnv(t)
	patient := e.token(t, auth.RolePatient, e.patient.ID)

	rec, env := e.do(t, http.MethodGet, "/appointments", patient, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if env.Code != "forbidden" {
		t.Errorf("expected forbidden, got %s", env.Code)
	}
}

func TestAppointments_ClinicScoped(t *testing.T) {
	e := newTestEnv(t)
	appt := e.createAppointment(t, 10)

	foreign, err := e.tokens.Issue(auth.Identity{UserID: uuid.New(), Role: auth.RoleAdmin, ClinicID: uuid.New()}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	rec, env := e.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), foreign, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if env.Code != "appointment_not_found" {
		t.Errorf("expected appointment_not_found, got %s", env.Code)
	}
}

func TestAppointments_List(t *testing.T) {
	e := newTestEnv(t)
	e.createAppointment(t, 10)
	e.createAppointment(t, 12)

	rec, env := e.do(t, http.MethodGet, "/appointments?providerId="+e.provider.ID.String(), e.staff, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page ListResponse[AppointmentResponse]
	data(t, env, &page)
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(page.Items))
	}

	rec, _ = e.do(t, http.MethodGet, "/appointments?status=lost", e.staff, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestUpdateStatus(t *testing.T) {
	e := newTestEnv(t)
	appt := e.createAppointment(t, 10)
	path := "/appointments/" + appt.ID.String() + "/status"

	rec, env := e.do(t, http.MethodPatch, path, e.staff, UpdateStatusRequest{Status: "cancelled"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without reason, got %d", rec.Code)
	}
	if _, ok := env.Errors["cancellationReason"]; !ok {
		t.Errorf("expected cancellationReason error, got %v", env.Errors)
	}

	rec, env = e.do(t, http.MethodPatch, path, e.staff, UpdateStatusRequest{Status: "checked_in"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated AppointmentResponse
	data(t, env, &updated)
	if updated.CheckedInAt == nil {
		t.Error("expected checkedInAt to be stamped")
	}

	rec, env = e.do(t, http.MethodPatch, path, e.staff, UpdateStatusRequest{Status: "confirmed"})
	if rec.Code != http.StatusConflict || env.Code != "invalid_status_transition" {
		t.Fatalf("expected 409 invalid_status_transition, got %d %s", rec.Code, env.Code)
	}
}

func TestReschedule(t *testing.T) {
	e := newTestEnv(t)
	appt := e.createAppointment(t, 10)

	req := RescheduleAppointmentRequest{ScheduledStart: monday.At(14, 0, time.UTC), Reason: "patient request"}
	rec, env := e.do(t, http.MethodPatch, "/appointments/"+appt.ID.String()+"/reschedule", e.staff, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var moved AppointmentResponse
	data(t, env, &moved)
	if !moved.ScheduledStart.Equal(req.ScheduledStart) {
		t.Errorf("expected start %s, got %s", req.ScheduledStart, moved.ScheduledStart)
	}
	if len(moved.RescheduleHistory) != 1 {
		t.Errorf("expected one history record, got %d", len(moved.RescheduleHistory))
	}
}

func TestUpdateNotes(t *testing.T) {
	e := newTestEnv(t)
	appt := e.createAppointment(t, 10)

	rec, env := e.do(t, http.MethodPatch, "/appointments/"+appt.ID.String(), e.staff, UpdateNotesRequest{Notes: "bring x-rays"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var updated AppointmentResponse
	data(t, env, &updated)
	if updated.Notes != "bring x-rays" {
		t.Errorf("unexpected notes %q", updated.Notes)
	}
}

func TestInvalidPathID(t *testing.T) {
	e := newTestEnv(t)

	rec, env := e.do(t, http.MethodGet, "/appointments/not-a-uuid", e.staff, nil)
	if rec.Code != http.StatusBadRequest || env.Code != "invalid_id" {
		t.Fatalf("expected 400 invalid_id, got %d %s", rec.Code, env.Code)
	}
}

func TestInvalidBody(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, BasePath+"/appointments", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+e.staff)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOperatories(t *testing.T) {
	e := newTestEnv(t)

	rec, env := e.do(t, http.MethodPost, "/operatories", e.staff, CreateOperatoryRequest{Name: "Room 1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var op OperatoryResponse
	data(t, env, &op)

	rec, env = e.do(t, http.MethodPost, "/operatories", e.staff, CreateOperatoryRequest{Name: "room 1"})
	if rec.Code != http.StatusConflict || env.Code != "operatory_exists" {
		t.Fatalf("expected 409 operatory_exists, got %d %s", rec.Code, env.Code)
	}

	inactive := false
	rec, env = e.do(t, http.MethodPatch, "/operatories/"+op.ID.String(), e.staff, UpdateOperatoryRequest{IsActive: &inactive})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data(t, env, &op)
	if op.IsActive {
		t.Error("expected operatory to be inactive")
	}

	rec, env = e.do(t, http.MethodGet, "/operatories", e.staff, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var ops []OperatoryResponse
	data(t, env, &ops)
	if len(ops) != 1 {
		t.Errorf("expected 1 operatory, got %d", len(ops))
	}
}

func TestWaitlist_CreateMatchPromote(t *testing.T) {
	e := newTestEnv(t)

	body := map[string]any{
		"patient":         e.patient.ID.String(),
		"provider":        e.provider.ID.String(),
		"appointmentType": e.checkup.ID.String(),
		"preferredDates":  []string{monday.String()},
		"preferredTimes":  []string{"13:00-17:00"},
		"priority":        "urgent",
	}
	rec, env := e.do(t, http.MethodPost, "/waitlist", e.staff, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var entry WaitlistEntryResponse
	data(t, env, &entry)
	if entry.Priority != "urgent" || entry.Status != "active" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	rec, env = e.do(t, http.MethodGet, "/waitlist/"+entry.ID.String()+"/matches", e.staff, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var slots []SlotResponse
	data(t, env, &slots)
	if len(slots) == 0 {
		t.Fatal("expected matching slots")
	}
	if h := slots[0].Start.Hour(); h < 13 {
		t.Errorf("expected afternoon slot, got %s", slots[0].Start)
	}

	promote := PromoteWaitlistRequest{ScheduledStart: slots[0].Start}
	rec, env = e.do(t, http.MethodPost, "/waitlist/"+entry.ID.String()+"/promote", e.staff, promote)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var promoted PromoteWaitlistResponse
	data(t, env, &promoted)
	if promoted.Entry.Status != "scheduled" || promoted.Entry.AppointmentID == nil {
		t.Errorf("unexpected entry after promotion %+v", promoted.Entry)
	}

	rec, env = e.do(t, http.MethodPost, "/waitlist/"+entry.ID.String()+"/promote", e.staff, promote)
	if rec.Code != http.StatusConflict || env.Code != "invalid_status_transition" {
		t.Fatalf("expected 409 on second promotion, got %d %s", rec.Code, env.Code)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
