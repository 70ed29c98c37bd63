package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/auth"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/config"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/db"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/logging"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/scheduling"
)

type SimConfig struct {
	APIBaseURL   string        `env:"SIM_API_BASE_URL" envDefault:"http://localhost:8080/api/scheduling"`
	Duration     time.Duration `env:"SIM_DURATION" envDefault:"30s"`
	Workers      int           `env:"SIM_WORKERS" envDefault:"10"`
	BookingRatio float64       `env:"SIM_BOOKING_RATIO" envDefault:"0.5"`
	StatusRatio  float64       `env:"SIM_STATUS_RATIO" envDefault:"0.2"`
	ReadRatio    float64       `env:"SIM_READ_RATIO" envDefault:"0.3"`
	PatientLimit int           `env:"SIM_PATIENT_LIMIT" envDefault:"4000"`
	ClinicID     string        `env:"SIM_CLINIC_ID"`
	Days         int           `env:"SIM_DAYS" envDefault:"3"` // booking horizon starting tomorrow
}

type DataPool struct {
	ClinicID         uuid.UUID
	Patients         []uuid.UUID
	Providers        []uuid.UUID
	AppointmentTypes []uuid.UUID
	Dates            []scheduling.Date
	mu               sync.RWMutex
	appointments     []uuid.UUID // created appointment IDs
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, low, high, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	low = latencies[0]
	high = latencies[len(latencies)-1]
	p50 = latencies[min(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, low, high, p50, p95
}

type Metrics struct {
	Booking       OperationMetrics
	StatusChange  OperationMetrics
	ReadByID      OperationMetrics
	ListByPatient OperationMetrics
	Slots         OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	token   string
	logger  zerolog.Logger
	metrics Metrics
}

// envelope mirrors the API response body.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
}

type slotBody struct {
	Start      time.Time `json:"start"`
	ProviderID uuid.UUID `json:"providerId"`
}

type appointmentBody struct {
	ID             uuid.UUID `json:"id"`
	ProviderID     uuid.UUID `json:"providerId"`
	OperatoryID    *string   `json:"operatoryId"`
	ScheduledStart time.Time `json:"scheduledStart"`
	ScheduledEnd   time.Time `json:"scheduledEnd"`
	Status         string    `json:"status"`
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "info", "simulate")
		boot.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New(baseCfg.Env, baseCfg.LogLevel, "simulate")

	var cfg SimConfig
	if err := env.Parse(&cfg); err != nil {
		logger.Fatal().Err(err).Msg("parse simulator config")
	}
	if err := validateConfig(cfg, baseCfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.StatusRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.StatusRatio /= total
		cfg.ReadRatio /= total
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("status", cfg.StatusRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, 2)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().
		Str("clinic_id", dataPool.ClinicID.String()).
		Int("patients", len(dataPool.Patients)).
		Int("providers", len(dataPool.Providers)).
		Int("appointment_types", len(dataPool.AppointmentTypes)).
		Msg("data pool loaded")

	tokens := auth.NewTokens(baseCfg.JWTSecret, auth.Issuer)
	token, err := tokens.Issue(auth.Identity{
		UserID:   uuid.New(),
		Role:     auth.RoleReceptionist,
		ClinicID: dataPool.ClinicID,
	}, cfg.Duration+10*time.Minute)
	if err != nil {
		logger.Fatal().Err(err).Msg("issue token")
	}

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		token:  token,
		logger: logger,
	}

	sim.Run()
	violations := sim.VerifyNoOverlap(context.Background())
	sim.PrintReport(violations)
}

func validateConfig(cfg SimConfig, base config.Config) error {
	if base.StorageDriver != config.StoragePostgres {
		return fmt.Errorf("simulator reads its data pool from postgres; set STORAGE_DRIVER=postgres")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	if cfg.ClinicID != "" {
		id, err := uuid.Parse(cfg.ClinicID)
		if err != nil {
			return nil, fmt.Errorf("SIM_CLINIC_ID: %w", err)
		}
		dataPool.ClinicID = id
	} else if err := pool.QueryRow(ctx, `
		SELECT id FROM clinics WHERE is_active ORDER BY created_at DESC LIMIT 1
	`).Scan(&dataPool.ClinicID); err != nil {
		return nil, fmt.Errorf("pick clinic: %w", err)
	}

	var err error
	if dataPool.Patients, err = loadIDs(ctx, pool, `
		SELECT id FROM patients WHERE clinic_id = $1 LIMIT $2
	`, dataPool.ClinicID, cfg.PatientLimit); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	if dataPool.Providers, err = loadIDs(ctx, pool, `
		SELECT id FROM providers WHERE clinic_id = $1 AND is_active LIMIT $2
	`, dataPool.ClinicID, 1000); err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	if dataPool.AppointmentTypes, err = loadIDs(ctx, pool, `
		SELECT id FROM appointment_types WHERE clinic_id = $1 AND is_active LIMIT $2
	`, dataPool.ClinicID, 100); err != nil {
		return nil, fmt.Errorf("load appointment types: %w", err)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Providers) == 0 {
		return nil, fmt.Errorf("no providers loaded")
	}
	if len(dataPool.AppointmentTypes) == 0 {
		return nil, fmt.Errorf("no appointment types loaded")
	}

	tomorrow := scheduling.DateOf(time.Now().UTC()).AddDays(1)
	for i := 0; i < cfg.Days; i++ {
		dataPool.Dates = append(dataPool.Dates, tomorrow.AddDays(i))
	}
	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, sql string, args ...any) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.StatusRatio:
				s.doStatusChange(ctx, rng)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doListByPatient(ctx, rng)
				case 2:
					s.doSlots(ctx, rng)
				}
			}
		}
	}
}

// call performs one API request and decodes the envelope.
func (s *Simulator) call(ctx context.Context, method, path string, body any) (int, envelope, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, envelope{}, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, envelope{}, err
	}
	defer resp.Body.Close()

	var out envelope
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return resp.StatusCode, envelope{}, err
	}
	return resp.StatusCode, out, nil
}

func (s *Simulator) slots(ctx context.Context, rng *rand.Rand) ([]slotBody, uuid.UUID, error) {
	typeID := s.pool.AppointmentTypes[rng.Intn(len(s.pool.AppointmentTypes))]
	date := s.pool.Dates[rng.Intn(len(s.pool.Dates))]

	path := fmt.Sprintf("/booking/available-slots?clinicId=%s&appointmentTypeId=%s&date=%s",
		s.pool.ClinicID, typeID, date)
	status, body, err := s.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, typeID, err
	}
	if status != http.StatusOK {
		return nil, typeID, fmt.Errorf("slots: status %d %s", status, body.Code)
	}
	var slots []slotBody
	if err := json.Unmarshal(body.Data, &slots); err != nil {
		return nil, typeID, err
	}
	return slots, typeID, nil
}

// doBooking books one of the first few offered slots so workers collide.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slots, typeID, err := s.slots(ctx, rng)
	if err != nil || len(slots) == 0 {
		return
	}
	slot := slots[rng.Intn(min(len(slots), 3))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, body, err := s.call(ctx, http.MethodPost, "/appointments", map[string]string{
		"patient":         patientID.String(),
		"provider":        slot.ProviderID.String(),
		"appointmentType": typeID.String(),
		"scheduledStart":  slot.Start.Format(time.RFC3339),
	})
	latency := time.Since(start)

	success := err == nil && status == http.StatusCreated
	conflict := err == nil && status == http.StatusConflict
	if success {
		var appt appointmentBody
		if json.Unmarshal(body.Data, &appt) == nil && appt.ID != uuid.Nil {
			s.pool.AddAppointment(appt.ID)
		}
	}
	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doStatusChange(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodPatch, "/appointments/"+apptID.String()+"/status",
		map[string]string{"status": "confirmed"})
	latency := time.Since(start)

	s.metrics.StatusChange.Record(latency, err == nil && status == http.StatusOK, err == nil && status == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodGet, "/appointments/"+apptID.String(), nil)
	s.metrics.ReadByID.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/appointments?patientId=%s&limit=20&offset=0", patientID), nil)
	s.metrics.ListByPatient.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	start := time.Now()
	_, _, err := s.slots(ctx, rng)
	s.metrics.Slots.Record(time.Since(start), err == nil, false)
}

// VerifyNoOverlap pages through every provider's appointments in the
// simulated horizon and counts slot-holding pairs that overlap on the same
// provider or operatory.
func (s *Simulator) VerifyNoOverlap(ctx context.Context) int {
	from := s.pool.Dates[0].At(0, 0, time.UTC).Add(-24 * time.Hour)
	to := s.pool.Dates[len(s.pool.Dates)-1].At(0, 0, time.UTC).Add(48 * time.Hour)

	var all []appointmentBody
	for _, providerID := range s.pool.Providers {
		for offset := 0; ; offset += 100 {
			path := fmt.Sprintf("/appointments?providerId=%s&from=%s&to=%s&limit=100&offset=%d",
				providerID, from.Format(time.RFC3339), to.Format(time.RFC3339), offset)
			status, body, err := s.call(ctx, http.MethodGet, path, nil)
			if err != nil || status != http.StatusOK {
				s.logger.Error().Err(err).Int("status", status).Msg("verification listing failed")
				return -1
			}
			var page struct {
				Items []appointmentBody `json:"items"`
			}
			if err := json.Unmarshal(body.Data, &page); err != nil {
				s.logger.Error().Err(err).Msg("decode verification page")
				return -1
			}
			all = append(all, page.Items...)
			if len(page.Items) < 100 {
				break
			}
		}
	}
	return countOverlaps(all)
}

func countOverlaps(appts []appointmentBody) int {
	byResource := make(map[string][]appointmentBody)
	for _, a := range appts {
		if a.Status == "cancelled" || a.Status == "no_show" {
			continue
		}
		byResource["provider:"+a.ProviderID.String()] = append(byResource["provider:"+a.ProviderID.String()], a)
		if a.OperatoryID != nil {
			byResource["operatory:"+*a.OperatoryID] = append(byResource["operatory:"+*a.OperatoryID], a)
		}
	}

	violations := 0
	for _, list := range byResource {
		sort.Slice(list, func(i, j int) bool {
			return list[i].ScheduledStart.Before(list[j].ScheduledStart)
		})
		for i := 1; i < len(list); i++ {
			if list[i].ScheduledStart.Before(list[i-1].ScheduledEnd) {
				violations++
			}
		}
	}
	return violations
}

func (s *Simulator) PrintReport(violations int) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Status change", &s.metrics.StatusChange)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
	printOperationReport("Available slots", &s.metrics.Slots)

	switch {
	case violations < 0:
		fmt.Println("Overlap check: could not verify")
	case violations == 0:
		fmt.Println("Overlap check: OK, no double bookings")
	default:
		fmt.Printf("Overlap check: FAILED, %d overlapping pairs\n", violations)
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, low, high, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), low.Round(time.Millisecond), high.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}
