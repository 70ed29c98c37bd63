package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/audit"
	redisclient "github.com/jreinaldodasilva/topsmile-sub003/internal/redis"
)

const auditTimeout = 3 * time.Second

type Options struct {
	Clock       Clock
	Cache       *SlotCache
	Audit       audit.Recorder
	Logger      zerolog.Logger
	Granularity time.Duration // slot step when a query does not set one
	WaitlistTTL time.Duration
}

type Service struct {
	repo        Repository
	locker      Locker
	clock       Clock
	cache       *SlotCache
	audit       audit.Recorder
	logger      zerolog.Logger
	granularity time.Duration
	waitlistTTL time.Duration
}

func NewService(repo Repository, locker Locker, opts Options) *Service {
	s := &Service{
		repo:        repo,
		locker:      locker,
		clock:       opts.Clock,
		cache:       opts.Cache,
		audit:       opts.Audit,
		logger:      opts.Logger.With().Str("component", "scheduling").Logger(),
		granularity: opts.Granularity,
		waitlistTTL: opts.WaitlistTTL,
	}
	if s.clock == nil {
		s.clock = systemClock{}
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.waitlistTTL <= 0 {
		s.waitlistTTL = 30 * 24 * time.Hour
	}
	return s
}

// InvalidateProvider drops cached slots for a provider. It is called by the
// event listener when another instance changed that provider's schedule.
func (s *Service) InvalidateProvider(providerID uuid.UUID) {
	s.cache.InvalidateProvider(providerID)
}

func (s *Service) withLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, keys, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	return err
}

// record sends an audit event. Failures are logged and never returned.
func (s *Service) record(ctx context.Context, ev audit.Event) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.clock.Now()
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	if err := s.audit.Record(auditCtx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event_type", ev.Type).Msg("audit record failed")
	}
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
